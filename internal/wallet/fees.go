package wallet

import "math"

// FeeBreakdown is the gross/fee/net split applied to every ride payment.
// The same split is recomputed at refund time so the platform fee is
// retained and only the net amount moves back.
type FeeBreakdown struct {
	GrossCents int64
	FeeCents   int64
	NetCents   int64
	FeePercent float64
}

func ComputeFee(grossCents int64, feePercent float64) FeeBreakdown {
	fee := int64(math.Round(float64(grossCents) * feePercent / 100))
	return FeeBreakdown{
		GrossCents: grossCents,
		FeeCents:   fee,
		NetCents:   grossCents - fee,
		FeePercent: feePercent,
	}
}

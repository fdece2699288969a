package refund

import (
	"context"

	"github.com/farizadam/airport-app-sub000/internal/logger"
	"github.com/farizadam/airport-app-sub000/internal/metrics"
	"github.com/farizadam/airport-app-sub000/internal/payment"
	"github.com/farizadam/airport-app-sub000/internal/wallet"
)

type Notifier interface {
	Notify(ctx context.Context, userID int, notifType string, payload map[string]interface{}) error
}

// Movement describes a settled payment to be reversed. Callers flip the
// booking's payment_status to refunded first; that guarded flip is the
// idempotency gate, so Execute itself never runs twice for the same booking.
type Movement struct {
	ReferenceType   string
	ReferenceID     string
	DriverID        int
	PassengerID     int
	GrossCents      int64
	PaymentMethod   string
	PaymentIntentID string
}

// Service performs the compensating movement for a cancelled paid booking:
// the driver gives back the net amount they earned, the passenger gets that
// net amount back, and the platform fee is retained.
type Service struct {
	wallets    wallet.Repository
	processor  payment.Processor
	notifier   Notifier
	feePercent float64
}

func NewService(wallets wallet.Repository, processor payment.Processor, notifier Notifier, feePercent float64) *Service {
	return &Service{
		wallets:    wallets,
		processor:  processor,
		notifier:   notifier,
		feePercent: feePercent,
	}
}

func (s *Service) Execute(ctx context.Context, m Movement) error {
	fees := wallet.ComputeFee(m.GrossCents, s.feePercent)

	meta := wallet.TxMeta{
		Type:          wallet.TypeRefund,
		Status:        wallet.StatusCompleted,
		GrossCents:    fees.GrossCents,
		FeeCents:      fees.FeeCents,
		FeePercent:    fees.FeePercent,
		NetCents:      fees.NetCents,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
	}

	// The driver may already have withdrawn; the debit has no floor and the
	// balance is allowed to go negative. If even that fails, the passenger
	// credit is still honored and the wallet is flagged for an operator.
	if _, err := s.wallets.Debit(ctx, m.DriverID, fees.NetCents, meta); err != nil {
		logger.Errorf("Refund debit failed for driver %d (%s %s): %v", m.DriverID, m.ReferenceType, m.ReferenceID, err)
		if flagErr := s.wallets.FlagForReview(ctx, m.DriverID); flagErr != nil {
			logger.Errorf("Failed to flag wallet of driver %d for review: %v", m.DriverID, flagErr)
		}
	} else {
		metrics.RecordWalletDebit(wallet.TypeRefund)
	}

	if _, err := s.wallets.Credit(ctx, m.PassengerID, fees.NetCents, meta); err != nil {
		logger.Errorf("Refund credit failed for passenger %d (%s %s): %v", m.PassengerID, m.ReferenceType, m.ReferenceID, err)
		return err
	}
	metrics.RecordWalletCredit(wallet.TypeRefund)

	// Card payments were charged through the processor; reversing the charge
	// is best effort and never blocks the wallet-side compensation.
	if m.PaymentMethod == "card" && m.PaymentIntentID != "" {
		if _, err := s.processor.CreateRefund(ctx, m.PaymentIntentID, fees.NetCents); err != nil {
			logger.Errorf("Processor refund failed for %s %s (intent %s): %v", m.ReferenceType, m.ReferenceID, m.PaymentIntentID, err)
		}
	}

	metrics.RecordRefund()

	payload := map[string]interface{}{
		"reference_type": m.ReferenceType,
		"reference_id":   m.ReferenceID,
		"amount_cents":   fees.NetCents,
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, m.PassengerID, "booking_refunded", payload); err != nil {
			logger.Errorf("Failed to notify passenger %d about refund: %v", m.PassengerID, err)
		}
		if err := s.notifier.Notify(ctx, m.DriverID, "booking_refunded", payload); err != nil {
			logger.Errorf("Failed to notify driver %d about refund: %v", m.DriverID, err)
		}
	}

	return nil
}

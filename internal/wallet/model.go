package wallet

import "time"

type Wallet struct {
	ID                  int       `db:"id" json:"id"`
	UserID              int       `db:"user_id" json:"user_id"`
	BalanceCents        int64     `db:"balance_cents" json:"balance_cents"`
	PendingBalanceCents int64     `db:"pending_balance_cents" json:"pending_balance_cents"`
	TotalEarnedCents    int64     `db:"total_earned_cents" json:"total_earned_cents"`
	TotalWithdrawnCents int64     `db:"total_withdrawn_cents" json:"total_withdrawn_cents"`
	Currency            string    `db:"currency" json:"currency"`
	NeedsReview         bool      `db:"needs_review" json:"needs_review"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction types.
const (
	TypeRideEarning      = "ride_earning"
	TypeRidePayment      = "ride_payment"
	TypePlatformFee      = "platform_fee"
	TypeWithdrawal       = "withdrawal"
	TypeWithdrawalFailed = "withdrawal_failed"
	TypeRefund           = "refund"
	TypeBonus            = "bonus"
	TypeAdjustment       = "adjustment"
	TypeTopUp            = "topup"
)

// Transaction statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Transaction is an append-only ledger entry. Rows never change after
// reaching a terminal status, except to attach the external transfer id.
type Transaction struct {
	ID                int        `db:"id" json:"id"`
	WalletID          int        `db:"wallet_id" json:"wallet_id"`
	UserID            int        `db:"user_id" json:"user_id"`
	Type              string     `db:"type" json:"type"`
	AmountCents       int64      `db:"amount_cents" json:"amount_cents"`
	GrossAmountCents  int64      `db:"gross_amount_cents" json:"gross_amount_cents"`
	FeeAmountCents    int64      `db:"fee_amount_cents" json:"fee_amount_cents"`
	FeePercentage     float64    `db:"fee_percentage" json:"fee_percentage"`
	NetAmountCents    int64      `db:"net_amount_cents" json:"net_amount_cents"`
	Status            string     `db:"status" json:"status"`
	ReferenceType     *string    `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID       *string    `db:"reference_id" json:"reference_id,omitempty"`
	TransferID        *string    `db:"transfer_id" json:"transfer_id,omitempty"`
	BalanceAfterCents int64      `db:"balance_after_cents" json:"balance_after_cents"`
	ProcessedAt       *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
}

// TxMeta describes the ledger entry written alongside a balance change.
type TxMeta struct {
	Type          string
	Status        string
	GrossCents    int64
	FeeCents      int64
	FeePercent    float64
	NetCents      int64
	ReferenceType string
	ReferenceID   string
	TransferID    string
}

package payout

import "time"

// Payout statuses. pending and processing are in flight; completed and
// failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Payout struct {
	ID                  int        `db:"id" json:"id"`
	IdempotencyKey      string     `db:"idempotency_key" json:"idempotency_key"`
	UserID              int        `db:"user_id" json:"user_id"`
	WalletID            int        `db:"wallet_id" json:"-"`
	AmountCents         int64      `db:"amount_cents" json:"amount_cents"`
	DestinationAccount  string     `db:"destination_account" json:"destination_account"`
	Status              string     `db:"status" json:"status"`
	TransferID          *string    `db:"transfer_id" json:"transfer_id,omitempty"`
	FailureReason       *string    `db:"failure_reason" json:"failure_reason,omitempty"`
	NeedsManualRefund   bool       `db:"needs_manual_refund" json:"-"`
	NeedsReconcile      bool       `db:"needs_reconcile" json:"-"`
	RequestedAt         time.Time  `db:"requested_at" json:"requested_at"`
	ProcessingStartedAt *time.Time `db:"processing_started_at" json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `db:"completed_at" json:"completed_at,omitempty"`
}

type WithdrawalRequest struct {
	AmountCents        int64  `json:"amount_cents" binding:"required,gt=0"`
	DestinationAccount string `json:"destination_account" binding:"required"`
}

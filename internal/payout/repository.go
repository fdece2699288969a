package payout

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrPayoutNotFound      = errors.New("payout not found")
	ErrPendingPayoutExists = errors.New("a payout is already in flight for this user")
	ErrAlreadyResolved     = errors.New("payout already resolved")
)

type Repository interface {
	CreateInTx(ctx context.Context, tx *sqlx.Tx, idempotencyKey string, userID, walletID int, amountCents int64, destinationAccount string) (*Payout, error)
	HasActive(ctx context.Context, userID int) (bool, error)
	GetByID(ctx context.Context, id int) (*Payout, error)
	ListByUser(ctx context.Context, userID int) ([]Payout, error)

	MarkProcessing(ctx context.Context, id int, transferID string) error
	MarkCompleted(ctx context.Context, id int) error
	MarkFailed(ctx context.Context, id int, reason string) error
	FlagReconcile(ctx context.Context, id int) error
	FlagManualRefund(ctx context.Context, id int) error
	ClaimManualRefund(ctx context.Context, id int) error
	FinalizeLedger(ctx context.Context, idempotencyKey, status, transferID string) error

	ListStalePending(ctx context.Context, olderThan time.Time) ([]Payout, error)
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]Payout, error)
	ListManualRefunds(ctx context.Context) ([]Payout, error)
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const payoutColumns = `id, idempotency_key, user_id, wallet_id, amount_cents, destination_account, status,
	transfer_id, failure_reason, needs_manual_refund, needs_reconcile, requested_at, processing_started_at, completed_at`

// CreateInTx inserts the pending payout row inside the caller's transaction
// so it commits or rolls back together with the wallet debit and the pending
// ledger row. The partial unique index on active payouts turns a concurrent
// second request into a constraint violation.
func (r *repository) CreateInTx(ctx context.Context, tx *sqlx.Tx, idempotencyKey string, userID, walletID int, amountCents int64, destinationAccount string) (*Payout, error) {
	var p Payout
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO payouts (idempotency_key, user_id, wallet_id, amount_cents, destination_account)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+payoutColumns,
		idempotencyKey, userID, walletID, amountCents, destinationAccount,
	).StructScan(&p)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrPendingPayoutExists
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) HasActive(ctx context.Context, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM payouts WHERE user_id = $1 AND status IN ('pending', 'processing'))`,
		userID,
	)
	return exists, err
}

func (r *repository) GetByID(ctx context.Context, id int) (*Payout, error) {
	var p Payout
	err := r.db.GetContext(ctx, &p, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPayoutNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByUser(ctx context.Context, userID int) ([]Payout, error) {
	var payouts []Payout
	err := r.db.SelectContext(ctx, &payouts,
		`SELECT `+payoutColumns+` FROM payouts WHERE user_id = $1 ORDER BY requested_at DESC`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) MarkProcessing(ctx context.Context, id int, transferID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payouts
		 SET status = 'processing', transfer_id = $2, needs_reconcile = FALSE, processing_started_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id, transferID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlreadyResolved)
}

func (r *repository) MarkCompleted(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payouts
		 SET status = 'completed', needs_reconcile = FALSE, completed_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing')`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlreadyResolved)
}

func (r *repository) MarkFailed(ctx context.Context, id int, reason string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payouts
		 SET status = 'failed', failure_reason = $2, needs_reconcile = FALSE, completed_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'processing')`,
		id, reason,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlreadyResolved)
}

func (r *repository) FlagReconcile(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET needs_reconcile = TRUE WHERE id = $1 AND status IN ('pending', 'processing')`,
		id,
	)
	return err
}

func (r *repository) FlagManualRefund(ctx context.Context, id int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET needs_manual_refund = TRUE WHERE id = $1`,
		id,
	)
	return err
}

// ClaimManualRefund clears the flag as a claim: only the caller that flips it
// FALSE may apply the refund credit, so retries never pay twice. If the
// credit then fails the caller re-flags the row.
func (r *repository) ClaimManualRefund(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE payouts SET needs_manual_refund = FALSE WHERE id = $1 AND needs_manual_refund = TRUE`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlreadyResolved)
}

// FinalizeLedger settles the pending withdrawal ledger row created in Phase 1,
// located by the payout's idempotency key. The pending guard makes repeats
// no-ops.
func (r *repository) FinalizeLedger(ctx context.Context, idempotencyKey, status, transferID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallet_transactions
		 SET status = $2,
		     transfer_id = COALESCE(NULLIF($3, ''), transfer_id),
		     processed_at = NOW()
		 WHERE reference_type = 'payout' AND reference_id = $1 AND status = 'pending'`,
		idempotencyKey, status, transferID,
	)
	return err
}

func (r *repository) ListStalePending(ctx context.Context, olderThan time.Time) ([]Payout, error) {
	var payouts []Payout
	err := r.db.SelectContext(ctx, &payouts,
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE status = 'pending' AND requested_at < $1
		 ORDER BY requested_at ASC
		 LIMIT 100`,
		olderThan,
	)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]Payout, error) {
	var payouts []Payout
	err := r.db.SelectContext(ctx, &payouts,
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE status = 'processing' AND processing_started_at < $1
		 ORDER BY processing_started_at ASC
		 LIMIT 100`,
		olderThan,
	)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func (r *repository) ListManualRefunds(ctx context.Context) ([]Payout, error) {
	var payouts []Payout
	err := r.db.SelectContext(ctx, &payouts,
		`SELECT `+payoutColumns+` FROM payouts
		 WHERE needs_manual_refund = TRUE
		 ORDER BY requested_at ASC
		 LIMIT 100`,
	)
	if err != nil {
		return nil, err
	}
	return payouts, nil
}

func requireRow(result sql.Result, missing error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return missing
	}
	return nil
}

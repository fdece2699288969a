package wallet

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const walletColumns = `id, user_id, balance_cents, pending_balance_cents, total_earned_cents, total_withdrawn_cents, currency, needs_review, created_at, updated_at`

func (r *repository) GetOrCreateWallet(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO wallets (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		 RETURNING `+walletColumns,
		userID,
	).StructScan(w)
	if err != nil {
		return nil, err
	}

	return w, nil
}

func (r *repository) GetByUserID(ctx context.Context, userID int) (*Wallet, error) {
	w := &Wallet{}
	err := r.db.GetContext(ctx, w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

func (r *repository) Credit(ctx context.Context, userID int, amountCents int64, meta TxMeta) (*Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := r.CreditInTx(ctx, tx, userID, amountCents, meta)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *repository) Debit(ctx context.Context, userID int, amountCents int64, meta TxMeta) (*Transaction, error) {
	return r.debit(ctx, userID, amountCents, meta, false)
}

func (r *repository) DebitWithBalanceCheck(ctx context.Context, userID int, amountCents int64, meta TxMeta) (*Transaction, error) {
	return r.debit(ctx, userID, amountCents, meta, true)
}

func (r *repository) debit(ctx context.Context, userID int, amountCents int64, meta TxMeta, checkBalance bool) (*Transaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	entry, err := r.DebitInTx(ctx, tx, userID, amountCents, meta, checkBalance)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreditInTx applies a guarded balance increment and appends the matching
// ledger row inside the caller's transaction. The wallet is created lazily
// on first use.
func (r *repository) CreditInTx(ctx context.Context, tx *sqlx.Tx, userID int, amountCents int64, meta TxMeta) (*Transaction, error) {
	var walletID int
	var balanceAfter int64

	err := tx.QueryRowxContext(ctx,
		`UPDATE wallets
		 SET balance_cents = balance_cents + $2,
		     total_earned_cents = total_earned_cents + CASE WHEN $3 IN ('ride_earning', 'bonus') THEN $2 ELSE 0 END,
		     updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING id, balance_cents`,
		userID, amountCents, meta.Type,
	).Scan(&walletID, &balanceAfter)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.QueryRowxContext(ctx,
			`INSERT INTO wallets (user_id, balance_cents, total_earned_cents)
			 VALUES ($1, $2, CASE WHEN $3 IN ('ride_earning', 'bonus') THEN $2 ELSE 0 END)
			 RETURNING id, balance_cents`,
			userID, amountCents, meta.Type,
		).Scan(&walletID, &balanceAfter)
	}
	if err != nil {
		return nil, err
	}

	return r.insertTransaction(ctx, tx, walletID, userID, amountCents, balanceAfter, meta)
}

// DebitInTx applies a guarded balance decrement and appends the matching
// ledger row inside the caller's transaction. With checkBalance the update
// is additionally guarded by balance >= amount and fails without side
// effects; without it the balance may go negative (compensating debits
// against already-withdrawn earnings).
func (r *repository) DebitInTx(ctx context.Context, tx *sqlx.Tx, userID int, amountCents int64, meta TxMeta, checkBalance bool) (*Transaction, error) {
	var walletID int
	var balanceAfter int64

	err := tx.QueryRowxContext(ctx,
		`UPDATE wallets
		 SET balance_cents = balance_cents - $2,
		     total_withdrawn_cents = total_withdrawn_cents + CASE WHEN $3 = 'withdrawal' THEN $2 ELSE 0 END,
		     updated_at = NOW()
		 WHERE user_id = $1 AND ($4 = FALSE OR balance_cents >= $2)
		 RETURNING id, balance_cents`,
		userID, amountCents, meta.Type, checkBalance,
	).Scan(&walletID, &balanceAfter)
	if errors.Is(err, sql.ErrNoRows) {
		// Guard failed: distinguish a missing wallet from an uncovered amount.
		var available int64
		lookupErr := tx.QueryRowxContext(ctx, `SELECT balance_cents FROM wallets WHERE user_id = $1`, userID).Scan(&available)
		if errors.Is(lookupErr, sql.ErrNoRows) {
			if !checkBalance {
				return nil, ErrWalletNotFound
			}
			return nil, &InsufficientBalanceError{RequiredCents: amountCents, AvailableCents: 0}
		}
		if lookupErr != nil {
			return nil, lookupErr
		}
		return nil, &InsufficientBalanceError{RequiredCents: amountCents, AvailableCents: available}
	}
	if err != nil {
		return nil, err
	}

	return r.insertTransaction(ctx, tx, walletID, userID, -amountCents, balanceAfter, meta)
}

func (r *repository) insertTransaction(ctx context.Context, tx *sqlx.Tx, walletID, userID int, signedAmount, balanceAfter int64, meta TxMeta) (*Transaction, error) {
	status := meta.Status
	if status == "" {
		status = StatusCompleted
	}

	entry := &Transaction{}
	err := tx.QueryRowxContext(ctx,
		`INSERT INTO wallet_transactions
		 (wallet_id, user_id, type, amount_cents, gross_amount_cents, fee_amount_cents, fee_percentage, net_amount_cents,
		  status, reference_type, reference_id, transfer_id, balance_after_cents, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, CASE WHEN $9 = 'completed' THEN NOW() END)
		 RETURNING id, wallet_id, user_id, type, amount_cents, gross_amount_cents, fee_amount_cents, fee_percentage,
		           net_amount_cents, status, reference_type, reference_id, transfer_id, balance_after_cents, processed_at, created_at`,
		walletID, userID, meta.Type, signedAmount, meta.GrossCents, meta.FeeCents, meta.FeePercent, meta.NetCents,
		status, nullIfEmpty(meta.ReferenceType), nullIfEmpty(meta.ReferenceID), nullIfEmpty(meta.TransferID), balanceAfter,
	).StructScan(entry)
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// MarkTransactionStatus finalizes a pending ledger row. The status guard
// makes repeated calls no-ops once the row is terminal.
func (r *repository) MarkTransactionStatus(ctx context.Context, transactionID int, status, transferID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallet_transactions
		 SET status = $2,
		     transfer_id = COALESCE(NULLIF($3, ''), transfer_id),
		     processed_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		transactionID, status, transferID,
	)
	return err
}

// FlagForReview marks a wallet whose compensating movement could not be
// applied, so an operator (or the sweep) can pick it up.
func (r *repository) FlagForReview(ctx context.Context, userID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE wallets SET needs_review = TRUE, updated_at = NOW() WHERE user_id = $1`,
		userID,
	)
	return err
}

func (r *repository) GetTransactions(ctx context.Context, userID int, limit, offset int, typeFilter string) ([]Transaction, error) {
	if limit <= 0 {
		limit = 50
	}

	var txs []Transaction
	var err error
	if typeFilter != "" {
		err = r.db.SelectContext(ctx, &txs,
			`SELECT id, wallet_id, user_id, type, amount_cents, gross_amount_cents, fee_amount_cents, fee_percentage,
			        net_amount_cents, status, reference_type, reference_id, transfer_id, balance_after_cents, processed_at, created_at
			 FROM wallet_transactions
			 WHERE user_id = $1 AND type = $2
			 ORDER BY created_at DESC
			 LIMIT $3 OFFSET $4`,
			userID, typeFilter, limit, offset)
	} else {
		err = r.db.SelectContext(ctx, &txs,
			`SELECT id, wallet_id, user_id, type, amount_cents, gross_amount_cents, fee_amount_cents, fee_percentage,
			        net_amount_cents, status, reference_type, reference_id, transfer_id, balance_after_cents, processed_at, created_at
			 FROM wallet_transactions
			 WHERE user_id = $1
			 ORDER BY created_at DESC
			 LIMIT $2 OFFSET $3`,
			userID, limit, offset)
	}
	if err != nil {
		return nil, err
	}

	return txs, nil
}

// SumCompleted returns the sum of all completed ledger amounts for a wallet.
// For a consistent ledger this equals the wallet's current balance.
func (r *repository) SumCompleted(ctx context.Context, walletID int) (int64, error) {
	var sum int64
	err := r.db.GetContext(ctx, &sum,
		`SELECT COALESCE(SUM(amount_cents), 0) FROM wallet_transactions WHERE wallet_id = $1 AND status = 'completed'`,
		walletID,
	)
	return sum, err
}

func (r *repository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, nil)
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

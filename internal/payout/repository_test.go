package payout

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (Repository, *sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, sqlxDB, mock, closer
}

func payoutRow(now time.Time, id int, status string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "idempotency_key", "user_id", "wallet_id", "amount_cents", "destination_account", "status",
		"transfer_id", "failure_reason", "needs_manual_refund", "needs_reconcile",
		"requested_at", "processing_started_at", "completed_at",
	}).AddRow(id, "key-1", 2, 4, int64(5000), "acct_driver_2", status, nil, nil, false, false, now, nil, nil)
}

func TestCreateInTx(t *testing.T) {
	repo, db, mock, close := setupMock(t)
	defer close()

	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payouts`).
		WithArgs("key-1", 2, 4, int64(5000), "acct_driver_2").
		WillReturnRows(payoutRow(now, 11, StatusPending))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)

	p, err := repo.CreateInTx(context.Background(), tx, "key-1", 2, 4, 5000, "acct_driver_2")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, 11, p.ID)
	assert.Equal(t, StatusPending, p.Status)
}

func TestCreateInTxSecondActivePayout(t *testing.T) {
	repo, db, mock, close := setupMock(t)
	defer close()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payouts`).
		WithArgs("key-2", 2, 4, int64(5000), "acct_driver_2").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "idx_payouts_one_active_per_user"})
	mock.ExpectRollback()

	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = repo.CreateInTx(context.Background(), tx, "key-2", 2, 4, 5000, "acct_driver_2")
	assert.Equal(t, ErrPendingPayoutExists, err)
}

func TestMarkProcessingGuarded(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	mock.ExpectExec(`UPDATE payouts\s+SET status = 'processing'`).
		WithArgs(11, "tr_9").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payouts\s+SET status = 'processing'`).
		WithArgs(11, "tr_9").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkProcessing(context.Background(), 11, "tr_9"))
	assert.Equal(t, ErrAlreadyResolved, repo.MarkProcessing(context.Background(), 11, "tr_9"))
}

func TestMarkFailedTwice(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	mock.ExpectExec(`UPDATE payouts\s+SET status = 'failed'`).
		WithArgs(11, "transfer was never created").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE payouts\s+SET status = 'failed'`).
		WithArgs(11, "transfer was never created").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkFailed(context.Background(), 11, "transfer was never created"))
	assert.Equal(t, ErrAlreadyResolved, repo.MarkFailed(context.Background(), 11, "transfer was never created"))
}

func TestClaimManualRefundOnce(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	claim := regexp.QuoteMeta(`UPDATE payouts SET needs_manual_refund = FALSE WHERE id = $1 AND needs_manual_refund = TRUE`)

	mock.ExpectExec(claim).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(claim).WithArgs(11).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.ClaimManualRefund(context.Background(), 11))
	assert.Equal(t, ErrAlreadyResolved, repo.ClaimManualRefund(context.Background(), 11))
}

func TestFinalizeLedger(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	mock.ExpectExec(`UPDATE wallet_transactions`).
		WithArgs("key-1", "completed", "tr_9").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.FinalizeLedger(context.Background(), "key-1", "completed", "tr_9"))
}

func TestHasActive(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	active, err := repo.HasActive(context.Background(), 2)
	require.NoError(t, err)
	assert.True(t, active)
}

func TestListStalePending(t *testing.T) {
	repo, _, mock, close := setupMock(t)
	defer close()

	now := time.Now()
	cutoff := now.Add(-15 * time.Minute)

	mock.ExpectQuery(`SELECT .+ FROM payouts\s+WHERE status = 'pending' AND requested_at <`).
		WithArgs(cutoff).
		WillReturnRows(payoutRow(now.Add(-time.Hour), 11, StatusPending))

	payouts, err := repo.ListStalePending(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, payouts, 1)
	assert.Equal(t, "key-1", payouts[0].IdempotencyKey)
}

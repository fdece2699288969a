package booking

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMock(t *testing.T) (Repository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	repo := NewRepository(sqlxDB)

	closer := func() { sqlxDB.Close() }
	return repo, mock, closer
}

func bookingRow(now time.Time, id int, status, paymentStatus string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "ride_id", "passenger_id", "seats", "luggage_count", "status", "payment_status",
		"payment_method", "payment_intent_id", "amount_cents", "created_at", "updated_at",
	}).AddRow(id, 10, 7, 2, 1, status, paymentStatus, MethodWallet, nil, int64(4000), now, now)
}

func TestCreateBooking(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	now := time.Now()

	mock.ExpectQuery(`INSERT INTO bookings`).
		WithArgs(10, 7, 2, 1, MethodWallet, "", int64(4000)).
		WillReturnRows(bookingRow(now, 42, StatusPending, PaymentPending))

	booking, err := repo.CreateBooking(context.Background(), 10, 7, 2, 1, MethodWallet, "", 4000)
	require.NoError(t, err)
	assert.Equal(t, 42, booking.ID)
	assert.Equal(t, StatusPending, booking.Status)
}

func TestMarkPaid(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET status = 'accepted', payment_status = 'paid', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`)).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.MarkPaid(context.Background(), 42)
	require.NoError(t, err)
}

func TestMarkCancelledTwice(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectExec(`UPDATE bookings SET status = 'cancelled'`).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings SET status = 'cancelled'`).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkCancelled(context.Background(), 42))
	assert.Equal(t, ErrAlreadyCancelled, repo.MarkCancelled(context.Background(), 42))
}

func TestMarkRefundedIsGuarded(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE bookings SET payment_status = 'refunded', updated_at = NOW()
		 WHERE id = $1 AND payment_status = 'paid'`)).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE bookings SET payment_status = 'refunded'`).
		WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkRefunded(context.Background(), 42))
	assert.Equal(t, ErrAlreadyRefunded, repo.MarkRefunded(context.Background(), 42))
}

func TestGetBookingByIDNotFound(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id`).
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetBookingByID(context.Background(), 99)
	assert.Equal(t, ErrBookingNotFound, err)
}

func TestListActiveByRide(t *testing.T) {
	repo, mock, close := setupMock(t)
	defer close()

	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM bookings\s+WHERE ride_id`).
		WithArgs(10).
		WillReturnRows(bookingRow(now, 42, StatusAccepted, PaymentPaid))

	bookings, err := repo.ListActiveByRide(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, 42, bookings[0].ID)
}

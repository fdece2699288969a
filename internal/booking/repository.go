package booking

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrAlreadyCancelled = errors.New("booking is not active")
	ErrAlreadyRefunded  = errors.New("booking is not in a refundable state")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const bookingColumns = `id, ride_id, passenger_id, seats, luggage_count, status, payment_status, payment_method, payment_intent_id, amount_cents, created_at, updated_at`

func (r *repository) CreateBooking(ctx context.Context, rideID, passengerID, seats, luggageCount int, paymentMethod, paymentIntentID string, amountCents int64) (*Booking, error) {
	var booking Booking
	err := r.db.GetContext(ctx, &booking,
		`INSERT INTO bookings (ride_id, passenger_id, seats, luggage_count, payment_method, payment_intent_id, amount_cents)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
		 RETURNING `+bookingColumns,
		rideID, passengerID, seats, luggageCount, paymentMethod, paymentIntentID, amountCents,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *repository) GetBookingByID(ctx context.Context, id int) (*Booking, error) {
	var booking Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// MarkPaid promotes a freshly created booking to accepted/paid once the
// payment has settled.
func (r *repository) MarkPaid(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'accepted', payment_status = 'paid', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrBookingNotFound)
}

func (r *repository) MarkCancelled(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET status = 'cancelled', updated_at = NOW()
		 WHERE id = $1 AND status IN ('pending', 'accepted')`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlreadyCancelled)
}

// MarkRefunded is the idempotency gate for refunds: only the caller that
// wins the paid -> refunded flip performs the compensating money movement.
func (r *repository) MarkRefunded(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET payment_status = 'refunded', updated_at = NOW()
		 WHERE id = $1 AND payment_status = 'paid'`,
		id,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrAlreadyRefunded)
}

const bookingDetailColumns = `
	b.id, b.ride_id, b.passenger_id, b.seats, b.luggage_count, b.status, b.payment_status,
	b.payment_method, b.payment_intent_id, b.amount_cents, b.created_at, b.updated_at,
	r.origin, r.destination, r.departure_time, r.driver_id,
	u.name AS passenger_name, u.email AS passenger_email`

func (r *repository) GetUserBookings(ctx context.Context, passengerID int) ([]BookingWithDetails, error) {
	var bookings []BookingWithDetails
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingDetailColumns+`
		 FROM bookings b
		 JOIN rides r ON b.ride_id = r.id
		 JOIN users u ON b.passenger_id = u.id
		 WHERE b.passenger_id = $1
		 ORDER BY b.created_at DESC`,
		passengerID,
	)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) GetBookingsByRide(ctx context.Context, rideID int) ([]BookingWithDetails, error) {
	var bookings []BookingWithDetails
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingDetailColumns+`
		 FROM bookings b
		 JOIN rides r ON b.ride_id = r.id
		 JOIN users u ON b.passenger_id = u.id
		 WHERE b.ride_id = $1
		 ORDER BY b.created_at DESC`,
		rideID,
	)
	if err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *repository) ListActiveByRide(ctx context.Context, rideID int) ([]Booking, error) {
	var bookings []Booking
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingColumns+` FROM bookings
		 WHERE ride_id = $1 AND status IN ('pending', 'accepted')
		 ORDER BY created_at ASC`,
		rideID,
	)
	if err != nil {
		return nil, err
	}
	return bookings, nil
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

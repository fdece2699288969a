package ride

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	ErrRideNotFound  = errors.New("ride not found")
	ErrRideNotActive = errors.New("ride is not active")
)

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const rideColumns = `id, driver_id, origin, destination, departure_time, price_per_seat_cents, seats_total, seats_left, luggage_total, luggage_left, status, created_at`

func (r *repository) CreateRide(ctx context.Context, driverID int, origin, destination string, departureTime time.Time, pricePerSeatCents int64, seatsTotal, luggageTotal int) (*Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride,
		`INSERT INTO rides (driver_id, origin, destination, departure_time, price_per_seat_cents, seats_total, seats_left, luggage_total, luggage_left)
		 VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $7)
		 RETURNING `+rideColumns,
		driverID, origin, destination, departureTime, pricePerSeatCents, seatsTotal, luggageTotal,
	)
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func (r *repository) GetRideByID(ctx context.Context, id int) (*Ride, error) {
	var ride Ride
	err := r.db.GetContext(ctx, &ride, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRideNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ride, nil
}

func (r *repository) SearchRides(ctx context.Context, origin, destination string, from time.Time) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides,
		`SELECT `+rideColumns+`
		 FROM rides
		 WHERE status = 'active'
		   AND departure_time >= $1
		   AND ($2 = '' OR origin ILIKE $2)
		   AND ($3 = '' OR destination ILIKE $3)
		 ORDER BY departure_time ASC
		 LIMIT 100`,
		from, origin, destination,
	)
	if err != nil {
		return nil, err
	}
	return rides, nil
}

func (r *repository) GetRidesByDriver(ctx context.Context, driverID int) ([]Ride, error) {
	var rides []Ride
	err := r.db.SelectContext(ctx, &rides,
		`SELECT `+rideColumns+` FROM rides WHERE driver_id = $1 ORDER BY departure_time DESC`,
		driverID,
	)
	if err != nil {
		return nil, err
	}
	return rides, nil
}

// ReserveCapacity decrements seat and luggage counters in one guarded
// statement. Capacity is never read and then written in two steps; when the
// guard fails nothing is touched and the current availability is reported.
func (r *repository) ReserveCapacity(ctx context.Context, rideID, seats, luggage int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rides
		 SET seats_left = seats_left - $2, luggage_left = luggage_left - $3
		 WHERE id = $1 AND status = 'active' AND seats_left >= $2 AND luggage_left >= $3`,
		rideID, seats, luggage,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 1 {
		return nil
	}

	ride, err := r.GetRideByID(ctx, rideID)
	if err != nil {
		return err
	}
	if ride.Status != StatusActive {
		return ErrRideNotActive
	}
	return &CapacityError{
		SeatsRequested:   seats,
		SeatsLeft:        ride.SeatsLeft,
		LuggageRequested: luggage,
		LuggageLeft:      ride.LuggageLeft,
	}
}

// ReleaseCapacity is the symmetric guarded increment used on cancellation
// and rollback. The totals cap guards against corrupting the counters;
// callers are responsible for not releasing the same reservation twice.
func (r *repository) ReleaseCapacity(ctx context.Context, rideID, seats, luggage int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rides
		 SET seats_left = seats_left + $2, luggage_left = luggage_left + $3
		 WHERE id = $1 AND seats_left + $2 <= seats_total AND luggage_left + $3 <= luggage_total`,
		rideID, seats, luggage,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRideNotFound
	}
	return nil
}

// CancelRide flips an active ride to cancelled; only the owning driver may
// do it. Cascading cancellation of its bookings is the caller's job.
func (r *repository) CancelRide(ctx context.Context, rideID, driverID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE rides SET status = 'cancelled' WHERE id = $1 AND driver_id = $2 AND status = 'active'`,
		rideID, driverID,
	)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrRideNotActive
	}
	return nil
}

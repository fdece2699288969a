package request

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var (
	ErrRequestNotFound    = errors.New("request not found")
	ErrOfferNotFound      = errors.New("offer not found")
	ErrDuplicateOffer     = errors.New("driver already has an offer on this request")
	ErrOptimisticConflict = errors.New("offer no longer available")
	ErrRequestNotPending  = errors.New("request is not pending")
	ErrOfferNotPending    = errors.New("offer is not pending")
)

type Repository interface {
	CreateRequest(ctx context.Context, passengerID int, origin, destination string, departureTime time.Time, seats, luggageCount int) (*RideRequest, error)
	GetRequestByID(ctx context.Context, id int) (*RideRequest, error)
	ListOpen(ctx context.Context, from time.Time) ([]RideRequest, error)
	ListByPassenger(ctx context.Context, passengerID int) ([]RideRequest, error)
	CancelRequest(ctx context.Context, requestID, passengerID int) error
	AcceptRequestFlip(ctx context.Context, requestID, offerID, bookingID int) error

	CreateOffer(ctx context.Context, requestID, driverID, rideID int, pricePerSeatCents int64, message string) (*Offer, error)
	GetOfferByID(ctx context.Context, id int) (*Offer, error)
	ListOffersByRequest(ctx context.Context, requestID int) ([]Offer, error)
	ResolveOffers(ctx context.Context, requestID, acceptedOfferID int) error
	RejectOffer(ctx context.Context, offerID int) error
	RejectPendingOffers(ctx context.Context, requestID int) error
}

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

const requestColumns = `id, passenger_id, origin, destination, departure_time, seats, luggage_count, status, accepted_offer_id, booking_id, created_at, updated_at`
const offerColumns = `id, request_id, driver_id, ride_id, price_per_seat_cents, message, status, created_at`

func (r *repository) CreateRequest(ctx context.Context, passengerID int, origin, destination string, departureTime time.Time, seats, luggageCount int) (*RideRequest, error) {
	var req RideRequest
	err := r.db.GetContext(ctx, &req,
		`INSERT INTO ride_requests (passenger_id, origin, destination, departure_time, seats, luggage_count)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+requestColumns,
		passengerID, origin, destination, departureTime, seats, luggageCount,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) GetRequestByID(ctx context.Context, id int) (*RideRequest, error) {
	var req RideRequest
	err := r.db.GetContext(ctx, &req, `SELECT `+requestColumns+` FROM ride_requests WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *repository) ListOpen(ctx context.Context, from time.Time) ([]RideRequest, error) {
	var requests []RideRequest
	err := r.db.SelectContext(ctx, &requests,
		`SELECT `+requestColumns+`
		 FROM ride_requests
		 WHERE status = 'pending' AND departure_time >= $1
		 ORDER BY departure_time ASC
		 LIMIT 100`,
		from,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) ListByPassenger(ctx context.Context, passengerID int) ([]RideRequest, error) {
	var requests []RideRequest
	err := r.db.SelectContext(ctx, &requests,
		`SELECT `+requestColumns+` FROM ride_requests WHERE passenger_id = $1 ORDER BY created_at DESC`,
		passengerID,
	)
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *repository) CancelRequest(ctx context.Context, requestID, passengerID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ride_requests SET status = 'cancelled', updated_at = NOW()
		 WHERE id = $1 AND passenger_id = $2 AND status = 'pending'`,
		requestID, passengerID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrRequestNotPending)
}

// AcceptRequestFlip is the authoritative commit of an offer acceptance: a
// single conditional update that only one concurrent accept can win. Losing
// it means another accept raced ahead and this attempt must be unwound.
func (r *repository) AcceptRequestFlip(ctx context.Context, requestID, offerID, bookingID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE ride_requests
		 SET status = 'accepted', accepted_offer_id = $2, booking_id = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`,
		requestID, offerID, bookingID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrOptimisticConflict)
}

func (r *repository) CreateOffer(ctx context.Context, requestID, driverID, rideID int, pricePerSeatCents int64, message string) (*Offer, error) {
	var offer Offer
	err := r.db.GetContext(ctx, &offer,
		`INSERT INTO offers (request_id, driver_id, ride_id, price_per_seat_cents, message)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+offerColumns,
		requestID, driverID, rideID, pricePerSeatCents, message,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrDuplicateOffer
		}
		return nil, err
	}
	return &offer, nil
}

func (r *repository) GetOfferByID(ctx context.Context, id int) (*Offer, error) {
	var offer Offer
	err := r.db.GetContext(ctx, &offer, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, err
	}
	return &offer, nil
}

func (r *repository) ListOffersByRequest(ctx context.Context, requestID int) ([]Offer, error) {
	var offers []Offer
	err := r.db.SelectContext(ctx, &offers,
		`SELECT `+offerColumns+` FROM offers WHERE request_id = $1 ORDER BY created_at ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	return offers, nil
}

// ResolveOffers marks the accepted offer and auto-rejects every other offer
// on the request in one statement.
func (r *repository) ResolveOffers(ctx context.Context, requestID, acceptedOfferID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE offers
		 SET status = CASE WHEN id = $2 THEN 'accepted' ELSE 'rejected' END
		 WHERE request_id = $1`,
		requestID, acceptedOfferID,
	)
	return err
}

func (r *repository) RejectOffer(ctx context.Context, offerID int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE offers SET status = 'rejected' WHERE id = $1 AND status = 'pending'`,
		offerID,
	)
	if err != nil {
		return err
	}
	return requireRow(result, ErrOfferNotPending)
}

func (r *repository) RejectPendingOffers(ctx context.Context, requestID int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE offers SET status = 'rejected' WHERE request_id = $1 AND status = 'pending'`,
		requestID,
	)
	return err
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

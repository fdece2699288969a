package ride

import (
	"context"
	"time"
)

type Repository interface {
	CreateRide(ctx context.Context, driverID int, origin, destination string, departureTime time.Time, pricePerSeatCents int64, seatsTotal, luggageTotal int) (*Ride, error)
	GetRideByID(ctx context.Context, id int) (*Ride, error)
	SearchRides(ctx context.Context, origin, destination string, from time.Time) ([]Ride, error)
	GetRidesByDriver(ctx context.Context, driverID int) ([]Ride, error)
	ReserveCapacity(ctx context.Context, rideID, seats, luggage int) error
	ReleaseCapacity(ctx context.Context, rideID, seats, luggage int) error
	CancelRide(ctx context.Context, rideID, driverID int) error
}

package booking

import "context"

type Repository interface {
	CreateBooking(ctx context.Context, rideID, passengerID, seats, luggageCount int, paymentMethod, paymentIntentID string, amountCents int64) (*Booking, error)
	GetBookingByID(ctx context.Context, id int) (*Booking, error)
	MarkPaid(ctx context.Context, id int) error
	MarkCancelled(ctx context.Context, id int) error
	MarkRefunded(ctx context.Context, id int) error
	GetUserBookings(ctx context.Context, passengerID int) ([]BookingWithDetails, error)
	GetBookingsByRide(ctx context.Context, rideID int) ([]BookingWithDetails, error)
	ListActiveByRide(ctx context.Context, rideID int) ([]Booking, error)
}

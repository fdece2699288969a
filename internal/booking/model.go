package booking

import "time"

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Payment statuses.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

// Payment methods.
const (
	MethodWallet = "wallet"
	MethodCard   = "card"
)

type Booking struct {
	ID              int       `db:"id" json:"id"`
	RideID          int       `db:"ride_id" json:"ride_id"`
	PassengerID     int       `db:"passenger_id" json:"passenger_id"`
	Seats           int       `db:"seats" json:"seats"`
	LuggageCount    int       `db:"luggage_count" json:"luggage_count"`
	Status          string    `db:"status" json:"status"`
	PaymentStatus   string    `db:"payment_status" json:"payment_status"`
	PaymentMethod   string    `db:"payment_method" json:"payment_method"`
	PaymentIntentID *string   `db:"payment_intent_id" json:"payment_intent_id,omitempty"`
	AmountCents     int64     `db:"amount_cents" json:"amount_cents"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type BookingWithDetails struct {
	Booking
	Origin         string    `db:"origin" json:"origin"`
	Destination    string    `db:"destination" json:"destination"`
	DepartureTime  time.Time `db:"departure_time" json:"departure_time"`
	DriverID       int       `db:"driver_id" json:"driver_id"`
	PassengerName  string    `db:"passenger_name" json:"passenger_name"`
	PassengerEmail string    `db:"passenger_email" json:"passenger_email"`
}

type BookRideRequest struct {
	Seats           int    `json:"seats" binding:"required,min=1"`
	LuggageCount    int    `json:"luggage_count" binding:"min=0"`
	PaymentMethod   string `json:"payment_method" binding:"required,oneof=wallet card"`
	PaymentIntentID string `json:"payment_intent_id"`
}

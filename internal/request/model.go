package request

import "time"

// Request statuses.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Offer statuses.
const (
	OfferPending  = "pending"
	OfferAccepted = "accepted"
	OfferRejected = "rejected"
)

type RideRequest struct {
	ID              int       `db:"id" json:"id"`
	PassengerID     int       `db:"passenger_id" json:"passenger_id"`
	Origin          string    `db:"origin" json:"origin"`
	Destination     string    `db:"destination" json:"destination"`
	DepartureTime   time.Time `db:"departure_time" json:"departure_time"`
	Seats           int       `db:"seats" json:"seats"`
	LuggageCount    int       `db:"luggage_count" json:"luggage_count"`
	Status          string    `db:"status" json:"status"`
	AcceptedOfferID *int      `db:"accepted_offer_id" json:"accepted_offer_id,omitempty"`
	BookingID       *int      `db:"booking_id" json:"booking_id,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

type Offer struct {
	ID                int       `db:"id" json:"id"`
	RequestID         int       `db:"request_id" json:"request_id"`
	DriverID          int       `db:"driver_id" json:"driver_id"`
	RideID            int       `db:"ride_id" json:"ride_id"`
	PricePerSeatCents int64     `db:"price_per_seat_cents" json:"price_per_seat_cents"`
	Message           string    `db:"message" json:"message"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

type RequestWithOffers struct {
	RideRequest
	Offers []Offer `json:"offers"`
}

type CreateRequestRequest struct {
	Origin        string `json:"origin" binding:"required"`
	Destination   string `json:"destination" binding:"required"`
	DepartureTime string `json:"departure_time" binding:"required"`
	Seats         int    `json:"seats" binding:"required,min=1"`
	LuggageCount  int    `json:"luggage_count" binding:"min=0"`
}

type CreateOfferRequest struct {
	RideID            int    `json:"ride_id" binding:"required"`
	PricePerSeatCents int64  `json:"price_per_seat_cents" binding:"required,gt=0"`
	Message           string `json:"message" binding:"max=500"`
}

type AcceptOfferRequest struct {
	PaymentMethod   string `json:"payment_method" binding:"required,oneof=wallet card"`
	PaymentIntentID string `json:"payment_intent_id"`
}

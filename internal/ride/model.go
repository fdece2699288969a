package ride

import (
	"fmt"
	"time"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Ride struct {
	ID                int       `db:"id" json:"id"`
	DriverID          int       `db:"driver_id" json:"driver_id"`
	Origin            string    `db:"origin" json:"origin"`
	Destination       string    `db:"destination" json:"destination"`
	DepartureTime     time.Time `db:"departure_time" json:"departure_time"`
	PricePerSeatCents int64     `db:"price_per_seat_cents" json:"price_per_seat_cents"`
	SeatsTotal        int       `db:"seats_total" json:"seats_total"`
	SeatsLeft         int       `db:"seats_left" json:"seats_left"`
	LuggageTotal      int       `db:"luggage_total" json:"luggage_total"`
	LuggageLeft       int       `db:"luggage_left" json:"luggage_left"`
	Status            string    `db:"status" json:"status"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// CapacityError reports a reservation rejected for lack of seats or luggage
// space, carrying the availability at the time of the attempt.
type CapacityError struct {
	SeatsRequested   int
	SeatsLeft        int
	LuggageRequested int
	LuggageLeft      int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("not enough capacity: requested %d seats (%d left), %d luggage (%d left)",
		e.SeatsRequested, e.SeatsLeft, e.LuggageRequested, e.LuggageLeft)
}

type CreateRideRequest struct {
	Origin            string `json:"origin" binding:"required"`
	Destination       string `json:"destination" binding:"required"`
	DepartureTime     string `json:"departure_time" binding:"required"`
	PricePerSeatCents int64  `json:"price_per_seat_cents" binding:"required,gt=0"`
	SeatsTotal        int    `json:"seats_total" binding:"required,min=1"`
	LuggageTotal      int    `json:"luggage_total" binding:"min=0"`
}

package booking

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/farizadam/airport-app-sub000/internal/api"
	"github.com/farizadam/airport-app-sub000/internal/auth"
	"github.com/farizadam/airport-app-sub000/internal/ride"
	"github.com/farizadam/airport-app-sub000/internal/wallet"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// BookRide godoc
// @Summary      Book a ride
// @Description  Reserves seats and luggage space on a ride and settles payment immediately.
// @Tags         bookings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        rideID   path      int              true  "Ride ID"
// @Param        request  body      BookRideRequest  true  "Booking details"
// @Success      201      {object}  Booking
// @Failure      400      {object}  gin.H
// @Failure      402      {object}  gin.H
// @Failure      404      {object}  gin.H
// @Failure      409      {object}  gin.H
// @Router       /rides/{rideID}/book [post]
func (h *Handler) BookRide(c *gin.Context) {
	passengerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rideID, err := strconv.Atoi(c.Param("rideID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride ID"})
		return
	}

	var req BookRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": api.BindingErrors(err)})
		return
	}

	booking, err := h.svc.ReserveAndBook(c.Request.Context(), passengerID, rideID, req)
	if err != nil {
		h.writeBookingError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// CancelBooking godoc
// @Summary      Cancel booking
// @Description  Cancels the passenger's booking, releases capacity and refunds the net amount if paid.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        bookingID  path      int  true  "Booking ID"
// @Success      200        {object}  Booking
// @Failure      403        {object}  gin.H
// @Failure      404        {object}  gin.H
// @Failure      409        {object}  gin.H
// @Router       /bookings/{bookingID}/cancel [post]
func (h *Handler) CancelBooking(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := strconv.Atoi(c.Param("bookingID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid booking ID"})
		return
	}

	booking, err := h.svc.CancelBooking(c.Request.Context(), userID, bookingID)
	if err != nil {
		switch {
		case errors.Is(err, ErrBookingNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
		case errors.Is(err, ErrNotYourBooking):
			c.JSON(http.StatusForbidden, gin.H{"error": "You can only cancel your own bookings"})
		case errors.Is(err, ErrAlreadyCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": "Booking is already cancelled"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel booking"})
		}
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelRide godoc
// @Summary      Cancel ride
// @Description  Cancels the driver's ride and cascades cancellation and refunds to all its bookings.
// @Tags         rides
// @Security     BearerAuth
// @Produce      json
// @Param        rideID  path      int  true  "Ride ID"
// @Success      200     {object}  gin.H
// @Failure      404     {object}  gin.H
// @Failure      409     {object}  gin.H
// @Router       /rides/{rideID}/cancel [post]
func (h *Handler) CancelRide(c *gin.Context) {
	driverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rideID, err := strconv.Atoi(c.Param("rideID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride ID"})
		return
	}

	cancelled, err := h.svc.CancelRide(c.Request.Context(), driverID, rideID)
	if err != nil {
		switch {
		case errors.Is(err, ride.ErrRideNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
		case errors.Is(err, ride.ErrRideNotActive):
			c.JSON(http.StatusConflict, gin.H{"error": "Ride is not active"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel ride"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":            "ride cancelled",
		"bookings_cancelled": cancelled,
	})
}

// ListMyBookings godoc
// @Summary      List my bookings
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   BookingWithDetails
// @Failure      500  {object}  gin.H
// @Router       /bookings [get]
func (h *Handler) ListMyBookings(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookings, err := h.svc.GetUserBookings(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch bookings"})
		return
	}

	if bookings == nil {
		bookings = []BookingWithDetails{}
	}
	c.JSON(http.StatusOK, bookings)
}

// ListRideBookings godoc
// @Summary      List bookings on a ride
// @Description  Returns all bookings on one of the driver's rides.
// @Tags         bookings
// @Security     BearerAuth
// @Produce      json
// @Param        rideID  path      int  true  "Ride ID"
// @Success      200     {array}   BookingWithDetails
// @Failure      403     {object}  gin.H
// @Failure      404     {object}  gin.H
// @Router       /rides/{rideID}/bookings [get]
func (h *Handler) ListRideBookings(c *gin.Context) {
	driverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rideID, err := strconv.Atoi(c.Param("rideID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride ID"})
		return
	}

	bookings, err := h.svc.GetBookingsByRide(c.Request.Context(), driverID, rideID)
	if err != nil {
		switch {
		case errors.Is(err, ride.ErrRideNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
		case errors.Is(err, ErrNotYourRide):
			c.JSON(http.StatusForbidden, gin.H{"error": "You can only view bookings on your own rides"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch bookings"})
		}
		return
	}

	if bookings == nil {
		bookings = []BookingWithDetails{}
	}
	c.JSON(http.StatusOK, bookings)
}

func (h *Handler) writeBookingError(c *gin.Context, err error) {
	var capErr *ride.CapacityError
	var balErr *wallet.InsufficientBalanceError

	switch {
	case errors.As(err, &capErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":        "not enough capacity",
			"seats_left":   capErr.SeatsLeft,
			"luggage_left": capErr.LuggageLeft,
		})
	case errors.As(err, &balErr):
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":           "insufficient wallet balance",
			"required_cents":  balErr.RequiredCents,
			"available_cents": balErr.AvailableCents,
		})
	case errors.Is(err, ride.ErrRideNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
	case errors.Is(err, ride.ErrRideNotActive):
		c.JSON(http.StatusConflict, gin.H{"error": "Ride is not active"})
	case errors.Is(err, ErrOwnRide), errors.Is(err, ErrCardIntentNeeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create booking"})
	}
}

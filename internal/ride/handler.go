package ride

import (
	"net/http"
	"strconv"
	"time"

	"github.com/farizadam/airport-app-sub000/internal/api"
	"github.com/farizadam/airport-app-sub000/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{
		repo: NewRepository(db),
	}
}

func NewHandlerWithRepo(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// CreateRide godoc
// @Summary      Publish ride
// @Description  Creates a new ride offered by the authenticated driver.
// @Tags         rides
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateRideRequest  true  "Ride details"
// @Success      201      {object}  Ride
// @Failure      400      {object}  gin.H
// @Failure      500      {object}  gin.H
// @Router       /rides [post]
func (h *Handler) CreateRide(c *gin.Context) {
	driverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": api.BindingErrors(err)})
		return
	}

	departureTime, err := time.Parse(time.RFC3339, req.DepartureTime)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid departure_time format, use RFC3339"})
		return
	}
	if departureTime.Before(time.Now()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "departure_time must be in the future"})
		return
	}

	ride, err := h.repo.CreateRide(c.Request.Context(), driverID, req.Origin, req.Destination,
		departureTime, req.PricePerSeatCents, req.SeatsTotal, req.LuggageTotal)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create ride"})
		return
	}

	c.JSON(http.StatusCreated, ride)
}

// ListRides godoc
// @Summary      Search rides
// @Description  Returns active future rides matching the optional origin/destination filters.
// @Tags         rides
// @Security     BearerAuth
// @Produce      json
// @Param        origin       query     string  false  "Origin filter"
// @Param        destination  query     string  false  "Destination filter"
// @Success      200          {array}   Ride
// @Failure      500          {object}  gin.H
// @Router       /rides [get]
func (h *Handler) ListRides(c *gin.Context) {
	origin := c.Query("origin")
	destination := c.Query("destination")

	rides, err := h.repo.SearchRides(c.Request.Context(), origin, destination, time.Now())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch rides"})
		return
	}

	if rides == nil {
		rides = []Ride{}
	}
	c.JSON(http.StatusOK, rides)
}

// GetRide godoc
// @Summary      Get ride
// @Description  Returns a single ride with its current availability.
// @Tags         rides
// @Security     BearerAuth
// @Produce      json
// @Param        rideID  path      int  true  "Ride ID"
// @Success      200     {object}  Ride
// @Failure      404     {object}  gin.H
// @Router       /rides/{rideID} [get]
func (h *Handler) GetRide(c *gin.Context) {
	rideID, err := strconv.Atoi(c.Param("rideID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ride ID"})
		return
	}

	ride, err := h.repo.GetRideByID(c.Request.Context(), rideID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Ride not found"})
		return
	}

	c.JSON(http.StatusOK, ride)
}

// ListMyRides godoc
// @Summary      List my rides
// @Description  Returns rides published by the authenticated driver.
// @Tags         rides
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   Ride
// @Failure      500  {object}  gin.H
// @Router       /rides/mine [get]
func (h *Handler) ListMyRides(c *gin.Context) {
	driverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	rides, err := h.repo.GetRidesByDriver(c.Request.Context(), driverID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch rides"})
		return
	}

	if rides == nil {
		rides = []Ride{}
	}
	c.JSON(http.StatusOK, rides)
}

package request

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

// CreateRequest godoc
// @Summary      Post a ride request
// @Description  Creates a passenger request that drivers can offer on.
// @Tags         requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      CreateRequestRequest  true  "Request details"
// @Success      201      {object}  RideRequest
// @Failure      400      {object}  gin.H
// @Router       /requests [post]
func (h *Handler) CreateRequest(c *gin.Context) {
	passengerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req CreateRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": api.BindingErrors(err)})
		return
	}

	request, err := h.svc.CreateRequest(c.Request.Context(), passengerID, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, request)
}

// ListRequests godoc
// @Summary      List requests
// @Description  Drivers see open requests to offer on; passengers see their own requests.
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   RideRequest
// @Failure      500  {object}  gin.H
// @Router       /requests [get]
func (h *Handler) ListRequests(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var requests []RideRequest
	var err error
	if role, _ := auth.GetUserRole(c); role == auth.RoleDriver {
		requests, err = h.svc.ListOpenRequests(c.Request.Context())
	} else {
		requests, err = h.svc.ListMyRequests(c.Request.Context(), userID)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch requests"})
		return
	}

	if requests == nil {
		requests = []RideRequest{}
	}
	c.JSON(http.StatusOK, requests)
}

// GetRequest godoc
// @Summary      Get request with offers
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        requestID  path      int  true  "Request ID"
// @Success      200        {object}  RequestWithOffers
// @Failure      404        {object}  gin.H
// @Router       /requests/{requestID} [get]
func (h *Handler) GetRequest(c *gin.Context) {
	requestID, err := strconv.Atoi(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	request, err := h.svc.GetRequest(c.Request.Context(), requestID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		return
	}

	c.JSON(http.StatusOK, request)
}

// CancelRequest godoc
// @Summary      Cancel request
// @Tags         requests
// @Security     BearerAuth
// @Produce      json
// @Param        requestID  path      int  true  "Request ID"
// @Success      200        {object}  gin.H
// @Failure      404        {object}  gin.H
// @Failure      409        {object}  gin.H
// @Router       /requests/{requestID}/cancel [post]
func (h *Handler) CancelRequest(c *gin.Context) {
	passengerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	requestID, err := strconv.Atoi(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	if err := h.svc.CancelRequest(c.Request.Context(), passengerID, requestID); err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Request not found"})
		case errors.Is(err, ErrRequestNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": "Request is not pending"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to cancel request"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "request cancelled"})
}

// CreateOffer godoc
// @Summary      Offer on a request
// @Description  Creates a driver offer linking one of their active rides to the request.
// @Tags         offers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        requestID  path      int                 true  "Request ID"
// @Param        request    body      CreateOfferRequest  true  "Offer details"
// @Success      201        {object}  Offer
// @Failure      400        {object}  gin.H
// @Failure      403        {object}  gin.H
// @Failure      409        {object}  gin.H
// @Router       /requests/{requestID}/offers [post]
func (h *Handler) CreateOffer(c *gin.Context) {
	driverID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	requestID, err := strconv.Atoi(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}

	var req CreateOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": api.BindingErrors(err)})
		return
	}

	offer, err := h.svc.CreateOffer(c.Request.Context(), driverID, requestID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound), errors.Is(err, ride.ErrRideNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrDuplicateOffer), errors.Is(err, ErrRequestNotPending), errors.Is(err, ride.ErrRideNotActive):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNotYourRide), errors.Is(err, ErrOwnRequest):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create offer"})
		}
		return
	}

	c.JSON(http.StatusCreated, offer)
}

// AcceptOffer godoc
// @Summary      Accept an offer
// @Description  Reserves capacity, settles payment and commits the acceptance; exactly one offer per request can win.
// @Tags         offers
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        requestID  path      int                 true  "Request ID"
// @Param        offerID    path      int                 true  "Offer ID"
// @Param        request    body      AcceptOfferRequest  true  "Payment details"
// @Success      200        {object}  RideRequest
// @Failure      402        {object}  gin.H
// @Failure      409        {object}  gin.H
// @Router       /requests/{requestID}/offers/{offerID}/accept [post]
func (h *Handler) AcceptOffer(c *gin.Context) {
	passengerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	requestID, err := strconv.Atoi(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}
	offerID, err := strconv.Atoi(c.Param("offerID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer ID"})
		return
	}

	var req AcceptOfferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": api.BindingErrors(err)})
		return
	}

	request, err := h.svc.AcceptOffer(c.Request.Context(), passengerID, requestID, offerID, req)
	if err != nil {
		h.writeAcceptError(c, err)
		return
	}

	c.JSON(http.StatusOK, request)
}

// RejectOffer godoc
// @Summary      Reject an offer
// @Tags         offers
// @Security     BearerAuth
// @Produce      json
// @Param        requestID  path      int  true  "Request ID"
// @Param        offerID    path      int  true  "Offer ID"
// @Success      200        {object}  gin.H
// @Failure      404        {object}  gin.H
// @Failure      409        {object}  gin.H
// @Router       /requests/{requestID}/offers/{offerID}/reject [post]
func (h *Handler) RejectOffer(c *gin.Context) {
	passengerID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	requestID, err := strconv.Atoi(c.Param("requestID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request ID"})
		return
	}
	offerID, err := strconv.Atoi(c.Param("offerID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid offer ID"})
		return
	}

	if err := h.svc.RejectOffer(c.Request.Context(), passengerID, requestID, offerID); err != nil {
		switch {
		case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrOfferNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNotYourRequest):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, ErrOfferNotPending):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to reject offer"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "offer rejected"})
}

func (h *Handler) writeAcceptError(c *gin.Context, err error) {
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
	case errors.Is(err, ErrOptimisticConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "offer no longer available, refresh and retry"})
	case errors.Is(err, ErrRequestNotFound), errors.Is(err, ErrOfferNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, ErrNotYourRequest):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, ErrCardIntentNeeded):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept offer"})
	}
}

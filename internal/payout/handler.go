package payout

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/farizadam/airport-app-sub000/internal/api"
	"github.com/farizadam/airport-app-sub000/internal/auth"
	"github.com/farizadam/airport-app-sub000/internal/wallet"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	svc Service
}

func NewHandler(svc Service) *Handler {
	return &Handler{svc: svc}
}

// RequestWithdrawal godoc
// @Summary      Withdraw wallet balance
// @Description  Debits the wallet and starts a transfer to the driver's bank account. Always answers 202 while the transfer settles asynchronously.
// @Tags         payouts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      WithdrawalRequest  true  "Withdrawal details"
// @Success      202      {object}  Payout
// @Failure      402      {object}  gin.H
// @Failure      409      {object}  gin.H
// @Failure      502      {object}  gin.H
// @Router       /payouts [post]
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "details": api.BindingErrors(err)})
		return
	}

	p, err := h.svc.RequestWithdrawal(c.Request.Context(), userID, req)
	if err != nil {
		var balErr *wallet.InsufficientBalanceError
		switch {
		case errors.As(err, &balErr):
			c.JSON(http.StatusPaymentRequired, gin.H{
				"error":           "insufficient wallet balance",
				"required_cents":  balErr.RequiredCents,
				"available_cents": balErr.AvailableCents,
			})
		case errors.Is(err, ErrPendingPayoutExists):
			c.JSON(http.StatusConflict, gin.H{"error": "a withdrawal is already in progress"})
		case errors.Is(err, ErrWithdrawalFailed):
			// The wallet has been restored; no hint about remote state leaks out.
			c.JSON(http.StatusBadGateway, gin.H{"error": "withdrawal could not be completed, please try again"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to request withdrawal"})
		}
		return
	}

	c.JSON(http.StatusAccepted, p)
}

// ListPayouts godoc
// @Summary      List my payouts
// @Tags         payouts
// @Security     BearerAuth
// @Produce      json
// @Success      200  {array}   Payout
// @Failure      500  {object}  gin.H
// @Router       /payouts [get]
func (h *Handler) ListPayouts(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	payouts, err := h.svc.ListMyPayouts(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch payouts"})
		return
	}

	if payouts == nil {
		payouts = []Payout{}
	}
	c.JSON(http.StatusOK, payouts)
}

// GetPayout godoc
// @Summary      Get one payout
// @Tags         payouts
// @Security     BearerAuth
// @Produce      json
// @Param        payoutID  path      int  true  "Payout ID"
// @Success      200       {object}  Payout
// @Failure      403       {object}  gin.H
// @Failure      404       {object}  gin.H
// @Router       /payouts/{payoutID} [get]
func (h *Handler) GetPayout(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	payoutID, err := strconv.Atoi(c.Param("payoutID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payout ID"})
		return
	}

	p, err := h.svc.GetPayout(c.Request.Context(), userID, payoutID)
	if err != nil {
		switch {
		case errors.Is(err, ErrPayoutNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Payout not found"})
		case errors.Is(err, ErrNotYourPayout):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch payout"})
		}
		return
	}

	c.JSON(http.StatusOK, p)
}

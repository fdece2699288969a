package reconcile

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	sweeper *Sweeper
}

func NewHandler(sweeper *Sweeper) *Handler {
	return &Handler{sweeper: sweeper}
}

// Trigger godoc
// @Summary      Run a reconciliation sweep now
// @Description  Admin-only: runs one sweep over stuck payouts and returns what it resolved.
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Report
// @Failure      409  {object}  gin.H
// @Router       /admin/reconcile [post]
func (h *Handler) Trigger(c *gin.Context) {
	report, err := h.sweeper.Sweep(c.Request.Context())
	if err != nil {
		if errors.Is(err, ErrSweepInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation sweep failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

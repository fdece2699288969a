package notify

import (
	"net/http"
	"strconv"

	"github.com/farizadam/airport-app-sub000/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
)

type Handler struct {
	repo Repository
}

func NewHandler(db *sqlx.DB) *Handler {
	return &Handler{repo: NewRepository(db)}
}

func NewHandlerWithRepo(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// ListNotifications godoc
// @Summary      List notifications
// @Description  Returns the authenticated user's in-app notifications, newest first.
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query     int  false  "Page size"    default(20)
// @Param        offset  query     int  false  "Page offset"  default(0)
// @Success      200     {array}   Notification
// @Failure      500     {object}  gin.H
// @Router       /notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	notifications, err := h.repo.ListForUser(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch notifications"})
		return
	}

	if notifications == nil {
		notifications = []Notification{}
	}
	c.JSON(http.StatusOK, notifications)
}

// MarkNotificationRead godoc
// @Summary      Mark notification read
// @Tags         notifications
// @Security     BearerAuth
// @Produce      json
// @Param        notificationID  path      int  true  "Notification ID"
// @Success      200             {object}  gin.H
// @Failure      404             {object}  gin.H
// @Router       /notifications/{notificationID}/read [post]
func (h *Handler) MarkNotificationRead(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	notificationID, err := strconv.Atoi(c.Param("notificationID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification ID"})
		return
	}

	if err := h.repo.MarkRead(c.Request.Context(), notificationID, userID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "notification marked as read"})
}

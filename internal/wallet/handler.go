package wallet

import (
	"net/http"
	"strconv"

	"github.com/farizadam/airport-app-sub000/internal/auth"
	"github.com/farizadam/airport-app-sub000/internal/metrics"

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

type TopUpRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required,gt=0"`
}

// GetWallet godoc
// @Summary      Get wallet
// @Description  Returns the authenticated user's wallet, creating it on first access.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  Wallet
// @Failure      500  {object}  gin.H
// @Router       /wallet [get]
func (h *Handler) GetWallet(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	w, err := h.repo.GetOrCreateWallet(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet"})
		return
	}

	c.JSON(http.StatusOK, w)
}

// TopUp godoc
// @Summary      Top up wallet
// @Description  Adds funds to the authenticated user's wallet.
// @Tags         wallet
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        request  body      TopUpRequest  true  "Top up amount"
// @Success      200      {object}  gin.H
// @Failure      400      {object}  gin.H
// @Failure      500      {object}  gin.H
// @Router       /wallet/topup [post]
func (h *Handler) TopUp(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must be positive"})
		return
	}

	if _, err := h.repo.Credit(c.Request.Context(), userID, req.AmountCents, TxMeta{Type: TypeTopUp}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to top up wallet"})
		return
	}
	metrics.RecordWalletCredit(TypeTopUp)

	w, err := h.repo.GetOrCreateWallet(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load wallet after top up"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "wallet recharged",
		"wallet":  w,
	})
}

// ListTransactions godoc
// @Summary      List wallet transactions
// @Description  Returns the authenticated user's ledger entries, newest first.
// @Tags         wallet
// @Security     BearerAuth
// @Produce      json
// @Param        limit   query     int     false  "Page size"
// @Param        offset  query     int     false  "Page offset"
// @Param        type    query     string  false  "Filter by transaction type"
// @Success      200     {array}   Transaction
// @Failure      500     {object}  gin.H
// @Router       /wallet/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	typeFilter := c.Query("type")

	txs, err := h.repo.GetTransactions(c.Request.Context(), userID, limit, offset, typeFilter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch transactions"})
		return
	}

	if txs == nil {
		txs = []Transaction{}
	}
	c.JSON(http.StatusOK, txs)
}

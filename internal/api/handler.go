package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/gateway"
	"auction-service/internal/models"
	"auction-service/internal/service"
	"auction-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// LedgerReader exposes the ledger read side. Implemented by store.Store.
type LedgerReader interface {
	GetWallet(ctx context.Context, accountID int64) (*models.Wallet, error)
	GetTransactionsByAccount(ctx context.Context, accountID int64) ([]models.Transaction, error)
}

// PaymentEnqueuer hands verified callbacks to the reconcile worker.
// Implemented by broker.EventPublisher.
type PaymentEnqueuer interface {
	PublishPaymentEvent(ctx context.Context, event *models.PaymentEvent) error
}

// Handler contains HTTP handlers
type Handler struct {
	engine      *service.SessionEngine
	admission   *service.BidAdmission
	reconciler  *service.Reconciler
	ledger      LedgerReader
	payments    PaymentEnqueuer
	checksumKey string
	logger      *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	engine *service.SessionEngine,
	admission *service.BidAdmission,
	reconciler *service.Reconciler,
	ledger LedgerReader,
	payments PaymentEnqueuer,
	checksumKey string,
) *Handler {
	return &Handler{
		engine:      engine,
		admission:   admission,
		reconciler:  reconciler,
		ledger:      ledger,
		payments:    payments,
		checksumKey: checksumKey,
		logger:      util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/payments/callback", h.paymentCallback)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sessions", h.createSession)
		v1.GET("/sessions/:id", h.getSession)
		v1.POST("/sessions/:id/approve", h.approveSession)
		v1.POST("/sessions/:id/cancel", h.cancelSession)
		v1.POST("/sessions/:id/bids", h.submitBid)
		v1.GET("/sessions/:id/bids", h.listBids)
		v1.POST("/orders/topup", h.topUp)
		v1.GET("/orders", h.listOrders)
		v1.POST("/orders/:code/cancel", h.cancelOrder)
		v1.POST("/orders/:code/verify", h.verifyOrder)
		v1.GET("/wallets/:id", h.getWallet)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

type createSessionRequest struct {
	ListingID    int64     `json:"listing_id" binding:"required"`
	StartAt      time.Time `json:"start_at" binding:"required"`
	EndAt        time.Time `json:"end_at" binding:"required"`
	MinIncrement int64     `json:"min_increment" binding:"required"`
	BuyNowPrice  int64     `json:"buy_now_price"`
}

// createSession handles session scheduling for a verified listing
func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	session, err := h.engine.CreateSession(c.Request.Context(),
		req.ListingID, req.StartAt, req.EndAt, req.MinIncrement, req.BuyNowPrice)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// getSession handles session lookups
func (h *Handler) getSession(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	session, err := h.engine.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// approveSession handles the moderation approval transition
func (h *Handler) approveSession(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Approve(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": models.SessionStatusVerified})
}

// cancelSession handles explicit session cancellation
func (h *Handler) cancelSession(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	if err := h.engine.Cancel(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "status": models.SessionStatusCancelled})
}

type submitBidRequest struct {
	BidderID int64 `json:"bidder_id" binding:"required"`
	Amount   int64 `json:"amount"`
}

// submitBid handles bid submission
func (h *Handler) submitBid(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	var req submitBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	bid, err := h.admission.SubmitBid(c.Request.Context(), id, req.BidderID, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, bid)
}

// listBids returns a session's accepted bid history
func (h *Handler) listBids(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	bids, err := h.engine.GetBids(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session_id": id, "bids": bids})
}

type topUpRequest struct {
	PayerID     int64  `json:"payer_id" binding:"required"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
}

// topUp handles wallet top-up order creation
func (h *Handler) topUp(c *gin.Context) {
	var req topUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	order, err := h.reconciler.TopUp(c.Request.Context(), req.PayerID, req.Amount, req.Description)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, order)
}

// listOrders returns the orders of the payer named in the query string
func (h *Handler) listOrders(c *gin.Context) {
	payerID, err := strconv.ParseInt(c.Query("payer_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payer_id"})
		return
	}

	orders, err := h.reconciler.OrdersByPayer(c.Request.Context(), payerID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payer_id": payerID, "orders": orders})
}

// cancelOrder handles cancellation of a pending order
func (h *Handler) cancelOrder(c *gin.Context) {
	order, err := h.reconciler.Cancel(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// verifyOrder reports the current order status
func (h *Handler) verifyOrder(c *gin.Context) {
	order, err := h.reconciler.Verify(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, order)
}

// getWallet returns the balance and ledger history for an account
func (h *Handler) getWallet(c *gin.Context) {
	id, ok := h.pathID(c, "id")
	if !ok {
		return
	}

	wallet, err := h.ledger.GetWallet(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if wallet == nil {
		wallet = &models.Wallet{AccountID: id}
	}

	txs, err := h.ledger.GetTransactionsByAccount(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":       wallet,
		"transactions": txs,
	})
}

// paymentCallback receives the gateway's asynchronous outcome notification.
// The payload is verified and normalized at this boundary, then enqueued for
// the reconcile worker; the gateway only needs an acknowledgment.
func (h *Handler) paymentCallback(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read callback body"})
		return
	}

	event, err := gateway.ParseCallback(body, h.checksumKey)
	if err != nil {
		if errors.Is(err, auctionerrors.ErrInvalidSignature) {
			util.CallbacksRejectedTotal.WithLabelValues("invalid_signature").Inc()
			h.logger.Error("Callback signature verification failed, event dropped",
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		util.CallbacksRejectedTotal.WithLabelValues("malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "Malformed callback payload"})
		return
	}

	if err := h.payments.PublishPaymentEvent(c.Request.Context(), event); err != nil {
		h.logger.Error("Failed to enqueue payment event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to accept callback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *Handler) pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// respondError maps service errors onto HTTP statuses
func (h *Handler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auctionerrors.ErrUnknownSession),
		errors.Is(err, auctionerrors.ErrUnknownOrder):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, auctionerrors.ErrContention),
		errors.Is(err, auctionerrors.ErrSessionNotLive),
		errors.Is(err, auctionerrors.ErrOrderNotPending),
		errors.Is(err, auctionerrors.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auctionerrors.ErrBidTooLow),
		errors.Is(err, auctionerrors.ErrSelfOutbid),
		errors.Is(err, auctionerrors.ErrTooFrequent),
		errors.Is(err, auctionerrors.ErrInvalidAmount),
		errors.Is(err, auctionerrors.ErrInvalidWindow),
		errors.Is(err, auctionerrors.ErrAmountMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

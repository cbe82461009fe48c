package service

import (
	"context"
	"fmt"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/gateway"
	"auction-service/internal/models"
	"auction-service/internal/util"

	"go.uber.org/zap"
)

const lockAcquireRetries = 10

// Reconciler drives orders from pending to a terminal status strictly in
// response to PaymentEvents, mutating the ledger exactly once per applied
// event. Reconcile calls are linearized per order by a distributed lock;
// the status-guarded settle is the backstop once the dedup window evicts.
type Reconciler struct {
	orders      OrderStore
	dedup       Deduper
	locks       OrderLocker
	gateway     PaymentRequester
	publisher   NotificationPublisher
	logger      *zap.Logger
	dedupWindow time.Duration
	lockTTL     time.Duration
}

// NewReconciler creates a new order reconciler
func NewReconciler(
	orders OrderStore,
	dedup Deduper,
	locks OrderLocker,
	gw PaymentRequester,
	publisher NotificationPublisher,
	dedupWindow, lockTTL time.Duration,
) *Reconciler {
	return &Reconciler{
		orders:      orders,
		dedup:       dedup,
		locks:       locks,
		gateway:     gw,
		publisher:   publisher,
		logger:      util.GetLogger(),
		dedupWindow: dedupWindow,
		lockTTL:     lockTTL,
	}
}

// Reconcile applies a normalized PaymentEvent to its order.
//
// UnknownOrder, AmountMismatch and LateSettlement are terminal for the
// event: they are logged and must not be retried. Duplicate deliveries
// return nil without touching the ledger.
func (r *Reconciler) Reconcile(ctx context.Context, event *models.PaymentEvent) error {
	ctx, span := util.StartSpan(ctx, "Reconciler.Reconcile")
	defer span.End()

	start := time.Now()
	defer func() {
		util.ReconcileLatency.Observe(time.Since(start).Seconds())
	}()

	util.CallbacksTotal.WithLabelValues(event.Outcome).Inc()

	if event.Token != "" {
		seen, err := r.dedup.SeenToken(ctx, event.Token)
		if err != nil {
			return fmt.Errorf("failed to check idempotency token: %w", err)
		}
		if seen {
			util.CallbacksDedupedTotal.Inc()
			r.logger.Info("Duplicate callback dropped",
				zap.String("gateway_code", event.GatewayCode),
				zap.String("token", event.Token))
			return nil
		}
	}

	lockToken, err := r.acquireLock(ctx, event.GatewayCode)
	if err != nil {
		return err
	}
	defer func() {
		if err := r.locks.ReleaseOrderLock(ctx, event.GatewayCode, lockToken); err != nil {
			r.logger.Warn("Failed to release order lock",
				zap.String("gateway_code", event.GatewayCode),
				zap.Error(err))
		}
	}()

	order, err := r.orders.GetOrderByCode(ctx, event.GatewayCode)
	if err != nil {
		return fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		util.CallbacksRejectedTotal.WithLabelValues("unknown_order").Inc()
		r.logger.Warn("Callback for unknown order, likely stale or foreign",
			zap.String("gateway_code", event.GatewayCode))
		return auctionerrors.ErrUnknownOrder
	}

	if models.OrderTerminal(order.Status) {
		if event.Outcome == models.OutcomePaid && order.Status == models.OrderStatusCancelled {
			return r.flagLateSettlement(ctx, order, event)
		}
		r.logger.Info("Callback for settled order, idempotent no-op",
			zap.String("gateway_code", event.GatewayCode),
			zap.String("status", order.Status))
		r.markToken(ctx, event.Token)
		return nil
	}

	switch event.Outcome {
	case models.OutcomePaid:
		return r.applyPaid(ctx, order, event)
	case models.OutcomeCancelled:
		return r.applyTerminal(ctx, order, event, models.OrderStatusCancelled)
	case models.OutcomeFailed:
		return r.applyTerminal(ctx, order, event, models.OrderStatusFailed)
	default:
		return fmt.Errorf("unknown payment outcome: %s", event.Outcome)
	}
}

func (r *Reconciler) applyPaid(ctx context.Context, order *models.Order, event *models.PaymentEvent) error {
	if event.Amount != order.Amount {
		reason := fmt.Sprintf("amount mismatch: callback reported %d, order expects %d",
			event.Amount, order.Amount)
		if err := r.orders.FlagOrderReview(ctx, order.ID, reason); err != nil {
			return fmt.Errorf("failed to flag order for review: %w", err)
		}
		util.OrdersFlaggedTotal.WithLabelValues("amount_mismatch").Inc()
		r.logger.Error("Callback amount mismatch, order left pending for review",
			zap.String("gateway_code", order.GatewayCode),
			zap.Int64("reported", event.Amount),
			zap.Int64("expected", order.Amount))
		return auctionerrors.ErrAmountMismatch
	}

	method := gateway.DetectMethod(event.RawHint)

	// Auction settlements move funds from the winner to the platform;
	// top-ups move funds from the gateway clearing account to the payer.
	debitAccount, creditAccount := order.PayerID, models.PlatformAccountID
	if order.SessionID == 0 {
		debitAccount, creditAccount = models.PlatformAccountID, order.PayerID
	}

	applied, err := r.orders.SettleOrderPaid(ctx, order.ID, method, debitAccount, creditAccount, order.Amount)
	if err != nil {
		return fmt.Errorf("failed to settle order: %w", err)
	}
	if !applied {
		// A concurrent delivery won the status guard; the ledger already
		// carries this event's entries.
		r.markToken(ctx, event.Token)
		return nil
	}

	util.OrdersPaidTotal.Inc()
	util.LedgerEntriesTotal.Add(2)
	r.logger.Info("Order settled",
		zap.String("gateway_code", order.GatewayCode),
		zap.Int64("amount", order.Amount),
		zap.String("method", method))

	settled := &models.OrderSettledEvent{
		OrderCode: order.GatewayCode,
		PayerID:   order.PayerID,
		Amount:    order.Amount,
		Method:    method,
	}
	if err := r.publisher.PublishOrderSettled(ctx, settled); err != nil {
		r.logger.Error("Failed to publish OrderSettled event", zap.Error(err))
	}

	r.markToken(ctx, event.Token)
	return nil
}

func (r *Reconciler) applyTerminal(ctx context.Context, order *models.Order, event *models.PaymentEvent, status string) error {
	applied, err := r.orders.MarkOrderTerminal(ctx, order.ID, status)
	if err != nil {
		return fmt.Errorf("failed to mark order %s: %w", status, err)
	}
	if applied {
		switch status {
		case models.OrderStatusCancelled:
			util.OrdersCancelledTotal.Inc()
		case models.OrderStatusFailed:
			util.OrdersFailedTotal.WithLabelValues("gateway_callback").Inc()
		}
		r.logger.Info("Order closed by callback",
			zap.String("gateway_code", order.GatewayCode),
			zap.String("status", status))
	}
	r.markToken(ctx, event.Token)
	return nil
}

// flagLateSettlement handles a paid callback arriving after an optimistic
// cancellation. Escalated for manual resolution, never auto-credited.
func (r *Reconciler) flagLateSettlement(ctx context.Context, order *models.Order, event *models.PaymentEvent) error {
	reason := fmt.Sprintf("paid callback of %d arrived after cancellation", event.Amount)
	if err := r.orders.FlagOrderReview(ctx, order.ID, reason); err != nil {
		return fmt.Errorf("failed to flag late settlement: %w", err)
	}
	util.OrdersFlaggedTotal.WithLabelValues("late_settlement").Inc()
	r.logger.Error("Late settlement: paid callback for cancelled order",
		zap.String("gateway_code", order.GatewayCode),
		zap.Int64("amount", event.Amount))
	return auctionerrors.ErrLateSettlement
}

// TopUp creates a pending top-up order and requests a payment intent. The
// order is completed by Reconcile once the gateway callback arrives.
func (r *Reconciler) TopUp(ctx context.Context, payerID, amount int64, description string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.TopUp")
	defer span.End()

	if amount <= 0 {
		return nil, auctionerrors.ErrInvalidAmount
	}

	order := &models.Order{
		PayerID:     payerID,
		Amount:      amount,
		Status:      models.OrderStatusPending,
		GatewayCode: newOrderCode("TOP"),
		Description: description,
	}

	if err := r.orders.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create top-up order: %w", err)
	}
	util.OrdersCreatedTotal.Inc()

	if err := r.gateway.CreatePayment(ctx, order.GatewayCode, amount, description); err != nil {
		util.OrdersFailedTotal.WithLabelValues("gateway_create").Inc()
		if _, markErr := r.orders.MarkOrderTerminal(ctx, order.ID, models.OrderStatusFailed); markErr != nil {
			r.logger.Error("Failed to mark order failed", zap.Error(markErr))
		}
		return nil, fmt.Errorf("failed to create payment intent: %w", err)
	}

	r.logger.Info("Top-up order created",
		zap.String("gateway_code", order.GatewayCode),
		zap.Int64("payer_id", payerID),
		zap.Int64("amount", amount))
	return order, nil
}

// Cancel cancels a pending order optimistically and requests cancellation
// from the gateway. A late paid callback is caught by Reconcile as a
// LateSettlement.
func (r *Reconciler) Cancel(ctx context.Context, orderCode string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Reconciler.Cancel")
	defer span.End()

	order, err := r.orders.GetOrderByCode(ctx, orderCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		return nil, auctionerrors.ErrUnknownOrder
	}
	if order.Status != models.OrderStatusPending {
		return nil, auctionerrors.ErrOrderNotPending
	}

	applied, err := r.orders.MarkOrderTerminal(ctx, order.ID, models.OrderStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel order: %w", err)
	}
	if !applied {
		return nil, auctionerrors.ErrOrderNotPending
	}
	order.Status = models.OrderStatusCancelled
	util.OrdersCancelledTotal.Inc()

	if err := r.gateway.CancelPayment(ctx, orderCode); err != nil {
		r.logger.Warn("Failed to request gateway cancellation",
			zap.String("gateway_code", orderCode),
			zap.Error(err))
	}

	r.logger.Info("Order cancelled", zap.String("gateway_code", orderCode))
	return order, nil
}

// Verify reports the order's current status. Read-only: the callback is
// authoritative and no terminal status is ever synthesized here.
func (r *Reconciler) Verify(ctx context.Context, orderCode string) (*models.Order, error) {
	order, err := r.orders.GetOrderByCode(ctx, orderCode)
	if err != nil {
		return nil, fmt.Errorf("failed to look up order: %w", err)
	}
	if order == nil {
		return nil, auctionerrors.ErrUnknownOrder
	}
	return order, nil
}

// OrdersByPayer lists a payer's orders, newest first
func (r *Reconciler) OrdersByPayer(ctx context.Context, payerID int64) ([]models.Order, error) {
	orders, err := r.orders.GetOrdersByPayerID(ctx, payerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *Reconciler) acquireLock(ctx context.Context, orderCode string) (string, error) {
	for attempt := 0; attempt < lockAcquireRetries; attempt++ {
		token, ok, err := r.locks.AcquireOrderLock(ctx, orderCode, r.lockTTL)
		if err != nil {
			return "", fmt.Errorf("failed to acquire order lock: %w", err)
		}
		if ok {
			return token, nil
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("%w: order %s lock busy", auctionerrors.ErrContention, orderCode)
}

func (r *Reconciler) markToken(ctx context.Context, token string) {
	if token == "" {
		return
	}
	if err := r.dedup.MarkToken(ctx, token, r.dedupWindow); err != nil {
		r.logger.Warn("Failed to mark idempotency token", zap.Error(err))
	}
}

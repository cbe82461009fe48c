package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/models"
	"auction-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const transitionRetries = 3

// SessionEngine owns the auction session state machine. All session
// mutations go through the store's version-counter CAS so concurrent
// writers never clobber each other.
type SessionEngine struct {
	sessions      SessionStore
	orders        OrderStore
	gateway       PaymentRequester
	publisher     NotificationPublisher
	logger        *zap.Logger
	maxBidRetries int
	retryDelay    time.Duration
	now           func() time.Time
}

// NewSessionEngine creates a new session engine
func NewSessionEngine(
	sessions SessionStore,
	orders OrderStore,
	gateway PaymentRequester,
	publisher NotificationPublisher,
	maxBidRetries int,
) *SessionEngine {
	return &SessionEngine{
		sessions:      sessions,
		orders:        orders,
		gateway:       gateway,
		publisher:     publisher,
		logger:        util.GetLogger(),
		maxBidRetries: maxBidRetries,
		retryDelay:    10 * time.Millisecond,
		now:           time.Now,
	}
}

// CreateSession schedules a draft session for a verified listing
func (e *SessionEngine) CreateSession(ctx context.Context, listingID int64, start, end time.Time, minIncrement, buyNowPrice int64) (*models.AuctionSession, error) {
	ctx, span := util.StartSpan(ctx, "SessionEngine.CreateSession")
	defer span.End()

	if minIncrement <= 0 {
		return nil, fmt.Errorf("%w: min increment must be positive", auctionerrors.ErrInvalidAmount)
	}
	if buyNowPrice < 0 {
		return nil, fmt.Errorf("%w: buy-now price must not be negative", auctionerrors.ErrInvalidAmount)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end %s is not after start %s", auctionerrors.ErrInvalidWindow, end, start)
	}

	session := &models.AuctionSession{
		ListingID:    listingID,
		Status:       models.SessionStatusDraft,
		StartAt:      start,
		EndAt:        end,
		MinIncrement: minIncrement,
		BuyNowPrice:  buyNowPrice,
	}

	if err := e.sessions.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	util.SessionsCreatedTotal.Inc()
	e.logger.Info("Session created",
		zap.Int64("session_id", session.ID),
		zap.Int64("listing_id", listingID))
	return session, nil
}

// GetSession retrieves a session
func (e *SessionEngine) GetSession(ctx context.Context, id int64) (*models.AuctionSession, error) {
	session, err := e.sessions.GetSessionByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, auctionerrors.ErrUnknownSession
	}
	return session, nil
}

// GetBids returns a session's accepted bid history in sequence order
func (e *SessionEngine) GetBids(ctx context.Context, sessionID int64) ([]models.Bid, error) {
	session, err := e.sessions.GetSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, auctionerrors.ErrUnknownSession
	}
	return e.sessions.GetBidsBySessionID(ctx, sessionID)
}

// Approve moves a draft session to verified, triggered by external
// moderation
func (e *SessionEngine) Approve(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "SessionEngine.Approve")
	defer span.End()

	return e.transitionWithRetry(ctx, id, models.SessionStatusVerified, func(status string) bool {
		return status == models.SessionStatusDraft
	})
}

// Cancel moves a session to cancelled. Legal from draft, verified and live;
// pending bids are discarded and no order is created.
func (e *SessionEngine) Cancel(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "SessionEngine.Cancel")
	defer span.End()

	err := e.transitionWithRetry(ctx, id, models.SessionStatusCancelled, func(status string) bool {
		return !models.SessionTerminal(status)
	})
	if err != nil {
		return err
	}

	util.SessionsCancelledTotal.Inc()
	e.logger.Info("Session cancelled", zap.Int64("session_id", id))
	return nil
}

// transitionWithRetry performs a status transition guarded by the version
// counter, reloading and retrying a bounded number of times on CAS loss.
func (e *SessionEngine) transitionWithRetry(ctx context.Context, id int64, to string, allowed func(string) bool) error {
	for attempt := 0; attempt < transitionRetries; attempt++ {
		session, err := e.sessions.GetSessionByID(ctx, id)
		if err != nil {
			return err
		}
		if session == nil {
			return auctionerrors.ErrUnknownSession
		}
		if !allowed(session.Status) {
			return fmt.Errorf("%w: %s -> %s", auctionerrors.ErrInvalidTransition, session.Status, to)
		}

		ok, err := e.sessions.TransitionSession(ctx, id, session.Version, to)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return auctionerrors.ErrContention
}

// Activate moves a verified session to live at its start time. Safe to call
// from concurrent scheduler ticks: the version CAS lets exactly one tick
// perform the transition and the rest observe the new state and no-op.
func (e *SessionEngine) Activate(ctx context.Context, session *models.AuctionSession) error {
	if session.Status != models.SessionStatusVerified {
		return nil
	}

	ok, err := e.sessions.TransitionSession(ctx, session.ID, session.Version, models.SessionStatusLive)
	if err != nil {
		return fmt.Errorf("failed to activate session %d: %w", session.ID, err)
	}
	if ok {
		util.SessionsActivatedTotal.Inc()
		e.logger.Info("Session live", zap.Int64("session_id", session.ID))
	}
	return nil
}

// Close ends a live session. When a highest bid exists the winner's pending
// order is created in the same transaction as the state change. Idempotent:
// closing an already ended session is a no-op.
func (e *SessionEngine) Close(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "SessionEngine.Close")
	defer span.End()

	for attempt := 0; attempt < transitionRetries; attempt++ {
		session, err := e.sessions.GetSessionByID(ctx, id)
		if err != nil {
			return err
		}
		if session == nil {
			return auctionerrors.ErrUnknownSession
		}
		if session.Status == models.SessionStatusEnded {
			return nil
		}
		if session.Status != models.SessionStatusLive {
			return fmt.Errorf("%w: %s -> %s", auctionerrors.ErrInvalidTransition,
				session.Status, models.SessionStatusEnded)
		}

		var order *models.Order
		if session.HighestBidder != 0 {
			order = &models.Order{
				SessionID:   session.ID,
				PayerID:     session.HighestBidder,
				Amount:      session.HighestAmount,
				Status:      models.OrderStatusPending,
				GatewayCode: newOrderCode("AUC"),
				Description: fmt.Sprintf("Auction settlement for listing %d", session.ListingID),
			}
		}

		ok, err := e.sessions.CloseSessionWithOrder(ctx, session.ID, session.Version, order)
		if err != nil {
			return fmt.Errorf("failed to close session %d: %w", session.ID, err)
		}
		if !ok {
			continue
		}

		util.SessionsEndedTotal.Inc()
		e.logger.Info("Session ended",
			zap.Int64("session_id", session.ID),
			zap.Int64("winner_id", session.HighestBidder),
			zap.Int64("winning_amount", session.HighestAmount))

		ended := &models.SessionEndedEvent{
			SessionID: session.ID,
			ListingID: session.ListingID,
		}

		if order != nil {
			util.OrdersCreatedTotal.Inc()
			ended.WinnerID = order.PayerID
			ended.WinningAmount = order.Amount
			ended.OrderCode = order.GatewayCode

			if err := e.gateway.CreatePayment(ctx, order.GatewayCode, order.Amount, order.Description); err != nil {
				e.logger.Error("Failed to create payment intent for winner order",
					zap.String("order_code", order.GatewayCode),
					zap.Error(err))
				util.OrdersFailedTotal.WithLabelValues("gateway_create").Inc()
				if _, err := e.orders.MarkOrderTerminal(ctx, order.ID, models.OrderStatusFailed); err != nil {
					e.logger.Error("Failed to mark order failed", zap.Error(err))
				}
			}
		}

		if err := e.publisher.PublishSessionEnded(ctx, ended); err != nil {
			e.logger.Error("Failed to publish SessionEnded event", zap.Error(err))
		}
		return nil
	}

	return auctionerrors.ErrContention
}

// SubmitBid admits a bid against a live session. Losing writers retry
// against refreshed state up to a bounded number of attempts.
func (e *SessionEngine) SubmitBid(ctx context.Context, sessionID, bidderID, amount int64) (*models.Bid, error) {
	ctx, span := util.StartSpan(ctx, "SessionEngine.SubmitBid")
	defer span.End()

	start := time.Now()
	defer func() {
		util.BidSubmitLatency.Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; attempt < e.maxBidRetries; attempt++ {
		session, err := e.sessions.GetSessionByID(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session == nil {
			return nil, auctionerrors.ErrUnknownSession
		}

		now := e.now()
		if session.Status != models.SessionStatusLive || now.Before(session.StartAt) || now.After(session.EndAt) {
			util.BidsRejectedTotal.WithLabelValues("not_live").Inc()
			return nil, auctionerrors.ErrSessionNotLive
		}

		floor := session.HighestAmount + session.MinIncrement
		if amount < floor {
			util.BidsRejectedTotal.WithLabelValues("too_low").Inc()
			return nil, fmt.Errorf("%w: need at least %d, got %d", auctionerrors.ErrBidTooLow, floor, amount)
		}

		bid := &models.Bid{
			SessionID: sessionID,
			BidderID:  bidderID,
			Amount:    amount,
			Sequence:  session.BidSequence + 1,
			CreatedAt: now,
		}

		ok, err := e.sessions.UpdateHighestBid(ctx, session, bid)
		if err != nil {
			return nil, err
		}
		if !ok {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(e.retryDelay):
			}
			continue
		}

		util.BidsAcceptedTotal.Inc()

		if prev := session.HighestBidder; prev != 0 && prev != bidderID {
			outbid := &models.BidOutbidEvent{
				SessionID:      sessionID,
				OutbidBidderID: prev,
				NewAmount:      amount,
			}
			if err := e.publisher.PublishBidOutbid(ctx, outbid); err != nil {
				e.logger.Error("Failed to publish BidOutbid event", zap.Error(err))
			}
		}

		if session.BuyNowPrice > 0 && amount >= session.BuyNowPrice {
			if err := e.Close(ctx, sessionID); err != nil {
				e.logger.Error("Failed to close session on buy-now",
					zap.Int64("session_id", sessionID),
					zap.Error(err))
			}
		}

		return bid, nil
	}

	util.BidsRejectedTotal.WithLabelValues("contention").Inc()
	return nil, auctionerrors.ErrContention
}

// ActivateDue activates all verified sessions whose start time has passed
func (e *SessionEngine) ActivateDue(ctx context.Context, now time.Time) error {
	sessions, err := e.sessions.ListDueActivations(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due activations: %w", err)
	}
	for i := range sessions {
		if err := e.Activate(ctx, &sessions[i]); err != nil {
			e.logger.Error("Failed to activate session",
				zap.Int64("session_id", sessions[i].ID),
				zap.Error(err))
		}
	}
	return nil
}

// CloseDue ends all live sessions whose end time has passed
func (e *SessionEngine) CloseDue(ctx context.Context, now time.Time) error {
	sessions, err := e.sessions.ListDueExpiries(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list due expiries: %w", err)
	}
	for i := range sessions {
		if err := e.Close(ctx, sessions[i].ID); err != nil {
			e.logger.Error("Failed to close session",
				zap.Int64("session_id", sessions[i].ID),
				zap.Error(err))
		}
	}
	return nil
}

// newOrderCode generates a gateway order code
func newOrderCode(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.New().String()[:8]))
}

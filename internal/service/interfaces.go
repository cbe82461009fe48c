package service

import (
	"context"
	"time"

	"auction-service/internal/models"
)

// SessionStore is the persistence surface the session engine needs.
// Implemented by store.Store.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.AuctionSession) error
	GetSessionByID(ctx context.Context, id int64) (*models.AuctionSession, error)
	TransitionSession(ctx context.Context, id, version int64, to string) (bool, error)
	UpdateHighestBid(ctx context.Context, session *models.AuctionSession, bid *models.Bid) (bool, error)
	CloseSessionWithOrder(ctx context.Context, id, version int64, order *models.Order) (bool, error)
	ListDueActivations(ctx context.Context, now time.Time) ([]models.AuctionSession, error)
	ListDueExpiries(ctx context.Context, now time.Time) ([]models.AuctionSession, error)
	GetBidsBySessionID(ctx context.Context, sessionID int64) ([]models.Bid, error)
}

// OrderStore is the persistence surface the reconciler needs.
// Implemented by store.Store.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByCode(ctx context.Context, code string) (*models.Order, error)
	SettleOrderPaid(ctx context.Context, orderID int64, method string, debitAccount, creditAccount, amount int64) (bool, error)
	MarkOrderTerminal(ctx context.Context, orderID int64, status string) (bool, error)
	FlagOrderReview(ctx context.Context, orderID int64, reason string) error
	GetOrdersByPayerID(ctx context.Context, payerID int64) ([]models.Order, error)
}

// PaymentRequester sends outbound requests to the payment gateway.
// Implemented by gateway.Client.
type PaymentRequester interface {
	CreatePayment(ctx context.Context, orderCode string, amount int64, description string) error
	CancelPayment(ctx context.Context, orderCode string) error
}

// NotificationPublisher emits fire-and-forget domain events.
// Implemented by broker.EventPublisher.
type NotificationPublisher interface {
	PublishSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error
	PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error
	PublishBidOutbid(ctx context.Context, event *models.BidOutbidEvent) error
}

// Deduper tracks callback idempotency tokens within the dedup window.
// Implemented by redisclient.Client.
type Deduper interface {
	SeenToken(ctx context.Context, token string) (bool, error)
	MarkToken(ctx context.Context, token string, ttl time.Duration) error
}

// OrderLocker provides the per-order mutual exclusion that linearizes
// reconcile calls. Implemented by redisclient.Client.
type OrderLocker interface {
	AcquireOrderLock(ctx context.Context, orderCode string, ttl time.Duration) (string, bool, error)
	ReleaseOrderLock(ctx context.Context, orderCode, token string) error
}

// BidLimiter enforces one in-flight bid per bidder per session.
// Implemented by redisclient.Client.
type BidLimiter interface {
	ClaimBidSlot(ctx context.Context, sessionID, bidderID int64, ttl time.Duration) (bool, error)
	ReleaseBidSlot(ctx context.Context, sessionID, bidderID int64) error
}

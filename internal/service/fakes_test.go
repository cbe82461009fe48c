package service

import (
	"context"
	"sync"
	"time"

	"auction-service/internal/models"
)

// fakeStore is an in-memory stand-in for store.Store with the same CAS and
// status-guard semantics, shared by the engine and reconciler tests.
type fakeStore struct {
	mu          sync.Mutex
	sessions    map[int64]*models.AuctionSession
	bids        []models.Bid
	orders      map[int64]*models.Order
	codes       map[string]int64
	entries     []models.Transaction
	balances    map[int64]int64
	nextSession int64
	nextOrder   int64
	nextEntry   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[int64]*models.AuctionSession),
		orders:   make(map[int64]*models.Order),
		codes:    make(map[string]int64),
		balances: make(map[int64]int64),
	}
}

func (f *fakeStore) CreateSession(ctx context.Context, session *models.AuctionSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextSession++
	session.ID = f.nextSession
	session.Version = 1
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	copied := *session
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeStore) GetSessionByID(ctx context.Context, id int64) (*models.AuctionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (f *fakeStore) TransitionSession(ctx context.Context, id, version int64, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok || session.Version != version {
		return false, nil
	}
	session.Status = to
	session.Version++
	session.UpdatedAt = time.Now()
	return true, nil
}

func (f *fakeStore) UpdateHighestBid(ctx context.Context, session *models.AuctionSession, bid *models.Bid) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stored, ok := f.sessions[session.ID]
	if !ok || stored.Version != session.Version {
		return false, nil
	}
	stored.HighestAmount = bid.Amount
	stored.HighestBidder = bid.BidderID
	stored.BidSequence = bid.Sequence
	stored.Version++
	bid.ID = int64(len(f.bids) + 1)
	f.bids = append(f.bids, *bid)
	return true, nil
}

func (f *fakeStore) CloseSessionWithOrder(ctx context.Context, id, version int64, order *models.Order) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok || session.Version != version {
		return false, nil
	}
	session.Status = models.SessionStatusEnded
	session.Version++

	if order != nil {
		f.insertOrderLocked(order)
	}
	return true, nil
}

func (f *fakeStore) ListDueActivations(ctx context.Context, now time.Time) ([]models.AuctionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []models.AuctionSession
	for _, s := range f.sessions {
		if s.Status == models.SessionStatusVerified && !s.StartAt.After(now) {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (f *fakeStore) ListDueExpiries(ctx context.Context, now time.Time) ([]models.AuctionSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var due []models.AuctionSession
	for _, s := range f.sessions {
		if s.Status == models.SessionStatusLive && !s.EndAt.After(now) {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (f *fakeStore) insertOrderLocked(order *models.Order) {
	f.nextOrder++
	order.ID = f.nextOrder
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	copied := *order
	f.orders[order.ID] = &copied
	f.codes[order.GatewayCode] = order.ID
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.insertOrderLocked(order)
	return nil
}

func (f *fakeStore) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.codes[code]
	if !ok {
		return nil, nil
	}
	copied := *f.orders[id]
	return &copied, nil
}

func (f *fakeStore) SettleOrderPaid(ctx context.Context, orderID int64, method string, debitAccount, creditAccount, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = models.OrderStatusPaid
	order.Method = method
	f.appendEntryLocked(debitAccount, -amount, orderID)
	f.appendEntryLocked(creditAccount, amount, orderID)
	return true, nil
}

func (f *fakeStore) appendEntryLocked(accountID, amount, orderID int64) {
	f.nextEntry++
	f.balances[accountID] += amount
	f.entries = append(f.entries, models.Transaction{
		ID:           f.nextEntry,
		AccountID:    accountID,
		Amount:       amount,
		BalanceAfter: f.balances[accountID],
		OrderID:      orderID,
		CreatedAt:    time.Now(),
	})
}

func (f *fakeStore) MarkOrderTerminal(ctx context.Context, orderID int64, status string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok || order.Status != models.OrderStatusPending {
		return false, nil
	}
	order.Status = status
	return true, nil
}

func (f *fakeStore) FlagOrderReview(ctx context.Context, orderID int64, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if order, ok := f.orders[orderID]; ok {
		order.NeedsReview = true
		order.ReviewReason = reason
	}
	return nil
}

func (f *fakeStore) GetBidsBySessionID(ctx context.Context, sessionID int64) ([]models.Bid, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var bids []models.Bid
	for _, bid := range f.bids {
		if bid.SessionID == sessionID {
			bids = append(bids, bid)
		}
	}
	return bids, nil
}

func (f *fakeStore) GetOrdersByPayerID(ctx context.Context, payerID int64) ([]models.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var orders []models.Order
	for _, order := range f.orders {
		if order.PayerID == payerID {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (f *fakeStore) orderByCode(code string) *models.Order {
	f.mu.Lock()
	defer f.mu.Unlock()

	id, ok := f.codes[code]
	if !ok {
		return nil
	}
	copied := *f.orders[id]
	return &copied
}

func (f *fakeStore) ordersCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.orders)
}

func (f *fakeStore) allBids() []models.Bid {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Bid(nil), f.bids...)
}

func (f *fakeStore) ledger() ([]models.Transaction, map[int64]int64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	balances := make(map[int64]int64, len(f.balances))
	for k, v := range f.balances {
		balances[k] = v
	}
	return append([]models.Transaction(nil), f.entries...), balances
}

// fakePublisher records published notification events
type fakePublisher struct {
	mu      sync.Mutex
	ended   []models.SessionEndedEvent
	settled []models.OrderSettledEvent
	outbid  []models.BidOutbidEvent
}

func (p *fakePublisher) PublishSessionEnded(ctx context.Context, event *models.SessionEndedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ended = append(p.ended, *event)
	return nil
}

func (p *fakePublisher) PublishOrderSettled(ctx context.Context, event *models.OrderSettledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settled = append(p.settled, *event)
	return nil
}

func (p *fakePublisher) PublishBidOutbid(ctx context.Context, event *models.BidOutbidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outbid = append(p.outbid, *event)
	return nil
}

// fakeGateway records outbound gateway requests
type fakeGateway struct {
	mu        sync.Mutex
	created   []string
	cancelled []string
	createErr error
	cancelErr error
}

func (g *fakeGateway) CreatePayment(ctx context.Context, orderCode string, amount int64, description string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return g.createErr
	}
	g.created = append(g.created, orderCode)
	return nil
}

func (g *fakeGateway) CancelPayment(ctx context.Context, orderCode string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancelled = append(g.cancelled, orderCode)
	return nil
}

// fakeDeduper tracks idempotency tokens in memory
type fakeDeduper struct {
	mu     sync.Mutex
	tokens map[string]bool
}

func newFakeDeduper() *fakeDeduper {
	return &fakeDeduper{tokens: make(map[string]bool)}
}

func (d *fakeDeduper) SeenToken(ctx context.Context, token string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[token], nil
}

func (d *fakeDeduper) MarkToken(ctx context.Context, token string, ttl time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[token] = true
	return nil
}

// fakeLocker implements per-order locks with SETNX semantics
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]string)}
}

func (l *fakeLocker) AcquireOrderLock(ctx context.Context, orderCode string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.locks[orderCode]; held {
		return "", false, nil
	}
	token := orderCode + "-token"
	l.locks[orderCode] = token
	return token, true, nil
}

func (l *fakeLocker) ReleaseOrderLock(ctx context.Context, orderCode, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locks[orderCode] == token {
		delete(l.locks, orderCode)
	}
	return nil
}

// fakeLimiter implements the in-flight bid slot
type fakeLimiter struct {
	mu     sync.Mutex
	claims map[[2]int64]bool
	frozen bool // when set, claims are never released and new ones fail
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{claims: make(map[[2]int64]bool)}
}

func (l *fakeLimiter) ClaimBidSlot(ctx context.Context, sessionID, bidderID int64, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := [2]int64{sessionID, bidderID}
	if l.claims[key] {
		return false, nil
	}
	l.claims[key] = true
	return true, nil
}

func (l *fakeLimiter) ReleaseBidSlot(ctx context.Context, sessionID, bidderID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.frozen {
		delete(l.claims, [2]int64{sessionID, bidderID})
	}
	return nil
}

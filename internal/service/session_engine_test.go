package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	engine    *SessionEngine
	store     *fakeStore
	gateway   *fakeGateway
	publisher *fakePublisher
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()

	store := newFakeStore()
	gw := &fakeGateway{}
	pub := &fakePublisher{}
	engine := NewSessionEngine(store, store, gw, pub, 50)
	engine.retryDelay = time.Millisecond

	return &engineFixture{engine: engine, store: store, gateway: gw, publisher: pub}
}

func (f *engineFixture) liveSession(t *testing.T, minIncrement, buyNow int64) *models.AuctionSession {
	t.Helper()
	ctx := context.Background()

	session, err := f.engine.CreateSession(ctx, 42,
		time.Now().Add(-time.Minute), time.Now().Add(time.Hour), minIncrement, buyNow)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, session.ID))

	verified, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.NoError(t, f.engine.Activate(ctx, verified))

	live, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusLive, live.Status)
	return live
}

func TestCreateSession_Validation(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	start := time.Now()

	_, err := f.engine.CreateSession(ctx, 1, start, start.Add(time.Hour), 0, 0)
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidAmount)

	_, err = f.engine.CreateSession(ctx, 1, start, start.Add(-time.Hour), 10, 0)
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidWindow)

	session, err := f.engine.CreateSession(ctx, 1, start, start.Add(time.Hour), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusDraft, session.Status)
	assert.NotZero(t, session.ID)
}

func TestSubmitBid_IncrementRule(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	bid, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bid.Sequence)

	_, err = f.engine.SubmitBid(ctx, session.ID, 8, 105)
	assert.ErrorIs(t, err, auctionerrors.ErrBidTooLow)

	bid, err = f.engine.SubmitBid(ctx, session.ID, 8, 110)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bid.Sequence)

	refreshed, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(110), refreshed.HighestAmount)
	assert.Equal(t, int64(8), refreshed.HighestBidder)
}

func TestSubmitBid_SessionNotLive(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	session, err := f.engine.CreateSession(ctx, 1,
		time.Now().Add(-time.Minute), time.Now().Add(time.Hour), 10, 0)
	require.NoError(t, err)

	_, err = f.engine.SubmitBid(ctx, session.ID, 7, 100)
	assert.ErrorIs(t, err, auctionerrors.ErrSessionNotLive)
}

func TestSubmitBid_OutsideWindow(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	f.engine.now = func() time.Time { return session.EndAt.Add(time.Second) }

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	assert.ErrorIs(t, err, auctionerrors.ErrSessionNotLive)
}

func TestSubmitBid_UnknownSession(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.SubmitBid(context.Background(), 9999, 7, 100)
	assert.ErrorIs(t, err, auctionerrors.ErrUnknownSession)
}

func TestSubmitBid_PublishesOutbid(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)
	_, err = f.engine.SubmitBid(ctx, session.ID, 8, 110)
	require.NoError(t, err)

	require.Len(t, f.publisher.outbid, 1)
	assert.Equal(t, int64(7), f.publisher.outbid[0].OutbidBidderID)
	assert.Equal(t, int64(110), f.publisher.outbid[0].NewAmount)
}

func TestSubmitBid_Concurrent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	const bidders = 20
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			// Amounts spaced exactly one increment apart so the highest
			// amount always satisfies the floor and must win eventually.
			_, _ = f.engine.SubmitBid(ctx, session.ID, 100+n, 100+n*10)
		}(int64(i))
	}
	wg.Wait()

	refreshed, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100+(bidders-1)*10), refreshed.HighestAmount)

	bids := f.store.allBids()
	require.NotEmpty(t, bids)
	seen := make(map[int64]bool)
	var lastSeq, lastAmount int64
	for _, bid := range bids {
		assert.False(t, seen[bid.Sequence], "duplicate sequence %d", bid.Sequence)
		seen[bid.Sequence] = true
		assert.Equal(t, lastSeq+1, bid.Sequence, "sequence gap")
		assert.Greater(t, bid.Amount, lastAmount, "amounts must increase with sequence")
		lastSeq = bid.Sequence
		lastAmount = bid.Amount
	}
	assert.Equal(t, refreshed.BidSequence, lastSeq)
}

func TestGetBids(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)
	_, err = f.engine.SubmitBid(ctx, session.ID, 8, 110)
	require.NoError(t, err)

	bids, err := f.engine.GetBids(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)
	assert.Equal(t, int64(1), bids[0].Sequence)
	assert.Equal(t, int64(2), bids[1].Sequence)

	_, err = f.engine.GetBids(ctx, 9999)
	assert.ErrorIs(t, err, auctionerrors.ErrUnknownSession)
}

func TestClose_CreatesWinnerOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	require.NoError(t, f.engine.Close(ctx, session.ID))

	ended, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, ended.Status)

	require.Equal(t, 1, f.store.ordersCount())
	require.Len(t, f.publisher.ended, 1)
	event := f.publisher.ended[0]
	assert.Equal(t, int64(7), event.WinnerID)
	assert.Equal(t, int64(100), event.WinningAmount)

	order := f.store.orderByCode(event.OrderCode)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(7), order.PayerID)
	assert.Equal(t, int64(100), order.Amount)
	assert.Equal(t, session.ID, order.SessionID)

	require.Len(t, f.gateway.created, 1)
	assert.Equal(t, event.OrderCode, f.gateway.created[0])
}

func TestClose_NoBidsNoOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	require.NoError(t, f.engine.Close(ctx, session.ID))

	assert.Equal(t, 0, f.store.ordersCount())
	assert.Empty(t, f.gateway.created)
	require.Len(t, f.publisher.ended, 1)
	assert.Zero(t, f.publisher.ended[0].WinnerID)
}

func TestClose_Idempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	require.NoError(t, f.engine.Close(ctx, session.ID))
	require.NoError(t, f.engine.Close(ctx, session.ID))

	assert.Equal(t, 1, f.store.ordersCount())
	assert.Len(t, f.publisher.ended, 1)
}

func TestClose_ConcurrentTicks(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.engine.Close(ctx, session.ID))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, f.store.ordersCount())
	assert.Len(t, f.publisher.ended, 1)
}

func TestClose_GatewayFailureMarksOrderFailed(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)
	f.gateway.createErr = fmt.Errorf("gateway unreachable")

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)
	require.NoError(t, f.engine.Close(ctx, session.ID))

	require.Len(t, f.publisher.ended, 1)
	order := f.store.orderByCode(f.publisher.ended[0].OrderCode)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
}

func TestBuyNow_EndsSessionImmediately(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 500)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 500)
	require.NoError(t, err)

	ended, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, ended.Status)
	assert.Equal(t, 1, f.store.ordersCount())
}

func TestTerminalStatesAreAbsorbing(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	session := f.liveSession(t, 10, 0)
	require.NoError(t, f.engine.Close(ctx, session.ID))

	assert.ErrorIs(t, f.engine.Approve(ctx, session.ID), auctionerrors.ErrInvalidTransition)
	assert.ErrorIs(t, f.engine.Cancel(ctx, session.ID), auctionerrors.ErrInvalidTransition)

	ended, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.NoError(t, f.engine.Activate(ctx, ended))

	refreshed, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, refreshed.Status)

	cancelled, err := f.engine.CreateSession(ctx, 2,
		time.Now().Add(-time.Minute), time.Now().Add(time.Hour), 10, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.Cancel(ctx, cancelled.ID))

	assert.ErrorIs(t, f.engine.Cancel(ctx, cancelled.ID), auctionerrors.ErrInvalidTransition)
	err = f.engine.Close(ctx, cancelled.ID)
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidTransition)

	loaded, err := f.engine.GetSession(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.NoError(t, f.engine.Activate(ctx, loaded))

	refreshed, err = f.engine.GetSession(ctx, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, refreshed.Status)
}

func TestCancel_DiscardsBidsWithoutOrder(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := f.engine.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	require.NoError(t, f.engine.Cancel(ctx, session.ID))

	assert.Equal(t, 0, f.store.ordersCount())

	refreshed, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCancelled, refreshed.Status)
}

func TestScheduler_ActivateAndCloseDue(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	session, err := f.engine.CreateSession(ctx, 1,
		time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour), 10, 0)
	require.NoError(t, err)
	require.NoError(t, f.engine.Approve(ctx, session.ID))

	require.NoError(t, f.engine.ActivateDue(ctx, time.Now()))

	live, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusLive, live.Status)

	require.NoError(t, f.engine.CloseDue(ctx, time.Now()))

	ended, err := f.engine.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusEnded, ended.Status)
}

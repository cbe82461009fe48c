package service

import (
	"context"
	"testing"
	"time"

	"auction-service/internal/auctionerrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdmissionFixture(t *testing.T) (*BidAdmission, *engineFixture, *fakeLimiter) {
	t.Helper()
	f := newEngineFixture(t)
	limiter := newFakeLimiter()
	admission := NewBidAdmission(f.engine, limiter, 5*time.Second)
	return admission, f, limiter
}

func TestAdmission_InvalidAmount(t *testing.T) {
	admission, f, _ := newAdmissionFixture(t)
	session := f.liveSession(t, 10, 0)

	_, err := admission.SubmitBid(context.Background(), session.ID, 7, 0)
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidAmount)

	_, err = admission.SubmitBid(context.Background(), session.ID, 7, -50)
	assert.ErrorIs(t, err, auctionerrors.ErrInvalidAmount)
}

func TestAdmission_SelfOutbid(t *testing.T) {
	admission, f, _ := newAdmissionFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := admission.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	_, err = admission.SubmitBid(ctx, session.ID, 7, 200)
	assert.ErrorIs(t, err, auctionerrors.ErrSelfOutbid)

	_, err = admission.SubmitBid(ctx, session.ID, 8, 110)
	require.NoError(t, err)

	// No longer the highest bidder, so bidder 7 may raise again.
	_, err = admission.SubmitBid(ctx, session.ID, 7, 120)
	assert.NoError(t, err)
}

func TestAdmission_TooFrequent(t *testing.T) {
	admission, f, limiter := newAdmissionFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	claimed, err := limiter.ClaimBidSlot(ctx, session.ID, 7, time.Second)
	require.NoError(t, err)
	require.True(t, claimed)

	_, err = admission.SubmitBid(ctx, session.ID, 7, 100)
	assert.ErrorIs(t, err, auctionerrors.ErrTooFrequent)
}

func TestAdmission_ReleasesSlotAfterBid(t *testing.T) {
	admission, f, limiter := newAdmissionFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := admission.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	claimed, err := limiter.ClaimBidSlot(ctx, session.ID, 7, time.Second)
	require.NoError(t, err)
	assert.True(t, claimed, "slot must be released when the bid resolves")
}

func TestAdmission_SlotHeldWhileInflight(t *testing.T) {
	admission, f, limiter := newAdmissionFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)
	limiter.frozen = true

	_, err := admission.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	_, err = admission.SubmitBid(ctx, session.ID, 7, 200)
	assert.ErrorIs(t, err, auctionerrors.ErrTooFrequent)
}

func TestAdmission_EngineErrorsPassThrough(t *testing.T) {
	admission, f, _ := newAdmissionFixture(t)
	ctx := context.Background()
	session := f.liveSession(t, 10, 0)

	_, err := admission.SubmitBid(ctx, session.ID, 7, 100)
	require.NoError(t, err)

	_, err = admission.SubmitBid(ctx, session.ID, 8, 105)
	assert.ErrorIs(t, err, auctionerrors.ErrBidTooLow)

	_, err = admission.SubmitBid(ctx, 9999, 8, 100)
	assert.ErrorIs(t, err, auctionerrors.ErrUnknownSession)

	require.NoError(t, f.engine.Close(ctx, session.ID))
	_, err = admission.SubmitBid(ctx, session.ID, 8, 200)
	assert.ErrorIs(t, err, auctionerrors.ErrSessionNotLive)
}

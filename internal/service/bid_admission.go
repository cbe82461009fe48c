package service

import (
	"context"
	"time"

	"auction-service/internal/auctionerrors"
	"auction-service/internal/models"
	"auction-service/internal/util"

	"go.uber.org/zap"
)

// BidAdmission is the validation and serialization layer in front of the
// session engine. It rejects malformed amounts, self-outbidding and bidders
// with a bid already in flight, then delegates the state transition.
type BidAdmission struct {
	engine      *SessionEngine
	limiter     BidLimiter
	logger      *zap.Logger
	inflightTTL time.Duration
}

// NewBidAdmission creates a new bid admission controller
func NewBidAdmission(engine *SessionEngine, limiter BidLimiter, inflightTTL time.Duration) *BidAdmission {
	return &BidAdmission{
		engine:      engine,
		limiter:     limiter,
		logger:      util.GetLogger(),
		inflightTTL: inflightTTL,
	}
}

// SubmitBid validates a bid submission and delegates it to the engine.
// Engine errors (SessionNotLive, BidTooLow, Contention) pass through
// unchanged.
func (a *BidAdmission) SubmitBid(ctx context.Context, sessionID, bidderID, amount int64) (*models.Bid, error) {
	ctx, span := util.StartSpan(ctx, "BidAdmission.SubmitBid")
	defer span.End()

	if amount <= 0 {
		util.BidsRejectedTotal.WithLabelValues("invalid_amount").Inc()
		return nil, auctionerrors.ErrInvalidAmount
	}

	ok, err := a.limiter.ClaimBidSlot(ctx, sessionID, bidderID, a.inflightTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		util.BidsRejectedTotal.WithLabelValues("too_frequent").Inc()
		return nil, auctionerrors.ErrTooFrequent
	}
	defer func() {
		if err := a.limiter.ReleaseBidSlot(ctx, sessionID, bidderID); err != nil {
			a.logger.Warn("Failed to release bid slot",
				zap.Int64("session_id", sessionID),
				zap.Int64("bidder_id", bidderID),
				zap.Error(err))
		}
	}()

	session, err := a.engine.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.HighestBidder == bidderID {
		util.BidsRejectedTotal.WithLabelValues("self_outbid").Inc()
		return nil, auctionerrors.ErrSelfOutbid
	}

	return a.engine.SubmitBid(ctx, sessionID, bidderID, amount)
}

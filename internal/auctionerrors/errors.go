package auctionerrors

import "errors"

// Validation errors - rejected synchronously, nothing mutated
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidWindow = errors.New("session window is invalid")
	ErrBidTooLow     = errors.New("bid amount too low")
	ErrSelfOutbid    = errors.New("bidder already holds the highest bid")
	ErrTooFrequent   = errors.New("bidder already has a bid in flight")
)

// Conflict errors - retried internally before surfacing
var (
	ErrContention        = errors.New("too much contention on session")
	ErrSessionNotLive    = errors.New("session is not live")
	ErrOrderNotPending   = errors.New("order is not pending")
	ErrInvalidTransition = errors.New("invalid session transition")
)

// Lookup errors
var (
	ErrUnknownSession = errors.New("session not found")
	ErrUnknownOrder   = errors.New("order not found")
)

// Consistency errors - never auto-resolved, order left for manual review
var (
	ErrAmountMismatch = errors.New("callback amount does not match order")
	ErrLateSettlement = errors.New("paid callback arrived for a cancelled order")
)

// Security errors - event dropped, no retry
var (
	ErrInvalidSignature = errors.New("callback signature verification failed")
)

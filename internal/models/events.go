package models

import "time"

// Event types
const (
	EventTypePaymentCallback = "PAYMENT_CALLBACK"
	EventTypeSessionEnded    = "SESSION_ENDED"
	EventTypeOrderSettled    = "ORDER_SETTLED"
	EventTypeBidOutbid       = "BID_OUTBID"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PaymentCallbackEvent carries a normalized gateway callback from the HTTP
// edge to the reconcile worker
type PaymentCallbackEvent struct {
	BaseEvent
	Payment PaymentEvent `json:"payment"`
}

// SessionEndedEvent published when a session reaches ENDED
type SessionEndedEvent struct {
	BaseEvent
	SessionID     int64  `json:"session_id"`
	ListingID     int64  `json:"listing_id"`
	WinnerID      int64  `json:"winner_id,omitempty"`
	WinningAmount int64  `json:"winning_amount,omitempty"`
	OrderCode     string `json:"order_code,omitempty"`
}

// OrderSettledEvent published when an order reaches PAID
type OrderSettledEvent struct {
	BaseEvent
	OrderCode string `json:"order_code"`
	PayerID   int64  `json:"payer_id"`
	Amount    int64  `json:"amount"`
	Method    string `json:"method"`
}

// BidOutbidEvent published to notify the previous highest bidder
type BidOutbidEvent struct {
	BaseEvent
	SessionID      int64 `json:"session_id"`
	OutbidBidderID int64 `json:"outbid_bidder_id"`
	NewAmount      int64 `json:"new_amount"`
}

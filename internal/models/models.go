package models

import "time"

// AuctionSession represents a time-boxed auction for one listing
type AuctionSession struct {
	ID            int64     `db:"id" json:"id"`
	ListingID     int64     `db:"listing_id" json:"listing_id"`
	Status        string    `db:"status" json:"status"`
	StartAt       time.Time `db:"start_at" json:"start_at"`
	EndAt         time.Time `db:"end_at" json:"end_at"`
	MinIncrement  int64     `db:"min_increment" json:"min_increment"`
	BuyNowPrice   int64     `db:"buy_now_price" json:"buy_now_price,omitempty"`
	HighestAmount int64     `db:"highest_amount" json:"highest_amount"`
	HighestBidder int64     `db:"highest_bidder" json:"highest_bidder,omitempty"`
	BidSequence   int64     `db:"bid_sequence" json:"bid_sequence"`
	Version       int64     `db:"version" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// Bid represents an accepted bid; immutable once recorded
type Bid struct {
	ID        int64     `db:"id" json:"id"`
	SessionID int64     `db:"session_id" json:"session_id"`
	BidderID  int64     `db:"bidder_id" json:"bidder_id"`
	Amount    int64     `db:"amount" json:"amount"`
	Sequence  int64     `db:"sequence" json:"sequence"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Order represents a payable obligation, from a settled auction or a top-up.
// SessionID is 0 for direct top-up orders.
type Order struct {
	ID           int64     `db:"id" json:"id"`
	SessionID    int64     `db:"session_id" json:"session_id,omitempty"`
	PayerID      int64     `db:"payer_id" json:"payer_id"`
	Amount       int64     `db:"amount" json:"amount"`
	Status       string    `db:"status" json:"status"`
	GatewayCode  string    `db:"gateway_code" json:"gateway_code"`
	Method       string    `db:"method" json:"method,omitempty"`
	Description  string    `db:"description" json:"description,omitempty"`
	NeedsReview  bool      `db:"needs_review" json:"needs_review"`
	ReviewReason string    `db:"review_reason" json:"review_reason,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Wallet holds the stored balance for an account. The balance must always
// equal the sum of the account's ledger transactions.
type Wallet struct {
	AccountID int64     `db:"account_id" json:"account_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Transaction is an append-only ledger entry
type Transaction struct {
	ID           int64     `db:"id" json:"id"`
	AccountID    int64     `db:"account_id" json:"account_id"`
	Amount       int64     `db:"amount" json:"amount"`
	BalanceAfter int64     `db:"balance_after" json:"balance_after"`
	OrderID      int64     `db:"order_id" json:"order_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// PaymentEvent is the normalized form of a gateway callback. Transient;
// deduplicated by Token within a bounded window, never persisted.
type PaymentEvent struct {
	GatewayCode string    `json:"gateway_code"`
	Amount      int64     `json:"amount"`
	Outcome     string    `json:"outcome"`
	RawHint     string    `json:"raw_hint"`
	Token       string    `json:"token"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Session statuses
const (
	SessionStatusDraft     = "DRAFT"
	SessionStatusVerified  = "VERIFIED"
	SessionStatusLive      = "LIVE"
	SessionStatusEnded     = "ENDED"
	SessionStatusCancelled = "CANCELLED"
)

// Order statuses
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusFailed    = "FAILED"
)

// Payment event outcomes
const (
	OutcomePaid      = "PAID"
	OutcomeCancelled = "CANCELLED"
	OutcomeFailed    = "FAILED"
)

// PlatformAccountID is the ledger account holding platform-side funds.
// Auction settlements credit it; top-ups draw against it as the gateway
// clearing account.
const PlatformAccountID int64 = 1

// SessionTerminal reports whether a session status is absorbing
func SessionTerminal(status string) bool {
	return status == SessionStatusEnded || status == SessionStatusCancelled
}

// OrderTerminal reports whether an order status is absorbing
func OrderTerminal(status string) bool {
	return status == OrderStatusPaid || status == OrderStatusCancelled || status == OrderStatusFailed
}

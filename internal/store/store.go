package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"auction-service/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// CreateSession inserts a new draft session
func (s *Store) CreateSession(ctx context.Context, session *models.AuctionSession) error {
	query := `
		INSERT INTO auction_sessions
			(listing_id, status, start_at, end_at, min_increment, buy_now_price, version)
		VALUES ($1, $2, $3, $4, $5, $6, 1)
		RETURNING id, version, created_at, updated_at`

	return s.db.GetContext(ctx, session, query,
		session.ListingID, session.Status, session.StartAt, session.EndAt,
		session.MinIncrement, session.BuyNowPrice)
}

// GetSessionByID retrieves a session, or nil if it does not exist
func (s *Store) GetSessionByID(ctx context.Context, id int64) (*models.AuctionSession, error) {
	var session models.AuctionSession
	err := s.db.GetContext(ctx, &session, "SELECT * FROM auction_sessions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// TransitionSession moves a session to a new status guarded by the version
// counter. Returns false when the version is stale and nothing was changed.
func (s *Store) TransitionSession(ctx context.Context, id, version int64, to string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE auction_sessions
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		to, id, version)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// UpdateHighestBid replaces the session's highest bid and records the bid row
// in one transaction, guarded by the version counter. Returns false when a
// concurrent writer won and the caller should retry against refreshed state.
func (s *Store) UpdateHighestBid(ctx context.Context, session *models.AuctionSession, bid *models.Bid) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auction_sessions
		SET highest_amount = $1, highest_bidder = $2, bid_sequence = $3,
		    version = version + 1, updated_at = NOW()
		WHERE id = $4 AND version = $5`,
		bid.Amount, bid.BidderID, bid.Sequence, session.ID, session.Version)
	if err != nil {
		return false, fmt.Errorf("failed to update highest bid: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	err = tx.GetContext(ctx, &bid.ID, `
		INSERT INTO bids (session_id, bidder_id, amount, sequence)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		bid.SessionID, bid.BidderID, bid.Amount, bid.Sequence)
	if err != nil {
		return false, fmt.Errorf("failed to record bid: %w", err)
	}

	return true, tx.Commit()
}

// CloseSessionWithOrder ends a session and, when a winning bid exists,
// creates the winner's pending order in the same transaction. Returns false
// when the version is stale (a concurrent tick already closed the session).
func (s *Store) CloseSessionWithOrder(ctx context.Context, id, version int64, order *models.Order) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE auction_sessions
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3`,
		models.SessionStatusEnded, id, version)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}

	if order != nil {
		err = tx.GetContext(ctx, order, `
			INSERT INTO orders (session_id, payer_id, amount, status, gateway_code, description)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id, created_at, updated_at`,
			order.SessionID, order.PayerID, order.Amount, order.Status,
			order.GatewayCode, order.Description)
		if err != nil {
			return false, fmt.Errorf("failed to create winner order: %w", err)
		}
	}

	return true, tx.Commit()
}

// ListDueActivations returns verified sessions whose start time has passed
func (s *Store) ListDueActivations(ctx context.Context, now time.Time) ([]models.AuctionSession, error) {
	var sessions []models.AuctionSession
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT * FROM auction_sessions
		WHERE status = $1 AND start_at <= $2
		ORDER BY start_at`,
		models.SessionStatusVerified, now)
	return sessions, err
}

// ListDueExpiries returns live sessions whose end time has passed
func (s *Store) ListDueExpiries(ctx context.Context, now time.Time) ([]models.AuctionSession, error) {
	var sessions []models.AuctionSession
	err := s.db.SelectContext(ctx, &sessions, `
		SELECT * FROM auction_sessions
		WHERE status = $1 AND end_at <= $2
		ORDER BY end_at`,
		models.SessionStatusLive, now)
	return sessions, err
}

// GetBidsBySessionID retrieves the accepted bid history for a session
func (s *Store) GetBidsBySessionID(ctx context.Context, sessionID int64) ([]models.Bid, error) {
	var bids []models.Bid
	err := s.db.SelectContext(ctx, &bids,
		"SELECT * FROM bids WHERE session_id = $1 ORDER BY sequence", sessionID)
	return bids, err
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"auction-service/internal/models"
)

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (session_id, payer_id, amount, status, gateway_code, description)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.SessionID, order.PayerID, order.Amount, order.Status,
		order.GatewayCode, order.Description)
}

// GetOrderByCode retrieves an order by gateway code, or nil if absent
func (s *Store) GetOrderByCode(ctx context.Context, code string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE gateway_code = $1", code)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// SettleOrderPaid marks a pending order paid and appends the matching
// debit/credit ledger pair in one transaction. Returns false when the order
// was no longer pending, in which case the ledger is untouched.
func (s *Store) SettleOrderPaid(ctx context.Context, orderID int64, method string, debitAccount, creditAccount, amount int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = $1, method = $2, updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.OrderStatusPaid, method, orderID, models.OrderStatusPending)
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

	if err := s.appendEntryTx(ctx, tx, debitAccount, -amount, orderID); err != nil {
		return false, fmt.Errorf("failed to append debit entry: %w", err)
	}
	if err := s.appendEntryTx(ctx, tx, creditAccount, amount, orderID); err != nil {
		return false, fmt.Errorf("failed to append credit entry: %w", err)
	}

	return true, tx.Commit()
}

// MarkOrderTerminal moves a pending order to a terminal status. Returns
// false when the order was no longer pending.
func (s *Store) MarkOrderTerminal(ctx context.Context, orderID int64, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = $3`,
		status, orderID, models.OrderStatusPending)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

// FlagOrderReview marks an order for manual review without changing status
func (s *Store) FlagOrderReview(ctx context.Context, orderID int64, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE orders SET needs_review = TRUE, review_reason = $1, updated_at = NOW()
		WHERE id = $2`,
		reason, orderID)
	return err
}

// GetOrdersByPayerID retrieves orders for a payer
func (s *Store) GetOrdersByPayerID(ctx context.Context, payerID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE payer_id = $1 ORDER BY created_at DESC", payerID)
	return orders, err
}

package store

import (
	"context"
	"database/sql"
	"fmt"

	"auction-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// appendEntryTx appends one ledger transaction inside an open database
// transaction. The wallet row is locked FOR UPDATE and the stored balance is
// read under that lock, never from a cache, so the running-balance snapshot
// and the balance update cannot race with a concurrent append.
func (s *Store) appendEntryTx(ctx context.Context, tx *sqlx.Tx, accountID, amount, orderID int64) error {
	var balance int64
	err := tx.GetContext(ctx, &balance,
		"SELECT balance FROM wallets WHERE account_id = $1 FOR UPDATE", accountID)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO wallets (account_id, balance) VALUES ($1, 0) ON CONFLICT (account_id) DO NOTHING",
			accountID); err != nil {
			return fmt.Errorf("failed to create wallet: %w", err)
		}
		err = tx.GetContext(ctx, &balance,
			"SELECT balance FROM wallets WHERE account_id = $1 FOR UPDATE", accountID)
	}
	if err != nil {
		return fmt.Errorf("failed to lock wallet: %w", err)
	}

	newBalance := balance + amount

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (account_id, amount, balance_after, order_id)
		VALUES ($1, $2, $3, $4)`,
		accountID, amount, newBalance, orderID)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE wallets SET balance = $1, updated_at = NOW() WHERE account_id = $2",
		newBalance, accountID)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}

	return nil
}

// GetWallet retrieves a wallet, or nil if the account has no entries yet
func (s *Store) GetWallet(ctx context.Context, accountID int64) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.GetContext(ctx, &wallet,
		"SELECT * FROM wallets WHERE account_id = $1", accountID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// GetTransactionsByAccount retrieves the ledger history for an account
func (s *Store) GetTransactionsByAccount(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.SelectContext(ctx, &txs,
		"SELECT * FROM transactions WHERE account_id = $1 ORDER BY id", accountID)
	return txs, err
}

// SumTransactionsByAccount returns the sum of all ledger amounts for an
// account. Must always equal the stored wallet balance.
func (s *Store) SumTransactionsByAccount(ctx context.Context, accountID int64) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum,
		"SELECT COALESCE(SUM(amount), 0) FROM transactions WHERE account_id = $1", accountID)
	return sum, err
}

package store

import (
	"context"
	"database/sql"
	"errors"

	"ticketing/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type WalletStore struct {
	db DB
}

// WalletBalanceSummary compares a wallet's stored coins with the sum of its
// completed ledger deltas. Difference must be zero.
type WalletBalanceSummary struct {
	WalletID        string `db:"wallet_id" json:"wallet_id"`
	UserID          string `db:"user_id" json:"user_id"`
	StoredCoins     int64  `db:"stored_coins" json:"stored_coins"`
	CalculatedCoins int64  `db:"calculated_coins" json:"calculated_coins"`
	Difference      int64  `db:"difference" json:"difference"`
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

// Ensure creates the user's wallet if it does not exist and returns it. The
// users row must already exist.
func (s *WalletStore) Ensure(ctx context.Context, tx Tx, userID string) (models.Wallet, error) {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.NewString(), userID); err != nil {
		return models.Wallet{}, err
	}
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `
		SELECT id, user_id, coins, total_spent, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`, userID)
	return wallet, err
}

func (s *WalletStore) GetByUser(ctx context.Context, userID string) (models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.GetContext(ctx, &wallet, `
		SELECT id, user_id, coins, total_spent, created_at, updated_at
		FROM wallets
		WHERE user_id = $1
	`, userID)
	return wallet, err
}

// Credit adds coins and spend to the wallet and returns it as updated.
// sql.ErrNoRows means the wallet does not exist.
func (s *WalletStore) Credit(ctx context.Context, tx Getter, userID string, coins int64, spent decimal.Decimal) (models.Wallet, error) {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `
		UPDATE wallets
		SET coins = coins + $1, total_spent = total_spent + $2, updated_at = NOW()
		WHERE user_id = $3
		RETURNING id, user_id, coins, total_spent, created_at, updated_at
	`, coins, spent, userID)
	return wallet, err
}

// Debit removes coins only when the balance covers them. ErrNoRowsAffected
// means the wallet is missing or short; callers disambiguate with Exists.
func (s *WalletStore) Debit(ctx context.Context, tx Getter, userID string, coins int64) (models.Wallet, error) {
	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `
		UPDATE wallets
		SET coins = coins - $1, updated_at = NOW()
		WHERE user_id = $2 AND coins >= $1
		RETURNING id, user_id, coins, total_spent, created_at, updated_at
	`, coins, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Wallet{}, ErrNoRowsAffected
	}
	return wallet, err
}

func (s *WalletStore) Exists(ctx context.Context, tx Getter, userID string) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM wallets WHERE user_id = $1)`, userID)
	return exists, err
}

func (s *WalletStore) Reconcile(ctx context.Context) ([]WalletBalanceSummary, error) {
	var rows []WalletBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id AS wallet_id,
		       w.user_id,
		       w.coins AS stored_coins,
		       COALESCE(SUM(t.coins) FILTER (WHERE t.status = 'completed'), 0) AS calculated_coins,
		       (w.coins - COALESCE(SUM(t.coins) FILTER (WHERE t.status = 'completed'), 0)) AS difference
		FROM wallets w
		LEFT JOIN wallet_transactions t ON t.wallet_id = w.id
		GROUP BY w.id, w.user_id, w.coins
		ORDER BY difference DESC, w.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

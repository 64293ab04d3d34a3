package store

import (
	"context"
	"fmt"

	"ticketing/internal/models"

	"github.com/shopspring/decimal"
)

type TransactionStore struct {
	db DB
}

type TransactionInput struct {
	ID          string
	WalletID    string
	Kind        models.TransactionKind
	Amount      decimal.Decimal
	Coins       int64
	PlatformFee decimal.Decimal
	Status      models.TransactionStatus
	PaymentID   *string
	OrderID     *string
	RefundOf    *string
	RequestKey  *string
	Details     string
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

// Create appends a ledger row. A row whose payment_id, refund_of or
// request_key is already recorded is skipped and reported as
// ErrAlreadyRecorded, so the unique index is the idempotency guard rather
// than a prior read.
func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	details := input.Details
	if details == "" {
		details = "{}"
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, wallet_id, kind, amount, coins, platform_fee, status, payment_id, order_id, refund_of, request_key, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT DO NOTHING
	`, input.ID, input.WalletID, input.Kind, input.Amount, input.Coins, input.PlatformFee,
		input.Status, input.PaymentID, input.OrderID, input.RefundOf, input.RequestKey, details)
	if err != nil {
		return err
	}
	affected, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrAlreadyRecorded
	}
	return nil
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error) {
	query := `
		SELECT t.id, t.wallet_id, t.kind, t.amount, t.coins, t.platform_fee, t.status,
		       t.payment_id, t.order_id, t.refund_of, t.details, t.created_at
		FROM wallet_transactions t
		JOIN wallets w ON w.id = t.wallet_id
		WHERE w.user_id = $1
	`
	args := []any{userID}
	if kind != "" {
		args = append(args, kind)
		query += fmt.Sprintf(" AND t.kind = $%d", len(args))
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY t.created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	var rows []models.Transaction
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

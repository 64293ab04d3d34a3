package store

import (
	"context"

	"ticketing/internal/models"
)

type OrderStore struct {
	db DB
}

func NewOrderStore(db DB) *OrderStore {
	return &OrderStore{db: db}
}

func (s *OrderStore) Create(ctx context.Context, order models.PaymentOrder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payment_orders (order_id, user_id, kind, amount, currency, event_id, quantity, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'created')
		ON CONFLICT (order_id) DO NOTHING
	`, order.OrderID, order.UserID, order.Kind, order.Amount, order.Currency, order.EventID, order.Quantity)
	return err
}

// Transition moves an order forward. Applied orders are terminal, so a late
// rejection cannot overwrite a successful application.
func (s *OrderStore) Transition(ctx context.Context, tx Execer, orderID string, status models.OrderStatus, paymentID string, reason *string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE payment_orders
		SET status = $1, payment_id = $2, failure_reason = $3, updated_at = NOW()
		WHERE order_id = $4 AND status <> 'applied'
	`, status, paymentID, reason, orderID)
	return err
}

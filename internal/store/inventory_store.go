package store

import (
	"context"
	"database/sql"
	"errors"

	"ticketing/internal/db"
	"ticketing/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type InventoryStore struct {
	db DB
}

type IssueInput struct {
	EventID   string
	Quantity  int
	BuyerID   string
	PaymentID string
	OrderID   string
	UnitPrice decimal.Decimal
	Amount    decimal.Decimal
}

// EventStockSummary checks that no ticket was fabricated or lost:
// Issued + Available must equal Initial.
type EventStockSummary struct {
	EventID   string `db:"event_id" json:"event_id"`
	Initial   int    `db:"initial_tickets" json:"initial_tickets"`
	Available int    `db:"available_tickets" json:"available_tickets"`
	Issued    int    `db:"issued" json:"issued"`
	Drift     int    `db:"drift" json:"drift"`
}

func NewInventoryStore(db DB) *InventoryStore {
	return &InventoryStore{db: db}
}

func (s *InventoryStore) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	var event models.Event
	err := s.db.GetContext(ctx, &event, `
		SELECT id, organizer_id, title, description, location, venue, category, price,
		       initial_tickets, available_tickets, pending_event_id, created_at
		FROM events
		WHERE id = $1
	`, eventID)
	return event, err
}

// ReserveAndIssue records the payment, takes quantity seats and writes one
// ticket per seat. It must run inside the caller's transaction so that any
// failure discards all three writes together. An unknown event has no seats
// and reports ErrNotEnoughStock.
func (s *InventoryStore) ReserveAndIssue(ctx context.Context, tx Execer, input IssueInput) ([]string, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_orders (payment_id, order_id, event_id, buyer_id, quantity, unit_price, amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (payment_id) DO NOTHING
	`, input.PaymentID, input.OrderID, input.EventID, input.BuyerID, input.Quantity, input.UnitPrice, input.Amount)
	if db.IsForeignKeyViolation(err) {
		return nil, ErrNotEnoughStock
	}
	if err != nil {
		return nil, err
	}
	if n, err := rowsAffected(res); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrAlreadyRecorded
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE events
		SET available_tickets = available_tickets - $1, updated_at = NOW()
		WHERE id = $2 AND available_tickets >= $1
	`, input.Quantity, input.EventID)
	if err != nil {
		return nil, err
	}
	if n, err := rowsAffected(res); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, ErrNotEnoughStock
	}

	ticketIDs := make([]string, 0, input.Quantity)
	for i := 0; i < input.Quantity; i++ {
		id := uuid.NewString()
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO tickets (id, event_id, buyer_id, payment_id, order_id, price, status)
			VALUES ($1, $2, $3, $4, $5, $6, 'confirmed')
		`, id, input.EventID, input.BuyerID, input.PaymentID, input.OrderID, input.UnitPrice); err != nil {
			return nil, err
		}
		ticketIDs = append(ticketIDs, id)
	}
	return ticketIDs, nil
}

func (s *InventoryStore) TicketIDsByPayment(ctx context.Context, paymentID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT id FROM tickets WHERE payment_id = $1 ORDER BY id`, paymentID)
	return ids, err
}

// Adjust applies an administrative correction, moving initial and available
// together. It refuses to push available below zero.
func (s *InventoryStore) Adjust(ctx context.Context, tx Getter, eventID string, delta int) (models.Event, error) {
	var event models.Event
	err := tx.GetContext(ctx, &event, `
		UPDATE events
		SET available_tickets = available_tickets + $1,
		    initial_tickets = initial_tickets + $1,
		    updated_at = NOW()
		WHERE id = $2 AND available_tickets + $1 >= 0
		RETURNING id, organizer_id, title, description, location, venue, category, price,
		          initial_tickets, available_tickets, pending_event_id, created_at
	`, delta, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrNoRowsAffected
	}
	return event, err
}

func (s *InventoryStore) CreateEvent(ctx context.Context, tx Execer, event models.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (id, organizer_id, title, description, location, venue, category, price,
		                    initial_tickets, available_tickets, pending_event_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, event.ID, event.OrganizerID, event.Title, event.Description, event.Location, event.Venue,
		event.Category, event.Price, event.InitialTickets, event.AvailableTickets, event.PendingEventID)
	return err
}

func (s *InventoryStore) Reconcile(ctx context.Context) ([]EventStockSummary, error) {
	var rows []EventStockSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT e.id AS event_id,
		       e.initial_tickets,
		       e.available_tickets,
		       COUNT(t.id) FILTER (WHERE t.status = 'confirmed') AS issued,
		       (e.initial_tickets - e.available_tickets - COUNT(t.id) FILTER (WHERE t.status = 'confirmed')) AS drift
		FROM events e
		LEFT JOIN tickets t ON t.event_id = e.id
		GROUP BY e.id, e.initial_tickets, e.available_tickets
		ORDER BY drift DESC, e.id
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

package store

import (
	"context"
	"fmt"

	"ticketing/internal/models"
)

type PendingEventStore struct {
	db DB
}

// pendingEventColumns maps a recommendation type to the draft column it
// overwrites. Anything not listed here cannot be written back.
var pendingEventColumns = map[models.RecommendationCategory]string{
	models.CategoryLocation: "location",
	models.CategoryVenue:    "venue",
	models.CategoryCategory: "category",
	models.CategoryTickets:  "total_tickets",
	models.CategoryPricing:  "price",
}

func NewPendingEventStore(db DB) *PendingEventStore {
	return &PendingEventStore{db: db}
}

func (s *PendingEventStore) Create(ctx context.Context, event models.PendingEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_events (id, owner_id, title, description, location, venue, category, price, total_tickets)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, event.ID, event.OwnerID, event.Title, event.Description, event.Location, event.Venue,
		event.Category, event.Price, event.TotalTickets)
	return err
}

func (s *PendingEventStore) GetByID(ctx context.Context, id string) (models.PendingEvent, error) {
	var event models.PendingEvent
	err := s.db.GetContext(ctx, &event, `
		SELECT id, owner_id, title, description, location, venue, category, price, total_tickets, status, event_id, created_at
		FROM pending_events
		WHERE id = $1
	`, id)
	return event, err
}

func (s *PendingEventStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.PendingEvent, error) {
	var event models.PendingEvent
	err := tx.GetContext(ctx, &event, `
		SELECT id, owner_id, title, description, location, venue, category, price, total_tickets, status, event_id, created_at
		FROM pending_events
		WHERE id = $1
		FOR UPDATE
	`, id)
	return event, err
}

// SetField writes value into the column named by field on a draft. Values are
// already validated and converted by the caller.
func (s *PendingEventStore) SetField(ctx context.Context, tx Execer, id string, field models.RecommendationCategory, value any) error {
	column, ok := pendingEventColumns[field]
	if !ok {
		return fmt.Errorf("pending event field %q is not writable", field)
	}
	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
		UPDATE pending_events
		SET %s = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'draft'
	`, column), value, id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

func (s *PendingEventStore) MarkFinalized(ctx context.Context, tx Execer, id, eventID string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE pending_events
		SET status = 'finalized', event_id = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'draft'
	`, eventID, id)
	if err != nil {
		return err
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNoRowsAffected
	}
	return nil
}

package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"ticketing/internal/db"
	"ticketing/internal/models"
	"ticketing/internal/store"

	"github.com/jmoiron/sqlx"
)

type InventoryAdmin interface {
	GetEvent(ctx context.Context, eventID string) (models.Event, error)
	Adjust(ctx context.Context, tx store.Getter, eventID string, delta int) (models.Event, error)
	Reconcile(ctx context.Context) ([]store.EventStockSummary, error)
}

type InventoryService struct {
	txRunner  db.TxRunner
	inventory InventoryAdmin
	audit     AuditStore
	logger    *slog.Logger
}

func NewInventoryService(txRunner db.TxRunner, inventory InventoryAdmin, audit AuditStore, logger *slog.Logger) *InventoryService {
	return &InventoryService{txRunner: txRunner, inventory: inventory, audit: audit, logger: logger}
}

func (s *InventoryService) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	event, err := s.inventory.GetEvent(ctx, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Event{}, ErrNotFound
	}
	return event, err
}

// AdjustInventory adds delta seats to an event, or removes them when delta
// is negative. Seats already sold cannot be removed.
func (s *InventoryService) AdjustInventory(ctx context.Context, adminID, eventID string, delta int) (models.Event, error) {
	if delta == 0 {
		return models.Event{}, ErrInvalidQuantity
	}
	var event models.Event
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		event, err = s.inventory.Adjust(ctx, tx, eventID, delta)
		if errors.Is(err, store.ErrNoRowsAffected) {
			if _, getErr := s.inventory.GetEvent(ctx, eventID); errors.Is(getErr, sql.ErrNoRows) {
				return ErrNotFound
			}
			return ErrInsufficientInventory
		}
		if err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "event.inventory_adjusted", "event", eventID, map[string]any{
			"delta":     delta,
			"available": event.AvailableTickets,
		})
	})
	if err != nil {
		return models.Event{}, err
	}
	s.logger.InfoContext(ctx, "inventory adjusted",
		slog.String("event_id", eventID),
		slog.Int("delta", delta),
		slog.Int("available", event.AvailableTickets),
	)
	return event, nil
}

func (s *InventoryService) Reconcile(ctx context.Context) ([]store.EventStockSummary, error) {
	return s.inventory.Reconcile(ctx)
}

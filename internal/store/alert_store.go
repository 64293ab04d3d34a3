package store

import (
	"context"

	"ticketing/internal/models"
)

type AlertStore struct {
	db DB
}

func NewAlertStore(db DB) *AlertStore {
	return &AlertStore{db: db}
}

// Insert records an operator alert. Redelivered queue messages carry the same
// source id and are dropped by the unique index.
func (s *AlertStore) Insert(ctx context.Context, alert models.Alert) (bool, error) {
	details := alert.Details
	if details == "" {
		details = "{}"
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ops_alerts (id, kind, message, details, source_message_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_message_id) DO NOTHING
	`, alert.ID, alert.Kind, alert.Message, details, alert.SourceMessageID)
	if err != nil {
		return false, err
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *AlertStore) ListOpen(ctx context.Context, limit int) ([]models.Alert, error) {
	var rows []models.Alert
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, kind, message, details::text AS details, source_message_id, created_at, resolved_at
		FROM ops_alerts
		WHERE resolved_at IS NULL
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

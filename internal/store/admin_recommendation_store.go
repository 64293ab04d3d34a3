package store

import (
	"context"

	"ticketing/internal/models"
)

type AdminRecommendationStore struct {
	db DB
}

func NewAdminRecommendationStore(db DB) *AdminRecommendationStore {
	return &AdminRecommendationStore{db: db}
}

func (s *AdminRecommendationStore) Create(ctx context.Context, tx Execer, rec models.AdminRecommendation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO admin_recommendations (id, pending_event_id, type, recommended_value, status, created_by)
		VALUES ($1, $2, $3, $4, 'pending', $5)
	`, rec.ID, rec.PendingEventID, rec.Type, rec.RecommendedValue, rec.CreatedBy)
	return err
}

func (s *AdminRecommendationStore) GetForUpdate(ctx context.Context, tx Getter, id string) (models.AdminRecommendation, error) {
	var rec models.AdminRecommendation
	err := tx.GetContext(ctx, &rec, `
		SELECT id, pending_event_id, event_id, type, recommended_value, status, admin_notes, created_by, created_at, decided_at
		FROM admin_recommendations
		WHERE id = $1
		FOR UPDATE
	`, id)
	return rec, err
}

func (s *AdminRecommendationStore) ListByPendingEvent(ctx context.Context, pendingEventID string) ([]models.AdminRecommendation, error) {
	var rows []models.AdminRecommendation
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, pending_event_id, event_id, type, recommended_value, status, admin_notes, created_by, created_at, decided_at
		FROM admin_recommendations
		WHERE pending_event_id = $1
		ORDER BY created_at
	`, pendingEventID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// Decide moves a pending row to approved or rejected. Rows already decided
// are left alone and reported as ErrNoRowsAffected.
func (s *AdminRecommendationStore) Decide(ctx context.Context, tx Execer, id string, status models.AdminRecommendationStatus, notes *string) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE admin_recommendations
		SET status = $1, admin_notes = $2, decided_at = NOW()
		WHERE id = $3 AND status = 'pending'
	`, status, notes, id)
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

func (s *AdminRecommendationStore) CountPending(ctx context.Context, tx Getter, pendingEventID string) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, `
		SELECT COUNT(1)
		FROM admin_recommendations
		WHERE pending_event_id = $1 AND status = 'pending'
	`, pendingEventID)
	return count, err
}

// Repoint moves every recommendation of a draft onto the event created from it.
func (s *AdminRecommendationStore) Repoint(ctx context.Context, tx Execer, pendingEventID, eventID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE admin_recommendations
		SET event_id = $1, pending_event_id = NULL
		WHERE pending_event_id = $2
	`, eventID, pendingEventID)
	if err != nil {
		return 0, err
	}
	return rowsAffected(res)
}

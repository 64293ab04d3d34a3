package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"

	"ticketing/internal/db"
	"ticketing/internal/models"
	"ticketing/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

type AdminRecommendationStore interface {
	Create(ctx context.Context, tx store.Execer, rec models.AdminRecommendation) error
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.AdminRecommendation, error)
	ListByPendingEvent(ctx context.Context, pendingEventID string) ([]models.AdminRecommendation, error)
	Decide(ctx context.Context, tx store.Execer, id string, status models.AdminRecommendationStatus, notes *string) error
	CountPending(ctx context.Context, tx store.Getter, pendingEventID string) (int, error)
	Repoint(ctx context.Context, tx store.Execer, pendingEventID, eventID string) (int64, error)
}

type EventCreator interface {
	CreateEvent(ctx context.Context, tx store.Execer, event models.Event) error
}

// AdjudicationService applies admin decisions to pending events and turns a
// fully decided pending event into a live event.
type AdjudicationService struct {
	txRunner        db.TxRunner
	pendingEvents   PendingEventStore
	recommendations AdminRecommendationStore
	events          EventCreator
	audit           AuditStore
	logger          *slog.Logger
}

func NewAdjudicationService(txRunner db.TxRunner, pendingEvents PendingEventStore, recommendations AdminRecommendationStore, events EventCreator, audit AuditStore, logger *slog.Logger) *AdjudicationService {
	return &AdjudicationService{
		txRunner:        txRunner,
		pendingEvents:   pendingEvents,
		recommendations: recommendations,
		events:          events,
		audit:           audit,
		logger:          logger,
	}
}

type DecisionResult struct {
	Recommendation models.AdminRecommendation `json:"recommendation"`
	EventID        *string                    `json:"event_id,omitempty"`
}

type PendingEventView struct {
	PendingEvent    models.PendingEvent          `json:"pending_event"`
	Recommendations []models.AdminRecommendation `json:"recommendations"`
}

// CreatePendingEvent stores an organizer's draft for admin review.
func (s *AdjudicationService) CreatePendingEvent(ctx context.Context, ownerID string, draft models.EventDraft) (models.PendingEvent, error) {
	title := strings.TrimSpace(draft.Title)
	if title == "" || draft.TotalTickets < 0 {
		return models.PendingEvent{}, ErrInvalidEventDraft
	}
	price := decimal.Zero
	if strings.TrimSpace(draft.Price) != "" {
		parsed, err := decimal.NewFromString(strings.TrimSpace(draft.Price))
		if err != nil || parsed.IsNegative() {
			return models.PendingEvent{}, ErrInvalidEventDraft
		}
		price = parsed
	}
	event := models.PendingEvent{
		ID:           uuid.NewString(),
		OwnerID:      ownerID,
		Title:        title,
		Description:  draft.Description,
		Location:     draft.Location,
		Venue:        draft.Venue,
		Category:     draft.Category,
		Price:        price,
		TotalTickets: draft.TotalTickets,
		Status:       models.PendingEventDraft,
	}
	if err := s.pendingEvents.Create(ctx, event); err != nil {
		return models.PendingEvent{}, err
	}
	return event, nil
}

// GetPendingEvent returns the draft with its recommendations. A non-empty
// ownerID restricts the lookup to that owner's drafts.
func (s *AdjudicationService) GetPendingEvent(ctx context.Context, ownerID, id string) (PendingEventView, error) {
	event, err := s.pendingEvents.GetByID(ctx, id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && ownerID != "" && event.OwnerID != ownerID) {
		return PendingEventView{}, ErrNotFound
	}
	if err != nil {
		return PendingEventView{}, err
	}
	recs, err := s.recommendations.ListByPendingEvent(ctx, id)
	if err != nil {
		return PendingEventView{}, err
	}
	return PendingEventView{PendingEvent: event, Recommendations: recs}, nil
}

func (s *AdjudicationService) CreateAdminRecommendation(ctx context.Context, adminID, pendingEventID string, kind models.RecommendationCategory, value string) (models.AdminRecommendation, error) {
	if !kind.Valid() {
		return models.AdminRecommendation{}, ErrInvalidCategory
	}
	if _, err := parseFieldValue(kind, value); err != nil {
		return models.AdminRecommendation{}, err
	}
	rec := models.AdminRecommendation{
		ID:               uuid.NewString(),
		PendingEventID:   &pendingEventID,
		Type:             kind,
		RecommendedValue: strings.TrimSpace(value),
		Status:           models.AdminRecommendationPending,
		CreatedBy:        adminID,
	}
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		pending, err := s.lockPendingEvent(ctx, tx, pendingEventID)
		if err != nil {
			return err
		}
		if pending.Status == models.PendingEventFinalized {
			return ErrPendingEventFinalized
		}
		if err := s.recommendations.Create(ctx, tx, rec); err != nil {
			return err
		}
		return s.audit.Log(ctx, tx, adminID, "admin_recommendation.created", "admin_recommendation", rec.ID, map[string]any{
			"pending_event_id": pendingEventID,
			"type":             string(kind),
			"value":            rec.RecommendedValue,
		})
	})
	if err != nil {
		return models.AdminRecommendation{}, err
	}
	return rec, nil
}

// Approve writes the recommended value onto the pending event and marks the
// recommendation approved. When it was the last undecided one, the pending
// event is finalized in the same transaction.
func (s *AdjudicationService) Approve(ctx context.Context, adminID, id string, notes *string) (DecisionResult, error) {
	var result DecisionResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result = DecisionResult{}
		rec, err := s.lockPendingRecommendation(ctx, tx, id)
		if err != nil {
			return err
		}
		if rec.PendingEventID == nil {
			return ErrPendingEventFinalized
		}
		pendingEventID := *rec.PendingEventID
		pending, err := s.lockPendingEvent(ctx, tx, pendingEventID)
		if err != nil {
			return err
		}
		if pending.Status == models.PendingEventFinalized {
			return ErrPendingEventFinalized
		}
		value, err := parseFieldValue(rec.Type, rec.RecommendedValue)
		if err != nil {
			return err
		}
		err = s.pendingEvents.SetField(ctx, tx, pendingEventID, rec.Type, value)
		if errors.Is(err, store.ErrNoRowsAffected) {
			return ErrPendingEventFinalized
		}
		if err != nil {
			return err
		}
		if err := s.decide(ctx, tx, adminID, &rec, models.AdminRecommendationApproved, notes); err != nil {
			return err
		}
		result.Recommendation = rec

		remaining, err := s.recommendations.CountPending(ctx, tx, pendingEventID)
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}
		pending, err = s.lockPendingEvent(ctx, tx, pendingEventID)
		if err != nil {
			return err
		}
		eventID, err := s.finalizeTx(ctx, tx, adminID, pending)
		if err != nil {
			return err
		}
		result.EventID = &eventID
		result.Recommendation.EventID = &eventID
		result.Recommendation.PendingEventID = nil
		return nil
	})
	if err != nil {
		return DecisionResult{}, err
	}
	s.logger.InfoContext(ctx, "admin recommendation approved",
		slog.String("recommendation_id", id),
		slog.String("admin_id", adminID),
		slog.Bool("finalized", result.EventID != nil),
	)
	return result, nil
}

// Reject marks the recommendation rejected without touching the pending
// event. It never finalizes.
func (s *AdjudicationService) Reject(ctx context.Context, adminID, id string, notes *string) (DecisionResult, error) {
	var result DecisionResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rec, err := s.lockPendingRecommendation(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := s.decide(ctx, tx, adminID, &rec, models.AdminRecommendationRejected, notes); err != nil {
			return err
		}
		result = DecisionResult{Recommendation: rec}
		return nil
	})
	if err != nil {
		return DecisionResult{}, err
	}
	s.logger.InfoContext(ctx, "admin recommendation rejected", slog.String("recommendation_id", id), slog.String("admin_id", adminID))
	return result, nil
}

// Finalize creates the live event for a pending event. Calling it again
// returns the event created the first time.
func (s *AdjudicationService) Finalize(ctx context.Context, adminID, pendingEventID string) (string, error) {
	var eventID string
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		pending, err := s.lockPendingEvent(ctx, tx, pendingEventID)
		if err != nil {
			return err
		}
		if pending.Status == models.PendingEventFinalized && pending.EventID != nil {
			eventID = *pending.EventID
			return nil
		}
		eventID, err = s.finalizeTx(ctx, tx, adminID, pending)
		return err
	})
	if err != nil {
		return "", err
	}
	return eventID, nil
}

func (s *AdjudicationService) finalizeTx(ctx context.Context, tx *sqlx.Tx, adminID string, pending models.PendingEvent) (string, error) {
	event := models.Event{
		ID:               uuid.NewString(),
		OrganizerID:      pending.OwnerID,
		Title:            pending.Title,
		Description:      pending.Description,
		Location:         pending.Location,
		Venue:            pending.Venue,
		Category:         pending.Category,
		Price:            pending.Price,
		InitialTickets:   pending.TotalTickets,
		AvailableTickets: pending.TotalTickets,
		PendingEventID:   &pending.ID,
	}
	if err := s.events.CreateEvent(ctx, tx, event); err != nil {
		return "", err
	}
	moved, err := s.recommendations.Repoint(ctx, tx, pending.ID, event.ID)
	if err != nil {
		return "", err
	}
	err = s.pendingEvents.MarkFinalized(ctx, tx, pending.ID, event.ID)
	if errors.Is(err, store.ErrNoRowsAffected) {
		return "", ErrPendingEventFinalized
	}
	if err != nil {
		return "", err
	}
	if err := s.audit.Log(ctx, tx, adminID, "pending_event.finalized", "pending_event", pending.ID, map[string]any{
		"event_id":              event.ID,
		"tickets":               pending.TotalTickets,
		"recommendations_moved": moved,
	}); err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "pending event finalized",
		slog.String("event_id", event.ID),
		slog.String("pending_event_id", pending.ID),
	)
	return event.ID, nil
}

func (s *AdjudicationService) decide(ctx context.Context, tx *sqlx.Tx, adminID string, rec *models.AdminRecommendation, status models.AdminRecommendationStatus, notes *string) error {
	err := s.recommendations.Decide(ctx, tx, rec.ID, status, notes)
	if errors.Is(err, store.ErrNoRowsAffected) {
		return ErrAlreadyDecided
	}
	if err != nil {
		return err
	}
	rec.Status = status
	rec.AdminNotes = notes
	return s.audit.Log(ctx, tx, adminID, "admin_recommendation."+string(status), "admin_recommendation", rec.ID, map[string]any{
		"type":  string(rec.Type),
		"value": rec.RecommendedValue,
	})
}

func (s *AdjudicationService) lockPendingRecommendation(ctx context.Context, tx *sqlx.Tx, id string) (models.AdminRecommendation, error) {
	rec, err := s.recommendations.GetForUpdate(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.AdminRecommendation{}, ErrNotFound
	}
	if err != nil {
		return models.AdminRecommendation{}, err
	}
	if rec.Status != models.AdminRecommendationPending {
		return models.AdminRecommendation{}, ErrAlreadyDecided
	}
	return rec, nil
}

func (s *AdjudicationService) lockPendingEvent(ctx context.Context, tx *sqlx.Tx, id string) (models.PendingEvent, error) {
	pending, err := s.pendingEvents.GetForUpdate(ctx, tx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingEvent{}, ErrNotFound
	}
	return pending, err
}

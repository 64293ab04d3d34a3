package services

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"

	"ticketing/internal/alerts"
	"ticketing/internal/db"
	"ticketing/internal/models"
	"ticketing/internal/store"
	dynamostore "ticketing/internal/store/dynamodb"
	"ticketing/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	tempIDPrefix = "tmp_"
	maxAskLength = 2000
)

var tempIDPattern = regexp.MustCompile(`^tmp_[A-Za-z0-9-]{8,64}$`)

type RecommendationStore interface {
	CreateRecommendation(ctx context.Context, rec models.Recommendation) (models.Recommendation, error)
	GetRecommendation(ctx context.Context, id string) (models.Recommendation, error)
	GetRecommendationByTempID(ctx context.Context, tempID string) (models.Recommendation, error)
	RespondToRecommendation(ctx context.Context, id, adminID, answer string) (models.Recommendation, bool, error)
	ListPendingRecommendations(ctx context.Context, organizerID string) ([]models.Recommendation, error)
	MarkConsumed(ctx context.Context, id, pendingEventID string) error
}

type PendingEventStore interface {
	Create(ctx context.Context, event models.PendingEvent) error
	GetByID(ctx context.Context, id string) (models.PendingEvent, error)
	GetForUpdate(ctx context.Context, tx store.Getter, id string) (models.PendingEvent, error)
	SetField(ctx context.Context, tx store.Execer, id string, field models.RecommendationCategory, value any) error
	MarkFinalized(ctx context.Context, tx store.Execer, id, eventID string) error
}

type RecommendationNotifier interface {
	NotifyRecommendation(userID string, update websocket.RecommendationUpdate)
}

// RefKind says which identifier a RecommendationRef carries.
type RefKind int

const (
	RefDurable RefKind = iota + 1
	RefTemp
)

// RecommendationRef addresses a recommendation by its store-assigned id or by
// the temp id the client correlated it with.
type RecommendationRef struct {
	Kind RefKind
	ID   string
}

func Durable(id string) RecommendationRef { return RecommendationRef{Kind: RefDurable, ID: id} }

func Temp(id string) RecommendationRef { return RecommendationRef{Kind: RefTemp, ID: id} }

// ParseRef classifies an untyped id. Temp ids carry the tmp_ prefix.
func ParseRef(raw string) RecommendationRef {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, tempIDPrefix) {
		return Temp(raw)
	}
	return Durable(raw)
}

func NewTempID() string {
	return tempIDPrefix + uuid.NewString()
}

type RecommendationRequest struct {
	EventDraft models.EventDraft
	Category   models.RecommendationCategory
	Ask        string
	TempID     string
}

type RecommendationStatusView struct {
	ID        string                      `json:"id"`
	TempID    string                      `json:"temp_id"`
	Status    models.RecommendationStatus `json:"status"`
	Answer    string                      `json:"answer,omitempty"`
	Responded bool                        `json:"responded"`
}

type RecommendationService struct {
	txRunner      db.TxRunner
	ledger        *Ledger
	store         RecommendationStore
	pendingEvents PendingEventStore
	audit         AuditStore
	notifier      RecommendationNotifier
	alerts        AlertDispatcher
	logger        *slog.Logger
}

func NewRecommendationService(txRunner db.TxRunner, ledger *Ledger, recs RecommendationStore, pendingEvents PendingEventStore, audit AuditStore, notifier RecommendationNotifier, dispatcher AlertDispatcher, logger *slog.Logger) *RecommendationService {
	return &RecommendationService{
		txRunner:      txRunner,
		ledger:        ledger,
		store:         recs,
		pendingEvents: pendingEvents,
		audit:         audit,
		notifier:      notifier,
		alerts:        dispatcher,
		logger:        logger,
	}
}

// RequestRecommendation charges RecommendationCost coins and stores the
// request. If the store write fails the coins are refunded. The debit row is
// keyed by the temp id, so one temp id is charged at most once.
func (s *RecommendationService) RequestRecommendation(ctx context.Context, organizerID string, req RecommendationRequest) (models.Recommendation, error) {
	if !req.Category.Valid() {
		return models.Recommendation{}, ErrInvalidCategory
	}
	ask := strings.TrimSpace(req.Ask)
	if ask == "" || utf8.RuneCountInString(ask) > maxAskLength {
		return models.Recommendation{}, ErrInvalidAsk
	}
	tempID := strings.TrimSpace(req.TempID)
	if tempID == "" {
		tempID = NewTempID()
	} else if !tempIDPattern.MatchString(tempID) {
		return models.Recommendation{}, ErrInvalidTempID
	} else if existing, found, err := s.existingRequest(ctx, organizerID, tempID); err != nil || found {
		return existing, err
	}

	ok, err := s.ledger.HasSufficient(ctx, organizerID, RecommendationCost)
	if err != nil {
		return models.Recommendation{}, err
	}
	if !ok {
		return models.Recommendation{}, ErrInsufficientCoins
	}
	requestKey := recommendationRequestKey(tempID)
	debit, err := s.ledger.Debit(ctx, DebitInput{
		UserID:     organizerID,
		Coins:      RecommendationCost,
		Kind:       models.KindRecommendationRequest,
		RequestKey: &requestKey,
		Details:    map[string]any{"temp_id": tempID, "category": string(req.Category)},
	})
	if errors.Is(err, ErrInsufficientFunds) || errors.Is(err, ErrNotFound) {
		return models.Recommendation{}, ErrInsufficientCoins
	}
	if errors.Is(err, ErrDuplicateRequest) {
		// Another submission with this temp id holds the charge. Its record
		// may not be visible on the temp id index yet.
		existing, found, lookupErr := s.existingRequest(ctx, organizerID, tempID)
		if lookupErr != nil || found {
			return existing, lookupErr
		}
		return models.Recommendation{}, ErrDuplicateRequest
	}
	if err != nil {
		return models.Recommendation{}, err
	}

	rec, err := RunWithCompensation(ctx,
		func(ctx context.Context) (models.Recommendation, error) {
			return s.store.CreateRecommendation(ctx, models.Recommendation{
				TempID:             tempID,
				OrganizerID:        organizerID,
				EventDraft:         req.EventDraft,
				Category:           req.Category,
				Ask:                ask,
				DebitTransactionID: debit.TransactionID,
			})
		},
		func(ctx context.Context) error {
			return s.ledger.Refund(ctx, RefundInput{
				UserID:             organizerID,
				DebitTransactionID: debit.TransactionID,
				Coins:              RecommendationCost,
				Reason:             "recommendation_store_failed",
			})
		},
	)
	if errors.Is(err, ErrOrphanedDebit) {
		s.alerts.Dispatch(ctx, alerts.Alert{
			Kind:    alerts.KindOrphanedDebit,
			Message: "recommendation debit could not be refunded",
			Details: map[string]any{
				"transaction_id": debit.TransactionID,
				"user_id":        organizerID,
				"temp_id":        tempID,
				"coins":          RecommendationCost,
				"error":          err.Error(),
			},
		})
		return models.Recommendation{}, err
	}
	if err != nil {
		s.logger.WarnContext(ctx, "recommendation write failed, debit refunded",
			slog.String("transaction_id", debit.TransactionID),
			slog.String("temp_id", tempID),
			slog.Any("error", err),
		)
		return models.Recommendation{}, err
	}
	s.logger.InfoContext(ctx, "recommendation requested",
		slog.String("recommendation_id", rec.ID),
		slog.String("temp_id", rec.TempID),
		slog.String("user_id", organizerID),
	)
	return rec, nil
}

// existingRequest finds the record a temp id already names. A temp id held
// by another organizer is refused.
func (s *RecommendationService) existingRequest(ctx context.Context, organizerID, tempID string) (models.Recommendation, bool, error) {
	existing, err := s.store.GetRecommendationByTempID(ctx, tempID)
	if errors.Is(err, dynamostore.ErrNotFound) {
		return models.Recommendation{}, false, nil
	}
	if err != nil {
		return models.Recommendation{}, false, err
	}
	if existing.OrganizerID != organizerID {
		return models.Recommendation{}, false, ErrInvalidTempID
	}
	return existing, true, nil
}

func recommendationRequestKey(tempID string) string {
	return string(models.KindRecommendationRequest) + ":" + tempID
}

// resolve is the single lookup path for either identifier. It tries the
// identifier the ref names first and the other one second.
func (s *RecommendationService) resolve(ctx context.Context, ref RecommendationRef) (models.Recommendation, error) {
	if ref.ID == "" {
		return models.Recommendation{}, ErrNotFound
	}
	lookups := []func(context.Context, string) (models.Recommendation, error){
		s.store.GetRecommendation,
		s.store.GetRecommendationByTempID,
	}
	if ref.Kind == RefTemp {
		lookups[0], lookups[1] = lookups[1], lookups[0]
	}
	for _, lookup := range lookups {
		rec, err := lookup(ctx, ref.ID)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, dynamostore.ErrNotFound) {
			return models.Recommendation{}, err
		}
	}
	return models.Recommendation{}, ErrNotFound
}

// GetRecommendation returns the record. A non-empty organizerID restricts
// the lookup to that organizer's records.
func (s *RecommendationService) GetRecommendation(ctx context.Context, organizerID string, ref RecommendationRef) (models.Recommendation, error) {
	rec, err := s.resolve(ctx, ref)
	if err != nil {
		return models.Recommendation{}, err
	}
	if organizerID != "" && rec.OrganizerID != organizerID {
		return models.Recommendation{}, ErrNotFound
	}
	return rec, nil
}

func (s *RecommendationService) GetStatus(ctx context.Context, organizerID string, ref RecommendationRef) (RecommendationStatusView, error) {
	rec, err := s.GetRecommendation(ctx, organizerID, ref)
	if err != nil {
		return RecommendationStatusView{}, err
	}
	return RecommendationStatusView{
		ID:        rec.ID,
		TempID:    rec.TempID,
		Status:    rec.Status,
		Answer:    rec.Answer,
		Responded: rec.Status == models.RecommendationResponded,
	}, nil
}

func (s *RecommendationService) ListPending(ctx context.Context, organizerID string) ([]models.Recommendation, error) {
	return s.store.ListPendingRecommendations(ctx, organizerID)
}

// RespondToRecommendation answers a pending recommendation once. The same
// answer again is a no-op; a different one is ErrAlreadyResponded.
func (s *RecommendationService) RespondToRecommendation(ctx context.Context, adminID string, ref RecommendationRef, answer string) (models.Recommendation, error) {
	answer = strings.TrimSpace(answer)
	if answer == "" || utf8.RuneCountInString(answer) > maxAskLength {
		return models.Recommendation{}, ErrInvalidAnswer
	}
	rec, err := s.resolve(ctx, ref)
	if err != nil {
		return models.Recommendation{}, err
	}
	updated, transitioned, err := s.store.RespondToRecommendation(ctx, rec.ID, adminID, answer)
	switch {
	case errors.Is(err, dynamostore.ErrNotFound):
		return models.Recommendation{}, ErrNotFound
	case errors.Is(err, dynamostore.ErrAnswerConflict):
		return models.Recommendation{}, ErrAlreadyResponded
	case err != nil:
		return models.Recommendation{}, err
	}
	if transitioned {
		s.logger.InfoContext(ctx, "recommendation responded",
			slog.String("recommendation_id", updated.ID),
			slog.String("temp_id", updated.TempID),
			slog.String("admin_id", adminID),
		)
		if s.notifier != nil {
			s.notifier.NotifyRecommendation(updated.OrganizerID, websocket.RecommendationUpdate{
				ID:     updated.ID,
				TempID: updated.TempID,
				Status: string(updated.Status),
				Answer: updated.Answer,
			})
		}
	}
	return updated, nil
}

// ApplyToPendingEvent writes a responded recommendation's answer into the
// pending event field its category names.
func (s *RecommendationService) ApplyToPendingEvent(ctx context.Context, organizerID string, ref RecommendationRef, pendingEventID string) (models.PendingEvent, error) {
	rec, err := s.GetRecommendation(ctx, organizerID, ref)
	if err != nil {
		return models.PendingEvent{}, err
	}
	if rec.Status != models.RecommendationResponded {
		return models.PendingEvent{}, ErrNotResponded
	}
	value, err := parseFieldValue(rec.Category, rec.Answer)
	if err != nil {
		return models.PendingEvent{}, err
	}

	pending, err := s.pendingEvents.GetByID(ctx, pendingEventID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && pending.OwnerID != organizerID) {
		return models.PendingEvent{}, ErrNotFound
	}
	if err != nil {
		return models.PendingEvent{}, err
	}
	if pending.Status == models.PendingEventFinalized {
		return models.PendingEvent{}, ErrPendingEventFinalized
	}

	if err := s.store.MarkConsumed(ctx, rec.ID, pendingEventID); err != nil {
		if errors.Is(err, dynamostore.ErrNotConsumable) {
			return models.PendingEvent{}, ErrAlreadyConsumed
		}
		return models.PendingEvent{}, err
	}

	var updated models.PendingEvent
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		locked, err := s.pendingEvents.GetForUpdate(ctx, tx, pendingEventID)
		if err != nil {
			return err
		}
		if locked.Status == models.PendingEventFinalized {
			return ErrPendingEventFinalized
		}
		err = s.pendingEvents.SetField(ctx, tx, pendingEventID, rec.Category, value)
		if errors.Is(err, store.ErrNoRowsAffected) {
			return ErrPendingEventFinalized
		}
		if err != nil {
			return err
		}
		if err := s.audit.Log(ctx, tx, organizerID, "recommendation.applied", "pending_event", pendingEventID, map[string]any{
			"recommendation_id": rec.ID,
			"field":             string(rec.Category),
			"value":             rec.Answer,
		}); err != nil {
			return err
		}
		updated, err = s.pendingEvents.GetForUpdate(ctx, tx, pendingEventID)
		return err
	})
	if err != nil {
		return models.PendingEvent{}, err
	}
	return updated, nil
}

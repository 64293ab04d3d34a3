package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"ticketing/internal/auth"
	"ticketing/internal/config"
	"ticketing/internal/models"
	"ticketing/internal/services"
	"ticketing/internal/store"
	"ticketing/internal/websocket"
)

const testSecret = "secret"

type stubWalletService struct {
	ensureFn    func(ctx context.Context, userID string) (models.Wallet, error)
	getFn       func(ctx context.Context, userID string) (models.Wallet, error)
	listFn      func(ctx context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error)
	reconcileFn func(ctx context.Context) ([]store.WalletBalanceSummary, error)
}

func (s stubWalletService) EnsureWallet(ctx context.Context, userID string) (models.Wallet, error) {
	return s.ensureFn(ctx, userID)
}

func (s stubWalletService) GetWallet(ctx context.Context, userID string) (models.Wallet, error) {
	return s.getFn(ctx, userID)
}

func (s stubWalletService) ListTransactions(ctx context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error) {
	return s.listFn(ctx, userID, kind, limit, offset)
}

func (s stubWalletService) Reconcile(ctx context.Context) ([]store.WalletBalanceSummary, error) {
	return s.reconcileFn(ctx)
}

type stubPaymentService struct {
	createOrderFn func(ctx context.Context, input services.CreateOrderInput) (services.OrderResult, error)
	applyFn       func(ctx context.Context, userID string, input services.VerifyInput) (services.ApplyResult, error)
}

func (s stubPaymentService) CreateOrder(ctx context.Context, input services.CreateOrderInput) (services.OrderResult, error) {
	return s.createOrderFn(ctx, input)
}

func (s stubPaymentService) ApplyVerifiedPayment(ctx context.Context, userID string, input services.VerifyInput) (services.ApplyResult, error) {
	return s.applyFn(ctx, userID, input)
}

type stubRecommendationService struct {
	requestFn func(ctx context.Context, organizerID string, req services.RecommendationRequest) (models.Recommendation, error)
	getFn     func(ctx context.Context, organizerID string, ref services.RecommendationRef) (models.Recommendation, error)
	statusFn  func(ctx context.Context, organizerID string, ref services.RecommendationRef) (services.RecommendationStatusView, error)
	listFn    func(ctx context.Context, organizerID string) ([]models.Recommendation, error)
	respondFn func(ctx context.Context, adminID string, ref services.RecommendationRef, answer string) (models.Recommendation, error)
	applyFn   func(ctx context.Context, organizerID string, ref services.RecommendationRef, pendingEventID string) (models.PendingEvent, error)
}

func (s stubRecommendationService) RequestRecommendation(ctx context.Context, organizerID string, req services.RecommendationRequest) (models.Recommendation, error) {
	return s.requestFn(ctx, organizerID, req)
}

func (s stubRecommendationService) GetRecommendation(ctx context.Context, organizerID string, ref services.RecommendationRef) (models.Recommendation, error) {
	return s.getFn(ctx, organizerID, ref)
}

func (s stubRecommendationService) GetStatus(ctx context.Context, organizerID string, ref services.RecommendationRef) (services.RecommendationStatusView, error) {
	return s.statusFn(ctx, organizerID, ref)
}

func (s stubRecommendationService) ListPending(ctx context.Context, organizerID string) ([]models.Recommendation, error) {
	return s.listFn(ctx, organizerID)
}

func (s stubRecommendationService) RespondToRecommendation(ctx context.Context, adminID string, ref services.RecommendationRef, answer string) (models.Recommendation, error) {
	return s.respondFn(ctx, adminID, ref, answer)
}

func (s stubRecommendationService) ApplyToPendingEvent(ctx context.Context, organizerID string, ref services.RecommendationRef, pendingEventID string) (models.PendingEvent, error) {
	return s.applyFn(ctx, organizerID, ref, pendingEventID)
}

type stubAdjudicationService struct {
	createPendingFn func(ctx context.Context, ownerID string, draft models.EventDraft) (models.PendingEvent, error)
	getPendingFn    func(ctx context.Context, ownerID, id string) (services.PendingEventView, error)
	createRecFn     func(ctx context.Context, adminID, pendingEventID string, kind models.RecommendationCategory, value string) (models.AdminRecommendation, error)
	approveFn       func(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error)
	rejectFn        func(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error)
	finalizeFn      func(ctx context.Context, adminID, pendingEventID string) (string, error)
}

func (s stubAdjudicationService) CreatePendingEvent(ctx context.Context, ownerID string, draft models.EventDraft) (models.PendingEvent, error) {
	return s.createPendingFn(ctx, ownerID, draft)
}

func (s stubAdjudicationService) GetPendingEvent(ctx context.Context, ownerID, id string) (services.PendingEventView, error) {
	return s.getPendingFn(ctx, ownerID, id)
}

func (s stubAdjudicationService) CreateAdminRecommendation(ctx context.Context, adminID, pendingEventID string, kind models.RecommendationCategory, value string) (models.AdminRecommendation, error) {
	return s.createRecFn(ctx, adminID, pendingEventID, kind, value)
}

func (s stubAdjudicationService) Approve(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error) {
	return s.approveFn(ctx, adminID, id, notes)
}

func (s stubAdjudicationService) Reject(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error) {
	return s.rejectFn(ctx, adminID, id, notes)
}

func (s stubAdjudicationService) Finalize(ctx context.Context, adminID, pendingEventID string) (string, error) {
	return s.finalizeFn(ctx, adminID, pendingEventID)
}

type stubInventoryService struct {
	getEventFn  func(ctx context.Context, eventID string) (models.Event, error)
	adjustFn    func(ctx context.Context, adminID, eventID string, delta int) (models.Event, error)
	reconcileFn func(ctx context.Context) ([]store.EventStockSummary, error)
}

func (s stubInventoryService) GetEvent(ctx context.Context, eventID string) (models.Event, error) {
	return s.getEventFn(ctx, eventID)
}

func (s stubInventoryService) AdjustInventory(ctx context.Context, adminID, eventID string, delta int) (models.Event, error) {
	return s.adjustFn(ctx, adminID, eventID, delta)
}

func (s stubInventoryService) Reconcile(ctx context.Context) ([]store.EventStockSummary, error) {
	return s.reconcileFn(ctx)
}

// stubAdminStore grants every role to the listed admins.
type stubAdminStore struct {
	admins map[string]bool
	err    error
}

func (s stubAdminStore) IsAdmin(_ context.Context, userID string) (bool, bool, error) {
	if s.err != nil {
		return false, false, s.err
	}
	return s.admins[userID], false, nil
}

func (s stubAdminStore) HasRole(_ context.Context, userID, _ string) (bool, error) {
	return s.admins[userID], s.err
}

type stubAuditStore struct {
	listFn func(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) List(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error) {
	return s.listFn(ctx, entityType, limit, offset)
}

type stubAlertStore struct {
	listOpenFn func(ctx context.Context, limit int) ([]models.Alert, error)
}

func (s stubAlertStore) ListOpen(ctx context.Context, limit int) ([]models.Alert, error) {
	return s.listOpenFn(ctx, limit)
}

// testDeps holds the collaborators of a test handler. Calling an unset stub
// func panics and the router answers 500.
type testDeps struct {
	wallets         stubWalletService
	payments        stubPaymentService
	recommendations stubRecommendationService
	adjudication    stubAdjudicationService
	inventory       stubInventoryService
	admin           stubAdminStore
	audit           stubAuditStore
	alerts          stubAlertStore
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:          "test",
		JWTSecret:       testSecret,
		TokenTTL:        time.Minute,
		AllowedOrigins:  "*",
		RateLimit:       10,
		RateLimitWindow: time.Minute,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(cfg, logger, deps.wallets, deps.payments, deps.recommendations, deps.adjudication, deps.inventory, deps.admin, deps.audit, deps.alerts, websocket.NewHub(), nil)
	h.pollInterval = 5 * time.Millisecond
	return h
}

// serve sends a request through the full router as userID. An empty userID
// sends no token.
func serve(t *testing.T, h *Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.Routes().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[map[string]string](t, rr)["error"]
}

func stringPtr(value string) *string {
	return &value
}

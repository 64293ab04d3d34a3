package handlers

import (
	"context"

	"ticketing/internal/models"
	"ticketing/internal/services"
	"ticketing/internal/store"
)

type WalletService interface {
	EnsureWallet(ctx context.Context, userID string) (models.Wallet, error)
	GetWallet(ctx context.Context, userID string) (models.Wallet, error)
	ListTransactions(ctx context.Context, userID string, kind models.TransactionKind, limit, offset int) ([]models.Transaction, error)
	Reconcile(ctx context.Context) ([]store.WalletBalanceSummary, error)
}

type PaymentService interface {
	CreateOrder(ctx context.Context, input services.CreateOrderInput) (services.OrderResult, error)
	ApplyVerifiedPayment(ctx context.Context, userID string, input services.VerifyInput) (services.ApplyResult, error)
}

type RecommendationService interface {
	RequestRecommendation(ctx context.Context, organizerID string, req services.RecommendationRequest) (models.Recommendation, error)
	GetRecommendation(ctx context.Context, organizerID string, ref services.RecommendationRef) (models.Recommendation, error)
	GetStatus(ctx context.Context, organizerID string, ref services.RecommendationRef) (services.RecommendationStatusView, error)
	ListPending(ctx context.Context, organizerID string) ([]models.Recommendation, error)
	RespondToRecommendation(ctx context.Context, adminID string, ref services.RecommendationRef, answer string) (models.Recommendation, error)
	ApplyToPendingEvent(ctx context.Context, organizerID string, ref services.RecommendationRef, pendingEventID string) (models.PendingEvent, error)
}

type AdjudicationService interface {
	CreatePendingEvent(ctx context.Context, ownerID string, draft models.EventDraft) (models.PendingEvent, error)
	GetPendingEvent(ctx context.Context, ownerID, id string) (services.PendingEventView, error)
	CreateAdminRecommendation(ctx context.Context, adminID, pendingEventID string, kind models.RecommendationCategory, value string) (models.AdminRecommendation, error)
	Approve(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error)
	Reject(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error)
	Finalize(ctx context.Context, adminID, pendingEventID string) (string, error)
}

type InventoryService interface {
	GetEvent(ctx context.Context, eventID string) (models.Event, error)
	AdjustInventory(ctx context.Context, adminID, eventID string, delta int) (models.Event, error)
	Reconcile(ctx context.Context) ([]store.EventStockSummary, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID string) (bool, bool, error)
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

type AuditStore interface {
	List(ctx context.Context, entityType string, limit, offset int) ([]store.AuditEntry, error)
}

type AlertStore interface {
	ListOpen(ctx context.Context, limit int) ([]models.Alert, error)
}

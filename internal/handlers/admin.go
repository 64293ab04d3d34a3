package handlers

import (
	"context"
	"net/http"
	"strconv"

	"ticketing/internal/models"
	"ticketing/internal/services"
	"ticketing/internal/store"
	"ticketing/internal/validator"
)

func (h *Handler) AdminListPendingRecommendations(w http.ResponseWriter, r *http.Request) {
	organizerID := r.URL.Query().Get("organizer_id")
	if organizerID != "" && !h.validate(w, r, validator.ValidateID(organizerID)) {
		return
	}
	h.listPending(w, r, organizerID)
}

type respondRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) RespondToRecommendation(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ref, err := refParam(r)
	if !h.validate(w, r, err) {
		return
	}
	var req respondRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.recommendations.RespondToRecommendation(r.Context(), adminID, ref, req.Answer)
	if err != nil {
		h.respondServiceError(w, r, err, "respond_failed")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

type adminRecommendationRequest struct {
	Type             models.RecommendationCategory `json:"type"`
	RecommendedValue string                        `json:"recommended_value"`
}

func (h *Handler) CreateAdminRecommendation(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}
	pendingEventID := urlParam(r, "id")
	if !h.validate(w, r, validator.ValidateID(pendingEventID)) {
		return
	}
	var req adminRecommendationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.adjudication.CreateAdminRecommendation(r.Context(), adminID, pendingEventID, req.Type, req.RecommendedValue)
	if err != nil {
		h.respondServiceError(w, r, err, "admin_recommendation_failed")
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

type decisionRequest struct {
	Notes *string `json:"notes"`
}

func (h *Handler) ApproveAdminRecommendation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.adjudication.Approve)
}

func (h *Handler) RejectAdminRecommendation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.adjudication.Reject)
}

type decideFunc func(ctx context.Context, adminID, id string, notes *string) (services.DecisionResult, error)

func (h *Handler) decide(w http.ResponseWriter, r *http.Request, decide decideFunc) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	if !h.validate(w, r, validator.ValidateID(id)) {
		return
	}
	var req decisionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	result, err := decide(r.Context(), adminID, id, req.Notes)
	if err != nil {
		h.respondServiceError(w, r, err, "decision_failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) FinalizePendingEvent(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id := urlParam(r, "id")
	if !h.validate(w, r, validator.ValidateID(id)) {
		return
	}
	eventID, err := h.adjudication.Finalize(r.Context(), adminID, id)
	if err != nil {
		h.respondServiceError(w, r, err, "finalize_failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"pending_event_id": id, "event_id": eventID})
}

type adjustInventoryRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) AdjustInventory(w http.ResponseWriter, r *http.Request) {
	adminID, ok := requireUser(w, r)
	if !ok {
		return
	}
	eventID := urlParam(r, "id")
	if !h.validate(w, r, validator.ValidateID(eventID)) {
		return
	}
	var req adjustInventoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Delta == 0 {
		respondError(w, http.StatusBadRequest, "invalid_delta")
		return
	}
	event, err := h.inventory.AdjustInventory(r.Context(), adminID, eventID, req.Delta)
	if err != nil {
		h.respondServiceError(w, r, err, "inventory_failed")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

func (h *Handler) ReconcileWallets(w http.ResponseWriter, r *http.Request) {
	rows, err := h.wallets.Reconcile(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "reconcile_failed")
		return
	}
	if rows == nil {
		rows = []store.WalletBalanceSummary{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ReconcileEvents(w http.ResponseWriter, r *http.Request) {
	rows, err := h.inventory.Reconcile(r.Context())
	if err != nil {
		h.respondServiceError(w, r, err, "reconcile_failed")
		return
	}
	if rows == nil {
		rows = []store.EventStockSummary{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _, err := validator.ParsePagination(r.URL.Query().Get("limit"), "")
	if !h.validate(w, r, err) {
		return
	}
	alerts, err := h.alerts.ListOpen(r.Context(), limit)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_alerts")
		return
	}
	if alerts == nil {
		alerts = []models.Alert{}
	}
	respondJSON(w, http.StatusOK, alerts)
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset, err := validator.ParsePagination(query.Get("limit"), query.Get("offset"))
	if !h.validate(w, r, err) {
		return
	}
	entries, err := h.audit.List(r.Context(), query.Get("entity_type"), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_audit")
		return
	}
	if entries == nil {
		entries = []store.AuditEntry{}
	}
	w.Header().Set("X-Result-Count", strconv.Itoa(len(entries)))
	respondJSON(w, http.StatusOK, entries)
}

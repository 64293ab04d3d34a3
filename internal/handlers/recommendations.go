package handlers

import (
	"net/http"

	"ticketing/internal/models"
	"ticketing/internal/poller"
	"ticketing/internal/services"
	"ticketing/internal/validator"
)

type requestRecommendationRequest struct {
	TempID     string                        `json:"temp_id"`
	Category   models.RecommendationCategory `json:"category"`
	Ask        string                        `json:"ask"`
	EventDraft models.EventDraft             `json:"event_draft"`
}

func (h *Handler) RequestRecommendation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req requestRecommendationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	rec, err := h.recommendations.RequestRecommendation(r.Context(), userID, services.RecommendationRequest{
		EventDraft: req.EventDraft,
		Category:   req.Category,
		Ask:        req.Ask,
		TempID:     req.TempID,
	})
	if err != nil {
		h.respondServiceError(w, r, err, "recommendation_failed")
		return
	}
	respondJSON(w, http.StatusCreated, rec)
}

func (h *Handler) ListMyPendingRecommendations(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.listPending(w, r, userID)
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request, organizerID string) {
	recs, err := h.recommendations.ListPending(r.Context(), organizerID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_recommendations")
		return
	}
	if recs == nil {
		recs = []models.Recommendation{}
	}
	respondJSON(w, http.StatusOK, recs)
}

func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ref, err := refParam(r)
	if !h.validate(w, r, err) {
		return
	}
	rec, err := h.recommendations.GetRecommendation(r.Context(), userID, ref)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_recommendation")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetRecommendationStatus answers immediately, or with ?wait=30s holds the
// request until the recommendation is responded or the wait runs out.
func (h *Handler) GetRecommendationStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ref, err := refParam(r)
	wait, waitErr := validator.ParseWait(r.URL.Query().Get("wait"))
	if !h.validate(w, r, err, waitErr) {
		return
	}

	var view services.RecommendationStatusView
	if wait > 0 {
		target := poller.Target{OrganizerID: userID, Ref: ref}
		view, err = poller.WaitForResponse(r.Context(), h.recommendations, target, h.pollInterval, wait)
	} else {
		view, err = h.recommendations.GetStatus(r.Context(), userID, ref)
	}
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_status")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

type applyRecommendationRequest struct {
	PendingEventID string `json:"pending_event_id"`
}

func (h *Handler) ApplyRecommendation(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	ref, err := refParam(r)
	if !h.validate(w, r, err) {
		return
	}
	var req applyRecommendationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !h.validate(w, r, validator.ValidateID(req.PendingEventID)) {
		return
	}
	pending, err := h.recommendations.ApplyToPendingEvent(r.Context(), userID, ref, req.PendingEventID)
	if err != nil {
		h.respondServiceError(w, r, err, "apply_failed")
		return
	}
	respondJSON(w, http.StatusOK, pending)
}

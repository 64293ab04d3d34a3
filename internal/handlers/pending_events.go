package handlers

import (
	"net/http"

	"ticketing/internal/models"
	"ticketing/internal/validator"
)

func (h *Handler) CreatePendingEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var draft models.EventDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	pending, err := h.adjudication.CreatePendingEvent(r.Context(), userID, draft)
	if err != nil {
		h.respondServiceError(w, r, err, "pending_event_failed")
		return
	}
	respondJSON(w, http.StatusCreated, pending)
}

func (h *Handler) GetPendingEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.getPendingEvent(w, r, userID)
}

func (h *Handler) AdminGetPendingEvent(w http.ResponseWriter, r *http.Request) {
	h.getPendingEvent(w, r, "")
}

func (h *Handler) getPendingEvent(w http.ResponseWriter, r *http.Request, ownerID string) {
	id := urlParam(r, "id")
	if !h.validate(w, r, validator.ValidateID(id)) {
		return
	}
	view, err := h.adjudication.GetPendingEvent(r.Context(), ownerID, id)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_pending_event")
		return
	}
	respondJSON(w, http.StatusOK, view)
}

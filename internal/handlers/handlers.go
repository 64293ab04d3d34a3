package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ticketing/internal/middleware"
	"ticketing/internal/poller"
	"ticketing/internal/services"
	"ticketing/internal/validator"

	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_payload")
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorStatus maps domain errors to responses. Order matters only for
// errors that wrap others, such as an orphaned debit.
var errorStatus = []errorMapping{
	{services.ErrOrphanedDebit, http.StatusInternalServerError, "recommendation_failed"},
	{services.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{services.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{services.ErrInvalidKind, http.StatusBadRequest, "invalid_kind"},
	{services.ErrInvalidCategory, http.StatusBadRequest, "invalid_category"},
	{services.ErrInvalidAsk, http.StatusBadRequest, "invalid_ask"},
	{services.ErrInvalidAnswer, http.StatusBadRequest, "invalid_answer"},
	{services.ErrInvalidTempID, http.StatusBadRequest, "invalid_temp_id"},
	{services.ErrInvalidEventDraft, http.StatusBadRequest, "invalid_event_draft"},
	{services.ErrInvalidRecommendationValue, http.StatusBadRequest, "invalid_recommendation_value"},
	{services.ErrSignatureInvalid, http.StatusBadRequest, "signature_invalid"},
	{validator.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{validator.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{validator.ErrInvalidID, http.StatusBadRequest, "invalid_id"},
	{validator.ErrInvalidPagination, http.StatusBadRequest, "invalid_pagination"},
	{validator.ErrInvalidWait, http.StatusBadRequest, "invalid_wait"},
	{services.ErrInsufficientCoins, http.StatusPaymentRequired, "insufficient_coins"},
	{services.ErrInsufficientFunds, http.StatusPaymentRequired, "insufficient_funds"},
	{services.ErrOrderOwnership, http.StatusForbidden, "order_ownership"},
	{services.ErrNotFound, http.StatusNotFound, "not_found"},
	{services.ErrPaymentNeedsFollowup, http.StatusConflict, "payment_followup_required"},
	{services.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{services.ErrInsufficientInventory, http.StatusConflict, "insufficient_inventory"},
	{services.ErrAlreadyDecided, http.StatusConflict, "already_decided"},
	{services.ErrAlreadyResponded, http.StatusConflict, "already_responded"},
	{services.ErrNotResponded, http.StatusConflict, "not_responded"},
	{services.ErrAlreadyConsumed, http.StatusConflict, "already_consumed"},
	{services.ErrPendingEventFinalized, http.StatusConflict, "pending_event_finalized"},
	{services.ErrGateway, http.StatusBadGateway, "gateway_error"},
	{poller.ErrPollTimeout, http.StatusAccepted, "not_responded_yet"},
}

func statusFor(err error) (int, string) {
	for _, m := range errorStatus {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, ""
}

// respondServiceError writes the mapped response for err. Unmapped errors
// are logged and answered with fallback.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status, code := statusFor(err)
	if code == "" {
		code = fallback
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", slog.String("code", code), slog.Any("error", err))
	}
	respondError(w, status, code)
}

// validate runs field checks in order and answers the first failure.
func (h *Handler) validate(w http.ResponseWriter, r *http.Request, checks ...error) bool {
	for _, err := range checks {
		if err != nil {
			h.respondServiceError(w, r, err, "invalid_payload")
			return false
		}
	}
	return true
}

func urlParam(r *http.Request, key string) string {
	return strings.TrimSpace(chi.URLParam(r, key))
}

// refParam reads a recommendation id from the path. Both durable and temp
// ids are accepted.
func refParam(r *http.Request) (services.RecommendationRef, error) {
	raw := urlParam(r, "id")
	if err := validator.ValidateID(raw); err != nil {
		return services.RecommendationRef{}, err
	}
	return services.ParseRef(raw), nil
}

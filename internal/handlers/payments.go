package handlers

import (
	"net/http"
	"strings"

	"ticketing/internal/models"
	"ticketing/internal/services"
	"ticketing/internal/validator"
)

type createOrderRequest struct {
	Kind     models.OrderKind `json:"kind"`
	Amount   string           `json:"amount"`
	EventID  string           `json:"event_id"`
	Quantity int              `json:"quantity"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	input := services.CreateOrderInput{UserID: userID, Kind: req.Kind}
	switch req.Kind {
	case models.OrderKindWallet:
		amount, err := validator.ParseAmountMinor(req.Amount)
		if !h.validate(w, r, err) {
			return
		}
		input.AmountMinor = amount
	case models.OrderKindTicket:
		if !h.validate(w, r, validator.ValidateID(req.EventID), validator.ValidateQuantity(req.Quantity)) {
			return
		}
		input.EventID = req.EventID
		input.Quantity = req.Quantity
	default:
		respondError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	order, err := h.payments.CreateOrder(r.Context(), input)
	if err != nil {
		h.respondServiceError(w, r, err, "order_failed")
		return
	}
	respondJSON(w, http.StatusCreated, order)
}

// verifyRequest is what the checkout widget hands back after payment.
// Amounts are never taken from the client.
type verifyRequest struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	result, err := h.payments.ApplyVerifiedPayment(r.Context(), userID, services.VerifyInput{
		OrderID:   strings.TrimSpace(req.OrderID),
		PaymentID: strings.TrimSpace(req.PaymentID),
		Signature: strings.TrimSpace(req.Signature),
	})
	if err != nil {
		h.respondServiceError(w, r, err, "payment_failed")
		return
	}
	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	respondJSON(w, status, result)
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	eventID := urlParam(r, "id")
	if !h.validate(w, r, validator.ValidateID(eventID)) {
		return
	}
	event, err := h.inventory.GetEvent(r.Context(), eventID)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_event")
		return
	}
	respondJSON(w, http.StatusOK, event)
}

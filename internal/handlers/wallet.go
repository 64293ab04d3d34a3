package handlers

import (
	"net/http"

	"ticketing/internal/models"
	"ticketing/internal/validator"
)

type walletResponse struct {
	WalletID   string `json:"wallet_id"`
	Coins      int64  `json:"coins"`
	TotalSpent string `json:"total_spent"`
}

func toWalletResponse(wallet models.Wallet) walletResponse {
	return walletResponse{WalletID: wallet.ID, Coins: wallet.Coins, TotalSpent: wallet.TotalSpent.StringFixed(2)}
}

func (h *Handler) EnsureWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.EnsureWallet(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "wallet_failed")
		return
	}
	respondJSON(w, http.StatusCreated, toWalletResponse(wallet))
}

func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	wallet, err := h.wallets.GetWallet(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err, "wallet_failed")
		return
	}
	respondJSON(w, http.StatusOK, toWalletResponse(wallet))
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	limit, offset, err := validator.ParsePagination(query.Get("limit"), query.Get("offset"))
	if !h.validate(w, r, err) {
		return
	}
	kind := models.TransactionKind(query.Get("kind"))
	switch kind {
	case "", models.KindTopUp, models.KindCredit, models.KindDebit, models.KindRecommendationRequest:
	default:
		respondError(w, http.StatusBadRequest, "invalid_kind")
		return
	}
	rows, err := h.wallets.ListTransactions(r.Context(), userID, kind, limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err, "unable_to_load_transactions")
		return
	}
	if rows == nil {
		rows = []models.Transaction{}
	}
	respondJSON(w, http.StatusOK, rows)
}

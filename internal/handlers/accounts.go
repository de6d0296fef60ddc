package handlers

import (
	"net/http"

	"parking/internal/middleware"
	"parking/internal/money"
	"parking/internal/services"
)

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	summary, err := h.ledger.Balances(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

type depositRequest struct {
	Currency        string  `json:"currency"`
	Amount          string  `json:"amount"`
	ClientRequestID *string `json:"clientRequestId"`
}

func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	amountMinor, err := parseAmountMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid amount")
		return
	}
	result, err := h.ledger.Deposit(r.Context(), services.DepositRequest{
		UserID:          userID,
		Currency:        req.Currency,
		AmountMinor:     amountMinor,
		ClientRequestID: req.ClientRequestID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, map[string]any{
		"transactionId": result.TransactionID,
		"currency":      result.Currency,
		"balance":       money.FormatMinor(result.BalanceMinor),
		"replayed":      result.Replayed,
	})
}

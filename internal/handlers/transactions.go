package handlers

import (
	"net/http"

	"parking/internal/middleware"
	"parking/internal/models"
	"parking/internal/money"

	"github.com/go-chi/chi/v5"
)

type transactionView struct {
	models.Transaction
	Amount string `json:"amount"`
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	query := r.URL.Query()
	limit, offset := parsePage(query.Get("page"), query.Get("limit"))
	rows, err := h.ledger.ListTransactions(r.Context(), userID, query.Get("type"), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	views := make([]transactionView, 0, len(rows))
	for _, row := range rows {
		views = append(views, transactionView{Transaction: row, Amount: money.FormatMinor(row.Amount)})
	}
	respondJSON(w, http.StatusOK, views)
}

type transactionStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateTransactionStatus(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	var req transactionStatusRequest
	if err := decodeJSON(r, &req); err != nil || req.Status == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "status is required")
		return
	}
	transactionID := chi.URLParam(r, "id")
	if err := h.ledger.UpdateTransactionStatus(r.Context(), actorID, transactionID, req.Status); err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": transactionID, "status": req.Status})
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, offset := parsePage(query.Get("page"), query.Get("limit"))
	entries, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	if entries == nil {
		respondJSON(w, http.StatusOK, []any{})
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

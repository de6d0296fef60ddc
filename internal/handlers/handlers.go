package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"parking/internal/services"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

// respondServiceError reports a service failure with its stable error code.
// Internal failures are logged and their text is never sent to the client.
func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := services.Code(err)
	status := http.StatusBadRequest
	switch code {
	case "not_found":
		status = http.StatusNotFound
	case "forbidden":
		status = http.StatusForbidden
	case "internal_error":
		h.logger.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		respondError(w, http.StatusInternalServerError, code, "internal error")
		return
	}
	respondError(w, status, code, errorMessage(err))
}

// errorMessage drops the sentinel prefix, leaving the detail added by the
// service ("insufficient funds: MDL balance below 10.00" becomes
// "MDL balance below 10.00").
func errorMessage(err error) string {
	message := err.Error()
	for _, sentinel := range []error{
		services.ErrNotFound,
		services.ErrSlotUnavailable,
		services.ErrInsufficientFunds,
		services.ErrForbidden,
		services.ErrInvalidState,
		services.ErrInvalidInput,
	} {
		if errors.Is(err, sentinel) {
			if detail, ok := strings.CutPrefix(message, sentinel.Error()+": "); ok {
				return detail
			}
			break
		}
	}
	return message
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

package handlers

import (
	"net/http"
	"strings"

	"parking/internal/middleware"
	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/services"
	"parking/internal/store"

	"github.com/go-chi/chi/v5"
)

type bookingView struct {
	models.Booking
	TotalPrice string `json:"totalPrice"`
}

func newBookingView(booking models.Booking) bookingView {
	return bookingView{Booking: booking, TotalPrice: money.FormatMinor(booking.TotalPrice)}
}

type createBookingRequest struct {
	ParkingID      string `json:"parkingId"`
	SpotNumber     string `json:"spotNumber"`
	SlotID         string `json:"slotId"`
	TariffID       string `json:"tariffId"`
	StartTime      string `json:"startTime"`
	UseFreeBooking bool   `json:"useFreeBooking"`
}

type bookingResponse struct {
	Booking       bookingView `json:"booking"`
	QRCode        string      `json:"qrCode"`
	IsFreeBooking bool        `json:"isFreeBooking"`
	Message       string      `json:"message"`
}

func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	var req createBookingRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	if req.ParkingID == "" || req.TariffID == "" || req.StartTime == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "parkingId, tariffId and startTime are required")
		return
	}
	if req.SlotID == "" && strings.TrimSpace(req.SpotNumber) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "slotId or spotNumber is required")
		return
	}
	start, err := parseTime(req.StartTime)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "startTime must be RFC 3339")
		return
	}
	result, err := h.bookings.CreateBooking(r.Context(), services.CreateBookingRequest{
		UserID:         userID,
		FacilityID:     req.ParkingID,
		SlotID:         req.SlotID,
		SpotNumber:     req.SpotNumber,
		TariffID:       req.TariffID,
		StartTime:      start,
		UseFreeBooking: req.UseFreeBooking,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, status, bookingResponse{
		Booking:       newBookingView(result.Booking),
		QRCode:        result.QRCode,
		IsFreeBooking: result.IsFree,
		Message:       result.Message,
	})
}

type cancelBookingRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	var req cancelBookingRequest
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid payload")
			return
		}
	}
	booking, err := h.bookings.CancelBooking(r.Context(), services.CancelBookingRequest{
		BookingID:     chi.URLParam(r, "id"),
		RequesterID:   userID,
		RequesterRole: middleware.RoleFromContext(r.Context()),
		Reason:        req.Reason,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Booking cancelled successfully",
		"booking": newBookingView(booking),
	})
}

func (h *Handler) CompleteBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	booking, err := h.bookings.CompleteBooking(r.Context(), services.CompleteBookingRequest{
		BookingID:     chi.URLParam(r, "id"),
		RequesterID:   userID,
		RequesterRole: middleware.RoleFromContext(r.Context()),
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"message": "Booking completed successfully",
		"booking": newBookingView(booking),
	})
}

func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	result, err := h.bookings.GetBooking(r.Context(), chi.URLParam(r, "id"), userID, middleware.RoleFromContext(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"booking":       newBookingView(result.Booking),
		"qrCode":        result.QRCode,
		"isFreeBooking": result.IsFree,
	})
}

func (h *Handler) ListBookings(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	query := r.URL.Query()
	limit, offset := parsePage(query.Get("page"), query.Get("limit"))
	filter := store.BookingFilter{
		UserID:     userID,
		FacilityID: query.Get("facilityId"),
		Status:     query.Get("status"),
		Limit:      uint64(limit),
		Offset:     uint64(offset),
	}
	var err error
	if filter.From, err = parseOptionalTime(query.Get("from")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "from must be RFC 3339")
		return
	}
	if filter.To, err = parseOptionalTime(query.Get("to")); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "to must be RFC 3339")
		return
	}
	bookings, err := h.bookings.ListBookings(r.Context(), filter)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	views := make([]bookingView, 0, len(bookings))
	for _, booking := range bookings {
		views = append(views, newBookingView(booking))
	}
	respondJSON(w, http.StatusOK, map[string]any{"bookings": views, "limit": limit, "offset": offset})
}

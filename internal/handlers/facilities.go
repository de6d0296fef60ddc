package handlers

import (
	"net/http"
	"time"

	"parking/internal/middleware"
	"parking/internal/money"
	"parking/internal/services"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListOccupied(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := parseTime(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_request", "at must be RFC 3339")
			return
		}
		asOf = parsed
	}
	facilityID := chi.URLParam(r, "id")
	labels, err := h.inventory.ListOccupied(r.Context(), facilityID, asOf)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"facilityId": facilityID,
		"asOf":       asOf,
		"labels":     labels,
	})
}

type createFacilityRequest struct {
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	TotalSlots   int     `json:"totalSlots"`
	PricePerHour string  `json:"pricePerHour"`
	Currency     string  `json:"currency"`
	Zone         string  `json:"zone"`
}

func (h *Handler) CreateFacility(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	var req createFacilityRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	var price int64
	if req.PricePerHour != "" {
		parsed, err := money.ParseMinor(req.PricePerHour)
		if err != nil || parsed < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "invalid pricePerHour")
			return
		}
		price = parsed
	}
	facility, err := h.inventory.CreateFacility(r.Context(), services.CreateFacilityRequest{
		ActorID:      actorID,
		Name:         req.Name,
		Address:      req.Address,
		Latitude:     req.Latitude,
		Longitude:    req.Longitude,
		TotalSlots:   req.TotalSlots,
		PricePerHour: price,
		Currency:     req.Currency,
		Zone:         req.Zone,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"facility":     facility,
		"pricePerHour": money.FormatMinor(facility.PricePerHour),
	})
}

type createTariffRequest struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Price           string  `json:"price"`
	Currency        string  `json:"currency"`
	DurationMinutes int     `json:"durationMinutes"`
	FacilityID      *string `json:"facilityId"`
}

func (h *Handler) CreateTariff(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	var req createTariffRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid payload")
		return
	}
	price, err := money.ParseMinor(req.Price)
	if err != nil || price < 0 {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid price")
		return
	}
	tariff, err := h.inventory.CreateTariff(r.Context(), services.CreateTariffRequest{
		ActorID:         actorID,
		Name:            req.Name,
		Type:            req.Type,
		PriceMinor:      price,
		Currency:        req.Currency,
		DurationMinutes: req.DurationMinutes,
		FacilityID:      req.FacilityID,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"tariff": tariff,
		"price":  money.FormatMinor(tariff.Price),
	})
}

type sensorUpdateRequest struct {
	Occupied *bool   `json:"isOccupied"`
	SensorID *string `json:"sensorId"`
}

func (h *Handler) UpdateSlotSensor(w http.ResponseWriter, r *http.Request) {
	actorID, _ := middleware.UserIDFromContext(r.Context())
	var req sensorUpdateRequest
	if err := decodeJSON(r, &req); err != nil || req.Occupied == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "isOccupied is required")
		return
	}
	slot, err := h.inventory.UpdateSlotSensor(r.Context(), actorID, chi.URLParam(r, "id"), *req.Occupied, req.SensorID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, slot)
}

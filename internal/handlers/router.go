package handlers

import (
	"net/http"

	"parking/internal/config"
	"parking/internal/metrics"
	"parking/internal/middleware"
	"parking/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	cfg       config.Config
	bookings  BookingService
	inventory InventoryService
	ledger    LedgerService
	audit     AuditStore
	hub       *websocket.Hub
	metrics   *metrics.Metrics
	logger    logrus.FieldLogger
}

func New(cfg config.Config, bookings BookingService, inventory InventoryService, ledger LedgerService, audit AuditStore, hub *websocket.Hub, m *metrics.Metrics, logger logrus.FieldLogger) *Handler {
	return &Handler{
		cfg:       cfg,
		bookings:  bookings,
		inventory: inventory,
		ledger:    ledger,
		audit:     audit,
		hub:       hub,
		metrics:   m,
		logger:    logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	if h.metrics != nil {
		router.Use(h.metrics.Middleware)
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticated := middleware.Auth(h.cfg.JWTSecret)
	router.Route("/bookings", func(r chi.Router) {
		r.Use(authenticated)
		r.Post("/", h.CreateBooking)
		r.Get("/", h.ListBookings)
		r.Get("/{id}", h.GetBooking)
		r.Patch("/{id}/cancel", h.CancelBooking)
		r.Delete("/{id}", h.CancelBooking)
		r.Patch("/{id}/complete", h.CompleteBooking)
	})
	router.With(authenticated).Get("/facilities/{id}/occupied", h.ListOccupied)
	router.With(authenticated, middleware.RequireAdmin).Post("/facilities", h.CreateFacility)
	router.With(authenticated, middleware.RequireAdmin).Post("/tariffs", h.CreateTariff)
	router.With(authenticated, middleware.RequireAdmin).Patch("/slots/{id}/sensor", h.UpdateSlotSensor)
	router.With(authenticated).Get("/accounts/balance", h.GetBalances)
	router.With(authenticated).Post("/accounts/deposit", h.Deposit)
	router.With(authenticated).Get("/transactions", h.ListTransactions)
	router.With(authenticated).Get("/ws/balances", h.WSBalances)

	router.Route("/admin", func(r chi.Router) {
		r.Use(authenticated, middleware.RequireAdmin)
		r.Patch("/transactions/{id}/status", h.UpdateTransactionStatus)
		r.Get("/audit", h.ListAuditLogs)
	})

	if h.metrics != nil {
		router.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

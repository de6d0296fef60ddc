package handlers

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"parking/internal/auth"
	"parking/internal/config"
	"parking/internal/metrics"
	"parking/internal/models"
	"parking/internal/services"
	"parking/internal/store"
	"parking/internal/websocket"

	"github.com/sirupsen/logrus/hooks/test"
)

const testSecret = "secret"

type stubBookingService struct {
	createFn   func(ctx context.Context, req services.CreateBookingRequest) (services.BookingResult, error)
	cancelFn   func(ctx context.Context, req services.CancelBookingRequest) (models.Booking, error)
	completeFn func(ctx context.Context, req services.CompleteBookingRequest) (models.Booking, error)
	getFn      func(ctx context.Context, bookingID, requesterID, role string) (services.BookingResult, error)
	listFn     func(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error)
}

func (s stubBookingService) CreateBooking(ctx context.Context, req services.CreateBookingRequest) (services.BookingResult, error) {
	if s.createFn == nil {
		return services.BookingResult{}, nil
	}
	return s.createFn(ctx, req)
}

func (s stubBookingService) CancelBooking(ctx context.Context, req services.CancelBookingRequest) (models.Booking, error) {
	if s.cancelFn == nil {
		return models.Booking{}, nil
	}
	return s.cancelFn(ctx, req)
}

func (s stubBookingService) CompleteBooking(ctx context.Context, req services.CompleteBookingRequest) (models.Booking, error) {
	if s.completeFn == nil {
		return models.Booking{}, nil
	}
	return s.completeFn(ctx, req)
}

func (s stubBookingService) GetBooking(ctx context.Context, bookingID, requesterID, role string) (services.BookingResult, error) {
	if s.getFn == nil {
		return services.BookingResult{}, nil
	}
	return s.getFn(ctx, bookingID, requesterID, role)
}

func (s stubBookingService) ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, filter)
}

type stubInventoryService struct {
	listOccupiedFn   func(ctx context.Context, facilityID string, asOf time.Time) ([]string, error)
	createFacilityFn func(ctx context.Context, req services.CreateFacilityRequest) (models.Facility, error)
	createTariffFn   func(ctx context.Context, req services.CreateTariffRequest) (models.Tariff, error)
	updateSensorFn   func(ctx context.Context, actorID, slotID string, occupied bool, sensorID *string) (models.Slot, error)
}

func (s stubInventoryService) ListOccupied(ctx context.Context, facilityID string, asOf time.Time) ([]string, error) {
	if s.listOccupiedFn == nil {
		return []string{}, nil
	}
	return s.listOccupiedFn(ctx, facilityID, asOf)
}

func (s stubInventoryService) CreateFacility(ctx context.Context, req services.CreateFacilityRequest) (models.Facility, error) {
	if s.createFacilityFn == nil {
		return models.Facility{}, nil
	}
	return s.createFacilityFn(ctx, req)
}

func (s stubInventoryService) CreateTariff(ctx context.Context, req services.CreateTariffRequest) (models.Tariff, error) {
	if s.createTariffFn == nil {
		return models.Tariff{}, nil
	}
	return s.createTariffFn(ctx, req)
}

func (s stubInventoryService) UpdateSlotSensor(ctx context.Context, actorID, slotID string, occupied bool, sensorID *string) (models.Slot, error) {
	if s.updateSensorFn == nil {
		return models.Slot{}, nil
	}
	return s.updateSensorFn(ctx, actorID, slotID, occupied, sensorID)
}

type stubLedgerService struct {
	balancesFn     func(ctx context.Context, userID string) (services.BalanceSummary, error)
	depositFn      func(ctx context.Context, req services.DepositRequest) (services.DepositResult, error)
	listFn         func(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error)
	updateStatusFn func(ctx context.Context, actorID, transactionID, status string) error
}

func (s stubLedgerService) Balances(ctx context.Context, userID string) (services.BalanceSummary, error) {
	if s.balancesFn == nil {
		return services.BalanceSummary{}, nil
	}
	return s.balancesFn(ctx, userID)
}

func (s stubLedgerService) Deposit(ctx context.Context, req services.DepositRequest) (services.DepositResult, error) {
	if s.depositFn == nil {
		return services.DepositResult{}, nil
	}
	return s.depositFn(ctx, req)
}

func (s stubLedgerService) ListTransactions(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, userID, txType, limit, offset)
}

func (s stubLedgerService) UpdateTransactionStatus(ctx context.Context, actorID, transactionID, status string) error {
	if s.updateStatusFn == nil {
		return nil
	}
	return s.updateStatusFn(ctx, actorID, transactionID, status)
}

type stubAuditStore struct {
	listFn func(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

func newTestHandler(bookings BookingService, inventory InventoryService, ledger LedgerService, audit AuditStore) *Handler {
	cfg := config.Config{
		AppEnv:         "test",
		Port:           "0",
		JWTSecret:      testSecret,
		AllowedOrigins: "*",
	}
	logger, _ := test.NewNullLogger()
	return New(cfg, bookings, inventory, ledger, audit, websocket.NewHub(), metrics.New("parking_test"), logger)
}

// serve runs the request through the full router as the given user. An
// empty userID sends no credentials.
func serve(t *testing.T, handler *Handler, method, path, userID, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, userID, role, time.Minute)
		if err != nil {
			t.Fatalf("failed to generate token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

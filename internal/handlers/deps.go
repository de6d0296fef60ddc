package handlers

import (
	"context"
	"time"

	"parking/internal/models"
	"parking/internal/services"
	"parking/internal/store"
)

type BookingService interface {
	CreateBooking(ctx context.Context, req services.CreateBookingRequest) (services.BookingResult, error)
	CancelBooking(ctx context.Context, req services.CancelBookingRequest) (models.Booking, error)
	CompleteBooking(ctx context.Context, req services.CompleteBookingRequest) (models.Booking, error)
	GetBooking(ctx context.Context, bookingID, requesterID, role string) (services.BookingResult, error)
	ListBookings(ctx context.Context, filter store.BookingFilter) ([]models.Booking, error)
}

type InventoryService interface {
	ListOccupied(ctx context.Context, facilityID string, asOf time.Time) ([]string, error)
	CreateFacility(ctx context.Context, req services.CreateFacilityRequest) (models.Facility, error)
	CreateTariff(ctx context.Context, req services.CreateTariffRequest) (models.Tariff, error)
	UpdateSlotSensor(ctx context.Context, actorID, slotID string, occupied bool, sensorID *string) (models.Slot, error)
}

type LedgerService interface {
	Balances(ctx context.Context, userID string) (services.BalanceSummary, error)
	Deposit(ctx context.Context, req services.DepositRequest) (services.DepositResult, error)
	ListTransactions(ctx context.Context, userID, txType string, limit, offset int) ([]models.Transaction, error)
	UpdateTransactionStatus(ctx context.Context, actorID, transactionID, status string) error
}

type AuditStore interface {
	List(ctx context.Context, limit, offset int) ([]store.AuditEntry, error)
}

package store

import (
	"context"
	"time"

	"parking/internal/models"

	"github.com/Masterminds/squirrel"
)

type BookingStore struct {
	db DB
}

func NewBookingStore(db DB) *BookingStore {
	return &BookingStore{db: db}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var bookingColumns = []string{
	"b.id", "b.user_id", "b.facility_id", "b.slot_id", "s.label AS slot_label", "b.tariff_id",
	"b.start_time", "b.end_time", "b.status", "b.total_price", "b.currency", "b.payment_status",
	"b.is_free", "b.payment_transaction_id", "b.idempotency_key", "b.created_at", "b.updated_at",
}

type BookingInput struct {
	ID                   string
	UserID               string
	FacilityID           string
	SlotID               string
	TariffID             string
	StartTime            time.Time
	EndTime              time.Time
	TotalPrice           int64
	Currency             string
	PaymentStatus        models.PaymentStatus
	IsFree               bool
	PaymentTransactionID *string
	IdempotencyKey       *string
}

type BookingFilter struct {
	UserID     string
	FacilityID string
	Status     string
	From       *time.Time
	To         *time.Time
	Limit      uint64
	Offset     uint64
}

func (s *BookingStore) Create(ctx context.Context, tx Execer, input BookingInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (id, user_id, facility_id, slot_id, tariff_id, start_time, end_time, status,
		                      total_price, currency, payment_status, is_free, payment_transaction_id, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active', $8, $9, $10, $11, $12, $13)
	`, input.ID, input.UserID, input.FacilityID, input.SlotID, input.TariffID, input.StartTime, input.EndTime,
		input.TotalPrice, input.Currency, input.PaymentStatus, input.IsFree, input.PaymentTransactionID, input.IdempotencyKey)
	return err
}

func (s *BookingStore) GetByID(ctx context.Context, bookingID string) (models.Booking, error) {
	return s.getOne(ctx, s.db, squirrel.Eq{"b.id": bookingID}, "")
}

func (s *BookingStore) GetForUpdate(ctx context.Context, tx Getter, bookingID string) (models.Booking, error) {
	return s.getOne(ctx, tx, squirrel.Eq{"b.id": bookingID}, "FOR UPDATE OF b")
}

func (s *BookingStore) GetByIdempotencyKey(ctx context.Context, tx Getter, userID, key string) (models.Booking, error) {
	return s.getOne(ctx, tx, squirrel.Eq{"b.user_id": userID, "b.idempotency_key": key}, "")
}

func (s *BookingStore) getOne(ctx context.Context, getter Getter, where squirrel.Eq, suffix string) (models.Booking, error) {
	builder := psql.Select(bookingColumns...).
		From("bookings b").
		Join("parking_slots s ON s.id = b.slot_id").
		Where(where)
	if suffix != "" {
		builder = builder.Suffix(suffix)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return models.Booking{}, err
	}
	var row models.Booking
	if err := getter.GetContext(ctx, &row, query, args...); err != nil {
		return models.Booking{}, err
	}
	return row, nil
}

// HasOverlap reports whether an active booking on the slot intersects
// [start, end).
func (s *BookingStore) HasOverlap(ctx context.Context, tx Getter, facilityID, slotID string, start, end time.Time) (bool, error) {
	var exists bool
	err := tx.GetContext(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1
			FROM bookings
			WHERE facility_id = $1
			  AND slot_id = $2
			  AND status = 'active'
			  AND start_time < $4
			  AND end_time > $3
		)
	`, facilityID, slotID, start, end)
	return exists, err
}

// UpdateStatus moves an active booking to a terminal status. Zero affected
// rows means the booking was no longer active.
func (s *BookingStore) UpdateStatus(ctx context.Context, tx Execer, bookingID string, status models.BookingStatus, payment models.PaymentStatus) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET status = $2, payment_status = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'active'
	`, bookingID, status, payment)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *BookingStore) List(ctx context.Context, filter BookingFilter) ([]models.Booking, error) {
	builder := psql.Select(bookingColumns...).
		From("bookings b").
		Join("parking_slots s ON s.id = b.slot_id").
		OrderBy("b.start_time DESC")
	if filter.UserID != "" {
		builder = builder.Where(squirrel.Eq{"b.user_id": filter.UserID})
	}
	if filter.FacilityID != "" {
		builder = builder.Where(squirrel.Eq{"b.facility_id": filter.FacilityID})
	}
	if filter.Status != "" {
		builder = builder.Where(squirrel.Eq{"b.status": filter.Status})
	}
	if filter.From != nil {
		builder = builder.Where(squirrel.GtOrEq{"b.end_time": *filter.From})
	}
	if filter.To != nil {
		builder = builder.Where(squirrel.Lt{"b.start_time": *filter.To})
	}
	if filter.Limit > 0 {
		builder = builder.Limit(filter.Limit).Offset(filter.Offset)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	var rows []models.Booking
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *BookingStore) ListOccupiedLabels(ctx context.Context, facilityID string, asOf time.Time) ([]string, error) {
	var labels []string
	err := s.db.SelectContext(ctx, &labels, `
		SELECT DISTINCT s.label
		FROM bookings b
		JOIN parking_slots s ON s.id = b.slot_id
		WHERE b.facility_id = $1
		  AND b.status = 'active'
		  AND b.start_time <= $2
		  AND b.end_time > $2
		ORDER BY s.label
	`, facilityID, asOf)
	if err != nil {
		return nil, err
	}
	return labels, nil
}

func (s *BookingStore) ListExpiredActive(ctx context.Context, before time.Time, limit int) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `
		SELECT id
		FROM bookings
		WHERE status = 'active' AND end_time <= $1
		ORDER BY end_time
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, err
	}
	return ids, nil
}

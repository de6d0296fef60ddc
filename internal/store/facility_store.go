package store

import (
	"context"

	"parking/internal/models"
)

type FacilityStore struct {
	db DB
}

func NewFacilityStore(db DB) *FacilityStore {
	return &FacilityStore{db: db}
}

type FacilityInput struct {
	ID           string
	Name         string
	Address      string
	Latitude     float64
	Longitude    float64
	TotalSlots   int
	PricePerHour int64
	Currency     string
}

func (s *FacilityStore) Create(ctx context.Context, tx Execer, input FacilityInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO parking_facilities (id, name, address, latitude, longitude, total_slots, available_slots, price_per_hour, currency)
		VALUES ($1, $2, $3, $4, $5, $6, $6, $7, $8)
	`, input.ID, input.Name, input.Address, input.Latitude, input.Longitude, input.TotalSlots, input.PricePerHour, input.Currency)
	return err
}

func (s *FacilityStore) GetByID(ctx context.Context, facilityID string) (models.Facility, error) {
	var row models.Facility
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, address, latitude, longitude, total_slots, available_slots, price_per_hour, currency, is_active, created_at
		FROM parking_facilities
		WHERE id = $1
	`, facilityID)
	if err != nil {
		return models.Facility{}, err
	}
	return row, nil
}

// DecrementAvailable is a no-op once the counter reaches zero.
func (s *FacilityStore) DecrementAvailable(ctx context.Context, tx Execer, facilityID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE parking_facilities
		SET available_slots = available_slots - 1
		WHERE id = $1 AND available_slots > 0
	`, facilityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IncrementAvailable is a no-op once the counter reaches total_slots.
func (s *FacilityStore) IncrementAvailable(ctx context.Context, tx Execer, facilityID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE parking_facilities
		SET available_slots = available_slots + 1
		WHERE id = $1 AND available_slots < total_slots
	`, facilityID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

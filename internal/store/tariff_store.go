package store

import (
	"context"

	"parking/internal/models"
)

type TariffStore struct {
	db DB
}

func NewTariffStore(db DB) *TariffStore {
	return &TariffStore{db: db}
}

type TariffInput struct {
	ID              string
	Name            string
	Type            string
	Price           int64
	Currency        string
	DurationMinutes int
	FacilityID      *string
}

func (s *TariffStore) Create(ctx context.Context, tx Execer, input TariffInput) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tariffs (id, name, type, price, currency, duration_minutes, facility_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, input.ID, input.Name, input.Type, input.Price, input.Currency, input.DurationMinutes, input.FacilityID)
	return err
}

func (s *TariffStore) GetByID(ctx context.Context, tariffID string) (models.Tariff, error) {
	var row models.Tariff
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, type, price, currency, duration_minutes, is_active, facility_id
		FROM tariffs
		WHERE id = $1
	`, tariffID)
	if err != nil {
		return models.Tariff{}, err
	}
	return row, nil
}

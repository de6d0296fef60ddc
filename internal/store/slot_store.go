package store

import (
	"context"

	"parking/internal/models"
)

type SlotStore struct {
	db DB
}

func NewSlotStore(db DB) *SlotStore {
	return &SlotStore{db: db}
}

type SlotInput struct {
	ID         string
	FacilityID string
	Label      string
	Floor      int
	Zone       string
	Type       string
}

const slotColumns = `id, facility_id, label, floor, zone, type, is_occupied, is_reserved, status, sensor_id, updated_at`

func (s *SlotStore) GetByID(ctx context.Context, slotID string) (models.Slot, error) {
	var row models.Slot
	err := s.db.GetContext(ctx, &row, `SELECT `+slotColumns+` FROM parking_slots WHERE id = $1`, slotID)
	if err != nil {
		return models.Slot{}, err
	}
	return row, nil
}

func (s *SlotStore) GetByLabel(ctx context.Context, facilityID, label string) (models.Slot, error) {
	var row models.Slot
	err := s.db.GetContext(ctx, &row, `
		SELECT `+slotColumns+`
		FROM parking_slots
		WHERE facility_id = $1 AND label = $2
	`, facilityID, label)
	if err != nil {
		return models.Slot{}, err
	}
	return row, nil
}

// CreateIfMissing inserts the slot unless (facility_id, label) already
// exists. Zero affected rows means another writer created it first.
func (s *SlotStore) CreateIfMissing(ctx context.Context, tx Execer, input SlotInput) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO parking_slots (id, facility_id, label, floor, zone, type, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'available')
		ON CONFLICT (facility_id, label) DO NOTHING
	`, input.ID, input.FacilityID, input.Label, input.Floor, input.Zone, input.Type)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SlotStore) LockForUpdate(ctx context.Context, tx Getter, slotID string) (models.Slot, error) {
	var row models.Slot
	err := tx.GetContext(ctx, &row, `SELECT `+slotColumns+` FROM parking_slots WHERE id = $1 FOR UPDATE`, slotID)
	if err != nil {
		return models.Slot{}, err
	}
	return row, nil
}

// UpdateSensor records a sensor reading. Slots under maintenance keep their
// status; the occupancy flag is still updated.
func (s *SlotStore) UpdateSensor(ctx context.Context, tx Execer, slotID string, occupied bool, sensorID *string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE parking_slots
		SET is_occupied = $2,
		    sensor_id = COALESCE($3, sensor_id),
		    status = CASE
		        WHEN status = 'maintenance' THEN status
		        WHEN $2 THEN 'occupied'
		        WHEN is_reserved THEN 'reserved'
		        ELSE 'available'
		    END,
		    updated_at = NOW()
		WHERE id = $1
	`, slotID, occupied, sensorID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

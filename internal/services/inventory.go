package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"parking/internal/db"
	"parking/internal/models"
	"parking/internal/money"
	"parking/internal/store"
	"parking/internal/validator"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type FacilityStore interface {
	Create(ctx context.Context, tx store.Execer, input store.FacilityInput) error
	GetByID(ctx context.Context, facilityID string) (models.Facility, error)
	DecrementAvailable(ctx context.Context, tx store.Execer, facilityID string) (int64, error)
	IncrementAvailable(ctx context.Context, tx store.Execer, facilityID string) (int64, error)
}

type SlotStore interface {
	GetByID(ctx context.Context, slotID string) (models.Slot, error)
	GetByLabel(ctx context.Context, facilityID, label string) (models.Slot, error)
	CreateIfMissing(ctx context.Context, tx store.Execer, input store.SlotInput) (int64, error)
	LockForUpdate(ctx context.Context, tx store.Getter, slotID string) (models.Slot, error)
	UpdateSensor(ctx context.Context, tx store.Execer, slotID string, occupied bool, sensorID *string) (int64, error)
}

type TariffStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TariffInput) error
	GetByID(ctx context.Context, tariffID string) (models.Tariff, error)
}

type OccupancyStore interface {
	ListOccupiedLabels(ctx context.Context, facilityID string, asOf time.Time) ([]string, error)
}

const (
	defaultSlotZone  = "A"
	defaultSlotFloor = 0
	maxFacilitySlots = 5000
)

// Inventory owns slots and the per-facility availability counter.
type Inventory struct {
	txRunner   db.TxRunner
	facilities FacilityStore
	slots      SlotStore
	tariffs    TariffStore
	occupancy  OccupancyStore
	audit      AuditStore
	autoCreate bool
	logger     logrus.FieldLogger
}

func NewInventory(txRunner db.TxRunner, facilities FacilityStore, slots SlotStore, tariffs TariffStore, occupancy OccupancyStore, audit AuditStore, autoCreate bool, logger logrus.FieldLogger) *Inventory {
	return &Inventory{
		txRunner:   txRunner,
		facilities: facilities,
		slots:      slots,
		tariffs:    tariffs,
		occupancy:  occupancy,
		audit:      audit,
		autoCreate: autoCreate,
		logger:     logger,
	}
}

// ResolveSlot finds the slot a booking refers to, by id or by label within
// the facility. An unknown label creates a standard slot when auto-create is
// on; concurrent creators of the same label end up with the same row.
func (i *Inventory) ResolveSlot(ctx context.Context, facilityID, slotID, label string) (models.Slot, error) {
	facility, err := i.facilities.GetByID(ctx, facilityID)
	if err != nil {
		return models.Slot{}, notFound("facility", err)
	}
	if !facility.IsActive {
		return models.Slot{}, fmt.Errorf("%w: facility", ErrNotFound)
	}
	if slotID != "" {
		slot, err := i.slots.GetByID(ctx, slotID)
		if err != nil {
			return models.Slot{}, notFound("slot", err)
		}
		if slot.FacilityID != facilityID {
			return models.Slot{}, fmt.Errorf("%w: slot", ErrNotFound)
		}
		return slot, nil
	}
	if strings.TrimSpace(label) == "" {
		return models.Slot{}, invalidInput("slotId or spotNumber is required")
	}
	normalized, err := validator.NormalizeLabel(label)
	if err != nil {
		return models.Slot{}, invalidInput("spot number %q", label)
	}
	slot, err := i.slots.GetByLabel(ctx, facilityID, normalized)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.Slot{}, err
	}
	if !i.autoCreate {
		return models.Slot{}, fmt.Errorf("%w: slot", ErrNotFound)
	}
	err = i.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		newID := uuid.NewString()
		rows, err := i.slots.CreateIfMissing(ctx, tx, store.SlotInput{
			ID:         newID,
			FacilityID: facilityID,
			Label:      normalized,
			Floor:      defaultSlotFloor,
			Zone:       defaultSlotZone,
			Type:       models.SlotTypeStandard,
		})
		if err != nil || rows == 0 {
			return err
		}
		data, _ := json.Marshal(map[string]string{"facility_id": facilityID, "label": normalized})
		return i.audit.Log(ctx, tx, "", "slot_auto_created", "slot", newID, string(data))
	})
	if err != nil {
		return models.Slot{}, err
	}
	i.logger.WithFields(logrus.Fields{"facility_id": facilityID, "label": normalized}).Info("slot created on first booking")
	slot, err = i.slots.GetByLabel(ctx, facilityID, normalized)
	if err != nil {
		return models.Slot{}, notFound("slot", err)
	}
	return slot, nil
}

// LockSlot takes the row lock that serializes bookings of one slot for the
// rest of the transaction.
func (i *Inventory) LockSlot(ctx context.Context, tx store.Getter, slotID string) (models.Slot, error) {
	slot, err := i.slots.LockForUpdate(ctx, tx, slotID)
	if err != nil {
		return models.Slot{}, notFound("slot", err)
	}
	return slot, nil
}

// DecrementAvailable is a no-op when the counter is already zero.
func (i *Inventory) DecrementAvailable(ctx context.Context, tx store.Execer, facilityID string) error {
	rows, err := i.facilities.DecrementAvailable(ctx, tx, facilityID)
	if err != nil {
		return err
	}
	if rows == 0 {
		i.logger.WithField("facility_id", facilityID).Debug("available slots already at zero")
	}
	return nil
}

// IncrementAvailable is a no-op when the counter is already at capacity.
func (i *Inventory) IncrementAvailable(ctx context.Context, tx store.Execer, facilityID string) error {
	rows, err := i.facilities.IncrementAvailable(ctx, tx, facilityID)
	if err != nil {
		return err
	}
	if rows == 0 {
		i.logger.WithField("facility_id", facilityID).Debug("available slots already at capacity")
	}
	return nil
}

func (i *Inventory) ListOccupied(ctx context.Context, facilityID string, asOf time.Time) ([]string, error) {
	if _, err := i.facilities.GetByID(ctx, facilityID); err != nil {
		return nil, notFound("facility", err)
	}
	labels, err := i.occupancy.ListOccupiedLabels(ctx, facilityID, asOf)
	if err != nil {
		return nil, err
	}
	if labels == nil {
		labels = []string{}
	}
	return labels, nil
}

func (i *Inventory) GetFacility(ctx context.Context, facilityID string) (models.Facility, error) {
	facility, err := i.facilities.GetByID(ctx, facilityID)
	if err != nil {
		return models.Facility{}, notFound("facility", err)
	}
	return facility, nil
}

// ActiveTariff loads a tariff usable for a booking at facilityID. Inactive
// tariffs and tariffs owned by another facility are reported as missing.
func (i *Inventory) ActiveTariff(ctx context.Context, tariffID, facilityID string) (models.Tariff, error) {
	tariff, err := i.tariffs.GetByID(ctx, tariffID)
	if err != nil {
		return models.Tariff{}, notFound("tariff", err)
	}
	if !tariff.IsActive {
		return models.Tariff{}, fmt.Errorf("%w: tariff", ErrNotFound)
	}
	if tariff.FacilityID != nil && *tariff.FacilityID != facilityID {
		return models.Tariff{}, fmt.Errorf("%w: tariff", ErrNotFound)
	}
	return tariff, nil
}

type CreateFacilityRequest struct {
	ActorID      string
	Name         string
	Address      string
	Latitude     float64
	Longitude    float64
	TotalSlots   int
	PricePerHour int64
	Currency     string
	Zone         string
}

// CreateFacility inserts the facility and its slots, labelled <zone>-1 to
// <zone>-N, in one transaction.
func (i *Inventory) CreateFacility(ctx context.Context, req CreateFacilityRequest) (models.Facility, error) {
	if strings.TrimSpace(req.Name) == "" {
		return models.Facility{}, invalidInput("name is required")
	}
	if req.TotalSlots < 0 || req.TotalSlots > maxFacilitySlots {
		return models.Facility{}, invalidInput("totalSlots must be between 0 and %d", maxFacilitySlots)
	}
	if req.PricePerHour < 0 {
		return models.Facility{}, invalidInput("pricePerHour must not be negative")
	}
	currency := money.MDL
	if req.Currency != "" {
		normalized, err := money.NormalizeCurrency(req.Currency)
		if err != nil {
			return models.Facility{}, invalidInput("currency %q", req.Currency)
		}
		currency = normalized
	}
	zone := strings.ToUpper(strings.TrimSpace(req.Zone))
	if zone == "" {
		zone = defaultSlotZone
	}
	if err := validator.ValidateZone(zone); err != nil {
		return models.Facility{}, invalidInput("zone %q", req.Zone)
	}
	facilityID := uuid.NewString()
	err := i.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := i.facilities.Create(ctx, tx, store.FacilityInput{
			ID:           facilityID,
			Name:         strings.TrimSpace(req.Name),
			Address:      strings.TrimSpace(req.Address),
			Latitude:     req.Latitude,
			Longitude:    req.Longitude,
			TotalSlots:   req.TotalSlots,
			PricePerHour: req.PricePerHour,
			Currency:     currency,
		}); err != nil {
			return err
		}
		for n := 1; n <= req.TotalSlots; n++ {
			if _, err := i.slots.CreateIfMissing(ctx, tx, store.SlotInput{
				ID:         uuid.NewString(),
				FacilityID: facilityID,
				Label:      fmt.Sprintf("%s-%d", zone, n),
				Floor:      defaultSlotFloor,
				Zone:       zone,
				Type:       models.SlotTypeStandard,
			}); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]any{"name": req.Name, "total_slots": req.TotalSlots})
		return i.audit.Log(ctx, tx, req.ActorID, "facility_created", "facility", facilityID, string(data))
	})
	if err != nil {
		return models.Facility{}, err
	}
	return i.GetFacility(ctx, facilityID)
}

type CreateTariffRequest struct {
	ActorID         string
	Name            string
	Type            string
	PriceMinor      int64
	Currency        string
	DurationMinutes int
	FacilityID      *string
}

func (i *Inventory) CreateTariff(ctx context.Context, req CreateTariffRequest) (models.Tariff, error) {
	if strings.TrimSpace(req.Name) == "" {
		return models.Tariff{}, invalidInput("name is required")
	}
	if err := validator.ValidateTariffType(req.Type); err != nil {
		return models.Tariff{}, invalidInput("tariff type %q", req.Type)
	}
	if req.PriceMinor < 0 {
		return models.Tariff{}, invalidInput("price must not be negative")
	}
	if req.DurationMinutes <= 0 {
		return models.Tariff{}, invalidInput("durationMinutes must be positive")
	}
	currency, err := money.NormalizeCurrency(req.Currency)
	if err != nil {
		return models.Tariff{}, invalidInput("currency %q", req.Currency)
	}
	if req.FacilityID != nil {
		if _, err := i.GetFacility(ctx, *req.FacilityID); err != nil {
			return models.Tariff{}, err
		}
	}
	tariffID := uuid.NewString()
	err = i.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := i.tariffs.Create(ctx, tx, store.TariffInput{
			ID:              tariffID,
			Name:            strings.TrimSpace(req.Name),
			Type:            req.Type,
			Price:           req.PriceMinor,
			Currency:        currency,
			DurationMinutes: req.DurationMinutes,
			FacilityID:      req.FacilityID,
		}); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]any{"price": money.FormatMinor(req.PriceMinor), "currency": currency})
		return i.audit.Log(ctx, tx, req.ActorID, "tariff_created", "tariff", tariffID, string(data))
	})
	if err != nil {
		return models.Tariff{}, err
	}
	tariff, err := i.tariffs.GetByID(ctx, tariffID)
	if err != nil {
		return models.Tariff{}, notFound("tariff", err)
	}
	return tariff, nil
}

// UpdateSlotSensor records a sensor reading on the slot. It never touches
// the facility counter, which follows bookings only.
func (i *Inventory) UpdateSlotSensor(ctx context.Context, actorID, slotID string, occupied bool, sensorID *string) (models.Slot, error) {
	err := i.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		rows, err := i.slots.UpdateSensor(ctx, tx, slotID, occupied, sensorID)
		if err != nil {
			return err
		}
		if rows == 0 {
			return fmt.Errorf("%w: slot", ErrNotFound)
		}
		data, _ := json.Marshal(map[string]any{"occupied": occupied, "sensor_id": sensorID})
		return i.audit.Log(ctx, tx, actorID, "slot_sensor_update", "slot", slotID, string(data))
	})
	if err != nil {
		return models.Slot{}, err
	}
	slot, err := i.slots.GetByID(ctx, slotID)
	if err != nil {
		return models.Slot{}, notFound("slot", err)
	}
	return slot, nil
}

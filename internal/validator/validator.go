package validator

import (
	"errors"
	"regexp"
	"strings"

	"parking/internal/models"
)

var (
	ErrInvalidLabel      = errors.New("invalid slot label")
	ErrInvalidSlotType   = errors.New("invalid slot type")
	ErrInvalidTariffType = errors.New("invalid tariff type")
	ErrInvalidZone       = errors.New("invalid zone")
)

var (
	labelRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,31}$`)
	zoneRegex  = regexp.MustCompile(`^[A-Z]{1,3}$`)
)

// NormalizeLabel trims and upper-cases a slot label, so "a-15" and "A-15"
// address the same slot.
func NormalizeLabel(label string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(label))
	if !labelRegex.MatchString(normalized) {
		return "", ErrInvalidLabel
	}
	return normalized, nil
}

func ValidateZone(zone string) error {
	if !zoneRegex.MatchString(zone) {
		return ErrInvalidZone
	}
	return nil
}

func ValidateSlotType(slotType string) error {
	switch slotType {
	case models.SlotTypeStandard, models.SlotTypeDisabled, models.SlotTypeElectric, models.SlotTypeFamily:
		return nil
	}
	return ErrInvalidSlotType
}

func ValidateTariffType(tariffType string) error {
	switch tariffType {
	case models.TariffHourly, models.TariffDaily, models.TariffWeekly, models.TariffMonthly:
		return nil
	}
	return ErrInvalidTariffType
}

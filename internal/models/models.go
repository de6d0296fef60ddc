package models

import "time"

type BookingStatus string

const (
	BookingActive    BookingStatus = "active"
	BookingCompleted BookingStatus = "completed"
	BookingCancelled BookingStatus = "cancelled"
)

type PaymentStatus string

const (
	PaymentPaid     PaymentStatus = "paid"
	PaymentPending  PaymentStatus = "pending"
	PaymentRefunded PaymentStatus = "refunded"
)

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotOccupied    SlotStatus = "occupied"
	SlotReserved    SlotStatus = "reserved"
	SlotMaintenance SlotStatus = "maintenance"
)

const (
	SlotTypeStandard = "standard"
	SlotTypeDisabled = "disabled"
	SlotTypeElectric = "electric"
	SlotTypeFamily   = "family"
)

const (
	TariffHourly  = "hourly"
	TariffDaily   = "daily"
	TariffWeekly  = "weekly"
	TariffMonthly = "monthly"
)

const (
	TransactionDeposit    = "deposit"
	TransactionWithdrawal = "withdrawal"
	TransactionPayment    = "payment"
	TransactionRefund     = "refund"
)

const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
	TransactionCancelled = "cancelled"
)

type User struct {
	ID                 string    `db:"id" json:"id"`
	Email              string    `db:"email" json:"email"`
	Role               string    `db:"role" json:"role"`
	PreferredCurrency  string    `db:"preferred_currency" json:"preferredCurrency"`
	HasUsedFreeBooking bool      `db:"has_used_free_booking" json:"hasUsedFreeBooking"`
	CreatedAt          time.Time `db:"created_at" json:"createdAt"`
}

type Account struct {
	ID        string  `db:"id" json:"id"`
	UserID    *string `db:"user_id" json:"userId,omitempty"`
	Currency  string  `db:"currency" json:"currency"`
	Balance   int64   `db:"balance" json:"balance"`
	IsSystem  bool    `db:"is_system" json:"isSystem"`
	SystemKey *string `db:"system_key" json:"-"`
}

type Transaction struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"userId"`
	Type             string    `db:"type" json:"type"`
	Status           string    `db:"status" json:"status"`
	Amount           int64     `db:"amount" json:"amount"`
	Currency         string    `db:"currency" json:"currency"`
	Description      string    `db:"description" json:"description"`
	RelatedBookingID *string   `db:"related_booking_id" json:"relatedBookingId,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
}

type Facility struct {
	ID             string    `db:"id" json:"id"`
	Name           string    `db:"name" json:"name"`
	Address        string    `db:"address" json:"address"`
	Latitude       float64   `db:"latitude" json:"latitude"`
	Longitude      float64   `db:"longitude" json:"longitude"`
	TotalSlots     int       `db:"total_slots" json:"totalSlots"`
	AvailableSlots int       `db:"available_slots" json:"availableSlots"`
	PricePerHour   int64     `db:"price_per_hour" json:"pricePerHour"`
	Currency       string    `db:"currency" json:"currency"`
	IsActive       bool      `db:"is_active" json:"isActive"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

type Slot struct {
	ID         string     `db:"id" json:"id"`
	FacilityID string     `db:"facility_id" json:"facilityId"`
	Label      string     `db:"label" json:"label"`
	Floor      int        `db:"floor" json:"floor"`
	Zone       string     `db:"zone" json:"zone"`
	Type       string     `db:"type" json:"type"`
	IsOccupied bool       `db:"is_occupied" json:"isOccupied"`
	IsReserved bool       `db:"is_reserved" json:"isReserved"`
	Status     SlotStatus `db:"status" json:"status"`
	SensorID   *string    `db:"sensor_id" json:"sensorId,omitempty"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updatedAt"`
}

type Tariff struct {
	ID              string  `db:"id" json:"id"`
	Name            string  `db:"name" json:"name"`
	Type            string  `db:"type" json:"type"`
	Price           int64   `db:"price" json:"price"`
	Currency        string  `db:"currency" json:"currency"`
	DurationMinutes int     `db:"duration_minutes" json:"durationMinutes"`
	IsActive        bool    `db:"is_active" json:"isActive"`
	FacilityID      *string `db:"facility_id" json:"facilityId,omitempty"`
}

type Booking struct {
	ID                   string        `db:"id" json:"id"`
	UserID               string        `db:"user_id" json:"userId"`
	FacilityID           string        `db:"facility_id" json:"parkingId"`
	SlotID               string        `db:"slot_id" json:"slotId"`
	SlotLabel            string        `db:"slot_label" json:"spotNumber"`
	TariffID             string        `db:"tariff_id" json:"tariffId"`
	StartTime            time.Time     `db:"start_time" json:"startTime"`
	EndTime              time.Time     `db:"end_time" json:"endTime"`
	Status               BookingStatus `db:"status" json:"status"`
	TotalPrice           int64         `db:"total_price" json:"-"`
	Currency             string        `db:"currency" json:"currency"`
	PaymentStatus        PaymentStatus `db:"payment_status" json:"paymentStatus"`
	IsFree               bool          `db:"is_free" json:"isFree"`
	PaymentTransactionID *string       `db:"payment_transaction_id" json:"paymentTransactionId,omitempty"`
	IdempotencyKey       *string       `db:"idempotency_key" json:"-"`
	CreatedAt            time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time     `db:"updated_at" json:"updatedAt"`
}

// Overlaps reports whether the half-open intervals [start, end) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

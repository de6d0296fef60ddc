package events

import (
	"encoding/json"
	"time"
)

const (
	BookingCreated   = "booking_created"
	BookingCancelled = "booking_cancelled"
	BookingCompleted = "booking_completed"
)

type BookingEvent struct {
	Type       string    `json:"type"`
	BookingID  string    `json:"booking_id"`
	UserID     string    `json:"user_id"`
	FacilityID string    `json:"facility_id"`
	SlotLabel  string    `json:"slot_label"`
	Status     string    `json:"status"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	IsFree     bool      `json:"is_free"`
	Refunded   bool      `json:"refunded,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func Decode(data []byte) (BookingEvent, error) {
	var event BookingEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return BookingEvent{}, err
	}
	return event, nil
}

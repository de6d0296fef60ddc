package events

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Notifier turns booking events into user-facing notifications. Delivery is a
// structured log line; a mail or push sender can replace it behind Handle.
type Notifier struct {
	logger logrus.FieldLogger
}

func NewNotifier(logger logrus.FieldLogger) *Notifier {
	return &Notifier{logger: logger}
}

func (n *Notifier) Handle(_ context.Context, event BookingEvent) error {
	n.logger.WithFields(logrus.Fields{
		"user_id":    event.UserID,
		"booking_id": event.BookingID,
		"type":       event.Type,
	}).Info(Message(event))
	return nil
}

func Message(event BookingEvent) string {
	window := fmt.Sprintf("%s - %s", event.StartTime.Format("2006-01-02 15:04"), event.EndTime.Format("15:04"))
	switch event.Type {
	case BookingCreated:
		if event.IsFree {
			return fmt.Sprintf("Free booking confirmed for spot %s, %s", event.SlotLabel, window)
		}
		return fmt.Sprintf("Booking confirmed for spot %s, %s. Charged %s %s", event.SlotLabel, window, event.Amount, event.Currency)
	case BookingCancelled:
		if event.Refunded {
			return fmt.Sprintf("Booking for spot %s cancelled. Refunded %s %s", event.SlotLabel, event.Amount, event.Currency)
		}
		return fmt.Sprintf("Booking for spot %s cancelled", event.SlotLabel)
	case BookingCompleted:
		return fmt.Sprintf("Booking for spot %s completed", event.SlotLabel)
	default:
		return fmt.Sprintf("Booking %s updated: %s", event.BookingID, event.Status)
	}
}

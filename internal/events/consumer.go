package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type Handler func(ctx context.Context, event BookingEvent) error

type Consumer struct {
	reader *kafka.Reader
	logger logrus.FieldLogger
}

func NewConsumer(brokers []string, groupID, topic string, logger logrus.FieldLogger) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:           brokers,
			GroupID:           groupID,
			Topic:             topic,
			HeartbeatInterval: 3 * time.Second,
			SessionTimeout:    30 * time.Second,
		}),
		logger: logger,
	}
}

func (c *Consumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Consume blocks until ctx is done or the reader fails. Messages that cannot
// be decoded are logged and skipped.
func (c *Consumer) Consume(ctx context.Context, handle Handler) error {
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			return err
		}
		if err := dispatch(ctx, msg.Value, handle, c.logger.WithField("offset", msg.Offset)); err != nil {
			return err
		}
	}
}

func dispatch(ctx context.Context, payload []byte, handle Handler, logger logrus.FieldLogger) error {
	event, err := Decode(payload)
	if err != nil {
		logger.WithError(err).Warn("skipping undecodable booking event")
		return nil
	}
	return handle(ctx, event)
}

// Command worker completes bookings whose window has ended and, when kafka
// is configured, turns booking events into user notifications.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"parking/internal/app"
	"parking/internal/config"
	"parking/internal/db"
	"parking/internal/events"
	"parking/internal/logging"

	"github.com/robfig/cron/v3"
)

const sweepBatch = 200

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	services, err := app.New(cfg, database, nil, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build services")
	}
	defer services.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.SweepSchedule, func() {
		sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		completed, err := services.Bookings.CompleteExpired(sweepCtx, time.Now().UTC(), sweepBatch)
		entry := logger.WithField("completed", completed)
		if err != nil {
			entry.WithError(err).Warn("expiry sweep finished with errors")
			return
		}
		if completed > 0 {
			entry.Info("expired bookings completed")
		}
	}); err != nil {
		logger.WithError(err).WithField("schedule", cfg.SweepSchedule).Fatal("invalid sweep schedule")
	}
	scheduler.Start()
	logger.WithField("schedule", cfg.SweepSchedule).Info("expiry sweep scheduled")

	var wg sync.WaitGroup
	if len(cfg.KafkaBrokers) > 0 {
		consumer := events.NewConsumer(cfg.KafkaBrokers, cfg.KafkaGroupID, cfg.KafkaBookingTopic, logger)
		notifier := events.NewNotifier(logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer consumer.Close()
			if err := consumer.Consume(ctx, notifier.Handle); err != nil && ctx.Err() == nil {
				logger.WithError(err).Error("booking event consumer stopped")
			}
		}()
	}

	<-ctx.Done()
	logger.Info("worker shutting down")
	<-scheduler.Stop().Done()
	wg.Wait()
}

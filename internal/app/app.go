// Package app wires stores, services and optional infrastructure from Config.
// The server and the worker share it so both run the same booking rules.
package app

import (
	"context"
	"errors"
	"time"

	"parking/internal/cache"
	"parking/internal/config"
	"parking/internal/db"
	"parking/internal/events"
	"parking/internal/metrics"
	"parking/internal/qrcode"
	"parking/internal/rates"
	"parking/internal/services"
	"parking/internal/store"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

type App struct {
	Bookings  *services.BookingService
	Inventory *services.Inventory
	Ledger    *services.Ledger
	Audit     *store.AuditStore
	Metrics   *metrics.Metrics

	closers []func() error
}

// New builds the services. A nil hub disables balance pushes, which is what
// the worker wants since it holds no websocket connections.
func New(cfg config.Config, database *sqlx.DB, hub services.BalanceHub, logger logrus.FieldLogger) (*App, error) {
	app := &App{Metrics: metrics.New("parking")}

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	entries := store.NewLedgerStore(database)
	transactions := store.NewTransactionStore(database)
	facilities := store.NewFacilityStore(database)
	slots := store.NewSlotStore(database)
	tariffs := store.NewTariffStore(database)
	bookings := store.NewBookingStore(database)
	app.Audit = store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	rateSource, err := newRateSource(cfg, logger)
	if err != nil {
		return nil, err
	}

	app.Ledger = services.NewLedger(txRunner, users, accounts, entries, transactions, app.Audit, rateSource, hub, logger)
	app.Inventory = services.NewInventory(txRunner, facilities, slots, tariffs, bookings, app.Audit, cfg.SlotAutoCreate, logger)

	qr, err := qrcode.NewGenerator(cfg.QRSecret)
	if err != nil {
		return nil, err
	}
	opts := []services.BookingOption{
		services.WithQRGenerator(qr),
		services.WithMetrics(app.Metrics),
		services.WithLogger(logger),
		services.WithFreeDuration(time.Duration(cfg.FreeBookingMinutes) * time.Minute),
		services.WithTxTimeout(cfg.BookingTxTimeout),
	}
	if hub != nil {
		opts = append(opts, services.WithHub(hub))
	}

	if cfg.RedisAddr != "" {
		locker := cache.NewSlotLocker(cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.SlotLockTTL,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := locker.Ping(pingCtx); err != nil {
			logger.WithError(err).Warn("redis unreachable, slot locks fall back to row locks")
		}
		cancel()
		opts = append(opts, services.WithSlotLocker(locker))
		app.closers = append(app.closers, locker.Close)
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer := events.NewProducer(cfg.KafkaBrokers, cfg.KafkaBookingTopic)
		opts = append(opts, services.WithPublisher(producer))
		app.closers = append(app.closers, producer.Close)
	}

	app.Bookings = services.NewBookingService(txRunner, bookings, app.Inventory, app.Ledger, app.Audit, opts...)
	return app, nil
}

// Close releases redis and kafka clients.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// newRateSource prefers the live feed and falls back to the file table, or
// the built-in table when no file is configured.
func newRateSource(cfg config.Config, logger logrus.FieldLogger) (rates.Source, error) {
	var table rates.Source = rates.DefaultTable()
	if cfg.RatesFile != "" {
		loaded, err := rates.LoadTable(cfg.RatesFile)
		if err != nil {
			return nil, err
		}
		table = loaded
	}
	if cfg.RatesURL == "" {
		return table, nil
	}
	return rates.WithFallback(rates.NewHTTPSource(cfg.RatesURL, cfg.RatesTimeout), table, logger), nil
}

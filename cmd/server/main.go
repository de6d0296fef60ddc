package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parking/internal/app"
	"parking/internal/config"
	"parking/internal/db"
	"parking/internal/handlers"
	"parking/internal/logging"
	"parking/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect database")
	}
	defer database.Close()

	hub := websocket.NewHub()
	services, err := app.New(cfg, database, hub, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to build services")
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.WithError(err).Warn("failed to close clients")
		}
	}()

	handler := handlers.New(cfg, services.Bookings, services.Inventory, services.Ledger, services.Audit, hub, services.Metrics, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 20 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("addr", server.Addr).Info("parking API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server error")
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("shutdown error")
	}
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/i474232898/bundlecast/internal/api/http"
	"github.com/i474232898/bundlecast/internal/logger"
	"github.com/i474232898/bundlecast/internal/scheduler"
)

type ServeCmd struct {
	NoScheduler bool `help:"Serve the API without the nightly jobs."`
}

func (c *ServeCmd) Run(app *App) error {
	cfg := app.Config

	if !c.NoScheduler {
		// Scheduler that aggregates, enriches and forecasts every night.
		sched := scheduler.New(cfg.VendorIDs, scheduler.Config{
			NightlyAt:  cfg.NightlyAt,
			ForecastAt: cfg.ForecastAt,
		}, app.Pipeline)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
	}

	srv := fiber.New(fiber.Config{
		AppName:               "bundlecast",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.LookupTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	srv.Use(fiberlogger.New())
	srv.Use(recover.New())

	httpapi.RegisterRoutes(srv, httpapi.Deps{
		Pipeline:   app.Pipeline,
		Confidence: app.Confidence,
		Store:      app.Store,
	})

	go func() {
		logger.Info("http server listening", "port", cfg.Port)
		if err := srv.Listen(":" + cfg.Port); err != nil {
			logger.Error("fiber server stopped", "err", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "err", err)
	}
	return nil
}

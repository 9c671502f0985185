package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"

	httpapi "github.com/pkorhonen/ilmaris/internal/api/http"
	"github.com/pkorhonen/ilmaris/internal/config"
	"github.com/pkorhonen/ilmaris/internal/fmi"
	"github.com/pkorhonen/ilmaris/internal/scheduler"
	"github.com/pkorhonen/ilmaris/internal/store"
	"github.com/pkorhonen/ilmaris/internal/weather"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zapLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zapLogger.Sync()
	sugar := zapLogger.Sugar()

	// Postgres-backed store; schema is migrated on startup.
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL, sugar)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer pgStore.Close()

	// Shared HTTP client for outbound upstream calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	fmiClient := fmi.NewClient(httpClient, cfg.FMIBaseURL, cfg.FMIAPIKey, cfg.FMITimeseriesURL,
		cfg.ForecastDays, cfg.HourlyHours, sugar)

	// Core service orchestrating the tiered forecast resolution.
	service := weather.NewService(pgStore, fmiClient, weather.ServiceConfig{
		CacheTTL:        cfg.CacheTTL,
		DailyFreshness:  cfg.DailyFreshness,
		HourlyFreshness: cfg.HourlyFreshness,
		HourlyHorizon:   cfg.HourlyHours,
	}, sugar)

	// Scheduler that periodically pulls all-station observations.
	sched := scheduler.New(fmiClient, pgStore, cfg.FetchInterval, cfg.HTTPTimeout, sugar)
	if err := sched.Start(); err != nil {
		sugar.Fatalw("failed to start scheduler", "error", err)
	}
	defer sched.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "ilmaris",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "ilmaris",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, service, cfg.GeocoderAPIKey, sugar)

	go func() {
		sugar.Infow("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			sugar.Errorw("fiber server stopped", "error", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		sugar.Errorw("error during shutdown", "error", err)
	}
	sugar.Info("server stopped")
}

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkravets/priceport/internal/domain/catalog"
	"github.com/mkravets/priceport/internal/domain/importer"
	"github.com/mkravets/priceport/pkg/config"
	"github.com/mkravets/priceport/pkg/cron"
	"github.com/mkravets/priceport/pkg/db"
	"github.com/mkravets/priceport/pkg/metrics"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	// Storage
	Store       *catalog.PostgresStore
	SessionRepo *importer.PostgresRepository

	// Services
	PriceStats    *catalog.PriceStats
	ImportService *importer.Service

	// Handlers
	ImportHandler *importer.Handler

	// Infrastructure
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Scheduler *cron.Scheduler
}

// InitDependencies initializes all application dependencies
func InitDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := deps.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	// Initialize repositories
	if err := deps.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to init repositories: %w", err)
	}

	// Initialize services
	if err := deps.initServices(); err != nil {
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	// Initialize handlers
	if err := deps.initHandlers(); err != nil {
		return nil, fmt.Errorf("failed to init handlers: %w", err)
	}

	logger.Info("all dependencies initialized successfully")

	return deps, nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	database, err := db.New(db.Config{
		DSN:             d.Config.Database.DSN(),
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: 5 * time.Minute,
		MaxConnIdleTime: 10 * time.Minute,
	}, d.Logger)
	if err != nil {
		return err
	}

	d.DB = database

	// Run migrations
	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes the storage layer
func (d *Dependencies) initRepositories() error {
	d.Store = catalog.NewPostgresStore(d.DB.Pool)
	d.SessionRepo = importer.NewPostgresRepository(d.DB.Pool)

	d.Logger.Info("repositories initialized")
	return nil
}

// initServices initializes the service layer
func (d *Dependencies) initServices() error {
	d.Registry = prometheus.NewRegistry()
	d.Metrics = metrics.New(d.Registry)

	// Median cache over active price-list versions
	d.PriceStats = catalog.NewPriceStats(d.Store)

	d.ImportService = importer.NewService(d.SessionRepo, d.Store, d.PriceStats, d.Metrics, d.Logger)

	staleAfter := time.Duration(d.Config.Import.StaleSessionDays) * 24 * time.Hour
	d.Scheduler = cron.NewScheduler(d.ImportService, d.PriceStats, staleAfter, d.Logger)

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes the handler layer
func (d *Dependencies) initHandlers() error {
	d.ImportHandler = importer.NewHandler(d.ImportService, d.Logger)

	d.Logger.Info("handlers initialized")
	return nil
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.DB != nil {
		d.DB.Close()
	}
	d.Logger.Info("cleanup completed")
}

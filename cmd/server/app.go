package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/phrazzld/taskrelay/internal/config"
	"github.com/phrazzld/taskrelay/internal/events"
	"github.com/phrazzld/taskrelay/internal/platform/postgres"
	"github.com/phrazzld/taskrelay/internal/request"
	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/service"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/phrazzld/taskrelay/internal/task"
)

// metricsRegistry registers collectors and serves them on /metrics.
type metricsRegistry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// application holds the wired components so they can be routed and shut
// down together.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB
	reg    metricsRegistry

	registry  *schema.Registry
	validator *schema.Validator
	factory   *service.Factory
	scheduler *task.Scheduler
	gateway   *request.Gateway
	emitter   *events.InMemoryEventEmitter
}

// newApplication wires every component and starts the scheduler. db may be
// nil when no database is configured.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB, reg metricsRegistry) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
		reg:    reg,
	}

	if cfg.Schema.Source == "postgres" && db != nil {
		if err := postgres.Migrate(ctx, db, "up", logger); err != nil {
			return nil, err
		}
	}

	doc, err := loadSchema(ctx, cfg.Schema, db, logger)
	if err != nil {
		return nil, err
	}
	app.registry, err = schema.NewRegistry(doc)
	if err != nil {
		return nil, fmt.Errorf("invalid task schema: %w", err)
	}
	app.validator = schema.NewValidator(app.registry, nil, nil, logger)
	logger.Info("task schema loaded", "services", app.registry.Services())

	metrics := task.NewMetrics(reg)
	if err := metrics.Register(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	app.factory = service.NewFactory(logger)
	dispatcher := service.NewDispatcher(app.factory, logger)
	app.scheduler = task.NewScheduler(schedulerConfig(cfg.Scheduler), dispatcher, metrics, logger)

	deps := service.AdminDeps{
		Registry: app.registry,
		Factory:  app.factory,
		Stats:    app.scheduler,
	}
	if db != nil {
		deps.DB = db
	}
	if err := app.factory.RegisterInstance(service.NewAdminService(deps)); err != nil {
		return nil, fmt.Errorf("failed to register admin service: %w", err)
	}

	if err := app.scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	app.gateway = request.NewGateway(app.validator, app.scheduler, logger)
	app.emitter = events.NewInMemoryEventEmitter(logger)
	background := task.NewTaskEventHandler(app.scheduler, logger)
	background.ValidateWith(app.validator)
	app.emitter.Subscribe(task.EventTypeBackgroundTask, background)

	logger.Info("application initialized", "services", app.factory.Names())
	return app, nil
}

// loadSchema reads the user schema document. With the file source an empty
// path yields nil, leaving only the built-in default schema. With the
// postgres source the file document (or the default) seeds the table the
// first time.
func loadSchema(ctx context.Context, cfg config.SchemaConfig, db *sql.DB, logger *slog.Logger) (*schema.Document, error) {
	var fileDoc *schema.Document
	if cfg.Path != "" {
		doc, err := schema.LoadFile(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema file: %w", err)
		}
		fileDoc = doc
	}

	if cfg.Source != "postgres" {
		return fileDoc, nil
	}
	if db == nil {
		return nil, errors.New("schema source postgres needs a database")
	}

	seed := fileDoc
	if seed == nil {
		seed = schema.DefaultDocument()
	}
	seeded, err := postgres.SeedIfMissing(ctx, db, postgres.DefaultSchemaName, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to seed schema: %w", err)
	}
	if seeded {
		logger.Info("seeded task schema", "name", postgres.DefaultSchemaName)
	}

	doc, err := postgres.LoadDocument(ctx, db, postgres.DefaultSchemaName)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, fmt.Errorf("schema %q vanished after seeding: %w", postgres.DefaultSchemaName, err)
		}
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}
	return doc, nil
}

func schedulerConfig(c config.SchedulerConfig) task.Config {
	return task.Config{
		InteractiveCapacity: c.InteractiveCapacity,
		BackgroundCapacity:  c.BackgroundCapacity,
		ShortWorkers:        c.ShortWorkers,
		LongWorkers:         c.LongWorkers,
		DefaultUserQuota:    c.DefaultUserQuota,
		UserQuotas:          c.UserQuotas,
		PollInterval:        c.PollInterval,
		TaskTimeout:         c.TaskTimeout,
		SyncTimeout:         c.SyncTimeout,
		SyncSlots:           int64(c.SyncSlots),
		LongRunningServices: c.LongRunningServices,
	}
}

// cleanup stops the scheduler, releases service instances and closes the
// database.
func (app *application) cleanup(ctx context.Context) {
	if err := app.scheduler.Shutdown(ctx); err != nil {
		app.logger.Error("scheduler shutdown incomplete", "error", err)
	}
	app.factory.Close(ctx)

	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}

package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/phrazzld/taskrelay/internal/redact"
	"github.com/phrazzld/taskrelay/internal/schema"
	"github.com/phrazzld/taskrelay/internal/store"
	"github.com/phrazzld/taskrelay/internal/stream"
	"github.com/phrazzld/taskrelay/internal/task"
)

// StatsProvider reports scheduler state.
type StatsProvider interface {
	Stats() task.Stats
}

// AdminDeps are the collaborators of the admin service. Stats and DB may be
// nil.
type AdminDeps struct {
	Registry *schema.Registry
	Factory  *Factory
	Stats    StatsProvider
	DB       store.Database
	Environ  func() []string
}

// AdminService answers operational tasks about the running process.
type AdminService struct {
	deps AdminDeps
}

// NewAdminService creates the admin service. Environ defaults to
// os.Environ.
func NewAdminService(deps AdminDeps) *AdminService {
	if deps.Environ == nil {
		deps.Environ = os.Environ
	}
	return &AdminService{deps: deps}
}

// Name implements Service.
func (a *AdminService) Name() string {
	return schema.AdminService
}

// Handlers implements Service.
func (a *AdminService) Handlers() map[string]HandlerFunc {
	return map[string]HandlerFunc{
		"GET_ENVIRONMENT":          a.getEnvironment,
		"GET_REGISTERED_SERVICES":  a.getRegisteredServices,
		"GET_APPLICATION_SCHEMA":   a.getApplicationSchema,
		"GET_SCHEDULER_STATS":      a.getSchedulerStats,
		"TEST_DATABASE_CONNECTION": a.testDatabaseConnection,
		"LIST_LOGS":                notImplemented,
		"GET_LOG":                  notImplemented,
		"GET_REGISTERED_DATABASES": notImplemented,
	}
}

type environmentOptions struct {
	Redacted bool   `mapstructure:"redacted"`
	Filter   string `mapstructure:"filter"`
}

func (a *AdminService) getEnvironment(ctx context.Context, call *Call) error {
	opts := environmentOptions{Redacted: true}
	if err := call.Decode(&opts); err != nil {
		return err
	}

	settings := make(map[string]string)
	filter := strings.ToLower(opts.Filter)
	for _, kv := range a.deps.Environ() {
		key, value, _ := strings.Cut(kv, "=")
		if filter != "" && !strings.Contains(strings.ToLower(key), filter) {
			continue
		}
		settings[key] = value
	}
	if opts.Redacted {
		settings = redact.Settings(settings)
	}

	call.Logger.Info("environment requested", "redacted", opts.Redacted, "count", len(settings))
	return call.Stream.SendDataFinal(ctx, map[string]any{
		"environment": settings,
		"keys":        redact.Keys(settings),
		"redacted":    opts.Redacted,
	})
}

func (a *AdminService) getRegisteredServices(ctx context.Context, call *Call) error {
	services := make([]map[string]any, 0)
	for _, name := range a.deps.Factory.Names() {
		lifecycle, _ := a.deps.Factory.Lifecycle(name)
		services = append(services, map[string]any{
			"name":      name,
			"lifecycle": lifecycle.String(),
			"tasks":     a.deps.Registry.Tasks(name),
		})
	}
	return call.Stream.SendDataFinal(ctx, map[string]any{
		"services":        services,
		"schema_services": a.deps.Registry.Services(),
	})
}

func (a *AdminService) getApplicationSchema(ctx context.Context, call *Call) error {
	return call.Stream.SendDataFinal(ctx, a.deps.Registry.Document().ToMap())
}

func (a *AdminService) getSchedulerStats(ctx context.Context, call *Call) error {
	if a.deps.Stats == nil {
		return notImplemented(ctx, call)
	}
	return call.Stream.SendDataFinal(ctx, a.deps.Stats.Stats())
}

type databaseTestOptions struct {
	Database string `mapstructure:"database_project_name"`
	Table    string `mapstructure:"table_name"`
	Limit    int    `mapstructure:"limit"`
}

func (a *AdminService) testDatabaseConnection(ctx context.Context, call *Call) error {
	opts, err := Bind[databaseTestOptions](call)
	if err != nil {
		return err
	}
	if a.deps.DB == nil {
		return &Error{
			Type:               "task_not_implemented",
			Message:            fmt.Sprintf("no database is configured (requested %q)", opts.Database),
			UserVisibleMessage: "Database access is not configured for this server.",
		}
	}

	if err := call.Stream.SendStatus(ctx, stream.StatusProcessing, "Testing database connection",
		stream.WithMetadata(map[string]any{"database": opts.Database})); err != nil {
		return err
	}

	started := time.Now()
	if err := a.deps.DB.PingContext(ctx); err != nil {
		return &Error{
			Type:               "database_connection_error",
			Message:            "database ping failed",
			UserVisibleMessage: "Could not connect to the database.",
			Err:                err,
		}
	}
	result := map[string]any{
		"database":   opts.Database,
		"connected":  true,
		"latency_ms": time.Since(started).Milliseconds(),
	}

	if opts.Table != "" {
		count, err := countRows(ctx, a.deps.DB, opts.Table)
		if err != nil {
			return &Error{
				Type:               "database_query_error",
				Message:            fmt.Sprintf("could not count rows in %s", opts.Table),
				UserVisibleMessage: "The table could not be read.",
				Err:                err,
			}
		}
		result["table"] = opts.Table
		result["row_count"] = count
	}

	return call.Stream.SendDataFinal(ctx, result)
}

func countRows(ctx context.Context, db store.DBTX, table string) (int64, error) {
	ident := pgx.Identifier(strings.Split(table, "."))
	var count int64
	err := db.QueryRowContext(ctx, "SELECT count(*) FROM "+ident.Sanitize()).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return count, nil
}

func notImplemented(ctx context.Context, call *Call) error {
	call.Logger.Warn("task not implemented")
	return call.Stream.FatalError(ctx, stream.ErrorObject{
		Type:               "task_not_implemented",
		Message:            fmt.Sprintf("%s.%s is not implemented on this server", call.Service, strings.ToUpper(call.Task)),
		UserVisibleMessage: "This feature is not available yet.",
	})
}

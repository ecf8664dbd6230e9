package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
	Schema    SchemaConfig    `mapstructure:"schema" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Stream    StreamConfig    `mapstructure:"stream" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// SchedulerConfig sizes the admission queues and worker pools and sets the
// per-user quota and execution timeouts.
type SchedulerConfig struct {
	InteractiveCapacity int            `mapstructure:"interactive_capacity" validate:"gt=0"`
	BackgroundCapacity  int            `mapstructure:"background_capacity" validate:"gt=0"`
	ShortWorkers        int            `mapstructure:"short_workers" validate:"gt=0"`
	LongWorkers         int            `mapstructure:"long_workers" validate:"gt=0"`
	DefaultUserQuota    int            `mapstructure:"default_user_quota" validate:"gte=0"`
	UserQuotas          map[string]int `mapstructure:"user_quotas" validate:"dive,gte=0"`
	PollInterval        time.Duration  `mapstructure:"poll_interval" validate:"gt=0"`
	TaskTimeout         time.Duration  `mapstructure:"task_timeout" validate:"gt=0"`
	SyncTimeout         time.Duration  `mapstructure:"sync_timeout" validate:"gt=0"`
	SyncSlots           int            `mapstructure:"sync_slots" validate:"gt=0"`

	// LongRunningServices are routed to the long worker pool at admission.
	LongRunningServices []string `mapstructure:"long_running_services"`
}

// SchemaConfig says where the task schema document comes from. An empty
// Path with the file source means only the built-in default schema is used.
type SchemaConfig struct {
	Source string `mapstructure:"source" validate:"required,oneof=file postgres"`
	Path   string `mapstructure:"path"`
}

// DatabaseConfig contains all database-related configuration settings.
// The database is optional unless the schema source is postgres.
type DatabaseConfig struct {
	URL          string `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns int    `mapstructure:"max_open_conns" validate:"gte=0"`
}

// StreamConfig tunes the streaming carriers.
type StreamConfig struct {
	KeepaliveInterval time.Duration `mapstructure:"keepalive_interval" validate:"gt=0"`
	BufferSize        int           `mapstructure:"buffer_size" validate:"gt=0"`
}

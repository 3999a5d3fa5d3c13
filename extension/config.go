package extension

import (
	"time"

	"github.com/cleanhouse123/orderflow"
)

// Store drivers understood by Config.Driver.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMongo    = "mongo"
)

// Config holds the orderflow extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.orderflow" or "orderflow" keys).
type Config struct {
	// DisableRoutes prevents the HTTP handler from being provided.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate skips store migrations on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for orderflow routes (default: "/orderflow").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// ScheduleInterval is how often recurring orders are processed
	// (default: 30m). A negative value disables the background worker.
	ScheduleInterval time.Duration `json:"schedule_interval" mapstructure:"schedule_interval" yaml:"schedule_interval"`

	// OverdueGrace is how late an unstarted order may run before the
	// customer is notified (default: 15m).
	OverdueGrace time.Duration `json:"overdue_grace" mapstructure:"overdue_grace" yaml:"overdue_grace"`

	// DefaultScheduledDelay is how far ahead orders without an explicit
	// time are scheduled (default: 1h).
	DefaultScheduledDelay time.Duration `json:"default_scheduled_delay" mapstructure:"default_scheduled_delay" yaml:"default_scheduled_delay"`

	// NotificationTimeout bounds each background notification (default: 10s).
	NotificationTimeout time.Duration `json:"notification_timeout" mapstructure:"notification_timeout" yaml:"notification_timeout"`

	// Driver selects the store backend built around the grove.DB passed
	// with WithGroveDB: "postgres", "sqlite" or "mongo". Without a grove
	// database the in-memory store is used.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" mapstructure:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:              "/orderflow",
		ScheduleInterval:      orderflow.DefaultScheduleInterval,
		OverdueGrace:          orderflow.DefaultOverdueGrace,
		DefaultScheduledDelay: orderflow.DefaultScheduledDelay,
		NotificationTimeout:   orderflow.DefaultNotificationTimeout,
		Driver:                DriverMemory,
	}
}

// MergeWithDefaults fills zero-valued fields with defaults.
func MergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.ScheduleInterval == 0 {
		cfg.ScheduleInterval = defaults.ScheduleInterval
	}
	if cfg.OverdueGrace == 0 {
		cfg.OverdueGrace = defaults.OverdueGrace
	}
	if cfg.DefaultScheduledDelay == 0 {
		cfg.DefaultScheduledDelay = defaults.DefaultScheduledDelay
	}
	if cfg.NotificationTimeout == 0 {
		cfg.NotificationTimeout = defaults.NotificationTimeout
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	return cfg
}

// MergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func MergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}

	// Duration fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.ScheduleInterval == 0 && programmaticConfig.ScheduleInterval != 0 {
		yamlConfig.ScheduleInterval = programmaticConfig.ScheduleInterval
	}
	if yamlConfig.OverdueGrace == 0 && programmaticConfig.OverdueGrace != 0 {
		yamlConfig.OverdueGrace = programmaticConfig.OverdueGrace
	}
	if yamlConfig.DefaultScheduledDelay == 0 && programmaticConfig.DefaultScheduledDelay != 0 {
		yamlConfig.DefaultScheduledDelay = programmaticConfig.DefaultScheduledDelay
	}
	if yamlConfig.NotificationTimeout == 0 && programmaticConfig.NotificationTimeout != 0 {
		yamlConfig.NotificationTimeout = programmaticConfig.NotificationTimeout
	}

	// Fill remaining zeros with defaults.
	return MergeWithDefaults(yamlConfig)
}

// EngineOptions maps the resolved config to engine options.
func (c Config) EngineOptions() []orderflow.Option {
	interval := c.ScheduleInterval
	if interval < 0 {
		interval = 0
	}
	opts := []orderflow.Option{
		orderflow.WithScheduleInterval(interval),
		orderflow.WithOverdueGrace(c.OverdueGrace),
		orderflow.WithDefaultScheduledDelay(c.DefaultScheduledDelay),
		orderflow.WithNotificationTimeout(c.NotificationTimeout),
	}
	if c.DisableMigrate {
		opts = append(opts, orderflow.WithoutMigrate())
	}
	return opts
}

package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/plugin"
	"github.com/cleanhouse123/orderflow/store"
)

// Option configures the orderflow Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine. It takes precedence over
// WithGroveDB.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithEngineOption passes an orderflow.Option through to the engine.
func WithEngineOption(opt orderflow.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an orderflow plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, orderflow.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableRoutes prevents HTTP handler registration.
func WithDisableRoutes() Option {
	return func(e *Extension) { e.config.DisableRoutes = true }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithBasePath sets the URL prefix for orderflow routes.
func WithBasePath(path string) Option {
	return func(e *Extension) { e.config.BasePath = path }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithScheduleInterval sets how often recurring orders are processed.
func WithScheduleInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.ScheduleInterval = d }
}

// WithOverdueGrace sets how late an unstarted order may run before the
// customer is notified.
func WithOverdueGrace(d time.Duration) Option {
	return func(e *Extension) { e.config.OverdueGrace = d }
}

// WithGroveDB builds the store around db using the given driver
// ("postgres", "sqlite" or "mongo").
func WithGroveDB(db *grove.DB, driver string) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.config.Driver = driver
	}
}

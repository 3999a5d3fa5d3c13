package orderflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cleanhouse123/orderflow/notify"
	"github.com/cleanhouse123/orderflow/plugin"
	"github.com/cleanhouse123/orderflow/store"
)

// Defaults applied by New.
const (
	DefaultScheduleInterval      = 30 * time.Minute
	DefaultOverdueGrace          = 15 * time.Minute
	DefaultScheduledDelay        = time.Hour
	DefaultNotificationTimeout   = notify.DefaultTimeout
	defaultWorkerShutdownTimeout = 30 * time.Second
	defaultPassTimeout           = 10 * time.Minute
)

// Engine is the order lifecycle, payment reconciliation and recurring
// order core.
type Engine struct {
	store   store.Store
	plugins *plugin.Registry
	logger  *slog.Logger
	clock   func() time.Time

	// Collaborators
	users    notify.UserDirectory
	channel  notify.NotificationChannel
	push     notify.PushNotifier
	notifier *notify.Dispatcher

	// Background worker
	tick       singleflight.Group
	life       context.Context
	endLife    context.CancelFunc
	stopChan   chan struct{}
	cancelWork context.CancelFunc
	stopOnce   sync.Once
	wg         sync.WaitGroup

	// Configuration
	scheduleInterval    time.Duration
	overdueGrace        time.Duration
	scheduledDelay      time.Duration
	notificationTimeout time.Duration
	skipMigrate         bool
}

// New creates a new Engine.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:               s,
		plugins:             plugin.NewRegistry(),
		logger:              slog.Default(),
		clock:               time.Now,
		users:               notify.NewStaticDirectory(),
		stopChan:            make(chan struct{}),
		scheduleInterval:    DefaultScheduleInterval,
		overdueGrace:        DefaultOverdueGrace,
		scheduledDelay:      DefaultScheduledDelay,
		notificationTimeout: DefaultNotificationTimeout,
	}

	e.life, e.endLife = context.WithCancel(context.Background())

	for _, opt := range opts {
		opt(e)
	}

	e.notifier = notify.NewDispatcher(e.channel, e.push, e.users, e.logger).
		WithTimeout(e.notificationTimeout)

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithClock replaces the wall clock. Tests use it to pin time.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithScheduleInterval sets how often the background worker runs a
// scheduler pass. Zero or negative disables the worker.
func WithScheduleInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.scheduleInterval = d
	}
}

// WithNotifier sets the realtime payment channel and push notifier.
func WithNotifier(channel notify.NotificationChannel, push notify.PushNotifier) Option {
	return func(e *Engine) {
		e.channel = channel
		e.push = push
	}
}

// WithUserDirectory sets the user lookup used for customer and courier
// checks. A nil directory keeps the empty default.
func WithUserDirectory(users notify.UserDirectory) Option {
	return func(e *Engine) {
		if users != nil {
			e.users = users
		}
	}
}

// WithOverdueGrace sets how late an unstarted order may run before the
// customer is told.
func WithOverdueGrace(d time.Duration) Option {
	return func(e *Engine) {
		e.overdueGrace = d
	}
}

// WithDefaultScheduledDelay sets how far ahead orders without an explicit
// time are scheduled.
func WithDefaultScheduledDelay(d time.Duration) Option {
	return func(e *Engine) {
		e.scheduledDelay = d
	}
}

// WithNotificationTimeout bounds each background notification.
func WithNotificationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.notificationTimeout = d
	}
}

// WithoutMigrate makes Start skip store migrations. Use it when the schema
// is managed out of band.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// Plugins exposes the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store exposes the underlying store.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store and begins the background worker.
func (e *Engine) Start(ctx context.Context) error {
	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	e.plugins.EmitInit(ctx, e)

	if e.scheduleInterval > 0 {
		workCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		e.cancelWork = cancel
		e.wg.Add(1)
		go e.scheduleWorker(workCtx)
	}

	e.logger.Info("orderflow started",
		"schedule_interval", e.scheduleInterval,
		"overdue_grace", e.overdueGrace,
		"plugins", e.plugins.Count(),
	)

	return nil
}

// Stop shuts down the worker, waits for in-flight notifications and closes
// the store. It is safe to call more than once.
func (e *Engine) Stop() error {
	var err error
	e.stopOnce.Do(func() {
		close(e.stopChan)
		e.endLife()
		if e.cancelWork != nil {
			e.cancelWork()
		}
		e.wg.Wait()

		ctx, cancel := context.WithTimeout(context.Background(), defaultWorkerShutdownTimeout)
		defer cancel()
		e.plugins.EmitShutdown(ctx)
		e.notifier.Wait()

		err = e.store.Close()
	})
	return err
}

// scheduleWorker runs a scheduler pass and an overdue sweep on every tick.
func (e *Engine) scheduleWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.scheduleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			e.RunTick(ctx)
		}
	}
}

// RunTick performs one scheduler pass followed by the overdue sweep and
// logs the outcome.
func (e *Engine) RunTick(ctx context.Context) {
	report, err := e.ProcessSchedules(ctx)
	if err != nil {
		e.logger.Error("schedule pass failed", "error", err)
	} else {
		e.logger.Debug("schedule pass finished",
			"processed", report.Processed,
			"created", report.Created,
			"deactivated", report.Deactivated,
			"failed", report.Failed,
			"elapsed_ms", report.Duration.Milliseconds(),
		)
	}

	if n, err := e.NotifyOverdueOrders(ctx); err != nil {
		e.logger.Error("overdue sweep failed", "error", err)
	} else if n > 0 {
		e.logger.Info("overdue orders notified", "count", n)
	}
}

// passTimeout bounds one shared scheduler pass. A pass never outlives the
// next tick.
func (e *Engine) passTimeout() time.Duration {
	if e.scheduleInterval > 0 {
		return e.scheduleInterval
	}
	return defaultPassTimeout
}

// now returns the engine clock in UTC truncated to microseconds, the
// precision every store keeps, so values read back compare equal.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

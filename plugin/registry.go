package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// DefaultTimeout bounds a single hook call.
const DefaultTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// Hook implementations are discovered once at registration time.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger
	timeout time.Duration

	onInit                  []OnInit
	onShutdown              []OnShutdown
	onOrderCreated          []OnOrderCreated
	onOrderTransitioned     []OnOrderTransitioned
	onOrderRemoved          []OnOrderRemoved
	onOrderOverdue          []OnOrderOverdue
	onPaymentOpened         []OnPaymentOpened
	onPaymentStatusChanged  []OnPaymentStatusChanged
	onWebhookReceived       []OnWebhookReceived
	onSubscriptionCreated   []OnSubscriptionCreated
	onSubscriptionActivated []OnSubscriptionActivated
	onSubscriptionCanceled  []OnSubscriptionCanceled
	onSubscriptionExpired   []OnSubscriptionExpired
	onOrderLimitReached     []OnOrderLimitReached
	onScheduleDeactivated   []OnScheduleDeactivated
	onScheduleProcessed     []OnScheduleProcessed
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// WithTimeout sets the per-call hook timeout.
func (r *Registry) WithTimeout(d time.Duration) *Registry {
	if d > 0 {
		r.timeout = d
	}
	return r
}

// Register adds a plugin to the registry and caches its hooks.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	var hooks []string
	cache := func(ok bool, name string, add func()) {
		if ok {
			add()
			hooks = append(hooks, name)
		}
	}

	v1, ok := p.(OnInit)
	cache(ok, "OnInit", func() { r.onInit = append(r.onInit, v1) })
	v2, ok := p.(OnShutdown)
	cache(ok, "OnShutdown", func() { r.onShutdown = append(r.onShutdown, v2) })
	v3, ok := p.(OnOrderCreated)
	cache(ok, "OnOrderCreated", func() { r.onOrderCreated = append(r.onOrderCreated, v3) })
	v4, ok := p.(OnOrderTransitioned)
	cache(ok, "OnOrderTransitioned", func() { r.onOrderTransitioned = append(r.onOrderTransitioned, v4) })
	v5, ok := p.(OnOrderRemoved)
	cache(ok, "OnOrderRemoved", func() { r.onOrderRemoved = append(r.onOrderRemoved, v5) })
	v6, ok := p.(OnOrderOverdue)
	cache(ok, "OnOrderOverdue", func() { r.onOrderOverdue = append(r.onOrderOverdue, v6) })
	v7, ok := p.(OnPaymentOpened)
	cache(ok, "OnPaymentOpened", func() { r.onPaymentOpened = append(r.onPaymentOpened, v7) })
	v8, ok := p.(OnPaymentStatusChanged)
	cache(ok, "OnPaymentStatusChanged", func() { r.onPaymentStatusChanged = append(r.onPaymentStatusChanged, v8) })
	v9, ok := p.(OnWebhookReceived)
	cache(ok, "OnWebhookReceived", func() { r.onWebhookReceived = append(r.onWebhookReceived, v9) })
	v10, ok := p.(OnSubscriptionCreated)
	cache(ok, "OnSubscriptionCreated", func() { r.onSubscriptionCreated = append(r.onSubscriptionCreated, v10) })
	v11, ok := p.(OnSubscriptionActivated)
	cache(ok, "OnSubscriptionActivated", func() { r.onSubscriptionActivated = append(r.onSubscriptionActivated, v11) })
	v12, ok := p.(OnSubscriptionCanceled)
	cache(ok, "OnSubscriptionCanceled", func() { r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v12) })
	v13, ok := p.(OnSubscriptionExpired)
	cache(ok, "OnSubscriptionExpired", func() { r.onSubscriptionExpired = append(r.onSubscriptionExpired, v13) })
	v14, ok := p.(OnOrderLimitReached)
	cache(ok, "OnOrderLimitReached", func() { r.onOrderLimitReached = append(r.onOrderLimitReached, v14) })
	v15, ok := p.(OnScheduleDeactivated)
	cache(ok, "OnScheduleDeactivated", func() { r.onScheduleDeactivated = append(r.onScheduleDeactivated, v15) })
	v16, ok := p.(OnScheduleProcessed)
	cache(ok, "OnScheduleProcessed", func() { r.onScheduleProcessed = append(r.onScheduleProcessed, v16) })

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"hooks", hooks,
	)

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// emit snapshots the hook list under the read lock and calls each hook
// with a timeout, logging failures.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, list *[]T, call func(T) error) {
	r.mu.RLock()
	plugins := *list
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error { return call(p) }); err != nil {
			r.logger.Warn("plugin hook failed",
				"hook", hook,
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

func (r *Registry) EmitInit(ctx context.Context, engine any) {
	emit(ctx, r, "OnInit", &r.onInit, func(p OnInit) error { return p.OnInit(ctx, engine) })
}

func (r *Registry) EmitShutdown(ctx context.Context) {
	emit(ctx, r, "OnShutdown", &r.onShutdown, func(p OnShutdown) error { return p.OnShutdown(ctx) })
}

func (r *Registry) EmitOrderCreated(ctx context.Context, o *order.Order) {
	emit(ctx, r, "OnOrderCreated", &r.onOrderCreated, func(p OnOrderCreated) error {
		return p.OnOrderCreated(ctx, o)
	})
}

func (r *Registry) EmitOrderTransitioned(ctx context.Context, o *order.Order, from order.Status) {
	emit(ctx, r, "OnOrderTransitioned", &r.onOrderTransitioned, func(p OnOrderTransitioned) error {
		return p.OnOrderTransitioned(ctx, o, from)
	})
}

func (r *Registry) EmitOrderRemoved(ctx context.Context, orderID id.OrderID) {
	emit(ctx, r, "OnOrderRemoved", &r.onOrderRemoved, func(p OnOrderRemoved) error {
		return p.OnOrderRemoved(ctx, orderID)
	})
}

func (r *Registry) EmitOrderOverdue(ctx context.Context, o *order.Order, minutes int) {
	emit(ctx, r, "OnOrderOverdue", &r.onOrderOverdue, func(p OnOrderOverdue) error {
		return p.OnOrderOverdue(ctx, o, minutes)
	})
}

func (r *Registry) EmitPaymentOpened(ctx context.Context, pay *payment.Payment) {
	emit(ctx, r, "OnPaymentOpened", &r.onPaymentOpened, func(p OnPaymentOpened) error {
		return p.OnPaymentOpened(ctx, pay)
	})
}

func (r *Registry) EmitPaymentStatusChanged(ctx context.Context, pay *payment.Payment, from payment.Status) {
	emit(ctx, r, "OnPaymentStatusChanged", &r.onPaymentStatusChanged, func(p OnPaymentStatusChanged) error {
		return p.OnPaymentStatusChanged(ctx, pay, from)
	})
}

func (r *Registry) EmitWebhookReceived(ctx context.Context, e *webhook.Event) {
	emit(ctx, r, "OnWebhookReceived", &r.onWebhookReceived, func(p OnWebhookReceived) error {
		return p.OnWebhookReceived(ctx, e)
	})
}

func (r *Registry) EmitSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCreated", &r.onSubscriptionCreated, func(p OnSubscriptionCreated) error {
		return p.OnSubscriptionCreated(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionActivated", &r.onSubscriptionActivated, func(p OnSubscriptionActivated) error {
		return p.OnSubscriptionActivated(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) {
	emit(ctx, r, "OnSubscriptionCanceled", &r.onSubscriptionCanceled, func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub)
	})
}

func (r *Registry) EmitSubscriptionExpired(ctx context.Context, sub *subscription.Subscription, reason subscription.ExpiryReason) {
	emit(ctx, r, "OnSubscriptionExpired", &r.onSubscriptionExpired, func(p OnSubscriptionExpired) error {
		return p.OnSubscriptionExpired(ctx, sub, reason)
	})
}

func (r *Registry) EmitOrderLimitReached(ctx context.Context, userID string, sub *subscription.Subscription) {
	emit(ctx, r, "OnOrderLimitReached", &r.onOrderLimitReached, func(p OnOrderLimitReached) error {
		return p.OnOrderLimitReached(ctx, userID, sub)
	})
}

func (r *Registry) EmitScheduleDeactivated(ctx context.Context, d *schedule.Definition, reason schedule.DeactivationReason) {
	emit(ctx, r, "OnScheduleDeactivated", &r.onScheduleDeactivated, func(p OnScheduleDeactivated) error {
		return p.OnScheduleDeactivated(ctx, d, reason)
	})
}

func (r *Registry) EmitScheduleProcessed(ctx context.Context, report *schedule.TickReport) {
	emit(ctx, r, "OnScheduleProcessed", &r.onScheduleProcessed, func(p OnScheduleProcessed) error {
		return p.OnScheduleProcessed(ctx, report)
	})
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the order pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}

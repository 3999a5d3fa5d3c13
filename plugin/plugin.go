// Package plugin provides an extensible plugin system for orderflow.
// Plugins hook into lifecycle events to observe the engine; they never
// change its decisions and their failures are logged, not propagated.
package plugin

import (
	"context"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Order hooks
// ──────────────────────────────────────────────────

// OnOrderCreated is called after an order and its payment are persisted.
type OnOrderCreated interface {
	Plugin
	OnOrderCreated(ctx context.Context, o *order.Order) error
}

// OnOrderTransitioned is called after an order moved from one status to
// another.
type OnOrderTransitioned interface {
	Plugin
	OnOrderTransitioned(ctx context.Context, o *order.Order, from order.Status) error
}

// OnOrderRemoved is called after an order was deleted.
type OnOrderRemoved interface {
	Plugin
	OnOrderRemoved(ctx context.Context, orderID id.OrderID) error
}

// OnOrderOverdue is called once per order when it first becomes overdue.
type OnOrderOverdue interface {
	Plugin
	OnOrderOverdue(ctx context.Context, o *order.Order, minutes int) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentOpened is called when a pending payment is recorded.
type OnPaymentOpened interface {
	Plugin
	OnPaymentOpened(ctx context.Context, p *payment.Payment) error
}

// OnPaymentStatusChanged is called only when a status write took effect.
type OnPaymentStatusChanged interface {
	Plugin
	OnPaymentStatusChanged(ctx context.Context, p *payment.Payment, from payment.Status) error
}

// OnWebhookReceived is called for every classifiable provider callback.
type OnWebhookReceived interface {
	Plugin
	OnWebhookReceived(ctx context.Context, e *webhook.Event) error
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated is called when a pending subscription is created.
type OnSubscriptionCreated interface {
	Plugin
	OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionActivated is called when a subscription becomes active.
type OnSubscriptionActivated interface {
	Plugin
	OnSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionCanceled is called when a subscription is canceled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error
}

// OnSubscriptionExpired is called when a subscription expires by time or
// by quota.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription, reason subscription.ExpiryReason) error
}

// OnOrderLimitReached is called when a usage increment is refused.
type OnOrderLimitReached interface {
	Plugin
	OnOrderLimitReached(ctx context.Context, userID string, sub *subscription.Subscription) error
}

// ──────────────────────────────────────────────────
// Schedule hooks
// ──────────────────────────────────────────────────

// OnScheduleDeactivated is called when the engine switches a recurring
// definition off.
type OnScheduleDeactivated interface {
	Plugin
	OnScheduleDeactivated(ctx context.Context, d *schedule.Definition, reason schedule.DeactivationReason) error
}

// OnScheduleProcessed is called after every scheduler pass.
type OnScheduleProcessed interface {
	Plugin
	OnScheduleProcessed(ctx context.Context, report *schedule.TickReport) error
}

// Package observability provides a metrics extension for orderflow that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/plugin"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnOrderCreated          = (*MetricsExtension)(nil)
	_ plugin.OnOrderTransitioned     = (*MetricsExtension)(nil)
	_ plugin.OnOrderRemoved          = (*MetricsExtension)(nil)
	_ plugin.OnOrderOverdue          = (*MetricsExtension)(nil)
	_ plugin.OnPaymentOpened         = (*MetricsExtension)(nil)
	_ plugin.OnPaymentStatusChanged  = (*MetricsExtension)(nil)
	_ plugin.OnWebhookReceived       = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCreated   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionActivated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired   = (*MetricsExtension)(nil)
	_ plugin.OnOrderLimitReached     = (*MetricsExtension)(nil)
	_ plugin.OnScheduleDeactivated   = (*MetricsExtension)(nil)
	_ plugin.OnScheduleProcessed     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as an orderflow plugin to track order and payment flow.
type MetricsExtension struct {
	factory MetricFactory

	// Order metrics
	OrderCreated  Counter
	OrderPaid     Counter
	OrderDone     Counter
	OrderCanceled Counter
	OrderRemoved  Counter
	OrderOverdue  Counter
	OverdueDelay  Histogram

	// Payment metrics
	PaymentOpened    Counter
	PaymentSucceeded Counter
	PaymentFailed    Counter
	PaymentRefunded  Counter
	PaymentAmount    Histogram

	// Webhook metrics
	WebhookApplied   Counter
	WebhookDuplicate Counter
	WebhookNotFound  Counter
	WebhookIgnored   Counter

	// Subscription metrics
	SubscriptionCreated   Counter
	SubscriptionActivated Counter
	SubscriptionCanceled  Counter
	SubscriptionExpired   Counter
	OrderLimitReached     Counter

	// Scheduler metrics
	ScheduleDeactivated  Counter
	ScheduledOrders      Counter
	SchedulePassFailures Counter
	SchedulePassLatency  Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		OrderCreated:  factory.Counter("orderflow.order.created"),
		OrderPaid:     factory.Counter("orderflow.order.paid"),
		OrderDone:     factory.Counter("orderflow.order.done"),
		OrderCanceled: factory.Counter("orderflow.order.canceled"),
		OrderRemoved:  factory.Counter("orderflow.order.removed"),
		OrderOverdue:  factory.Counter("orderflow.order.overdue"),
		OverdueDelay:  factory.Histogram("orderflow.order.overdue_minutes"),

		PaymentOpened:    factory.Counter("orderflow.payment.opened"),
		PaymentSucceeded: factory.Counter("orderflow.payment.succeeded"),
		PaymentFailed:    factory.Counter("orderflow.payment.failed"),
		PaymentRefunded:  factory.Counter("orderflow.payment.refunded"),
		PaymentAmount:    factory.Histogram("orderflow.payment.amount_minor"),

		WebhookApplied:   factory.Counter("orderflow.webhook.applied"),
		WebhookDuplicate: factory.Counter("orderflow.webhook.duplicate"),
		WebhookNotFound:  factory.Counter("orderflow.webhook.not_found"),
		WebhookIgnored:   factory.Counter("orderflow.webhook.ignored"),

		SubscriptionCreated:   factory.Counter("orderflow.subscription.created"),
		SubscriptionActivated: factory.Counter("orderflow.subscription.activated"),
		SubscriptionCanceled:  factory.Counter("orderflow.subscription.canceled"),
		SubscriptionExpired:   factory.Counter("orderflow.subscription.expired"),
		OrderLimitReached:     factory.Counter("orderflow.subscription.limit_reached"),

		ScheduleDeactivated:  factory.Counter("orderflow.schedule.deactivated"),
		ScheduledOrders:      factory.Counter("orderflow.schedule.orders_created"),
		SchedulePassFailures: factory.Counter("orderflow.schedule.failures"),
		SchedulePassLatency:  factory.Histogram("orderflow.schedule.pass_latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (m *MetricsExtension) OnOrderCreated(_ context.Context, _ *order.Order) error {
	m.OrderCreated.Inc()
	return nil
}

// OnOrderTransitioned implements plugin.OnOrderTransitioned.
func (m *MetricsExtension) OnOrderTransitioned(_ context.Context, o *order.Order, _ order.Status) error {
	switch o.Status {
	case order.StatusPaid:
		m.OrderPaid.Inc()
	case order.StatusDone:
		m.OrderDone.Inc()
	case order.StatusCanceled:
		m.OrderCanceled.Inc()
	}
	return nil
}

// OnOrderRemoved implements plugin.OnOrderRemoved.
func (m *MetricsExtension) OnOrderRemoved(_ context.Context, _ id.OrderID) error {
	m.OrderRemoved.Inc()
	return nil
}

// OnOrderOverdue implements plugin.OnOrderOverdue.
func (m *MetricsExtension) OnOrderOverdue(_ context.Context, _ *order.Order, minutes int) error {
	m.OrderOverdue.Inc()
	m.OverdueDelay.Observe(float64(minutes))
	return nil
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentOpened implements plugin.OnPaymentOpened.
func (m *MetricsExtension) OnPaymentOpened(_ context.Context, _ *payment.Payment) error {
	m.PaymentOpened.Inc()
	return nil
}

// OnPaymentStatusChanged implements plugin.OnPaymentStatusChanged.
func (m *MetricsExtension) OnPaymentStatusChanged(_ context.Context, p *payment.Payment, _ payment.Status) error {
	switch p.Status {
	case payment.StatusPaid:
		m.PaymentSucceeded.Inc()
		m.PaymentAmount.Observe(float64(p.Amount.Amount))
	case payment.StatusFailed, payment.StatusCanceled:
		m.PaymentFailed.Inc()
	case payment.StatusRefunded:
		m.PaymentRefunded.Inc()
	}
	return nil
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
func (m *MetricsExtension) OnWebhookReceived(_ context.Context, e *webhook.Event) error {
	switch e.Outcome {
	case webhook.OutcomeApplied:
		m.WebhookApplied.Inc()
	case webhook.OutcomeDuplicate:
		m.WebhookDuplicate.Inc()
	case webhook.OutcomeNotFound:
		m.WebhookNotFound.Inc()
	default:
		m.WebhookIgnored.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (m *MetricsExtension) OnSubscriptionCreated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCreated.Inc()
	return nil
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (m *MetricsExtension) OnSubscriptionActivated(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionActivated.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ *subscription.Subscription, _ subscription.ExpiryReason) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// OnOrderLimitReached implements plugin.OnOrderLimitReached.
func (m *MetricsExtension) OnOrderLimitReached(_ context.Context, _ string, _ *subscription.Subscription) error {
	m.OrderLimitReached.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Scheduler hooks
// ──────────────────────────────────────────────────

// OnScheduleDeactivated implements plugin.OnScheduleDeactivated.
func (m *MetricsExtension) OnScheduleDeactivated(_ context.Context, _ *schedule.Definition, _ schedule.DeactivationReason) error {
	m.ScheduleDeactivated.Inc()
	return nil
}

// OnScheduleProcessed implements plugin.OnScheduleProcessed.
func (m *MetricsExtension) OnScheduleProcessed(_ context.Context, report *schedule.TickReport) error {
	m.ScheduledOrders.Add(float64(report.Created))
	m.SchedulePassFailures.Add(float64(report.Failed))
	m.SchedulePassLatency.Observe(float64(report.Duration.Milliseconds()))
	return nil
}

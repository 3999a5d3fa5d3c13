// Package audithook bridges orderflow lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/plugin"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnOrderCreated          = (*Extension)(nil)
	_ plugin.OnOrderTransitioned     = (*Extension)(nil)
	_ plugin.OnOrderRemoved          = (*Extension)(nil)
	_ plugin.OnOrderOverdue          = (*Extension)(nil)
	_ plugin.OnPaymentOpened         = (*Extension)(nil)
	_ plugin.OnPaymentStatusChanged  = (*Extension)(nil)
	_ plugin.OnWebhookReceived       = (*Extension)(nil)
	_ plugin.OnSubscriptionCreated   = (*Extension)(nil)
	_ plugin.OnSubscriptionActivated = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*Extension)(nil)
	_ plugin.OnSubscriptionExpired   = (*Extension)(nil)
	_ plugin.OnOrderLimitReached     = (*Extension)(nil)
	_ plugin.OnScheduleDeactivated   = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges orderflow lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Order lifecycle hooks
// ──────────────────────────────────────────────────

// OnOrderCreated implements plugin.OnOrderCreated.
func (e *Extension) OnOrderCreated(ctx context.Context, o *order.Order) error {
	return e.record(ctx, ActionOrderCreated, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryOrder, nil,
		"customer_id", o.CustomerID,
		"status", string(o.Status),
		"price", o.Price.String(),
		"payment_method", string(o.PaymentMethod),
	)
}

// OnOrderTransitioned implements plugin.OnOrderTransitioned.
func (e *Extension) OnOrderTransitioned(ctx context.Context, o *order.Order, from order.Status) error {
	return e.record(ctx, ActionOrderTransitioned, SeverityInfo, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryOrder, nil,
		"from", string(from),
		"to", string(o.Status),
		"courier_id", o.CourierID,
	)
}

// OnOrderRemoved implements plugin.OnOrderRemoved.
func (e *Extension) OnOrderRemoved(ctx context.Context, orderID id.OrderID) error {
	return e.record(ctx, ActionOrderRemoved, SeverityWarning, OutcomeSuccess,
		ResourceOrder, orderID.String(), CategoryOrder, nil,
	)
}

// OnOrderOverdue implements plugin.OnOrderOverdue.
func (e *Extension) OnOrderOverdue(ctx context.Context, o *order.Order, minutes int) error {
	return e.record(ctx, ActionOrderOverdue, SeverityWarning, OutcomeSuccess,
		ResourceOrder, o.ID.String(), CategoryOrder, nil,
		"status", string(o.Status),
		"overdue_minutes", minutes,
	)
}

// ──────────────────────────────────────────────────
// Payment lifecycle hooks
// ──────────────────────────────────────────────────

// OnPaymentOpened implements plugin.OnPaymentOpened.
func (e *Extension) OnPaymentOpened(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentOpened, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"kind", string(p.Kind),
		"subject_id", p.SubjectID().String(),
		"amount", p.Amount.String(),
	)
}

// OnPaymentStatusChanged implements plugin.OnPaymentStatusChanged.
func (e *Extension) OnPaymentStatusChanged(ctx context.Context, p *payment.Payment, from payment.Status) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	switch p.Status {
	case payment.StatusFailed, payment.StatusCanceled:
		severity, outcome = SeverityWarning, OutcomeFailure
	case payment.StatusRefunded:
		severity = SeverityWarning
	}
	return e.record(ctx, ActionPaymentStatusChanged, severity, outcome,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"from", string(from),
		"to", string(p.Status),
		"provider_id", p.ProviderID,
	)
}

// OnWebhookReceived implements plugin.OnWebhookReceived.
// Applied and duplicate deliveries are routine; everything else is
// flagged for review.
func (e *Extension) OnWebhookReceived(ctx context.Context, evt *webhook.Event) error {
	severity, outcome := SeverityInfo, OutcomeSuccess
	switch evt.Outcome {
	case webhook.OutcomeApplied, webhook.OutcomeDuplicate:
	default:
		severity, outcome = SeverityWarning, OutcomeFailure
	}
	return e.record(ctx, ActionWebhookReceived, severity, outcome,
		ResourceWebhook, evt.ID.String(), CategoryIntegration, nil,
		"event", string(evt.EventType),
		"outcome", string(evt.Outcome),
		"provider_id", evt.ProviderID,
		"message", evt.Message,
	)
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionCreated implements plugin.OnSubscriptionCreated.
func (e *Extension) OnSubscriptionCreated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCreated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"user_id", sub.UserID,
		"type", string(sub.Type),
		"orders_limit", sub.OrdersLimit,
	)
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (e *Extension) OnSubscriptionActivated(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionActivated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"user_id", sub.UserID,
		"end_date", sub.EndDate,
	)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub *subscription.Subscription) error {
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"user_id", sub.UserID,
	)
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (e *Extension) OnSubscriptionExpired(ctx context.Context, sub *subscription.Subscription, reason subscription.ExpiryReason) error {
	return e.record(ctx, ActionSubscriptionExpired, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, sub.ID.String(), CategorySubscription, nil,
		"user_id", sub.UserID,
		"reason", string(reason),
		"used_orders", sub.UsedOrders,
	)
}

// OnOrderLimitReached implements plugin.OnOrderLimitReached.
func (e *Extension) OnOrderLimitReached(ctx context.Context, userID string, sub *subscription.Subscription) error {
	return e.record(ctx, ActionOrderLimitReached, SeverityWarning, OutcomeFailure,
		ResourceSubscription, sub.ID.String(), CategoryAccess, nil,
		"user_id", userID,
		"used_orders", sub.UsedOrders,
		"orders_limit", sub.OrdersLimit,
	)
}

// ──────────────────────────────────────────────────
// Schedule lifecycle hooks
// ──────────────────────────────────────────────────

// OnScheduleDeactivated implements plugin.OnScheduleDeactivated.
func (e *Extension) OnScheduleDeactivated(ctx context.Context, d *schedule.Definition, reason schedule.DeactivationReason) error {
	return e.record(ctx, ActionScheduleDeactivated, SeverityInfo, OutcomeSuccess,
		ResourceSchedule, d.ID.String(), CategoryOrder, nil,
		"customer_id", d.CustomerID,
		"reason", string(reason),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}

// Package store defines the unified persistence contract for orderflow.
package store

import (
	"context"
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// Store is the unified storage interface for all orderflow entities.
// Instead of embedding the sub-interfaces, we explicitly declare all methods
// to avoid naming conflicts.
//
// Every method that guards a state change performs its check and its write
// as one conditional statement, so concurrent callers on any number of
// instances cannot both pass the same check.
type Store interface {
	// Order methods
	CreateOrder(ctx context.Context, o *order.Order) error
	GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error)
	ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error)
	UpdateOrderStatus(ctx context.Context, o *order.Order, from order.Status) error
	DeleteOrder(ctx context.Context, orderID id.OrderID) error
	MarkOrderOverdue(ctx context.Context, orderID id.OrderID, minutes int, at time.Time) (bool, error)

	// Payment methods
	CreatePayment(ctx context.Context, p *payment.Payment) error
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error)
	GetPaymentByProviderID(ctx context.Context, providerID string) (*payment.Payment, error)
	GetLatestPayment(ctx context.Context, subjectID id.ID) (*payment.Payment, error)
	UpdatePaymentStatus(ctx context.Context, paymentID id.PaymentID, status payment.Status, at time.Time) (*payment.Update, error)
	AttachProviderID(ctx context.Context, paymentID id.PaymentID, providerID, confirmationURL string) (bool, error)

	// Subscription methods
	CreateSubscription(ctx context.Context, s *subscription.Subscription) error
	GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error)
	GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error)
	ListActiveSubscriptionsEndingBefore(ctx context.Context, t time.Time) ([]*subscription.Subscription, error)
	ActivateSubscription(ctx context.Context, subID id.SubscriptionID, start, end time.Time) error
	ExpireSubscription(ctx context.Context, subID id.SubscriptionID, reason subscription.ExpiryReason, at time.Time) (bool, error)
	CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	IncrementUsedOrders(ctx context.Context, subID id.SubscriptionID) (bool, error)
	DecrementUsedOrders(ctx context.Context, subID id.SubscriptionID) error

	// Schedule methods
	CreateSchedule(ctx context.Context, d *schedule.Definition) error
	GetSchedule(ctx context.Context, schedID id.ScheduleID) (*schedule.Definition, error)
	ListActiveSchedules(ctx context.Context) ([]*schedule.Definition, error)
	SwapScheduleLastCreatedAt(ctx context.Context, schedID id.ScheduleID, prev, next *time.Time) (bool, error)
	DeactivateSchedule(ctx context.Context, schedID id.ScheduleID, reason schedule.DeactivationReason) error

	// Webhook journal methods
	RecordWebhookEvent(ctx context.Context, e *webhook.Event) error
	ListWebhookEvents(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Event, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

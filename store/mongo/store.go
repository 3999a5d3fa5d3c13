package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	ofstore "github.com/cleanhouse123/orderflow/store"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// Collection name constants.
const (
	colOrders        = "orderflow_orders"
	colPayments      = "orderflow_payments"
	colSubscriptions = "orderflow_subscriptions"
	colSchedules     = "orderflow_schedules"
	colWebhookEvents = "orderflow_webhook_events"
)

// Index names that map duplicate key errors to domain errors.
const (
	idxProviderID = "provider_id_unique"
	idxOneActive  = "user_one_active"
)

// compile-time interface check
var _ ofstore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all orderflow collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("%w: orderflow/mongo: %s indexes: %w", orderflow.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := s.mdb.NewInsert(toOrderModel(o)).Exec(ctx)
	if err != nil {
		return mapDuplicate(err, "create order")
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	var m orderModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": orderID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orderflow.ErrOrderNotFound
		}
		return nil, fmt.Errorf("orderflow/mongo: get order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	var models []orderModel

	f := bson.M{}
	if filter.CustomerID != "" {
		f["customer_id"] = filter.CustomerID
	}
	if filter.CourierID != "" {
		f["courier_id"] = filter.CourierID
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		f["status"] = bson.M{"$in": statuses}
	}
	if filter.ScheduledBefore != nil {
		f["scheduled_at"] = bson.M{"$lt": filter.ScheduledBefore.UTC()}
	}
	if !filter.ScheduleID.IsNil() {
		f["schedule_id"] = filter.ScheduleID.String()
	}
	if filter.OnlyUnnotified {
		f["overdue_notified_at"] = nil
	}

	q := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: -1}})

	if filter.Limit > 0 {
		q = q.Limit(int64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Skip(int64(filter.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list orders: %w", err)
	}

	result := make([]*order.Order, len(models))
	for i := range models {
		o, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, o *order.Order, from order.Status) error {
	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": o.ID.String(), "status": string(from)}).
		Set("status", string(o.Status)).
		Set("courier_id", o.CourierID).
		Set("assigned_at", o.AssignedAt).
		Set("started_at", o.StartedAt).
		Set("completed_at", o.CompletedAt).
		Set("updated_at", o.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: update order status: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return orderflow.ErrInvalidTransition
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, orderID id.OrderID) error {
	res, err := s.mdb.NewDelete((*orderModel)(nil)).
		Filter(bson.M{"_id": orderID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: delete order: %w", err)
	}
	if res.DeletedCount() == 0 {
		return orderflow.ErrOrderNotFound
	}
	return nil
}

func (s *Store) MarkOrderOverdue(ctx context.Context, orderID id.OrderID, minutes int, at time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": orderID.String(), "overdue_notified_at": nil}).
		Set("overdue_minutes", minutes).
		Set("overdue_notified_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/mongo: mark order overdue: %w", err)
	}
	if res.MatchedCount() > 0 {
		return true, nil
	}
	_, err = s.GetOrder(ctx, orderID)
	return false, err
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		return mapDuplicate(err, "create payment")
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"_id": paymentID.String()})
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, providerID string) (*payment.Payment, error) {
	if providerID == "" {
		return nil, orderflow.ErrPaymentNotFound
	}
	return s.findPayment(ctx, bson.M{"provider_id": providerID})
}

func (s *Store) GetLatestPayment(ctx context.Context, subjectID id.ID) (*payment.Payment, error) {
	field := "order_id"
	if subjectID.Prefix() == id.PrefixSubscription {
		field = "subscription_id"
	}

	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{field: subjectID.String()}).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orderflow.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("orderflow/mongo: get latest payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) findPayment(ctx context.Context, filter bson.M) (*payment.Payment, error) {
	var m paymentModel
	if err := s.mdb.NewFind(&m).Filter(filter).Scan(ctx); err != nil {
		if isNoDocuments(err) {
			return nil, orderflow.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("orderflow/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID id.PaymentID, status payment.Status, at time.Time) (*payment.Update, error) {
	at = at.UTC()
	return ofstore.PaymentStatusCAS(ctx,
		func(ctx context.Context) (*payment.Payment, error) {
			return s.GetPayment(ctx, paymentID)
		},
		func(ctx context.Context, from payment.Status) (bool, error) {
			q := s.mdb.NewUpdate((*paymentModel)(nil)).
				Filter(bson.M{"_id": paymentID.String(), "status": string(from)}).
				Set("status", string(status)).
				Set("updated_at", at)
			if status == payment.StatusPaid {
				q = q.Set("paid_at", at)
			}
			res, err := q.Exec(ctx)
			if err != nil {
				return false, fmt.Errorf("orderflow/mongo: update payment status: %w", err)
			}
			return res.MatchedCount() == 1, nil
		},
		status, at)
}

func (s *Store) AttachProviderID(ctx context.Context, paymentID id.PaymentID, providerID, confirmationURL string) (bool, error) {
	q := s.mdb.NewUpdate((*paymentModel)(nil)).
		Filter(bson.M{"_id": paymentID.String(), "provider_id": ""}).
		Set("provider_id", providerID).
		Set("updated_at", now())
	if confirmationURL != "" {
		q = q.Set("confirmation_url", confirmationURL)
	}
	res, err := q.Exec(ctx)
	if err != nil {
		return false, mapDuplicate(err, "attach provider id")
	}
	if res.MatchedCount() > 0 {
		return true, nil
	}
	_, err = s.GetPayment(ctx, paymentID)
	return false, err
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.mdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return mapDuplicate(err, "create subscription")
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orderflow.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("orderflow/mongo: get subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	var m subscriptionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{
			"user_id": userID,
			"status":  string(subscription.StatusActive),
		}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orderflow.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("orderflow/mongo: get active subscription: %w", err)
	}
	return fromSubscriptionModel(&m)
}

func (s *Store) ListActiveSubscriptionsEndingBefore(ctx context.Context, t time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":   string(subscription.StatusActive),
			"end_date": bson.M{"$lt": t.UTC()},
		}).
		Sort(bson.D{{Key: "end_date", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list ending subscriptions: %w", err)
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ActivateSubscription relies on the partial unique index over active
// subscriptions to refuse a second one for the same user.
func (s *Store) ActivateSubscription(ctx context.Context, subID id.SubscriptionID, start, end time.Time) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(subscription.StatusPending)}).
		Set("status", string(subscription.StatusActive)).
		Set("start_date", start.UTC()).
		Set("end_date", end.UTC()).
		Set("updated_at", start.UTC()).
		Exec(ctx)
	if err != nil {
		return mapDuplicate(err, "activate subscription")
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetSubscription(ctx, subID); err != nil {
			return err
		}
		return orderflow.ErrSubscriptionNotPending
	}
	return nil
}

func (s *Store) ExpireSubscription(ctx context.Context, subID id.SubscriptionID, reason subscription.ExpiryReason, at time.Time) (bool, error) {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "status": string(subscription.StatusActive)}).
		Set("status", string(subscription.StatusExpired)).
		Set("expiry_reason", string(reason)).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/mongo: expire subscription: %w", err)
	}
	if res.MatchedCount() > 0 {
		return true, nil
	}
	_, err = s.GetSubscription(ctx, subID)
	return false, err
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*subscriptionModel)(nil)).
		Filter(bson.M{
			"_id":    subID.String(),
			"status": bson.M{"$in": []string{string(subscription.StatusPending), string(subscription.StatusActive)}},
		}).
		Set("status", string(subscription.StatusCanceled)).
		Set("canceled_at", at.UTC()).
		Set("updated_at", at.UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: cancel subscription: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetSubscription(ctx, subID); err != nil {
			return err
		}
		return orderflow.ErrSubscriptionClosed
	}
	return nil
}

// IncrementUsedOrders applies $inc only while the counter is below the
// limit, so the check and the write are one document update.
func (s *Store) IncrementUsedOrders(ctx context.Context, subID id.SubscriptionID) (bool, error) {
	res, err := s.mdb.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{
			"_id":          subID.String(),
			"status":       string(subscription.StatusActive),
			"orders_limit": bson.M{"$ne": subscription.Unlimited},
			"$expr":        bson.M{"$lt": bson.A{"$used_orders", "$orders_limit"}},
		},
		bson.M{
			"$inc": bson.M{"used_orders": 1},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return false, fmt.Errorf("orderflow/mongo: increment used orders: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}
	_, err = s.GetSubscription(ctx, subID)
	return false, err
}

func (s *Store) DecrementUsedOrders(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.mdb.Collection(colSubscriptions).UpdateOne(ctx,
		bson.M{"_id": subID.String(), "used_orders": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"used_orders": -1},
			"$set": bson.M{"updated_at": now()},
		},
	)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: decrement used orders: %w", err)
	}
	if res.MatchedCount == 0 {
		_, err = s.GetSubscription(ctx, subID)
		return err
	}
	return nil
}

// ==================== Schedule Store ====================

func (s *Store) CreateSchedule(ctx context.Context, d *schedule.Definition) error {
	_, err := s.mdb.NewInsert(toScheduleModel(d)).Exec(ctx)
	if err != nil {
		return mapDuplicate(err, "create schedule")
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, schedID id.ScheduleID) (*schedule.Definition, error) {
	var m scheduleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": schedID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, orderflow.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("orderflow/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]*schedule.Definition, error) {
	var models []scheduleModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"is_active": true}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list active schedules: %w", err)
	}

	result := make([]*schedule.Definition, len(models))
	for i := range models {
		d, err := fromScheduleModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = d
	}
	return result, nil
}

// SwapScheduleLastCreatedAt matches a nil prev against both null and a
// missing field.
func (s *Store) SwapScheduleLastCreatedAt(ctx context.Context, schedID id.ScheduleID, prev, next *time.Time) (bool, error) {
	filter := bson.M{"_id": schedID.String(), "last_created_at": nil}
	if prev != nil {
		filter["last_created_at"] = prev.UTC()
	}
	var nextVal any
	if next != nil {
		nextVal = next.UTC()
	}

	res, err := s.mdb.NewUpdate((*scheduleModel)(nil)).
		Filter(filter).
		Set("last_created_at", nextVal).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/mongo: swap schedule claim: %w", err)
	}
	if res.MatchedCount() > 0 {
		return true, nil
	}
	_, err = s.GetSchedule(ctx, schedID)
	return false, err
}

func (s *Store) DeactivateSchedule(ctx context.Context, schedID id.ScheduleID, reason schedule.DeactivationReason) error {
	res, err := s.mdb.NewUpdate((*scheduleModel)(nil)).
		Filter(bson.M{"_id": schedID.String()}).
		Set("is_active", false).
		Set("deactivation_reason", string(reason)).
		Set("updated_at", now()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: deactivate schedule: %w", err)
	}
	if res.MatchedCount() == 0 {
		return orderflow.ErrScheduleNotFound
	}
	return nil
}

// ==================== Webhook journal ====================

func (s *Store) RecordWebhookEvent(ctx context.Context, e *webhook.Event) error {
	_, err := s.mdb.NewInsert(toWebhookEventModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/mongo: record webhook event: %w", err)
	}
	return nil
}

func (s *Store) ListWebhookEvents(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	var models []webhookEventModel

	filter := bson.M{}
	if !opts.PaymentID.IsNil() {
		filter["payment_id"] = opts.PaymentID.String()
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "received_at", Value: -1}, {Key: "_id", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("orderflow/mongo: list webhook events: %w", err)
	}

	result := make([]*webhook.Event, len(models))
	for i := range models {
		e, err := fromWebhookEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// mapDuplicate translates duplicate key errors into domain errors by the
// index named in the server message.
func mapDuplicate(err error, op string) error {
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("orderflow/mongo: %s: %w", op, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, idxProviderID):
		return orderflow.ErrProviderIDTaken
	case strings.Contains(msg, idxOneActive):
		return orderflow.ErrSubscriptionExists
	default:
		return orderflow.ErrAlreadyExists
	}
}

// migrationIndexes returns the index definitions for all orderflow collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colOrders: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "courier_id", Value: 1}}},
			{Keys: bson.D{{Key: "schedule_id", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "scheduled_at", Value: 1}}},
		},
		colPayments: {
			{
				Keys: bson.D{{Key: "provider_id", Value: 1}},
				Options: options.Index().
					SetName(idxProviderID).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"provider_id": bson.M{"$gt": ""}}),
			},
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "subscription_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colSubscriptions: {
			{
				Keys: bson.D{{Key: "user_id", Value: 1}},
				Options: options.Index().
					SetName(idxOneActive).
					SetUnique(true).
					SetPartialFilterExpression(bson.M{"status": string(subscription.StatusActive)}),
			},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "end_date", Value: 1}}},
		},
		colSchedules: {
			{Keys: bson.D{{Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "customer_id", Value: 1}}},
		},
		colWebhookEvents: {
			{Keys: bson.D{{Key: "payment_id", Value: 1}, {Key: "received_at", Value: -1}}},
			{Keys: bson.D{{Key: "received_at", Value: -1}}},
		},
	}
}

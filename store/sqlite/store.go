package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	ofstore "github.com/cleanhouse123/orderflow/store"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// compile-time interface check
var _ ofstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("orderflow/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: orderflow/sqlite: %w", orderflow.ErrMigrationFailed, err)
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
	_, err := s.sdb.NewInsert(toOrderModel(o)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create order")
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrOrderNotFound
		}
		return nil, err
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	var models []orderModel
	q := s.sdb.NewSelect(&models)

	if filter.CustomerID != "" {
		q = q.Where("customer_id = ?", filter.CustomerID)
	}
	if filter.CourierID != "" {
		q = q.Where("courier_id = ?", filter.CourierID)
	}
	if len(filter.Statuses) > 0 {
		args := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			args[i] = string(st)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		q = q.Where("status IN ("+marks+")", args...)
	}
	if filter.ScheduledBefore != nil {
		q = q.Where("scheduled_at < ?", filter.ScheduledBefore.UTC())
	}
	if !filter.ScheduleID.IsNil() {
		q = q.Where("schedule_id = ?", filter.ScheduleID.String())
	}
	if filter.OnlyUnnotified {
		q = q.Where("overdue_notified_at IS NULL")
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}
	q = q.OrderExpr("created_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate((*orderModel)(nil)).
		Set("status = ?", string(o.Status)).
		Set("courier_id = ?", o.CourierID).
		Set("assigned_at = ?", o.AssignedAt).
		Set("started_at = ?", o.StartedAt).
		Set("completed_at = ?", o.CompletedAt).
		Set("updated_at = ?", o.UpdatedAt).
		Where("id = ?", o.ID.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetOrder(ctx, o.ID); err != nil {
			return err
		}
		return orderflow.ErrInvalidTransition
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, orderID id.OrderID) error {
	res, err := s.sdb.NewDelete((*orderModel)(nil)).
		Where("id = ?", orderID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return orderflow.ErrOrderNotFound
	}
	return nil
}

func (s *Store) MarkOrderOverdue(ctx context.Context, orderID id.OrderID, minutes int, at time.Time) (bool, error) {
	res, err := s.sdb.NewUpdate((*orderModel)(nil)).
		Set("overdue_minutes = ?", minutes).
		Set("overdue_notified_at = ?", at.UTC()).
		Where("id = ?", orderID.String()).
		Where("overdue_notified_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return applied(ctx, res, func(ctx context.Context) error {
		_, err := s.GetOrder(ctx, orderID)
		return err
	})
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.sdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create payment")
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return s.getPayment(ctx, "id = ?", paymentID.String())
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, providerID string) (*payment.Payment, error) {
	if providerID == "" {
		return nil, orderflow.ErrPaymentNotFound
	}
	return s.getPayment(ctx, "provider_id = ?", providerID)
}

func (s *Store) GetLatestPayment(ctx context.Context, subjectID id.ID) (*payment.Payment, error) {
	col := "order_id"
	if subjectID.Prefix() == id.PrefixSubscription {
		col = "subscription_id"
	}

	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where(col+" = ?", subjectID.String()).
		OrderExpr("created_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) getPayment(ctx context.Context, where string, arg any) (*payment.Payment, error) {
	m := new(paymentModel)
	if err := s.sdb.NewSelect(m).Where(where, arg).Scan(ctx); err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) UpdatePaymentStatus(ctx context.Context, paymentID id.PaymentID, status payment.Status, at time.Time) (*payment.Update, error) {
	at = at.UTC()
	return ofstore.PaymentStatusCAS(ctx,
		func(ctx context.Context) (*payment.Payment, error) {
			return s.GetPayment(ctx, paymentID)
		},
		func(ctx context.Context, from payment.Status) (bool, error) {
			q := s.sdb.NewUpdate((*paymentModel)(nil)).
				Set("status = ?", string(status)).
				Set("updated_at = ?", at)
			if status == payment.StatusPaid {
				q = q.Set("paid_at = ?", at)
			}
			res, err := q.
				Where("id = ?", paymentID.String()).
				Where("status = ?", string(from)).
				Exec(ctx)
			if err != nil {
				return false, err
			}
			rows, err := res.RowsAffected()
			return rows == 1, err
		},
		status, at)
}

func (s *Store) AttachProviderID(ctx context.Context, paymentID id.PaymentID, providerID, confirmationURL string) (bool, error) {
	q := s.sdb.NewUpdate((*paymentModel)(nil)).
		Set("provider_id = ?", providerID).
		Set("updated_at = ?", now())
	if confirmationURL != "" {
		q = q.Set("confirmation_url = ?", confirmationURL)
	}
	res, err := q.
		Where("id = ?", paymentID.String()).
		Where("provider_id = ''").
		Exec(ctx)
	if err != nil {
		return false, mapUnique(err, "attach provider id")
	}
	return applied(ctx, res, func(ctx context.Context) error {
		_, err := s.GetPayment(ctx, paymentID)
		return err
	})
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.sdb.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create subscription")
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("user_id = ?", userID).
		Where("status = ?", string(subscription.StatusActive)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrNoActiveSubscription
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListActiveSubscriptionsEndingBefore(ctx context.Context, t time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.sdb.NewSelect(&models).
		Where("status = ?", string(subscription.StatusActive)).
		Where("end_date < ?", t.UTC()).
		OrderExpr("end_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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

func (s *Store) ActivateSubscription(ctx context.Context, subID id.SubscriptionID, start, end time.Time) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusActive)).
		Set("start_date = ?", start.UTC()).
		Set("end_date = ?", end.UTC()).
		Set("updated_at = ?", start.UTC()).
		Where("id = ?", subID.String()).
		Where("status = ?", string(subscription.StatusPending)).
		Exec(ctx)
	if err != nil {
		return mapUnique(err, "activate subscription")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetSubscription(ctx, subID); err != nil {
			return err
		}
		return orderflow.ErrSubscriptionNotPending
	}
	return nil
}

func (s *Store) ExpireSubscription(ctx context.Context, subID id.SubscriptionID, reason subscription.ExpiryReason, at time.Time) (bool, error) {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusExpired)).
		Set("expiry_reason = ?", string(reason)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", subID.String()).
		Where("status = ?", string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return applied(ctx, res, s.subscriptionExists(subID))
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("status = ?", string(subscription.StatusCanceled)).
		Set("canceled_at = ?", at.UTC()).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", subID.String()).
		Where("status IN (?, ?)", string(subscription.StatusPending), string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return err
	}
	ok, err := applied(ctx, res, s.subscriptionExists(subID))
	if err != nil {
		return err
	}
	if !ok {
		return orderflow.ErrSubscriptionClosed
	}
	return nil
}

func (s *Store) IncrementUsedOrders(ctx context.Context, subID id.SubscriptionID) (bool, error) {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("used_orders = used_orders + 1").
		Set("updated_at = ?", now()).
		Where("id = ?", subID.String()).
		Where("status = ?", string(subscription.StatusActive)).
		Where("orders_limit <> -1 AND used_orders < orders_limit").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return applied(ctx, res, s.subscriptionExists(subID))
}

func (s *Store) DecrementUsedOrders(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.sdb.NewUpdate((*subscriptionModel)(nil)).
		Set("used_orders = used_orders - 1").
		Set("updated_at = ?", now()).
		Where("id = ?", subID.String()).
		Where("used_orders > 0").
		Exec(ctx)
	if err != nil {
		return err
	}
	_, err = applied(ctx, res, s.subscriptionExists(subID))
	return err
}

func (s *Store) subscriptionExists(subID id.SubscriptionID) func(context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.GetSubscription(ctx, subID)
		return err
	}
}

// ==================== Schedule Store ====================

func (s *Store) CreateSchedule(ctx context.Context, d *schedule.Definition) error {
	_, err := s.sdb.NewInsert(toScheduleModel(d)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create schedule")
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, schedID id.ScheduleID) (*schedule.Definition, error) {
	m := new(scheduleModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", schedID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrScheduleNotFound
		}
		return nil, err
	}
	return fromScheduleModel(m)
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]*schedule.Definition, error) {
	var models []scheduleModel
	err := s.sdb.NewSelect(&models).
		Where("is_active = 1").
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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

func (s *Store) SwapScheduleLastCreatedAt(ctx context.Context, schedID id.ScheduleID, prev, next *time.Time) (bool, error) {
	res, err := s.sdb.NewUpdate((*scheduleModel)(nil)).
		Set("last_created_at = ?", utcPtr(next)).
		Set("updated_at = ?", now()).
		Where("id = ?", schedID.String()).
		Where("last_created_at IS ?", utcPtr(prev)).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return applied(ctx, res, func(ctx context.Context) error {
		_, err := s.GetSchedule(ctx, schedID)
		return err
	})
}

func (s *Store) DeactivateSchedule(ctx context.Context, schedID id.ScheduleID, reason schedule.DeactivationReason) error {
	res, err := s.sdb.NewUpdate((*scheduleModel)(nil)).
		Set("is_active = 0").
		Set("deactivation_reason = ?", string(reason)).
		Set("updated_at = ?", now()).
		Where("id = ?", schedID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return orderflow.ErrScheduleNotFound
	}
	return nil
}

// ==================== Webhook journal ====================

func (s *Store) RecordWebhookEvent(ctx context.Context, e *webhook.Event) error {
	_, err := s.sdb.NewInsert(toWebhookEventModel(e)).Exec(ctx)
	return err
}

func (s *Store) ListWebhookEvents(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	var models []webhookEventModel
	q := s.sdb.NewSelect(&models)
	if !opts.PaymentID.IsNil() {
		q = q.Where("payment_id = ?", opts.PaymentID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("received_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
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

type rowsResult interface {
	RowsAffected() (int64, error)
}

// applied reports whether a conditional write matched a row. A zero
// count is an error only when exists says the row is gone.
func applied(ctx context.Context, res rowsResult, exists func(context.Context) error) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	return false, exists(ctx)
}

// mapUnique translates SQLite unique violations into domain errors.
// The driver reports the indexed columns, not the index name.
func mapUnique(err error, op string) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return fmt.Errorf("orderflow/sqlite: %s: %w", op, err)
	}
	switch {
	case strings.Contains(msg, "orderflow_payments.provider_id"):
		return orderflow.ErrProviderIDTaken
	case strings.Contains(msg, "orderflow_subscriptions.user_id"):
		return orderflow.ErrSubscriptionExists
	default:
		return orderflow.ErrAlreadyExists
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

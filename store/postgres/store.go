package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Index names that map unique violations to domain errors.
const (
	idxProviderID = "idx_orderflow_payments_provider"
	idxOneActive  = "idx_orderflow_subs_one_active"
)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: orderflow/postgres: %w", orderflow.ErrMigrationFailed, err)
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
	_, err := s.pg.NewInsert(toOrderModel(o)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create order")
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrOrderNotFound
		}
		return nil, fmt.Errorf("orderflow/postgres: get order: %w", err)
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	var models []orderModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	arg := func() int { argIdx++; return argIdx }

	if filter.CustomerID != "" {
		q = q.Where(fmt.Sprintf("customer_id = $%d", arg()), filter.CustomerID)
	}
	if filter.CourierID != "" {
		q = q.Where(fmt.Sprintf("courier_id = $%d", arg()), filter.CourierID)
	}
	if len(filter.Statuses) > 0 {
		marks := make([]string, len(filter.Statuses))
		args := make([]any, len(filter.Statuses))
		for i, st := range filter.Statuses {
			marks[i] = fmt.Sprintf("$%d", arg())
			args[i] = string(st)
		}
		q = q.Where("status IN ("+strings.Join(marks, ", ")+")", args...)
	}
	if filter.ScheduledBefore != nil {
		q = q.Where(fmt.Sprintf("scheduled_at < $%d", arg()), *filter.ScheduledBefore)
	}
	if !filter.ScheduleID.IsNil() {
		q = q.Where(fmt.Sprintf("schedule_id = $%d", arg()), filter.ScheduleID.String())
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
		return nil, fmt.Errorf("orderflow/postgres: list orders: %w", err)
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
	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("status = $1", string(o.Status)).
		Set("courier_id = $2", o.CourierID).
		Set("assigned_at = $3", o.AssignedAt).
		Set("started_at = $4", o.StartedAt).
		Set("completed_at = $5", o.CompletedAt).
		Set("updated_at = $6", o.UpdatedAt).
		Where("id = $7", o.ID.String()).
		Where("status = $8", string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: update order status: %w", err)
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
	res, err := s.pg.NewDelete((*orderModel)(nil)).
		Where("id = $1", orderID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: delete order: %w", err)
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
	res, err := s.pg.NewUpdate((*orderModel)(nil)).
		Set("overdue_minutes = $1", minutes).
		Set("overdue_notified_at = $2", at.UTC()).
		Where("id = $3", orderID.String()).
		Where("overdue_notified_at IS NULL").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/postgres: mark order overdue: %w", err)
	}
	return s.affectedOrMissing(ctx, res, func(ctx context.Context) error {
		_, err := s.GetOrder(ctx, orderID)
		return err
	})
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.pg.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create payment")
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return s.getPayment(ctx, "id = $1", paymentID.String())
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, providerID string) (*payment.Payment, error) {
	if providerID == "" {
		return nil, orderflow.ErrPaymentNotFound
	}
	return s.getPayment(ctx, "provider_id = $1", providerID)
}

func (s *Store) GetLatestPayment(ctx context.Context, subjectID id.ID) (*payment.Payment, error) {
	col := "order_id"
	if subjectID.Prefix() == id.PrefixSubscription {
		col = "subscription_id"
	}

	m := new(paymentModel)
	err := s.pg.NewSelect(m).
		Where(col+" = $1", subjectID.String()).
		OrderExpr("created_at DESC, id DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("orderflow/postgres: get latest payment: %w", err)
	}
	return fromPaymentModel(m)
}

func (s *Store) getPayment(ctx context.Context, where string, arg any) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.pg.NewSelect(m).Where(where, arg).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("orderflow/postgres: get payment: %w", err)
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
			q := s.pg.NewUpdate((*paymentModel)(nil)).
				Set("status = $1", string(status)).
				Set("updated_at = $2", at)
			next := 3
			if status == payment.StatusPaid {
				q = q.Set("paid_at = $3", at)
				next = 4
			}
			res, err := q.
				Where(fmt.Sprintf("id = $%d", next), paymentID.String()).
				Where(fmt.Sprintf("status = $%d", next+1), string(from)).
				Exec(ctx)
			if err != nil {
				return false, fmt.Errorf("orderflow/postgres: update payment status: %w", err)
			}
			rows, err := res.RowsAffected()
			return rows == 1, err
		},
		status, at)
}

func (s *Store) AttachProviderID(ctx context.Context, paymentID id.PaymentID, providerID, confirmationURL string) (bool, error) {
	q := s.pg.NewUpdate((*paymentModel)(nil)).
		Set("provider_id = $1", providerID).
		Set("updated_at = $2", now())
	next := 3
	if confirmationURL != "" {
		q = q.Set("confirmation_url = $3", confirmationURL)
		next = 4
	}
	res, err := q.
		Where(fmt.Sprintf("id = $%d", next), paymentID.String()).
		Where("provider_id = ''").
		Exec(ctx)
	if err != nil {
		return false, mapUnique(err, "attach provider id")
	}
	return s.affectedOrMissing(ctx, res, func(ctx context.Context) error {
		_, err := s.GetPayment(ctx, paymentID)
		return err
	})
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	_, err := s.pg.NewInsert(toSubscriptionModel(sub)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create subscription")
	}
	return nil
}

func (s *Store) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("orderflow/postgres: get subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("user_id = $1", userID).
		Where("status = $2", string(subscription.StatusActive)).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrNoActiveSubscription
		}
		return nil, fmt.Errorf("orderflow/postgres: get active subscription: %w", err)
	}
	return fromSubscriptionModel(m)
}

func (s *Store) ListActiveSubscriptionsEndingBefore(ctx context.Context, t time.Time) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	err := s.pg.NewSelect(&models).
		Where("status = $1", string(subscription.StatusActive)).
		Where("end_date < $2", t.UTC()).
		OrderExpr("end_date ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderflow/postgres: list ending subscriptions: %w", err)
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

// ActivateSubscription relies on idx_orderflow_subs_one_active to refuse a
// second active subscription for the same user.
func (s *Store) ActivateSubscription(ctx context.Context, subID id.SubscriptionID, start, end time.Time) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusActive)).
		Set("start_date = $2", start.UTC()).
		Set("end_date = $3", end.UTC()).
		Set("updated_at = $4", start.UTC()).
		Where("id = $5", subID.String()).
		Where("status = $6", string(subscription.StatusPending)).
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
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusExpired)).
		Set("expiry_reason = $2", string(reason)).
		Set("updated_at = $3", at.UTC()).
		Where("id = $4", subID.String()).
		Where("status = $5", string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/postgres: expire subscription: %w", err)
	}
	return s.affectedOrMissing(ctx, res, s.subscriptionExists(subID))
}

func (s *Store) CancelSubscription(ctx context.Context, subID id.SubscriptionID, at time.Time) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("status = $1", string(subscription.StatusCanceled)).
		Set("canceled_at = $2", at.UTC()).
		Set("updated_at = $3", at.UTC()).
		Where("id = $4", subID.String()).
		Where("status IN ($5, $6)", string(subscription.StatusPending), string(subscription.StatusActive)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: cancel subscription: %w", err)
	}
	ok, err := s.affectedOrMissing(ctx, res, s.subscriptionExists(subID))
	if err != nil {
		return err
	}
	if !ok {
		return orderflow.ErrSubscriptionClosed
	}
	return nil
}

func (s *Store) IncrementUsedOrders(ctx context.Context, subID id.SubscriptionID) (bool, error) {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("used_orders = used_orders + 1").
		Set("updated_at = $1", now()).
		Where("id = $2", subID.String()).
		Where("status = $3", string(subscription.StatusActive)).
		Where("orders_limit <> -1 AND used_orders < orders_limit").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/postgres: increment used orders: %w", err)
	}
	return s.affectedOrMissing(ctx, res, s.subscriptionExists(subID))
}

func (s *Store) DecrementUsedOrders(ctx context.Context, subID id.SubscriptionID) error {
	res, err := s.pg.NewUpdate((*subscriptionModel)(nil)).
		Set("used_orders = used_orders - 1").
		Set("updated_at = $1", now()).
		Where("id = $2", subID.String()).
		Where("used_orders > 0").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: decrement used orders: %w", err)
	}
	_, err = s.affectedOrMissing(ctx, res, s.subscriptionExists(subID))
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
	_, err := s.pg.NewInsert(toScheduleModel(d)).Exec(ctx)
	if err != nil {
		return mapUnique(err, "create schedule")
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, schedID id.ScheduleID) (*schedule.Definition, error) {
	m := new(scheduleModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", schedID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, orderflow.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("orderflow/postgres: get schedule: %w", err)
	}
	return fromScheduleModel(m)
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]*schedule.Definition, error) {
	var models []scheduleModel
	err := s.pg.NewSelect(&models).
		Where("is_active").
		OrderExpr("id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("orderflow/postgres: list active schedules: %w", err)
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
	res, err := s.pg.NewUpdate((*scheduleModel)(nil)).
		Set("last_created_at = $1", utcPtr(next)).
		Set("updated_at = $2", now()).
		Where("id = $3", schedID.String()).
		Where("last_created_at IS NOT DISTINCT FROM $4::timestamptz", utcPtr(prev)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("orderflow/postgres: swap schedule claim: %w", err)
	}
	return s.affectedOrMissing(ctx, res, func(ctx context.Context) error {
		_, err := s.GetSchedule(ctx, schedID)
		return err
	})
}

func (s *Store) DeactivateSchedule(ctx context.Context, schedID id.ScheduleID, reason schedule.DeactivationReason) error {
	res, err := s.pg.NewUpdate((*scheduleModel)(nil)).
		Set("is_active = FALSE").
		Set("deactivation_reason = $1", string(reason)).
		Set("updated_at = $2", now()).
		Where("id = $3", schedID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: deactivate schedule: %w", err)
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
	_, err := s.pg.NewInsert(toWebhookEventModel(e)).Exec(ctx)
	if err != nil {
		return fmt.Errorf("orderflow/postgres: record webhook event: %w", err)
	}
	return nil
}

func (s *Store) ListWebhookEvents(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	var models []webhookEventModel
	q := s.pg.NewSelect(&models)
	if !opts.PaymentID.IsNil() {
		q = q.Where("payment_id = $1", opts.PaymentID.String())
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("received_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("orderflow/postgres: list webhook events: %w", err)
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

// affectedOrMissing turns a conditional write result into (applied, err).
// When nothing matched, exists tells a missing row (its error) from a
// refused condition (false, nil).
func (s *Store) affectedOrMissing(ctx context.Context, res rowsResult, exists func(context.Context) error) (bool, error) {
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows > 0 {
		return true, nil
	}
	if err := exists(ctx); err != nil {
		return false, err
	}
	return false, nil
}

// mapUnique translates unique violations into domain errors.
func mapUnique(err error, op string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case idxProviderID:
			return orderflow.ErrProviderIDTaken
		case idxOneActive:
			return orderflow.ErrSubscriptionExists
		default:
			return orderflow.ErrAlreadyExists
		}
	}
	if msg := err.Error(); strings.Contains(msg, "duplicate key") {
		switch {
		case strings.Contains(msg, idxProviderID):
			return orderflow.ErrProviderIDTaken
		case strings.Contains(msg, idxOneActive):
			return orderflow.ErrSubscriptionExists
		}
		return orderflow.ErrAlreadyExists
	}
	return fmt.Errorf("orderflow/postgres: %s: %w", op, err)
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

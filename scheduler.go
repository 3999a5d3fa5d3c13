package orderflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/types"
)

// CreateScheduleInput describes a recurring order definition.
type CreateScheduleInput struct {
	CustomerID    string             `json:"customer_id"`
	Address       string             `json:"address"`
	Description   string             `json:"description,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Price         types.Money        `json:"price"`
	Frequency     schedule.Frequency `json:"frequency"`
	PreferredTime string             `json:"preferred_time,omitempty"`
	DaysOfWeek    []time.Weekday     `json:"days_of_week,omitempty"`
	StartDate     *time.Time         `json:"start_date,omitempty"`
	EndDate       *time.Time         `json:"end_date,omitempty"`
}

// CreateSchedule stores an active recurring order definition. The start
// date defaults to today.
func (e *Engine) CreateSchedule(ctx context.Context, in CreateScheduleInput) (*schedule.Definition, error) {
	if strings.TrimSpace(in.Address) == "" {
		return nil, ValidationError{Field: "address", Message: "is required"}
	}
	if in.Price.IsNegative() {
		return nil, ValidationError{Field: "price", Message: "must not be negative"}
	}

	now := e.now()
	d := &schedule.Definition{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewScheduleID(),
		CustomerID:    in.CustomerID,
		Address:       in.Address,
		Description:   in.Description,
		Notes:         in.Notes,
		Price:         in.Price.Normalize(),
		Frequency:     in.Frequency,
		PreferredTime: in.PreferredTime,
		DaysOfWeek:    in.DaysOfWeek,
		StartDate:     schedule.Day(now),
		EndDate:       in.EndDate,
		IsActive:      true,
	}
	if in.StartDate != nil {
		d.StartDate = in.StartDate.UTC()
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := e.lookupUser(ctx, d.CustomerID); err != nil {
		return nil, err
	}

	if err := e.store.CreateSchedule(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// GetSchedule retrieves a schedule definition by ID.
func (e *Engine) GetSchedule(ctx context.Context, schedID id.ScheduleID) (*schedule.Definition, error) {
	return e.store.GetSchedule(ctx, schedID)
}

// DeactivateSchedule switches a definition off on the owner's request.
func (e *Engine) DeactivateSchedule(ctx context.Context, schedID id.ScheduleID) error {
	d, err := e.store.GetSchedule(ctx, schedID)
	if err != nil {
		return err
	}
	return e.deactivate(ctx, d, schedule.ReasonManual)
}

// ProcessSchedules runs one scheduler pass. Concurrent callers share the
// pass already in flight instead of starting another. The shared pass is
// detached from every caller: a caller whose ctx ends gets ctx.Err() while
// the pass keeps running for the others. It stops on Engine.Stop or after
// one schedule interval.
func (e *Engine) ProcessSchedules(ctx context.Context) (*schedule.TickReport, error) {
	ch := e.tick.DoChan("schedules", func() (any, error) {
		passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.passTimeout())
		defer cancel()
		stop := context.AfterFunc(e.life, cancel)
		defer stop()
		return e.processSchedules(passCtx)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.Shared {
			e.logger.Debug("joined running schedule pass")
		}
		report, _ := r.Val.(*schedule.TickReport)
		return report, r.Err
	}
}

func (e *Engine) processSchedules(ctx context.Context) (*schedule.TickReport, error) {
	began := time.Now()
	report := &schedule.TickReport{StartedAt: e.now()}

	expired, err := e.expireDue(ctx)
	if err != nil {
		e.logger.Warn("subscription expiry sweep incomplete", "error", err)
	}
	report.Expired = len(expired)
	ended := make(map[string]subscription.ExpiryReason, len(expired))
	for _, sub := range expired {
		ended[sub.UserID] = sub.ExpiryReason
	}

	defs, err := e.store.ListActiveSchedules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}

	for _, d := range defs {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(began)
			return report, err
		}
		res := e.processSchedule(ctx, d, ended)
		if res.Outcome == schedule.OutcomeFailed {
			e.logger.Error("schedule processing failed",
				"schedule_id", d.ID.String(),
				"error", res.Error,
			)
		}
		report.Add(res)
	}

	report.Duration = time.Since(began)
	e.plugins.EmitScheduleProcessed(ctx, report)
	return report, nil
}

// processSchedule decides and, when due, generates the next order for d.
// The period is claimed by a compare-and-swap on LastCreatedAt before any
// usage is counted, so two passes over the same definition cannot both
// create an order. ended holds the customers whose subscription this pass
// expired, so their schedules record why.
func (e *Engine) processSchedule(ctx context.Context, d *schedule.Definition, ended map[string]subscription.ExpiryReason) schedule.Result {
	res := schedule.Result{ScheduleID: d.ID}
	fail := func(err error) schedule.Result {
		res.Outcome, res.Error = schedule.OutcomeFailed, err.Error()
		return res
	}
	now := e.now()

	if !d.InWindow(now) {
		res.Outcome = schedule.OutcomeOutOfWindow
		return res
	}

	sub, err := e.store.GetActiveSubscription(ctx, d.CustomerID)
	if errors.Is(err, ErrNoActiveSubscription) {
		reason := schedule.ReasonSubscriptionInactive
		if why, ok := ended[d.CustomerID]; ok {
			reason = expiryDeactivation(why)
		}
		return e.deactivated(ctx, d, reason)
	}
	if err != nil {
		return fail(err)
	}

	limits, err := e.CheckOrderLimits(ctx, d.CustomerID)
	if err != nil {
		return fail(err)
	}
	if !limits.CanCreateOrder {
		return e.deactivated(ctx, d, expiryDeactivation(limits.ExpiryReason))
	}

	if !d.IsDue(now) {
		res.Outcome = schedule.OutcomeNotDue
		return res
	}

	prev := d.LastCreatedAt
	claimed, err := e.store.SwapScheduleLastCreatedAt(ctx, d.ID, prev, &now)
	if err != nil {
		return fail(err)
	}
	if !claimed {
		res.Outcome = schedule.OutcomeClaimLost
		return res
	}
	release := func() {
		if _, err := e.store.SwapScheduleLastCreatedAt(ctx, d.ID, &now, prev); err != nil {
			e.logger.Error("failed to release schedule claim", "schedule_id", d.ID.String(), "error", err)
		}
	}

	counted := !sub.IsUnlimited()
	if counted {
		ok, err := e.store.IncrementUsedOrders(ctx, sub.ID)
		if err != nil {
			release()
			return fail(err)
		}
		if !ok {
			release()
			e.plugins.EmitOrderLimitReached(ctx, d.CustomerID, sub)
			return e.deactivated(ctx, d, schedule.ReasonLimitReached)
		}
	}

	o, err := e.createScheduledOrder(ctx, d, now)
	if err != nil {
		if counted {
			if derr := e.store.DecrementUsedOrders(ctx, sub.ID); derr != nil {
				e.logger.Error("failed to return order to quota", "subscription_id", sub.ID.String(), "error", derr)
			}
		}
		release()
		return fail(err)
	}

	e.notifier.ToCouriers(ctx, "New scheduled order", o.Address, map[string]string{
		"type":     "new_scheduled_order",
		"order_id": o.ID.String(),
	})
	e.logger.Info("scheduled order created",
		"schedule_id", d.ID.String(),
		"order_id", o.ID.String(),
		"scheduled_at", o.ScheduledAt,
	)

	res.Outcome, res.OrderID = schedule.OutcomeCreated, o.ID
	return res
}

func expiryDeactivation(why subscription.ExpiryReason) schedule.DeactivationReason {
	if why == subscription.ExpiryLimit {
		return schedule.ReasonLimitReached
	}
	return schedule.ReasonSubscriptionExpired
}

// createScheduledOrder persists an order that the subscription has already
// paid for, together with its settled zero-amount payment.
func (e *Engine) createScheduledOrder(ctx context.Context, d *schedule.Definition, now time.Time) (*order.Order, error) {
	scheduled := d.NextScheduledAt(now)
	o := &order.Order{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewOrderID(),
		CustomerID:    d.CustomerID,
		Address:       d.Address,
		Description:   d.Description,
		Notes:         d.Notes,
		Price:         d.Price,
		PaymentMethod: order.MethodSubscription,
		Status:        order.StatusPaid,
		ScheduledAt:   &scheduled,
		ScheduleID:    d.ID,
	}
	paidAt := now
	p := &payment.Payment{
		Entity:  types.NewEntityAt(now),
		ID:      id.NewPaymentID(),
		Kind:    payment.KindOrder,
		OrderID: o.ID,
		Amount:  types.Zero(d.Price.Currency),
		Status:  payment.StatusPaid,
		Method:  string(order.MethodSubscription),
		PaidAt:  &paidAt,
	}

	if err := e.persistOrder(ctx, o, p); err != nil {
		return nil, err
	}
	return o, nil
}

func (e *Engine) deactivated(ctx context.Context, d *schedule.Definition, reason schedule.DeactivationReason) schedule.Result {
	res := schedule.Result{ScheduleID: d.ID, Outcome: schedule.OutcomeDeactivated, Reason: reason}
	if err := e.deactivate(ctx, d, reason); err != nil {
		res.Outcome, res.Error = schedule.OutcomeFailed, err.Error()
	}
	return res
}

func (e *Engine) deactivate(ctx context.Context, d *schedule.Definition, reason schedule.DeactivationReason) error {
	if err := e.store.DeactivateSchedule(ctx, d.ID, reason); err != nil {
		return err
	}
	d.IsActive = false
	d.DeactivationReason = reason

	e.plugins.EmitScheduleDeactivated(ctx, d, reason)
	e.logger.Info("schedule deactivated",
		"schedule_id", d.ID.String(),
		"customer_id", d.CustomerID,
		"reason", reason,
	)
	return nil
}

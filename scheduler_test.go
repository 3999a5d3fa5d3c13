package orderflow_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/store"
	"github.com/cleanhouse123/orderflow/store/memory"
	"github.com/cleanhouse123/orderflow/subscription"
)

// slowListStore delays the schedule listing so a pass stays in flight.
type slowListStore struct {
	*memory.Store
	delay time.Duration
}

func (s *slowListStore) ListActiveSchedules(ctx context.Context) ([]*schedule.Definition, error) {
	time.Sleep(s.delay)
	return s.Store.ListActiveSchedules(ctx)
}

func (h *harness) dailySchedule(t *testing.T) *schedule.Definition {
	t.Helper()
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d, err := h.engine.CreateSchedule(context.Background(), orderflow.CreateScheduleInput{
		CustomerID:    customerID,
		Address:       "Lenina 1, apt 5",
		Frequency:     schedule.FrequencyDaily,
		PreferredTime: "09:30",
		StartDate:     &start,
	})
	require.NoError(t, err)
	return d
}

func (h *harness) scheduledOrders(t *testing.T, d *schedule.Definition) []*order.Order {
	t.Helper()
	orders, err := h.engine.ListOrders(context.Background(), order.ListFilter{ScheduleID: d.ID})
	require.NoError(t, err)
	return orders
}

func TestDailyScheduleAcrossMidnight(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 10)
	d := h.dailySchedule(t)

	yesterday := time.Date(2025, 3, 10, 23, 59, 0, 0, time.UTC)
	ok, err := h.store.SwapScheduleLastCreatedAt(ctx, d.ID, nil, &yesterday)
	require.NoError(t, err)
	require.True(t, ok)

	h.clock.Set(time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC))

	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)

	// Same day again: the period is already claimed.
	h.clock.Advance(30 * time.Minute)
	report, err = h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	require.Len(t, report.Results, 1)
	assert.Equal(t, schedule.OutcomeNotDue, report.Results[0].Outcome)

	orders := h.scheduledOrders(t, d)
	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, order.StatusPaid, o.Status)
	assert.Equal(t, order.MethodSubscription, o.PaymentMethod)
	assert.True(t, o.ScheduledAt.Equal(time.Date(2025, 3, 12, 9, 30, 0, 0, time.UTC)))

	view, err := h.engine.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, view.Payment)
	assert.Equal(t, payment.StatusPaid, view.Payment.Status)
	assert.Equal(t, orderflow.Zero("rub"), view.Payment.Amount)

	sub, err := h.engine.GetActiveSubscription(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.UsedOrders)

	got, err := h.engine.GetSchedule(ctx, d.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastCreatedAt)
	assert.True(t, got.LastCreatedAt.Equal(time.Date(2025, 3, 11, 0, 1, 0, 0, time.UTC)))

	assert.Eventually(t, func() bool { return len(h.notes.pushesTo(courierID)) == 1 }, time.Second, 10*time.Millisecond)
}

func TestConcurrentPassesCreateOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 10)
	d := h.dailySchedule(t)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.engine.ProcessSchedules(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, h.scheduledOrders(t, d), 1)

	sub, err := h.engine.GetActiveSubscription(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.UsedOrders)
}

func TestSharedPassSurvivesCallerCancel(t *testing.T) {
	h := newHarnessOn(t, func(m *memory.Store) store.Store {
		return &slowListStore{Store: m, delay: 200 * time.Millisecond}
	})
	h.activeSubscription(t, subscription.TypeMonthly, 10)
	d := h.dailySchedule(t)

	impatient, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var (
		wg        sync.WaitGroup
		firstErr  error
		report    *schedule.TickReport
		secondErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, firstErr = h.engine.ProcessSchedules(impatient)
	}()
	go func() {
		defer wg.Done()
		time.Sleep(10 * time.Millisecond)
		report, secondErr = h.engine.ProcessSchedules(context.Background())
	}()
	wg.Wait()

	assert.ErrorIs(t, firstErr, context.DeadlineExceeded)
	require.NoError(t, secondErr)
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Created)
	assert.Len(t, h.scheduledOrders(t, d), 1)
}

func TestScheduleWithoutSubscriptionIsDeactivated(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	d := h.dailySchedule(t)

	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deactivated)
	require.Len(t, report.Results, 1)
	assert.Equal(t, schedule.ReasonSubscriptionInactive, report.Results[0].Reason)

	got, err := h.engine.GetSchedule(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Empty(t, h.scheduledOrders(t, d))

	report, err = h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

func TestScheduleDeactivatedWhenSubscriptionRunsOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.activeSubscription(t, subscription.TypeMonthly, 10)
	d := h.dailySchedule(t)

	require.NotNil(t, sub.EndDate)
	h.clock.Set(sub.EndDate.Add(time.Hour))

	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Deactivated)
	require.Len(t, report.Results, 1)
	assert.Equal(t, schedule.ReasonSubscriptionExpired, report.Results[0].Reason)

	got, err := h.engine.GetSchedule(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, schedule.ReasonSubscriptionExpired, got.DeactivationReason)
	assert.Empty(t, h.scheduledOrders(t, d))
}

func TestScheduleStopsAtLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 2)
	d := h.dailySchedule(t)

	for range 2 {
		report, err := h.engine.ProcessSchedules(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, report.Created)
		h.clock.Advance(24 * time.Hour)
	}

	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Created)
	require.Len(t, report.Results, 1)
	assert.Equal(t, schedule.OutcomeDeactivated, report.Results[0].Outcome)
	assert.Equal(t, schedule.ReasonLimitReached, report.Results[0].Reason)

	assert.Len(t, h.scheduledOrders(t, d), 2)

	_, err = h.engine.GetActiveSubscription(ctx, customerID)
	assert.ErrorIs(t, err, orderflow.ErrNoActiveSubscription)
}

func TestUnfulfilledScheduledOrderReturnsQuota(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 2)
	d := h.dailySchedule(t)

	used := func() int {
		sub, err := h.engine.GetActiveSubscription(ctx, customerID)
		require.NoError(t, err)
		return sub.UsedOrders
	}

	_, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	orders := h.scheduledOrders(t, d)
	require.Len(t, orders, 1)
	require.Equal(t, 1, used())

	_, err = h.engine.TakeOrder(ctx, courierID, orders[0].ID)
	require.NoError(t, err)
	_, err = h.engine.CancelOrder(ctx, courierID, orders[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 0, used())

	h.clock.Advance(24 * time.Hour)
	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.Created)
	require.Equal(t, 1, used())

	require.NoError(t, h.engine.RemoveOrder(ctx, report.Results[0].OrderID))
	assert.Equal(t, 0, used())

	// Orders paid online never touch the quota.
	v := h.createOrder(t)
	require.NoError(t, h.engine.RemoveOrder(ctx, v.Order.ID))
	assert.Equal(t, 0, used())
}

func TestScheduleOutsideWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 10)

	start := h.clock.Now().AddDate(0, 0, 3)
	d, err := h.engine.CreateSchedule(ctx, orderflow.CreateScheduleInput{
		CustomerID: customerID,
		Address:    "Mira 7",
		Frequency:  schedule.FrequencyWeekly,
		StartDate:  &start,
	})
	require.NoError(t, err)

	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, schedule.OutcomeOutOfWindow, report.Results[0].Outcome)
	assert.Empty(t, h.scheduledOrders(t, d))

	got, err := h.engine.GetSchedule(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestCustomScheduleWeekdays(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 10)

	// 2025-03-10 is a Monday.
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	d, err := h.engine.CreateSchedule(ctx, orderflow.CreateScheduleInput{
		CustomerID: customerID,
		Address:    "Mira 7",
		Frequency:  schedule.FrequencyCustom,
		DaysOfWeek: []time.Weekday{time.Monday, time.Thursday},
		StartDate:  &start,
	})
	require.NoError(t, err)

	created := 0
	for range 7 {
		report, err := h.engine.ProcessSchedules(ctx)
		require.NoError(t, err)
		created += report.Created
		h.clock.Advance(24 * time.Hour)
	}
	// Monday (never created), Thursday.
	assert.Equal(t, 2, created)

	orders := h.scheduledOrders(t, d)
	require.Len(t, orders, 2)
	for _, o := range orders {
		wd := o.ScheduledAt.Weekday()
		assert.True(t, wd == time.Monday || wd == time.Thursday, "scheduled on %s", wd)
		assert.Equal(t, schedule.DefaultHour, o.ScheduledAt.Hour())
	}
}

func TestCreateScheduleValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.engine.CreateSchedule(ctx, orderflow.CreateScheduleInput{
		CustomerID: customerID,
		Address:    "Mira 7",
		Frequency:  schedule.FrequencyCustom,
	})
	assert.ErrorIs(t, err, orderflow.ErrInvalidInput)

	_, err = h.engine.CreateSchedule(ctx, orderflow.CreateScheduleInput{
		CustomerID: "ghost",
		Address:    "Mira 7",
		Frequency:  schedule.FrequencyDaily,
	})
	assert.ErrorIs(t, err, orderflow.ErrUserNotFound)

	_, err = h.engine.CreateSchedule(ctx, orderflow.CreateScheduleInput{
		CustomerID:    customerID,
		Address:       "Mira 7",
		Frequency:     schedule.FrequencyDaily,
		PreferredTime: "25:00",
	})
	assert.ErrorIs(t, err, orderflow.ErrInvalidInput)
}

func TestManualScheduleDeactivation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 10)
	d := h.dailySchedule(t)

	require.NoError(t, h.engine.DeactivateSchedule(ctx, d.ID))

	got, err := h.engine.GetSchedule(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, schedule.ReasonManual, got.DeactivationReason)

	report, err := h.engine.ProcessSchedules(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/store/memory"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/types"
)

var t0 = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func TestOrderValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	o := &order.Order{Entity: types.NewEntityAt(t0), ID: id.NewOrderID(), Status: order.StatusNew}
	require.NoError(t, s.CreateOrder(ctx, o))

	o.Status = order.StatusDone
	got, err := s.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusNew, got.Status)

	got.Status = order.StatusCanceled
	again, _ := s.GetOrder(ctx, o.ID)
	assert.Equal(t, order.StatusNew, again.Status)
}

func TestUpdateOrderStatusIsConditional(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	o := &order.Order{Entity: types.NewEntityAt(t0), ID: id.NewOrderID(), Status: order.StatusNew}
	require.NoError(t, s.CreateOrder(ctx, o))

	next := o.Clone()
	next.Apply(order.StatusPaid, t0)
	require.NoError(t, s.UpdateOrderStatus(ctx, next, order.StatusNew))

	stale := o.Clone()
	stale.Apply(order.StatusCanceled, t0)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, stale, order.StatusNew), orderflow.ErrInvalidTransition)

	_, err := s.GetOrder(ctx, id.NewOrderID())
	assert.ErrorIs(t, err, orderflow.ErrOrderNotFound)
}

func TestPaymentStatusConcurrentTerminalWrites(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := &payment.Payment{ID: id.NewPaymentID(), Kind: payment.KindOrder, Status: payment.StatusPending}
	require.NoError(t, s.CreatePayment(ctx, p))

	targets := []payment.Status{payment.StatusPaid, payment.StatusCanceled, payment.StatusPaid, payment.StatusFailed}
	var wg sync.WaitGroup
	changed := make(chan payment.Status, len(targets)*5)
	for i := 0; i < 5; i++ {
		for _, st := range targets {
			wg.Add(1)
			go func(st payment.Status) {
				defer wg.Done()
				upd, err := s.UpdatePaymentStatus(ctx, p.ID, st, t0)
				if assert.NoError(t, err) && upd.Changed {
					changed <- st
				}
			}(st)
		}
	}
	wg.Wait()
	close(changed)

	var winners []payment.Status
	for st := range changed {
		winners = append(winners, st)
	}
	require.Len(t, winners, 1, "exactly one terminal write may win")

	got, err := s.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, winners[0], got.Status)
}

func TestPaidThenRefunded(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := &payment.Payment{ID: id.NewPaymentID(), Status: payment.StatusPending}
	require.NoError(t, s.CreatePayment(ctx, p))

	upd, err := s.UpdatePaymentStatus(ctx, p.ID, payment.StatusPaid, t0)
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.NotNil(t, upd.Payment.PaidAt)

	upd, err = s.UpdatePaymentStatus(ctx, p.ID, payment.StatusPaid, t0)
	require.NoError(t, err)
	assert.False(t, upd.Changed)

	upd, err = s.UpdatePaymentStatus(ctx, p.ID, payment.StatusRefunded, t0)
	require.NoError(t, err)
	assert.True(t, upd.Changed)

	upd, err = s.UpdatePaymentStatus(ctx, p.ID, payment.StatusPaid, t0)
	require.NoError(t, err)
	assert.False(t, upd.Changed)
	assert.Equal(t, payment.StatusRefunded, upd.Payment.Status)
}

func TestAttachProviderIDOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	a := &payment.Payment{ID: id.NewPaymentID(), Status: payment.StatusPending}
	b := &payment.Payment{ID: id.NewPaymentID(), Status: payment.StatusPending}
	require.NoError(t, s.CreatePayment(ctx, a))
	require.NoError(t, s.CreatePayment(ctx, b))

	ok, err := s.AttachProviderID(ctx, a.ID, "prov-1", "https://pay.example/confirm")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AttachProviderID(ctx, a.ID, "prov-2", "")
	require.NoError(t, err)
	assert.False(t, ok, "an attached provider id is never replaced")

	_, err = s.AttachProviderID(ctx, b.ID, "prov-1", "")
	assert.ErrorIs(t, err, orderflow.ErrProviderIDTaken)

	found, err := s.GetPaymentByProviderID(ctx, "prov-1")
	require.NoError(t, err)
	assert.Equal(t, a.ID.String(), found.ID.String())
}

func TestIncrementNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	sub := &subscription.Subscription{
		ID: id.NewSubscriptionID(), UserID: "u1", Status: subscription.StatusActive, OrdersLimit: 5,
	}
	require.NoError(t, s.CreateSubscription(ctx, sub))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.IncrementUsedOrders(ctx, sub.ID)
		}()
	}
	wg.Wait()

	got, err := s.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.UsedOrders)

	for i := 0; i < 10; i++ {
		require.NoError(t, s.DecrementUsedOrders(ctx, sub.ID))
	}
	got, _ = s.GetSubscription(ctx, sub.ID)
	assert.Equal(t, 0, got.UsedOrders, "decrement floors at zero")
}

func TestSingleActiveSubscriptionPerUser(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	first := &subscription.Subscription{ID: id.NewSubscriptionID(), UserID: "u1", Status: subscription.StatusPending, OrdersLimit: 4}
	second := &subscription.Subscription{ID: id.NewSubscriptionID(), UserID: "u1", Status: subscription.StatusPending, OrdersLimit: 4}
	require.NoError(t, s.CreateSubscription(ctx, first))
	require.NoError(t, s.CreateSubscription(ctx, second))

	require.NoError(t, s.ActivateSubscription(ctx, first.ID, t0, t0.AddDate(0, 1, 0)))
	assert.ErrorIs(t, s.ActivateSubscription(ctx, second.ID, t0, t0.AddDate(0, 1, 0)), orderflow.ErrSubscriptionExists)
	assert.ErrorIs(t, s.ActivateSubscription(ctx, first.ID, t0, t0.AddDate(0, 1, 0)), orderflow.ErrSubscriptionNotPending)

	expired, err := s.ExpireSubscription(ctx, first.ID, subscription.ExpiryTime, t0)
	require.NoError(t, err)
	assert.True(t, expired)
	expired, err = s.ExpireSubscription(ctx, first.ID, subscription.ExpiryTime, t0)
	require.NoError(t, err)
	assert.False(t, expired, "a second expiry is a no-op")

	require.NoError(t, s.ActivateSubscription(ctx, second.ID, t0, t0.AddDate(0, 1, 0)))
}

func TestScheduleClaimIsCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	d := &schedule.Definition{ID: id.NewScheduleID(), CustomerID: "u1", Frequency: schedule.FrequencyDaily, IsActive: true}
	require.NoError(t, s.CreateSchedule(ctx, d))

	claim := t0
	var wg sync.WaitGroup
	wins := make(chan struct{}, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.SwapScheduleLastCreatedAt(ctx, d.ID, nil, &claim)
			if assert.NoError(t, err) && ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)

	ok, err := s.SwapScheduleLastCreatedAt(ctx, d.ID, &claim, nil)
	require.NoError(t, err)
	assert.True(t, ok, "rollback restores the previous value")

	got, _ := s.GetSchedule(ctx, d.ID)
	assert.Nil(t, got.LastCreatedAt)
}

func TestMarkOrderOverdueOnce(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	o := &order.Order{ID: id.NewOrderID(), Status: order.StatusNew}
	require.NoError(t, s.CreateOrder(ctx, o))

	ok, err := s.MarkOrderOverdue(ctx, o.ID, 42, t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.MarkOrderOverdue(ctx, o.ID, 90, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, ok)

	got, _ := s.GetOrder(ctx, o.ID)
	require.NotNil(t, got.OverdueMinutes)
	assert.Equal(t, 42, *got.OverdueMinutes, "overdue minutes are frozen")
}

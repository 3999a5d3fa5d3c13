package orderflow_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/subscription"
)

func (h *harness) activeSubscription(t *testing.T, typ subscription.Type, limit int) *subscription.Subscription {
	t.Helper()
	ctx := context.Background()

	sub, _, err := h.engine.CreateSubscription(ctx, orderflow.CreateSubscriptionInput{
		UserID:      customerID,
		Type:        typ,
		OrdersLimit: limit,
		Price:       orderflow.RUB(500000),
	})
	require.NoError(t, err)

	sub, err = h.engine.ActivateSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, subscription.StatusActive, sub.Status)
	return sub
}

func TestLimitExpiryScenario(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.activeSubscription(t, subscription.TypeMonthly, 5)

	for i := range 5 {
		limits, err := h.engine.CheckOrderLimits(ctx, customerID)
		require.NoError(t, err)
		require.True(t, limits.CanCreateOrder, "order %d", i+1)
		assert.Equal(t, 5-i, limits.RemainingOrders)
		require.NoError(t, h.engine.IncrementUsedOrders(ctx, customerID))
	}

	limits, err := h.engine.CheckOrderLimits(ctx, customerID)
	require.NoError(t, err)
	assert.False(t, limits.CanCreateOrder)
	assert.True(t, limits.IsExpired)
	assert.Equal(t, subscription.ExpiryLimit, limits.ExpiryReason)
	assert.Equal(t, 5, limits.UsedOrders)

	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)
	assert.Equal(t, subscription.ExpiryLimit, got.ExpiryReason)

	_, err = h.engine.GetActiveSubscription(ctx, customerID)
	assert.ErrorIs(t, err, orderflow.ErrNoActiveSubscription)
}

func TestIncrementNeverExceedsLimit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.activeSubscription(t, subscription.TypeMonthly, 5)

	var (
		wg      sync.WaitGroup
		ok      atomic.Int32
		refused atomic.Int32
	)
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.engine.IncrementUsedOrders(ctx, customerID)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, orderflow.ErrOrderLimitReached):
				refused.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), ok.Load())
	assert.Equal(t, int32(15), refused.Load())

	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.UsedOrders)
}

func TestDecrementFloorsAtZero(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.activeSubscription(t, subscription.TypeMonthly, 3)

	require.NoError(t, h.engine.IncrementUsedOrders(ctx, customerID))
	require.NoError(t, h.engine.DecrementUsedOrders(ctx, customerID))
	require.NoError(t, h.engine.DecrementUsedOrders(ctx, customerID))

	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsedOrders)
}

func TestUnlimitedSubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.activeSubscription(t, subscription.TypeYearly, subscription.Unlimited)

	for range 50 {
		require.NoError(t, h.engine.IncrementUsedOrders(ctx, customerID))
	}

	limits, err := h.engine.CheckOrderLimits(ctx, customerID)
	require.NoError(t, err)
	assert.True(t, limits.CanCreateOrder)
	assert.Equal(t, subscription.Unlimited, limits.RemainingOrders)

	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.UsedOrders)
	assert.True(t, got.EndDate.Equal(got.StartDate.AddDate(1, 0, 0)))
}

func TestNoSubscriptionCannotOrder(t *testing.T) {
	h := newHarness(t)

	limits, err := h.engine.CheckOrderLimits(context.Background(), customerID)
	require.NoError(t, err)
	assert.False(t, limits.CanCreateOrder)
	assert.False(t, limits.IsExpired)

	assert.NoError(t, h.engine.IncrementUsedOrders(context.Background(), customerID))
}

func TestExpiryByTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	sub := h.activeSubscription(t, subscription.TypeMonthly, 10)

	h.clock.Advance(32 * 24 * time.Hour)

	limits, err := h.engine.CheckOrderLimits(ctx, customerID)
	require.NoError(t, err)
	assert.False(t, limits.CanCreateOrder)
	assert.True(t, limits.IsExpired)
	assert.Equal(t, subscription.ExpiryTime, limits.ExpiryReason)

	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusExpired, got.Status)
}

func TestExpireSubscriptionsSweep(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 10)

	n, err := h.engine.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	h.clock.Advance(40 * 24 * time.Hour)

	n, err = h.engine.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = h.engine.ExpireSubscriptions(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSecondActiveSubscription(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.activeSubscription(t, subscription.TypeMonthly, 1)

	in := orderflow.CreateSubscriptionInput{
		UserID:      customerID,
		Type:        subscription.TypeMonthly,
		OrdersLimit: 4,
		Price:       orderflow.RUB(300000),
	}
	_, _, err := h.engine.CreateSubscription(ctx, in)
	assert.ErrorIs(t, err, orderflow.ErrSubscriptionExists)
	assert.Equal(t, http.StatusConflict, orderflow.HTTPStatus(err))

	// Using up the single order expires the first subscription.
	require.NoError(t, h.engine.IncrementUsedOrders(ctx, customerID))
	limits, err := h.engine.CheckOrderLimits(ctx, customerID)
	require.NoError(t, err)
	require.True(t, limits.IsExpired)

	_, _, err = h.engine.CreateSubscription(ctx, in)
	assert.NoError(t, err)
}

func TestActivationRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	sub := h.activeSubscription(t, subscription.TypeOneTime, 2)
	assert.True(t, sub.EndDate.Equal(sub.StartDate.AddDate(0, 1, 0)))

	_, err := h.engine.ActivateSubscription(ctx, sub.ID)
	assert.ErrorIs(t, err, orderflow.ErrSubscriptionNotPending)

	require.NoError(t, h.engine.CancelSubscription(ctx, sub.ID))
	got, err := h.engine.GetSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.StatusCanceled, got.Status)
	assert.NotNil(t, got.CanceledAt)
}

func TestCreateSubscriptionValidation(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		in   orderflow.CreateSubscriptionInput
	}{
		{"zero limit", orderflow.CreateSubscriptionInput{UserID: customerID, Type: subscription.TypeMonthly, OrdersLimit: 0}},
		{"below unlimited", orderflow.CreateSubscriptionInput{UserID: customerID, Type: subscription.TypeMonthly, OrdersLimit: -2}},
		{"unknown type", orderflow.CreateSubscriptionInput{UserID: customerID, Type: "weekly", OrdersLimit: 3}},
		{"no user", orderflow.CreateSubscriptionInput{Type: subscription.TypeMonthly, OrdersLimit: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.engine.CreateSubscription(context.Background(), tt.in)
			assert.ErrorIs(t, err, orderflow.ErrInvalidInput)
		})
	}
}

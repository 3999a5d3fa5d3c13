package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow/observability"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/plugin"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/types"
	"github.com/cleanhouse123/orderflow/webhook"
)

func newMetrics(t *testing.T) (*observability.MetricsExtension, *plugin.Registry) {
	t.Helper()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(prometheus.NewRegistry()))
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(m))
	return m, r
}

func value(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	require.True(t, ok)
	return testutil.ToFloat64(pc)
}

func TestOrderTransitionsCountByTarget(t *testing.T) {
	m, r := newMetrics(t)
	ctx := context.Background()

	r.EmitOrderCreated(ctx, &order.Order{})
	r.EmitOrderTransitioned(ctx, &order.Order{Status: order.StatusPaid}, order.StatusNew)
	r.EmitOrderTransitioned(ctx, &order.Order{Status: order.StatusAssigned}, order.StatusPaid)
	r.EmitOrderTransitioned(ctx, &order.Order{Status: order.StatusDone}, order.StatusInProgress)

	assert.Equal(t, 1.0, value(t, m.OrderCreated))
	assert.Equal(t, 1.0, value(t, m.OrderPaid))
	assert.Equal(t, 1.0, value(t, m.OrderDone))
	assert.Equal(t, 0.0, value(t, m.OrderCanceled))
}

func TestPaymentAndWebhookCounters(t *testing.T) {
	m, r := newMetrics(t)
	ctx := context.Background()

	r.EmitPaymentStatusChanged(ctx, &payment.Payment{Status: payment.StatusPaid, Amount: types.RUB(1000)}, payment.StatusPending)
	r.EmitPaymentStatusChanged(ctx, &payment.Payment{Status: payment.StatusCanceled}, payment.StatusPending)
	r.EmitWebhookReceived(ctx, &webhook.Event{Outcome: webhook.OutcomeApplied})
	r.EmitWebhookReceived(ctx, &webhook.Event{Outcome: webhook.OutcomeDuplicate})
	r.EmitWebhookReceived(ctx, &webhook.Event{Outcome: webhook.OutcomeUnrecognized})

	assert.Equal(t, 1.0, value(t, m.PaymentSucceeded))
	assert.Equal(t, 1.0, value(t, m.PaymentFailed))
	assert.Equal(t, 1.0, value(t, m.WebhookApplied))
	assert.Equal(t, 1.0, value(t, m.WebhookDuplicate))
	assert.Equal(t, 1.0, value(t, m.WebhookIgnored))
}

func TestSchedulePassReport(t *testing.T) {
	m, r := newMetrics(t)

	r.EmitScheduleProcessed(context.Background(), &schedule.TickReport{
		Created:  3,
		Failed:   1,
		Duration: 20 * time.Millisecond,
	})

	assert.Equal(t, 3.0, value(t, m.ScheduledOrders))
	assert.Equal(t, 1.0, value(t, m.SchedulePassFailures))
}

func TestFactoryReusesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a := observability.NewPrometheusFactory(reg)
	b := observability.NewPrometheusFactory(reg)

	a.Counter("orderflow.order.created").Inc()
	b.Counter("orderflow.order.created").Inc()

	assert.Equal(t, a.Counter("orderflow.order.created"), b.Counter("orderflow.order.created"))
	n, err := testutil.GatherAndCount(reg, "orderflow_order_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

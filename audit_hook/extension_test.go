package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audithook "github.com/cleanhouse123/orderflow/audit_hook"
	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/plugin"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/types"
	"github.com/cleanhouse123/orderflow/webhook"
)

type sink struct {
	mu     sync.Mutex
	events []*audithook.AuditEvent
	err    error
}

func (s *sink) Record(_ context.Context, e *audithook.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

func (s *sink) actions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Action
	}
	return out
}

func TestRecordsThroughRegistry(t *testing.T) {
	rec := &sink{}
	r := plugin.NewRegistry()
	require.NoError(t, r.Register(audithook.New(rec)))

	ctx := context.Background()
	o := &order.Order{ID: id.NewOrderID(), CustomerID: "user-1", Status: order.StatusPaid, Price: types.RUB(150000)}
	r.EmitOrderCreated(ctx, o)
	r.EmitOrderTransitioned(ctx, o, order.StatusNew)

	assert.Equal(t, []string{audithook.ActionOrderCreated, audithook.ActionOrderTransitioned}, rec.actions())

	created := rec.events[0]
	assert.Equal(t, audithook.ResourceOrder, created.Resource)
	assert.Equal(t, o.ID.String(), created.ResourceID)
	assert.Equal(t, "user-1", created.Metadata["customer_id"])
	assert.Equal(t, "1500.00 ₽", created.Metadata["price"])

	moved := rec.events[1]
	assert.Equal(t, "new", moved.Metadata["from"])
	assert.Equal(t, "paid", moved.Metadata["to"])
}

func TestPaymentSeverity(t *testing.T) {
	rec := &sink{}
	ext := audithook.New(rec)
	ctx := context.Background()

	p := &payment.Payment{ID: id.NewPaymentID(), Status: payment.StatusPaid}
	require.NoError(t, ext.OnPaymentStatusChanged(ctx, p, payment.StatusPending))

	failed := &payment.Payment{ID: id.NewPaymentID(), Status: payment.StatusCanceled}
	require.NoError(t, ext.OnPaymentStatusChanged(ctx, failed, payment.StatusPending))

	require.Len(t, rec.events, 2)
	assert.Equal(t, audithook.SeverityInfo, rec.events[0].Severity)
	assert.Equal(t, audithook.OutcomeSuccess, rec.events[0].Outcome)
	assert.Equal(t, audithook.SeverityWarning, rec.events[1].Severity)
	assert.Equal(t, audithook.OutcomeFailure, rec.events[1].Outcome)
}

func TestWebhookOutcomes(t *testing.T) {
	tests := []struct {
		outcome webhook.Outcome
		want    string
	}{
		{webhook.OutcomeApplied, audithook.OutcomeSuccess},
		{webhook.OutcomeDuplicate, audithook.OutcomeSuccess},
		{webhook.OutcomeNotFound, audithook.OutcomeFailure},
		{webhook.OutcomeUnrecognized, audithook.OutcomeFailure},
	}
	for _, tt := range tests {
		t.Run(string(tt.outcome), func(t *testing.T) {
			rec := &sink{}
			ext := audithook.New(rec)
			evt := &webhook.Event{ID: id.NewWebhookEventID(), Outcome: tt.outcome}
			require.NoError(t, ext.OnWebhookReceived(context.Background(), evt))
			require.Len(t, rec.events, 1)
			assert.Equal(t, tt.want, rec.events[0].Outcome)
		})
	}
}

func TestActionFilters(t *testing.T) {
	ctx := context.Background()
	sub := &subscription.Subscription{ID: id.NewSubscriptionID(), UserID: "user-1"}

	only := &sink{}
	ext := audithook.New(only, audithook.WithEnabledActions(audithook.ActionSubscriptionExpired))
	require.NoError(t, ext.OnSubscriptionCreated(ctx, sub))
	require.NoError(t, ext.OnSubscriptionExpired(ctx, sub, subscription.ExpiryLimit))
	assert.Equal(t, []string{audithook.ActionSubscriptionExpired}, only.actions())

	skip := &sink{}
	ext = audithook.New(skip, audithook.WithDisabledActions(audithook.ActionSubscriptionCreated))
	require.NoError(t, ext.OnSubscriptionCreated(ctx, sub))
	require.NoError(t, ext.OnSubscriptionCanceled(ctx, sub))
	assert.Equal(t, []string{audithook.ActionSubscriptionCanceled}, skip.actions())
}

func TestRecorderFailureIsSwallowed(t *testing.T) {
	rec := &sink{err: errors.New("backend down")}
	ext := audithook.New(rec)

	err := ext.OnOrderRemoved(context.Background(), id.NewOrderID())
	assert.NoError(t, err)
	assert.Len(t, rec.events, 1)
}

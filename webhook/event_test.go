package webhook_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/webhook"
)

func TestParseMalformed(t *testing.T) {
	bodies := map[string]string{
		"empty":        ``,
		"not json":     `{"event":`,
		"no event":     `{"object":{"id":"p1"}}`,
		"no object":    `{"event":"payment.succeeded"}`,
		"array":        `[1,2,3]`,
		"wrong object": `{"event":"payment.succeeded","object":"p1"}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			_, err := webhook.Parse([]byte(body))
			require.ErrorIs(t, err, webhook.ErrMalformed)
		})
	}
}

func TestParseAcceptsTypeKey(t *testing.T) {
	n, err := webhook.Parse([]byte(`{"type":"payment.canceled","object":{"id":"2d1f","status":"canceled"}}`))
	require.NoError(t, err)
	assert.Equal(t, webhook.EventPaymentCanceled, n.Type)
	assert.Equal(t, "2d1f", n.Object.ID)
}

func TestClassify(t *testing.T) {
	orderID := id.NewOrderID()
	subID := id.NewSubscriptionID()
	payID := id.NewPaymentID()

	tests := []struct {
		name string
		body string
		kind string
	}{
		{
			name: "order payment",
			body: fmt.Sprintf(`{"event":"payment.succeeded","object":{"id":"x","metadata":{"orderId":%q,"paymentId":%q}}}`, orderID, payID),
			kind: "order",
		},
		{
			name: "subscription payment",
			body: fmt.Sprintf(`{"event":"payment.succeeded","object":{"id":"x","metadata":{"subscriptionId":%q,"paymentId":%q}}}`, subID, payID),
			kind: "subscription",
		},
		{
			name: "both keys",
			body: fmt.Sprintf(`{"event":"payment.succeeded","object":{"id":"x","metadata":{"orderId":%q,"subscriptionId":%q,"paymentId":%q}}}`, orderID, subID, payID),
			kind: "unrecognized",
		},
		{
			name: "neither key",
			body: fmt.Sprintf(`{"event":"payment.succeeded","object":{"id":"x","metadata":{"paymentId":%q}}}`, payID),
			kind: "unrecognized",
		},
		{
			name: "numeric order id",
			body: `{"event":"payment.succeeded","object":{"id":"x","metadata":{"orderId":42,"paymentId":"pay_x"}}}`,
			kind: "unrecognized",
		},
		{
			name: "refund by payment_id",
			body: `{"event":"refund.succeeded","object":{"id":"rf_1","payment_id":"2d1f"}}`,
			kind: "refund",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := webhook.Parse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.kind, n.Classify().Kind())
		})
	}
}

func TestClassifyCarriesIDs(t *testing.T) {
	orderID := id.NewOrderID()
	payID := id.NewPaymentID()
	n, err := webhook.Parse([]byte(fmt.Sprintf(
		`{"event":"payment.succeeded","object":{"id":"prov-1","metadata":{"orderId":%q,"paymentId":%q}}}`, orderID, payID)))
	require.NoError(t, err)

	subject, ok := n.Classify().(webhook.OrderPayment)
	require.True(t, ok)
	assert.Equal(t, orderID.String(), subject.OrderID.String())
	assert.Equal(t, payID.String(), subject.PaymentID.String())
}

func TestRefundFallsBackToObjectID(t *testing.T) {
	n, err := webhook.Parse([]byte(`{"event":"refund.succeeded","object":{"id":"2d1f"}}`))
	require.NoError(t, err)
	refund, ok := n.Classify().(webhook.Refund)
	require.True(t, ok)
	assert.Equal(t, "2d1f", refund.ProviderPaymentID)
}

func TestTargetStatus(t *testing.T) {
	tests := map[webhook.EventType]payment.Status{
		webhook.EventPaymentSucceeded:         payment.StatusPaid,
		webhook.EventPaymentWaitingForCapture: payment.StatusWaitingForCapture,
		webhook.EventPaymentCanceled:          payment.StatusCanceled,
		webhook.EventRefundSucceeded:          payment.StatusRefunded,
	}
	for evt, want := range tests {
		got, ok := evt.TargetStatus()
		assert.True(t, ok, evt)
		assert.Equal(t, want, got, evt)
	}

	_, ok := webhook.EventType("payout.succeeded").TargetStatus()
	assert.False(t, ok)
}

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/api"
	"github.com/cleanhouse123/orderflow/notify"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/store/memory"
)

const customerID = "user-customer"

type fixture struct {
	engine  *orderflow.Engine
	store   *memory.Store
	handler *api.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := memory.New()
	eng := orderflow.New(s,
		orderflow.WithScheduleInterval(0),
		orderflow.WithUserDirectory(notify.NewStaticDirectory(
			&notify.User{ID: customerID, Role: notify.RoleCustomer},
		)),
	)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Stop() })
	return &fixture{engine: eng, store: s, handler: api.New(eng, nil)}
}

func (f *fixture) do(t *testing.T, method, path string, body []byte) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func (f *fixture) createOrder(t *testing.T) *order.View {
	t.Helper()
	v, err := f.engine.CreateOrder(context.Background(), orderflow.CreateOrderInput{
		CustomerID: customerID,
		Address:    "Lenina 1, apt 5",
		Price:      orderflow.RUB(150000),
	})
	require.NoError(t, err)
	return v
}

func paidBody(t *testing.T, v *order.View) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": "payment.succeeded",
		"object": map[string]any{
			"id":     "prov-1",
			"status": "succeeded",
			"metadata": map[string]string{
				"orderId":   v.Order.ID.String(),
				"paymentId": v.Payment.ID.String(),
			},
		},
	})
	require.NoError(t, err)
	return body
}

func TestPaymentWebhook(t *testing.T) {
	f := newFixture(t)
	v := f.createOrder(t)
	body := paidBody(t, v)

	rec, out := f.do(t, http.MethodPost, "/webhooks/payments", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "applied", out["outcome"])
	assert.Equal(t, "order", out["type"])
	assert.NotEmpty(t, out["message"])

	rec, out = f.do(t, http.MethodPost, "/webhooks/payments", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "duplicate", out["outcome"])

	got, err := f.engine.GetOrder(context.Background(), v.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Order.Status)
}

func TestPaymentWebhookRejectsMalformedBodies(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{"", "not json", `{"object":{"id":"x"}}`} {
		rec, out := f.do(t, http.MethodPost, "/webhooks/payments", []byte(body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.Contains(t, out["error"], "malformed")
	}
}

func TestPaymentWebhookUnknownPaymentIsAcknowledged(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"event":"payment.succeeded","object":{"id":"prov-x","status":"succeeded","metadata":{"orderId":"ord_01h455vb4pex5vsknk084sn02q","paymentId":"pay_01h455vb4pex5vsknk084sn02q"}}}`)

	rec, out := f.do(t, http.MethodPost, "/webhooks/payments", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "not_found", out["outcome"])
}

func TestPaymentWebhookTooLarge(t *testing.T) {
	f := newFixture(t)
	body := bytes.Repeat([]byte("a"), api.MaxWebhookBytes+1)

	rec, _ := f.do(t, http.MethodPost, "/webhooks/payments", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestRunSchedules(t *testing.T) {
	f := newFixture(t)

	rec, out := f.do(t, http.MethodPost, "/internal/schedules/run", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 0, out["processed"])
	assert.Contains(t, out, "started_at")
}

func TestListWebhookEvents(t *testing.T) {
	f := newFixture(t)
	v := f.createOrder(t)
	f.do(t, http.MethodPost, "/webhooks/payments", paidBody(t, v))

	req := httptest.NewRequest(http.MethodGet, "/internal/webhooks?payment_id="+v.Payment.ID.String(), nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var events []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "applied", events[0]["outcome"])

	rec, _ = f.do(t, http.MethodGet, "/internal/webhooks?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = f.do(t, http.MethodGet, "/internal/webhooks?payment_id=sub_01h455vb4pex5vsknk084sn02q", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec, out := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])

	require.NoError(t, f.store.Close())
	rec, _ = f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMountUnderPrefix(t *testing.T) {
	f := newFixture(t)
	root := chi.NewRouter()
	f.handler.Mount(root, "/orderflow")

	req := httptest.NewRequest(http.MethodGet, "/orderflow/healthz", nil)
	rec := httptest.NewRecorder()
	root.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

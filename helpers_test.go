package orderflow_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/notify"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/store"
	"github.com/cleanhouse123/orderflow/store/memory"
)

const (
	customerID = "user-customer"
	courierID  = "user-courier"
	otherID    = "user-other-courier"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type push struct {
	UserID string
	Title  string
	Data   map[string]string
}

// recorder captures notifications from both collaborator interfaces.
type recorder struct {
	mu       sync.Mutex
	success  []string
	failures []string
	pushes   []push
}

func (r *recorder) NotifyPaymentSuccess(_ context.Context, paymentID, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.success = append(r.success, paymentID)
	return nil
}

func (r *recorder) NotifyPaymentError(_ context.Context, paymentID, _, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, paymentID)
	return nil
}

func (r *recorder) SendToUser(_ context.Context, userID, title, _ string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pushes = append(r.pushes, push{UserID: userID, Title: title, Data: data})
	return nil
}

func (r *recorder) SendToDevice(context.Context, string, string, string, map[string]string) error {
	return nil
}

func (r *recorder) successes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.success)
}

func (r *recorder) failed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

func (r *recorder) pushesTo(userID string) []push {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []push
	for _, p := range r.pushes {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out
}

type harness struct {
	engine *orderflow.Engine
	store  *memory.Store
	clock  *testClock
	users  *notify.StaticDirectory
	notes  *recorder
}

func newHarness(t *testing.T, opts ...orderflow.Option) *harness {
	t.Helper()
	return newHarnessOn(t, nil, opts...)
}

// newHarnessOn is newHarness with the engine running on wrap(memory store).
func newHarnessOn(t *testing.T, wrap func(*memory.Store) store.Store, opts ...orderflow.Option) *harness {
	t.Helper()

	h := &harness{
		store: memory.New(),
		clock: newClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)),
		users: notify.NewStaticDirectory(
			&notify.User{ID: customerID, Role: notify.RoleCustomer},
			&notify.User{ID: courierID, Role: notify.RoleCourier},
			&notify.User{ID: otherID, Role: notify.RoleCourier},
		),
		notes: &recorder{},
	}

	base := []orderflow.Option{
		orderflow.WithClock(h.clock.Now),
		orderflow.WithUserDirectory(h.users),
		orderflow.WithNotifier(h.notes, h.notes),
		orderflow.WithScheduleInterval(0),
	}
	var backend store.Store = h.store
	if wrap != nil {
		backend = wrap(h.store)
	}
	h.engine = orderflow.New(backend, append(base, opts...)...)
	require.NoError(t, h.engine.Start(context.Background()))
	t.Cleanup(func() { _ = h.engine.Stop() })
	return h
}

func webhookBody(t *testing.T, event, providerID string, metadata map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event": event,
		"object": map[string]any{
			"id":       providerID,
			"status":   "succeeded",
			"metadata": metadata,
		},
	})
	require.NoError(t, err)
	return body
}

func orderEvent(t *testing.T, event, providerID string, v *order.View) []byte {
	t.Helper()
	return webhookBody(t, event, providerID, map[string]string{
		"orderId":   v.Order.ID.String(),
		"paymentId": v.Payment.ID.String(),
	})
}

func (h *harness) createOrder(t *testing.T) *order.View {
	t.Helper()
	v, err := h.engine.CreateOrder(context.Background(), orderflow.CreateOrderInput{
		CustomerID: customerID,
		Address:    "Lenina 1, apt 5",
		Price:      orderflow.RUB(150000),
	})
	require.NoError(t, err)
	return v
}

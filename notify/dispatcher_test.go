package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow/notify"
)

type recordingPush struct {
	notify.Nop
	mu    sync.Mutex
	users []string
	fail  map[string]bool
}

func (p *recordingPush) SendToUser(_ context.Context, userID, _, _ string, _ map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	if p.fail[userID] {
		return errors.New("device unreachable")
	}
	return nil
}

func TestToCouriersFansOutDespiteFailures(t *testing.T) {
	dir := notify.NewStaticDirectory(
		&notify.User{ID: "c1", Role: notify.RoleCourier},
		&notify.User{ID: "c2", Role: notify.RoleCourier},
		&notify.User{ID: "u1", Role: notify.RoleCustomer},
	)
	push := &recordingPush{fail: map[string]bool{"c1": true}}
	d := notify.NewDispatcher(nil, push, dir, nil)

	d.ToCouriers(context.Background(), "New order", "A paid order is waiting", nil)
	d.Wait()

	assert.ElementsMatch(t, []string{"c1", "c2"}, push.users)
}

func TestGoSurvivesCanceledCaller(t *testing.T) {
	d := notify.NewDispatcher(nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran bool
	d.Go(ctx, "test", func(ctx context.Context) error {
		ran = ctx.Err() == nil
		return nil
	})
	d.Wait()
	assert.True(t, ran, "delivery context must not inherit caller cancellation")
}

func TestGoRecoversPanics(t *testing.T) {
	d := notify.NewDispatcher(nil, nil, nil, nil)
	d.Go(context.Background(), "panicky", func(context.Context) error { panic("boom") })
	d.Wait()
}

func TestStaticDirectory(t *testing.T) {
	dir := notify.NewStaticDirectory(&notify.User{ID: "c1", Role: notify.RoleCourier})

	u, err := dir.GetUser(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, u.IsCourier())

	_, err = dir.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, notify.ErrUnknownUser)
}

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds one background delivery.
const DefaultTimeout = 10 * time.Second

// Dispatcher runs notifications in the background. Callers never wait for
// delivery and delivery errors are only logged.
type Dispatcher struct {
	channel NotificationChannel
	push    PushNotifier
	users   UserDirectory
	logger  *slog.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Nil collaborators are replaced with
// no-ops.
func NewDispatcher(channel NotificationChannel, push PushNotifier, users UserDirectory, logger *slog.Logger) *Dispatcher {
	if channel == nil {
		channel = Nop{}
	}
	if push == nil {
		push = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		channel: channel,
		push:    push,
		users:   users,
		logger:  logger,
		timeout: DefaultTimeout,
	}
}

// WithTimeout sets the per-delivery timeout.
func (d *Dispatcher) WithTimeout(t time.Duration) *Dispatcher {
	if t > 0 {
		d.timeout = t
	}
	return d
}

// Go runs fn in the background with a context that survives cancellation of
// ctx but carries its values and a delivery timeout.
func (d *Dispatcher) Go(ctx context.Context, what string, fn func(ctx context.Context) error) {
	bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("notification panicked", "notification", what, "panic", fmt.Sprint(r))
			}
		}()

		if err := fn(bg); err != nil {
			d.logger.Warn("notification failed",
				"notification", what,
				"error", err,
			)
		}
	}()
}

// Wait blocks until every background delivery has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// PaymentSucceeded tells realtime subscribers that a payment went through.
func (d *Dispatcher) PaymentSucceeded(ctx context.Context, paymentID, subjectID string) {
	d.Go(ctx, "payment_success", func(ctx context.Context) error {
		return d.channel.NotifyPaymentSuccess(ctx, paymentID, subjectID)
	})
}

// PaymentFailed tells realtime subscribers that a payment did not go
// through.
func (d *Dispatcher) PaymentFailed(ctx context.Context, paymentID, subjectID, reason string) {
	d.Go(ctx, "payment_error", func(ctx context.Context) error {
		return d.channel.NotifyPaymentError(ctx, paymentID, subjectID, reason)
	})
}

// ToUser sends a push message to one user.
func (d *Dispatcher) ToUser(ctx context.Context, userID, title, body string, data map[string]string) {
	d.Go(ctx, "push_user", func(ctx context.Context) error {
		return d.push.SendToUser(ctx, userID, title, body, data)
	})
}

// ToCouriers fans a push message out to every courier. One failed delivery
// does not stop the rest.
func (d *Dispatcher) ToCouriers(ctx context.Context, title, body string, data map[string]string) {
	if d.users == nil {
		return
	}
	d.Go(ctx, "push_couriers", func(ctx context.Context) error {
		couriers, err := d.users.ListCouriers(ctx)
		if err != nil {
			return fmt.Errorf("list couriers: %w", err)
		}
		var failed int
		for _, c := range couriers {
			if err := d.push.SendToUser(ctx, c.ID, title, body, data); err != nil {
				failed++
				d.logger.Debug("courier push failed", "courier_id", c.ID, "error", err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d courier pushes failed", failed, len(couriers))
		}
		return nil
	})
}

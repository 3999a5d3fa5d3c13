package store

import (
	"context"
	"errors"
	"time"

	"github.com/cleanhouse123/orderflow/payment"
)

// MaxCASAttempts bounds how often a compare-and-swap write is retried
// after losing to a concurrent writer.
const MaxCASAttempts = 8

// ErrContention is returned when a compare-and-swap keeps losing.
var ErrContention = errors.New("orderflow: too many concurrent updates")

// PaymentStatusCAS implements UpdatePaymentStatus for backends that can
// only swap on an exact current value. get reads the payment; swap writes
// status only if the stored status still equals from and reports whether
// it did.
func PaymentStatusCAS(
	ctx context.Context,
	get func(ctx context.Context) (*payment.Payment, error),
	swap func(ctx context.Context, from payment.Status) (bool, error),
	status payment.Status,
	at time.Time,
) (*payment.Update, error) {
	for range MaxCASAttempts {
		cur, err := get(ctx)
		if err != nil {
			return nil, err
		}
		if !payment.CanTransition(cur.Status, status) {
			return &payment.Update{Previous: cur.Status, Payment: cur}, nil
		}

		swapped, err := swap(ctx, cur.Status)
		if err != nil {
			return nil, err
		}
		if !swapped {
			continue
		}

		prev := cur.Status
		cur.Status = status
		cur.UpdatedAt = at
		if status == payment.StatusPaid {
			cur.PaidAt = &at
		}
		return &payment.Update{Changed: true, Previous: prev, Payment: cur}, nil
	}
	return nil, ErrContention
}

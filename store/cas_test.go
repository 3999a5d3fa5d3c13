package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/store"
)

var at = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// row is a single payment guarded by a compare-and-swap on its status.
type row struct {
	p      payment.Payment
	steals []payment.Status // statuses written by a competing writer before each swap
	swaps  int
}

func (r *row) get(context.Context) (*payment.Payment, error) {
	cp := r.p
	return &cp, nil
}

func (r *row) swap(status payment.Status) func(context.Context, payment.Status) (bool, error) {
	return func(_ context.Context, from payment.Status) (bool, error) {
		r.swaps++
		if len(r.steals) > 0 {
			r.p.Status, r.steals = r.steals[0], r.steals[1:]
		}
		if r.p.Status != from {
			return false, nil
		}
		r.p.Status = status
		return true, nil
	}
}

func newRow(status payment.Status) *row {
	return &row{p: payment.Payment{ID: id.NewPaymentID(), Status: status}}
}

func TestPaymentStatusCASApplies(t *testing.T) {
	r := newRow(payment.StatusPending)

	upd, err := store.PaymentStatusCAS(context.Background(), r.get, r.swap(payment.StatusPaid), payment.StatusPaid, at)
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.Equal(t, payment.StatusPending, upd.Previous)
	assert.Equal(t, payment.StatusPaid, upd.Payment.Status)
	require.NotNil(t, upd.Payment.PaidAt)
	assert.Equal(t, at, *upd.Payment.PaidAt)
}

func TestPaymentStatusCASTerminalIsSticky(t *testing.T) {
	r := newRow(payment.StatusPaid)

	upd, err := store.PaymentStatusCAS(context.Background(), r.get, r.swap(payment.StatusCanceled), payment.StatusCanceled, at)
	require.NoError(t, err)
	assert.False(t, upd.Changed)
	assert.Equal(t, payment.StatusPaid, upd.Payment.Status)
	assert.Zero(t, r.swaps)
}

func TestPaymentStatusCASRereadsAfterLosing(t *testing.T) {
	r := newRow(payment.StatusPending)
	r.steals = []payment.Status{payment.StatusWaitingForCapture}

	upd, err := store.PaymentStatusCAS(context.Background(), r.get, r.swap(payment.StatusPaid), payment.StatusPaid, at)
	require.NoError(t, err)
	assert.True(t, upd.Changed)
	assert.Equal(t, payment.StatusWaitingForCapture, upd.Previous)
	assert.Equal(t, 2, r.swaps)
}

func TestPaymentStatusCASLosesToTerminal(t *testing.T) {
	r := newRow(payment.StatusPending)
	r.steals = []payment.Status{payment.StatusCanceled}

	upd, err := store.PaymentStatusCAS(context.Background(), r.get, r.swap(payment.StatusPaid), payment.StatusPaid, at)
	require.NoError(t, err)
	assert.False(t, upd.Changed)
	assert.Equal(t, payment.StatusCanceled, upd.Payment.Status)
}

func TestPaymentStatusCASGivesUp(t *testing.T) {
	get := func(context.Context) (*payment.Payment, error) {
		return &payment.Payment{Status: payment.StatusPending}, nil
	}
	never := func(context.Context, payment.Status) (bool, error) { return false, nil }

	_, err := store.PaymentStatusCAS(context.Background(), get, never, payment.StatusPaid, at)
	assert.ErrorIs(t, err, store.ErrContention)
}

func TestPaymentStatusCASPropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	get := func(context.Context) (*payment.Payment, error) { return nil, boom }

	_, err := store.PaymentStatusCAS(context.Background(), get, nil, payment.StatusPaid, at)
	assert.ErrorIs(t, err, boom)
}

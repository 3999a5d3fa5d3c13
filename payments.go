package orderflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/types"
)

// OpenPayment records a pending payment for an order or a subscription.
func (e *Engine) OpenPayment(ctx context.Context, subjectID id.ID, amount types.Money, kind payment.Kind) (*payment.Payment, error) {
	if amount.IsNegative() {
		return nil, ValidationError{Field: "amount", Message: "must not be negative"}
	}

	now := e.now()
	p := &payment.Payment{
		Entity: types.NewEntityAt(now),
		ID:     id.NewPaymentID(),
		Kind:   kind,
		Amount: amount.Normalize(),
		Status: payment.StatusPending,
	}

	switch {
	case kind == payment.KindOrder && subjectID.Prefix() == id.PrefixOrder:
		if _, err := e.store.GetOrder(ctx, subjectID); err != nil {
			return nil, err
		}
		p.OrderID = subjectID
	case kind == payment.KindSubscription && subjectID.Prefix() == id.PrefixSubscription:
		if _, err := e.store.GetSubscription(ctx, subjectID); err != nil {
			return nil, err
		}
		p.SubscriptionID = subjectID
	default:
		return nil, ValidationError{Field: "subject_id", Message: fmt.Sprintf("%q does not identify a %s", subjectID, kind)}
	}

	if err := e.store.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	e.plugins.EmitPaymentOpened(ctx, p)
	return p, nil
}

// GetPayment retrieves a payment by ID.
func (e *Engine) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return e.store.GetPayment(ctx, paymentID)
}

// FindPaymentByProviderID retrieves a payment by the provider's identifier.
func (e *Engine) FindPaymentByProviderID(ctx context.Context, providerID string) (*payment.Payment, error) {
	return e.store.GetPaymentByProviderID(ctx, providerID)
}

// AttachProviderID records the provider's identifier and confirmation URL
// once the payment intent exists at the gateway. Attaching the same id
// again is a no-op; attaching a different one fails.
func (e *Engine) AttachProviderID(ctx context.Context, paymentID id.PaymentID, providerID, confirmationURL string) error {
	if strings.TrimSpace(providerID) == "" {
		return ValidationError{Field: "provider_id", Message: "is required"}
	}

	attached, err := e.store.AttachProviderID(ctx, paymentID, providerID, confirmationURL)
	if err != nil || attached {
		return err
	}

	p, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.ProviderID != providerID {
		return fmt.Errorf("%w: payment %s already has %q", ErrProviderIDTaken, paymentID, p.ProviderID)
	}
	return nil
}

// SetPaymentStatus applies status if the terminal rules allow it and
// reports whether the stored status changed. Re-applying the current
// status, or trying to leave a terminal status, is not an error.
func (e *Engine) SetPaymentStatus(ctx context.Context, paymentID id.PaymentID, status payment.Status) (bool, error) {
	upd, err := e.setPaymentStatus(ctx, paymentID, status)
	if err != nil {
		return false, err
	}
	return upd.Changed, nil
}

func (e *Engine) setPaymentStatus(ctx context.Context, paymentID id.PaymentID, status payment.Status) (*payment.Update, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedStatus, status)
	}

	upd, err := e.store.UpdatePaymentStatus(ctx, paymentID, status, e.now())
	if err != nil {
		return nil, err
	}

	if upd.Changed {
		e.plugins.EmitPaymentStatusChanged(ctx, upd.Payment, upd.Previous)
		e.logger.Info("payment status changed",
			"payment_id", paymentID.String(),
			"from", upd.Previous,
			"to", status,
		)
	} else if upd.Previous != status {
		e.logger.Debug("payment status change refused",
			"payment_id", paymentID.String(),
			"current", upd.Previous,
			"requested", status,
		)
	}
	return upd, nil
}

package orderflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/types"
)

// CreateSubscriptionInput describes a subscription purchase.
type CreateSubscriptionInput struct {
	UserID      string            `json:"user_id"`
	Type        subscription.Type `json:"type"`
	OrdersLimit int               `json:"orders_limit"` // -1 for unlimited
	Price       types.Money       `json:"price"`
}

func (in *CreateSubscriptionInput) validate() error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return ValidationError{Field: "user_id", Message: "is required"}
	case !in.Type.Valid():
		return ValidationError{Field: "type", Message: fmt.Sprintf("unknown type %q", in.Type)}
	case in.OrdersLimit == 0 || in.OrdersLimit < subscription.Unlimited:
		return ValidationError{Field: "orders_limit", Message: "must be positive or -1 for unlimited"}
	case in.Price.IsNegative():
		return ValidationError{Field: "price", Message: "must not be negative"}
	}
	return nil
}

// CreateSubscription creates a pending subscription and the pending payment
// that will activate it. A user with an active subscription cannot buy
// another one.
func (e *Engine) CreateSubscription(ctx context.Context, in CreateSubscriptionInput) (*subscription.Subscription, *payment.Payment, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}
	if _, err := e.lookupUser(ctx, in.UserID); err != nil {
		return nil, nil, err
	}

	switch _, err := e.store.GetActiveSubscription(ctx, in.UserID); {
	case err == nil:
		return nil, nil, ErrSubscriptionExists
	case !errors.Is(err, ErrNoActiveSubscription):
		return nil, nil, err
	}

	now := e.now()
	sub := &subscription.Subscription{
		Entity:      types.NewEntityAt(now),
		ID:          id.NewSubscriptionID(),
		UserID:      in.UserID,
		Type:        in.Type,
		Status:      subscription.StatusPending,
		OrdersLimit: in.OrdersLimit,
		Price:       in.Price.Normalize(),
	}
	if err := e.store.CreateSubscription(ctx, sub); err != nil {
		return nil, nil, err
	}

	p := &payment.Payment{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewPaymentID(),
		Kind:           payment.KindSubscription,
		SubscriptionID: sub.ID,
		Amount:         sub.Price,
		Status:         payment.StatusPending,
		Method:         "online",
	}
	if err := e.store.CreatePayment(ctx, p); err != nil {
		return nil, nil, fmt.Errorf("open payment for subscription %s: %w", sub.ID, err)
	}

	e.plugins.EmitSubscriptionCreated(ctx, sub)
	e.plugins.EmitPaymentOpened(ctx, p)
	return sub, p, nil
}

// GetSubscription retrieves a subscription by ID.
func (e *Engine) GetSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	return e.store.GetSubscription(ctx, subID)
}

// GetActiveSubscription retrieves the active subscription for a user.
func (e *Engine) GetActiveSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	return e.store.GetActiveSubscription(ctx, userID)
}

// ActivateSubscription starts a pending subscription now. Its end date
// follows from its type.
func (e *Engine) ActivateSubscription(ctx context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.Status != subscription.StatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrSubscriptionNotPending, sub.Status)
	}

	start := e.now()
	if err := e.store.ActivateSubscription(ctx, subID, start, sub.Type.EndDate(start)); err != nil {
		return nil, err
	}

	sub, err = e.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	e.plugins.EmitSubscriptionActivated(ctx, sub)
	e.logger.Info("subscription activated",
		"subscription_id", sub.ID.String(),
		"user_id", sub.UserID,
		"end_date", sub.EndDate,
	)
	return sub, nil
}

// CancelSubscription cancels a pending or active subscription.
func (e *Engine) CancelSubscription(ctx context.Context, subID id.SubscriptionID) error {
	if err := e.store.CancelSubscription(ctx, subID, e.now()); err != nil {
		return err
	}

	sub, err := e.store.GetSubscription(ctx, subID)
	if err != nil {
		return err
	}
	e.plugins.EmitSubscriptionCanceled(ctx, sub)
	return nil
}

// ExpireSubscriptions expires every active subscription whose end date has
// passed and returns how many this call expired.
func (e *Engine) ExpireSubscriptions(ctx context.Context) (int, error) {
	expired, err := e.expireDue(ctx)
	return len(expired), err
}

// expireDue runs the end-date sweep and returns the subscriptions this call
// expired.
func (e *Engine) expireDue(ctx context.Context) ([]*subscription.Subscription, error) {
	now := e.now()
	subs, err := e.store.ListActiveSubscriptionsEndingBefore(ctx, now)
	if err != nil {
		return nil, err
	}

	var (
		expired []*subscription.Subscription
		errs    MultiError
	)
	for _, sub := range subs {
		ok, err := e.expire(ctx, sub, subscription.ExpiryTime)
		if err != nil {
			errs.Add(fmt.Errorf("expire %s: %w", sub.ID, err))
			continue
		}
		if ok {
			expired = append(expired, sub)
		}
	}
	return expired, errs.ErrorOrNil()
}

// expire moves sub to expired and reports whether this call did it.
func (e *Engine) expire(ctx context.Context, sub *subscription.Subscription, reason subscription.ExpiryReason) (bool, error) {
	ok, err := e.store.ExpireSubscription(ctx, sub.ID, reason, e.now())
	if err != nil || !ok {
		return false, err
	}

	sub.Status = subscription.StatusExpired
	sub.ExpiryReason = reason
	e.plugins.EmitSubscriptionExpired(ctx, sub, reason)
	e.logger.Info("subscription expired",
		"subscription_id", sub.ID.String(),
		"user_id", sub.UserID,
		"reason", reason,
	)
	return true, nil
}

// ──────────────────────────────────────────────────
// Order limits
// ──────────────────────────────────────────────────

// CheckOrderLimits reports whether userID may create another order. An
// active subscription found past its end date or out of quota is expired
// on the spot.
func (e *Engine) CheckOrderLimits(ctx context.Context, userID string) (*subscription.Limits, error) {
	sub, err := e.store.GetActiveSubscription(ctx, userID)
	if errors.Is(err, ErrNoActiveSubscription) {
		return &subscription.Limits{CanCreateOrder: false}, nil
	}
	if err != nil {
		return nil, err
	}

	limits := &subscription.Limits{
		SubscriptionID: sub.ID,
		TotalLimit:     sub.OrdersLimit,
		UsedOrders:     sub.UsedOrders,
	}

	if sub.PastEnd(e.now()) {
		if _, err := e.expire(ctx, sub, subscription.ExpiryTime); err != nil {
			return nil, err
		}
		limits.IsExpired = true
		limits.ExpiryReason = subscription.ExpiryTime
		return limits, nil
	}

	if sub.IsUnlimited() {
		limits.CanCreateOrder = true
		limits.RemainingOrders = subscription.Unlimited
		return limits, nil
	}

	limits.RemainingOrders = sub.Remaining()
	if limits.RemainingOrders == 0 {
		if _, err := e.expire(ctx, sub, subscription.ExpiryLimit); err != nil {
			return nil, err
		}
		limits.IsExpired = true
		limits.ExpiryReason = subscription.ExpiryLimit
		return limits, nil
	}

	limits.CanCreateOrder = true
	return limits, nil
}

// IncrementUsedOrders counts one order against the user's quota. It is a
// no-op without a limited active subscription and fails with
// ErrOrderLimitReached when the quota is already used up.
func (e *Engine) IncrementUsedOrders(ctx context.Context, userID string) error {
	sub, err := e.limitedSubscription(ctx, userID)
	if err != nil || sub == nil {
		return err
	}

	ok, err := e.store.IncrementUsedOrders(ctx, sub.ID)
	if err != nil {
		return err
	}
	if !ok {
		e.plugins.EmitOrderLimitReached(ctx, userID, sub)
		return ErrOrderLimitReached
	}
	return nil
}

// DecrementUsedOrders gives one order back to the user's quota, never
// going below zero.
func (e *Engine) DecrementUsedOrders(ctx context.Context, userID string) error {
	sub, err := e.limitedSubscription(ctx, userID)
	if err != nil || sub == nil {
		return err
	}
	return e.store.DecrementUsedOrders(ctx, sub.ID)
}

// limitedSubscription returns the user's active subscription when it has a
// quota, and nil when there is nothing to count against.
func (e *Engine) limitedSubscription(ctx context.Context, userID string) (*subscription.Subscription, error) {
	sub, err := e.store.GetActiveSubscription(ctx, userID)
	if errors.Is(err, ErrNoActiveSubscription) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.IsUnlimited() {
		return nil, nil
	}
	return sub, nil
}

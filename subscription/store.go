package subscription

import (
	"context"
	"time"

	"github.com/cleanhouse123/orderflow/id"
)

type Store interface {
	Create(ctx context.Context, s *Subscription) error
	Get(ctx context.Context, subID id.SubscriptionID) (*Subscription, error)
	GetActive(ctx context.Context, userID string) (*Subscription, error)
	ListActiveEndingBefore(ctx context.Context, t time.Time) ([]*Subscription, error)
	// Activate moves a pending subscription to active. It fails with a
	// conflict if the user already holds an active subscription.
	Activate(ctx context.Context, subID id.SubscriptionID, start, end time.Time) error
	// Expire moves an active subscription to expired and reports whether
	// this call performed the move.
	Expire(ctx context.Context, subID id.SubscriptionID, reason ExpiryReason, at time.Time) (bool, error)
	Cancel(ctx context.Context, subID id.SubscriptionID, at time.Time) error
	// IncrementUsed adds one used order if the quota allows it.
	IncrementUsed(ctx context.Context, subID id.SubscriptionID) (bool, error)
	// DecrementUsed removes one used order, never going below zero.
	DecrementUsed(ctx context.Context, subID id.SubscriptionID) error
}

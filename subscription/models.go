// Package subscription defines customer subscriptions and their order
// quota.
package subscription

import (
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/types"
)

// Unlimited is the OrdersLimit value for subscriptions without a quota.
const Unlimited = -1

type Type string

const (
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
	TypeOneTime Type = "one_time"
)

// Valid reports whether t is a known subscription type.
func (t Type) Valid() bool {
	return t == TypeMonthly || t == TypeYearly || t == TypeOneTime
}

// EndDate returns when a subscription of this type activated at start
// runs out.
func (t Type) EndDate(start time.Time) time.Time {
	if t == TypeYearly {
		return start.AddDate(1, 0, 0)
	}
	return start.AddDate(0, 1, 0)
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusCanceled Status = "canceled"
)

// IsTerminal reports whether s accepts no further changes.
func (s Status) IsTerminal() bool {
	return s == StatusExpired || s == StatusCanceled
}

// ExpiryReason records which condition ended an active subscription.
type ExpiryReason string

const (
	ExpiryTime  ExpiryReason = "time"
	ExpiryLimit ExpiryReason = "limit"
)

type Subscription struct {
	types.Entity
	ID           id.SubscriptionID `json:"id"`
	UserID       string            `json:"user_id"`
	Type         Type              `json:"type"`
	Status       Status            `json:"status"`
	OrdersLimit  int               `json:"orders_limit"`
	UsedOrders   int               `json:"used_orders"`
	Price        types.Money       `json:"price"`
	StartDate    *time.Time        `json:"start_date,omitempty"`
	EndDate      *time.Time        `json:"end_date,omitempty"`
	CanceledAt   *time.Time        `json:"canceled_at,omitempty"`
	ExpiryReason ExpiryReason      `json:"expiry_reason,omitempty"`
}

// IsUnlimited reports whether the subscription has no order quota.
func (s *Subscription) IsUnlimited() bool {
	return s.OrdersLimit == Unlimited
}

// Remaining returns the orders left in the quota, never negative.
// Unlimited subscriptions report Unlimited.
func (s *Subscription) Remaining() int {
	if s.IsUnlimited() {
		return Unlimited
	}
	return max(0, s.OrdersLimit-s.UsedOrders)
}

// PastEnd reports whether now is after the subscription's end date.
func (s *Subscription) PastEnd(now time.Time) bool {
	return s.EndDate != nil && now.After(*s.EndDate)
}

// Clone returns a deep copy of s.
func (s *Subscription) Clone() *Subscription {
	if s == nil {
		return nil
	}
	c := *s
	for _, p := range []**time.Time{&c.StartDate, &c.EndDate, &c.CanceledAt} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return &c
}

// Limits is the answer to "may this user create another order".
type Limits struct {
	CanCreateOrder  bool              `json:"can_create_order"`
	RemainingOrders int               `json:"remaining_orders"`
	TotalLimit      int               `json:"total_limit"`
	UsedOrders      int               `json:"used_orders"`
	SubscriptionID  id.SubscriptionID `json:"subscription_id,omitzero"`
	IsExpired       bool              `json:"is_expired"`
	ExpiryReason    ExpiryReason      `json:"expiry_reason,omitempty"`
}

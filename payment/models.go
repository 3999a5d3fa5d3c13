// Package payment defines payment records for orders and subscriptions and
// the rules that keep their status monotonic.
package payment

import (
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/types"
)

type Status string

const (
	StatusPending           Status = "pending"
	StatusProcessing        Status = "processing"
	StatusWaitingForCapture Status = "waiting_for_capture"
	StatusPaid              Status = "paid"
	StatusFailed            Status = "failed"
	StatusRefunded          Status = "refunded"
	StatusCanceled          Status = "canceled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusWaitingForCapture,
		StatusPaid, StatusFailed, StatusRefunded, StatusCanceled:
		return true
	}
	return false
}

// IsTerminal reports whether s is a settled outcome.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPaid, StatusFailed, StatusRefunded, StatusCanceled:
		return true
	}
	return false
}

// AllowedSources returns the statuses from which a payment may move to
// target. Terminal statuses are sticky; paid -> refunded is the only
// move between two terminal statuses. A status never lists itself, so
// re-applying the current status is always a no-op.
func AllowedSources(target Status) []Status {
	open := []Status{StatusPending, StatusProcessing, StatusWaitingForCapture}
	switch target {
	case StatusPending:
		return nil
	case StatusProcessing:
		return []Status{StatusPending, StatusWaitingForCapture}
	case StatusWaitingForCapture:
		return []Status{StatusPending, StatusProcessing}
	case StatusPaid, StatusFailed, StatusCanceled:
		return open
	case StatusRefunded:
		return []Status{StatusPaid}
	}
	return nil
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to Status) bool {
	for _, s := range AllowedSources(to) {
		if s == from {
			return true
		}
	}
	return false
}

// Kind says which subject a payment settles.
type Kind string

const (
	KindOrder        Kind = "order"
	KindSubscription Kind = "subscription"
)

type Payment struct {
	types.Entity
	ID              id.PaymentID      `json:"id"`
	Kind            Kind              `json:"kind"`
	OrderID         id.OrderID        `json:"order_id,omitzero"`
	SubscriptionID  id.SubscriptionID `json:"subscription_id,omitzero"`
	Amount          types.Money       `json:"amount"`
	Status          Status            `json:"status"`
	Method          string            `json:"method,omitempty"`
	ProviderID      string            `json:"provider_id,omitempty"`
	ConfirmationURL string            `json:"confirmation_url,omitempty"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
}

// SubjectID returns the order or subscription id this payment settles.
func (p *Payment) SubjectID() id.ID {
	if p.Kind == KindSubscription {
		return p.SubscriptionID
	}
	return p.OrderID
}

// Clone returns a deep copy of p.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	c := *p
	if p.PaidAt != nil {
		t := *p.PaidAt
		c.PaidAt = &t
	}
	return &c
}

// Update is the result of a conditional status write.
type Update struct {
	// Changed is false when the payment already had the target status or
	// when the move was refused by the terminal rules.
	Changed  bool
	Previous Status
	Payment  *Payment
}

// Package order defines the marketplace order and its lifecycle graph.
package order

import (
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/types"
)

type Status string

const (
	StatusNew        Status = "new"
	StatusPaid       Status = "paid"
	StatusAssigned   Status = "assigned"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCanceled   Status = "canceled"
)

// transitions is the only source of truth for legal status moves.
// No entry lists StatusNew as a target.
var transitions = map[Status][]Status{
	StatusNew:        {StatusAssigned, StatusCanceled, StatusPaid},
	StatusPaid:       {StatusAssigned, StatusCanceled},
	StatusAssigned:   {StatusInProgress, StatusCanceled, StatusPaid},
	StatusInProgress: {StatusDone, StatusCanceled},
	StatusDone:       nil,
	StatusCanceled:   nil,
}

// Statuses lists every known status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusNew, StatusPaid, StatusAssigned, StatusInProgress, StatusDone, StatusCanceled}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Next returns the statuses reachable from s in one step.
func (s Status) Next() []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// Removable reports whether an order in s may be deleted. Work that has
// started or finished is kept for the record.
func (s Status) Removable() bool {
	return s != StatusInProgress && s != StatusDone
}

// PaidOrLater reports whether s is at or past the paid side-state, so a
// late payment confirmation must not move the order again.
func (s Status) PaidOrLater() bool {
	switch s {
	case StatusPaid, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// AwaitingService reports whether the order is still waiting for a courier
// to begin work. Only such orders can become overdue.
func (s Status) AwaitingService() bool {
	return s == StatusNew || s == StatusPaid || s == StatusAssigned
}

// PaymentMethod is how the customer settles the order.
type PaymentMethod string

const (
	MethodOnline       PaymentMethod = "online"
	MethodCash         PaymentMethod = "cash"
	MethodSubscription PaymentMethod = "subscription"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodOnline, MethodCash, MethodSubscription:
		return true
	}
	return false
}

// AddressDetails is the structured form of a delivery address.
type AddressDetails struct {
	Street    string   `json:"street,omitempty"`
	House     string   `json:"house,omitempty"`
	Apartment string   `json:"apartment,omitempty"`
	Entrance  string   `json:"entrance,omitempty"`
	Floor     string   `json:"floor,omitempty"`
	Intercom  string   `json:"intercom,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
}

type Order struct {
	types.Entity
	ID                id.OrderID      `json:"id"`
	CustomerID        string          `json:"customer_id"`
	CourierID         string          `json:"courier_id,omitempty"`
	Address           string          `json:"address"`
	AddressDetails    *AddressDetails `json:"address_details,omitempty"`
	Description       string          `json:"description,omitempty"`
	Notes             string          `json:"notes,omitempty"`
	Price             types.Money     `json:"price"`
	PaymentMethod     PaymentMethod   `json:"payment_method"`
	Status            Status          `json:"status"`
	ScheduledAt       *time.Time      `json:"scheduled_at,omitempty"`
	AssignedAt        *time.Time      `json:"assigned_at,omitempty"`
	StartedAt         *time.Time      `json:"started_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	OverdueMinutes    *int            `json:"overdue_minutes,omitempty"`
	OverdueNotifiedAt *time.Time      `json:"overdue_notified_at,omitempty"`
	ScheduleID        id.ScheduleID   `json:"schedule_id,omitzero"`
}

// Clone returns a deep copy of o so stores can hand out values that
// callers may mutate freely.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.AddressDetails != nil {
		d := *o.AddressDetails
		c.AddressDetails = &d
	}
	c.ScheduledAt = cloneTime(o.ScheduledAt)
	c.AssignedAt = cloneTime(o.AssignedAt)
	c.StartedAt = cloneTime(o.StartedAt)
	c.CompletedAt = cloneTime(o.CompletedAt)
	c.OverdueNotifiedAt = cloneTime(o.OverdueNotifiedAt)
	if o.OverdueMinutes != nil {
		m := *o.OverdueMinutes
		c.OverdueMinutes = &m
	}
	return &c
}

// Apply stamps the lifecycle timestamp that belongs to the target status
// and moves the order there. It does not check the graph.
func (o *Order) Apply(to Status, at time.Time) {
	at = at.UTC()
	switch to {
	case StatusAssigned:
		o.AssignedAt = &at
	case StatusInProgress:
		o.StartedAt = &at
	case StatusDone:
		o.CompletedAt = &at
	}
	o.Status = to
	o.Touch(at)
}

// View is an order together with its most recent payment.
type View struct {
	Order   *Order           `json:"order"`
	Payment *payment.Payment `json:"payment,omitempty"`
}

// ListFilter narrows ListOrders results. Zero fields match everything.
type ListFilter struct {
	CustomerID      string
	CourierID       string
	Statuses        []Status
	ScheduledBefore *time.Time
	ScheduleID      id.ScheduleID
	// OnlyUnnotified skips orders that already carry an overdue notice.
	OnlyUnnotified bool
	Limit          int
	Offset         int
}

// Matches reports whether o satisfies every set field of f.
func (f ListFilter) Matches(o *Order) bool {
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.CourierID != "" && o.CourierID != f.CourierID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if o.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ScheduledBefore != nil && (o.ScheduledAt == nil || !o.ScheduledAt.Before(*f.ScheduledBefore)) {
		return false
	}
	if !f.ScheduleID.IsNil() && o.ScheduleID.String() != f.ScheduleID.String() {
		return false
	}
	if f.OnlyUnnotified && o.OverdueNotifiedAt != nil {
		return false
	}
	return true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

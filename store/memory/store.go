// Package memory is an in-process store.Store. A single mutex makes every
// conditional write atomic; values are copied in and out so callers never
// share memory with the store.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	ofstore "github.com/cleanhouse123/orderflow/store"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/webhook"
)

// compile-time interface check
var _ ofstore.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	orders        map[string]*order.Order
	payments      map[string]*payment.Payment
	subscriptions map[string]*subscription.Subscription
	schedules     map[string]*schedule.Definition
	webhookEvents []*webhook.Event
	closed        bool
}

func New() *Store {
	return &Store{
		orders:        make(map[string]*order.Order),
		payments:      make(map[string]*payment.Payment),
		subscriptions: make(map[string]*subscription.Subscription),
		schedules:     make(map[string]*schedule.Definition),
	}
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID.String()]; exists {
		return orderflow.ErrAlreadyExists
	}
	s.orders[o.ID.String()] = o.Clone()
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID.String()]; ok {
		return o.Clone(), nil
	}
	return nil, orderflow.ErrOrderNotFound
}

func (s *Store) ListOrders(_ context.Context, filter order.ListFilter) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if filter.Matches(o) {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, filter.Offset, filter.Limit), nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, o *order.Order, from order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[o.ID.String()]
	if !ok {
		return orderflow.ErrOrderNotFound
	}
	if current.Status != from {
		return orderflow.ErrInvalidTransition
	}

	next := current.Clone()
	next.Status = o.Status
	next.CourierID = o.CourierID
	next.AssignedAt = o.Clone().AssignedAt
	next.StartedAt = o.Clone().StartedAt
	next.CompletedAt = o.Clone().CompletedAt
	next.UpdatedAt = o.UpdatedAt
	s.orders[o.ID.String()] = next
	return nil
}

func (s *Store) DeleteOrder(_ context.Context, orderID id.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID.String()]; !ok {
		return orderflow.ErrOrderNotFound
	}
	delete(s.orders, orderID.String())
	return nil
}

func (s *Store) MarkOrderOverdue(_ context.Context, orderID id.OrderID, minutes int, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID.String()]
	if !ok {
		return false, orderflow.ErrOrderNotFound
	}
	if o.OverdueNotifiedAt != nil {
		return false, nil
	}
	at = at.UTC()
	o.OverdueMinutes = &minutes
	o.OverdueNotifiedAt = &at
	return true, nil
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.payments[p.ID.String()]; exists {
		return orderflow.ErrAlreadyExists
	}
	if p.ProviderID != "" && s.providerIDTaken(p.ProviderID, p.ID) {
		return orderflow.ErrProviderIDTaken
	}
	s.payments[p.ID.String()] = p.Clone()
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, orderflow.ErrPaymentNotFound
}

func (s *Store) GetPaymentByProviderID(_ context.Context, providerID string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if providerID == "" {
		return nil, orderflow.ErrPaymentNotFound
	}
	for _, p := range s.payments {
		if p.ProviderID == providerID {
			return p.Clone(), nil
		}
	}
	return nil, orderflow.ErrPaymentNotFound
}

func (s *Store) GetLatestPayment(_ context.Context, subjectID id.ID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *payment.Payment
	for _, p := range s.payments {
		if p.SubjectID().String() != subjectID.String() {
			continue
		}
		// IDs are K-sortable, so they break CreatedAt ties.
		if latest == nil || p.CreatedAt.After(latest.CreatedAt) ||
			(p.CreatedAt.Equal(latest.CreatedAt) && p.ID.String() > latest.ID.String()) {
			latest = p
		}
	}
	if latest == nil {
		return nil, orderflow.ErrPaymentNotFound
	}
	return latest.Clone(), nil
}

func (s *Store) UpdatePaymentStatus(_ context.Context, paymentID id.PaymentID, status payment.Status, at time.Time) (*payment.Update, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID.String()]
	if !ok {
		return nil, orderflow.ErrPaymentNotFound
	}

	upd := &payment.Update{Previous: p.Status}
	if payment.CanTransition(p.Status, status) {
		at = at.UTC()
		p.Status = status
		p.Touch(at)
		if status == payment.StatusPaid {
			p.PaidAt = &at
		}
		upd.Changed = true
	}
	upd.Payment = p.Clone()
	return upd, nil
}

func (s *Store) AttachProviderID(_ context.Context, paymentID id.PaymentID, providerID, confirmationURL string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID.String()]
	if !ok {
		return false, orderflow.ErrPaymentNotFound
	}
	if p.ProviderID != "" {
		return false, nil
	}
	if s.providerIDTaken(providerID, paymentID) {
		return false, orderflow.ErrProviderIDTaken
	}
	p.ProviderID = providerID
	if confirmationURL != "" {
		p.ConfirmationURL = confirmationURL
	}
	return true, nil
}

func (s *Store) providerIDTaken(providerID string, except id.PaymentID) bool {
	for key, p := range s.payments {
		if key != except.String() && p.ProviderID == providerID {
			return true
		}
	}
	return false
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID.String()]; exists {
		return orderflow.ErrAlreadyExists
	}
	if sub.Status == subscription.StatusActive && s.activeFor(sub.UserID) != nil {
		return orderflow.ErrSubscriptionExists
	}
	s.subscriptions[sub.ID.String()] = sub.Clone()
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.SubscriptionID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, ok := s.subscriptions[subID.String()]; ok {
		return sub.Clone(), nil
	}
	return nil, orderflow.ErrSubscriptionNotFound
}

func (s *Store) GetActiveSubscription(_ context.Context, userID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub := s.activeFor(userID); sub != nil {
		return sub.Clone(), nil
	}
	return nil, orderflow.ErrNoActiveSubscription
}

func (s *Store) ListActiveSubscriptionsEndingBefore(_ context.Context, t time.Time) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*subscription.Subscription, 0)
	for _, sub := range s.subscriptions {
		if sub.Status == subscription.StatusActive && sub.EndDate != nil && sub.EndDate.Before(t) {
			result = append(result, sub.Clone())
		}
	}
	return result, nil
}

func (s *Store) ActivateSubscription(_ context.Context, subID id.SubscriptionID, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return orderflow.ErrSubscriptionNotFound
	}
	if sub.Status != subscription.StatusPending {
		return orderflow.ErrSubscriptionNotPending
	}
	if s.activeFor(sub.UserID) != nil {
		return orderflow.ErrSubscriptionExists
	}
	start, end = start.UTC(), end.UTC()
	sub.Status = subscription.StatusActive
	sub.StartDate = &start
	sub.EndDate = &end
	sub.Touch(start)
	return nil
}

func (s *Store) ExpireSubscription(_ context.Context, subID id.SubscriptionID, reason subscription.ExpiryReason, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return false, orderflow.ErrSubscriptionNotFound
	}
	if sub.Status != subscription.StatusActive {
		return false, nil
	}
	sub.Status = subscription.StatusExpired
	sub.ExpiryReason = reason
	sub.Touch(at)
	return true, nil
}

func (s *Store) CancelSubscription(_ context.Context, subID id.SubscriptionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return orderflow.ErrSubscriptionNotFound
	}
	if sub.Status.IsTerminal() {
		return orderflow.ErrSubscriptionClosed
	}
	at = at.UTC()
	sub.Status = subscription.StatusCanceled
	sub.CanceledAt = &at
	sub.Touch(at)
	return nil
}

func (s *Store) IncrementUsedOrders(_ context.Context, subID id.SubscriptionID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return false, orderflow.ErrSubscriptionNotFound
	}
	if sub.Status != subscription.StatusActive || sub.IsUnlimited() || sub.UsedOrders >= sub.OrdersLimit {
		return false, nil
	}
	sub.UsedOrders++
	return true, nil
}

func (s *Store) DecrementUsedOrders(_ context.Context, subID id.SubscriptionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[subID.String()]
	if !ok {
		return orderflow.ErrSubscriptionNotFound
	}
	if sub.UsedOrders > 0 {
		sub.UsedOrders--
	}
	return nil
}

func (s *Store) activeFor(userID string) *subscription.Subscription {
	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Status == subscription.StatusActive {
			return sub
		}
	}
	return nil
}

// ==================== Schedule Store ====================

func (s *Store) CreateSchedule(_ context.Context, d *schedule.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.schedules[d.ID.String()]; exists {
		return orderflow.ErrAlreadyExists
	}
	s.schedules[d.ID.String()] = d.Clone()
	return nil
}

func (s *Store) GetSchedule(_ context.Context, schedID id.ScheduleID) (*schedule.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.schedules[schedID.String()]; ok {
		return d.Clone(), nil
	}
	return nil, orderflow.ErrScheduleNotFound
}

func (s *Store) ListActiveSchedules(_ context.Context) ([]*schedule.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*schedule.Definition, 0)
	for _, d := range s.schedules {
		if d.IsActive {
			result = append(result, d.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID.String() < result[j].ID.String()
	})
	return result, nil
}

func (s *Store) SwapScheduleLastCreatedAt(_ context.Context, schedID id.ScheduleID, prev, next *time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.schedules[schedID.String()]
	if !ok {
		return false, orderflow.ErrScheduleNotFound
	}
	if !sameInstant(d.LastCreatedAt, prev) {
		return false, nil
	}
	if next == nil {
		d.LastCreatedAt = nil
	} else {
		t := next.UTC()
		d.LastCreatedAt = &t
	}
	return true, nil
}

func (s *Store) DeactivateSchedule(_ context.Context, schedID id.ScheduleID, reason schedule.DeactivationReason) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.schedules[schedID.String()]
	if !ok {
		return orderflow.ErrScheduleNotFound
	}
	d.IsActive = false
	d.DeactivationReason = reason
	return nil
}

// ==================== Webhook Journal ====================

func (s *Store) RecordWebhookEvent(_ context.Context, e *webhook.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *e
	s.webhookEvents = append(s.webhookEvents, &c)
	return nil
}

func (s *Store) ListWebhookEvents(_ context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Event, 0)
	for _, e := range slices.Backward(s.webhookEvents) {
		if !opts.PaymentID.IsNil() && e.PaymentID.String() != opts.PaymentID.String() {
			continue
		}
		c := *e
		result = append(result, &c)
	}
	return paginate(result, opts.Offset, opts.Limit), nil
}

// ==================== Core ====================

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return orderflow.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func paginate[T any](items []T, offset, limit int) []T {
	start := min(offset, len(items))
	end := len(items)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	return items[start:end]
}

package orderflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/notify"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/types"
)

// CreateOrderInput describes a customer's new order.
type CreateOrderInput struct {
	CustomerID     string                `json:"customer_id"`
	Address        string                `json:"address"`
	AddressDetails *order.AddressDetails `json:"address_details,omitempty"`
	Price          types.Money           `json:"price"`
	PaymentMethod  order.PaymentMethod   `json:"payment_method"`
	ScheduledAt    *time.Time            `json:"scheduled_at,omitempty"`
	Description    string                `json:"description,omitempty"`
	Notes          string                `json:"notes,omitempty"`
}

func (in *CreateOrderInput) validate() error {
	switch {
	case strings.TrimSpace(in.CustomerID) == "":
		return ValidationError{Field: "customer_id", Message: "is required"}
	case strings.TrimSpace(in.Address) == "":
		return ValidationError{Field: "address", Message: "is required"}
	case in.Price.IsNegative():
		return ValidationError{Field: "price", Message: "must not be negative"}
	case in.PaymentMethod != "" && !in.PaymentMethod.Valid():
		return ValidationError{Field: "payment_method", Message: fmt.Sprintf("unknown method %q", in.PaymentMethod)}
	}
	return nil
}

// CreateOrder persists a new order in status new together with a pending
// payment for its price.
func (e *Engine) CreateOrder(ctx context.Context, in CreateOrderInput) (*order.View, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := e.lookupUser(ctx, in.CustomerID); err != nil {
		return nil, err
	}

	now := e.now()
	scheduled := now.Add(e.scheduledDelay)
	if in.ScheduledAt != nil {
		scheduled = in.ScheduledAt.UTC()
	}
	method := in.PaymentMethod
	if method == "" {
		method = order.MethodOnline
	}

	o := &order.Order{
		Entity:         types.NewEntityAt(now),
		ID:             id.NewOrderID(),
		CustomerID:     in.CustomerID,
		Address:        in.Address,
		AddressDetails: in.AddressDetails,
		Description:    in.Description,
		Notes:          in.Notes,
		Price:          in.Price.Normalize(),
		PaymentMethod:  method,
		Status:         order.StatusNew,
		ScheduledAt:    &scheduled,
	}
	p := &payment.Payment{
		Entity:  types.NewEntityAt(now),
		ID:      id.NewPaymentID(),
		Kind:    payment.KindOrder,
		OrderID: o.ID,
		Amount:  o.Price,
		Status:  payment.StatusPending,
		Method:  string(method),
	}

	if err := e.persistOrder(ctx, o, p); err != nil {
		return nil, err
	}

	e.logger.Info("order created",
		"order_id", o.ID.String(),
		"customer_id", o.CustomerID,
		"amount", o.Price.Amount,
	)
	return &order.View{Order: o, Payment: p}, nil
}

// persistOrder writes the order and its payment, removing the order again
// if the payment cannot be stored.
func (e *Engine) persistOrder(ctx context.Context, o *order.Order, p *payment.Payment) error {
	if err := e.store.CreateOrder(ctx, o); err != nil {
		return err
	}
	if err := e.store.CreatePayment(ctx, p); err != nil {
		if delErr := e.store.DeleteOrder(ctx, o.ID); delErr != nil {
			e.logger.Error("failed to remove order after payment write failed",
				"order_id", o.ID.String(),
				"error", delErr,
			)
		}
		return fmt.Errorf("open payment for order %s: %w", o.ID, err)
	}

	e.plugins.EmitOrderCreated(ctx, o)
	e.plugins.EmitPaymentOpened(ctx, p)
	return nil
}

// GetOrder returns an order with its latest payment.
func (e *Engine) GetOrder(ctx context.Context, orderID id.OrderID) (*order.View, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	p, err := e.store.GetLatestPayment(ctx, orderID)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	return &order.View{Order: o, Payment: p}, nil
}

// ListOrders returns orders matching filter, newest first.
func (e *Engine) ListOrders(ctx context.Context, filter order.ListFilter) ([]*order.Order, error) {
	return e.store.ListOrders(ctx, filter)
}

// TransitionOrder moves an order to target. Moving to assigned requires a
// courier id that resolves to a user with the courier role.
func (e *Engine) TransitionOrder(ctx context.Context, orderID id.OrderID, target order.Status, courierID string) (*order.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, o, target, courierID)
}

func (e *Engine) transition(ctx context.Context, o *order.Order, target order.Status, courierID string) (*order.Order, error) {
	if !order.CanTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, target)
	}

	if target == order.StatusAssigned {
		if strings.TrimSpace(courierID) == "" {
			return nil, ErrCourierRequired
		}
		u, err := e.lookupUser(ctx, courierID)
		if err != nil {
			return nil, err
		}
		if !u.IsCourier() {
			return nil, ErrNotCourier
		}
		o.CourierID = courierID
	}

	from := o.Status
	o.Apply(target, e.now())
	if err := e.store.UpdateOrderStatus(ctx, o, from); err != nil {
		return nil, err
	}

	if target == order.StatusCanceled {
		e.refundQuota(ctx, o)
	}

	e.plugins.EmitOrderTransitioned(ctx, o, from)
	e.logger.Debug("order transitioned",
		"order_id", o.ID.String(),
		"from", from,
		"to", target,
	)
	return o, nil
}

// RemoveOrder deletes an order that has not started yet.
func (e *Engine) RemoveOrder(ctx context.Context, orderID id.OrderID) error {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if !o.Status.Removable() {
		return fmt.Errorf("%w: status %s", ErrOrderLocked, o.Status)
	}
	if err := e.store.DeleteOrder(ctx, orderID); err != nil {
		return err
	}
	e.refundQuota(ctx, o)

	e.plugins.EmitOrderRemoved(ctx, orderID)
	return nil
}

// refundQuota gives a subscription-paid order's slot back to the customer's
// active subscription once the order will never be fulfilled.
func (e *Engine) refundQuota(ctx context.Context, o *order.Order) {
	if o.PaymentMethod != order.MethodSubscription {
		return
	}
	if err := e.DecrementUsedOrders(ctx, o.CustomerID); err != nil {
		e.logger.Warn("failed to refund subscription order",
			"order_id", o.ID.String(),
			"customer_id", o.CustomerID,
			"error", err,
		)
	}
}

// ──────────────────────────────────────────────────
// Courier operations
// ──────────────────────────────────────────────────

// TakeOrder assigns an open order to the calling courier. A paid order
// that already carries a courier is not available.
func (e *Engine) TakeOrder(ctx context.Context, courierID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CourierID != "" {
		return nil, fmt.Errorf("%w: order already has a courier", ErrInvalidTransition)
	}
	return e.transition(ctx, o, order.StatusAssigned, courierID)
}

// StartOrder begins work on an order assigned to courierID. An order that
// was paid after assignment keeps its courier and starts as if assigned.
func (e *Engine) StartOrder(ctx context.Context, courierID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.ownedOrder(ctx, courierID, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status == order.StatusPaid {
		o.Status = order.StatusAssigned
		o.Touch(e.now())
		if err := e.store.UpdateOrderStatus(ctx, o, order.StatusPaid); err != nil {
			return nil, err
		}
		e.plugins.EmitOrderTransitioned(ctx, o, order.StatusPaid)
	}
	return e.transition(ctx, o, order.StatusInProgress, "")
}

// CompleteOrder finishes an order in progress for courierID.
func (e *Engine) CompleteOrder(ctx context.Context, courierID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.ownedOrder(ctx, courierID, orderID)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, o, order.StatusDone, "")
}

// CancelOrder cancels an order assigned to courierID.
func (e *Engine) CancelOrder(ctx context.Context, courierID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.ownedOrder(ctx, courierID, orderID)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, o, order.StatusCanceled, "")
}

func (e *Engine) ownedOrder(ctx context.Context, courierID string, orderID id.OrderID) (*order.Order, error) {
	o, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.CourierID == "" || o.CourierID != courierID {
		return nil, ErrCourierMismatch
	}
	return o, nil
}

// lookupUser resolves a user through the directory. Unknown users map to
// ErrUserNotFound; directory outages map to ErrExternal.
func (e *Engine) lookupUser(ctx context.Context, userID string) (*notify.User, error) {
	u, err := e.users.GetUser(ctx, userID)
	switch {
	case errors.Is(err, notify.ErrUnknownUser), err == nil && u == nil:
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	case err != nil:
		return nil, fmt.Errorf("%w: user directory: %v", ErrExternal, err)
	}
	return u, nil
}

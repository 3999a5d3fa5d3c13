// Package webhook parses payment-provider callbacks and classifies them by
// the metadata the system attached when the payment was opened.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
)

// ErrMalformed is returned for bodies that cannot be parsed at all.
var ErrMalformed = errors.New("orderflow: malformed webhook")

type EventType string

const (
	EventPaymentSucceeded         EventType = "payment.succeeded"
	EventPaymentWaitingForCapture EventType = "payment.waiting_for_capture"
	EventPaymentCanceled          EventType = "payment.canceled"
	EventRefundSucceeded          EventType = "refund.succeeded"
)

// TargetStatus maps a provider event to the payment status it implies.
// Unknown events report false.
func (e EventType) TargetStatus() (payment.Status, bool) {
	switch e {
	case EventPaymentSucceeded:
		return payment.StatusPaid, true
	case EventPaymentWaitingForCapture:
		return payment.StatusWaitingForCapture, true
	case EventPaymentCanceled:
		return payment.StatusCanceled, true
	case EventRefundSucceeded:
		return payment.StatusRefunded, true
	}
	return "", false
}

// Metadata keys set by the system when it opens a payment at the provider.
const (
	MetaOrderID        = "orderId"
	MetaSubscriptionID = "subscriptionId"
	MetaPaymentID      = "paymentId"
)

// Notification is a parsed provider callback.
type Notification struct {
	Type   EventType
	Object Object
}

type Object struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	PaymentID string         `json:"payment_id"`
	Metadata  map[string]any `json:"metadata"`
}

type envelope struct {
	Event  EventType `json:"event"`
	Type   EventType `json:"type"`
	Object *Object   `json:"object"`
}

// Parse decodes a provider callback body. The event type may arrive under
// either "event" or "type".
func Parse(body []byte) (*Notification, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrMalformed)
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var env envelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	evt := env.Event
	if evt == "" {
		evt = env.Type
	}
	if evt == "" {
		return nil, fmt.Errorf("%w: missing event type", ErrMalformed)
	}
	if env.Object == nil {
		return nil, fmt.Errorf("%w: missing object", ErrMalformed)
	}

	return &Notification{Type: evt, Object: *env.Object}, nil
}

// Meta returns a metadata value as a string. Numeric values are rendered in
// decimal form.
func (n *Notification) Meta(key string) string {
	switch v := n.Object.Metadata[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return ""
}

// ProviderPaymentID returns the provider's id of the payment the event is
// about. Refund objects carry it in payment_id.
func (n *Notification) ProviderPaymentID() string {
	if n.Object.PaymentID != "" {
		return n.Object.PaymentID
	}
	return n.Object.ID
}

// Subject is the classified target of a notification. It is one of
// OrderPayment, SubscriptionPayment, Refund or Unrecognized.
type Subject interface {
	Kind() string
}

type OrderPayment struct {
	OrderID   id.OrderID
	PaymentID id.PaymentID
}

type SubscriptionPayment struct {
	SubscriptionID id.SubscriptionID
	PaymentID      id.PaymentID
}

// Refund is located by the provider payment id instead of metadata.
type Refund struct {
	ProviderPaymentID string
}

type Unrecognized struct {
	Reason string
}

func (OrderPayment) Kind() string        { return "order" }
func (SubscriptionPayment) Kind() string { return "subscription" }
func (Refund) Kind() string              { return "refund" }
func (Unrecognized) Kind() string        { return "unrecognized" }

// Classify decides which subject the notification concerns. Metadata with
// both an order and a subscription id, or with neither, is unrecognized.
func (n *Notification) Classify() Subject {
	if n.Type == EventRefundSucceeded {
		if pid := n.ProviderPaymentID(); pid != "" {
			return Refund{ProviderPaymentID: pid}
		}
		return Unrecognized{Reason: "refund without provider payment id"}
	}

	orderRaw := n.Meta(MetaOrderID)
	subRaw := n.Meta(MetaSubscriptionID)
	payRaw := n.Meta(MetaPaymentID)

	switch {
	case orderRaw != "" && subRaw != "":
		return Unrecognized{Reason: "metadata names both an order and a subscription"}
	case orderRaw == "" && subRaw == "":
		return Unrecognized{Reason: "metadata names neither an order nor a subscription"}
	case payRaw == "":
		return Unrecognized{Reason: "metadata has no payment id"}
	}

	payID, err := id.ParsePaymentID(payRaw)
	if err != nil {
		return Unrecognized{Reason: "invalid payment id: " + err.Error()}
	}

	if orderRaw != "" {
		orderID, err := id.ParseOrderID(orderRaw)
		if err != nil {
			return Unrecognized{Reason: "invalid order id: " + err.Error()}
		}
		return OrderPayment{OrderID: orderID, PaymentID: payID}
	}

	subID, err := id.ParseSubscriptionID(subRaw)
	if err != nil {
		return Unrecognized{Reason: "invalid subscription id: " + err.Error()}
	}
	return SubscriptionPayment{SubscriptionID: subID, PaymentID: payID}
}

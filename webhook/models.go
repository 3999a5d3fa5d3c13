package webhook

import (
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/payment"
)

// Outcome is how a delivery was handled.
type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeNotFound     Outcome = "not_found"
	OutcomeIgnored      Outcome = "ignored"
	OutcomeUnrecognized Outcome = "unrecognized"
)

// Result is returned to the provider for every classifiable delivery.
type Result struct {
	Message   string         `json:"message"`
	Type      string         `json:"type,omitempty"`
	Outcome   Outcome        `json:"outcome"`
	PaymentID id.PaymentID   `json:"payment_id,omitzero"`
	Status    payment.Status `json:"status,omitempty"`
}

// Event is one journaled delivery. The journal is append-only and only
// feeds audit and metrics.
type Event struct {
	ID         id.WebhookEventID `json:"id"`
	EventType  EventType         `json:"event_type"`
	Subject    string            `json:"subject"`
	ProviderID string            `json:"provider_id,omitempty"`
	PaymentID  id.PaymentID      `json:"payment_id,omitzero"`
	Outcome    Outcome           `json:"outcome"`
	Message    string            `json:"message,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

type ListOpts struct {
	PaymentID id.PaymentID
	Limit     int
	Offset    int
}

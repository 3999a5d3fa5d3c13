package payment

import (
	"context"
	"time"

	"github.com/cleanhouse123/orderflow/id"
)

type Store interface {
	Create(ctx context.Context, p *Payment) error
	Get(ctx context.Context, paymentID id.PaymentID) (*Payment, error)
	GetByProviderID(ctx context.Context, providerID string) (*Payment, error)
	// GetLatestForSubject returns the newest payment opened for an order or
	// subscription.
	GetLatestForSubject(ctx context.Context, subjectID id.ID) (*Payment, error)
	// UpdateStatus moves the payment to status when its stored status is one
	// of AllowedSources(status). A refused move is not an error.
	UpdateStatus(ctx context.Context, paymentID id.PaymentID, status Status, at time.Time) (*Update, error)
	// AttachProviderID records the provider identifier when none is set yet.
	AttachProviderID(ctx context.Context, paymentID id.PaymentID, providerID, confirmationURL string) (bool, error)
}

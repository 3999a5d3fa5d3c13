package order

import (
	"context"
	"time"

	"github.com/cleanhouse123/orderflow/id"
)

type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, orderID id.OrderID) (*Order, error)
	List(ctx context.Context, filter ListFilter) ([]*Order, error)
	// UpdateStatus persists o's status, courier and lifecycle timestamps
	// only if the stored status still equals from.
	UpdateStatus(ctx context.Context, o *Order, from Status) error
	Delete(ctx context.Context, orderID id.OrderID) error
	// MarkOverdue freezes the overdue minutes and sets the notice timestamp
	// only if no notice was recorded before. It reports whether it wrote.
	MarkOverdue(ctx context.Context, orderID id.OrderID, minutes int, at time.Time) (bool, error)
}

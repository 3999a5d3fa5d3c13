package schedule

import (
	"context"
	"time"

	"github.com/cleanhouse123/orderflow/id"
)

type Store interface {
	Create(ctx context.Context, d *Definition) error
	Get(ctx context.Context, schedID id.ScheduleID) (*Definition, error)
	ListActive(ctx context.Context) ([]*Definition, error)
	// SwapLastCreatedAt sets LastCreatedAt to next only if it still equals
	// prev (nil meaning never created). It reports whether the swap won.
	SwapLastCreatedAt(ctx context.Context, schedID id.ScheduleID, prev, next *time.Time) (bool, error)
	Deactivate(ctx context.Context, schedID id.ScheduleID, reason DeactivationReason) error
}

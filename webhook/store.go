package webhook

import "context"

type Store interface {
	Record(ctx context.Context, e *Event) error
	List(ctx context.Context, opts ListOpts) ([]*Event, error)
}

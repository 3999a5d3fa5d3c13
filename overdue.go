package orderflow

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cleanhouse123/orderflow/order"
)

// NotifyOverdueOrders tells customers (and assigned couriers) about orders
// that have not started within the grace period after their scheduled
// time. Each order is flagged at most once, across restarts and instances.
// It returns how many orders this call flagged.
func (e *Engine) NotifyOverdueOrders(ctx context.Context) (int, error) {
	now := e.now()
	cutoff := now.Add(-e.overdueGrace)

	orders, err := e.store.ListOrders(ctx, order.ListFilter{
		Statuses:        []order.Status{order.StatusNew, order.StatusPaid, order.StatusAssigned},
		ScheduledBefore: &cutoff,
		OnlyUnnotified:  true,
	})
	if err != nil {
		return 0, fmt.Errorf("list overdue orders: %w", err)
	}

	var (
		count int
		errs  MultiError
	)
	for _, o := range orders {
		minutes := int(now.Sub(*o.ScheduledAt).Minutes())
		marked, err := e.store.MarkOrderOverdue(ctx, o.ID, minutes, now)
		if err != nil {
			errs.Add(fmt.Errorf("mark %s overdue: %w", o.ID, err))
			continue
		}
		if !marked {
			continue
		}
		count++

		o.OverdueMinutes = &minutes
		o.OverdueNotifiedAt = &now
		e.plugins.EmitOrderOverdue(ctx, o, minutes)

		data := map[string]string{
			"type":            "order_overdue",
			"order_id":        o.ID.String(),
			"overdue_minutes": strconv.Itoa(minutes),
		}
		e.notifier.ToUser(ctx, o.CustomerID, "Order delayed",
			fmt.Sprintf("Your order at %s is running %d minutes late", o.Address, minutes), data)
		if o.CourierID != "" {
			e.notifier.ToUser(ctx, o.CourierID, "Overdue order",
				fmt.Sprintf("Order at %s is %d minutes overdue", o.Address, minutes), data)
		}
	}
	return count, errs.ErrorOrNil()
}

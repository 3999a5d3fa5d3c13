package orderflow

import (
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/types"
)

// Re-export common types for convenience so callers don't have to import
// every model package.

type (
	Money        = types.Money
	Entity       = types.Entity
	Order        = order.Order
	OrderStatus  = order.Status
	OrderView    = order.View
	Payment      = payment.Payment
	Subscription = subscription.Subscription
	Limits       = subscription.Limits
	Schedule     = schedule.Definition
	TickReport   = schedule.TickReport
)

var (
	RUB  = types.RUB
	Zero = types.Zero
)

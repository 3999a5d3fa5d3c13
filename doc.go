// Package orderflow is the order lifecycle, payment reconciliation and
// recurring order core of a cleaning and courier marketplace.
//
// Orderflow is a library. Package api serves the provider webhook over
// HTTP and package extension mounts the engine in a Forge application.
// Authentication and message delivery belong to the host, which plugs them
// in through the collaborator interfaces in package notify. It provides:
//
//   - A forward-only order state machine with courier ownership checks
//   - Exactly-once application of duplicated or reordered provider webhooks
//   - Subscription quotas with expiry by end date and by used orders
//   - Recurring order generation that never creates two orders per period
//   - Overdue order notices that survive restarts
//
// # Quick Start
//
//	import (
//	    "github.com/cleanhouse123/orderflow"
//	    "github.com/cleanhouse123/orderflow/store/memory"
//	)
//
//	engine := orderflow.New(memory.New(),
//	    orderflow.WithUserDirectory(users),
//	    orderflow.WithNotifier(channel, push),
//	)
//	if err := engine.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Stop()
//
// # Orders
//
// Orders start in new with a pending payment for their price:
//
//	view, err := engine.CreateOrder(ctx, orderflow.CreateOrderInput{
//	    CustomerID: "user-1",
//	    Address:    "Lenina 1, apt 5",
//	    Price:      orderflow.RUB(150000),
//	})
//
// and move forward only:
//
//	new         -> assigned, canceled, paid
//	paid        -> assigned, canceled
//	assigned    -> in_progress, canceled, paid
//	in_progress -> done, canceled
//
// # Webhooks
//
// HandleWebhook takes the raw provider body. The payment is found through
// the orderId or subscriptionId metadata the payment was opened with, and
// every status write is conditional, so redelivering the same event is
// harmless:
//
//	res, err := engine.HandleWebhook(ctx, body)
//	if errors.Is(err, orderflow.ErrMalformedWebhook) {
//	    // answer 400
//	}
//
// # Recurring orders
//
// A background worker calls ProcessSchedules every 30 minutes by default.
// Each due definition with an active subscription produces one prepaid order
// per period. Calls that overlap share one pass.
//
// # Stores
//
// store/memory is for tests and single-process use. Start migrates the
// store unless WithoutMigrate is given. store/postgres,
// store/sqlite and store/mongo keep the same conditional-write guarantees
// across instances.
package orderflow

package orderflow_test

import (
	"context"
	"log"
	"log/slog"
	"testing"
	"time"

	"github.com/cleanhouse123/orderflow"
	"github.com/cleanhouse123/orderflow/notify"
	"github.com/cleanhouse123/orderflow/store/memory"
	"github.com/cleanhouse123/orderflow/types"
)

// TestDocumentationExamples verifies that the package documentation examples compile and run.
func TestDocumentationExamples(t *testing.T) {
	t.Run("QuickStartExample", func(t *testing.T) {
		users := notify.NewStaticDirectory(
			&notify.User{ID: "user-1", Role: notify.RoleCustomer},
		)

		engine := orderflow.New(memory.New(),
			orderflow.WithLogger(slog.Default()),
			orderflow.WithUserDirectory(users),
			orderflow.WithNotifier(notify.Nop{}, notify.Nop{}),
			orderflow.WithScheduleInterval(time.Hour),
		)

		ctx := context.Background()
		if err := engine.Start(ctx); err != nil {
			t.Fatal(err)
		}
		defer engine.Stop()

		view, err := engine.CreateOrder(ctx, orderflow.CreateOrderInput{
			CustomerID: "user-1",
			Address:    "Lenina 1, apt 5",
			Price:      orderflow.RUB(150000),
		})
		if err != nil {
			t.Fatal(err)
		}

		body := []byte(`{"event":"payment.succeeded","object":{"id":"2f0e","status":"succeeded","metadata":{` +
			`"orderId":"` + view.Order.ID.String() + `","paymentId":"` + view.Payment.ID.String() + `"}}}`)

		res, err := engine.HandleWebhook(ctx, body)
		if err != nil {
			t.Fatal(err)
		}
		log.Printf("webhook: %s (%s)\n", res.Message, res.Outcome)
	})

	t.Run("MoneyExamples", func(t *testing.T) {
		price := types.RUB(150000) // 1500.00 ₽

		if price.String() != "1500.00 ₽" {
			t.Fatalf("unexpected display %q", price.String())
		}
		_ = price.FormatMajor() // "1500.00"
	})
}

package orderflow

import (
	"context"
	"errors"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/webhook"
)

// HandleWebhook applies a payment-provider callback. Every classifiable
// delivery, including duplicates, unknown events and unknown payments,
// yields a Result and no error. Malformed bodies yield ErrMalformedWebhook.
// Store failures are returned so the provider redelivers; redelivery is
// safe because every write below is conditional.
func (e *Engine) HandleWebhook(ctx context.Context, body []byte) (*webhook.Result, error) {
	n, err := webhook.Parse(body)
	if err != nil {
		e.logger.Warn("rejected malformed webhook", "error", err, "bytes", len(body))
		return nil, err
	}

	subject := n.Classify()
	res, err := e.reconcile(ctx, n, subject)
	if err != nil {
		e.logger.Error("webhook reconciliation failed",
			"event", n.Type,
			"subject", subject.Kind(),
			"error", err,
		)
		return nil, err
	}

	e.journal(ctx, n, subject, res)
	return res, nil
}

// ConfirmPayment runs the same reconciliation as a payment.succeeded
// callback. It is used by the manual confirmation path and may interleave
// freely with provider deliveries.
func (e *Engine) ConfirmPayment(ctx context.Context, paymentID id.PaymentID) (*webhook.Result, error) {
	p, err := e.store.GetPayment(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return e.applyPaymentStatus(ctx, p, payment.StatusPaid)
}

func (e *Engine) reconcile(ctx context.Context, n *webhook.Notification, subject webhook.Subject) (*webhook.Result, error) {
	var (
		p   *payment.Payment
		err error
	)

	switch s := subject.(type) {
	case webhook.Unrecognized:
		e.logger.Info("unrecognized webhook",
			"event", n.Type,
			"provider_id", n.Object.ID,
			"reason", s.Reason,
		)
		return &webhook.Result{Message: "event not recognized", Outcome: webhook.OutcomeUnrecognized}, nil

	case webhook.Refund:
		p, err = e.store.GetPaymentByProviderID(ctx, s.ProviderPaymentID)

	case webhook.OrderPayment:
		p, err = e.store.GetPayment(ctx, s.PaymentID)
		if err == nil && p.OrderID.String() != s.OrderID.String() {
			e.logger.Warn("webhook order does not match payment",
				"payment_id", s.PaymentID.String(),
				"order_id", s.OrderID.String(),
			)
			err = ErrPaymentNotFound
		}

	case webhook.SubscriptionPayment:
		p, err = e.store.GetPayment(ctx, s.PaymentID)
		if err == nil && p.SubscriptionID.String() != s.SubscriptionID.String() {
			e.logger.Warn("webhook subscription does not match payment",
				"payment_id", s.PaymentID.String(),
				"subscription_id", s.SubscriptionID.String(),
			)
			err = ErrPaymentNotFound
		}
	}

	if errors.Is(err, ErrPaymentNotFound) {
		e.logger.Warn("webhook payment not found", "event", n.Type, "subject", subject.Kind())
		return &webhook.Result{Message: "payment not found", Type: subject.Kind(), Outcome: webhook.OutcomeNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	target, ok := n.Type.TargetStatus()
	if !ok {
		e.logger.Info("ignoring webhook event", "event", n.Type, "payment_id", p.ID.String())
		return &webhook.Result{
			Message:   "event ignored",
			Type:      subject.Kind(),
			Outcome:   webhook.OutcomeIgnored,
			PaymentID: p.ID,
			Status:    p.Status,
		}, nil
	}

	if _, isRefund := subject.(webhook.Refund); !isRefund && p.ProviderID == "" && n.Object.ID != "" {
		if _, err := e.store.AttachProviderID(ctx, p.ID, n.Object.ID, ""); err != nil {
			e.logger.Warn("failed to capture provider id",
				"payment_id", p.ID.String(),
				"provider_id", n.Object.ID,
				"error", err,
			)
		}
	}

	return e.applyPaymentStatus(ctx, p, target)
}

// applyPaymentStatus writes target and then makes the order or subscription
// agree with the payment's current status. The follow-up runs whenever the
// payment sits at target, not only on the first write, so a delivery that
// failed halfway is completed by the next one.
func (e *Engine) applyPaymentStatus(ctx context.Context, p *payment.Payment, target payment.Status) (*webhook.Result, error) {
	upd, err := e.setPaymentStatus(ctx, p.ID, target)
	if err != nil {
		return nil, err
	}

	res := &webhook.Result{
		Type:      string(upd.Payment.Kind),
		PaymentID: upd.Payment.ID,
		Status:    upd.Payment.Status,
	}
	if upd.Changed {
		res.Outcome, res.Message = webhook.OutcomeApplied, "payment status updated"
	} else {
		res.Outcome, res.Message = webhook.OutcomeDuplicate, "payment already processed"
	}

	if upd.Payment.Status != target {
		return res, nil
	}

	cur := upd.Payment
	subject := cur.SubjectID().String()
	switch target {
	case payment.StatusPaid:
		switch cur.Kind {
		case payment.KindOrder:
			e.markOrderPaid(ctx, cur)
		case payment.KindSubscription:
			e.activateFromPayment(ctx, cur)
		}
		e.notifier.PaymentSucceeded(ctx, cur.ID.String(), subject)

	case payment.StatusCanceled, payment.StatusFailed:
		if cur.Kind == payment.KindOrder {
			e.cancelOrderFromPayment(ctx, cur)
		}
		e.notifier.PaymentFailed(ctx, cur.ID.String(), subject, string(target))
	}

	return res, nil
}

func (e *Engine) markOrderPaid(ctx context.Context, p *payment.Payment) {
	o, err := e.store.GetOrder(ctx, p.OrderID)
	if err != nil {
		e.logger.Warn("paid order not found", "order_id", p.OrderID.String(), "error", err)
		return
	}
	if o.Status.PaidOrLater() {
		return
	}

	if _, err := e.transition(ctx, o, order.StatusPaid, ""); err != nil {
		if IsInvalidTransition(err) {
			e.logger.Info("order not moved to paid",
				"order_id", o.ID.String(),
				"status", o.Status,
				"reason", err,
			)
			return
		}
		e.logger.Error("failed to mark order paid", "order_id", o.ID.String(), "error", err)
		return
	}

	// An order taken before payment is no longer open to other couriers.
	if o.CourierID != "" {
		return
	}
	e.notifier.ToCouriers(ctx, "New paid order", o.Address, map[string]string{
		"type":     "new_paid_order",
		"order_id": o.ID.String(),
	})
}

func (e *Engine) cancelOrderFromPayment(ctx context.Context, p *payment.Payment) {
	o, err := e.store.GetOrder(ctx, p.OrderID)
	if err != nil {
		e.logger.Warn("order for canceled payment not found", "order_id", p.OrderID.String(), "error", err)
		return
	}
	if o.Status == order.StatusCanceled {
		return
	}
	if _, err := e.transition(ctx, o, order.StatusCanceled, ""); err != nil {
		e.logger.Info("order not canceled after failed payment",
			"order_id", o.ID.String(),
			"status", o.Status,
			"reason", err,
		)
	}
}

func (e *Engine) activateFromPayment(ctx context.Context, p *payment.Payment) {
	_, err := e.ActivateSubscription(ctx, p.SubscriptionID)
	switch {
	case err == nil:
	case errors.Is(err, ErrSubscriptionNotPending):
		e.logger.Debug("subscription already activated", "subscription_id", p.SubscriptionID.String())
	default:
		e.logger.Warn("failed to activate subscription after payment",
			"subscription_id", p.SubscriptionID.String(),
			"payment_id", p.ID.String(),
			"error", err,
		)
	}
}

// journal appends the delivery to the webhook log. Failures are logged.
func (e *Engine) journal(ctx context.Context, n *webhook.Notification, subject webhook.Subject, res *webhook.Result) {
	evt := &webhook.Event{
		ID:         id.NewWebhookEventID(),
		EventType:  n.Type,
		Subject:    subject.Kind(),
		ProviderID: n.ProviderPaymentID(),
		PaymentID:  res.PaymentID,
		Outcome:    res.Outcome,
		Message:    res.Message,
		ReceivedAt: e.now(),
	}
	if err := e.store.RecordWebhookEvent(ctx, evt); err != nil {
		e.logger.Warn("failed to journal webhook", "event", n.Type, "error", err)
	}
	e.plugins.EmitWebhookReceived(ctx, evt)
}

// WebhookEvents lists journaled deliveries, newest first.
func (e *Engine) WebhookEvents(ctx context.Context, opts webhook.ListOpts) ([]*webhook.Event, error) {
	return e.store.ListWebhookEvents(ctx, opts)
}

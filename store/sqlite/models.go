package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/order"
	"github.com/cleanhouse123/orderflow/payment"
	"github.com/cleanhouse123/orderflow/schedule"
	"github.com/cleanhouse123/orderflow/subscription"
	"github.com/cleanhouse123/orderflow/types"
	"github.com/cleanhouse123/orderflow/webhook"
)

// SQLite has no JSON column type; structured fields are stored as TEXT.

type orderModel struct {
	grove.BaseModel `grove:"table:orderflow_orders"`

	ID                string     `grove:"id,pk"`
	CustomerID        string     `grove:"customer_id"`
	CourierID         string     `grove:"courier_id"`
	Address           string     `grove:"address"`
	AddressDetails    string     `grove:"address_details"`
	Description       string     `grove:"description"`
	Notes             string     `grove:"notes"`
	PriceAmount       int64      `grove:"price_amount"`
	PriceCurrency     string     `grove:"price_currency"`
	PaymentMethod     string     `grove:"payment_method"`
	Status            string     `grove:"status"`
	ScheduledAt       *time.Time `grove:"scheduled_at"`
	AssignedAt        *time.Time `grove:"assigned_at"`
	StartedAt         *time.Time `grove:"started_at"`
	CompletedAt       *time.Time `grove:"completed_at"`
	OverdueMinutes    *int       `grove:"overdue_minutes"`
	OverdueNotifiedAt *time.Time `grove:"overdue_notified_at"`
	ScheduleID        string     `grove:"schedule_id"`
	CreatedAt         time.Time  `grove:"created_at"`
	UpdatedAt         time.Time  `grove:"updated_at"`
}

func toOrderModel(o *order.Order) *orderModel {
	m := &orderModel{
		ID:                o.ID.String(),
		CustomerID:        o.CustomerID,
		CourierID:         o.CourierID,
		Address:           o.Address,
		Description:       o.Description,
		Notes:             o.Notes,
		PriceAmount:       o.Price.Amount,
		PriceCurrency:     o.Price.Currency,
		PaymentMethod:     string(o.PaymentMethod),
		Status:            string(o.Status),
		ScheduledAt:       o.ScheduledAt,
		AssignedAt:        o.AssignedAt,
		StartedAt:         o.StartedAt,
		CompletedAt:       o.CompletedAt,
		OverdueMinutes:    o.OverdueMinutes,
		OverdueNotifiedAt: o.OverdueNotifiedAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
	if o.AddressDetails != nil {
		b, _ := json.Marshal(o.AddressDetails) //nolint:errcheck // plain struct
		m.AddressDetails = string(b)
	}
	if !o.ScheduleID.IsNil() {
		m.ScheduleID = o.ScheduleID.String()
	}
	return m
}

func fromOrderModel(m *orderModel) (*order.Order, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, err
	}
	schedID, err := id.ParseOptional(m.ScheduleID, id.PrefixSchedule)
	if err != nil {
		return nil, err
	}

	var details *order.AddressDetails
	if m.AddressDetails != "" {
		details = new(order.AddressDetails)
		if err := json.Unmarshal([]byte(m.AddressDetails), details); err != nil {
			return nil, err
		}
	}

	return &order.Order{
		Entity:            types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                orderID,
		CustomerID:        m.CustomerID,
		CourierID:         m.CourierID,
		Address:           m.Address,
		AddressDetails:    details,
		Description:       m.Description,
		Notes:             m.Notes,
		Price:             types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		PaymentMethod:     order.PaymentMethod(m.PaymentMethod),
		Status:            order.Status(m.Status),
		ScheduledAt:       utcPtr(m.ScheduledAt),
		AssignedAt:        utcPtr(m.AssignedAt),
		StartedAt:         utcPtr(m.StartedAt),
		CompletedAt:       utcPtr(m.CompletedAt),
		OverdueMinutes:    m.OverdueMinutes,
		OverdueNotifiedAt: utcPtr(m.OverdueNotifiedAt),
		ScheduleID:        schedID,
	}, nil
}

type paymentModel struct {
	grove.BaseModel `grove:"table:orderflow_payments"`

	ID              string     `grove:"id,pk"`
	Kind            string     `grove:"kind"`
	OrderID         string     `grove:"order_id"`
	SubscriptionID  string     `grove:"subscription_id"`
	Amount          int64      `grove:"amount"`
	Currency        string     `grove:"currency"`
	Status          string     `grove:"status"`
	Method          string     `grove:"method"`
	ProviderID      string     `grove:"provider_id"`
	ConfirmationURL string     `grove:"confirmation_url"`
	PaidAt          *time.Time `grove:"paid_at"`
	CreatedAt       time.Time  `grove:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	m := &paymentModel{
		ID:              p.ID.String(),
		Kind:            string(p.Kind),
		Amount:          p.Amount.Amount,
		Currency:        p.Amount.Currency,
		Status:          string(p.Status),
		Method:          p.Method,
		ProviderID:      p.ProviderID,
		ConfirmationURL: p.ConfirmationURL,
		PaidAt:          p.PaidAt,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	if !p.OrderID.IsNil() {
		m.OrderID = p.OrderID.String()
	}
	if !p.SubscriptionID.IsNil() {
		m.SubscriptionID = p.SubscriptionID.String()
	}
	return m
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	payID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOptional(m.OrderID, id.PrefixOrder)
	if err != nil {
		return nil, err
	}
	subID, err := id.ParseOptional(m.SubscriptionID, id.PrefixSubscription)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		Entity:          types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:              payID,
		Kind:            payment.Kind(m.Kind),
		OrderID:         orderID,
		SubscriptionID:  subID,
		Amount:          types.Money{Amount: m.Amount, Currency: m.Currency},
		Status:          payment.Status(m.Status),
		Method:          m.Method,
		ProviderID:      m.ProviderID,
		ConfirmationURL: m.ConfirmationURL,
		PaidAt:          utcPtr(m.PaidAt),
	}, nil
}

type subscriptionModel struct {
	grove.BaseModel `grove:"table:orderflow_subscriptions"`

	ID            string     `grove:"id,pk"`
	UserID        string     `grove:"user_id"`
	Type          string     `grove:"type"`
	Status        string     `grove:"status"`
	OrdersLimit   int        `grove:"orders_limit"`
	UsedOrders    int        `grove:"used_orders"`
	PriceAmount   int64      `grove:"price_amount"`
	PriceCurrency string     `grove:"price_currency"`
	StartDate     *time.Time `grove:"start_date"`
	EndDate       *time.Time `grove:"end_date"`
	CanceledAt    *time.Time `grove:"canceled_at"`
	ExpiryReason  string     `grove:"expiry_reason"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toSubscriptionModel(s *subscription.Subscription) *subscriptionModel {
	return &subscriptionModel{
		ID:            s.ID.String(),
		UserID:        s.UserID,
		Type:          string(s.Type),
		Status:        string(s.Status),
		OrdersLimit:   s.OrdersLimit,
		UsedOrders:    s.UsedOrders,
		PriceAmount:   s.Price.Amount,
		PriceCurrency: s.Price.Currency,
		StartDate:     s.StartDate,
		EndDate:       s.EndDate,
		CanceledAt:    s.CanceledAt,
		ExpiryReason:  string(s.ExpiryReason),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
}

func fromSubscriptionModel(m *subscriptionModel) (*subscription.Subscription, error) {
	subID, err := id.ParseSubscriptionID(m.ID)
	if err != nil {
		return nil, err
	}

	return &subscription.Subscription{
		Entity:       types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:           subID,
		UserID:       m.UserID,
		Type:         subscription.Type(m.Type),
		Status:       subscription.Status(m.Status),
		OrdersLimit:  m.OrdersLimit,
		UsedOrders:   m.UsedOrders,
		Price:        types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		StartDate:    utcPtr(m.StartDate),
		EndDate:      utcPtr(m.EndDate),
		CanceledAt:   utcPtr(m.CanceledAt),
		ExpiryReason: subscription.ExpiryReason(m.ExpiryReason),
	}, nil
}

type scheduleModel struct {
	grove.BaseModel `grove:"table:orderflow_schedules"`

	ID                 string     `grove:"id,pk"`
	CustomerID         string     `grove:"customer_id"`
	Address            string     `grove:"address"`
	Description        string     `grove:"description"`
	Notes              string     `grove:"notes"`
	PriceAmount        int64      `grove:"price_amount"`
	PriceCurrency      string     `grove:"price_currency"`
	Frequency          string     `grove:"frequency"`
	PreferredTime      string     `grove:"preferred_time"`
	DaysOfWeek         string     `grove:"days_of_week"`
	StartDate          time.Time  `grove:"start_date"`
	EndDate            *time.Time `grove:"end_date"`
	IsActive           bool       `grove:"is_active"`
	LastCreatedAt      *time.Time `grove:"last_created_at"`
	DeactivationReason string     `grove:"deactivation_reason"`
	CreatedAt          time.Time  `grove:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"`
}

func toScheduleModel(d *schedule.Definition) *scheduleModel {
	days := make([]int, len(d.DaysOfWeek))
	for i, wd := range d.DaysOfWeek {
		days[i] = int(wd)
	}
	daysJSON, _ := json.Marshal(days) //nolint:errcheck // []int

	return &scheduleModel{
		ID:                 d.ID.String(),
		CustomerID:         d.CustomerID,
		Address:            d.Address,
		Description:        d.Description,
		Notes:              d.Notes,
		PriceAmount:        d.Price.Amount,
		PriceCurrency:      d.Price.Currency,
		Frequency:          string(d.Frequency),
		PreferredTime:      d.PreferredTime,
		DaysOfWeek:         string(daysJSON),
		StartDate:          d.StartDate,
		EndDate:            d.EndDate,
		IsActive:           d.IsActive,
		LastCreatedAt:      d.LastCreatedAt,
		DeactivationReason: string(d.DeactivationReason),
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func fromScheduleModel(m *scheduleModel) (*schedule.Definition, error) {
	schedID, err := id.ParseScheduleID(m.ID)
	if err != nil {
		return nil, err
	}

	var raw []int
	if m.DaysOfWeek != "" {
		if err := json.Unmarshal([]byte(m.DaysOfWeek), &raw); err != nil {
			return nil, err
		}
	}
	var days []time.Weekday
	for _, d := range raw {
		days = append(days, time.Weekday(d))
	}

	return &schedule.Definition{
		Entity:             types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:                 schedID,
		CustomerID:         m.CustomerID,
		Address:            m.Address,
		Description:        m.Description,
		Notes:              m.Notes,
		Price:              types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		Frequency:          schedule.Frequency(m.Frequency),
		PreferredTime:      m.PreferredTime,
		DaysOfWeek:         days,
		StartDate:          m.StartDate.UTC(),
		EndDate:            utcPtr(m.EndDate),
		IsActive:           m.IsActive,
		LastCreatedAt:      utcPtr(m.LastCreatedAt),
		DeactivationReason: schedule.DeactivationReason(m.DeactivationReason),
	}, nil
}

type webhookEventModel struct {
	grove.BaseModel `grove:"table:orderflow_webhook_events"`

	ID         string    `grove:"id,pk"`
	EventType  string    `grove:"event_type"`
	Subject    string    `grove:"subject"`
	ProviderID string    `grove:"provider_id"`
	PaymentID  string    `grove:"payment_id"`
	Outcome    string    `grove:"outcome"`
	Message    string    `grove:"message"`
	ReceivedAt time.Time `grove:"received_at"`
}

func toWebhookEventModel(e *webhook.Event) *webhookEventModel {
	m := &webhookEventModel{
		ID:         e.ID.String(),
		EventType:  string(e.EventType),
		Subject:    e.Subject,
		ProviderID: e.ProviderID,
		Outcome:    string(e.Outcome),
		Message:    e.Message,
		ReceivedAt: e.ReceivedAt,
	}
	if !e.PaymentID.IsNil() {
		m.PaymentID = e.PaymentID.String()
	}
	return m
}

func fromWebhookEventModel(m *webhookEventModel) (*webhook.Event, error) {
	evtID, err := id.ParseWebhookEventID(m.ID)
	if err != nil {
		return nil, err
	}
	payID, err := id.ParseOptional(m.PaymentID, id.PrefixPayment)
	if err != nil {
		return nil, err
	}

	return &webhook.Event{
		ID:         evtID,
		EventType:  webhook.EventType(m.EventType),
		Subject:    m.Subject,
		ProviderID: m.ProviderID,
		PaymentID:  payID,
		Outcome:    webhook.Outcome(m.Outcome),
		Message:    m.Message,
		ReceivedAt: m.ReceivedAt.UTC(),
	}, nil
}

package mongo

import (
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

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:orderflow_orders"`

	ID                string               `grove:"id,pk"               bson:"_id"`
	CustomerID        string               `grove:"customer_id"         bson:"customer_id"`
	CourierID         string               `grove:"courier_id"          bson:"courier_id"`
	Address           string               `grove:"address"             bson:"address"`
	AddressDetails    *addressDetailsModel `grove:"address_details"     bson:"address_details,omitempty"`
	Description       string               `grove:"description"         bson:"description"`
	Notes             string               `grove:"notes"               bson:"notes"`
	PriceAmount       int64                `grove:"price_amount"        bson:"price_amount"`
	PriceCurrency     string               `grove:"price_currency"      bson:"price_currency"`
	PaymentMethod     string               `grove:"payment_method"      bson:"payment_method"`
	Status            string               `grove:"status"              bson:"status"`
	ScheduledAt       *time.Time           `grove:"scheduled_at"        bson:"scheduled_at"`
	AssignedAt        *time.Time           `grove:"assigned_at"         bson:"assigned_at"`
	StartedAt         *time.Time           `grove:"started_at"          bson:"started_at"`
	CompletedAt       *time.Time           `grove:"completed_at"        bson:"completed_at"`
	OverdueMinutes    *int                 `grove:"overdue_minutes"     bson:"overdue_minutes"`
	OverdueNotifiedAt *time.Time           `grove:"overdue_notified_at" bson:"overdue_notified_at"`
	ScheduleID        string               `grove:"schedule_id"         bson:"schedule_id"`
	CreatedAt         time.Time            `grove:"created_at"          bson:"created_at"`
	UpdatedAt         time.Time            `grove:"updated_at"          bson:"updated_at"`
}

type addressDetailsModel struct {
	Street    string   `bson:"street,omitempty"`
	House     string   `bson:"house,omitempty"`
	Apartment string   `bson:"apartment,omitempty"`
	Entrance  string   `bson:"entrance,omitempty"`
	Floor     string   `bson:"floor,omitempty"`
	Intercom  string   `bson:"intercom,omitempty"`
	Lat       *float64 `bson:"lat,omitempty"`
	Lon       *float64 `bson:"lon,omitempty"`
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
	if d := o.AddressDetails; d != nil {
		m.AddressDetails = &addressDetailsModel{
			Street:    d.Street,
			House:     d.House,
			Apartment: d.Apartment,
			Entrance:  d.Entrance,
			Floor:     d.Floor,
			Intercom:  d.Intercom,
			Lat:       d.Lat,
			Lon:       d.Lon,
		}
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

	o := &order.Order{
		Entity:            types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                orderID,
		CustomerID:        m.CustomerID,
		CourierID:         m.CourierID,
		Address:           m.Address,
		Description:       m.Description,
		Notes:             m.Notes,
		Price:             types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		PaymentMethod:     order.PaymentMethod(m.PaymentMethod),
		Status:            order.Status(m.Status),
		ScheduledAt:       m.ScheduledAt,
		AssignedAt:        m.AssignedAt,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
		OverdueMinutes:    m.OverdueMinutes,
		OverdueNotifiedAt: m.OverdueNotifiedAt,
		ScheduleID:        schedID,
	}
	if d := m.AddressDetails; d != nil {
		o.AddressDetails = &order.AddressDetails{
			Street:    d.Street,
			House:     d.House,
			Apartment: d.Apartment,
			Entrance:  d.Entrance,
			Floor:     d.Floor,
			Intercom:  d.Intercom,
			Lat:       d.Lat,
			Lon:       d.Lon,
		}
	}
	return o, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:orderflow_payments"`

	ID              string     `grove:"id,pk"            bson:"_id"`
	Kind            string     `grove:"kind"             bson:"kind"`
	OrderID         string     `grove:"order_id"         bson:"order_id"`
	SubscriptionID  string     `grove:"subscription_id"  bson:"subscription_id"`
	Amount          int64      `grove:"amount"           bson:"amount"`
	Currency        string     `grove:"currency"         bson:"currency"`
	Status          string     `grove:"status"           bson:"status"`
	Method          string     `grove:"method"           bson:"method"`
	ProviderID      string     `grove:"provider_id"      bson:"provider_id"`
	ConfirmationURL string     `grove:"confirmation_url" bson:"confirmation_url"`
	PaidAt          *time.Time `grove:"paid_at"          bson:"paid_at"`
	CreatedAt       time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt       time.Time  `grove:"updated_at"       bson:"updated_at"`
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
		Entity:          types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:              payID,
		Kind:            payment.Kind(m.Kind),
		OrderID:         orderID,
		SubscriptionID:  subID,
		Amount:          types.Money{Amount: m.Amount, Currency: m.Currency},
		Status:          payment.Status(m.Status),
		Method:          m.Method,
		ProviderID:      m.ProviderID,
		ConfirmationURL: m.ConfirmationURL,
		PaidAt:          m.PaidAt,
	}, nil
}

// ==================== Subscription models ====================

type subscriptionModel struct {
	grove.BaseModel `grove:"table:orderflow_subscriptions"`

	ID            string     `grove:"id,pk"          bson:"_id"`
	UserID        string     `grove:"user_id"        bson:"user_id"`
	Type          string     `grove:"type"           bson:"type"`
	Status        string     `grove:"status"         bson:"status"`
	OrdersLimit   int        `grove:"orders_limit"   bson:"orders_limit"`
	UsedOrders    int        `grove:"used_orders"    bson:"used_orders"`
	PriceAmount   int64      `grove:"price_amount"   bson:"price_amount"`
	PriceCurrency string     `grove:"price_currency" bson:"price_currency"`
	StartDate     *time.Time `grove:"start_date"     bson:"start_date"`
	EndDate       *time.Time `grove:"end_date"       bson:"end_date"`
	CanceledAt    *time.Time `grove:"canceled_at"    bson:"canceled_at"`
	ExpiryReason  string     `grove:"expiry_reason"  bson:"expiry_reason"`
	CreatedAt     time.Time  `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"     bson:"updated_at"`
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
		Entity:       types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:           subID,
		UserID:       m.UserID,
		Type:         subscription.Type(m.Type),
		Status:       subscription.Status(m.Status),
		OrdersLimit:  m.OrdersLimit,
		UsedOrders:   m.UsedOrders,
		Price:        types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		CanceledAt:   m.CanceledAt,
		ExpiryReason: subscription.ExpiryReason(m.ExpiryReason),
	}, nil
}

// ==================== Schedule models ====================

type scheduleModel struct {
	grove.BaseModel `grove:"table:orderflow_schedules"`

	ID                 string     `grove:"id,pk"               bson:"_id"`
	CustomerID         string     `grove:"customer_id"         bson:"customer_id"`
	Address            string     `grove:"address"             bson:"address"`
	Description        string     `grove:"description"         bson:"description"`
	Notes              string     `grove:"notes"               bson:"notes"`
	PriceAmount        int64      `grove:"price_amount"        bson:"price_amount"`
	PriceCurrency      string     `grove:"price_currency"      bson:"price_currency"`
	Frequency          string     `grove:"frequency"           bson:"frequency"`
	PreferredTime      string     `grove:"preferred_time"      bson:"preferred_time"`
	DaysOfWeek         []int      `grove:"days_of_week"        bson:"days_of_week"`
	StartDate          time.Time  `grove:"start_date"          bson:"start_date"`
	EndDate            *time.Time `grove:"end_date"            bson:"end_date"`
	IsActive           bool       `grove:"is_active"           bson:"is_active"`
	LastCreatedAt      *time.Time `grove:"last_created_at"     bson:"last_created_at"`
	DeactivationReason string     `grove:"deactivation_reason" bson:"deactivation_reason"`
	CreatedAt          time.Time  `grove:"created_at"          bson:"created_at"`
	UpdatedAt          time.Time  `grove:"updated_at"          bson:"updated_at"`
}

func toScheduleModel(d *schedule.Definition) *scheduleModel {
	days := make([]int, len(d.DaysOfWeek))
	for i, wd := range d.DaysOfWeek {
		days[i] = int(wd)
	}

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
		DaysOfWeek:         days,
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

	var days []time.Weekday
	for _, d := range m.DaysOfWeek {
		days = append(days, time.Weekday(d))
	}

	return &schedule.Definition{
		Entity:             types.Entity{CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt},
		ID:                 schedID,
		CustomerID:         m.CustomerID,
		Address:            m.Address,
		Description:        m.Description,
		Notes:              m.Notes,
		Price:              types.Money{Amount: m.PriceAmount, Currency: m.PriceCurrency},
		Frequency:          schedule.Frequency(m.Frequency),
		PreferredTime:      m.PreferredTime,
		DaysOfWeek:         days,
		StartDate:          m.StartDate,
		EndDate:            m.EndDate,
		IsActive:           m.IsActive,
		LastCreatedAt:      m.LastCreatedAt,
		DeactivationReason: schedule.DeactivationReason(m.DeactivationReason),
	}, nil
}

// ==================== Webhook journal models ====================

type webhookEventModel struct {
	grove.BaseModel `grove:"table:orderflow_webhook_events"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	EventType  string    `grove:"event_type"  bson:"event_type"`
	Subject    string    `grove:"subject"     bson:"subject"`
	ProviderID string    `grove:"provider_id" bson:"provider_id"`
	PaymentID  string    `grove:"payment_id"  bson:"payment_id"`
	Outcome    string    `grove:"outcome"     bson:"outcome"`
	Message    string    `grove:"message"     bson:"message"`
	ReceivedAt time.Time `grove:"received_at" bson:"received_at"`
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
		ReceivedAt: m.ReceivedAt,
	}, nil
}

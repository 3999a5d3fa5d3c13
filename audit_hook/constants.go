package audithook

// Action constants for audit events.
const (
	// Order actions
	ActionOrderCreated      = "order.created"
	ActionOrderTransitioned = "order.transitioned"
	ActionOrderRemoved      = "order.removed"
	ActionOrderOverdue      = "order.overdue"

	// Payment actions
	ActionPaymentOpened        = "payment.opened"
	ActionPaymentStatusChanged = "payment.status_changed"
	ActionWebhookReceived      = "webhook.received"

	// Subscription actions
	ActionSubscriptionCreated   = "subscription.created"
	ActionSubscriptionActivated = "subscription.activated"
	ActionSubscriptionCanceled  = "subscription.canceled"
	ActionSubscriptionExpired   = "subscription.expired"
	ActionOrderLimitReached     = "subscription.limit_reached"

	// Schedule actions
	ActionScheduleDeactivated = "schedule.deactivated"
)

// Resource constants for audit events.
const (
	ResourceOrder        = "order"
	ResourcePayment      = "payment"
	ResourceSubscription = "subscription"
	ResourceSchedule     = "schedule"
	ResourceWebhook      = "webhook"
)

// Category constants for audit events.
const (
	CategoryOrder        = "order"
	CategoryPayment      = "payment"
	CategorySubscription = "subscription"
	CategoryAccess       = "access"
	CategoryIntegration  = "integration"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

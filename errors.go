package orderflow

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cleanhouse123/orderflow/webhook"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("orderflow: not found")
	ErrAlreadyExists = errors.New("orderflow: already exists")
	ErrInvalidInput  = errors.New("orderflow: invalid input")

	// Order errors
	ErrOrderNotFound     = errors.New("orderflow: order not found")
	ErrUserNotFound      = errors.New("orderflow: user not found")
	ErrInvalidTransition = errors.New("orderflow: invalid status transition")
	ErrCourierRequired   = errors.New("orderflow: courier id is required")
	ErrNotCourier        = errors.New("orderflow: user is not a courier")
	ErrCourierMismatch   = errors.New("orderflow: order is assigned to another courier")
	ErrOrderLocked       = errors.New("orderflow: order can no longer be removed")

	// Payment errors
	ErrPaymentNotFound   = errors.New("orderflow: payment not found")
	ErrProviderIDTaken   = errors.New("orderflow: provider id already attached")
	ErrMalformedWebhook  = webhook.ErrMalformed
	ErrUnsupportedStatus = errors.New("orderflow: unsupported payment status")

	// Subscription errors
	ErrSubscriptionNotFound   = errors.New("orderflow: subscription not found")
	ErrNoActiveSubscription   = errors.New("orderflow: no active subscription")
	ErrSubscriptionExists     = errors.New("orderflow: user already has an active subscription")
	ErrSubscriptionNotPending = errors.New("orderflow: subscription is not pending")
	ErrSubscriptionClosed     = errors.New("orderflow: subscription is expired or canceled")
	ErrOrderLimitReached      = errors.New("orderflow: subscription order limit reached")

	// Schedule errors
	ErrScheduleNotFound = errors.New("orderflow: schedule not found")

	// Collaborator errors
	ErrExternal = errors.New("orderflow: external collaborator failed")

	// Store errors
	ErrStoreClosed     = errors.New("orderflow: store is closed")
	ErrMigrationFailed = errors.New("orderflow: migration failed")
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("orderflow: validation failed for %s: %s", e.Field, e.Message)
}

// Is lets errors.Is(err, ErrInvalidInput) match validation failures.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "orderflow: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("orderflow: %d errors occurred", len(e.Errors))
}

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error {
	return e.Errors
}

// ErrorOrNil returns e if it holds any error and nil otherwise.
func (e *MultiError) ErrorOrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return *e
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrOrderNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrPaymentNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNoActiveSubscription) ||
		errors.Is(err, ErrScheduleNotFound)
}

// IsInvalidTransition returns true if a state machine rule was violated.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrSubscriptionNotPending) ||
		errors.Is(err, ErrSubscriptionClosed)
}

// IsBadRequest returns true if the caller supplied unusable input.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrCourierRequired) ||
		errors.Is(err, ErrNotCourier) ||
		errors.Is(err, ErrCourierMismatch) ||
		errors.Is(err, ErrOrderLocked) ||
		errors.Is(err, ErrMalformedWebhook) ||
		errors.Is(err, ErrUnsupportedStatus)
}

// IsConflict returns true if the operation collides with existing state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrSubscriptionExists) ||
		errors.Is(err, ErrProviderIDTaken) ||
		errors.Is(err, ErrOrderLimitReached)
}

// IsExternal returns true if a collaborator outside the process failed.
func IsExternal(err error) bool {
	return errors.Is(err, ErrExternal)
}

// HTTPStatus maps an error to the status code an HTTP surface should
// answer with. Invalid transitions answer 400.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsInvalidTransition(err), IsBadRequest(err):
		return http.StatusBadRequest
	case IsConflict(err):
		return http.StatusConflict
	case IsExternal(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

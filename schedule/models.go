// Package schedule defines recurring order definitions and the calendar
// rules that decide when the next order is due. All calendar arithmetic is
// done on UTC days.
package schedule

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/cleanhouse123/orderflow/id"
	"github.com/cleanhouse123/orderflow/types"
)

// DefaultHour and DefaultMinute are used when a definition has no
// preferred time of day.
const (
	DefaultHour   = 10
	DefaultMinute = 0
)

type Frequency string

const (
	FrequencyDaily         Frequency = "daily"
	FrequencyEveryOtherDay Frequency = "every_other_day"
	FrequencyWeekly        Frequency = "weekly"
	FrequencyCustom        Frequency = "custom"
)

// Interval returns the fixed day step for the frequency. Custom schedules
// have no fixed step and return 0.
func (f Frequency) Interval() int {
	switch f {
	case FrequencyDaily:
		return 1
	case FrequencyEveryOtherDay:
		return 2
	case FrequencyWeekly:
		return 7
	}
	return 0
}

// Valid reports whether f is a known frequency.
func (f Frequency) Valid() bool {
	return f == FrequencyCustom || f.Interval() > 0
}

// DeactivationReason records why the engine switched a definition off.
type DeactivationReason string

const (
	ReasonSubscriptionInactive DeactivationReason = "subscription_inactive"
	ReasonLimitReached         DeactivationReason = "limit_reached"
	ReasonSubscriptionExpired  DeactivationReason = "subscription_expired"
	ReasonManual               DeactivationReason = "manual"
)

type Definition struct {
	types.Entity
	ID                 id.ScheduleID      `json:"id"`
	CustomerID         string             `json:"customer_id"`
	Address            string             `json:"address"`
	Description        string             `json:"description,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	Price              types.Money        `json:"price"`
	Frequency          Frequency          `json:"frequency"`
	PreferredTime      string             `json:"preferred_time,omitempty"` // HH:MM, UTC
	DaysOfWeek         []time.Weekday     `json:"days_of_week,omitempty"`   // custom only, 0 = Sunday
	StartDate          time.Time          `json:"start_date"`
	EndDate            *time.Time         `json:"end_date,omitempty"`
	IsActive           bool               `json:"is_active"`
	LastCreatedAt      *time.Time         `json:"last_created_at,omitempty"`
	DeactivationReason DeactivationReason `json:"deactivation_reason,omitempty"`
}

var (
	errNoCustomer    = errors.New("schedule: customer id is required")
	errBadFrequency  = errors.New("schedule: unknown frequency")
	errNoCustomDays  = errors.New("schedule: custom frequency needs at least one weekday")
	errBadWeekday    = errors.New("schedule: weekday out of range")
	errEndBeforeFrom = errors.New("schedule: end date before start date")
)

// Validate checks the definition for structural errors.
func (d *Definition) Validate() error {
	if d.CustomerID == "" {
		return errNoCustomer
	}
	if !d.Frequency.Valid() {
		return errBadFrequency
	}
	if d.Frequency == FrequencyCustom && len(d.DaysOfWeek) == 0 {
		return errNoCustomDays
	}
	for _, wd := range d.DaysOfWeek {
		if wd < time.Sunday || wd > time.Saturday {
			return errBadWeekday
		}
	}
	if d.PreferredTime != "" {
		if _, _, err := ParseClock(d.PreferredTime); err != nil {
			return err
		}
	}
	if d.EndDate != nil && d.EndDate.Before(d.StartDate) {
		return errEndBeforeFrom
	}
	return nil
}

// InWindow reports whether now falls within [StartDate, EndDate].
func (d *Definition) InWindow(now time.Time) bool {
	if now.Before(d.StartDate) {
		return false
	}
	return d.EndDate == nil || !now.After(*d.EndDate)
}

// IsDue reports whether a new order should be generated at now. Due-ness
// depends only on LastCreatedAt, so repeating the check within the same
// period gives the same answer once the period is claimed.
func (d *Definition) IsDue(now time.Time) bool {
	if d.LastCreatedAt == nil {
		return true
	}
	elapsed := DaysBetween(*d.LastCreatedAt, now)
	if d.Frequency == FrequencyCustom {
		return elapsed != 0 && slices.Contains(d.DaysOfWeek, now.UTC().Weekday())
	}
	step := d.Frequency.Interval()
	return step > 0 && elapsed >= step
}

// NextScheduledAt returns when the order generated at now should be served:
// the frequency step (or the next matching weekday for custom schedules)
// after today, at the preferred time of day.
func (d *Definition) NextScheduledAt(now time.Time) time.Time {
	today := Day(now)
	var date time.Time
	if d.Frequency == FrequencyCustom {
		date = today.AddDate(0, 0, 1)
		for i := 1; i <= 7; i++ {
			candidate := today.AddDate(0, 0, i)
			if slices.Contains(d.DaysOfWeek, candidate.Weekday()) {
				date = candidate
				break
			}
		}
	} else {
		date = today.AddDate(0, 0, max(1, d.Frequency.Interval()))
	}

	hour, minute := DefaultHour, DefaultMinute
	if h, m, err := ParseClock(d.PreferredTime); err == nil {
		hour, minute = h, m
	}
	return date.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// Clone returns a deep copy of d.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	c := *d
	c.DaysOfWeek = slices.Clone(d.DaysOfWeek)
	if d.EndDate != nil {
		t := *d.EndDate
		c.EndDate = &t
	}
	if d.LastCreatedAt != nil {
		t := *d.LastCreatedAt
		c.LastCreatedAt = &t
	}
	return &c
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, dd := t.UTC().Date()
	return time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts UTC calendar days from a to b. 23:59 and 00:01 of the
// next day are one day apart.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// ParseClock parses an "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("schedule: invalid preferred time %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// Outcome is what one pass did with one definition.
type Outcome string

const (
	OutcomeCreated     Outcome = "created"
	OutcomeNotDue      Outcome = "not_due"
	OutcomeOutOfWindow Outcome = "out_of_window"
	OutcomeDeactivated Outcome = "deactivated"
	OutcomeClaimLost   Outcome = "claim_lost"
	OutcomeFailed      Outcome = "failed"
)

// Result describes the handling of a single definition within a pass.
type Result struct {
	ScheduleID id.ScheduleID      `json:"schedule_id"`
	Outcome    Outcome            `json:"outcome"`
	OrderID    id.OrderID         `json:"order_id,omitzero"`
	Reason     DeactivationReason `json:"reason,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// TickReport summarizes one scheduler pass.
type TickReport struct {
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Processed   int           `json:"processed"`
	Created     int           `json:"created"`
	Deactivated int           `json:"deactivated"`
	Failed      int           `json:"failed"`
	Expired     int           `json:"expired_subscriptions"`
	Results     []Result      `json:"results,omitempty"`
}

// Add records r and updates the counters.
func (r *TickReport) Add(res Result) {
	r.Processed++
	switch res.Outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeDeactivated:
		r.Deactivated++
	case OutcomeFailed:
		r.Failed++
	}
	r.Results = append(r.Results, res)
}

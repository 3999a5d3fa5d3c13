package schedule

import (
	"testing"
	"time"
)

func at(y int, m time.Month, d, h, min int) time.Time {
	return time.Date(y, m, d, h, min, 0, 0, time.UTC)
}

func ptr(t time.Time) *time.Time { return &t }

func TestIsDue(t *testing.T) {
	// 2026-03-02 is a Monday.
	now := at(2026, 3, 2, 0, 1)

	tests := []struct {
		name string
		def  Definition
		want bool
	}{
		{"never created", Definition{Frequency: FrequencyWeekly}, true},
		{"daily across midnight", Definition{Frequency: FrequencyDaily, LastCreatedAt: ptr(at(2026, 3, 1, 23, 59))}, true},
		{"daily same day", Definition{Frequency: FrequencyDaily, LastCreatedAt: ptr(at(2026, 3, 2, 0, 0))}, false},
		{"every other day after one day", Definition{Frequency: FrequencyEveryOtherDay, LastCreatedAt: ptr(at(2026, 3, 1, 8, 0))}, false},
		{"every other day after two days", Definition{Frequency: FrequencyEveryOtherDay, LastCreatedAt: ptr(at(2026, 2, 28, 23, 0))}, true},
		{"weekly after six days", Definition{Frequency: FrequencyWeekly, LastCreatedAt: ptr(at(2026, 2, 24, 10, 0))}, false},
		{"weekly after seven days", Definition{Frequency: FrequencyWeekly, LastCreatedAt: ptr(at(2026, 2, 23, 23, 59))}, true},
		{"custom matching weekday", Definition{Frequency: FrequencyCustom, DaysOfWeek: []time.Weekday{time.Monday, time.Thursday}, LastCreatedAt: ptr(at(2026, 2, 26, 10, 0))}, true},
		{"custom other weekday", Definition{Frequency: FrequencyCustom, DaysOfWeek: []time.Weekday{time.Tuesday}, LastCreatedAt: ptr(at(2026, 2, 24, 10, 0))}, false},
		{"custom already created today", Definition{Frequency: FrequencyCustom, DaysOfWeek: []time.Weekday{time.Monday}, LastCreatedAt: ptr(at(2026, 3, 2, 0, 0))}, false},
		{"unknown frequency", Definition{Frequency: "hourly", LastCreatedAt: ptr(at(2026, 1, 1, 0, 0))}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.IsDue(now); got != tt.want {
				t.Errorf("IsDue = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDueOncePerDay(t *testing.T) {
	d := Definition{Frequency: FrequencyDaily, LastCreatedAt: ptr(at(2026, 3, 1, 23, 59))}
	now := at(2026, 3, 2, 0, 1)
	if !d.IsDue(now) {
		t.Fatal("expected due")
	}
	d.LastCreatedAt = ptr(now)
	if d.IsDue(now.Add(30 * time.Minute)) {
		t.Error("second tick on the same day must not be due")
	}
}

func TestNextScheduledAt(t *testing.T) {
	now := at(2026, 3, 2, 0, 1) // Monday

	tests := []struct {
		name string
		def  Definition
		want time.Time
	}{
		{"daily default time", Definition{Frequency: FrequencyDaily}, at(2026, 3, 3, 10, 0)},
		{"every other day preferred time", Definition{Frequency: FrequencyEveryOtherDay, PreferredTime: "08:30"}, at(2026, 3, 4, 8, 30)},
		{"weekly", Definition{Frequency: FrequencyWeekly, PreferredTime: "18:00"}, at(2026, 3, 9, 18, 0)},
		{"custom next weekday", Definition{Frequency: FrequencyCustom, DaysOfWeek: []time.Weekday{time.Monday, time.Friday}}, at(2026, 3, 6, 10, 0)},
		{"custom same weekday next week", Definition{Frequency: FrequencyCustom, DaysOfWeek: []time.Weekday{time.Monday}}, at(2026, 3, 9, 10, 0)},
		{"bad preferred time falls back", Definition{Frequency: FrequencyDaily, PreferredTime: "25:99"}, at(2026, 3, 3, 10, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.def.NextScheduledAt(now); !got.Equal(tt.want) {
				t.Errorf("NextScheduledAt = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInWindow(t *testing.T) {
	d := Definition{StartDate: at(2026, 3, 1, 0, 0), EndDate: ptr(at(2026, 3, 31, 0, 0))}
	if d.InWindow(at(2026, 2, 28, 12, 0)) {
		t.Error("before start")
	}
	if !d.InWindow(at(2026, 3, 15, 12, 0)) {
		t.Error("inside window")
	}
	if d.InWindow(at(2026, 4, 1, 0, 0)) {
		t.Error("after end")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     Definition
		wantErr bool
	}{
		{"ok", Definition{CustomerID: "u1", Frequency: FrequencyDaily, PreferredTime: "09:15"}, false},
		{"no customer", Definition{Frequency: FrequencyDaily}, true},
		{"bad frequency", Definition{CustomerID: "u1", Frequency: "monthly"}, true},
		{"custom without days", Definition{CustomerID: "u1", Frequency: FrequencyCustom}, true},
		{"weekday out of range", Definition{CustomerID: "u1", Frequency: FrequencyCustom, DaysOfWeek: []time.Weekday{9}}, true},
		{"bad clock", Definition{CustomerID: "u1", Frequency: FrequencyDaily, PreferredTime: "9am"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.def.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDaysBetween(t *testing.T) {
	if got := DaysBetween(at(2026, 3, 1, 23, 59), at(2026, 3, 2, 0, 1)); got != 1 {
		t.Errorf("got %d, want 1", got)
	}
	if got := DaysBetween(at(2026, 3, 2, 0, 0), at(2026, 3, 2, 23, 59)); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
	// Non-UTC inputs are compared on their UTC day.
	msk := time.FixedZone("MSK", 3*3600)
	if got := DaysBetween(time.Date(2026, 3, 2, 1, 0, 0, 0, msk), at(2026, 3, 1, 23, 0)); got != 0 {
		t.Errorf("got %d, want 0", got)
	}
}

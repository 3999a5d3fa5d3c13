package subscription

import (
	"testing"
	"time"
)

func TestEndDate(t *testing.T) {
	start := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		typ  Type
		want time.Time
	}{
		{TypeMonthly, start.AddDate(0, 1, 0)},
		{TypeOneTime, start.AddDate(0, 1, 0)},
		{TypeYearly, time.Date(2027, 1, 31, 9, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := tt.typ.EndDate(start); !got.Equal(tt.want) {
			t.Errorf("%s: got %v, want %v", tt.typ, got, tt.want)
		}
	}
}

func TestRemaining(t *testing.T) {
	tests := []struct {
		name        string
		limit, used int
		want        int
	}{
		{"fresh", 5, 0, 5},
		{"partly used", 5, 3, 2},
		{"exhausted", 5, 5, 0},
		{"over-used clamps", 5, 7, 0},
		{"unlimited", Unlimited, 40, Unlimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Subscription{OrdersLimit: tt.limit, UsedOrders: tt.used}
			if got := s.Remaining(); got != tt.want {
				t.Errorf("Remaining() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPastEnd(t *testing.T) {
	end := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	s := &Subscription{EndDate: &end}
	if s.PastEnd(end) {
		t.Error("end instant itself is not past the end")
	}
	if !s.PastEnd(end.Add(time.Second)) {
		t.Error("expected past end")
	}
	if (&Subscription{}).PastEnd(end) {
		t.Error("subscription without end date never runs out")
	}
}

func TestCloneDetachesDates(t *testing.T) {
	start := time.Now()
	s := &Subscription{StartDate: &start}
	c := s.Clone()
	*c.StartDate = start.Add(time.Hour)
	if !s.StartDate.Equal(start) {
		t.Error("clone shares start date")
	}
}

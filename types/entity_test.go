package types

import (
	"testing"
	"time"
)

func TestEntityTouch(t *testing.T) {
	created := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	e := NewEntityAt(created)

	moscow := time.FixedZone("MSK", 3*60*60)
	e.Touch(time.Date(2025, 3, 10, 18, 30, 0, 0, moscow))

	if !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed: %v", e.CreatedAt)
	}
	if e.UpdatedAt.Location() != time.UTC {
		t.Errorf("UpdatedAt not UTC: %v", e.UpdatedAt.Location())
	}
	if want := time.Date(2025, 3, 10, 15, 30, 0, 0, time.UTC); !e.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt: got %v, want %v", e.UpdatedAt, want)
	}
}

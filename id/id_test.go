package id_test

import (
	"strings"
	"testing"

	"github.com/cleanhouse123/orderflow/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
		prefix  string
	}{
		{"OrderID", id.NewOrderID, id.ParseOrderID, "ord_"},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID, "pay_"},
		{"SubscriptionID", id.NewSubscriptionID, id.ParseSubscriptionID, "sub_"},
		{"ScheduleID", id.NewScheduleID, id.ParseScheduleID, "sched_"},
		{"WebhookEventID", id.NewWebhookEventID, id.ParseWebhookEventID, "whk_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn()
			if !strings.HasPrefix(got.String(), tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got.String())
			}
			parsed, err := tt.parseFn(got.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != got.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), got.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseOrderID rejects pay_", id.NewPaymentID().String(), id.ParseOrderID},
		{"ParsePaymentID rejects ord_", id.NewOrderID().String(), id.ParsePaymentID},
		{"ParseSubscriptionID rejects sched_", id.NewScheduleID().String(), id.ParseSubscriptionID},
		{"ParseScheduleID rejects sub_", id.NewSubscriptionID().String(), id.ParseScheduleID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestParseOptional(t *testing.T) {
	got, err := id.ParseOptional("", id.PrefixOrder)
	if err != nil {
		t.Fatalf("ParseOptional(\"\") failed: %v", err)
	}
	if !got.IsNil() {
		t.Error("expected Nil for empty input")
	}

	if _, err := id.ParseOptional(id.NewPaymentID().String(), id.PrefixOrder); err == nil {
		t.Error("expected prefix mismatch error")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewSubscriptionID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if scanErr := scanned.Scan(val); scanErr != nil {
		t.Fatalf("Scan failed: %v", scanErr)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	var scanned2 id.ID
	if err := scanned2.Scan(nil); err != nil {
		t.Fatalf("Scan(nil) failed: %v", err)
	}
	if !scanned2.IsNil() {
		t.Error("expected nil after scan of nil")
	}
}

func TestUniqueness(t *testing.T) {
	a := id.NewOrderID()
	b := id.NewOrderID()
	if a.String() == b.String() {
		t.Errorf("two consecutive NewOrderID() calls returned the same ID: %q", a.String())
	}
}

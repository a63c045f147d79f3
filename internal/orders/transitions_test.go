package orders

import (
	"strings"
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		current, next string
		want          bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusApproved, true},
		{StatusPending, "in_process", true},
		{"in_process", StatusPending, true},
		{StatusPending, StatusPending, false},
		{StatusPaid, StatusApproved, false},
		{StatusApproved, StatusPaid, false},
		{StatusPaid, StatusPending, false},
		{StatusPaid, StatusShipped, true},
		{StatusShipped, StatusDelivered, true},
		{StatusDelivered, StatusShipped, false},
		{StatusShipped, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		{StatusCancelled, StatusPaid, true},
		{StatusCancelled, StatusApproved, true},
		{StatusCancelled, StatusPending, false},
		{StatusCancelled, StatusShipped, false},
		{StatusCancelled, StatusRefunded, false},
		{StatusPaid, StatusCancelled, true},
		{StatusRefunded, StatusCancelled, false},
		{StatusChargedBack, StatusPaid, false},
		{StatusPending, StatusRefunded, false},
		{StatusPaid, StatusRefunded, true},
		{StatusRefunded, StatusPaid, false},
		{StatusPending, "", false},
	}
	for _, tc := range cases {
		if got := CanTransition(tc.current, tc.next); got != tc.want {
			t.Errorf("CanTransition(%q, %q) = %v, want %v", tc.current, tc.next, got, tc.want)
		}
	}
}

func TestSubtotalAndRounding(t *testing.T) {
	items := []LineItem{
		{UnitPrice: 19.99, Quantity: 3},
		{UnitPrice: 0.1, Quantity: 1},
	}
	if got := Subtotal(items); got != 60.07 {
		t.Fatalf("expected 60.07, got %v", got)
	}
}

func TestNewOrderNumber_Unique(t *testing.T) {
	now := time.Now()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := NewOrderNumber(now)
		if !strings.HasPrefix(n, "ORD-") {
			t.Fatalf("unexpected prefix: %s", n)
		}
		if seen[n] {
			t.Fatalf("duplicate order number %s", n)
		}
		seen[n] = true
	}
}

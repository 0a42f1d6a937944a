package models

import (
	"testing"
)

func TestSizeMapClampTo(t *testing.T) {
	pending := SizeMap{"S": 5, "M": 3}

	delivered := SizeMap{"S": 8, "M": 2, "L": 4}.ClampTo(pending)

	if delivered["S"] != 5 {
		t.Errorf("S should clamp to pending 5, got %d", delivered["S"])
	}
	if delivered["M"] != 2 {
		t.Errorf("M should stay 2, got %d", delivered["M"])
	}
	if _, ok := delivered["L"]; ok {
		t.Errorf("L is not pending and must be dropped, got %v", delivered)
	}
}

func TestSizeMapClampToDropsNonPositive(t *testing.T) {
	pending := SizeMap{"S": 5, "M": 0}

	delivered := SizeMap{"S": 0, "M": 3}.ClampTo(pending)

	if !delivered.IsEmpty() {
		t.Errorf("zero and clamped-to-zero quantities must be dropped, got %v", delivered)
	}
}

func TestSizeMapSubtractPositive(t *testing.T) {
	ordered := SizeMap{"S": 10, "M": 4, "L": 2}
	delivered := SizeMap{"S": 4, "M": 4, "L": 5}

	remaining := ordered.SubtractPositive(delivered)

	if remaining["S"] != 6 {
		t.Errorf("S remaining = %d, want 6", remaining["S"])
	}
	if _, ok := remaining["M"]; ok {
		t.Errorf("fully delivered size must be omitted, got %v", remaining)
	}
	if _, ok := remaining["L"]; ok {
		t.Errorf("over-delivered size must be omitted, got %v", remaining)
	}
}

// Repeated partial deliveries must converge when the remainder is always
// re-derived as ordered minus the cumulative delivered total, even when some
// delivery requests over-ask and get clamped.
func TestRepeatedPartialDeliveriesConverge(t *testing.T) {
	ordered := SizeMap{"S": 10, "M": 6}
	pending := ordered.Clone()
	deliveredTotal := SizeMap{}

	requests := []SizeMap{
		{"S": 4},
		{"S": 9, "M": 2}, // S over-asks, clamps to 6
		{"M": 100},       // clamps to 4
	}

	for _, req := range requests {
		delivered := req.ClampTo(pending)
		deliveredTotal.Add(delivered)
		pending = ordered.SubtractPositive(deliveredTotal)
	}

	if !pending.IsEmpty() {
		t.Errorf("pending should be empty after full delivery, got %v", pending)
	}
	if deliveredTotal["S"] != 10 || deliveredTotal["M"] != 6 {
		t.Errorf("delivered totals must equal ordered quantities, got %v", deliveredTotal)
	}
}

func TestSizeMapAddAndTotal(t *testing.T) {
	m := SizeMap{"S": 1}
	m.Add(SizeMap{"S": 2, "M": 3})

	if m["S"] != 3 || m["M"] != 3 {
		t.Errorf("unexpected sum %v", m)
	}
	if m.Total() != 6 {
		t.Errorf("Total() = %d, want 6", m.Total())
	}
}

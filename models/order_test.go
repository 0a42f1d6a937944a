package models

import (
	"testing"
	"time"
)

func TestFinancialYearFor(t *testing.T) {
	cases := []struct {
		date string
		want string
	}{
		{"2025-04-01", "2025-26"},
		{"2025-07-15", "2025-26"},
		{"2026-02-01", "2025-26"},
		{"2026-03-31", "2025-26"},
		{"2026-04-01", "2026-27"},
		{"2025-01-01", "2024-25"},
		{"2099-05-01", "2099-00"},
	}
	for _, c := range cases {
		d, err := time.Parse("2006-01-02", c.date)
		if err != nil {
			t.Fatal(err)
		}
		if got := FinancialYearFor(d); got != c.want {
			t.Errorf("FinancialYearFor(%s) = %s, want %s", c.date, got, c.want)
		}
	}
}

func TestOrderKey(t *testing.T) {
	if OrderKey(7, "2025-26") != "7:2025-26" {
		t.Errorf("unexpected order key %q", OrderKey(7, "2025-26"))
	}
	if OrderKey(7, "2025-26") == OrderKey(7, "2026-27") {
		t.Error("same number in different financial years must not collide")
	}
}

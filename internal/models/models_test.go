package models

import (
	"testing"
	"time"
)

func TestOverlapsHalfOpen(t *testing.T) {
	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	hour := time.Hour
	cases := []struct {
		name         string
		aStart, aEnd time.Time
		bStart, bEnd time.Time
		want         bool
	}{
		{"identical", base, base.Add(hour), base, base.Add(hour), true},
		{"touching end to start", base, base.Add(hour), base.Add(hour), base.Add(2 * hour), false},
		{"partial", base, base.Add(hour), base.Add(30 * time.Minute), base.Add(2 * hour), true},
		{"contained", base, base.Add(3 * hour), base.Add(hour), base.Add(2 * hour), true},
		{"disjoint", base, base.Add(hour), base.Add(2 * hour), base.Add(3 * hour), false},
	}
	for _, tc := range cases {
		if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

package util

import (
	"testing"
	"time"
)

func TestParseWhen(t *testing.T) {
	// Tuesday 1 September 2026, 10:00 UTC.
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		input string
		want  time.Time
		ok    bool
	}{
		{"tomorrow 2pm", time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC), true},
		{"Tomorrow at 10:30", time.Date(2026, 9, 2, 10, 30, 0, 0, time.UTC), true},
		{"today", time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), true},
		{"friday 10:30", time.Date(2026, 9, 4, 10, 30, 0, 0, time.UTC), true},
		// Naming today's weekday means next week.
		{"tuesday", time.Date(2026, 9, 8, 9, 0, 0, 0, time.UTC), true},
		{"14:30", time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC), true},
		{"12am tomorrow", time.Date(2026, 9, 2, 0, 0, 0, 0, time.UTC), true},
		{"2026-09-05 13:00", time.Date(2026, 9, 5, 13, 0, 0, 0, time.UTC), true},
		{"2026-09-05", time.Date(2026, 9, 5, 0, 0, 0, 0, time.UTC), true},
		// A bare number is not a time.
		{"table for 2", time.Time{}, false},
		// An out-of-range clock is ignored; the day still parses.
		{"tomorrow 99:99", time.Date(2026, 9, 2, 9, 0, 0, 0, time.UTC), true},
		{"whenever suits", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseWhen(tt.input, now)
			if ok != tt.ok {
				t.Fatalf("ParseWhen(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseWhen(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseWhenKeepsLocation(t *testing.T) {
	loc := time.FixedZone("SAST", 2*60*60)
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, loc)

	got, ok := ParseWhen("tomorrow 2pm", now)
	if !ok {
		t.Fatal("expected input to parse")
	}
	if got.Location() != loc {
		t.Errorf("expected result in caller's location, got %v", got.Location())
	}
}

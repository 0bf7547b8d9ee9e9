package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/util"
)

var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

func TestSummarizeFullyOpenDay(t *testing.T) {
	got := Summarize(testNow, nil)
	want := "Tuesday 1 September is fully open between 09:00 and 17:00."
	if got != want {
		t.Errorf("Summarize = %q, want %q", got, want)
	}
}

func TestSummarizeClipsToBusinessWindow(t *testing.T) {
	busy := []BusyInterval{
		{Start: time.Date(2026, 9, 1, 16, 30, 0, 0, time.UTC), End: time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC)},
		{Start: time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC), End: time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)},
		// Entirely outside the window: dropped.
		{Start: time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC), End: time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC)},
	}
	got := Summarize(testNow, busy)
	if !strings.Contains(got, "09:00-10:00, 16:30-17:00") {
		t.Errorf("expected clipped, sorted intervals in summary, got %q", got)
	}
}

func TestStaticServiceFallsBackToToday(t *testing.T) {
	s := NewStaticService(fixedNow, util.ParseWhen)
	got, err := s.GetAvailability(context.Background(), "no idea honestly")
	if err != nil {
		t.Fatalf("GetAvailability failed: %v", err)
	}
	if !strings.Contains(got, "Tuesday 1 September") {
		t.Errorf("expected fallback to today's summary, got %q", got)
	}
}

func TestStaticServiceResolvesDescription(t *testing.T) {
	s := NewStaticService(fixedNow, util.ParseWhen)
	got, err := s.GetAvailability(context.Background(), "tomorrow")
	if err != nil {
		t.Fatalf("GetAvailability failed: %v", err)
	}
	if !strings.Contains(got, "Wednesday 2 September") {
		t.Errorf("expected tomorrow's summary, got %q", got)
	}
}

func TestStaticServiceCreateEventMarksBusy(t *testing.T) {
	s := NewStaticService(fixedNow, util.ParseWhen)
	at := time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC)

	result, err := s.CreateEvent(context.Background(), "Thabo", at, "27821234567")
	if err != nil {
		t.Fatalf("CreateEvent failed: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	got, err := s.GetAvailability(context.Background(), "tomorrow")
	if err != nil {
		t.Fatalf("GetAvailability failed: %v", err)
	}
	if !strings.Contains(got, "14:00-15:00") {
		t.Errorf("expected created event as a busy block, got %q", got)
	}
}

// Package calendar defines the calendar collaborator contract and the
// busy/free summary rendering for the fixed business-hours window.
//
// Provider implementations (Google Calendar etc.) live outside the core; the
// StaticService here backs tests and single-binary local runs.
package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Business window boundaries for availability summaries.
const (
	WindowStartHour = 9
	WindowEndHour   = 17
)

// Service is the narrow contract the booking orchestrator calls through.
type Service interface {
	// GetAvailability returns a human-readable busy/free summary for a
	// free-text date description (including "today"/"tomorrow").
	GetAvailability(ctx context.Context, dateDescription string) (string, error)

	// CreateEvent creates a calendar event for an approved booking.
	CreateEvent(ctx context.Context, name string, at time.Time, phone string) (EventResult, error)
}

// EventResult reports the outcome of event creation.
type EventResult struct {
	Success bool   `json:"success"`
	Link    string `json:"link,omitempty"`
	Error   string `json:"error,omitempty"`
}

// BusyInterval is an occupied block on a calendar day.
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// Summarize renders the 09:00-17:00 window for the given day as text the LLM
// can relay to a customer. Busy intervals outside the window are clipped.
func Summarize(day time.Time, busy []BusyInterval) string {
	windowStart := time.Date(day.Year(), day.Month(), day.Day(), WindowStartHour, 0, 0, 0, day.Location())
	windowEnd := time.Date(day.Year(), day.Month(), day.Day(), WindowEndHour, 0, 0, 0, day.Location())

	var clipped []BusyInterval
	for _, b := range busy {
		start, end := b.Start, b.End
		if end.Before(windowStart) || start.After(windowEnd) {
			continue
		}
		if start.Before(windowStart) {
			start = windowStart
		}
		if end.After(windowEnd) {
			end = windowEnd
		}
		clipped = append(clipped, BusyInterval{Start: start, End: end})
	}

	dayLabel := day.Format("Monday 2 January")
	if len(clipped) == 0 {
		return fmt.Sprintf("%s is fully open between 09:00 and 17:00.", dayLabel)
	}

	sort.Slice(clipped, func(i, j int) bool { return clipped[i].Start.Before(clipped[j].Start) })

	var parts []string
	for _, b := range clipped {
		parts = append(parts, fmt.Sprintf("%s-%s", b.Start.Format("15:04"), b.End.Format("15:04")))
	}
	return fmt.Sprintf("%s has bookings at %s; other times between 09:00 and 17:00 are open.",
		dayLabel, strings.Join(parts, ", "))
}

// StaticService is an in-memory calendar used in tests and local runs. Events
// created through it become busy intervals of a fixed default duration.
type StaticService struct {
	mu            sync.Mutex
	busy          map[string][]BusyInterval // keyed by YYYY-MM-DD
	eventDuration time.Duration
	now           func() time.Time
	parse         func(string, time.Time) (time.Time, bool)
}

// NewStaticService creates an empty static calendar. parse resolves free-text
// date descriptions relative to now (wired to util.ParseWhen in production).
func NewStaticService(now func() time.Time, parse func(string, time.Time) (time.Time, bool)) *StaticService {
	return &StaticService{
		busy:          make(map[string][]BusyInterval),
		eventDuration: time.Hour,
		now:           now,
		parse:         parse,
	}
}

// AddBusy marks an interval busy (test setup helper).
func (s *StaticService) AddBusy(interval BusyInterval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := interval.Start.Format("2006-01-02")
	s.busy[key] = append(s.busy[key], interval)
}

// GetAvailability resolves the description to a day and summarizes it.
// An unparseable description falls back to today.
func (s *StaticService) GetAvailability(ctx context.Context, dateDescription string) (string, error) {
	now := s.now()
	day, ok := s.parse(dateDescription, now)
	if !ok {
		day = now
	}

	s.mu.Lock()
	busy := append([]BusyInterval(nil), s.busy[day.Format("2006-01-02")]...)
	s.mu.Unlock()

	return Summarize(day, busy), nil
}

// CreateEvent records the event as a busy interval and reports success.
func (s *StaticService) CreateEvent(ctx context.Context, name string, at time.Time, phone string) (EventResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := at.Format("2006-01-02")
	s.busy[key] = append(s.busy[key], BusyInterval{Start: at, End: at.Add(s.eventDuration)})
	return EventResult{Success: true}, nil
}

// Package util provides best-effort natural date/time parsing for booking requests.
package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// absoluteLayouts are tried in order against the raw input.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
	"02/01/2006 15:04",
	"02/01/2006",
	"January 2 2006 15:04",
	"January 2 2006",
	"Jan 2 2006",
	"2 January 2006",
}

var clockRegex = regexp.MustCompile(`(?i)\b([0-9]{1,2})(?::([0-9]{2}))?\s*(am|pm)?\b`)

// ParseWhen parses a free-text date/time description ("tomorrow 10am", "today",
// "2025-03-01 14:30") relative to now. The second return value reports whether
// the input was understood; callers decide the fallback policy.
func ParseWhen(input string, now time.Time) (time.Time, bool) {
	text := strings.TrimSpace(input)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, true
		}
	}

	lower := strings.ToLower(text)
	base := now
	matchedDay := false
	switch {
	case strings.Contains(lower, "tomorrow"):
		base = now.AddDate(0, 0, 1)
		matchedDay = true
	case strings.Contains(lower, "today"):
		matchedDay = true
	default:
		if wd, ok := matchWeekday(lower); ok {
			days := (int(wd) - int(now.Weekday()) + 7) % 7
			if days == 0 {
				days = 7 // "monday" on a Monday means next week
			}
			base = now.AddDate(0, 0, days)
			matchedDay = true
		}
	}

	hour, minute, matchedTime := matchClock(lower)
	if !matchedDay && !matchedTime {
		return time.Time{}, false
	}
	if !matchedTime {
		// Day-only input defaults to the start of the business window.
		hour, minute = 9, 0
	}

	return time.Date(base.Year(), base.Month(), base.Day(), hour, minute, 0, 0, now.Location()), true
}

func matchWeekday(lower string) (time.Weekday, bool) {
	weekdays := map[string]time.Weekday{
		"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
		"wednesday": time.Wednesday, "thursday": time.Thursday,
		"friday": time.Friday, "saturday": time.Saturday,
	}
	for name, wd := range weekdays {
		if strings.Contains(lower, name) {
			return wd, true
		}
	}
	return 0, false
}

func matchClock(lower string) (hour, minute int, ok bool) {
	m := clockRegex.FindStringSubmatch(lower)
	if m == nil {
		return 0, 0, false
	}
	// A bare number with no minutes and no am/pm marker is too ambiguous to
	// treat as a time ("table for 2").
	if m[2] == "" && m[3] == "" {
		return 0, 0, false
	}
	hour, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		minute, _ = strconv.Atoi(m[2])
	}
	if hour > 23 || minute > 59 {
		return 0, 0, false
	}
	switch strings.ToLower(m[3]) {
	case "pm":
		if hour < 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}
	return hour, minute, true
}

package flow

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/calendar"
	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/util"
)

// failingCalendar always errors, for degradation tests.
type failingCalendar struct{}

func (failingCalendar) GetAvailability(ctx context.Context, dateDescription string) (string, error) {
	return "", errors.New("calendar offline")
}

func (failingCalendar) CreateEvent(ctx context.Context, name string, at time.Time, phone string) (calendar.EventResult, error) {
	return calendar.EventResult{}, errors.New("calendar offline")
}

func TestAvailabilityToolSummarizesDay(t *testing.T) {
	cal := calendar.NewStaticService(fixedNow, util.ParseWhen)
	cal.AddBusy(calendar.BusyInterval{
		Start: time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 9, 2, 15, 0, 0, 0, time.UTC),
	})
	tool := NewAvailabilityTool(cal)

	summary := tool.ExecuteCheckAvailability(context.Background(), &models.AvailabilityToolParams{Date: "tomorrow"})
	if !strings.Contains(summary, "14:00-15:00") {
		t.Errorf("expected busy block in summary, got %q", summary)
	}
	if !strings.Contains(summary, "Wednesday 2 September") {
		t.Errorf("expected day label in summary, got %q", summary)
	}
}

func TestAvailabilityToolDegradesOnCalendarFailure(t *testing.T) {
	tool := NewAvailabilityTool(failingCalendar{})

	summary := tool.ExecuteCheckAvailability(context.Background(), &models.AvailabilityToolParams{Date: "tomorrow"})
	if summary != availabilityErrorResult {
		t.Errorf("expected fixed error result, got %q", summary)
	}
}

func TestAvailabilityToolDefinition(t *testing.T) {
	cal := calendar.NewStaticService(fixedNow, util.ParseWhen)
	def := NewAvailabilityTool(cal).GetToolDefinition()
	if def.Function.Name != string(models.ToolTypeCheckAvailability) {
		t.Errorf("expected tool name %q, got %q", models.ToolTypeCheckAvailability, def.Function.Name)
	}
}

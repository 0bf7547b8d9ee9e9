package flow

import (
	"context"
	"log/slog"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/heykaelo/heykaelo-backend/internal/calendar"
	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// availabilityErrorResult is relayed to the model when the calendar lookup
// fails; the model paraphrases it for the customer.
const availabilityErrorResult = "Availability could not be checked right now. Suggest the customer picks a time and the business will confirm."

// AvailabilityTool lets the model query calendar availability for a day
// described in free text.
type AvailabilityTool struct {
	calendar calendar.Service
}

// NewAvailabilityTool creates the availability tool over a calendar service.
func NewAvailabilityTool(cal calendar.Service) *AvailabilityTool {
	return &AvailabilityTool{calendar: cal}
}

// GetToolDefinition returns the OpenAI tool definition for checking availability.
func (at *AvailabilityTool) GetToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolTypeCheckAvailability),
			Description: openai.String("Check which appointment times are open on a given day. Call this before suggesting times to a customer."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"date": map[string]interface{}{
						"type":        "string",
						"description": "The day to check, as the customer described it (e.g. 'tomorrow', 'Friday', '2026-09-04')",
					},
				},
				"required": []string{"date"},
			},
		},
	}
}

// ExecuteCheckAvailability runs the tool call and returns the busy/free
// summary text. Failures degrade to a fixed result string so the model always
// has something to relay.
func (at *AvailabilityTool) ExecuteCheckAvailability(ctx context.Context, params *models.AvailabilityToolParams) string {
	summary, err := at.calendar.GetAvailability(ctx, params.Date)
	if err != nil {
		slog.Error("AvailabilityTool.ExecuteCheckAvailability failed", "error", err, "date", params.Date)
		return availabilityErrorResult
	}
	slog.Debug("AvailabilityTool.ExecuteCheckAvailability succeeded", "date", params.Date)
	return summary
}

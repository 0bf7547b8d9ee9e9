package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// BookingTool lets the model file a pending booking request once it has
// collected the customer's name, phone, and preferred time.
type BookingTool struct {
	repo  BookingRepository
	now   func() time.Time
	parse func(string, time.Time) (time.Time, bool)
}

// NewBookingTool creates the booking tool. parse resolves free-text datetimes
// relative to now (wired to util.ParseWhen in production).
func NewBookingTool(repo BookingRepository, now func() time.Time, parse func(string, time.Time) (time.Time, bool)) *BookingTool {
	return &BookingTool{repo: repo, now: now, parse: parse}
}

// GetToolDefinition returns the OpenAI tool definition for creating a booking request.
func (bt *BookingTool) GetToolDefinition() openai.ChatCompletionToolParam {
	return openai.ChatCompletionToolParam{
		Type: "function",
		Function: shared.FunctionDefinitionParam{
			Name:        string(models.ToolTypeCreateBooking),
			Description: openai.String("Create a pending appointment request once the customer has confirmed their name, phone number, and preferred date and time. The business owner approves or declines it afterwards."),
			Parameters: shared.FunctionParameters{
				"type": "object",
				"properties": map[string]interface{}{
					"name": map[string]interface{}{
						"type":        "string",
						"description": "The customer's full name",
					},
					"datetime": map[string]interface{}{
						"type":        "string",
						"description": "The requested appointment date and time as the customer described it (e.g. 'tomorrow 2pm', 'Friday at 10:30')",
					},
					"phone": map[string]interface{}{
						"type":        "string",
						"description": "The customer's phone number",
					},
				},
				"required": []string{"name", "datetime", "phone"},
			},
		},
	}
}

// ExecuteCreateBooking runs the tool call: it resolves the customer record for
// the business, parses the requested time (falling back to now when the text
// is unparseable, so the request is still filed for the owner to sort out),
// and creates a pending booking. The result is returned to the model as data,
// never as a raw error.
func (bt *BookingTool) ExecuteCreateBooking(ctx context.Context, businessID string, params *models.BookingToolParams) models.BookingToolResult {
	requestedAt, parsed := bt.parse(params.Datetime, bt.now())
	if !parsed {
		slog.Warn("BookingTool.ExecuteCreateBooking: unparseable datetime, using current time",
			"datetime", params.Datetime, "businessID", businessID)
		requestedAt = bt.now()
	}

	customer, err := bt.repo.FindOrCreateCustomer(businessID, params.Name, params.Phone)
	if err != nil {
		slog.Error("BookingTool.ExecuteCreateBooking: customer lookup failed", "error", err, "businessID", businessID)
		return models.BookingToolResult{
			Name:   params.Name,
			Phone:  params.Phone,
			Status: "error",
			Error:  "could not save the customer record",
		}
	}

	now := bt.now()
	booking := models.BookingRequest{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		CustomerID:  customer.ID,
		Name:        params.Name,
		PhoneNumber: params.Phone,
		RequestedAt: requestedAt,
		Status:      models.BookingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := bt.repo.CreateBooking(booking); err != nil {
		slog.Error("BookingTool.ExecuteCreateBooking: create failed", "error", err, "businessID", businessID)
		return models.BookingToolResult{
			Name:   params.Name,
			Phone:  params.Phone,
			Status: "error",
			Error:  "could not file the booking request",
		}
	}

	slog.Info("BookingTool.ExecuteCreateBooking: booking filed", "bookingID", booking.ID,
		"businessID", businessID, "requestedAt", requestedAt)
	return models.BookingToolResult{
		ID:       booking.ID,
		Name:     booking.Name,
		Datetime: requestedAt.Format(time.RFC3339),
		Phone:    booking.PhoneNumber,
		Status:   string(models.BookingStatusPending),
	}
}

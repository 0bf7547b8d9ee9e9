// Package models defines tool structures for LLM function calling.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ToolType defines the type of tool available to the LLM.
type ToolType string

const (
	// ToolTypeCheckAvailability lets the LLM query calendar availability.
	ToolTypeCheckAvailability ToolType = "check_availability"
	// ToolTypeCreateBooking lets the LLM file a pending booking request.
	ToolTypeCreateBooking ToolType = "create_booking_request"
)

// AvailabilityToolParams defines the parameters for the check_availability tool call.
type AvailabilityToolParams struct {
	Date string `json:"date"` // free-text date description, e.g. "tomorrow"
}

// Validate ensures the availability tool parameters are valid.
func (p *AvailabilityToolParams) Validate() error {
	if strings.TrimSpace(p.Date) == "" {
		return fmt.Errorf("date is required")
	}
	return nil
}

// BookingToolParams defines the parameters for the create_booking_request tool call.
type BookingToolParams struct {
	Name     string `json:"name"`
	Datetime string `json:"datetime"` // free-text requested date/time
	Phone    string `json:"phone"`
}

// Validate ensures the booking tool parameters are valid.
func (p *BookingToolParams) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if strings.TrimSpace(p.Phone) == "" {
		return fmt.Errorf("phone is required")
	}
	return nil
}

// ToolCall represents an LLM tool function call.
type ToolCall struct {
	ID       string       `json:"id"`       // Tool call ID from OpenAI
	Type     string       `json:"type"`     // Always "function" for OpenAI
	Function FunctionCall `json:"function"` // Function details
}

// FunctionCall represents the function details within a tool call.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ParseAvailabilityParams parses the arguments as AvailabilityToolParams.
func (fc *FunctionCall) ParseAvailabilityParams() (*AvailabilityToolParams, error) {
	if fc.Name != string(ToolTypeCheckAvailability) {
		return nil, fmt.Errorf("function name %s is not an availability function", fc.Name)
	}
	var params AvailabilityToolParams
	if err := json.Unmarshal(fc.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse availability parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid availability parameters: %w", err)
	}
	return &params, nil
}

// ParseBookingParams parses the arguments as BookingToolParams.
func (fc *FunctionCall) ParseBookingParams() (*BookingToolParams, error) {
	if fc.Name != string(ToolTypeCreateBooking) {
		return nil, fmt.Errorf("function name %s is not a booking function", fc.Name)
	}
	var params BookingToolParams
	if err := json.Unmarshal(fc.Arguments, &params); err != nil {
		return nil, fmt.Errorf("failed to parse booking parameters: %w", err)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("invalid booking parameters: %w", err)
	}
	return &params, nil
}

// BookingToolResult is the normalized projection returned to the LLM after a
// booking request is created.
type BookingToolResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Datetime string `json:"datetime"`
	Phone    string `json:"phone"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// Package models defines the core data structures for HeyKaelo.
//
// It includes the business, customer, and booking records shared across modules,
// plus the inbound/outbound message types used by the transport layer.
package models

import (
	"errors"
	"time"
)

// RoleCategory classifies how a business takes appointments.
type RoleCategory string

const (
	// RoleProfessional is a fixed-location business with set appointment slots.
	RoleProfessional RoleCategory = "professional"
	// RoleTradesperson is a mobile business that travels to the customer.
	RoleTradesperson RoleCategory = "tradesperson"
	// RoleHybrid mixes fixed appointments and call-outs.
	RoleHybrid RoleCategory = "hybrid"
)

// IsValidRoleCategory checks if the given role category is supported.
func IsValidRoleCategory(rc RoleCategory) bool {
	switch rc {
	case RoleProfessional, RoleTradesperson, RoleHybrid:
		return true
	default:
		return false
	}
}

// BookingStatus represents the lifecycle state of a booking request.
type BookingStatus string

const (
	// BookingStatusPending indicates the booking awaits owner action.
	BookingStatusPending BookingStatus = "pending"
	// BookingStatusApproved indicates the owner accepted the booking.
	BookingStatusApproved BookingStatus = "approved"
	// BookingStatusRejected indicates the owner declined the booking.
	BookingStatusRejected BookingStatus = "rejected"
)

// IsValidBookingStatus checks if the given booking status is supported.
func IsValidBookingStatus(bs BookingStatus) bool {
	switch bs {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxMessageBodyLength defines the maximum accepted inbound message length
	MaxMessageBodyLength = 4096
	// MaxBusinessNameLength defines the maximum allowed business name length
	MaxBusinessNameLength = 200
)

// Error variables for better error handling and testability
var (
	ErrEmptyRecipient       = errors.New("recipient cannot be empty")
	ErrEmptyBody            = errors.New("message body cannot be empty")
	ErrBodyTooLong          = errors.New("message body exceeds maximum length")
	ErrEmptyBusinessName    = errors.New("business name cannot be empty")
	ErrBusinessNotFound     = errors.New("no business configured")
	ErrBookingNotFound      = errors.New("booking not found")
	ErrInvalidRole          = errors.New("invalid role category")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
)

// BusinessProfile is the durable record created when onboarding finalizes.
// ID doubles as the owner's auth identity; Slug is the public URL handle.
type BusinessProfile struct {
	ID               string       `json:"id"`
	PhoneNumber      string       `json:"phone_number"`
	BusinessName     string       `json:"business_name"`
	Slug             string       `json:"slug"`
	RoleCategory     RoleCategory `json:"role_category"`
	RoleType         string       `json:"role_type,omitempty"`
	ServiceArea      string       `json:"service_area,omitempty"`
	WorkingDays      string       `json:"working_days,omitempty"`
	ApprovalRequired bool         `json:"approval_required"`
	KnowledgeBase    string       `json:"knowledge_base,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// Validate performs basic validation on a BusinessProfile.
func (b *BusinessProfile) Validate() error {
	if b.BusinessName == "" {
		return ErrEmptyBusinessName
	}
	if len(b.BusinessName) > MaxBusinessNameLength {
		return errors.New("business name exceeds maximum length")
	}
	if !IsValidRoleCategory(b.RoleCategory) {
		return ErrInvalidRole
	}
	return nil
}

// Customer is a booking customer scoped to one business, unique on (business, phone).
type Customer struct {
	ID          string    `json:"id"`
	BusinessID  string    `json:"business_id"`
	PhoneNumber string    `json:"phone_number"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// BookingRequest is a customer-initiated appointment request.
type BookingRequest struct {
	ID          string        `json:"id"`
	BusinessID  string        `json:"business_id"`
	CustomerID  string        `json:"customer_id"`
	Name        string        `json:"name"`
	PhoneNumber string        `json:"phone_number"`
	RequestedAt time.Time     `json:"requested_at"` // requested appointment time
	Status      BookingStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// User is an auth identity for a business owner, keyed by phone number.
type User struct {
	ID          string    `json:"id"`
	PhoneNumber string    `json:"phone_number"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// MessageStatus represents the delivery status of a message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt represents a delivery/read receipt for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// Response represents an inbound participant message from the transport layer.
// MediaURL is set when the message carried an attachment (e.g. a signature photo).
type Response struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	MediaURL string `json:"media_url,omitempty"`
	Time     int64  `json:"time"`
}

// Validate performs basic validation on an inbound response.
func (r *Response) Validate() error {
	if r.From == "" {
		return ErrEmptyRecipient
	}
	if r.Body == "" && r.MediaURL == "" {
		return ErrEmptyBody
	}
	if len(r.Body) > MaxMessageBodyLength {
		return ErrBodyTooLong
	}
	return nil
}

// APIStatus values used in HTTP response envelopes.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// APIResponse is the standard JSON envelope returned by HTTP handlers.
type APIResponse struct {
	Status string      `json:"status"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Success builds a success envelope with an optional result payload.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: StatusOK, Result: result}
}

// Error builds an error envelope with the given message.
func Error(message string) APIResponse {
	return APIResponse{Status: StatusError, Error: message}
}

// Package flow implements the HeyKaelo conversational flow engines: business
// onboarding, customer registration, and the LLM-backed booking conversation,
// composed by the Dispatcher.
package flow

import (
	"context"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/session"
)

// SessionManager defines the session persistence operations the flow engines
// depend on. Implemented by session.Manager.
type SessionManager interface {
	// Get retrieves the session for a phone number, or nil if none exists.
	Get(ctx context.Context, phone string) (*models.Session, error)

	// GetOrCreate retrieves the session, creating one on first contact.
	GetOrCreate(ctx context.Context, phone string) (*models.Session, error)

	// Upsert merges a patch into the session, reading before merging.
	Upsert(ctx context.Context, phone string, patch session.Patch) (*models.Session, error)

	// Reset deletes the session record (administrative).
	Reset(ctx context.Context, phone string) error
}

// Directory defines the identity/profile operations onboarding finalize uses.
// Implemented by store backends.
type Directory interface {
	CreateUser(user models.User) error
	FindUserByPhoneOrEmail(phone, email string) (*models.User, error)
	UpsertBusiness(profile models.BusinessProfile) error
	UpdateBusinessByPhone(phone string, profile models.BusinessProfile) error
}

// BookingRepository defines the datastore operations the booking tools use.
// Implemented by store backends.
type BookingRepository interface {
	ListBusinesses() ([]models.BusinessProfile, error)
	FindOrCreateCustomer(businessID, name, phone string) (*models.Customer, error)
	CreateBooking(booking models.BookingRequest) error
	GetBooking(id string) (*models.BookingRequest, error)
	GetLatestBookingByPhone(phone string) (*models.BookingRequest, error)
}

// User-facing degradation strings. All internal faults surface as one of
// these; raw errors never cross the webhook boundary.
const (
	// ReplyModelUnavailable is returned when the model call fails outright.
	ReplyModelUnavailable = "Sorry, I'm having trouble responding right now. Please try again in a moment."
	// ReplyModelBusy is returned on quota/rate-limit failures.
	ReplyModelBusy = "I'm receiving a lot of messages right now. Please try again in a minute."
	// ReplyUnknownTransition is returned when a flow reaches an unrecognized step.
	ReplyUnknownTransition = "Sorry, something went wrong on our side. Please type 'setup' to start again, or contact support."
	// ReplyToolLoopExceeded is returned when the tool loop hits its round cap.
	ReplyToolLoopExceeded = "I've noted your request, but I couldn't finish processing it. Could you rephrase or try again?"
)

// Package models defines the conversation session record and its mode union.
package models

import "time"

// Metadata keys used by the flow engines. The metadata bag is intentionally
// open-ended: flows own their keys and must clean them up on finalize.
const (
	// MetaOnboardingActive marks an onboarding flow in progress.
	MetaOnboardingActive = "onboarding_active"
	// MetaOnboardingStep holds the current onboarding step id.
	MetaOnboardingStep = "onboarding_step"
	// MetaOnboardingData holds the accumulated onboarding answers (JSON object).
	MetaOnboardingData = "onboarding_data"

	// MetaRegistrationActive marks a registration flow in progress.
	MetaRegistrationActive = "registration_active"
	// MetaRegistrationStep holds the current registration step id.
	MetaRegistrationStep = "reg_step"
	// MetaRegistrationPrevStep holds the step whose answer the next message carries.
	MetaRegistrationPrevStep = "prev_step"
	// MetaRegistrationBookingID ties the registration to a booking.
	MetaRegistrationBookingID = "reg_booking_id"
	// MetaRegistrationData holds the accumulated registration answers (JSON object).
	MetaRegistrationData = "registration_data"
	// MetaRegistrationComplete marks a finished registration.
	MetaRegistrationComplete = "registration_complete"
	// MetaLastRegistrationData holds the snapshot committed at finalize.
	MetaLastRegistrationData = "last_registration_data"
)

// DefaultIntent is the intent tag assigned to new sessions.
const DefaultIntent = "general"

// Session is the per-phone-number persisted conversational state record.
// Metadata values are JSON-encoded strings; flags use "true"/"false".
type Session struct {
	PhoneNumber string            `json:"phone_number"`
	BusinessID  string            `json:"business_id,omitempty"`
	Intent      string            `json:"intent"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// SessionModeKind discriminates which flow, if any, owns the session.
type SessionModeKind string

const (
	// ModeIdle means no flow is active; booking conversation is the default.
	ModeIdle SessionModeKind = "idle"
	// ModeOnboarding means the business-setup questionnaire owns the session.
	ModeOnboarding SessionModeKind = "onboarding"
	// ModeRegistration means the customer intake sequence owns the session.
	ModeRegistration SessionModeKind = "registration"
)

// SessionMode is the tagged union derived from the metadata flag keys. At most
// one flow is active at a time; onboarding wins if both flags are somehow set,
// matching dispatcher routing order.
type SessionMode struct {
	Kind      SessionModeKind
	Step      string // onboarding or registration step id
	PrevStep  string // registration only
	BookingID string // registration only
}

// Mode derives the active flow from the session's metadata flags.
func (s *Session) Mode() SessionMode {
	if s == nil || s.Metadata == nil {
		return SessionMode{Kind: ModeIdle}
	}
	if s.Metadata[MetaOnboardingActive] == "true" {
		return SessionMode{
			Kind: ModeOnboarding,
			Step: s.Metadata[MetaOnboardingStep],
		}
	}
	if s.Metadata[MetaRegistrationActive] == "true" {
		return SessionMode{
			Kind:      ModeRegistration,
			Step:      s.Metadata[MetaRegistrationStep],
			PrevStep:  s.Metadata[MetaRegistrationPrevStep],
			BookingID: s.Metadata[MetaRegistrationBookingID],
		}
	}
	return SessionMode{Kind: ModeIdle}
}

// MetaValue returns the metadata value for key, or empty string.
func (s *Session) MetaValue(key string) string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

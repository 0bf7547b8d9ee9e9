package flow

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// Owner/customer commands recognized while no flow is active.
const (
	commandSetup    = "setup"
	commandRegister = "register"
)

// replyNoBookingToRegister is returned for "register" with no booking on file.
const replyNoBookingToRegister = "I couldn't find a booking for this number yet. Once your appointment is requested, I'll help you register."

// Dispatcher routes each inbound message to the flow that owns the session.
// Messages for the same phone number are serialized through a per-phone lock;
// different phones process fully in parallel.
type Dispatcher struct {
	sessions     SessionManager
	onboarding   *OnboardingFlow
	registration *RegistrationFlow
	booking      *BookingConversation
	bookings     BookingRepository

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDispatcher creates the message dispatcher.
func NewDispatcher(sessions SessionManager, onboarding *OnboardingFlow, registration *RegistrationFlow, booking *BookingConversation, bookings BookingRepository) *Dispatcher {
	slog.Debug("flow.NewDispatcher: creating dispatcher",
		"hasOnboarding", onboarding != nil, "hasRegistration", registration != nil, "hasBooking", booking != nil)
	return &Dispatcher{
		sessions:     sessions,
		onboarding:   onboarding,
		registration: registration,
		booking:      booking,
		bookings:     bookings,
		locks:        make(map[string]*sync.Mutex),
	}
}

// HandleMessage processes one inbound message and returns the reply to relay.
// It always returns a non-empty string; internal faults degrade to fixed
// apologies rather than propagating to the transport.
func (d *Dispatcher) HandleMessage(ctx context.Context, from, body, mediaURL string) string {
	lock := d.lockFor(from)
	lock.Lock()
	defer lock.Unlock()

	sess, err := d.sessions.GetOrCreate(ctx, from)
	if err != nil {
		slog.Error("Dispatcher.HandleMessage: session load failed", "error", err, "from", from)
		return ReplyModelUnavailable
	}

	mode := sess.Mode()
	slog.Debug("Dispatcher.HandleMessage: routing", "from", from, "mode", mode.Kind, "step", mode.Step)

	switch mode.Kind {
	case models.ModeOnboarding:
		reply, err := d.onboarding.Advance(ctx, from, body, sess)
		if err != nil {
			slog.Error("Dispatcher.HandleMessage: onboarding failed", "error", err, "from", from)
			return ReplyModelUnavailable
		}
		return reply

	case models.ModeRegistration:
		reply, handled, err := d.registration.Advance(ctx, from, body, mediaURL, sess)
		if err != nil {
			slog.Error("Dispatcher.HandleMessage: registration failed", "error", err, "from", from)
			return ReplyModelUnavailable
		}
		if handled {
			return reply
		}
		// Registration flagged active but carries no recognized step; fall
		// through to the default conversation.
		return d.handleIdle(ctx, from, body)

	default:
		return d.handleIdle(ctx, from, body)
	}
}

// handleIdle routes a message with no active flow: command keywords start a
// flow, anything else goes to the booking conversation.
func (d *Dispatcher) handleIdle(ctx context.Context, from, body string) string {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case commandSetup:
		reply, err := d.onboarding.Start(ctx, from)
		if err != nil {
			slog.Error("Dispatcher.handleIdle: onboarding start failed", "error", err, "from", from)
			return ReplyModelUnavailable
		}
		return reply

	case commandRegister:
		return d.startRegistration(ctx, from)

	default:
		reply, err := d.booking.HandleMessage(ctx, from, body)
		if err != nil {
			slog.Error("Dispatcher.handleIdle: booking conversation failed", "error", err, "from", from)
			return ReplyModelUnavailable
		}
		return reply
	}
}

// startRegistration ties a new registration to the customer's latest booking.
func (d *Dispatcher) startRegistration(ctx context.Context, from string) string {
	booking, err := d.bookings.GetLatestBookingByPhone(from)
	if err != nil {
		slog.Error("Dispatcher.startRegistration: booking lookup failed", "error", err, "from", from)
		return ReplyModelUnavailable
	}
	if booking == nil {
		return replyNoBookingToRegister
	}

	reply, err := d.registration.Start(ctx, from, booking.ID)
	if err != nil {
		slog.Error("Dispatcher.startRegistration: start failed", "error", err, "from", from)
		return ReplyModelUnavailable
	}
	return reply
}

// ResetSession clears all conversational state for a phone: the persisted
// session record and the cached chat transcript. Administrative use only.
func (d *Dispatcher) ResetSession(ctx context.Context, phone string) error {
	lock := d.lockFor(phone)
	lock.Lock()
	defer lock.Unlock()

	if err := d.sessions.Reset(ctx, phone); err != nil {
		return err
	}
	d.booking.Forget(phone)
	return nil
}

// lockFor returns the serialization lock for a phone number.
func (d *Dispatcher) lockFor(phone string) *sync.Mutex {
	d.mu.Lock()
	defer d.mu.Unlock()
	lock, ok := d.locks[phone]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[phone] = lock
	}
	return lock
}

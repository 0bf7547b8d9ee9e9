// Package messaging provides pluggable WhatsApp message delivery for HeyKaelo.
//
// Two transports implement the same Service contract: a Twilio-backed service
// fed by inbound webhooks, and a Whatsmeow-backed service with a live socket.
package messaging

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// Channel tuning shared by the transport implementations.
const (
	// DefaultChannelBufferSize buffers receipt and response events.
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout bounds non-blocking channel emits.
	DefaultChannelTimeout = 1 * time.Second
)

// ErrServiceStopped is returned for sends after Stop.
var ErrServiceStopped = errors.New("messaging service stopped")

// phoneNumberRegex strips everything that is not a digit.
var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// Service defines a pluggable message delivery abstraction. It supports
// sending messages and provides channels for receipt and response events.
type Service interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient
	// identifier according to the transport's rules.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendMessage sends a message to a recipient.
	SendMessage(ctx context.Context, to string, body string) error

	// Start begins any background processing (e.g., polling for events).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Receipts returns a channel of receipt events (sent, delivered, read).
	Receipts() <-chan models.Receipt

	// Responses returns a channel of incoming customer/owner messages.
	Responses() <-chan models.Response
}

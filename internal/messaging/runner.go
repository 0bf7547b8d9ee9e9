package messaging

import (
	"context"
	"log/slog"
)

// MessageHandler processes one inbound message and returns the reply to send.
// Implemented by the flow dispatcher.
type MessageHandler interface {
	HandleMessage(ctx context.Context, from, body, mediaURL string) string
}

// ResponseRunner pumps inbound responses from a Service into a MessageHandler
// and sends each reply back over the same transport. Receipts are drained and
// logged so the transport channels never back up.
type ResponseRunner struct {
	service Service
	handler MessageHandler
}

// NewResponseRunner creates a runner over the given transport and handler.
func NewResponseRunner(service Service, handler MessageHandler) *ResponseRunner {
	return &ResponseRunner{service: service, handler: handler}
}

// Run consumes responses and receipts until the context is cancelled. Each
// response is handled in its own goroutine; per-phone ordering is enforced by
// the dispatcher's locks, not here.
func (r *ResponseRunner) Run(ctx context.Context) {
	slog.Info("ResponseRunner.Run: starting")
	for {
		select {
		case <-ctx.Done():
			slog.Info("ResponseRunner.Run: stopping", "reason", ctx.Err())
			return

		case receipt, ok := <-r.service.Receipts():
			if !ok {
				return
			}
			slog.Debug("ResponseRunner.Run: receipt", "to", receipt.To, "status", receipt.Status)

		case response, ok := <-r.service.Responses():
			if !ok {
				return
			}
			go r.handleResponse(ctx, response.From, response.Body, response.MediaURL)
		}
	}
}

// handleResponse canonicalizes the sender, dispatches the message, and relays
// the reply. Phone numbers are canonicalized before dispatch so session keys
// stay consistent across transports.
func (r *ResponseRunner) handleResponse(ctx context.Context, from, body, mediaURL string) {
	phone, err := r.service.ValidateAndCanonicalizeRecipient(from)
	if err != nil {
		slog.Warn("ResponseRunner.handleResponse: invalid sender, dropping", "error", err, "from", from)
		return
	}

	reply := r.handler.HandleMessage(ctx, phone, body, mediaURL)
	if reply == "" {
		return
	}
	if err := r.service.SendMessage(ctx, phone, reply); err != nil {
		slog.Error("ResponseRunner.handleResponse: reply send failed", "error", err, "to", phone)
	}
}

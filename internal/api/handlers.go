package api

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/models"
)

// webhookHandler receives a Twilio WhatsApp form payload, routes it through
// the dispatcher, and answers synchronously with a TwiML message. The reply
// is always well-formed; dispatcher faults surface as fixed apology text.
func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.webhookHandler: failed to parse form", "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	inbound := models.Response{
		From:     r.FormValue("From"),
		Body:     r.FormValue("Body"),
		MediaURL: r.FormValue("MediaUrl0"),
		Time:     time.Now().Unix(),
	}
	if err := inbound.Validate(); err != nil {
		slog.Warn("Server.webhookHandler: invalid payload", "error", err, "from", inbound.From)
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	phone, err := s.msgService.ValidateAndCanonicalizeRecipient(inbound.From)
	if err != nil {
		slog.Warn("Server.webhookHandler: invalid sender", "error", err, "from", inbound.From)
		http.Error(w, "Invalid sender", http.StatusBadRequest)
		return
	}

	reply := s.dispatcher.HandleMessage(r.Context(), phone, inbound.Body, inbound.MediaURL)
	slog.Info("Server.webhookHandler: message handled", "from", phone, "replyLength", len(reply))
	writeTwiML(w, reply)
}

// writeTwiML renders a single-message TwiML response.
func writeTwiML(w http.ResponseWriter, message string) {
	var escaped bytes.Buffer
	if err := xml.EscapeText(&escaped, []byte(message)); err != nil {
		slog.Error("api.writeTwiML: escape failed", "error", err)
	}
	w.Header().Set("Content-Type", "text/xml")
	fmt.Fprintf(w, `<?xml version="1.0" encoding="UTF-8"?><Response><Message>%s</Message></Response>`, escaped.String())
}

// listBookingsHandler returns all bookings for a business, newest first.
func (s *Server) listBookingsHandler(w http.ResponseWriter, r *http.Request) {
	businessID := r.URL.Query().Get("business_id")
	if businessID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("business_id is required"))
		return
	}

	bookings, err := s.store.ListBookingsByBusiness(businessID)
	if err != nil {
		slog.Error("Server.listBookingsHandler: query failed", "error", err, "businessID", businessID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list bookings"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(bookings))
}

// approveBookingHandler marks a booking approved, creates the calendar event,
// and notifies the customer. Event and notification failures are logged only;
// the status change is the source of truth.
func (s *Server) approveBookingHandler(w http.ResponseWriter, r *http.Request) {
	booking, ok := s.updateBookingStatus(w, r, models.BookingStatusApproved)
	if !ok {
		return
	}

	if s.calendar != nil {
		if _, err := s.calendar.CreateEvent(r.Context(), booking.Name, booking.RequestedAt, booking.PhoneNumber); err != nil {
			slog.Error("Server.approveBookingHandler: calendar event failed", "error", err, "bookingID", booking.ID)
		}
	}

	notification := fmt.Sprintf("Good news %s - your appointment on %s is confirmed. See you then!",
		booking.Name, booking.RequestedAt.Format("Monday 2 January at 15:04"))
	s.notifyCustomer(r, booking.PhoneNumber, notification, booking.ID)

	writeJSONResponse(w, http.StatusOK, models.Success(booking))
}

// rejectBookingHandler marks a booking rejected and notifies the customer.
func (s *Server) rejectBookingHandler(w http.ResponseWriter, r *http.Request) {
	booking, ok := s.updateBookingStatus(w, r, models.BookingStatusRejected)
	if !ok {
		return
	}

	notification := fmt.Sprintf("Sorry %s - the time you requested isn't available. Message us to find another slot.", booking.Name)
	s.notifyCustomer(r, booking.PhoneNumber, notification, booking.ID)

	writeJSONResponse(w, http.StatusOK, models.Success(booking))
}

// updateBookingStatus loads the booking from the path id and applies the
// status change, writing the error response itself when something fails.
func (s *Server) updateBookingStatus(w http.ResponseWriter, r *http.Request, status models.BookingStatus) (*models.BookingRequest, bool) {
	id := r.PathValue("id")
	booking, err := s.store.GetBooking(id)
	if err != nil {
		slog.Error("Server.updateBookingStatus: lookup failed", "error", err, "bookingID", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load booking"))
		return nil, false
	}
	if booking == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Booking not found"))
		return nil, false
	}

	if err := s.store.UpdateBookingStatus(id, status); err != nil {
		slog.Error("Server.updateBookingStatus: update failed", "error", err, "bookingID", id, "status", status)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update booking"))
		return nil, false
	}

	booking.Status = status
	booking.UpdatedAt = time.Now()
	slog.Info("Server.updateBookingStatus: booking updated", "bookingID", id, "status", status)
	return booking, true
}

// notifyCustomer sends a WhatsApp notification, logging failures only.
func (s *Server) notifyCustomer(r *http.Request, phone, message, bookingID string) {
	if s.msgService == nil {
		return
	}
	if err := s.msgService.SendMessage(r.Context(), phone, message); err != nil {
		slog.Error("Server.notifyCustomer: notification failed", "error", err, "to", phone, "bookingID", bookingID)
	}
}

// resetSessionHandler clears all conversational state for a phone number.
func (s *Server) resetSessionHandler(w http.ResponseWriter, r *http.Request) {
	phone := r.PathValue("phone")
	if err := s.dispatcher.ResetSession(r.Context(), phone); err != nil {
		slog.Error("Server.resetSessionHandler: reset failed", "error", err, "phone", phone)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reset session"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(nil))
}

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"service": "heykaelo"}))
}

package messaging

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/testutil"
	"github.com/heykaelo/heykaelo-backend/internal/twiliowhatsapp"
)

func TestTwilioValidateAndCanonicalizeRecipient(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"whatsapp:+27831112222", "27831112222", false},
		{"+27 83 111 2222", "27831112222", false},
		{"27831112222", "27831112222", false},
		{"12345", "", true},
		{"no digits here", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := s.ValidateAndCanonicalizeRecipient(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ValidateAndCanonicalizeRecipient(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTwilioSendMessageEmitsReceipt(t *testing.T) {
	mock := twiliowhatsapp.NewMockClient()
	s := NewTwilioService(mock)

	if err := s.SendMessage(context.Background(), "whatsapp:+27831112222", "hello"); err != nil {
		t.Fatalf("SendMessage failed: %v", err)
	}

	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(sent))
	}
	if sent[0].To != "27831112222" || sent[0].Body != "hello" {
		t.Errorf("unexpected delivery: %+v", sent[0])
	}

	select {
	case receipt := <-s.Receipts():
		if receipt.To != "27831112222" || receipt.Status != models.MessageStatusSent {
			t.Errorf("unexpected receipt: %+v", receipt)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a sent receipt")
	}
}

func TestTwilioSendMessageAfterStop(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := s.SendMessage(context.Background(), "27831112222", "hello"); err != ErrServiceStopped {
		t.Errorf("expected ErrServiceStopped, got %v", err)
	}
}

func TestTwilioWebhookEmitsResponse(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook/whatsapp", map[string]string{
		"From":      "whatsapp:+27831112222",
		"Body":      "here is my consent form",
		"MediaUrl0": "https://media.example/sig.jpg",
	})
	s.WebhookHandler(rr, req)
	testutil.AssertHTTPStatus(t, 200, rr.Code, "webhook")

	select {
	case response := <-s.Responses():
		if response.From != "whatsapp:+27831112222" {
			t.Errorf("unexpected sender: %q", response.From)
		}
		if response.Body != "here is my consent form" {
			t.Errorf("unexpected body: %q", response.Body)
		}
		if response.MediaURL != "https://media.example/sig.jpg" {
			t.Errorf("expected media url lifted from the form, got %q", response.MediaURL)
		}
	case <-time.After(time.Second):
		t.Fatal("expected an inbound response event")
	}
}

func TestTwilioWebhookAcceptsMediaOnlyMessage(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook/whatsapp", map[string]string{
		"From":      "whatsapp:+27831112222",
		"MediaUrl0": "https://media.example/sig.jpg",
	})
	s.WebhookHandler(rr, req)
	testutil.AssertHTTPStatus(t, 200, rr.Code, "media-only webhook")
}

func TestTwilioWebhookRejectsMissingFields(t *testing.T) {
	s := NewTwilioService(twiliowhatsapp.NewMockClient())

	rr := httptest.NewRecorder()
	req := testutil.CreateFormRequest(t, "/webhook/whatsapp", map[string]string{
		"Body": "no sender",
	})
	s.WebhookHandler(rr, req)
	testutil.AssertHTTPStatus(t, 400, rr.Code, "webhook without sender")
}

package models

import "testing"

func TestSessionModeDerivation(t *testing.T) {
	var nilSession *Session
	if mode := nilSession.Mode(); mode.Kind != ModeIdle {
		t.Errorf("nil session: expected idle, got %q", mode.Kind)
	}

	sess := &Session{Metadata: map[string]string{}}
	if mode := sess.Mode(); mode.Kind != ModeIdle {
		t.Errorf("empty metadata: expected idle, got %q", mode.Kind)
	}

	sess.Metadata[MetaOnboardingActive] = "true"
	sess.Metadata[MetaOnboardingStep] = "root"
	mode := sess.Mode()
	if mode.Kind != ModeOnboarding || mode.Step != "root" {
		t.Errorf("expected onboarding/root, got %+v", mode)
	}

	// Onboarding wins if both flags are somehow set.
	sess.Metadata[MetaRegistrationActive] = "true"
	if mode := sess.Mode(); mode.Kind != ModeOnboarding {
		t.Errorf("expected onboarding to win, got %q", mode.Kind)
	}

	delete(sess.Metadata, MetaOnboardingActive)
	sess.Metadata[MetaRegistrationStep] = "REG_ID"
	sess.Metadata[MetaRegistrationPrevStep] = "REG_NAME"
	sess.Metadata[MetaRegistrationBookingID] = "bk-1"
	mode = sess.Mode()
	if mode.Kind != ModeRegistration || mode.Step != "REG_ID" || mode.PrevStep != "REG_NAME" || mode.BookingID != "bk-1" {
		t.Errorf("unexpected registration mode: %+v", mode)
	}

	// A false flag does not activate the flow.
	sess.Metadata[MetaRegistrationActive] = "false"
	if mode := sess.Mode(); mode.Kind != ModeIdle {
		t.Errorf("expected idle with false flag, got %q", mode.Kind)
	}
}

func TestResponseValidate(t *testing.T) {
	tests := []struct {
		name    string
		r       Response
		wantErr error
	}{
		{"text", Response{From: "27831112222", Body: "hi"}, nil},
		{"media only", Response{From: "27831112222", MediaURL: "https://media.example/sig.jpg"}, nil},
		{"no sender", Response{Body: "hi"}, ErrEmptyRecipient},
		{"no content", Response{From: "27831112222"}, ErrEmptyBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.r.Validate(); err != tt.wantErr {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

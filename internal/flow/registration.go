package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/session"
)

// RegistrationFlow runs the linear customer intake sequence tied to a booking.
//
// Answers are committed with a one-turn lag: each inbound message is stashed
// raw, and written to its field on the next turn, once prev_step identifies
// which question it answered. The signature step is the exception, populated
// from the attachment URL instead of text.
type RegistrationFlow struct {
	sessions SessionManager
}

// NewRegistrationFlow creates the registration engine.
func NewRegistrationFlow(sessions SessionManager) *RegistrationFlow {
	return &RegistrationFlow{sessions: sessions}
}

// Start activates registration for the phone, ties it to the booking, and
// returns the first question.
func (f *RegistrationFlow) Start(ctx context.Context, phone, bookingID string) (string, error) {
	_, err := f.sessions.Upsert(ctx, phone, session.Patch{
		Set: map[string]string{
			models.MetaRegistrationActive:    "true",
			models.MetaRegistrationStep:      RegStepName,
			models.MetaRegistrationBookingID: bookingID,
			models.MetaRegistrationData:      "{}",
		},
		Delete: []string{models.MetaRegistrationPrevStep},
	})
	if err != nil {
		return "", fmt.Errorf("failed to start registration for %s: %w", phone, err)
	}
	slog.Info("RegistrationFlow.Start: registration activated", "phone", phone, "bookingID", bookingID)
	return registrationSteps[0].prompt, nil
}

// Advance processes one customer message. handled reports whether the session
// carried a recognized registration step; false means registration is not
// applicable and the caller should route the message elsewhere.
func (f *RegistrationFlow) Advance(ctx context.Context, phone, input, mediaURL string, sess *models.Session) (reply string, handled bool, err error) {
	current := sess.MetaValue(models.MetaRegistrationStep)
	if current == "" {
		current = RegStepName
	}

	data := decodeDataBag(sess.MetaValue(models.MetaRegistrationData))
	commitPendingAnswer(data, sess.MetaValue(models.MetaRegistrationPrevStep))

	if current == RegStepDone {
		reply, err = f.finish(ctx, phone, sess, data, mediaURL)
		return reply, true, err
	}

	step, ok := findRegistrationStep(current)
	if !ok {
		slog.Debug("RegistrationFlow.Advance: unrecognized step, not applicable", "phone", phone, "step", current)
		return "", false, nil
	}

	if current == RegStepConsent {
		if mediaURL == "" {
			// Text at the signature step: hold position, ask for the photo.
			_, err = f.sessions.Upsert(ctx, phone, session.Patch{Set: map[string]string{
				models.MetaRegistrationData: encodeDataBag(data),
			}})
			if err != nil {
				return "", true, fmt.Errorf("failed to save registration data for %s: %w", phone, err)
			}
			return registrationPhotoPrompt, true, nil
		}
		reply, err = f.finish(ctx, phone, sess, data, mediaURL)
		return reply, true, err
	}

	data[pendingAnswerField] = strings.TrimSpace(input)
	next, ok := findRegistrationStep(step.next)
	if !ok {
		slog.Error("RegistrationFlow.Advance: no successor", "phone", phone, "step", current)
		return ReplyUnknownTransition, true, nil
	}

	_, err = f.sessions.Upsert(ctx, phone, session.Patch{Set: map[string]string{
		models.MetaRegistrationStep:     next.id,
		models.MetaRegistrationPrevStep: current,
		models.MetaRegistrationData:     encodeDataBag(data),
	}})
	if err != nil {
		return "", true, fmt.Errorf("failed to advance registration for %s: %w", phone, err)
	}
	slog.Debug("RegistrationFlow.Advance: step advanced", "phone", phone, "from", current, "to", next.id)
	return next.prompt, true, nil
}

// finish merges the signature, snapshots the collected answers, strips the
// step-tracking keys, and returns the completion message.
func (f *RegistrationFlow) finish(ctx context.Context, phone string, sess *models.Session, data map[string]string, mediaURL string) (string, error) {
	if mediaURL != "" {
		data[fieldSignatureURL] = mediaURL
	}
	delete(data, pendingAnswerField)
	if bookingID := sess.MetaValue(models.MetaRegistrationBookingID); bookingID != "" {
		data["booking_id"] = bookingID
	}

	_, err := f.sessions.Upsert(ctx, phone, session.Patch{
		Set: map[string]string{
			models.MetaRegistrationActive:   "false",
			models.MetaRegistrationComplete: "true",
			models.MetaLastRegistrationData: encodeDataBag(data),
		},
		Delete: []string{
			models.MetaRegistrationStep,
			models.MetaRegistrationPrevStep,
			models.MetaRegistrationBookingID,
			models.MetaRegistrationData,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to complete registration for %s: %w", phone, err)
	}
	slog.Info("RegistrationFlow.finish: registration complete", "phone", phone)
	return registrationCompleteMessage, nil
}

// commitPendingAnswer moves the stashed previous-turn message into the field
// of the question it answered. No-op when there is no pending answer or the
// previous step is unknown; the signature field never takes a text answer.
func commitPendingAnswer(data map[string]string, prevStepID string) {
	pending, ok := data[pendingAnswerField]
	if !ok || prevStepID == "" {
		return
	}
	prev, found := findRegistrationStep(prevStepID)
	if !found || prev.saveField == fieldSignatureURL {
		delete(data, pendingAnswerField)
		return
	}
	data[prev.saveField] = pending
	delete(data, pendingAnswerField)
}

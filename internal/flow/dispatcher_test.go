package flow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heykaelo/heykaelo-backend/internal/calendar"
	"github.com/heykaelo/heykaelo-backend/internal/genai"
	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/session"
	"github.com/heykaelo/heykaelo-backend/internal/store"
	"github.com/heykaelo/heykaelo-backend/internal/util"
)

type dispatcherFixture struct {
	dispatcher *Dispatcher
	sessions   *session.Manager
	st         *store.InMemoryStore
	mock       *mockGenAIClient
}

func newDispatcherFixture(mock *mockGenAIClient) *dispatcherFixture {
	st := store.NewInMemoryStore()
	sessions := session.NewManager(st)
	cal := calendar.NewStaticService(fixedNow, util.ParseWhen)
	booking := NewBookingConversation(mock, NewAvailabilityTool(cal), NewBookingTool(st, fixedNow, util.ParseWhen), st)
	dispatcher := NewDispatcher(sessions, NewOnboardingFlow(sessions, st), NewRegistrationFlow(sessions), booking, st)
	return &dispatcherFixture{dispatcher: dispatcher, sessions: sessions, st: st, mock: mock}
}

func TestDispatcherSetupCommandStartsOnboarding(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})
	phone := "27851110001"

	reply := fx.dispatcher.HandleMessage(context.Background(), phone, "  Setup ", "")
	if reply != rootPrompt {
		t.Errorf("expected root prompt, got %q", reply)
	}

	sess, _ := fx.sessions.Get(context.Background(), phone)
	if mode := sess.Mode(); mode.Kind != models.ModeOnboarding {
		t.Errorf("expected onboarding mode, got %q", mode.Kind)
	}
}

func TestDispatcherRoutesOnboardingMessages(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})
	phone := "27851110002"

	fx.dispatcher.HandleMessage(context.Background(), phone, "setup", "")
	reply := fx.dispatcher.HandleMessage(context.Background(), phone, "1", "")
	if !strings.HasSuffix(reply, onboardingBranches[0].steps[0].prompt) {
		t.Errorf("expected first professional question, got %q", reply)
	}
	if fx.mock.callCount() != 0 {
		t.Errorf("model should not be consulted during onboarding, got %d calls", fx.mock.callCount())
	}
}

func TestDispatcherRegisterWithoutBooking(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})

	reply := fx.dispatcher.HandleMessage(context.Background(), "27851110003", "register", "")
	if reply != replyNoBookingToRegister {
		t.Errorf("expected no-booking reply, got %q", reply)
	}
}

func TestDispatcherRegisterStartsIntakeForLatestBooking(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})
	phone := "27851110004"

	older := models.BookingRequest{
		ID: "bk-old", BusinessID: "biz-1", Name: "Thabo", PhoneNumber: phone,
		Status: models.BookingStatusPending, CreatedAt: testNow.Add(-time.Hour),
	}
	newer := models.BookingRequest{
		ID: "bk-new", BusinessID: "biz-1", Name: "Thabo", PhoneNumber: phone,
		Status: models.BookingStatusPending, CreatedAt: testNow,
	}
	if err := fx.st.CreateBooking(older); err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}
	if err := fx.st.CreateBooking(newer); err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}

	reply := fx.dispatcher.HandleMessage(context.Background(), phone, "register", "")
	if reply != registrationSteps[0].prompt {
		t.Errorf("expected first registration question, got %q", reply)
	}

	sess, _ := fx.sessions.Get(context.Background(), phone)
	if got := sess.MetaValue(models.MetaRegistrationBookingID); got != "bk-new" {
		t.Errorf("expected registration tied to latest booking, got %q", got)
	}
}

func TestDispatcherRoutesRegistrationMessages(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})
	phone := "27851110005"

	booking := models.BookingRequest{
		ID: "bk-1", BusinessID: "biz-1", Name: "Alice", PhoneNumber: phone,
		Status: models.BookingStatusPending, CreatedAt: testNow,
	}
	if err := fx.st.CreateBooking(booking); err != nil {
		t.Fatalf("failed to seed booking: %v", err)
	}

	fx.dispatcher.HandleMessage(context.Background(), phone, "register", "")
	reply := fx.dispatcher.HandleMessage(context.Background(), phone, "Alice Smith", "")
	if reply != registrationSteps[1].prompt {
		t.Errorf("expected ID question, got %q", reply)
	}
}

func TestDispatcherStaleRegistrationFallsThrough(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("Hello!")}})
	phone := "27851110006"
	seedBusiness(t, fx.st)

	// Registration flagged active but carrying a step this build no longer knows.
	_, err := fx.sessions.Upsert(context.Background(), phone, session.Patch{Set: map[string]string{
		models.MetaRegistrationActive: "true",
		models.MetaRegistrationStep:   "LEGACY_STEP",
	}})
	if err != nil {
		t.Fatalf("failed to seed session: %v", err)
	}

	reply := fx.dispatcher.HandleMessage(context.Background(), phone, "hi there", "")
	if reply != "Hello!" {
		t.Errorf("expected fall-through to the booking conversation, got %q", reply)
	}
}

func TestDispatcherDefaultsToBookingConversation(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("What day suits you?")}})
	seedBusiness(t, fx.st)

	reply := fx.dispatcher.HandleMessage(context.Background(), "27851110007", "I need a booking", "")
	if reply != "What day suits you?" {
		t.Errorf("expected model reply, got %q", reply)
	}
}

func TestDispatcherResetSessionClearsState(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})
	phone := "27851110008"

	fx.dispatcher.HandleMessage(context.Background(), phone, "setup", "")
	if err := fx.dispatcher.ResetSession(context.Background(), phone); err != nil {
		t.Fatalf("ResetSession failed: %v", err)
	}

	sess, err := fx.sessions.Get(context.Background(), phone)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess != nil {
		t.Errorf("expected session deleted, got %+v", sess)
	}
}

func TestDispatcherIsolatesConcurrentPhones(t *testing.T) {
	fx := newDispatcherFixture(&mockGenAIClient{})

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			phone := fmt.Sprintf("278511200%02d", i)
			name := fmt.Sprintf("Clinic %d", i)
			ctx := context.Background()
			fx.dispatcher.HandleMessage(ctx, phone, "setup", "")
			fx.dispatcher.HandleMessage(ctx, phone, "1", "")
			fx.dispatcher.HandleMessage(ctx, phone, name, "")
			fx.dispatcher.HandleMessage(ctx, phone, "physio", "")
			fx.dispatcher.HandleMessage(ctx, phone, "Mon-Fri", "")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		phone := fmt.Sprintf("278511200%02d", i)
		business, err := fx.st.GetBusinessByPhone(phone)
		if err != nil || business == nil {
			t.Fatalf("phone %s: expected business, got %v, %v", phone, business, err)
		}
		want := fmt.Sprintf("Clinic %d", i)
		if business.BusinessName != want {
			t.Errorf("phone %s: expected %q, got %q", phone, want, business.BusinessName)
		}
	}
}

package flow

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/heykaelo/heykaelo-backend/internal/calendar"
	"github.com/heykaelo/heykaelo-backend/internal/genai"
	"github.com/heykaelo/heykaelo-backend/internal/models"
	"github.com/heykaelo/heykaelo-backend/internal/store"
	"github.com/heykaelo/heykaelo-backend/internal/util"
)

// testNow is the fixed clock for conversation tests: Tuesday 1 September 2026, 10:00 UTC.
var testNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

// mockGenAIClient scripts GenerateWithTools responses in order. Once the
// script runs out the last response repeats, which lets loop-cap tests feed
// an endless stream of tool calls.
type mockGenAIClient struct {
	mu        sync.Mutex
	responses []*genai.ToolCallResponse
	errs      []error
	calls     int
}

func (m *mockGenAIClient) GenerateWithMessages(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	return "", nil
}

func (m *mockGenAIClient) GenerateWithTools(ctx context.Context, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) (*genai.ToolCallResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.calls
	m.calls++
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.responses) {
		return m.responses[i], nil
	}
	if len(m.responses) == 0 {
		return &genai.ToolCallResponse{}, nil
	}
	return m.responses[len(m.responses)-1], nil
}

func (m *mockGenAIClient) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textResponse(content string) *genai.ToolCallResponse {
	return &genai.ToolCallResponse{Content: content}
}

func toolCallResponse(id string, toolType models.ToolType, args string) *genai.ToolCallResponse {
	return &genai.ToolCallResponse{
		ToolCalls: []models.ToolCall{{
			ID:   id,
			Type: "function",
			Function: models.FunctionCall{
				Name:      string(toolType),
				Arguments: json.RawMessage(args),
			},
		}},
	}
}

func newConversationFixture(mock *mockGenAIClient) (*BookingConversation, *store.InMemoryStore) {
	st := store.NewInMemoryStore()
	cal := calendar.NewStaticService(fixedNow, util.ParseWhen)
	bc := NewBookingConversation(mock, NewAvailabilityTool(cal), NewBookingTool(st, fixedNow, util.ParseWhen), st)
	return bc, st
}

func seedBusiness(t *testing.T, st *store.InMemoryStore) models.BusinessProfile {
	t.Helper()
	business := models.BusinessProfile{
		ID:           "biz-1",
		PhoneNumber:  "27820000000",
		BusinessName: "Sunnyside Dental",
		Slug:         "sunnyside-dental-1",
		RoleCategory: models.RoleProfessional,
		RoleType:     "dentist",
		WorkingDays:  "Mon-Fri",
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := st.UpsertBusiness(business); err != nil {
		t.Fatalf("failed to seed business: %v", err)
	}
	return business
}

func TestConversationWithoutBusinessConfigured(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("hi")}}
	bc, _ := newConversationFixture(mock)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "hello")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != replyNoBusiness {
		t.Errorf("expected no-business reply, got %q", reply)
	}
	if mock.callCount() != 0 {
		t.Errorf("model should not be called without a business, got %d calls", mock.callCount())
	}
}

func TestConversationPlainReply(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("Hi! What day would suit you?")}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "hello")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != "Hi! What day would suit you?" {
		t.Errorf("unexpected reply: %q", reply)
	}
	if mock.callCount() != 1 {
		t.Errorf("expected 1 model call, got %d", mock.callCount())
	}
}

func TestConversationCreatesBookingViaTool(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{
		toolCallResponse("call_1", models.ToolTypeCreateBooking,
			`{"name":"Thabo","datetime":"tomorrow 2pm","phone":"27821234567"}`),
		textResponse("Your request is in! The owner will confirm shortly."),
	}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "book me for tomorrow at 2pm, I'm Thabo")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != "Your request is in! The owner will confirm shortly." {
		t.Errorf("unexpected reply: %q", reply)
	}
	if mock.callCount() != 2 {
		t.Errorf("expected 2 model calls (tool round + final), got %d", mock.callCount())
	}

	bookings, err := st.ListBookingsByBusiness("biz-1")
	if err != nil {
		t.Fatalf("ListBookingsByBusiness failed: %v", err)
	}
	if len(bookings) != 1 {
		t.Fatalf("expected 1 booking, got %d", len(bookings))
	}
	booking := bookings[0]
	if booking.Name != "Thabo" || booking.PhoneNumber != "27821234567" {
		t.Errorf("unexpected booking identity: %+v", booking)
	}
	if booking.Status != models.BookingStatusPending {
		t.Errorf("expected pending status, got %q", booking.Status)
	}
	wantAt := time.Date(2026, 9, 2, 14, 0, 0, 0, time.UTC)
	if !booking.RequestedAt.Equal(wantAt) {
		t.Errorf("expected requested time %v, got %v", wantAt, booking.RequestedAt)
	}
	if booking.CustomerID == "" {
		t.Error("expected a customer record to back the booking")
	}
}

func TestConversationChecksAvailability(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{
		toolCallResponse("call_1", models.ToolTypeCheckAvailability, `{"date":"tomorrow"}`),
		textResponse("Tomorrow is wide open - what time works?"),
	}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "anything open tomorrow?")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != "Tomorrow is wide open - what time works?" {
		t.Errorf("unexpected reply: %q", reply)
	}
	if mock.callCount() != 2 {
		t.Errorf("expected 2 model calls, got %d", mock.callCount())
	}
}

func TestConversationToolLoopCap(t *testing.T) {
	// The script never ends: every round requests another availability check.
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{
		toolCallResponse("call_1", models.ToolTypeCheckAvailability, `{"date":"tomorrow"}`),
	}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "check everything")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != ReplyToolLoopExceeded {
		t.Errorf("expected tool-loop-exceeded reply, got %q", reply)
	}
	if mock.callCount() != maxToolRounds {
		t.Errorf("expected exactly %d model calls, got %d", maxToolRounds, mock.callCount())
	}
}

func TestConversationQuotaErrorDegradesToBusyReply(t *testing.T) {
	mock := &mockGenAIClient{errs: []error{&openai.Error{StatusCode: http.StatusTooManyRequests}}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "hello")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != ReplyModelBusy {
		t.Errorf("expected busy reply, got %q", reply)
	}
}

func TestConversationModelFailureDegradesToUnavailableReply(t *testing.T) {
	mock := &mockGenAIClient{errs: []error{context.DeadlineExceeded}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "hello")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != ReplyModelUnavailable {
		t.Errorf("expected unavailable reply, got %q", reply)
	}
}

func TestConversationInvalidToolArgumentsDoNotFileBooking(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{
		toolCallResponse("call_1", models.ToolTypeCreateBooking, `{"name":""}`),
		textResponse("I still need your name and phone number."),
	}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "book something")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != "I still need your name and phone number." {
		t.Errorf("unexpected reply: %q", reply)
	}

	bookings, _ := st.ListBookingsByBusiness("biz-1")
	if len(bookings) != 0 {
		t.Errorf("expected no bookings from invalid arguments, got %d", len(bookings))
	}
}

func TestConversationEmptyResponseFallsBackToGreeting(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("")}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	reply, err := bc.HandleMessage(context.Background(), "27821234567", "hello")
	if err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if reply != replyDefaultGreeting {
		t.Errorf("expected default greeting, got %q", reply)
	}
}

func TestConversationPrefersBusinessWithKnowledgeBase(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("ok")}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)
	newer := models.BusinessProfile{
		ID:            "biz-2",
		PhoneNumber:   "27820000001",
		BusinessName:  "Late Riser Salon",
		RoleCategory:  models.RoleProfessional,
		KnowledgeBase: "Closed on public holidays.",
		CreatedAt:     testNow.Add(-time.Hour), // older, but carries notes
	}
	if err := st.UpsertBusiness(newer); err != nil {
		t.Fatalf("failed to seed business: %v", err)
	}

	business, err := bc.resolveBusiness()
	if err != nil {
		t.Fatalf("resolveBusiness failed: %v", err)
	}
	if business.ID != "biz-2" {
		t.Errorf("expected the profile with a knowledge base, got %q", business.ID)
	}
}

func TestChatCacheEvictsLeastRecentlyUsed(t *testing.T) {
	current := testNow
	cache := newChatCache(2, time.Hour, func() time.Time { return current })
	transcript := []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")}

	cache.put("a", transcript)
	current = current.Add(time.Minute)
	cache.put("b", transcript)
	current = current.Add(time.Minute)
	if cache.get("a") == nil {
		t.Fatal("expected a to be cached")
	}
	current = current.Add(time.Minute)
	cache.put("c", transcript) // over capacity: b is now the oldest

	if cache.get("b") != nil {
		t.Error("expected b evicted as least recently used")
	}
	if cache.get("a") == nil || cache.get("c") == nil {
		t.Error("expected a and c retained")
	}
}

func TestChatCacheExpiresIdleTranscripts(t *testing.T) {
	current := testNow
	cache := newChatCache(10, time.Hour, func() time.Time { return current })
	cache.put("a", []openai.ChatCompletionMessageParamUnion{openai.UserMessage("hi")})

	current = current.Add(2 * time.Hour)
	if cache.get("a") != nil {
		t.Error("expected idle transcript to expire")
	}
}

func TestForgetDropsTranscript(t *testing.T) {
	mock := &mockGenAIClient{responses: []*genai.ToolCallResponse{textResponse("hello!")}}
	bc, st := newConversationFixture(mock)
	seedBusiness(t, st)

	if _, err := bc.HandleMessage(context.Background(), "27821234567", "hi"); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if bc.cache.get("27821234567") == nil {
		t.Fatal("expected transcript cached after handling")
	}
	bc.Forget("27821234567")
	if bc.cache.get("27821234567") != nil {
		t.Error("expected transcript dropped after Forget")
	}
}

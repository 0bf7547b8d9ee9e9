package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"

	"github.com/heykaelo/heykaelo-backend/internal/genai"
	"github.com/heykaelo/heykaelo-backend/internal/models"
)

const (
	// maxToolRounds caps model round trips per inbound message.
	maxToolRounds = 5
	// maxHistoryMessages caps the cached chat transcript per phone.
	maxHistoryMessages = 30

	// DefaultChatCacheSize bounds how many phone transcripts stay in memory.
	DefaultChatCacheSize = 500
	// DefaultChatCacheTTL expires idle transcripts.
	DefaultChatCacheTTL = time.Hour
)

// replyNoBusiness is returned when no business profile exists to book against.
const replyNoBusiness = "This booking line isn't set up yet. Please check back soon!"

// replyDefaultGreeting covers the rare empty model response.
const replyDefaultGreeting = "I can help you book an appointment. What day and time would suit you?"

const baseSystemPrompt = `You are Kaelo, a friendly WhatsApp booking assistant. You help customers book appointments over chat.

Rules:
- Keep replies short and conversational; this is WhatsApp.
- Before suggesting appointment times, check availability with the check_availability tool.
- Once the customer has confirmed their name, phone number, and a date and time, file the request with the create_booking_request tool. Tell them the owner will confirm it.
- Never invent availability or confirm a booking yourself.
- If you cannot help, say so politely and suggest they contact the business directly.`

// BookingConversation orchestrates the LLM-backed booking chat: it assembles
// the system prompt from the business profile, keeps a bounded per-phone
// transcript, and runs the tool-calling loop.
type BookingConversation struct {
	genaiClient      genai.ClientInterface
	availabilityTool *AvailabilityTool
	bookingTool      *BookingTool
	repo             BookingRepository
	cache            *chatCache
}

// NewBookingConversation creates the booking orchestrator.
func NewBookingConversation(client genai.ClientInterface, availabilityTool *AvailabilityTool, bookingTool *BookingTool, repo BookingRepository) *BookingConversation {
	slog.Debug("flow.NewBookingConversation: creating orchestrator",
		"hasGenAI", client != nil, "hasAvailabilityTool", availabilityTool != nil, "hasBookingTool", bookingTool != nil)
	return &BookingConversation{
		genaiClient:      client,
		availabilityTool: availabilityTool,
		bookingTool:      bookingTool,
		repo:             repo,
		cache:            newChatCache(DefaultChatCacheSize, DefaultChatCacheTTL, time.Now),
	}
}

// HandleMessage processes one customer message and returns the reply to send.
// Model and collaborator failures degrade to fixed replies; the returned
// string is always safe to relay.
func (bc *BookingConversation) HandleMessage(ctx context.Context, phone, body string) (string, error) {
	business, err := bc.resolveBusiness()
	if err != nil {
		slog.Error("BookingConversation.HandleMessage: business lookup failed", "error", err, "phone", phone)
		return ReplyModelUnavailable, nil
	}
	if business == nil {
		slog.Warn("BookingConversation.HandleMessage: no business configured", "phone", phone)
		return replyNoBusiness, nil
	}

	history := bc.cache.get(phone)
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(bc.buildSystemPrompt(business)),
	}
	messages = append(messages, history...)
	messages = append(messages, openai.UserMessage(body))

	tools := []openai.ChatCompletionToolParam{
		bc.availabilityTool.GetToolDefinition(),
		bc.bookingTool.GetToolDefinition(),
	}

	reply := bc.runToolLoop(ctx, phone, business.ID, messages, tools)

	history = append(history, openai.UserMessage(body), openai.AssistantMessage(reply))
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	bc.cache.put(phone, history)
	return reply, nil
}

// Forget drops the cached transcript for a phone (session reset).
func (bc *BookingConversation) Forget(phone string) {
	bc.cache.drop(phone)
}

// runToolLoop drives the model until it produces a user-facing message,
// executing requested tool calls between rounds.
func (bc *BookingConversation) runToolLoop(ctx context.Context, phone, businessID string, messages []openai.ChatCompletionMessageParamUnion, tools []openai.ChatCompletionToolParam) string {
	for round := 1; round <= maxToolRounds; round++ {
		slog.Debug("BookingConversation.runToolLoop: round start", "phone", phone, "round", round, "messageCount", len(messages))

		toolResponse, err := bc.genaiClient.GenerateWithTools(ctx, messages, tools)
		if err != nil {
			slog.Error("BookingConversation.runToolLoop: generation failed", "error", err, "phone", phone, "round", round)
			if genai.IsQuotaError(err) {
				return ReplyModelBusy
			}
			return ReplyModelUnavailable
		}

		if len(toolResponse.ToolCalls) > 0 {
			slog.Info("BookingConversation.runToolLoop: processing tool calls",
				"phone", phone, "round", round, "toolCallCount", len(toolResponse.ToolCalls))
			messages = bc.executeToolCalls(ctx, businessID, toolResponse, messages)
			continue
		}

		if toolResponse.Content != "" {
			slog.Debug("BookingConversation.runToolLoop: final response", "phone", phone, "round", round, "responseLength", len(toolResponse.Content))
			return toolResponse.Content
		}

		slog.Warn("BookingConversation.runToolLoop: empty response with no tool calls", "phone", phone, "round", round)
		return replyDefaultGreeting
	}

	slog.Warn("BookingConversation.runToolLoop: hit maximum tool rounds", "phone", phone, "maxRounds", maxToolRounds)
	return ReplyToolLoopExceeded
}

// executeToolCalls appends the assistant tool-call message, runs every
// requested call in order, and appends each result as a tool message.
func (bc *BookingConversation) executeToolCalls(ctx context.Context, businessID string, toolResponse *genai.ToolCallResponse, messages []openai.ChatCompletionMessageParamUnion) []openai.ChatCompletionMessageParamUnion {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, toolCall := range toolResponse.ToolCalls {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   toolCall.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      toolCall.Function.Name,
				Arguments: string(toolCall.Function.Arguments),
			},
		})
	}

	// OpenAI requires the assistant message carrying the tool_calls before the
	// tool result messages that reference those ids.
	assistantMessageWithToolCalls := openai.ChatCompletionAssistantMessageParam{
		Content: openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: param.NewOpt(toolResponse.Content),
		},
		ToolCalls: toolCalls,
	}
	messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMessageWithToolCalls})

	for _, toolCall := range toolResponse.ToolCalls {
		result := bc.executeToolCall(ctx, businessID, toolCall)
		messages = append(messages, openai.ToolMessage(result, toolCall.ID))
	}
	return messages
}

// executeToolCall dispatches a single tool call and renders its result for
// the model. Invalid arguments become data the model can recover from.
func (bc *BookingConversation) executeToolCall(ctx context.Context, businessID string, toolCall models.ToolCall) string {
	switch toolCall.Function.Name {
	case string(models.ToolTypeCheckAvailability):
		params, err := toolCall.Function.ParseAvailabilityParams()
		if err != nil {
			slog.Warn("BookingConversation.executeToolCall: bad availability arguments", "error", err)
			return "The date to check was missing or invalid. Ask the customer which day they mean."
		}
		return bc.availabilityTool.ExecuteCheckAvailability(ctx, params)

	case string(models.ToolTypeCreateBooking):
		params, err := toolCall.Function.ParseBookingParams()
		if err != nil {
			slog.Warn("BookingConversation.executeToolCall: bad booking arguments", "error", err)
			return renderBookingResult(models.BookingToolResult{
				Status: "error",
				Error:  "missing or invalid booking details; collect name, phone, and datetime first",
			})
		}
		return renderBookingResult(bc.bookingTool.ExecuteCreateBooking(ctx, businessID, params))

	default:
		slog.Warn("BookingConversation.executeToolCall: unknown tool", "tool", toolCall.Function.Name)
		return fmt.Sprintf("unknown tool %q", toolCall.Function.Name)
	}
}

// renderBookingResult serializes a booking result for the model.
func renderBookingResult(result models.BookingToolResult) string {
	raw, err := json.Marshal(result)
	if err != nil {
		return "booking result could not be serialized"
	}
	return string(raw)
}

// buildSystemPrompt assembles the per-business system prompt.
func (bc *BookingConversation) buildSystemPrompt(business *models.BusinessProfile) string {
	prompt := baseSystemPrompt + "\n\nBUSINESS:\nName: " + business.BusinessName
	if business.RoleType != "" {
		prompt += "\nType: " + business.RoleType
	}
	if business.WorkingDays != "" {
		prompt += "\nWorking days: " + business.WorkingDays
	}
	if business.ServiceArea != "" {
		prompt += "\nService area: " + business.ServiceArea
	}
	if business.KnowledgeBase != "" {
		prompt += "\n\nBUSINESS NOTES:\n" + business.KnowledgeBase
	}
	return prompt
}

// resolveBusiness picks the business the conversation books against: the
// newest profile, preferring one with a populated knowledge base.
func (bc *BookingConversation) resolveBusiness() (*models.BusinessProfile, error) {
	businesses, err := bc.repo.ListBusinesses()
	if err != nil {
		return nil, fmt.Errorf("failed to list businesses: %w", err)
	}
	if len(businesses) == 0 {
		return nil, nil
	}
	for i := range businesses {
		if businesses[i].KnowledgeBase != "" {
			return &businesses[i], nil
		}
	}
	return &businesses[0], nil
}

// chatSession is one phone's cached transcript.
type chatSession struct {
	messages []openai.ChatCompletionMessageParamUnion
	lastUsed time.Time
}

// chatCache is a bounded TTL cache of per-phone transcripts. Expired entries
// are dropped on access; when full, the least recently used entry is evicted.
type chatCache struct {
	mu       sync.Mutex
	sessions map[string]*chatSession
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

func newChatCache(capacity int, ttl time.Duration, now func() time.Time) *chatCache {
	return &chatCache{
		sessions: make(map[string]*chatSession),
		capacity: capacity,
		ttl:      ttl,
		now:      now,
	}
}

func (c *chatCache) get(phone string) []openai.ChatCompletionMessageParamUnion {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[phone]
	if !ok {
		return nil
	}
	if c.now().Sub(sess.lastUsed) > c.ttl {
		delete(c.sessions, phone)
		return nil
	}
	sess.lastUsed = c.now()
	return append([]openai.ChatCompletionMessageParamUnion(nil), sess.messages...)
}

func (c *chatCache) put(phone string, messages []openai.ChatCompletionMessageParamUnion) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.sessions[phone]; !ok && len(c.sessions) >= c.capacity {
		c.evictLocked()
	}
	c.sessions[phone] = &chatSession{
		messages: append([]openai.ChatCompletionMessageParamUnion(nil), messages...),
		lastUsed: c.now(),
	}
}

func (c *chatCache) drop(phone string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, phone)
}

// evictLocked removes expired entries, then the least recently used entry if
// still at capacity. Caller holds the lock.
func (c *chatCache) evictLocked() {
	now := c.now()
	for phone, sess := range c.sessions {
		if now.Sub(sess.lastUsed) > c.ttl {
			delete(c.sessions, phone)
		}
	}
	if len(c.sessions) < c.capacity {
		return
	}
	var oldestPhone string
	var oldest time.Time
	for phone, sess := range c.sessions {
		if oldestPhone == "" || sess.lastUsed.Before(oldest) {
			oldestPhone = phone
			oldest = sess.lastUsed
		}
	}
	if oldestPhone != "" {
		delete(c.sessions, oldestPhone)
	}
}

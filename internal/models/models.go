package models

import (
	"errors"
	"fmt"
	"strings"
)

// Message roles accepted by the gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Object names used in canonical payloads.
const (
	ObjectChatCompletion      = "chat.completion"
	ObjectChatCompletionChunk = "chat.completion.chunk"
)

var (
	errNoMessages   = errors.New("at least one message is required")
	errEmptyRole    = errors.New("role must not be empty")
	errUnknownRole  = errors.New("unknown role")
	errMissingValue = errors.New("content must be a string or an array of content parts")
)

var allowedRoles = map[string]struct{}{
	RoleSystem:    {},
	RoleUser:      {},
	RoleAssistant: {},
	RoleTool:      {},
}

// Message represents a single conversational message in the canonical schema.
type Message struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
	Name    string  `json:"name,omitempty"`
}

// ChatRequest is the canonical representation of a chat completion.
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
	// Timeout is advisory; the gateway forwards it but does not enforce it.
	Timeout *float64 `json:"timeout,omitempty"`
}

// Validate checks the structural invariants of the request.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errNoMessages
	}
	for i, msg := range r.Messages {
		if err := msg.Validate(); err != nil {
			return fmt.Errorf("messages[%d]: %w", i, err)
		}
	}
	return nil
}

// Validate checks a single message.
func (m Message) Validate() error {
	role := strings.TrimSpace(m.Role)
	if role == "" {
		return errEmptyRole
	}
	if _, ok := allowedRoles[role]; !ok {
		return fmt.Errorf("%w: %s", errUnknownRole, m.Role)
	}
	if !m.Content.Valid() {
		return errMissingValue
	}
	return nil
}

// SystemPrompt joins the text of every system message.
func (r ChatRequest) SystemPrompt() string {
	var parts []string
	for _, msg := range r.Messages {
		if msg.Role != RoleSystem {
			continue
		}
		if text := msg.Content.String(); strings.TrimSpace(text) != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ChatResponse captures a provider response in the canonical schema.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

// Choice is a single completion alternative.
type Choice struct {
	Index        int             `json:"index"`
	Message      ResponseMessage `json:"message"`
	FinishReason FinishReason    `json:"finish_reason"`
}

// ResponseMessage is the assistant message of a choice. Content is null when
// the upstream produced no text.
type ResponseMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
}

// Text returns the message text or the empty string.
func (m ResponseMessage) Text() string {
	if m.Content == nil {
		return ""
	}
	return *m.Content
}

// NewTextResponse builds a single-choice assistant response.
func NewTextResponse(id, model string, created int64, text string, reason FinishReason, usage *Usage) *ChatResponse {
	content := text
	return &ChatResponse{
		ID:      id,
		Object:  ObjectChatCompletion,
		Created: created,
		Model:   model,
		Choices: []Choice{
			{
				Index: 0,
				Message: ResponseMessage{
					Role:    RoleAssistant,
					Content: &content,
				},
				FinishReason: reason,
			},
		},
		Usage: usage,
	}
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage returns a Usage whose total is prompt + completion.
func NewUsage(prompt, completion int) *Usage {
	return &Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// StreamChunk is one canonical SSE event payload.
type StreamChunk struct {
	ID      string         `json:"id"`
	Object  string         `json:"object"`
	Created int64          `json:"created"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
}

// StreamChoice carries a partial message fragment.
type StreamChoice struct {
	Index        int          `json:"index"`
	Delta        Delta        `json:"delta"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Delta is the incremental part of an assistant message.
type Delta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
}

// Package chat implements the conversation context engine: the live message
// transcript, its ordering invariants, and token-budget-driven summarization.
package chat

import (
	"strings"
	"unicode/utf8"
)

// Role represents the role of a message sender.
type Role string

// Role constants.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// SummaryMarker is the reserved prefix identifying a system message as the
// machine-generated rolling summary rather than the user-configured prompt.
const SummaryMarker = "## Conversation Summary"

// AttachmentTokenCost is the flat token estimate charged for a message that
// carries binary attachments. Attachment payloads are opaque; the estimate is
// a heuristic, not a tokenizer count.
const AttachmentTokenCost = 256

// Message is one entry of a transcript. Content is either plain text or, when
// Attachments is non-empty, the multimodal variant: text plus an ordered list
// of opaque base64-encoded blobs.
type Message struct {
	Role        Role     `json:"role"`
	Content     string   `json:"content"`
	Attachments []string `json:"images,omitempty"`
}

// NewUserMessage creates a user message, optionally with attachments.
func NewUserMessage(content string, attachments ...string) Message {
	return Message{Role: RoleUser, Content: content, Attachments: attachments}
}

// NewAssistantMessage creates an assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// HasAttachments reports whether the message is the multimodal variant.
func (m Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// IsSummary reports whether the message is the rolling-summary system
// message.
func (m Message) IsSummary() bool {
	return m.Role == RoleSystem && strings.HasPrefix(m.Content, SummaryMarker)
}

// TokenStats accumulates backend-reported token usage over a conversation.
type TokenStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds one backend response's counters into the totals.
func (t *TokenStats) Add(prompt, completion int) {
	t.PromptTokens += prompt
	t.CompletionTokens += completion
	t.TotalTokens += prompt + completion
}

// EstimateTokens gives a character-based token estimate for text: one token
// per four characters, rounded up, at least one for non-empty text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := (utf8.RuneCountInString(text) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// EstimateMessageTokens estimates a single message's context cost.
func EstimateMessageTokens(m Message) int {
	if m.HasAttachments() {
		return AttachmentTokenCost
	}
	return EstimateTokens(m.Content)
}

package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/olc-dev/olc/internal/debug"
)

// ChatRequest is what the engine hands the generation backend.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature *float64
}

// ChatResult is the backend's answer plus its token accounting. Zero counts
// mean the backend did not report usage for that turn.
type ChatResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// Generator produces assistant replies from a full transcript. onDelta, when
// non-nil, receives incremental text fragments as they stream in.
type Generator interface {
	Generate(ctx context.Context, req ChatRequest, onDelta func(string)) (*ChatResult, error)
}

// Summarizer condenses a conversation digest into rolling-summary text.
type Summarizer interface {
	Summarize(ctx context.Context, model, instruction, digest string) (string, error)
}

// ProfileFunc resolves per-model profile settings when a conversation starts:
// an extra system prompt fragment and an optional temperature override.
type ProfileFunc func(model string) (prompt string, temperature *float64)

// PromptFunc resolves the base system prompt for a model.
type PromptFunc func(model string) string

// Config carries the engine's summarization knobs.
type Config struct {
	TokenBudget        int
	KeepLast           int
	Autosummarize      bool
	SummaryModel       string
	SummaryInstruction string
}

// Deps are the engine's collaborators. Generator is required for
// SendUserMessage; Summarizer for summarization; the rest are optional.
type Deps struct {
	Generator  Generator
	Summarizer Summarizer
	Profiles   ProfileFunc
	BasePrompt PromptFunc
}

// Engine owns the live conversation state: the ordered transcript, the
// rolling summary, the system prompt parts, and cumulative token usage.
// It is not safe for concurrent use.
type Engine struct {
	cfg  Config
	deps Deps

	model       string
	temperature *float64

	basePrompt    string
	profilePrompt string
	personaPrompt string

	messages []Message
	summary  string
	usage    TokenStats
}

// New creates an engine with no active conversation.
func New(cfg Config, deps Deps) *Engine {
	return &Engine{cfg: cfg, deps: deps}
}

// InitConversation starts a fresh conversation for model: state from any
// previous conversation is discarded, profile settings are resolved, and the
// transcript is seeded with the combined system prompt when non-empty.
func (e *Engine) InitConversation(model string) {
	e.model = model
	e.summary = ""
	e.usage = TokenStats{}
	e.profilePrompt = ""
	e.temperature = nil

	if e.deps.BasePrompt != nil {
		e.basePrompt = e.deps.BasePrompt(model)
	}
	if e.deps.Profiles != nil {
		e.profilePrompt, e.temperature = e.deps.Profiles(model)
	}

	e.messages = nil
	if prompt := e.BuildSystemPrompt(); prompt != "" {
		e.messages = []Message{NewSystemMessage(prompt)}
	}
}

// BuildSystemPrompt joins the base, profile, and persona prompt parts,
// skipping empty ones.
func (e *Engine) BuildSystemPrompt() string {
	var parts []string
	for _, p := range []string{e.basePrompt, e.profilePrompt, e.personaPrompt} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}

// UpdateSystemMessage rebuilds the leading system message from the current
// prompt parts. The summary message, if any, keeps its place immediately
// after the base system message. Idempotent.
func (e *Engine) UpdateSystemMessage() {
	prompt := e.BuildSystemPrompt()
	base := e.baseSystemIndex()

	switch {
	case prompt == "" && base >= 0:
		e.messages = append(e.messages[:base], e.messages[base+1:]...)
	case prompt != "" && base >= 0:
		e.messages[base].Content = prompt
	case prompt != "" && base < 0:
		e.messages = append([]Message{NewSystemMessage(prompt)}, e.messages...)
	}

	e.UpdateSummaryMessage()
}

// UpdateSummaryMessage enforces the summary placement invariant: exactly one
// summary system message when the summary is non-empty, positioned right
// after the base system message (or first when there is none), and no
// summary message at all when the summary is empty.
func (e *Engine) UpdateSummaryMessage() {
	// Remove any existing summary messages first, then reinsert.
	kept := e.messages[:0]
	for _, m := range e.messages {
		if !m.IsSummary() {
			kept = append(kept, m)
		}
	}
	e.messages = kept

	if e.summary == "" {
		return
	}

	msg := NewSystemMessage(SummaryMarker + "\n" + e.summary)
	at := e.baseSystemIndex() + 1
	e.messages = append(e.messages, Message{})
	copy(e.messages[at+1:], e.messages[at:])
	e.messages[at] = msg
}

// baseSystemIndex finds the base (non-summary) system message, or -1.
func (e *Engine) baseSystemIndex() int {
	for i, m := range e.messages {
		if m.Role == RoleSystem && !m.IsSummary() {
			return i
		}
	}
	return -1
}

// EstimateContextTokens sums the per-message estimates over the transcript,
// system messages included.
func (e *Engine) EstimateContextTokens() int {
	total := 0
	for _, m := range e.messages {
		total += EstimateMessageTokens(m)
	}
	return total
}

// SendUserMessage appends a user message, runs automatic summarization, asks
// the backend for a reply, and on success appends the assistant message and
// folds the reported usage into the totals. On backend failure the user
// message stays in the transcript and no assistant message is added.
func (e *Engine) SendUserMessage(ctx context.Context, content string, attachments []string, onDelta func(string)) (*ChatResult, error) {
	if e.deps.Generator == nil {
		return nil, fmt.Errorf("no generation backend configured")
	}

	e.messages = append(e.messages, NewUserMessage(content, attachments...))
	e.MaybeSummarize(ctx, false)

	res, err := e.deps.Generator.Generate(ctx, ChatRequest{
		Model:       e.model,
		Messages:    e.Messages(),
		Temperature: e.temperature,
	}, onDelta)
	if err != nil {
		debug.Error("chat", err, "generate")
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	e.messages = append(e.messages, NewAssistantMessage(res.Text))
	e.usage.Add(res.PromptTokens, res.CompletionTokens)
	return res, nil
}

// TrimTrailingAssistant removes the last message if it is an assistant
// reply, for regeneration. Reports whether anything was removed.
func (e *Engine) TrimTrailingAssistant() bool {
	if n := len(e.messages); n > 0 && e.messages[n-1].Role == RoleAssistant {
		e.messages = e.messages[:n-1]
		return true
	}
	return false
}

// Messages returns a copy of the transcript in order.
func (e *Engine) Messages() []Message {
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	return out
}

// SetMessages replaces the transcript wholesale, as when restoring a saved
// session, and re-derives the summary from any summary message present.
func (e *Engine) SetMessages(msgs []Message) {
	e.messages = make([]Message, len(msgs))
	copy(e.messages, msgs)
	e.summary = ExtractSummary(e.messages)
}

// Model returns the active model name.
func (e *Engine) Model() string { return e.model }

// SetModel switches the active model without touching the transcript.
func (e *Engine) SetModel(model string) { e.model = model }

// Temperature returns the sampling temperature override, or nil.
func (e *Engine) Temperature() *float64 { return e.temperature }

// SetTemperature overrides the sampling temperature. nil clears it.
func (e *Engine) SetTemperature(t *float64) { e.temperature = t }

// Summary returns the current rolling summary text.
func (e *Engine) Summary() string { return e.summary }

// SetSummary replaces the rolling summary and repositions its message.
func (e *Engine) SetSummary(s string) {
	e.summary = s
	e.UpdateSummaryMessage()
}

// Usage returns cumulative backend-reported token usage.
func (e *Engine) Usage() TokenStats { return e.usage }

// SetUsage restores usage counters, as when loading a saved session.
func (e *Engine) SetUsage(t TokenStats) { e.usage = t }

// PersonaPrompt returns the active persona prompt fragment.
func (e *Engine) PersonaPrompt() string { return e.personaPrompt }

// SetPersonaPrompt sets the persona prompt fragment and rebuilds the system
// message. An empty value clears the persona.
func (e *Engine) SetPersonaPrompt(p string) {
	e.personaPrompt = p
	e.UpdateSystemMessage()
}

// SetBasePrompt sets the base system prompt and rebuilds the system message.
func (e *Engine) SetBasePrompt(p string) {
	e.basePrompt = p
	e.UpdateSystemMessage()
}

// SetProfilePrompt sets the profile prompt fragment and rebuilds the system
// message.
func (e *Engine) SetProfilePrompt(p string) {
	e.profilePrompt = p
	e.UpdateSystemMessage()
}

// ExtractSummary pulls the rolling-summary text out of a transcript, with
// the marker line stripped. Empty when no summary message is present.
func ExtractSummary(msgs []Message) string {
	for _, m := range msgs {
		if m.IsSummary() {
			rest := strings.TrimPrefix(m.Content, SummaryMarker)
			return strings.TrimPrefix(rest, "\n")
		}
	}
	return ""
}

package chat

import (
	"context"
	"strings"

	"github.com/olc-dev/olc/internal/debug"
)

// attachmentPlaceholder stands in for binary payloads in summary digests.
const attachmentPlaceholder = "[attachment]"

// MaybeSummarize condenses older conversation turns into the rolling summary
// when the estimated context size exceeds the token budget. force skips both
// the autosummarize setting and the budget comparison, though a disabled
// budget still makes it a no-op. Reports whether the transcript was
// compacted. Summarization failures leave the conversation untouched.
func (e *Engine) MaybeSummarize(ctx context.Context, force bool) bool {
	if !force && !e.cfg.Autosummarize {
		return false
	}
	if e.cfg.TokenBudget <= 0 {
		return false
	}
	total := e.EstimateContextTokens()
	if !force && total <= e.cfg.TokenBudget {
		return false
	}
	debug.Log("chat: context estimate %d, budget %d, summarizing", total, e.cfg.TokenBudget)
	return e.summarize(ctx)
}

// summarize runs one compaction round: split off the older turns, ask the
// summarizer for updated summary text, then rebuild the transcript as base
// system message + summary message + kept tail.
func (e *Engine) summarize(ctx context.Context) bool {
	if e.deps.Summarizer == nil {
		debug.Warn("chat", "summarization requested but no summarizer configured")
		return false
	}

	older, keep := e.splitForSummary()
	if len(older) == 0 {
		return false
	}

	model := e.cfg.SummaryModel
	if model == "" {
		model = e.model
	}

	text, err := e.deps.Summarizer.Summarize(ctx, model, e.cfg.SummaryInstruction, e.buildSummaryDigest(older))
	if err != nil {
		debug.Error("chat", err, "summarize")
		return false
	}
	text = strings.TrimSpace(text)
	if text == "" {
		debug.Warn("chat", "summarizer returned empty text, keeping conversation as is")
		return false
	}

	var rebuilt []Message
	if base := e.baseSystemIndex(); base >= 0 {
		rebuilt = append(rebuilt, e.messages[base])
	}
	rebuilt = append(rebuilt, keep...)
	e.messages = rebuilt
	e.summary = text
	e.UpdateSummaryMessage()
	return true
}

// splitForSummary separates the non-system turns into the older portion to
// be summarized and the most recent KeepLast turns to retain verbatim, at
// least one. older is empty when nothing lies beyond the retained tail.
func (e *Engine) splitForSummary() (older, keep []Message) {
	var conv []Message
	for _, m := range e.messages {
		if m.Role != RoleSystem {
			conv = append(conv, m)
		}
	}

	keepLast := e.cfg.KeepLast
	if keepLast < 1 {
		keepLast = 1
	}
	if len(conv) <= keepLast {
		return nil, conv
	}
	return conv[:len(conv)-keepLast], conv[len(conv)-keepLast:]
}

// buildSummaryDigest renders the previous summary plus the older turns as a
// plain-text prompt for the summarizer.
func (e *Engine) buildSummaryDigest(older []Message) string {
	var b strings.Builder
	if e.summary != "" {
		b.WriteString("Previous summary:\n")
		b.WriteString(e.summary)
		b.WriteString("\n\n")
	}
	b.WriteString("Messages:\n")
	for _, m := range older {
		label := "Assistant"
		if m.Role == RoleUser {
			label = "User"
		}
		content := m.Content
		if m.HasAttachments() {
			content = attachmentPlaceholder
		}
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(content)
		b.WriteString("\n")
	}
	b.WriteString("\nWrite a new, up-to-date summary of the conversation.")
	return b.String()
}

package chat

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeSummarizer struct {
	text    string
	err     error
	digests []string
}

func (f *fakeSummarizer) Summarize(_ context.Context, _, _, digest string) (string, error) {
	f.digests = append(f.digests, digest)
	return f.text, f.err
}

type fakeGenerator struct {
	result *ChatResult
	err    error
	last   ChatRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req ChatRequest, onDelta func(string)) (*ChatResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	if onDelta != nil {
		onDelta(f.result.Text)
	}
	return f.result, nil
}

func TestEstimateTokens(t *testing.T) {
	t.Run("empty text costs nothing", func(t *testing.T) {
		if got := EstimateTokens(""); got != 0 {
			t.Errorf("expected 0, got %d", got)
		}
	})

	t.Run("rounds up", func(t *testing.T) {
		if got := EstimateTokens("hello world"); got != 3 {
			t.Errorf("expected 3 for 11 chars, got %d", got)
		}
	})

	t.Run("counts runes not bytes", func(t *testing.T) {
		// 8 runes, 10 bytes in UTF-8.
		if got := EstimateTokens("günaydın"); got != 2 {
			t.Errorf("expected 2 for 8 runes, got %d", got)
		}
	})

	t.Run("non-empty text costs at least one", func(t *testing.T) {
		if got := EstimateTokens("a"); got != 1 {
			t.Errorf("expected 1, got %d", got)
		}
	})

	t.Run("attachments use flat cost", func(t *testing.T) {
		m := NewUserMessage("look at this", "aGVsbG8=")
		if got := EstimateMessageTokens(m); got != AttachmentTokenCost {
			t.Errorf("expected %d, got %d", AttachmentTokenCost, got)
		}
	})
}

func TestInitConversation(t *testing.T) {
	t.Run("seeds system message from prompt parts", func(t *testing.T) {
		e := New(Config{}, Deps{
			BasePrompt: func(string) string { return "be helpful" },
		})
		e.InitConversation("llama3")

		msgs := e.Messages()
		if len(msgs) != 1 {
			t.Fatalf("expected 1 message, got %d", len(msgs))
		}
		if msgs[0].Role != RoleSystem || msgs[0].Content != "be helpful" {
			t.Errorf("unexpected system message: %+v", msgs[0])
		}
	})

	t.Run("empty prompt seeds nothing", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.InitConversation("llama3")
		if len(e.Messages()) != 0 {
			t.Errorf("expected empty transcript, got %d messages", len(e.Messages()))
		}
	})

	t.Run("applies profile prompt and temperature", func(t *testing.T) {
		temp := 0.2
		e := New(Config{}, Deps{
			BasePrompt: func(string) string { return "base" },
			Profiles: func(model string) (string, *float64) {
				if model != "codellama" {
					t.Errorf("unexpected model %q", model)
				}
				return "write code", &temp
			},
		})
		e.InitConversation("codellama")

		if got := e.BuildSystemPrompt(); got != "base\n\nwrite code" {
			t.Errorf("unexpected prompt %q", got)
		}
		if e.Temperature() == nil || *e.Temperature() != 0.2 {
			t.Errorf("temperature override not applied")
		}
	})

	t.Run("discards previous conversation state", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.InitConversation("llama3")
		e.SetSummary("old summary")
		e.SetUsage(TokenStats{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})

		e.InitConversation("llama3")
		if e.Summary() != "" {
			t.Errorf("summary survived reinit")
		}
		if e.Usage() != (TokenStats{}) {
			t.Errorf("usage survived reinit")
		}
	})
}

func TestBuildSystemPrompt(t *testing.T) {
	e := New(Config{}, Deps{})
	e.basePrompt = "base"
	e.personaPrompt = "persona"

	if got := e.BuildSystemPrompt(); got != "base\n\npersona" {
		t.Errorf("empty parts should be skipped, got %q", got)
	}
}

func TestUpdateSummaryMessage(t *testing.T) {
	t.Run("inserts after base system message", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.messages = []Message{
			NewSystemMessage("base"),
			NewUserMessage("hi"),
			NewAssistantMessage("hello"),
		}
		e.SetSummary("we greeted each other")

		msgs := e.Messages()
		if len(msgs) != 4 {
			t.Fatalf("expected 4 messages, got %d", len(msgs))
		}
		if !msgs[1].IsSummary() {
			t.Errorf("summary not at position 1: %+v", msgs[1])
		}
		if !strings.HasPrefix(msgs[1].Content, SummaryMarker) {
			t.Errorf("summary message missing marker: %q", msgs[1].Content)
		}
	})

	t.Run("inserts first without base system message", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.messages = []Message{NewUserMessage("hi")}
		e.SetSummary("greeting")

		if msgs := e.Messages(); !msgs[0].IsSummary() {
			t.Errorf("summary not at position 0")
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.messages = []Message{NewSystemMessage("base"), NewUserMessage("hi")}
		e.SetSummary("greeting")
		before := e.Messages()
		e.UpdateSummaryMessage()
		e.UpdateSummaryMessage()

		after := e.Messages()
		if len(after) != len(before) {
			t.Fatalf("message count changed from %d to %d", len(before), len(after))
		}
		for i := range before {
			if before[i].Content != after[i].Content {
				t.Errorf("message %d changed", i)
			}
		}
	})

	t.Run("clearing summary removes the message", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.messages = []Message{NewSystemMessage("base"), NewUserMessage("hi")}
		e.SetSummary("greeting")
		e.SetSummary("")

		for _, m := range e.Messages() {
			if m.IsSummary() {
				t.Errorf("summary message still present")
			}
		}
	})
}

func TestUpdateSystemMessage(t *testing.T) {
	t.Run("rewrites base prompt in place", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.basePrompt = "old"
		e.messages = []Message{NewSystemMessage("old"), NewUserMessage("hi")}

		e.SetBasePrompt("new")
		msgs := e.Messages()
		if msgs[0].Content != "new" {
			t.Errorf("base prompt not rewritten: %q", msgs[0].Content)
		}
		if len(msgs) != 2 {
			t.Errorf("expected 2 messages, got %d", len(msgs))
		}
	})

	t.Run("clearing all parts removes the system message", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.basePrompt = "old"
		e.messages = []Message{NewSystemMessage("old"), NewUserMessage("hi")}

		e.SetBasePrompt("")
		msgs := e.Messages()
		if len(msgs) != 1 || msgs[0].Role != RoleUser {
			t.Errorf("expected only the user message, got %+v", msgs)
		}
	})

	t.Run("persona change keeps summary adjacent to base", func(t *testing.T) {
		e := New(Config{}, Deps{})
		e.basePrompt = "base"
		e.messages = []Message{NewSystemMessage("base"), NewUserMessage("hi")}
		e.SetSummary("greeting")

		e.SetPersonaPrompt("speak like a pirate")
		msgs := e.Messages()
		if msgs[0].Role != RoleSystem || msgs[0].IsSummary() {
			t.Fatalf("base system message not first: %+v", msgs[0])
		}
		if !strings.Contains(msgs[0].Content, "pirate") {
			t.Errorf("persona missing from system prompt: %q", msgs[0].Content)
		}
		if !msgs[1].IsSummary() {
			t.Errorf("summary no longer adjacent to base")
		}
	})
}

func TestMaybeSummarize(t *testing.T) {
	conversation := func() []Message {
		return []Message{
			NewSystemMessage("base"),
			NewUserMessage("first question about something long enough to count"),
			NewAssistantMessage("first answer with plenty of words in it to add up"),
			NewUserMessage("second question"),
			NewAssistantMessage("second answer"),
		}
	}

	t.Run("no-op under budget", func(t *testing.T) {
		sum := &fakeSummarizer{text: "summary"}
		e := New(Config{TokenBudget: 100000, KeepLast: 2, Autosummarize: true}, Deps{Summarizer: sum})
		e.messages = conversation()

		if e.MaybeSummarize(context.Background(), false) {
			t.Errorf("summarized while under budget")
		}
		if len(sum.digests) != 0 {
			t.Errorf("summarizer was called")
		}
	})

	t.Run("forced compacts even under budget", func(t *testing.T) {
		sum := &fakeSummarizer{text: "they discussed two questions"}
		e := New(Config{TokenBudget: 100000, KeepLast: 1, Autosummarize: true}, Deps{Summarizer: sum})
		e.messages = conversation()

		if !e.MaybeSummarize(context.Background(), true) {
			t.Fatalf("forced summarization did nothing")
		}
		if len(sum.digests) != 1 {
			t.Fatalf("summarizer called %d times, want 1", len(sum.digests))
		}
		if e.Summary() != "they discussed two questions" {
			t.Errorf("summary not recorded: %q", e.Summary())
		}
		msgs := e.Messages()
		// base system + summary + 1 kept turn
		if len(msgs) != 3 {
			t.Fatalf("expected 3 messages, got %d", len(msgs))
		}
		if msgs[len(msgs)-1].Content != "second answer" {
			t.Errorf("tail not kept: %q", msgs[len(msgs)-1].Content)
		}
	})

	t.Run("no-op when budget disabled", func(t *testing.T) {
		e := New(Config{TokenBudget: 0, KeepLast: 2, Autosummarize: true}, Deps{Summarizer: &fakeSummarizer{text: "s"}})
		e.messages = conversation()
		if e.MaybeSummarize(context.Background(), true) {
			t.Errorf("summarized with zero budget")
		}
	})

	t.Run("no-op when autosummarize off and not forced", func(t *testing.T) {
		e := New(Config{TokenBudget: 1, KeepLast: 2}, Deps{Summarizer: &fakeSummarizer{text: "s"}})
		e.messages = conversation()
		if e.MaybeSummarize(context.Background(), false) {
			t.Errorf("summarized with autosummarize off")
		}
	})

	t.Run("compacts over budget", func(t *testing.T) {
		sum := &fakeSummarizer{text: "they discussed two questions"}
		e := New(Config{TokenBudget: 1, KeepLast: 2, Autosummarize: true}, Deps{Summarizer: sum})
		e.messages = conversation()

		if !e.MaybeSummarize(context.Background(), false) {
			t.Fatalf("did not summarize over budget")
		}

		msgs := e.Messages()
		// base system + summary + 2 kept turns
		if len(msgs) != 4 {
			t.Fatalf("expected 4 messages, got %d: %+v", len(msgs), msgs)
		}
		if msgs[0].Content != "base" {
			t.Errorf("base system message lost")
		}
		if !msgs[1].IsSummary() {
			t.Errorf("summary message not after base")
		}
		if msgs[2].Content != "second question" || msgs[3].Content != "second answer" {
			t.Errorf("kept tail wrong: %+v", msgs[2:])
		}
		if e.Summary() != "they discussed two questions" {
			t.Errorf("summary not stored: %q", e.Summary())
		}

		if len(sum.digests) != 1 {
			t.Fatalf("summarizer called %d times", len(sum.digests))
		}
		digest := sum.digests[0]
		if !strings.Contains(digest, "User: first question") {
			t.Errorf("digest missing older user turn: %q", digest)
		}
		if strings.Contains(digest, "second question") {
			t.Errorf("digest includes kept turns: %q", digest)
		}
	})

	t.Run("digest carries previous summary", func(t *testing.T) {
		sum := &fakeSummarizer{text: "updated"}
		e := New(Config{TokenBudget: 1, KeepLast: 1, Autosummarize: true}, Deps{Summarizer: sum})
		e.messages = conversation()
		e.summary = "earlier recap"

		e.MaybeSummarize(context.Background(), true)
		if len(sum.digests) != 1 || !strings.Contains(sum.digests[0], "Previous summary:\nearlier recap") {
			t.Errorf("previous summary missing from digest")
		}
	})

	t.Run("failure leaves conversation unchanged", func(t *testing.T) {
		e := New(Config{TokenBudget: 1, KeepLast: 2, Autosummarize: true}, Deps{
			Summarizer: &fakeSummarizer{err: errors.New("model offline")},
		})
		e.messages = conversation()
		before := len(e.Messages())

		if e.MaybeSummarize(context.Background(), false) {
			t.Errorf("reported success on failure")
		}
		if len(e.Messages()) != before {
			t.Errorf("transcript changed on failure")
		}
		if e.Summary() != "" {
			t.Errorf("summary set on failure")
		}
	})

	t.Run("nothing older than the kept tail", func(t *testing.T) {
		sum := &fakeSummarizer{text: "s"}
		e := New(Config{TokenBudget: 1, KeepLast: 10, Autosummarize: true}, Deps{Summarizer: sum})
		e.messages = conversation()

		if e.MaybeSummarize(context.Background(), true) {
			t.Errorf("summarized with nothing to compact")
		}
	})
}

func TestSplitForSummary(t *testing.T) {
	conv := []Message{
		NewSystemMessage("base"),
		NewUserMessage("one"),
		NewAssistantMessage("two"),
		NewUserMessage("three"),
		NewAssistantMessage("four"),
	}

	t.Run("boundary keeps everything", func(t *testing.T) {
		e := New(Config{KeepLast: 4}, Deps{})
		e.messages = conv
		older, keep := e.splitForSummary()
		if len(older) != 0 {
			t.Errorf("expected nothing to summarize, got %d", len(older))
		}
		if len(keep) != 4 || keep[0].Content != "one" {
			t.Errorf("keep should be the full non-system list: %+v", keep)
		}
	})

	t.Run("keep is the tail", func(t *testing.T) {
		e := New(Config{KeepLast: 2}, Deps{})
		e.messages = conv
		older, keep := e.splitForSummary()
		if len(older) != 2 || older[0].Content != "one" || older[1].Content != "two" {
			t.Errorf("unexpected older: %+v", older)
		}
		if len(keep) != 2 || keep[0].Content != "three" || keep[1].Content != "four" {
			t.Errorf("unexpected keep: %+v", keep)
		}
	})

	t.Run("keep-last floor of one", func(t *testing.T) {
		e := New(Config{KeepLast: 0}, Deps{})
		e.messages = conv
		older, keep := e.splitForSummary()
		if len(keep) != 1 || keep[0].Content != "four" {
			t.Errorf("expected the latest turn kept: %+v", keep)
		}
		if len(older) != 3 {
			t.Errorf("unexpected older: %+v", older)
		}
	})
}

func TestSendUserMessage(t *testing.T) {
	t.Run("appends turn and tracks usage", func(t *testing.T) {
		gen := &fakeGenerator{result: &ChatResult{Text: "hello there", PromptTokens: 12, CompletionTokens: 4}}
		e := New(Config{}, Deps{Generator: gen})
		e.InitConversation("llama3")

		var streamed strings.Builder
		res, err := e.SendUserMessage(context.Background(), "hi", nil, func(s string) { streamed.WriteString(s) })
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != "hello there" {
			t.Errorf("unexpected result text %q", res.Text)
		}
		if streamed.String() != "hello there" {
			t.Errorf("delta callback not invoked")
		}

		msgs := e.Messages()
		if len(msgs) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(msgs))
		}
		if msgs[0].Role != RoleUser || msgs[1].Role != RoleAssistant {
			t.Errorf("unexpected roles: %+v", msgs)
		}

		usage := e.Usage()
		if usage.PromptTokens != 12 || usage.CompletionTokens != 4 || usage.TotalTokens != 16 {
			t.Errorf("unexpected usage: %+v", usage)
		}
		if gen.last.Model != "llama3" {
			t.Errorf("model not forwarded: %q", gen.last.Model)
		}
	})

	t.Run("backend failure keeps the user message", func(t *testing.T) {
		e := New(Config{}, Deps{Generator: &fakeGenerator{err: errors.New("connection refused")}})
		e.InitConversation("llama3")

		_, err := e.SendUserMessage(context.Background(), "hi", nil, nil)
		if err == nil {
			t.Fatalf("expected error")
		}

		msgs := e.Messages()
		if len(msgs) != 1 || msgs[0].Role != RoleUser {
			t.Errorf("expected only the user message, got %+v", msgs)
		}
		if e.Usage() != (TokenStats{}) {
			t.Errorf("usage changed on failure")
		}
	})
}

func TestExtractSummary(t *testing.T) {
	msgs := []Message{
		NewSystemMessage("base"),
		NewSystemMessage(SummaryMarker + "\nthe recap"),
	}
	if got := ExtractSummary(msgs); got != "the recap" {
		t.Errorf("expected %q, got %q", "the recap", got)
	}
	if got := ExtractSummary(nil); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}

func TestTrimTrailingAssistant(t *testing.T) {
	e := New(Config{}, Deps{})
	e.messages = []Message{NewUserMessage("hi"), NewAssistantMessage("hello")}

	if !e.TrimTrailingAssistant() {
		t.Fatalf("expected removal")
	}
	if e.TrimTrailingAssistant() {
		t.Errorf("removed a non-assistant message")
	}
	if len(e.Messages()) != 1 {
		t.Errorf("unexpected transcript: %+v", e.Messages())
	}
}

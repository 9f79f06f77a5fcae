// Package app wires the pieces into the interactive chat loop: input
// handling, slash commands, streaming output, and session autosave.
package app

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/olc-dev/olc/internal/chat"
	"github.com/olc-dev/olc/internal/codec"
	"github.com/olc-dev/olc/internal/config"
	"github.com/olc-dev/olc/internal/debug"
	"github.com/olc-dev/olc/internal/ollama"
	"github.com/olc-dev/olc/internal/persona"
	"github.com/olc-dev/olc/internal/session"
	"github.com/olc-dev/olc/internal/tui"
)

// App is the interactive chat application.
type App struct {
	cfg    *config.Config
	client *ollama.Client
	engine *chat.Engine
	store  *session.Store

	styles   tui.Styles
	markdown *tui.MarkdownRenderer
	masker   *codec.Masker

	in  *bufio.Scanner
	out io.Writer

	profiles *persona.Resolver

	currentID   string
	personaName string
	pending     []string // attachments queued for the next message
	lastReply   string
}

// New assembles the application from configuration.
func New(cfg *config.Config) (*App, error) {
	var masker *codec.Masker
	if cfg.MaskSensitive {
		masker = codec.NewMasker(cfg.MaskPatterns)
	}

	store, err := session.New(cfg.SessionsDir(), session.Options{
		Masker:         masker,
		Encrypt:        cfg.EncryptionEnabled,
		EncryptionKey:  cfg.ResolveEncryptionKey(),
		RetentionCount: cfg.SessionRetentionCount,
		RetentionDays:  cfg.SessionRetentionDays,
	})
	if err != nil {
		return nil, err
	}

	client := ollama.New(cfg.Host)
	resolver := persona.NewResolver(cfg)
	engine := chat.New(chat.Config{
		TokenBudget:        cfg.ContextTokenBudget,
		KeepLast:           cfg.ContextKeepLast,
		Autosummarize:      cfg.ContextAutosummarize,
		SummaryModel:       cfg.SummaryModel,
		SummaryInstruction: cfg.SummaryPrompt,
	}, chat.Deps{
		Generator:  client,
		Summarizer: client,
		Profiles:   resolver.Resolve,
		BasePrompt: cfg.SystemPromptFor,
	})

	theme := tui.DefaultTheme()
	return &App{
		cfg:      cfg,
		client:   client,
		engine:   engine,
		store:    store,
		masker:   masker,
		profiles: resolver,
		styles:   tui.NewStyles(theme),
		markdown: tui.NewMarkdownRenderer(theme),
		in:       bufio.NewScanner(os.Stdin),
		out:      os.Stdout,
	}, nil
}

// Run starts the chat loop and blocks until the user quits or input ends.
func (a *App) Run(ctx context.Context) error {
	model := a.cfg.DefaultModel
	if model == "" {
		picked, err := a.pickDefaultModel(ctx)
		if err != nil {
			return err
		}
		model = picked
	} else if err := a.client.Ping(ctx); err != nil {
		a.printWarning(fmt.Sprintf("%s is not answering, replies will fail until it is up", a.cfg.Host))
		debug.Error("app", err, "ping")
	}
	a.engine.InitConversation(model)

	a.printBanner()

	for {
		fmt.Fprint(a.out, a.styles.Prompt.Render("you ❯ "))
		if !a.in.Scan() {
			fmt.Fprintln(a.out)
			return a.in.Err()
		}
		line := strings.TrimSpace(a.in.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.dispatch(ctx, line)
			if err != nil {
				a.printError(err)
			}
			if quit {
				return nil
			}
			continue
		}

		a.sendMessage(ctx, line)
	}
}

// pickDefaultModel asks the server for its models and takes the first one.
func (a *App) pickDefaultModel(ctx context.Context) (string, error) {
	models, err := a.client.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("no default model configured and %s is unreachable: %w", a.cfg.Host, err)
	}
	if len(models) == 0 {
		return "", fmt.Errorf("no models installed on %s, pull one first", a.cfg.Host)
	}
	return models[0].Name, nil
}

func (a *App) sendMessage(ctx context.Context, text string) {
	attachments := a.pending
	a.pending = nil

	var onDelta func(string)
	if !a.cfg.RenderMarkdown {
		onDelta = func(s string) { fmt.Fprint(a.out, s) }
	}

	start := time.Now()
	res, err := a.engine.SendUserMessage(ctx, text, attachments, onDelta)
	if err != nil {
		a.printError(err)
		return
	}
	a.lastReply = res.Text

	if a.cfg.RenderMarkdown {
		fmt.Fprintln(a.out)
		fmt.Fprint(a.out, a.markdown.Render(res.Text, a.termWidth()))
	} else {
		fmt.Fprintln(a.out)
	}

	if a.cfg.ShowMetrics {
		elapsed := time.Since(start).Round(100 * time.Millisecond)
		fmt.Fprintln(a.out, a.styles.Muted.Render(fmt.Sprintf(
			"prompt %d · completion %d · total %d tokens · %s",
			res.PromptTokens, res.CompletionTokens, res.PromptTokens+res.CompletionTokens, elapsed)))
	}
	fmt.Fprintln(a.out)

	if a.cfg.AutoSave {
		if err := a.saveCurrent(""); err != nil {
			a.printWarning(fmt.Sprintf("autosave failed: %v", err))
		}
	}
}

// saveCurrent persists the live conversation, creating a session on first
// save and then pruning with the open session protected.
func (a *App) saveCurrent(title string) error {
	data := &session.Data{
		Meta: session.Meta{
			ID:    a.currentID,
			Title: title,
			Model: a.engine.Model(),
		},
		Messages:    a.engine.Messages(),
		Summary:     a.engine.Summary(),
		Usage:       a.engine.Usage(),
		Persona:     a.personaName,
		Temperature: a.engine.Temperature(),
	}

	meta, err := a.store.Save(data)
	if err != nil {
		return err
	}
	a.currentID = meta.ID

	if _, err := a.store.Prune(a.currentID); err != nil {
		a.printWarning(fmt.Sprintf("pruning old sessions failed: %v", err))
	}
	return nil
}

// restoreSession loads a saved session into the engine.
func (a *App) restoreSession(id string) error {
	data, err := a.store.Load(id)
	if err != nil {
		return err
	}

	a.engine.InitConversation(data.Meta.Model)
	a.engine.SetMessages(data.Messages)
	if data.Summary != "" {
		a.engine.SetSummary(data.Summary)
	}
	a.engine.SetUsage(data.Usage)
	a.engine.SetTemperature(data.Temperature)

	a.personaName = ""
	if data.Persona != "" {
		if p, err := persona.Get(data.Persona); err == nil {
			a.personaName = p.Name
			a.engine.SetPersonaPrompt(p.Prompt)
		} else {
			debug.Warn("app", "session %s references unknown persona %q", id, data.Persona)
		}
	}

	a.currentID = id
	a.lastReply = ""
	title := data.Meta.Title
	if title == "" {
		title = id
	}
	a.printSuccess(fmt.Sprintf("Loaded %s (%d messages, model %s)", title, data.Meta.MessageCount, data.Meta.Model))
	return nil
}

func (a *App) attach(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}
	a.pending = append(a.pending, base64.StdEncoding.EncodeToString(raw))
	a.printSuccess(fmt.Sprintf("Attached %s (%d bytes), it will go with your next message", path, len(raw)))
	return nil
}

func (a *App) termWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		if w > 120 {
			return 120
		}
		return w
	}
	return 100
}

func (a *App) printBanner() {
	fmt.Fprintln(a.out, a.styles.Title.Render("olc · local chat"))
	fmt.Fprintln(a.out, a.styles.Muted.Render(fmt.Sprintf("model %s · host %s · /help for commands", a.engine.Model(), a.cfg.Host)))
	fmt.Fprintln(a.out)
}

func (a *App) printError(err error) {
	fmt.Fprintln(a.out, a.styles.Error.Render("error: "+err.Error()))
}

func (a *App) printWarning(msg string) {
	fmt.Fprintln(a.out, a.styles.Warning.Render(msg))
}

func (a *App) printSuccess(msg string) {
	fmt.Fprintln(a.out, a.styles.Success.Render(msg))
}

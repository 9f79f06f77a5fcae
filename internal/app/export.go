package app

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/olc-dev/olc/internal/chat"
)

const defaultExportFormat = "md"

// export writes the current transcript to a file under the exports
// directory. Masking applies the same way it does for saved sessions.
func (a *App) export(format string) error {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = defaultExportFormat
	}

	title := a.exportTitle()
	msgs := a.engine.Messages()
	summary := a.engine.Summary()
	if a.masker != nil {
		title = a.masker.Mask(title)
		summary = a.masker.Mask(summary)
		for i := range msgs {
			msgs[i].Content = a.masker.Mask(msgs[i].Content)
		}
	}

	var content string
	switch format {
	case "json":
		raw, err := json.MarshalIndent(exportDocument{
			Title:     title,
			Model:     a.engine.Model(),
			Timestamp: time.Now().Format(time.RFC3339),
			Messages:  msgs,
			Summary:   summary,
			Usage:     a.engine.Usage(),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding export: %w", err)
		}
		content = string(raw)
	case "md":
		content = renderMarkdownExport(title, a.engine.Model(), msgs)
	case "txt":
		content = renderTextExport(title, a.engine.Model(), msgs)
	default:
		return fmt.Errorf("unknown export format %q, formats: md, json, txt", format)
	}

	dir := a.cfg.ExportsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}
	name := fmt.Sprintf("%s_%s.%s", time.Now().Format("20060102_150405"), exportSlug(title), format)
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	a.printSuccess("Exported to " + path)
	return nil
}

// exportDocument is the JSON export payload.
type exportDocument struct {
	Title     string          `json:"title"`
	Model     string          `json:"model"`
	Timestamp string          `json:"timestamp"`
	Messages  []chat.Message  `json:"messages"`
	Summary   string          `json:"summary,omitempty"`
	Usage     chat.TokenStats `json:"token_stats"`
}

// exportTitle prefers the saved session title and falls back to the model.
func (a *App) exportTitle() string {
	if a.currentID != "" {
		if metas, err := a.store.List(); err == nil {
			for _, m := range metas {
				if m.ID == a.currentID && m.Title != "" {
					return m.Title
				}
			}
		}
	}
	return "Chat with " + a.engine.Model()
}

func renderMarkdownExport(title, model string, msgs []chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Model:** %s  \n", model)
	fmt.Fprintf(&b, "**Date:** %s\n\n---\n\n", time.Now().Format("2006-01-02 15:04:05"))
	for _, m := range msgs {
		if m.Role == chat.RoleSystem {
			continue
		}
		label := "Assistant"
		if m.Role == chat.RoleUser {
			label = "You"
		}
		content := m.Content
		if m.HasAttachments() {
			content = "*[attachment]*"
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n---\n\n", label, content)
	}
	return b.String()
}

func renderTextExport(title, model string, msgs []chat.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", title)
	fmt.Fprintf(&b, "Model: %s\n", model)
	fmt.Fprintf(&b, "Date: %s\n", time.Now().Format("2006-01-02 15:04:05"))
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	for _, m := range msgs {
		if m.Role == chat.RoleSystem {
			continue
		}
		label := "YOU"
		if m.Role == chat.RoleAssistant {
			label = strings.ToUpper(model)
		}
		content := m.Content
		if m.HasAttachments() {
			content = "[attachment]"
		}
		fmt.Fprintf(&b, "[%s]\n%s\n\n", label, content)
	}
	return b.String()
}

// exportSlug turns a title into a short filesystem-safe fragment.
func exportSlug(title string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, title)
	if len(slug) > 30 {
		slug = slug[:30]
	}
	if slug == "" {
		slug = "chat"
	}
	return slug
}

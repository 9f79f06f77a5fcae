package tui

import (
	"fmt"
	"image/color"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/ansi"
	glamourstyles "github.com/charmbracelet/glamour/styles"
	"github.com/muesli/termenv"
)

// MarkdownRenderer renders markdown to styled terminal output, caching the
// underlying renderer until the wrap width changes.
type MarkdownRenderer struct {
	theme       Theme
	renderer    *glamour.TermRenderer
	cachedWidth int
	mu          sync.RWMutex
}

// NewMarkdownRenderer creates a renderer themed with t.
func NewMarkdownRenderer(t Theme) *MarkdownRenderer {
	return &MarkdownRenderer{theme: t}
}

// Render renders content wrapped to width. On any rendering error the plain
// text comes back unchanged so output is never lost.
func (m *MarkdownRenderer) Render(content string, width int) string {
	if content == "" {
		return ""
	}
	renderer, err := m.getRenderer(width)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

func (m *MarkdownRenderer) getRenderer(width int) (*glamour.TermRenderer, error) {
	m.mu.RLock()
	if m.renderer != nil && m.cachedWidth == width {
		defer m.mu.RUnlock()
		return m.renderer, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer != nil && m.cachedWidth == width {
		return m.renderer, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStyles(m.buildStyle()),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
		glamour.WithColorProfile(termenv.TrueColor),
	)
	if err != nil {
		return nil, err
	}

	m.renderer = renderer
	m.cachedWidth = width
	return renderer, nil
}

// buildStyle adapts the dark glamour style to the app theme.
func (m *MarkdownRenderer) buildStyle() ansi.StyleConfig {
	style := glamourstyles.DarkStyleConfig

	primary := colorToHex(m.theme.Primary)
	secondary := colorToHex(m.theme.Secondary)
	accent := colorToHex(m.theme.Accent)
	muted := colorToHex(m.theme.Muted)

	style.H1.Color = stringPtr(accent)
	style.H1.Bold = boolPtr(true)
	style.H1.Prefix = ""
	style.H1.Suffix = ""
	style.H2.Color = stringPtr(primary)
	style.H2.Bold = boolPtr(true)
	style.H2.Prefix = ""
	style.H3.Color = stringPtr(secondary)
	style.H3.Bold = boolPtr(true)
	style.H3.Prefix = ""

	style.Code.Color = stringPtr(secondary)

	style.Link.Color = stringPtr(primary)
	style.Link.Underline = boolPtr(true)
	style.LinkText.Color = stringPtr(primary)

	style.Item.BlockPrefix = "  "
	style.Enumeration.BlockPrefix = "  "

	style.BlockQuote.Color = stringPtr(muted)
	style.BlockQuote.Italic = boolPtr(true)

	style.HorizontalRule.Color = stringPtr(muted)

	return style
}

func stringPtr(s string) *string { return &s }
func boolPtr(b bool) *bool       { return &b }

func colorToHex(c color.Color) string {
	r, g, b, _ := c.RGBA()
	return fmt.Sprintf("#%02x%02x%02x", r>>8, g>>8, b>>8)
}

package tui

import (
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"

	"github.com/olc-dev/olc/internal/session"
)

// PickSession runs a full-screen picker over the saved sessions and returns
// the chosen session id, or "" when the user backs out.
func PickSession(metas []session.Meta) (string, error) {
	m := newPickerModel(metas)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return "", fmt.Errorf("running session picker: %w", err)
	}
	if pm, ok := final.(*pickerModel); ok && !pm.canceled {
		return pm.selected, nil
	}
	return "", nil
}

type pickerModel struct {
	all      []session.Meta
	filtered []session.Meta

	cursor int
	offset int
	width  int
	height int

	search     textinput.Model
	searchMode bool

	selected string
	canceled bool

	styles Styles
}

func newPickerModel(metas []session.Meta) *pickerModel {
	ti := textinput.New()
	ti.Placeholder = "Type to search..."
	ti.CharLimit = 100

	return &pickerModel{
		all:      metas,
		filtered: metas,
		width:    80,
		height:   24,
		search:   ti,
		styles:   NewStyles(DefaultTheme()),
	}
}

func (m *pickerModel) Init() tea.Cmd {
	return nil
}

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.searchMode {
			return m.updateSearch(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.canceled = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
				m.ensureVisible()
			}
		case "down", "j":
			if m.cursor < len(m.filtered)-1 {
				m.cursor++
				m.ensureVisible()
			}
		case "home", "g":
			m.cursor = 0
			m.offset = 0
		case "end", "G":
			m.cursor = max(0, len(m.filtered)-1)
			m.ensureVisible()
		case "enter":
			if m.cursor >= 0 && m.cursor < len(m.filtered) {
				m.selected = m.filtered[m.cursor].ID
				return m, tea.Quit
			}
		case "/":
			m.searchMode = true
			m.search.SetValue("")
			return m, m.search.Focus()
		}
	}
	return m, nil
}

func (m *pickerModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.searchMode = false
		m.search.Blur()
		m.search.SetValue("")
		m.applyFilter()
		return m, nil
	case "enter":
		m.searchMode = false
		m.search.Blur()
		return m, nil
	case "ctrl+c":
		m.canceled = true
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *pickerModel) applyFilter() {
	keyword := strings.ToLower(strings.TrimSpace(m.search.Value()))
	if keyword == "" {
		m.filtered = m.all
	} else {
		m.filtered = nil
		for _, meta := range m.all {
			if metaMatches(meta, keyword) {
				m.filtered = append(m.filtered, meta)
			}
		}
	}
	m.cursor = 0
	m.offset = 0
}

func metaMatches(meta session.Meta, keyword string) bool {
	if strings.Contains(strings.ToLower(meta.Title), keyword) ||
		strings.Contains(strings.ToLower(meta.ID), keyword) ||
		strings.Contains(strings.ToLower(meta.Model), keyword) ||
		strings.Contains(strings.ToLower(meta.SummaryExcerpt), keyword) {
		return true
	}
	for _, tag := range meta.Tags {
		if strings.Contains(strings.ToLower(tag), keyword) {
			return true
		}
	}
	return false
}

func (m *pickerModel) ensureVisible() {
	rows := m.visibleRows()
	if m.cursor < m.offset {
		m.offset = m.cursor
	} else if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
}

func (m *pickerModel) visibleRows() int {
	// Each entry takes two lines plus spacing; leave room for header/footer.
	return max(1, (m.height-6)/3)
}

func (m *pickerModel) View() tea.View {
	var view tea.View
	view.AltScreen = true

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Sessions"))
	b.WriteString("\n\n")

	if m.searchMode || m.search.Value() != "" {
		b.WriteString(m.search.View())
		b.WriteString("  ")
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf("%d / %d", len(m.filtered), len(m.all))))
		b.WriteString("\n\n")
	}

	if len(m.filtered) == 0 {
		if m.search.Value() != "" {
			b.WriteString(m.styles.Muted.Render("No sessions match your search."))
		} else {
			b.WriteString(m.styles.Muted.Render("No saved sessions."))
		}
	} else {
		rows := m.visibleRows()
		end := min(m.offset+rows, len(m.filtered))

		if m.offset > 0 {
			b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  ↑ %d more above", m.offset)))
			b.WriteString("\n")
		}
		for i := m.offset; i < end; i++ {
			b.WriteString(m.renderEntry(m.filtered[i], i == m.cursor))
			b.WriteString("\n\n")
		}
		if remaining := len(m.filtered) - end; remaining > 0 {
			b.WriteString(m.styles.Muted.Render(fmt.Sprintf("  ↓ %d more below", remaining)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render("enter: open · /: search · q: cancel"))

	view.Content = b.String()
	if m.searchMode {
		view.Cursor = m.search.Cursor()
	}
	return view
}

func (m *pickerModel) renderEntry(meta session.Meta, selected bool) string {
	title := meta.Title
	if title == "" {
		title = meta.ID
	}
	maxTitle := max(10, m.width-30)
	if len(title) > maxTitle {
		title = title[:maxTitle-3] + "..."
	}

	info := fmt.Sprintf("%s · %d msgs · %s", meta.Model, meta.MessageCount, formatRelativeTime(meta.UpdatedAt))
	if meta.Encrypted {
		info += " · encrypted"
	}
	if len(meta.Tags) > 0 {
		info += " · " + m.styles.Tag.Render(strings.Join(meta.Tags, ","))
	}

	preview := strings.ReplaceAll(meta.SummaryExcerpt, "\n", " ")
	if preview == "" {
		preview = "(no summary)"
	}
	maxPreview := max(10, m.width-6)
	if len(preview) > maxPreview {
		preview = preview[:maxPreview-3] + "..."
	}

	var b strings.Builder
	if selected {
		b.WriteString(m.styles.Selected.Render("> " + title))
		b.WriteString("  ")
		b.WriteString(m.styles.Muted.Render(info))
		b.WriteString("\n")
		b.WriteString("  " + preview)
	} else {
		b.WriteString("  " + title)
		b.WriteString("  ")
		b.WriteString(m.styles.Muted.Render(info))
		b.WriteString("\n")
		b.WriteString(m.styles.Muted.Render("  " + preview))
	}
	return b.String()
}

func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d mins ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 48*time.Hour:
		return "yesterday"
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2")
	}
}

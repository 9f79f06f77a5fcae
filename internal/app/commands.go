package app

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/olc-dev/olc/internal/chat"
	"github.com/olc-dev/olc/internal/config"
	"github.com/olc-dev/olc/internal/persona"
	"github.com/olc-dev/olc/internal/tui"
)

// dispatch executes one slash command. The bool result requests shutdown.
func (a *App) dispatch(ctx context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help", "/?":
		a.printHelp()

	case "/new":
		// The active persona and profile survive a reset, only the
		// transcript and the session binding go.
		a.engine.InitConversation(a.engine.Model())
		a.currentID = ""
		a.lastReply = ""
		a.printSuccess("Started a new conversation")

	case "/save":
		if err := a.saveCurrent(rest); err != nil {
			return false, err
		}
		a.printSuccess("Saved as " + a.currentID)

	case "/load":
		id := rest
		if id == "" {
			metas, err := a.store.List()
			if err != nil {
				return false, err
			}
			id, err = tui.PickSession(metas)
			if err != nil {
				return false, err
			}
			if id == "" {
				return false, nil
			}
		}
		return false, a.restoreSession(id)

	case "/sessions", "/ls":
		return false, a.listSessions()

	case "/delete", "/rm":
		if rest == "" {
			return false, fmt.Errorf("usage: /delete <session-id>")
		}
		if err := a.store.Delete(rest); err != nil {
			return false, err
		}
		if rest == a.currentID {
			a.currentID = ""
		}
		a.printSuccess("Deleted " + rest)

	case "/title":
		if rest == "" || a.currentID == "" {
			return false, fmt.Errorf("usage: /title <text> (save the session first)")
		}
		if err := a.store.UpdateTitle(a.currentID, rest); err != nil {
			return false, err
		}
		a.printSuccess("Title updated")

	case "/tags":
		if rest == "" || a.currentID == "" {
			return false, fmt.Errorf("usage: /tags tag1,tag2 (save the session first)")
		}
		tags := splitTags(rest)
		if err := a.store.UpdateTags(a.currentID, tags); err != nil {
			return false, err
		}
		a.printSuccess("Tags: " + strings.Join(tags, ", "))

	case "/persona":
		return false, a.switchPersona(rest)

	case "/profile":
		return false, a.switchProfile(rest)

	case "/personas":
		for _, name := range persona.Names() {
			p, _ := persona.Get(name)
			marker := "  "
			if name == a.personaName {
				marker = a.styles.Success.Render("* ")
			}
			fmt.Fprintf(a.out, "%s%s  %s\n", marker, a.styles.User.Render(name), a.styles.Muted.Render(p.Description))
		}

	case "/model":
		if rest == "" {
			fmt.Fprintln(a.out, "Current model: "+a.engine.Model())
			return false, nil
		}
		a.engine.SetModel(rest)
		a.engine.UpdateSystemMessage()
		a.printSuccess("Switched to " + rest)

	case "/models":
		return false, a.listModels(ctx)

	case "/summarize":
		if a.engine.MaybeSummarize(ctx, true) {
			a.printSuccess("Conversation summarized")
			fmt.Fprint(a.out, a.markdown.Render(a.engine.Summary(), a.termWidth()))
		} else {
			fmt.Fprintln(a.out, a.styles.Muted.Render("Nothing to summarize"))
		}

	case "/tokens":
		a.printTokens()

	case "/export":
		return false, a.export(rest)

	case "/temp":
		return false, a.setTemperature(rest)

	case "/history":
		a.printHistory()

	case "/search":
		if rest == "" {
			return false, fmt.Errorf("usage: /search <keyword>")
		}
		a.searchMessages(rest)

	case "/clear":
		a.engine.InitConversation(a.engine.Model())
		a.printSuccess("Conversation cleared")

	case "/copy":
		if a.lastReply == "" {
			return false, fmt.Errorf("nothing to copy yet")
		}
		if err := clipboard.WriteAll(a.lastReply); err != nil {
			return false, fmt.Errorf("copying to clipboard: %w", err)
		}
		a.printSuccess("Last reply copied to clipboard")

	case "/retry":
		if !a.engine.TrimTrailingAssistant() {
			return false, fmt.Errorf("no reply to retry")
		}
		msgs := a.engine.Messages()
		if len(msgs) == 0 || msgs[len(msgs)-1].Role != chat.RoleUser {
			return false, fmt.Errorf("nothing to retry")
		}
		last := msgs[len(msgs)-1]
		a.engine.SetMessages(msgs[:len(msgs)-1])
		a.pending = last.Attachments
		a.sendMessage(ctx, last.Content)

	case "/attach":
		if rest == "" {
			return false, fmt.Errorf("usage: /attach <file>")
		}
		return false, a.attach(rest)

	case "/set":
		if len(args) < 2 {
			return false, fmt.Errorf("usage: /set <key> <value>")
		}
		if err := config.SetField(args[0], strings.Join(args[1:], " ")); err != nil {
			return false, err
		}
		a.printSuccess(fmt.Sprintf("Set %s, restart to apply everywhere", args[0]))

	default:
		return false, fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return false, nil
}

// switchProfile activates a named profile (or clears it) and re-resolves the
// profile prompt and temperature for the current model. Without an argument
// it lists the configured profiles.
func (a *App) switchProfile(name string) error {
	switch name {
	case "":
		if len(a.cfg.Profiles) == 0 {
			fmt.Fprintln(a.out, a.styles.Muted.Render("No profiles configured."))
			return nil
		}
		for pname, p := range a.cfg.Profiles {
			marker := "  "
			if pname == a.cfg.ActiveProfile {
				marker = a.styles.Success.Render("* ")
			}
			fmt.Fprintf(a.out, "%s%s  %s\n", marker, a.styles.User.Render(pname), a.styles.Muted.Render(p.Description))
		}
		return nil
	case "off":
		a.cfg.ActiveProfile = ""
	default:
		if _, ok := a.cfg.Profiles[name]; !ok {
			return fmt.Errorf("unknown profile %q", name)
		}
		a.cfg.ActiveProfile = name
	}

	prompt, temp := a.profiles.Resolve(a.engine.Model())
	a.engine.SetTemperature(temp)
	a.engine.SetProfilePrompt(prompt)
	if name == "off" {
		a.printSuccess("Profile cleared")
	} else {
		a.printSuccess("Profile: " + name)
	}
	return nil
}

func (a *App) switchPersona(name string) error {
	if name == "" || name == "off" {
		a.personaName = ""
		a.engine.SetPersonaPrompt("")
		a.printSuccess("Persona cleared")
		return nil
	}
	p, err := persona.Get(name)
	if err != nil {
		return err
	}
	a.personaName = p.Name
	a.engine.SetPersonaPrompt(p.Prompt)
	a.printSuccess("Persona: " + p.Name)
	return nil
}

// setTemperature overrides the sampling temperature at runtime. "off" falls
// back to whatever the active profile resolves for the current model.
func (a *App) setTemperature(arg string) error {
	switch arg {
	case "":
		if t := a.engine.Temperature(); t != nil {
			fmt.Fprintf(a.out, "Current temperature: %g\n", *t)
		} else {
			fmt.Fprintln(a.out, "Current temperature: default")
		}
		fmt.Fprintln(a.out, a.styles.Muted.Render("usage: /temp <0.0-2.0> or /temp off"))
		return nil
	case "off":
		_, temp := a.profiles.Resolve(a.engine.Model())
		a.engine.SetTemperature(temp)
		a.printSuccess("Temperature back to default")
		return nil
	}

	val, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return fmt.Errorf("invalid temperature %q", arg)
	}
	if val < 0 || val > 2 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	a.engine.SetTemperature(&val)
	a.printSuccess(fmt.Sprintf("Temperature: %g", val))
	return nil
}

// printHistory lists the conversation turns, truncated.
func (a *App) printHistory() {
	for _, m := range a.engine.Messages() {
		if m.Role == chat.RoleSystem {
			continue
		}
		style := a.styles.Assistant
		if m.Role == chat.RoleUser {
			style = a.styles.User
		}
		fmt.Fprintf(a.out, "%s %s\n", style.Render(string(m.Role)+":"), truncateRunes(m.Content, 80))
	}
}

// searchMessages prints the conversation turns containing the keyword,
// case-insensitively.
func (a *App) searchMessages(keyword string) {
	needle := strings.ToLower(keyword)
	found := 0
	for i, m := range a.engine.Messages() {
		if m.Role == chat.RoleSystem || !strings.Contains(strings.ToLower(m.Content), needle) {
			continue
		}
		found++
		style := a.styles.Assistant
		if m.Role == chat.RoleUser {
			style = a.styles.User
		}
		fmt.Fprintf(a.out, "%3d %s %s\n", i, style.Render(string(m.Role)+":"), truncateRunes(m.Content, 100))
	}
	if found == 0 {
		fmt.Fprintln(a.out, a.styles.Muted.Render(fmt.Sprintf("No match for %q", keyword)))
	}
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func (a *App) listSessions() error {
	metas, err := a.store.List()
	if err != nil {
		return err
	}
	if len(metas) == 0 {
		fmt.Fprintln(a.out, a.styles.Muted.Render("No saved sessions."))
		return nil
	}
	for _, m := range metas {
		title := m.Title
		if title == "" {
			title = "(untitled)"
		}
		marker := "  "
		if m.ID == a.currentID {
			marker = a.styles.Success.Render("* ")
		}
		line := fmt.Sprintf("%s%s  %s", marker, a.styles.User.Render(m.ID), title)
		extra := fmt.Sprintf("%s · %d msgs · %s", m.Model, m.MessageCount, m.UpdatedAt.Local().Format("2006-01-02 15:04"))
		if m.Encrypted {
			extra += " · encrypted"
		}
		if len(m.Tags) > 0 {
			extra += " · " + strings.Join(m.Tags, ",")
		}
		fmt.Fprintln(a.out, line)
		fmt.Fprintln(a.out, "    "+a.styles.Muted.Render(extra))
	}
	return nil
}

func (a *App) listModels(ctx context.Context) error {
	models, err := a.client.ListModels(ctx)
	if err != nil {
		return err
	}
	running := map[string]bool{}
	if loaded, err := a.client.Running(ctx); err == nil {
		for _, m := range loaded {
			running[m.Name] = true
		}
	}
	for _, m := range models {
		marker := "  "
		switch {
		case m.Name == a.engine.Model():
			marker = a.styles.Success.Render("* ")
		case running[m.Name]:
			marker = a.styles.User.Render("· ")
		}
		fmt.Fprintf(a.out, "%s%s  %s\n", marker, m.Name, a.styles.Muted.Render(formatSize(m.Size)))
	}
	return nil
}

func (a *App) printTokens() {
	est := a.engine.EstimateContextTokens()
	usage := a.engine.Usage()
	budget := a.cfg.ContextTokenBudget

	line := fmt.Sprintf("context ≈ %d tokens", est)
	if budget > 0 {
		line += fmt.Sprintf(" of %d budget", budget)
	}
	fmt.Fprintln(a.out, line)
	fmt.Fprintln(a.out, a.styles.Muted.Render(fmt.Sprintf(
		"session usage: prompt %d · completion %d · total %d",
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)))
	if a.engine.Summary() != "" {
		fmt.Fprintln(a.out, a.styles.Muted.Render("rolling summary active"))
	}
}

func (a *App) printHelp() {
	rows := [][2]string{
		{"/save [title]", "save the conversation"},
		{"/load [id]", "load a session (picker without id)"},
		{"/sessions", "list saved sessions"},
		{"/delete <id>", "delete a session"},
		{"/title <text>", "rename the current session"},
		{"/tags a,b", "tag the current session"},
		{"/new", "start a fresh conversation"},
		{"/model [name]", "show or switch the model"},
		{"/models", "list installed models"},
		{"/persona [name|off]", "apply a persona"},
		{"/personas", "list personas"},
		{"/profile [name|off]", "activate a config profile"},
		{"/summarize", "force context summarization"},
		{"/tokens", "show context and usage"},
		{"/temp [value|off]", "override the sampling temperature"},
		{"/history", "list the conversation turns"},
		{"/search <word>", "search the conversation"},
		{"/export [md|json|txt]", "export the transcript to a file"},
		{"/retry", "regenerate the last reply"},
		{"/attach <file>", "attach a file to the next message"},
		{"/copy", "copy the last reply"},
		{"/set <key> <value>", "update a config field"},
		{"/clear", "clear the conversation"},
		{"/quit", "exit"},
	}
	for _, r := range rows {
		fmt.Fprintf(a.out, "  %s %s\n", a.styles.User.Render(fmt.Sprintf("%-20s", r[0])), a.styles.Muted.Render(r[1]))
	}
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func formatSize(b int64) string {
	const gb = 1 << 30
	const mb = 1 << 20
	switch {
	case b >= gb:
		return fmt.Sprintf("%.1f GB", float64(b)/gb)
	case b >= mb:
		return fmt.Sprintf("%.0f MB", float64(b)/mb)
	default:
		return fmt.Sprintf("%d B", b)
	}
}

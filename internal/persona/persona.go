// Package persona defines the built-in conversational personas and resolves
// per-model profiles into prompt fragments and sampling overrides.
package persona

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olc-dev/olc/internal/config"
)

// Persona is a named system-prompt fragment layered on top of the base
// prompt.
type Persona struct {
	Name        string
	Description string
	Prompt      string
}

var builtins = map[string]Persona{
	"developer": {
		Name:        "developer",
		Description: "Pragmatic software engineer",
		Prompt:      "You are a pragmatic senior software engineer. Give concise, technically precise answers with working code examples. Prefer standard tools over clever tricks.",
	},
	"teacher": {
		Name:        "teacher",
		Description: "Patient explainer",
		Prompt:      "You are a patient teacher. Explain concepts step by step, check understanding, and use simple analogies before formal definitions.",
	},
	"assistant": {
		Name:        "assistant",
		Description: "General-purpose helper",
		Prompt:      "You are a helpful, direct assistant. Answer plainly and keep responses as short as the question allows.",
	},
	"creative": {
		Name:        "creative",
		Description: "Imaginative writer",
		Prompt:      "You are a creative writing partner. Offer vivid, original ideas, vary tone and structure, and never settle for the obvious phrasing.",
	},
	"analyst": {
		Name:        "analyst",
		Description: "Structured reasoner",
		Prompt:      "You are a careful analyst. Break problems into parts, state your assumptions explicitly, and quantify uncertainty where you can.",
	},
	"debug": {
		Name:        "debug",
		Description: "Methodical troubleshooter",
		Prompt:      "You are a methodical debugging partner. Ask for the exact error output, form hypotheses one at a time, and suggest the smallest experiment that discriminates between them.",
	},
}

// Get looks up a built-in persona by name.
func Get(name string) (Persona, error) {
	p, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Persona{}, fmt.Errorf("unknown persona %q (try: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists the built-in persona names, sorted.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolver maps model names to profile settings from the configuration.
type Resolver struct {
	cfg *config.Config
}

// NewResolver creates a resolver over cfg.
func NewResolver(cfg *config.Config) *Resolver {
	return &Resolver{cfg: cfg}
}

// Resolve determines the profile prompt and temperature override for model.
// Precedence, lowest to highest: the model-to-profile mapping (longest
// matching model fragment wins), auto-apply profiles whose model matches,
// then the explicitly activated profile.
func (r *Resolver) Resolve(model string) (string, *float64) {
	var prompt string
	var temp *float64

	apply := func(p config.Profile) {
		if p.SystemPrompt != "" {
			prompt = p.SystemPrompt
		}
		if p.Temperature != nil {
			temp = p.Temperature
		}
	}

	if name := r.profileForModel(model); name != "" {
		if p, ok := r.cfg.Profiles[name]; ok {
			apply(p)
		}
	}

	for _, name := range sortedKeys(r.cfg.Profiles) {
		p := r.cfg.Profiles[name]
		if p.AutoApply && p.Model != "" && modelMatches(model, p.Model) {
			apply(p)
		}
	}

	if r.cfg.ActiveProfile != "" {
		if p, ok := r.cfg.Profiles[r.cfg.ActiveProfile]; ok {
			apply(p)
		}
	}
	return prompt, temp
}

// profileForModel finds the model-to-profile mapping entry whose model
// fragment best matches model. Longer fragments beat shorter ones.
func (r *Resolver) profileForModel(model string) string {
	best := ""
	bestLen := -1
	for fragment, name := range r.cfg.ModelProfiles {
		if modelMatches(model, fragment) && len(fragment) > bestLen {
			best = name
			bestLen = len(fragment)
		}
	}
	return best
}

// modelMatches reports whether a configured model fragment applies to model:
// exact match, prefix, or substring, case-insensitively.
func modelMatches(model, fragment string) bool {
	m := strings.ToLower(model)
	f := strings.ToLower(fragment)
	return m == f || strings.HasPrefix(m, f) || strings.Contains(m, f)
}

func sortedKeys(m map[string]config.Profile) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

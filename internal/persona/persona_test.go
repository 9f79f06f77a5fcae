package persona

import (
	"strings"
	"testing"

	"github.com/olc-dev/olc/internal/config"
)

func TestGet(t *testing.T) {
	t.Run("known persona", func(t *testing.T) {
		p, err := Get("developer")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if p.Prompt == "" {
			t.Errorf("empty prompt")
		}
	})

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		if _, err := Get("  Teacher "); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("unknown persona lists options", func(t *testing.T) {
		_, err := Get("wizard")
		if err == nil || !strings.Contains(err.Error(), "developer") {
			t.Errorf("expected error naming the options, got %v", err)
		}
	})
}

func TestResolve(t *testing.T) {
	temp := func(v float64) *float64 { return &v }

	t.Run("no profiles", func(t *testing.T) {
		r := NewResolver(config.Default())
		prompt, tp := r.Resolve("llama3")
		if prompt != "" || tp != nil {
			t.Errorf("expected empty resolution, got %q %v", prompt, tp)
		}
	})

	t.Run("longest model fragment wins", func(t *testing.T) {
		cfg := config.Default()
		cfg.Profiles = map[string]config.Profile{
			"generic": {SystemPrompt: "generic"},
			"coder":   {SystemPrompt: "write code", Temperature: temp(0.2)},
		}
		cfg.ModelProfiles = map[string]string{
			"qwen":           "generic",
			"qwen2.5-coder":  "coder",
		}

		r := NewResolver(cfg)
		prompt, tp := r.Resolve("qwen2.5-coder:7b")
		if prompt != "write code" {
			t.Errorf("expected coder profile, got %q", prompt)
		}
		if tp == nil || *tp != 0.2 {
			t.Errorf("temperature not applied")
		}
	})

	t.Run("auto-apply profile matches model", func(t *testing.T) {
		cfg := config.Default()
		cfg.Profiles = map[string]config.Profile{
			"vision": {Model: "llava", SystemPrompt: "describe images", AutoApply: true},
		}

		r := NewResolver(cfg)
		if prompt, _ := r.Resolve("llava:13b"); prompt != "describe images" {
			t.Errorf("auto-apply profile not applied, got %q", prompt)
		}
		if prompt, _ := r.Resolve("llama3"); prompt != "" {
			t.Errorf("auto-apply leaked to other model: %q", prompt)
		}
	})

	t.Run("active profile overrides", func(t *testing.T) {
		cfg := config.Default()
		cfg.Profiles = map[string]config.Profile{
			"coder":  {SystemPrompt: "write code"},
			"pirate": {SystemPrompt: "talk like a pirate", Temperature: temp(0.9)},
		}
		cfg.ModelProfiles = map[string]string{"llama": "coder"}
		cfg.ActiveProfile = "pirate"

		r := NewResolver(cfg)
		prompt, tp := r.Resolve("llama3")
		if prompt != "talk like a pirate" {
			t.Errorf("active profile not applied, got %q", prompt)
		}
		if tp == nil || *tp != 0.9 {
			t.Errorf("active profile temperature not applied")
		}
	})
}

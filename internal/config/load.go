package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/tidwall/sjson"
)

const configFileName = "olc.json"

// ConfigDir returns the directory holding the config file. The OLC_HOME
// environment variable overrides the XDG location (used by tests and
// portable installs).
func ConfigDir() string {
	if home := strings.TrimSpace(os.Getenv("OLC_HOME")); home != "" {
		return home
	}
	return filepath.Join(xdg.ConfigHome, appName)
}

// Path returns the path to the configuration file.
func Path() string {
	return filepath.Join(ConfigDir(), configFileName)
}

// DataDirPath returns the data directory: the configured override, OLC_HOME,
// or the XDG data home.
func (c *Config) DataDirPath() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	if home := strings.TrimSpace(os.Getenv("OLC_HOME")); home != "" {
		return home
	}
	return filepath.Join(xdg.DataHome, appName)
}

// SessionsDir returns the directory holding saved sessions.
func (c *Config) SessionsDir() string {
	return filepath.Join(c.DataDirPath(), "sessions")
}

// ExportsDir returns the directory transcript exports are written to.
func (c *Config) ExportsDir() string {
	if c.ExportDir != "" {
		return c.ExportDir
	}
	return filepath.Join(c.DataDirPath(), "exports")
}

// LogPath returns the debug log location.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDirPath(), "debug.log")
}

// Load reads the configuration file, creating it with defaults on first run.
// Fields absent from the file keep their default values.
func Load() (*Config, error) {
	cfg := Default()
	path := Path()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if writeErr := Save(cfg); writeErr != nil {
				return nil, fmt.Errorf("writing initial config: %w", writeErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]Profile)
	}
	if cfg.ModelProfiles == nil {
		cfg.ModelProfiles = make(map[string]string)
	}
	return cfg, nil
}

// Save writes the full configuration to disk.
func Save(cfg *Config) error {
	path := Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// SetField updates a single field in the config file using JSON path
// notation. Only the specified field is touched; everything else in the file,
// including fields this build does not know about, is preserved. String
// values that parse as booleans or numbers are stored as such.
func SetField(key, value string) error {
	path := Path()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			data = []byte("{}")
		} else {
			return fmt.Errorf("reading config file: %w", err)
		}
	}

	newData, err := sjson.Set(string(data), key, coerceValue(value))
	if err != nil {
		return fmt.Errorf("setting config field %q: %w", key, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(newData), 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func coerceValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

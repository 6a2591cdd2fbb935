package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

// defaultSettings is the built-in base layer. Every later layer overrides
// individual keys; the registry below covers the models the usage endpoint
// reports windows for.
var defaultSettings = []byte(`
default_model: gemini-2.5-pro

models:
  - name: gemini-2.5-pro
    context_window: 1048576
    max_output: 65536
  - name: gemini-2.5-flash
    context_window: 1048576
    max_output: 65536
  - name: gpt-4o
    context_window: 128000
    max_output: 16384

api:
  base_url: http://localhost:8000
  chat_path: /v1/chat
  usage_path: /v1/usage
  timeout_seconds: 300

apply:
  create_backups: true
  reject_create_existing: false
  warn_incomplete_blocks: false
  blocked_write_patterns:
    - ".env"
    - ".env.*"
    - "*.pem"
    - "*.key"
    - "*_rsa"
    - "*_ed25519"
    - "credentials*"
    - "secrets/*"
    - ".git/*"

agent:
  max_rounds: 5

token:
  warn_at: 0.8
  critical_at: 0.95

session:
  backend: json

bundler:
  max_file_bytes: 1048576
  excludes:
    - ".git"
    - "node_modules"
    - "vendor"
    - "dist"
    - "build"
    - "__pycache__"
    - "*.bak"
    - "*.lock"
`)

// Load resolves settings through the full precedence chain. overridePath, when
// non-empty, replaces both file layers with the named file, which must exist.
func Load(overridePath string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(rawbytes.Provider(defaultSettings), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load built-in defaults: %w", err)
	}

	if overridePath != "" {
		if err := loadFile(k, overridePath, true); err != nil {
			return nil, err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			if err := loadFile(k, filepath.Join(home, ".coda", "settings.yaml"), false); err != nil {
				return nil, err
			}
		}
		if err := loadFile(k, filepath.Join(".coda", "settings.yaml"), false); err != nil {
			return nil, err
		}
	}

	// CODA_AGENT_MAX_ROUNDS -> agent.max_rounds, CODA_DEFAULT_MODEL ->
	// default_model. First underscore separates section from field; known
	// top-level keys stay flat.
	if err := k.Load(env.Provider("CODA_", ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, "CODA_"))
		switch lower {
		case "default_model", "verbose":
			return lower
		}
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Settings
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// loadFile merges one YAML layer into k. A missing file is an error only when
// the caller named it explicitly.
func loadFile(k *koanf.Koanf, path string, required bool) error {
	info, err := os.Stat(path)
	if err != nil {
		if required {
			return fmt.Errorf("config file %s: %w", path, err)
		}
		return nil
	}
	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %s is %d bytes (max %d)", path, info.Size(), maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return nil
}

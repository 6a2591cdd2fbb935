// Package config loads coda settings with a fixed precedence chain:
// built-in defaults, then ~/.coda/settings.yaml, then ./.coda/settings.yaml,
// then CODA_* environment variables. Callers apply CLI flags on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// ModelInfo describes one selectable model.
type ModelInfo struct {
	Name          string `koanf:"name" yaml:"name"`
	ContextWindow int    `koanf:"context_window" yaml:"context_window"`
	MaxOutput     int    `koanf:"max_output" yaml:"max_output"`
}

// APISettings configures the chat transport.
type APISettings struct {
	BaseURL        string `koanf:"base_url" yaml:"base_url"`
	ChatPath       string `koanf:"chat_path" yaml:"chat_path"`
	UsagePath      string `koanf:"usage_path" yaml:"usage_path"`
	TimeoutSeconds int    `koanf:"timeout_seconds" yaml:"timeout_seconds"`
}

// ApplySettings configures edit application.
type ApplySettings struct {
	CreateBackups        bool     `koanf:"create_backups" yaml:"create_backups"`
	BlockedWritePatterns []string `koanf:"blocked_write_patterns" yaml:"blocked_write_patterns"`
	RejectCreateExisting bool     `koanf:"reject_create_existing" yaml:"reject_create_existing"`
	WarnIncompleteBlocks bool     `koanf:"warn_incomplete_blocks" yaml:"warn_incomplete_blocks"`
}

// AgentSettings configures the multi-round loop.
type AgentSettings struct {
	MaxRounds int `koanf:"max_rounds" yaml:"max_rounds"`
}

// TokenSettings configures usage thresholds as ratios of the context window.
type TokenSettings struct {
	WarnAt     float64 `koanf:"warn_at" yaml:"warn_at"`
	CriticalAt float64 `koanf:"critical_at" yaml:"critical_at"`
}

// SessionSettings configures conversation persistence.
type SessionSettings struct {
	Backend string `koanf:"backend" yaml:"backend"` // "json", "sqlite", or "both"
}

// BundlerSettings configures project file bundling.
type BundlerSettings struct {
	Excludes     []string `koanf:"excludes" yaml:"excludes"`
	MaxFileBytes int64    `koanf:"max_file_bytes" yaml:"max_file_bytes"`
}

// Settings is the complete resolved configuration.
type Settings struct {
	DefaultModel string      `koanf:"default_model" yaml:"default_model"`
	Models       []ModelInfo `koanf:"models" yaml:"models"`

	API     APISettings     `koanf:"api" yaml:"api"`
	Apply   ApplySettings   `koanf:"apply" yaml:"apply"`
	Agent   AgentSettings   `koanf:"agent" yaml:"agent"`
	Token   TokenSettings   `koanf:"token" yaml:"token"`
	Session SessionSettings `koanf:"session" yaml:"session"`
	Bundler BundlerSettings `koanf:"bundler" yaml:"bundler"`

	Verbose bool `koanf:"verbose" yaml:"verbose"`
}

// Model resolves a model by name, falling back to the default model when name
// is empty. Unknown names get a registry entry with the fallback context
// window so an unrecognized model still tracks tokens.
func (s *Settings) Model(name string) ModelInfo {
	if name == "" {
		name = s.DefaultModel
	}
	for _, m := range s.Models {
		if m.Name == name {
			return m
		}
	}
	return ModelInfo{Name: name, ContextWindow: 128000}
}

// ModelNames lists the registry in configured order.
func (s *Settings) ModelNames() []string {
	names := make([]string, 0, len(s.Models))
	for _, m := range s.Models {
		names = append(names, m.Name)
	}
	return names
}

// Validate rejects settings that cannot produce a working run.
func (s *Settings) Validate() error {
	if s.Agent.MaxRounds < 1 {
		return fmt.Errorf("agent.max_rounds must be at least 1, got %d", s.Agent.MaxRounds)
	}
	if s.Token.WarnAt <= 0 || s.Token.WarnAt >= 1 {
		return fmt.Errorf("token.warn_at must be in (0, 1), got %g", s.Token.WarnAt)
	}
	if s.Token.CriticalAt <= s.Token.WarnAt || s.Token.CriticalAt > 1 {
		return fmt.Errorf("token.critical_at must be in (warn_at, 1], got %g", s.Token.CriticalAt)
	}
	switch s.Session.Backend {
	case "json", "sqlite", "both":
	default:
		return fmt.Errorf("session.backend must be json, sqlite, or both, got %q", s.Session.Backend)
	}
	return nil
}

// Dir returns the per-user coda directory, creating it on first use.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	dir := filepath.Join(home, ".coda")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}
	return dir, nil
}

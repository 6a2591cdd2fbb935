package config

import (
	"os"
	"path/filepath"
	"testing"
)

// isolate points HOME at a scratch dir so user-level settings never leak in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestDefaultsLoad(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultModel == "" {
		t.Fatal("default model is empty")
	}
	if cfg.Agent.MaxRounds != 5 {
		t.Fatalf("max rounds = %d, want 5", cfg.Agent.MaxRounds)
	}
	if cfg.Token.WarnAt != 0.8 || cfg.Token.CriticalAt != 0.95 {
		t.Fatalf("thresholds = %g/%g, want 0.8/0.95", cfg.Token.WarnAt, cfg.Token.CriticalAt)
	}
	if len(cfg.Apply.BlockedWritePatterns) == 0 {
		t.Fatal("blocked write patterns are empty")
	}
	if !cfg.Apply.CreateBackups {
		t.Fatal("backups should default on")
	}
}

func TestUserFileOverridesDefaults(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".coda")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	content := "agent:\n  max_rounds: 8\ndefault_model: gpt-4o\n"
	if err := os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxRounds != 8 {
		t.Fatalf("max rounds = %d, want 8", cfg.Agent.MaxRounds)
	}
	if cfg.DefaultModel != "gpt-4o" {
		t.Fatalf("default model = %q, want gpt-4o", cfg.DefaultModel)
	}
	// Untouched keys keep their defaults.
	if cfg.Token.WarnAt != 0.8 {
		t.Fatalf("warn_at = %g, want default 0.8", cfg.Token.WarnAt)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	home := isolate(t)
	dir := filepath.Join(home, ".coda")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "settings.yaml"), []byte("agent:\n  max_rounds: 8\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CODA_AGENT_MAX_ROUNDS", "3")
	t.Setenv("CODA_DEFAULT_MODEL", "gemini-2.5-flash")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Agent.MaxRounds != 3 {
		t.Fatalf("max rounds = %d, want 3", cfg.Agent.MaxRounds)
	}
	if cfg.DefaultModel != "gemini-2.5-flash" {
		t.Fatalf("default model = %q, want gemini-2.5-flash", cfg.DefaultModel)
	}
}

func TestExplicitPathRequired(t *testing.T) {
	isolate(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing explicit config file should fail")
	}
}

func TestValidationRejectsBadThresholds(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("token:\n  warn_at: 0.9\n  critical_at: 0.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("inverted thresholds should fail validation")
	}
}

func TestModelLookup(t *testing.T) {
	isolate(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	m := cfg.Model("")
	if m.Name != cfg.DefaultModel {
		t.Fatalf("empty lookup returned %q, want default %q", m.Name, cfg.DefaultModel)
	}
	unknown := cfg.Model("mystery-model")
	if unknown.ContextWindow != 128000 {
		t.Fatalf("unknown model window = %d, want fallback 128000", unknown.ContextWindow)
	}
}

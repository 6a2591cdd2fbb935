// Package cli defines and parses the command-line flags.
package cli

import (
	"fmt"

	"github.com/spf13/pflag"
)

// Config holds all the command-line flag values.
type Config struct {
	Message    string
	Agent      bool
	MaxRounds  int
	Apply      bool
	AutoApply  bool
	DryRun     bool
	NoBackup   bool
	Model      string
	Session    string
	Files      []string
	Skills     []string
	Prompt     string
	ConfigPath string
	Verbose    bool
	Plain      bool
	Undo       bool
	Login      bool
	Logout     bool
}

// ParseFlags defines and parses command-line flags using pflag.
func ParseFlags() (*Config, error) {
	cfg := &Config{}

	pflag.StringVarP(&cfg.Message, "message", "m", "", "Send one message and exit (omit to read stdin or clipboard, or start the REPL).")
	pflag.BoolVarP(&cfg.Agent, "agent", "a", false, "Run the multi-round agent loop instead of a single exchange.")
	pflag.IntVar(&cfg.MaxRounds, "max-rounds", 0, "Maximum agent rounds (default from settings).")

	pflag.BoolVar(&cfg.Apply, "apply", false, "Apply edits from stdin or clipboard without calling the model.")
	pflag.BoolVarP(&cfg.AutoApply, "auto-apply", "y", false, "Apply edits without per-file confirmation.")
	pflag.BoolVarP(&cfg.DryRun, "dry-run", "n", false, "Show what would change without writing files.")
	pflag.BoolVar(&cfg.NoBackup, "no-backup", false, "Skip .bak backups before overwriting files.")

	pflag.StringVar(&cfg.Model, "model", "", "Model to use (default from settings).")
	pflag.StringVarP(&cfg.Session, "session", "s", "", "Resume the session with this ID.")
	pflag.StringSliceVarP(&cfg.Files, "file", "f", []string{}, "Files, directories, or globs to attach to the prompt.")
	pflag.StringSliceVar(&cfg.Skills, "skill", []string{}, "Skills to layer on the system prompt.")
	pflag.StringVarP(&cfg.Prompt, "prompt", "p", "", "Named system prompt to use.")

	pflag.StringVarP(&cfg.ConfigPath, "config", "c", "", "Settings file to use instead of the default chain.")
	pflag.BoolVarP(&cfg.Verbose, "verbose", "v", false, "Write a debug log under ~/.coda/logs.")
	pflag.BoolVar(&cfg.Plain, "plain", false, "Disable markdown rendering and color.")

	// Standalone actions
	pflag.BoolVar(&cfg.Undo, "undo", false, "Revert the files of the last apply batch.")
	pflag.BoolVar(&cfg.Login, "login", false, "Store an API token.")
	pflag.BoolVar(&cfg.Logout, "logout", false, "Remove the stored API token.")

	pflag.Usage = func() {
		fmt.Println("Usage: coda [flags]")
		fmt.Println("\nTerminal coding agent: sends a prompt, extracts edit blocks from the")
		fmt.Println("response, and applies them to files under the current project.")
		fmt.Println("\nExamples:")
		fmt.Println("  coda -m \"rename the Foo type to Bar\" -f internal/")
		fmt.Println("  coda -a -m \"make the tests pass\" -y")
		fmt.Println("  pbpaste | coda --apply")
		fmt.Println("\nFlags:")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.AutoApply && c.DryRun {
		return fmt.Errorf("error: --auto-apply and --dry-run are mutually exclusive")
	}
	if c.Login && c.Logout {
		return fmt.Errorf("error: --login and --logout are mutually exclusive")
	}
	standalone := 0
	for _, b := range []bool{c.Undo, c.Login, c.Logout} {
		if b {
			standalone++
		}
	}
	if standalone > 0 && (c.Agent || c.Apply || c.Message != "") {
		return fmt.Errorf("error: --undo, --login and --logout do not combine with other actions")
	}
	if c.Apply && c.Agent {
		return fmt.Errorf("error: --apply does not call the model; drop --agent")
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("error: --max-rounds must be positive")
	}
	return nil
}

package coda

import (
	"context"
	"fmt"

	"github.com/sokinpui/coda/internal/agent"
	"github.com/sokinpui/coda/internal/apply"
	"github.com/sokinpui/coda/internal/extract"
)

// Options configures the library surface.
type Options struct {
	// Root is the project root; empty means the current directory.
	Root string
	// BlockedPatterns replaces the default credential blocklist when set.
	BlockedPatterns []string
	// Backups controls .bak creation before overwrites.
	Backups bool
	// MaxRounds bounds RunAgent; zero means 5.
	MaxRounds int
}

var defaultBlocked = []string{
	".env", ".env.*", "*.pem", "*.key", "*_rsa", "*_ed25519",
	"credentials*", "secrets/*", ".git/*",
}

func newApplier(o Options) (*apply.Applier, error) {
	blocked := o.BlockedPatterns
	if blocked == nil {
		blocked = defaultBlocked
	}
	return apply.New(apply.Options{
		Root:            o.Root,
		BlockedPatterns: blocked,
		CreateBackups:   o.Backups,
	})
}

// Parse extracts edit operations from response text without touching any
// files.
func Parse(content string) ([]extract.EditOperation, []string) {
	parsed := (&extract.Parser{}).Parse(content)
	return parsed.Ops, parsed.Warnings
}

// Apply parses content and applies every extracted edit without prompting.
func Apply(content string, o Options) (Summary, error) {
	applier, err := newApplier(o)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to initialize applier: %w", err)
	}
	parsed := (&extract.Parser{}).Parse(content)
	outcomes := applier.ApplyAll(parsed.Ops, apply.ModeAuto)
	if len(parsed.Diffs) > 0 {
		outcomes = append(outcomes, applier.ApplyDiffs(parsed.Diffs, apply.ModeAuto)...)
	}
	return summarize(outcomes), nil
}

// RunAgent drives the multi-round loop with a caller-supplied transport,
// applying edits automatically each round.
func RunAgent(ctx context.Context, prompt string, send agent.SendFunc, o Options) (Summary, error) {
	applier, err := newApplier(o)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to initialize applier: %w", err)
	}
	maxRounds := o.MaxRounds
	if maxRounds == 0 {
		maxRounds = 5
	}
	orch := agent.New(send, &extract.Parser{}, applier, agent.Options{
		MaxRounds: maxRounds,
		Mode:      apply.ModeAuto,
	})
	result := orch.Run(ctx, prompt)

	var outcomes []apply.Outcome
	for _, r := range result.Rounds {
		outcomes = append(outcomes, r.Outcomes...)
	}
	s := summarize(outcomes)
	s.Message = string(result.StopReason)
	return s, nil
}

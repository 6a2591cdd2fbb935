// Package agent drives the multi-round loop: send prompt, receive response,
// extract edits, apply them, and decide whether to continue. Failures feed
// back into the next round's prompt so the model can correct itself within a
// bounded number of rounds.
package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/coda/internal/apply"
	"github.com/sokinpui/coda/internal/extract"
	"github.com/sokinpui/coda/internal/token"
)

// Message is one conversation turn handed to the transport.
type Message struct {
	Role    string
	Content string
}

// SendFunc delivers a message with accumulated history and blocks until the
// complete response text is available. Streamed delivery may happen
// underneath; the orchestrator never sees a partial response.
type SendFunc func(ctx context.Context, message string, history []Message) (string, error)

// StopReason explains why the loop terminated.
type StopReason string

const (
	StopNoActions   StopReason = "no-actions"
	StopMaxRounds   StopReason = "max-rounds"
	StopTokenBudget StopReason = "token-budget"
	StopCancelled   StopReason = "cancelled"
	StopSendError   StopReason = "send-error"
)

// RoundResult records one SEND -> RECEIVE -> EXTRACT -> APPLY -> DECIDE
// cycle.
type RoundResult struct {
	Round          int
	Response       string
	Attempted      []extract.EditOperation
	Outcomes       []apply.Outcome
	ShouldContinue bool
}

// AppliedPaths returns the paths of successfully applied edits, in order.
func (r RoundResult) AppliedPaths() []string {
	var paths []string
	for _, o := range r.Outcomes {
		if o.Applied {
			paths = append(paths, o.Path)
		}
	}
	return paths
}

// Failures returns the hard failures of the round.
func (r RoundResult) Failures() []apply.Outcome {
	var failed []apply.Outcome
	for _, o := range r.Outcomes {
		if o.Failed() {
			failed = append(failed, o)
		}
	}
	return failed
}

// Result is the outcome of a complete agent run.
type Result struct {
	Rounds     []RoundResult
	StopReason StopReason
}

// AppliedPaths returns the union of applied paths across rounds, de-duplicated
// in first-touch order.
func (r Result) AppliedPaths() []string {
	seen := make(map[string]bool)
	var paths []string
	for _, round := range r.Rounds {
		for _, p := range round.AppliedPaths() {
			if !seen[p] {
				seen[p] = true
				paths = append(paths, p)
			}
		}
	}
	return paths
}

// FailedEdits counts hard failures across all rounds.
func (r Result) FailedEdits() int {
	n := 0
	for _, round := range r.Rounds {
		n += len(round.Failures())
	}
	return n
}

// continueMarker lets a response without edits ask for another round.
const continueMarker = "CONTINUE"

// Options configures an agent run.
type Options struct {
	MaxRounds    int
	Mode         apply.Mode
	SystemPrompt string
	SkillPrompt  string
}

// Orchestrator sequences rounds, evaluates stop conditions, and assembles
// feedback messages. It never parses responses itself and never writes
// files itself; those are the extractor's and applier's jobs.
type Orchestrator struct {
	send    SendFunc
	parser  *extract.Parser
	applier *apply.Applier
	opts    Options

	// Budget reports token usage status; critical stops the loop at the
	// next round boundary. Nil means unlimited.
	Budget func() token.Status
	// OnResponse observes each complete response, e.g. for rendering.
	OnResponse func(round int, response string)
	// Warn receives non-fatal notices (parse warnings, send errors).
	Warn func(format string, args ...interface{})

	Log *zap.SugaredLogger
}

// New creates an orchestrator. MaxRounds below 1 is treated as 1.
func New(send SendFunc, parser *extract.Parser, applier *apply.Applier, opts Options) *Orchestrator {
	if opts.MaxRounds < 1 {
		opts.MaxRounds = 1
	}
	return &Orchestrator{
		send:    send,
		parser:  parser,
		applier: applier,
		opts:    opts,
		Log:     zap.NewNop().Sugar(),
	}
}

// Run executes up to MaxRounds rounds starting from the initial prompt and
// returns the accumulated result. The context cancels the loop at round
// boundaries; an in-flight send is expected to honor it cooperatively.
func (o *Orchestrator) Run(ctx context.Context, initialPrompt string) Result {
	var result Result
	history := []Message{}
	message := o.buildFullPrompt(initialPrompt)

	for round := 1; ; round++ {
		o.Log.Debugw("agent round start", "round", round, "max", o.opts.MaxRounds)

		response, err := o.send(ctx, message, history)
		if err != nil {
			o.warn("Request failed: %v", err)
			result.StopReason = StopSendError
			if ctx.Err() != nil {
				result.StopReason = StopCancelled
			}
			return result
		}
		history = append(history,
			Message{Role: "user", Content: message},
			Message{Role: "assistant", Content: response},
		)
		if o.OnResponse != nil {
			o.OnResponse(round, response)
		}

		parsed := o.parser.Parse(response)
		for _, w := range parsed.Warnings {
			o.warn("%s", w)
		}

		var outcomes []apply.Outcome
		if len(parsed.Ops) > 0 {
			outcomes = o.applier.ApplyAll(parsed.Ops, o.opts.Mode)
		}
		if len(parsed.Diffs) > 0 {
			outcomes = append(outcomes, o.applier.ApplyDiffs(parsed.Diffs, o.opts.Mode)...)
		}

		rr := RoundResult{
			Round:     round,
			Response:  response,
			Attempted: parsed.Ops,
			Outcomes:  outcomes,
		}

		// DECIDE: fixed priority, first true wins.
		var stop StopReason
		switch {
		case parsed.Empty() && !hasContinueSignal(response):
			stop = StopNoActions
		case round >= o.opts.MaxRounds:
			stop = StopMaxRounds
		case o.Budget != nil && o.Budget() == token.StatusCritical:
			stop = StopTokenBudget
		case ctx.Err() != nil:
			stop = StopCancelled
		}
		rr.ShouldContinue = stop == ""
		result.Rounds = append(result.Rounds, rr)

		if !rr.ShouldContinue {
			result.StopReason = stop
			o.Log.Debugw("agent stopped", "round", round, "reason", string(stop))
			return result
		}

		message = buildFeedback(rr)
	}
}

// hasContinueSignal reports whether the response contains a bare CONTINUE
// line, the explicit request for another round when no edits were emitted.
func hasContinueSignal(response string) bool {
	for _, line := range strings.Split(response, "\n") {
		if strings.TrimSpace(line) == continueMarker {
			return true
		}
	}
	return false
}

// buildFullPrompt assembles system prompt, skill prompt, and user message in
// that order.
func (o *Orchestrator) buildFullPrompt(userMessage string) string {
	var parts []string
	if o.opts.SystemPrompt != "" {
		parts = append(parts, o.opts.SystemPrompt)
	}
	if o.opts.SkillPrompt != "" {
		parts = append(parts, o.opts.SkillPrompt)
	}
	parts = append(parts, userMessage)
	return strings.Join(parts, "\n\n")
}

// buildFeedback assembles the next round's corrective message. Failures get
// their file snapshot verbatim; successes get only a path summary, so full
// file content is never re-sent for edits that worked.
func buildFeedback(rr RoundResult) string {
	var parts []string

	applied := rr.AppliedPaths()
	failed := rr.Failures()

	if len(applied) > 0 {
		parts = append(parts,
			fmt.Sprintf("Successfully applied changes to: %s.", strings.Join(applied, ", ")))
	}

	for _, f := range failed {
		parts = append(parts, fmt.Sprintf("FAILED to apply edit to %s: %s", f.Path, f.Message))
		if f.Snapshot != "" {
			parts = append(parts,
				fmt.Sprintf("Current content of %s:\n```\n%s\n```", f.Path, f.Snapshot))
		}
	}
	if len(failed) > 0 {
		parts = append(parts,
			"Please retry the failed edits with corrected SEARCH content that exactly matches the current file content shown above.")
	}

	if len(applied) == 0 && len(failed) == 0 {
		parts = append(parts, "Continue with next steps.")
	}
	if len(applied) > 0 && len(failed) == 0 {
		parts = append(parts, "Continue with any remaining tasks.")
	}

	return strings.Join(parts, "\n\n")
}

func (o *Orchestrator) warn(format string, args ...interface{}) {
	if o.Warn != nil {
		o.Warn(format, args...)
	}
}

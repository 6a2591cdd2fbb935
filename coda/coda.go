// Package coda wires the extractor, matcher, applier, and agent loop into the
// application. It is both the CLI's engine and the embeddable library surface.
package coda

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/coda/internal/agent"
	"github.com/sokinpui/coda/internal/apply"
	"github.com/sokinpui/coda/internal/auth"
	"github.com/sokinpui/coda/internal/bundler"
	"github.com/sokinpui/coda/internal/cli"
	"github.com/sokinpui/coda/internal/client"
	"github.com/sokinpui/coda/internal/config"
	"github.com/sokinpui/coda/internal/display"
	"github.com/sokinpui/coda/internal/extract"
	"github.com/sokinpui/coda/internal/gitops"
	"github.com/sokinpui/coda/internal/history"
	"github.com/sokinpui/coda/internal/logging"
	"github.com/sokinpui/coda/internal/prompts"
	"github.com/sokinpui/coda/internal/repl"
	"github.com/sokinpui/coda/internal/session"
	"github.com/sokinpui/coda/internal/skills"
	"github.com/sokinpui/coda/internal/source"
	"github.com/sokinpui/coda/internal/token"
	"github.com/sokinpui/coda/internal/ui"
)

// Summary holds the results of a run for display.
type Summary struct {
	Created  []string
	Modified []string
	Failed   []string
	Message  string
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

// StackTrace exposes the captured stack for display layers.
func (e *DetailedError) StackTrace() []byte {
	return e.Stack
}

// App orchestrates the entire application logic.
type App struct {
	cfg      *cli.Config
	settings *config.Settings
	root     string

	parser    *extract.Parser
	applier   *apply.Applier
	renderer  *display.Renderer
	tracker   *token.Tracker
	historian *history.Manager
	sources   *source.Provider
	prompts   *prompts.Registry
	skills    *skills.Registry
	bundles   *bundler.Bundler
	store     session.Store
	sess      *session.Session

	log   *zap.SugaredLogger
	flush func()
}

// New creates a fully wired App from parsed flags.
func New(cfg *cli.Config) (*App, error) {
	settings, err := config.Load(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}

	log, flush, err := logging.New(cfg.Verbose || settings.Verbose)
	if err != nil {
		return nil, err
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("could not get current working directory: %w", err)
	}
	if info, ok := gitops.Detect(root); ok {
		root = info.Root
	}

	a := &App{
		cfg:      cfg,
		settings: settings,
		root:     root,
		renderer: display.New(cfg.Plain),
		sources:  source.New(),
		log:      log,
		flush:    flush,
	}

	a.parser = &extract.Parser{WarnIncomplete: settings.Apply.WarnIncompleteBlocks}

	applier, err := apply.New(apply.Options{
		Root:                 root,
		BlockedPatterns:      settings.Apply.BlockedWritePatterns,
		CreateBackups:        settings.Apply.CreateBackups && !cfg.NoBackup,
		RejectCreateExisting: settings.Apply.RejectCreateExisting,
	})
	if err != nil {
		return nil, err
	}
	applier.Confirm = display.Confirm
	applier.ShowDiff = a.renderer.Diff
	applier.Warn = ui.Warning
	applier.Dirty = func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return false
		}
		return gitops.IsDirty(root, rel)
	}
	applier.Log = log
	a.applier = applier

	a.historian, err = history.New(root)
	if err != nil {
		return nil, err
	}

	model := settings.Model(cfg.Model)
	a.tracker = token.NewTracker(model.Name, model.ContextWindow,
		settings.Token.WarnAt, settings.Token.CriticalAt)

	a.prompts = prompts.NewRegistry()
	a.skills = skills.NewRegistry()
	if dir, dirErr := config.Dir(); dirErr == nil {
		if err := a.prompts.LoadDir(filepath.Join(dir, "prompts")); err != nil {
			return nil, err
		}
		if err := a.skills.LoadDir(filepath.Join(dir, "skills")); err != nil {
			return nil, err
		}
	}
	if err := a.skills.LoadDir(filepath.Join(root, ".coda", "skills")); err != nil {
		return nil, err
	}

	a.bundles, err = bundler.New(bundler.Options{
		Root:         root,
		Excludes:     settings.Bundler.Excludes,
		MaxFileBytes: settings.Bundler.MaxFileBytes,
	})
	if err != nil {
		return nil, err
	}

	return a, nil
}

// Close flushes the logger and releases the session store.
func (a *App) Close() {
	if a.store != nil {
		a.store.Close()
	}
	a.flush()
}

// Execute runs the action selected by the flags.
func (a *App) Execute(ctx context.Context) (summary Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Login:
		return a.login()
	case a.cfg.Logout:
		return a.logout()
	case a.cfg.Undo:
		return a.undo()
	case a.cfg.Apply:
		return a.applyFromSource()
	case a.cfg.Message != "" || piped():
		return a.oneShot(ctx)
	default:
		return a.runREPL(ctx)
	}
}

func (a *App) mode() apply.Mode {
	switch {
	case a.cfg.DryRun:
		return apply.ModeDryRun
	case a.cfg.AutoApply:
		return apply.ModeAuto
	}
	return apply.ModeConfirm
}

func (a *App) login() (Summary, error) {
	tok, err := auth.PromptToken()
	if err != nil {
		return Summary{}, err
	}
	if auth.IsExpired(tok) {
		ui.Warning("Token is already expired.")
	}
	if err := auth.Save(tok); err != nil {
		return Summary{}, err
	}
	return Summary{Message: "Token saved."}, nil
}

func (a *App) logout() (Summary, error) {
	if err := auth.Clear(); err != nil {
		return Summary{}, err
	}
	return Summary{Message: "Token removed."}, nil
}

func (a *App) undo() (Summary, error) {
	restored, skipped, err := a.historian.Undo()
	if err != nil {
		return Summary{}, err
	}
	s := Summary{Modified: restored, Failed: skipped, Message: "Undid last apply."}
	return s, nil
}

// applyFromSource applies edit blocks from stdin or the clipboard without
// calling the model.
func (a *App) applyFromSource() (Summary, error) {
	content, err := a.sources.Get(a.cfg.Message)
	if err != nil {
		return Summary{}, err
	}
	if strings.TrimSpace(content) == "" {
		return Summary{Message: "Source is empty. Nothing to process."}, nil
	}

	parsed := a.parser.Parse(content)
	for _, w := range parsed.Warnings {
		ui.Warning("%s", w)
	}
	if parsed.Empty() {
		return Summary{Message: "No edit blocks found. Nothing to do."}, nil
	}

	var outcomes []apply.Outcome
	if len(parsed.Ops) > 0 {
		outcomes = a.applier.ApplyAll(parsed.Ops, a.mode())
	}
	if len(parsed.Diffs) > 0 {
		outcomes = append(outcomes, a.applier.ApplyDiffs(parsed.Diffs, a.mode())...)
	}
	if err := a.historian.Record(outcomes); err != nil {
		ui.Warning("Could not record history: %v", err)
	}
	return summarize(outcomes), nil
}

// oneShot sends one prompt and applies the response, running the agent loop
// when requested.
func (a *App) oneShot(ctx context.Context) (Summary, error) {
	message, err := a.sources.Get(a.cfg.Message)
	if err != nil {
		return Summary{}, err
	}
	if strings.TrimSpace(message) == "" {
		return Summary{Message: "Nothing to send."}, nil
	}

	c, err := a.newClient()
	if err != nil {
		return Summary{}, err
	}

	systemPrompt, skillPrompt, err := a.composePrompts()
	if err != nil {
		return Summary{}, err
	}
	if attachment, err := a.attachFiles(); err != nil {
		return Summary{}, err
	} else if attachment != "" {
		message = attachment + message
	}

	if err := a.openSession(); err != nil {
		return Summary{}, err
	}

	maxRounds := 1
	if a.cfg.Agent {
		maxRounds = a.settings.Agent.MaxRounds
		if a.cfg.MaxRounds > 0 {
			maxRounds = a.cfg.MaxRounds
		}
	}

	o := agent.New(c.SendFunc(), a.parser, a.applier, agent.Options{
		MaxRounds:    maxRounds,
		Mode:         a.mode(),
		SystemPrompt: systemPrompt,
		SkillPrompt:  skillPrompt,
	})
	o.Log = a.log
	o.Warn = ui.Warning
	o.Budget = a.tracker.Status
	o.OnResponse = func(round int, response string) {
		a.tracker.Add(token.Estimate(response), 0)
		if notice := a.tracker.CheckThresholds(); notice != "" {
			ui.Warning("%s", notice)
		}
		a.renderer.Response(response)
		if a.sess != nil {
			a.sess.Append("assistant", response)
		}
	}
	if a.sess != nil {
		a.sess.Append("user", message)
	}
	a.tracker.Add(token.Estimate(message+systemPrompt+skillPrompt), 0)

	result := o.Run(ctx, message)
	a.log.Debugw("run finished", "rounds", len(result.Rounds), "stop", string(result.StopReason))

	var outcomes []apply.Outcome
	for _, r := range result.Rounds {
		outcomes = append(outcomes, r.Outcomes...)
	}
	if err := a.historian.Record(outcomes); err != nil {
		ui.Warning("Could not record history: %v", err)
	}
	a.saveSession()

	s := summarize(outcomes)
	if result.StopReason == agent.StopSendError {
		s.Message = "Stopped: request failed."
	}
	if result.StopReason == agent.StopTokenBudget {
		s.Message = "Stopped: token budget critical."
	}
	return s, nil
}

func (a *App) runREPL(ctx context.Context) (Summary, error) {
	c, err := a.newClient()
	if err != nil {
		return Summary{}, err
	}
	if err := a.openSession(); err != nil {
		return Summary{}, err
	}
	deps := &repl.Deps{
		Settings:  a.settings,
		Client:    c,
		Parser:    a.parser,
		Applier:   a.applier,
		Historian: a.historian,
		Tracker:   a.tracker,
		Renderer:  a.renderer,
		Store:     a.store,
		Session:   a.sess,
		Prompts:   a.prompts,
		Skills:    a.skills,
		Bundler:   a.bundles,
		Mode:      a.mode(),
		AgentMax:  a.settings.Agent.MaxRounds,
		Log:       a.log,
	}
	if err := repl.Run(ctx, deps); err != nil {
		return Summary{}, err
	}
	a.saveSession()
	return Summary{}, nil
}

func (a *App) newClient() (*client.Client, error) {
	tok, err := auth.Token()
	if err != nil {
		return nil, err
	}
	if auth.IsExpired(tok) {
		return nil, fmt.Errorf("stored API token is expired: run coda --login")
	}
	model := a.settings.Model(a.cfg.Model)
	c := client.New(a.settings.API, tok, model.Name)
	c.Log = a.log
	return c, nil
}

func (a *App) composePrompts() (systemPrompt, skillPrompt string, err error) {
	p, err := a.prompts.Get(a.cfg.Prompt)
	if err != nil {
		return "", "", err
	}
	skillPrompt, err = a.skills.Compose(a.cfg.Skills)
	if err != nil {
		return "", "", err
	}
	return p.Text, skillPrompt, nil
}

// attachFiles renders the requested files into a prompt prefix.
func (a *App) attachFiles() (string, error) {
	if len(a.cfg.Files) == 0 {
		return "", nil
	}
	bundle, err := a.bundles.Collect(a.cfg.Files)
	if err != nil {
		return "", err
	}
	for _, s := range bundle.Skipped {
		ui.Warning("Skipped %s", s)
	}
	if len(bundle.Files) == 0 {
		return "", nil
	}
	ui.Info("Attached %d files (~%d tokens)", len(bundle.Files), bundle.Tokens)
	a.tracker.Add(bundle.Tokens, 0)
	return bundle.Render() + "\n", nil
}

func (a *App) openSession() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	store, err := session.Open(a.settings.Session.Backend, dir)
	if err != nil {
		return err
	}
	a.store = store

	if a.cfg.Session != "" {
		sess, err := store.Load(a.cfg.Session)
		if err != nil {
			return fmt.Errorf("could not resume session %s: %w", a.cfg.Session, err)
		}
		a.sess = sess
		a.tracker.Restore(sess.Usage)
		ui.Info("Resumed session %s (%d turns)", sess.ID, len(sess.Turns))
		return nil
	}
	a.sess = session.New(a.settings.Model(a.cfg.Model).Name)
	return nil
}

func (a *App) saveSession() {
	if a.store == nil || a.sess == nil || len(a.sess.Turns) == 0 {
		return
	}
	a.sess.Usage = a.tracker.Snapshot()
	if err := a.store.Save(a.sess); err != nil {
		ui.Warning("Could not save session: %v", err)
	}
}

// summarize folds outcomes into the display summary.
func summarize(outcomes []apply.Outcome) Summary {
	var s Summary
	seen := make(map[string]bool)
	for _, o := range outcomes {
		key := o.Path + "|" + string(o.Reason)
		if seen[key] {
			continue
		}
		seen[key] = true
		switch {
		case o.Applied && strings.HasPrefix(o.Summary, "created"):
			s.Created = append(s.Created, o.Path)
		case o.Applied:
			s.Modified = append(s.Modified, o.Path)
		case o.Failed():
			s.Failed = append(s.Failed, o.Path)
		}
	}
	return s
}

func piped() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

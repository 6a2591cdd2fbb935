// Package repl is the interactive loop: plain messages go to the model and
// the response's edit blocks are applied; slash commands steer the session.
package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/coda/internal/agent"
	"github.com/sokinpui/coda/internal/apply"
	"github.com/sokinpui/coda/internal/bundler"
	"github.com/sokinpui/coda/internal/client"
	"github.com/sokinpui/coda/internal/config"
	"github.com/sokinpui/coda/internal/display"
	"github.com/sokinpui/coda/internal/extract"
	"github.com/sokinpui/coda/internal/history"
	"github.com/sokinpui/coda/internal/prompts"
	"github.com/sokinpui/coda/internal/session"
	"github.com/sokinpui/coda/internal/skills"
	"github.com/sokinpui/coda/internal/token"
	"github.com/sokinpui/coda/internal/ui"
)

// Deps carries the wired application pieces into the loop.
type Deps struct {
	Settings  *config.Settings
	Client    *client.Client
	Parser    *extract.Parser
	Applier   *apply.Applier
	Historian *history.Manager
	Tracker   *token.Tracker
	Renderer  *display.Renderer
	Store     session.Store
	Session   *session.Session
	Prompts   *prompts.Registry
	Skills    *skills.Registry
	Bundler   *bundler.Bundler
	Mode      apply.Mode
	AgentMax  int
	Log       *zap.SugaredLogger
}

type loop struct {
	*Deps
	promptName   string
	activeSkills []string
	attachment   string
	autoApply    bool
}

// Run reads lines until /quit or EOF.
func Run(ctx context.Context, deps *Deps) error {
	l := &loop{Deps: deps, autoApply: deps.Mode == apply.ModeAuto}
	ui.Header("coda %s | /help for commands", deps.Client.Model())

	reader := bufio.NewReader(os.Stdin)
	for {
		ui.Prompt("> ")
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, err := l.command(ctx, line)
			if err != nil {
				ui.Error("%v", err)
			}
			if quit {
				return nil
			}
			continue
		}
		if err := l.send(ctx, line, false); err != nil {
			ui.Error("%v", err)
		}
	}
}

func (l *loop) command(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		l.printHelp()

	case "/models":
		for _, name := range l.Settings.ModelNames() {
			marker := " "
			if name == l.Client.Model() {
				marker = "*"
			}
			fmt.Printf(" %s %s\n", marker, name)
		}

	case "/model":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /model <name>")
		}
		m := l.Settings.Model(args[0])
		l.Client.SetModel(m.Name)
		l.Tracker.SwitchModel(m.Name, m.ContextWindow)
		ui.Success("Model set to %s", m.Name)

	case "/files":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /files <path|glob>...")
		}
		bundle, err := l.Bundler.Collect(args)
		if err != nil {
			return false, err
		}
		for _, s := range bundle.Skipped {
			ui.Warning("Skipped %s", s)
		}
		l.attachment = bundle.Render()
		ui.Success("Attached %d files (~%d tokens); sent with your next message",
			len(bundle.Files), bundle.Tokens)

	case "/clear":
		l.Session.Turns = nil
		l.attachment = ""
		l.Tracker.Reset()
		ui.Success("Conversation cleared.")

	case "/history":
		for _, t := range l.Session.Turns {
			first := t.Content
			if i := strings.IndexByte(first, '\n'); i >= 0 {
				first = first[:i]
			}
			fmt.Printf("%-10s %s\n", t.Role, first)
		}

	case "/session":
		fmt.Printf("id: %s\nmodel: %s\nturns: %d\n",
			l.Session.ID, l.Session.Model, len(l.Session.Turns))

	case "/sessions":
		list, err := l.Store.List()
		if err != nil {
			return false, err
		}
		for _, s := range list {
			fmt.Printf("%s  %s  %d turns  %s\n",
				s.ID, s.UpdatedAt.Format("2006-01-02 15:04"), s.TurnCount, s.Title)
		}

	case "/resume":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /resume <session-id>")
		}
		sess, err := l.Store.Load(args[0])
		if err != nil {
			return false, err
		}
		l.Session = sess
		l.Tracker.Restore(sess.Usage)
		ui.Success("Resumed session %s (%d turns)", sess.ID, len(sess.Turns))

	case "/status", "/usage":
		fmt.Println(l.Renderer.TokenStatus(l.Tracker.Snapshot(), l.Tracker.Status()))

	case "/auto-apply":
		l.autoApply = !l.autoApply
		ui.Success("Auto-apply %s", onOff(l.autoApply))

	case "/prompts":
		for _, n := range l.Prompts.Names() {
			marker := " "
			if n == l.currentPromptName() {
				marker = "*"
			}
			fmt.Printf(" %s %s\n", marker, n)
		}

	case "/prompt":
		if len(args) != 1 {
			return false, fmt.Errorf("usage: /prompt <name>")
		}
		if _, err := l.Prompts.Get(args[0]); err != nil {
			return false, err
		}
		l.promptName = args[0]
		ui.Success("System prompt set to %s", args[0])

	case "/skills":
		for _, n := range l.Skills.Names() {
			marker := " "
			for _, active := range l.activeSkills {
				if n == active {
					marker = "*"
				}
			}
			fmt.Printf(" %s %s\n", marker, n)
		}

	case "/skill":
		if len(args) == 0 {
			l.activeSkills = nil
			ui.Success("Skills cleared.")
			break
		}
		if _, err := l.Skills.Compose(args); err != nil {
			return false, err
		}
		l.activeSkills = args
		ui.Success("Active skills: %s", strings.Join(args, ", "))

	case "/agent":
		if len(args) == 0 {
			return false, fmt.Errorf("usage: /agent <task>")
		}
		return false, l.send(ctx, strings.Join(args, " "), true)

	case "/undo":
		restored, skipped, err := l.Historian.Undo()
		if err != nil {
			return false, err
		}
		for _, p := range restored {
			ui.Success("Restored %s", p)
		}
		for _, p := range skipped {
			ui.Warning("Skipped %s (changed since apply)", p)
		}

	default:
		return false, fmt.Errorf("unknown command %s; try /help", cmd)
	}
	return false, nil
}

// send runs one exchange, or the agent loop when agentRun is set.
func (l *loop) send(ctx context.Context, message string, agentRun bool) error {
	if l.attachment != "" {
		message = l.attachment + "\n" + message
		l.attachment = ""
	}

	systemPrompt, err := l.Prompts.Get(l.promptName)
	if err != nil {
		return err
	}
	skillPrompt, err := l.Skills.Compose(l.activeSkills)
	if err != nil {
		return err
	}

	maxRounds := 1
	if agentRun {
		maxRounds = l.AgentMax
	}
	mode := apply.ModeConfirm
	if l.autoApply {
		mode = apply.ModeAuto
	}
	if l.Mode == apply.ModeDryRun {
		mode = apply.ModeDryRun
	}

	send := l.sendWithHistory()
	o := agent.New(send, l.Parser, l.Applier, agent.Options{
		MaxRounds:    maxRounds,
		Mode:         mode,
		SystemPrompt: systemPrompt.Text,
		SkillPrompt:  skillPrompt,
	})
	o.Log = l.Log
	o.Warn = ui.Warning
	o.Budget = l.Tracker.Status
	o.OnResponse = func(round int, response string) {
		l.Tracker.Add(token.Estimate(response), 0)
		if notice := l.Tracker.CheckThresholds(); notice != "" {
			ui.Warning("%s", notice)
		}
		l.Renderer.Response(response)
		l.Session.Append("assistant", response)
	}

	l.Session.Append("user", message)
	l.Tracker.Add(token.Estimate(message), 0)

	result := o.Run(ctx, message)

	var outcomes []apply.Outcome
	applied := 0
	for _, r := range result.Rounds {
		outcomes = append(outcomes, r.Outcomes...)
		applied += len(r.AppliedPaths())
	}
	if applied > 0 {
		if err := l.Historian.Record(outcomes); err != nil {
			ui.Warning("Could not record history: %v", err)
		}
	}

	l.Session.Usage = l.Tracker.Snapshot()
	if err := l.Store.Save(l.Session); err != nil {
		ui.Warning("Could not save session: %v", err)
	}
	return nil
}

// sendWithHistory threads the stored conversation into every request,
// excluding the turn currently being sent.
func (l *loop) sendWithHistory() agent.SendFunc {
	return func(ctx context.Context, message string, history []agent.Message) (string, error) {
		wire := make([]client.Message, 0, len(l.Session.Turns)+len(history))
		for _, t := range l.Session.Turns {
			wire = append(wire, client.Message{Role: t.Role, Content: t.Content})
		}
		if len(wire) > 0 && wire[len(wire)-1].Role == "user" && wire[len(wire)-1].Content == message {
			wire = wire[:len(wire)-1]
		}
		for _, m := range history {
			wire = append(wire, client.Message{Role: m.Role, Content: m.Content})
		}
		return l.Client.Send(ctx, message, wire)
	}
}

func (l *loop) currentPromptName() string {
	if l.promptName == "" {
		return prompts.DefaultName
	}
	return l.promptName
}

func (l *loop) printHelp() {
	fmt.Print(`Commands:
  /model <name>     switch model        /models       list models
  /prompt <name>    set system prompt   /prompts      list prompts
  /skill <names>    set active skills   /skills       list skills
  /files <paths>    attach files to the next message
  /agent <task>     run the multi-round agent loop
  /auto-apply       toggle per-file confirmation
  /undo             revert the last apply batch
  /history          show this conversation
  /session          show session info   /sessions     list stored sessions
  /resume <id>      resume a session    /clear        clear the conversation
  /status           token usage         /quit         exit
`)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

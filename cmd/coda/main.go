package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sokinpui/coda/coda"
	"github.com/sokinpui/coda/internal/cli"
	"github.com/sokinpui/coda/internal/tui"
	"github.com/sokinpui/coda/internal/ui"
)

func main() {
	cfg, err := cli.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	app, err := coda.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize application: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Interactive flows prompt on the terminal themselves; only the batch
	// actions that never ask questions run under the spinner TUI.
	if (cfg.Apply || cfg.Undo) && (cfg.AutoApply || cfg.DryRun || cfg.Undo) {
		runTUI(ctx, app)
		return
	}

	summary, err := app.Execute(ctx)
	if err != nil {
		if e, ok := err.(*coda.DetailedError); ok {
			fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", e.StackTrace())
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	printSummary(summary)
}

func runTUI(ctx context.Context, app *coda.App) {
	model := tui.New(func() (tui.Summary, error) {
		s, err := app.Execute(ctx)
		return tui.Summary{
			Created:  s.Created,
			Modified: s.Modified,
			Failed:   s.Failed,
			Message:  s.Message,
		}, err
	})
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
	if m, ok := final.(tui.Model); ok && m.Err() != nil {
		os.Exit(1)
	}
}

func printSummary(s coda.Summary) {
	if s.Message != "" {
		ui.Header("%s", s.Message)
	}
	if len(s.Created) > 0 {
		ui.Success("Created:")
		for _, f := range s.Created {
			ui.Path("%s", f)
		}
	}
	if len(s.Modified) > 0 {
		ui.Success("Modified:")
		for _, f := range s.Modified {
			ui.Path("%s", f)
		}
	}
	if len(s.Failed) > 0 {
		ui.Error("Failed:")
		for _, f := range s.Failed {
			ui.Path("%s", f)
		}
	}
	if len(s.Failed) > 0 {
		os.Exit(1)
	}
}

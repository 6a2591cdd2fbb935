// Package source resolves where the prompt text comes from: an explicit
// argument, piped stdin, or the clipboard, in that order.
package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/coda/internal/ui"
)

// Provider retrieves the prompt content.
type Provider struct{}

// New creates a Provider.
func New() *Provider {
	return &Provider{}
}

// Get returns explicit when non-empty, otherwise reads piped stdin, otherwise
// the clipboard. An empty result with nil error means there is nothing to do.
func (p *Provider) Get(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	stat, _ := os.Stdin.Stat()
	isPiped := (stat.Mode() & os.ModeCharDevice) == 0
	if isPiped {
		content, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read from stdin: %w", err)
		}
		return string(content), nil
	}

	ui.Header("--- Reading from clipboard ---")
	content, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		ui.Warning("Clipboard is empty. Nothing to process.")
		return "", nil
	}
	return content, nil
}

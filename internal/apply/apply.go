// Package apply writes parsed edit operations to the filesystem under
// safety gates. It is the sole mutator of files under the project root.
package apply

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/sokinpui/coda/internal/extract"
	"github.com/sokinpui/coda/internal/match"
)

// Mode controls how much the applier asks before writing.
type Mode int

const (
	// ModeConfirm prompts per file before writing.
	ModeConfirm Mode = iota
	// ModeAuto writes without prompting.
	ModeAuto
	// ModeDryRun computes and reports the result without writing.
	ModeDryRun
)

// Reason classifies a non-applied outcome. Safety rejections are reported
// distinctly from ordinary mismatches so callers can tell them apart.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonNoMatch        Reason = "no-match"
	ReasonPathRejected   Reason = "path-rejected"
	ReasonBlockedPattern Reason = "blocked-pattern"
	ReasonFilesystem     Reason = "filesystem-error"
	ReasonDeclined       Reason = "declined"
	ReasonDryRun         Reason = "dry-run"
)

// Outcome is the per-operation result of an apply pass.
type Outcome struct {
	Path    string
	Applied bool
	Reason  Reason
	// Summary is a short human-readable description for applied edits.
	Summary string
	// Message carries failure detail for the corrective feedback loop.
	Message string
	// Snapshot is the truncated current file content, attached to match
	// failures so the model can correct its search text.
	Snapshot string
}

// Failed reports whether the outcome is a hard failure, as opposed to an
// applied edit or a deliberate skip (declined, dry-run).
func (o Outcome) Failed() bool {
	switch o.Reason {
	case ReasonNone, ReasonDeclined, ReasonDryRun:
		return false
	}
	return true
}

// Options configures an Applier.
type Options struct {
	// Root is the project root; operations resolving outside it are
	// rejected.
	Root string
	// BlockedPatterns are credential-like globs that are never written,
	// regardless of mode.
	BlockedPatterns []string
	// CreateBackups copies existing content to a sibling .bak file before
	// the first overwrite of each path in a batch.
	CreateBackups bool
	// RejectCreateExisting makes a create operation targeting an existing
	// file fail instead of overwriting it.
	RejectCreateExisting bool
}

// Applier applies edit operations under Options' safety gates. Collaborator
// funcs are optional; nil Confirm approves everything, nil Dirty disables
// the uncommitted-changes advisory.
type Applier struct {
	opts Options

	// Confirm asks the user before a write in ModeConfirm.
	Confirm func(prompt string) bool
	// Dirty reports whether a file has uncommitted version-control changes.
	Dirty func(path string) bool
	// ShowDiff renders a diff of the pending change.
	ShowDiff func(path, oldContent, newContent string)
	// Warn receives non-fatal advisories.
	Warn func(format string, args ...interface{})

	Log *zap.SugaredLogger
}

// New creates an Applier rooted at opts.Root. An empty root means the
// current working directory.
func New(opts Options) (*Applier, error) {
	if opts.Root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not determine working directory: %w", err)
		}
		opts.Root = wd
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root %q: %w", opts.Root, err)
	}
	opts.Root = abs
	return &Applier{opts: opts, Log: zap.NewNop().Sugar()}, nil
}

// Root returns the resolved project root.
func (a *Applier) Root() string {
	return a.opts.Root
}

// batch tracks in-memory state for one ApplyAll pass: the most recently
// produced content per path, and which paths were already backed up.
type batch struct {
	content  map[string]string
	backedUp map[string]bool
}

func newBatch() *batch {
	return &batch{
		content:  make(map[string]string),
		backedUp: make(map[string]bool),
	}
}

// ApplyAll applies operations strictly in parsed order. Operations sharing a
// path are replayed sequentially: each sees the content produced by the
// previous one, never the stale on-disk original. A failed operation does
// not block later operations on the same path.
func (a *Applier) ApplyAll(ops []extract.EditOperation, mode Mode) []Outcome {
	b := newBatch()
	outcomes := make([]Outcome, 0, len(ops))
	for _, op := range ops {
		out := a.applyOne(b, op, mode)
		a.Log.Debugw("edit applied",
			"path", out.Path, "applied", out.Applied, "reason", string(out.Reason))
		outcomes = append(outcomes, out)
	}
	return outcomes
}

func (a *Applier) applyOne(b *batch, op extract.EditOperation, mode Mode) Outcome {
	resolved, reason, msg := a.validatePath(op.Path)
	if reason != ReasonNone {
		return Outcome{Path: op.Path, Reason: reason, Message: msg}
	}

	// Dirty-tree advisory: never blocks the write.
	if a.Dirty != nil && fileExists(resolved) && a.Dirty(resolved) {
		a.warn("File has uncommitted changes: %s", op.Path)
	}

	if op.Kind() == extract.KindCreate {
		return a.applyCreate(b, op, resolved, mode)
	}
	return a.applyEdit(b, op, resolved, mode)
}

func (a *Applier) applyCreate(b *batch, op extract.EditOperation, resolved string, mode Mode) Outcome {
	_, inBatch := b.content[resolved]
	exists := inBatch || fileExists(resolved)
	if exists && a.opts.RejectCreateExisting {
		return Outcome{
			Path:    op.Path,
			Reason:  ReasonPathRejected,
			Message: fmt.Sprintf("refusing to overwrite existing file: %s", op.Path),
		}
	}

	if mode == ModeDryRun {
		a.showDiff(op.Path, a.currentContent(b, resolved), op.Replace)
		b.content[resolved] = op.Replace
		return Outcome{Path: op.Path, Reason: ReasonDryRun, Summary: "would create " + op.Path}
	}
	if mode == ModeConfirm && !a.confirm(fmt.Sprintf("Create %s?", op.Path)) {
		return Outcome{Path: op.Path, Reason: ReasonDeclined}
	}

	if out, ok := a.write(b, op.Path, resolved, op.Replace, exists); !ok {
		return out
	}
	verb := "created"
	if exists {
		verb = "overwrote"
	}
	return Outcome{Path: op.Path, Applied: true, Summary: fmt.Sprintf("%s %s", verb, op.Path)}
}

func (a *Applier) applyEdit(b *batch, op extract.EditOperation, resolved string, mode Mode) Outcome {
	current, ok := b.content[resolved]
	if !ok {
		data, err := os.ReadFile(resolved)
		if err != nil {
			return Outcome{
				Path:    op.Path,
				Reason:  ReasonFilesystem,
				Message: fmt.Sprintf("file not found: %s", op.Path),
			}
		}
		current = string(data)
	}

	m := match.Find(current, op.Search)
	if !m.Found {
		return Outcome{
			Path:   op.Path,
			Reason: ReasonNoMatch,
			Message: fmt.Sprintf(
				"SEARCH block not found in %s; the content does not match the file", op.Path),
			Snapshot: m.Snapshot,
		}
	}

	newContent := current[:m.Start] + op.Replace + current[m.End:]

	if mode == ModeDryRun {
		a.showDiff(op.Path, current, newContent)
		b.content[resolved] = newContent
		return Outcome{Path: op.Path, Reason: ReasonDryRun, Summary: "would edit " + op.Path}
	}
	if mode == ModeConfirm {
		a.showDiff(op.Path, current, newContent)
		if !a.confirm("Apply this edit?") {
			return Outcome{Path: op.Path, Reason: ReasonDeclined}
		}
	}

	if out, ok := a.write(b, op.Path, resolved, newContent, true); !ok {
		return out
	}
	verb := "edited"
	if op.Kind() == extract.KindDelete {
		verb = "deleted content from"
	}
	return Outcome{
		Path:    op.Path,
		Applied: true,
		Summary: fmt.Sprintf("%s %s (%s match)", verb, op.Path, m.Tier),
	}
}

// write persists content, backing up the pre-batch original on the first
// overwrite of each path. It updates the batch cache on success.
func (a *Applier) write(b *batch, displayPath, resolved, content string, overwrite bool) (Outcome, bool) {
	if a.opts.CreateBackups && overwrite && !b.backedUp[resolved] && fileExists(resolved) {
		if err := copyFile(resolved, resolved+".bak"); err != nil {
			a.warn("Backup failed for %s: %v", displayPath, err)
		}
	}
	b.backedUp[resolved] = true

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return Outcome{Path: displayPath, Reason: ReasonFilesystem, Message: err.Error()}, false
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return Outcome{Path: displayPath, Reason: ReasonFilesystem, Message: err.Error()}, false
	}
	b.content[resolved] = content
	return Outcome{}, true
}

// validatePath resolves an operation path against the root and runs the
// containment and blocklist gates.
func (a *Applier) validatePath(path string) (string, Reason, string) {
	if path == "" {
		return "", ReasonPathRejected, "empty path"
	}
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if seg == ".." {
			return "", ReasonPathRejected, fmt.Sprintf("path traversal rejected: %s", path)
		}
	}

	resolved := filepath.Join(a.opts.Root, filepath.FromSlash(path))
	resolved = filepath.Clean(resolved)
	if resolved != a.opts.Root && !strings.HasPrefix(resolved, a.opts.Root+string(filepath.Separator)) {
		return "", ReasonPathRejected, fmt.Sprintf("path outside project root: %s", path)
	}

	for _, pattern := range a.opts.BlockedPatterns {
		if matched, _ := filepath.Match(pattern, filepath.Base(resolved)); matched {
			return "", ReasonBlockedPattern, fmt.Sprintf("blocked write pattern %q: %s", pattern, path)
		}
		if matched, _ := filepath.Match(pattern, filepath.ToSlash(path)); matched {
			return "", ReasonBlockedPattern, fmt.Sprintf("blocked write pattern %q: %s", pattern, path)
		}
	}

	return resolved, ReasonNone, ""
}

func (a *Applier) currentContent(b *batch, resolved string) string {
	if c, ok := b.content[resolved]; ok {
		return c
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return ""
	}
	return string(data)
}

func (a *Applier) confirm(prompt string) bool {
	if a.Confirm == nil {
		return true
	}
	return a.Confirm(prompt)
}

func (a *Applier) showDiff(path, oldContent, newContent string) {
	if a.ShowDiff != nil {
		a.ShowDiff(path, oldContent, newContent)
	}
}

func (a *Applier) warn(format string, args ...interface{}) {
	if a.Warn != nil {
		a.Warn(format, args...)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

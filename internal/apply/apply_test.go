package apply

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sokinpui/coda/internal/extract"
)

func newTestApplier(t *testing.T, opts Options) (*Applier, string) {
	t.Helper()
	root := t.TempDir()
	opts.Root = root
	a, err := New(opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return a, root
}

func writeFile(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestApplyExactMatch(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	path := writeFile(t, root, "a.py", "x = 1\n")

	ops := []extract.EditOperation{{Path: "a.py", Search: "x = 1", Replace: "x = 2"}}
	outcomes := a.ApplyAll(ops, ModeAuto)

	if len(outcomes) != 1 || !outcomes[0].Applied {
		t.Fatalf("expected applied outcome, got %+v", outcomes)
	}
	if got := readFile(t, path); got != "x = 2\n" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestApplyNoMatchAttachesSnapshot(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	writeFile(t, root, "a.py", "x = 1\n")

	ops := []extract.EditOperation{{Path: "a.py", Search: "not here", Replace: "y"}}
	outcomes := a.ApplyAll(ops, ModeAuto)

	out := outcomes[0]
	if out.Applied || out.Reason != ReasonNoMatch {
		t.Fatalf("expected no-match, got %+v", out)
	}
	if out.Snapshot != "x = 1\n" {
		t.Errorf("expected file snapshot, got %q", out.Snapshot)
	}
	if !out.Failed() {
		t.Error("no-match must count as a failure")
	}
}

func TestSequentialReplaySamePath(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	path := writeFile(t, root, "b.py", "def f():\n    pass\n")

	// The second edit only matches the output of the first.
	ops := []extract.EditOperation{
		{Path: "b.py", Search: "def f():\n    pass", Replace: "def f():\n    pass\n\ndef g():\n    pass"},
		{Path: "b.py", Search: "def g():\n    pass", Replace: "def g():\n    return 42"},
	}
	outcomes := a.ApplyAll(ops, ModeAuto)
	if !outcomes[0].Applied || !outcomes[1].Applied {
		t.Fatalf("expected both applied, got %+v", outcomes)
	}
	if got := readFile(t, path); !strings.Contains(got, "return 42") {
		t.Errorf("second edit not applied to first edit's output: %q", got)
	}

	// In reverse order the second operation's target does not exist yet.
	writeFile(t, root, "c.py", "def f():\n    pass\n")
	reversed := []extract.EditOperation{
		{Path: "c.py", Search: "def g():\n    pass", Replace: "def g():\n    return 42"},
		{Path: "c.py", Search: "def f():\n    pass", Replace: "def f():\n    pass\n\ndef g():\n    pass"},
	}
	outcomes = a.ApplyAll(reversed, ModeAuto)
	if outcomes[0].Reason != ReasonNoMatch {
		t.Errorf("expected first (reversed) op to miss, got %+v", outcomes[0])
	}
	if !outcomes[1].Applied {
		t.Errorf("failed op must not block later ops on the same path: %+v", outcomes[1])
	}
}

func TestPathTraversalRejected(t *testing.T) {
	a, _ := newTestApplier(t, Options{})

	ops := []extract.EditOperation{{Path: "../escape.txt", Replace: "boom"}}
	outcomes := a.ApplyAll(ops, ModeAuto)
	if outcomes[0].Reason != ReasonPathRejected {
		t.Fatalf("expected path-rejected, got %+v", outcomes[0])
	}
}

func TestBlockedPatterns(t *testing.T) {
	a, _ := newTestApplier(t, Options{
		BlockedPatterns: []string{".env", "*.pem", "secrets/*"},
	})

	for _, path := range []string{".env", "certs/server.pem", "secrets/token"} {
		ops := []extract.EditOperation{{Path: path, Replace: "x"}}
		out := a.ApplyAll(ops, ModeAuto)[0]
		if out.Reason != ReasonBlockedPattern {
			t.Errorf("%s: expected blocked-pattern, got %+v", path, out)
		}
	}
}

func TestCreateOperation(t *testing.T) {
	t.Run("creates file and parent dirs", func(t *testing.T) {
		a, root := newTestApplier(t, Options{})
		ops := []extract.EditOperation{{Path: "pkg/new.go", Replace: "package pkg\n"}}
		out := a.ApplyAll(ops, ModeAuto)[0]
		if !out.Applied {
			t.Fatalf("expected applied, got %+v", out)
		}
		if got := readFile(t, filepath.Join(root, "pkg", "new.go")); got != "package pkg\n" {
			t.Errorf("unexpected content: %q", got)
		}
	})

	t.Run("overwrites existing by default", func(t *testing.T) {
		a, root := newTestApplier(t, Options{})
		path := writeFile(t, root, "x.txt", "old")
		ops := []extract.EditOperation{{Path: "x.txt", Replace: "new"}}
		out := a.ApplyAll(ops, ModeAuto)[0]
		if !out.Applied {
			t.Fatalf("expected applied, got %+v", out)
		}
		if got := readFile(t, path); got != "new" {
			t.Errorf("unexpected content: %q", got)
		}
	})

	t.Run("rejects existing when configured", func(t *testing.T) {
		a, root := newTestApplier(t, Options{RejectCreateExisting: true})
		writeFile(t, root, "x.txt", "old")
		ops := []extract.EditOperation{{Path: "x.txt", Replace: "new"}}
		out := a.ApplyAll(ops, ModeAuto)[0]
		if out.Reason != ReasonPathRejected {
			t.Fatalf("expected path-rejected, got %+v", out)
		}
	})
}

func TestBackups(t *testing.T) {
	a, root := newTestApplier(t, Options{CreateBackups: true})
	path := writeFile(t, root, "a.txt", "original\n")

	ops := []extract.EditOperation{
		{Path: "a.txt", Search: "original", Replace: "first"},
		{Path: "a.txt", Search: "first", Replace: "second"},
	}
	outcomes := a.ApplyAll(ops, ModeAuto)
	if !outcomes[0].Applied || !outcomes[1].Applied {
		t.Fatalf("expected both applied, got %+v", outcomes)
	}

	// The backup holds the pre-batch original, not an intermediate state.
	if got := readFile(t, path+".bak"); got != "original\n" {
		t.Errorf("backup should hold pre-batch content, got %q", got)
	}
	if got := readFile(t, path); got != "second\n" {
		t.Errorf("unexpected final content: %q", got)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	path := writeFile(t, root, "a.py", "x = 1\n")

	var diffs int
	a.ShowDiff = func(path, oldContent, newContent string) { diffs++ }

	ops := []extract.EditOperation{
		{Path: "a.py", Search: "x = 1", Replace: "x = 2"},
		{Path: "a.py", Search: "x = 2", Replace: "x = 3"},
	}
	outcomes := a.ApplyAll(ops, ModeDryRun)

	for _, out := range outcomes {
		if out.Applied || out.Reason != ReasonDryRun {
			t.Errorf("expected dry-run outcome, got %+v", out)
		}
		if out.Failed() {
			t.Errorf("dry-run must not count as failure: %+v", out)
		}
	}
	if diffs != 2 {
		t.Errorf("expected 2 diff previews, got %d", diffs)
	}
	// Dry run still replays in memory: the second op matched the first's
	// output. Nothing reached disk.
	if got := readFile(t, path); got != "x = 1\n" {
		t.Errorf("dry run must not write, got %q", got)
	}
}

func TestConfirmDeclined(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	path := writeFile(t, root, "a.py", "x = 1\n")
	a.Confirm = func(string) bool { return false }

	ops := []extract.EditOperation{{Path: "a.py", Search: "x = 1", Replace: "x = 2"}}
	out := a.ApplyAll(ops, ModeConfirm)[0]
	if out.Applied || out.Reason != ReasonDeclined {
		t.Fatalf("expected declined, got %+v", out)
	}
	if out.Failed() {
		t.Error("declined must not count as a hard failure")
	}
	if got := readFile(t, path); got != "x = 1\n" {
		t.Errorf("declined edit must not write, got %q", got)
	}
}

func TestDirtyAdvisoryDoesNotBlock(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	writeFile(t, root, "a.py", "x = 1\n")

	var warned bool
	a.Dirty = func(string) bool { return true }
	a.Warn = func(format string, args ...interface{}) { warned = true }

	ops := []extract.EditOperation{{Path: "a.py", Search: "x = 1", Replace: "x = 2"}}
	out := a.ApplyAll(ops, ModeAuto)[0]
	if !out.Applied {
		t.Fatalf("dirty advisory must not block the write: %+v", out)
	}
	if !warned {
		t.Error("expected a dirty-tree warning")
	}
}

func TestDeleteOperation(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	path := writeFile(t, root, "a.py", "keep\ndead code\nkeep too\n")

	ops := []extract.EditOperation{{Path: "a.py", Search: "dead code\n", Replace: ""}}
	out := a.ApplyAll(ops, ModeAuto)[0]
	if !out.Applied {
		t.Fatalf("expected applied, got %+v", out)
	}
	if got := readFile(t, path); got != "keep\nkeep too\n" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestApplyDiffs(t *testing.T) {
	a, root := newTestApplier(t, Options{})
	path := writeFile(t, root, "u.py", "one\ntwo\nthree\n")

	diffs := []extract.DiffBlock{{
		Path:    "u.py",
		Content: "--- a/u.py\n+++ b/u.py\n@@ -2,1 +2,1 @@\n-two\n+TWO\n",
	}}
	out := a.ApplyDiffs(diffs, ModeAuto)[0]
	if !out.Applied {
		t.Fatalf("expected applied, got %+v", out)
	}
	if got := readFile(t, path); got != "one\nTWO\nthree\n" {
		t.Errorf("unexpected content: %q", got)
	}
}

func TestApplyDiffMissingFile(t *testing.T) {
	a, _ := newTestApplier(t, Options{})
	diffs := []extract.DiffBlock{{Path: "nope.py", Content: "--- a/nope.py\n+++ b/nope.py\n"}}
	out := a.ApplyDiffs(diffs, ModeAuto)[0]
	if out.Reason != ReasonFilesystem {
		t.Fatalf("expected filesystem-error, got %+v", out)
	}
}

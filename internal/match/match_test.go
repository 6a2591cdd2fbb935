package match

import (
	"fmt"
	"strings"
	"testing"
)

func TestFindExact(t *testing.T) {
	content := "x = 1\ny = 2\nz = 3\n"

	r := Find(content, "y = 2")
	if !r.Found {
		t.Fatal("expected match")
	}
	if r.Tier != TierExact {
		t.Errorf("expected exact tier, got %v", r.Tier)
	}
	if content[r.Start:r.End] != "y = 2" {
		t.Errorf("offsets wrong: %q", content[r.Start:r.End])
	}
}

func TestExactShortCircuits(t *testing.T) {
	// Content where all three tiers would match: the reported tier must be
	// exact, proving the lenient tiers were never consulted.
	content := "func main() {\n\tdoWork()\n}\n"
	r := Find(content, "\tdoWork()")
	if !r.Found || r.Tier != TierExact {
		t.Fatalf("expected exact tier, got %+v", r)
	}
}

func TestFindTrailingWhitespace(t *testing.T) {
	content := "x = 1   \ny = 2\t\nz = 3\n"

	r := Find(content, "x = 1\ny = 2")
	if !r.Found {
		t.Fatal("expected match")
	}
	if r.Tier != TierTrailingWS {
		t.Errorf("expected whitespace tier, got %v", r.Tier)
	}
	// Offsets are against the original content, trailing whitespace intact.
	if got := content[r.Start:r.End]; got != "x = 1   \ny = 2\t" {
		t.Errorf("offsets wrong: %q", got)
	}
}

func TestFindIndentNormalized(t *testing.T) {
	content := "def f():\n    if x:\n        go()\n"

	r := Find(content, "if x:\n    go()")
	if !r.Found {
		t.Fatal("expected match")
	}
	if r.Tier != TierIndent {
		t.Errorf("expected indent tier, got %v", r.Tier)
	}
	if got := content[r.Start:r.End]; got != "    if x:\n        go()" {
		t.Errorf("offsets wrong: %q", got)
	}
}

func TestFindSearchEndingWithNewline(t *testing.T) {
	content := "a  \nb\nc\n"
	r := Find(content, "a\nb\n")
	if !r.Found {
		t.Fatal("expected match")
	}
	if got := content[r.Start:r.End]; got != "a  \nb\n" {
		t.Errorf("offsets wrong: %q", got)
	}
}

func TestFindNotFound(t *testing.T) {
	content := "line one\nline two\n"
	r := Find(content, "does not exist")
	if r.Found {
		t.Fatal("expected no match")
	}
	if r.AttemptedTier != TierIndent {
		t.Errorf("expected all tiers attempted, got %v", r.AttemptedTier)
	}
	if r.Snapshot != content {
		t.Errorf("short files keep full snapshot, got %q", r.Snapshot)
	}
}

func TestFindMidLineRejected(t *testing.T) {
	// "= 1" appears mid-line; the normalized tiers must not match it since
	// offset mapping is whole-line based. Exact tier still finds it.
	content := "x = 1  \n"
	r := Find(content, "= 1")
	if !r.Found || r.Tier != TierExact {
		t.Fatalf("expected exact mid-line match, got %+v", r)
	}

	r = Find(content, "= 1\t")
	if r.Found {
		t.Errorf("normalized tiers must not match mid-line, got %+v", r)
	}
}

func TestSnapshotTruncation(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 500; i++ {
		fmt.Fprintf(&b, "line %d\n", i)
	}
	snap := Snapshot(b.String())

	lines := strings.Split(snap, "\n")
	if len(lines) != SnapshotMaxLines+1 {
		t.Errorf("expected %d lines plus marker, got %d", SnapshotMaxLines, len(lines))
	}
	if !strings.Contains(snap, "more lines) ...") {
		t.Errorf("snapshot missing omission marker: %q", lines[len(lines)-1])
	}
	if !strings.HasPrefix(snap, "line 0\n") {
		t.Errorf("snapshot must keep the head of the file")
	}
}

package apply

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/sokinpui/coda/internal/extract"
)

var hunkHeaderPattern = regexp.MustCompile(`@@ -(\d+)`)

// ApplyDiffs applies legacy unified-diff blocks. Hunks are replayed naively
// from their headers without context-line verification; this is the lenient
// legacy path, kept only for responses that produced no primary blocks.
func (a *Applier) ApplyDiffs(diffs []extract.DiffBlock, mode Mode) []Outcome {
	outcomes := make([]Outcome, 0, len(diffs))
	for _, d := range diffs {
		outcomes = append(outcomes, a.applyDiff(d, mode))
	}
	return outcomes
}

func (a *Applier) applyDiff(d extract.DiffBlock, mode Mode) Outcome {
	resolved, reason, msg := a.validatePath(d.Path)
	if reason != ReasonNone {
		return Outcome{Path: d.Path, Reason: reason, Message: msg}
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return Outcome{
			Path:    d.Path,
			Reason:  ReasonFilesystem,
			Message: fmt.Sprintf("file not found for diff: %s", d.Path),
		}
	}
	current := string(data)

	if a.Dirty != nil && a.Dirty(resolved) {
		a.warn("File has uncommitted changes: %s", d.Path)
	}

	newContent := patchNaive(current, d.Content)

	if mode == ModeDryRun {
		a.showDiff(d.Path, current, newContent)
		return Outcome{Path: d.Path, Reason: ReasonDryRun, Summary: "would patch " + d.Path}
	}
	if mode == ModeConfirm {
		a.showDiff(d.Path, current, newContent)
		if !a.confirm("Apply this diff?") {
			return Outcome{Path: d.Path, Reason: ReasonDeclined}
		}
	}

	b := newBatch()
	if out, ok := a.write(b, d.Path, resolved, newContent, true); !ok {
		return out
	}
	return Outcome{Path: d.Path, Applied: true, Summary: "patched " + d.Path}
}

// patchNaive replays +/- lines from hunk bodies at the line numbers the
// headers claim, tracking the offset introduced by earlier hunks.
func patchNaive(content, diff string) string {
	lines := strings.SplitAfter(content, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	idx := 0
	offset := 0
	for _, dline := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(dline, "@@"):
			if m := hunkHeaderPattern.FindStringSubmatch(dline); m != nil {
				var start int
				fmt.Sscanf(m[1], "%d", &start)
				idx = start - 1 + offset
			}
		case strings.HasPrefix(dline, "---"), strings.HasPrefix(dline, "+++"):
			// header lines
		case strings.HasPrefix(dline, "-"):
			if idx >= 0 && idx < len(lines) {
				lines = append(lines[:idx], lines[idx+1:]...)
				offset--
			}
		case strings.HasPrefix(dline, "+"):
			inserted := dline[1:] + "\n"
			if idx < 0 {
				idx = 0
			}
			if idx >= len(lines) {
				lines = append(lines, inserted)
			} else {
				lines = append(lines[:idx], append([]string{inserted}, lines[idx:]...)...)
			}
			idx++
			offset++
		case dline == "":
			// blank separator
		default:
			idx++
		}
	}
	return strings.Join(lines, "")
}

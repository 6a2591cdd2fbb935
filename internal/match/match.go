// Package match locates the exact byte range a search text refers to inside
// file content. Three increasingly lenient tiers are tried in order; there is
// no fuzzy matching, so an edit can never land on a merely similar location.
package match

import (
	"fmt"
	"strings"
)

// Tier identifies the matching strategy that produced a result.
type Tier int

const (
	TierNone Tier = iota
	// TierExact is a character-for-character substring match.
	TierExact
	// TierTrailingWS compares with trailing whitespace stripped per line.
	TierTrailingWS
	// TierIndent additionally strips leading whitespace per line.
	TierIndent
)

func (t Tier) String() string {
	switch t {
	case TierExact:
		return "exact"
	case TierTrailingWS:
		return "whitespace-normalized"
	case TierIndent:
		return "indent-normalized"
	default:
		return "none"
	}
}

// SnapshotMaxLines caps the file snapshot attached to a failed match.
const SnapshotMaxLines = 200

// Result is the outcome of a Find call. When Found is false, AttemptedTier
// is the most lenient tier that was tried and Snapshot holds the truncated
// file content for corrective feedback.
type Result struct {
	Found bool
	Tier  Tier
	// Start and End are byte offsets into the original, unnormalized
	// content, valid only when Found.
	Start int
	End   int

	AttemptedTier Tier
	Snapshot      string
}

// Find locates search inside content. Tiers short-circuit: if the exact tier
// succeeds the normalized tiers are never evaluated. Offsets always refer to
// the original content regardless of which tier matched.
func Find(content, search string) Result {
	// Tier 1: exact substring.
	if idx := strings.Index(content, search); idx != -1 {
		return Result{Found: true, Tier: TierExact, Start: idx, End: idx + len(search)}
	}

	// Tier 2: trailing whitespace stripped on both sides.
	if r, ok := findNormalized(content, search, stripTrailing); ok {
		r.Tier = TierTrailingWS
		return r
	}

	// Tier 3: leading and trailing whitespace stripped on both sides.
	if r, ok := findNormalized(content, search, stripBoth); ok {
		r.Tier = TierIndent
		return r
	}

	return Result{
		AttemptedTier: TierIndent,
		Snapshot:      Snapshot(content),
	}
}

func stripTrailing(line string) string {
	return strings.TrimRight(line, " \t\r")
}

func stripBoth(line string) string {
	return strings.TrimSpace(line)
}

// findNormalized matches line-normalized forms of content and search, then
// maps the normalized match position back to byte offsets in the original.
// The mapping works on whole lines: the match starts at the beginning of the
// first matched line and ends after the last matched line.
func findNormalized(content, search string, norm func(string) string) (Result, bool) {
	contentLines := splitKeepEnds(content)
	normContent := normalizeLines(contentLines, norm)

	searchLines := strings.Split(search, "\n")
	normSearchParts := make([]string, len(searchLines))
	for i, l := range searchLines {
		normSearchParts[i] = norm(l)
	}
	normSearch := strings.Join(normSearchParts, "\n")
	if normSearch == "" {
		return Result{}, false
	}

	idx := strings.Index(normContent, normSearch)
	if idx == -1 {
		return Result{}, false
	}

	// The match must start at a line boundary in the normalized content,
	// otherwise whole-line offset mapping would point at the wrong region.
	if idx > 0 && normContent[idx-1] != '\n' {
		return Result{}, false
	}

	startLine := strings.Count(normContent[:idx], "\n")

	// A search ending in a newline matches whole lines including the final
	// line break; otherwise the last matched line is claimed without it.
	fullLines := len(searchLines)
	endsAtBoundary := false
	if fullLines > 1 && searchLines[fullLines-1] == "" {
		fullLines--
		endsAtBoundary = true
	}

	start := 0
	for i := 0; i < startLine; i++ {
		start += len(contentLines[i])
	}
	end := start
	for i := startLine; i < startLine+fullLines && i < len(contentLines); i++ {
		end += len(contentLines[i])
	}
	last := startLine + fullLines - 1
	if !endsAtBoundary && last < len(contentLines) && strings.HasSuffix(contentLines[last], "\n") {
		end--
	}

	return Result{Found: true, Start: start, End: end}, true
}

func normalizeLines(lines []string, norm func(string) string) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = norm(strings.TrimSuffix(l, "\n"))
	}
	return strings.Join(parts, "\n")
}

func splitKeepEnds(s string) []string {
	if s == "" {
		return []string{""}
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Snapshot truncates file content to the first SnapshotMaxLines lines for
// attachment to failure feedback.
func Snapshot(content string) string {
	lines := strings.Split(content, "\n")
	if len(lines) <= SnapshotMaxLines {
		return content
	}
	omitted := len(lines) - SnapshotMaxLines
	head := lines[:SnapshotMaxLines]
	return strings.Join(head, "\n") + fmt.Sprintf("\n... (%d more lines) ...", omitted)
}

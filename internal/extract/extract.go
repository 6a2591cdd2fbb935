// Package extract parses model responses into edit operations.
//
// The primary format is the SEARCH/REPLACE block:
//
//	path/to/file.py
//	<<<<<<< SEARCH
//	existing content
//	=======
//	replacement content
//	>>>>>>> REPLACE
//
// Legacy whole-file formats are tried only when the primary format yields
// nothing. See fallback.go.
package extract

import (
	"fmt"
	"strings"
)

const (
	searchMarker  = "<<<<<<< SEARCH"
	dividerMarker = "======="
	replaceMarker = ">>>>>>> REPLACE"
)

// Kind classifies an edit operation by which of its sides are empty.
type Kind int

const (
	KindModify Kind = iota
	KindCreate
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindDelete:
		return "delete"
	default:
		return "modify"
	}
}

// EditOperation is one parsed instruction to change a file. It is immutable
// once parsed; the applier never mutates it.
type EditOperation struct {
	Path    string
	Search  string
	Replace string
	// Raw is the block exactly as it appeared in the response.
	Raw string
}

// Kind derives the operation kind: empty search is a create, empty replace
// with a non-empty search is a delete.
func (op EditOperation) Kind() Kind {
	switch {
	case op.Search == "":
		return KindCreate
	case op.Replace == "":
		return KindDelete
	default:
		return KindModify
	}
}

// Serialize renders the operation back into canonical SEARCH/REPLACE form.
// A well-formed parsed block serializes byte-identically to its input.
func (op EditOperation) Serialize() string {
	var b strings.Builder
	b.WriteString(op.Path)
	b.WriteString("\n")
	b.WriteString(searchMarker)
	b.WriteString("\n")
	if op.Search != "" {
		b.WriteString(op.Search)
		b.WriteString("\n")
	}
	b.WriteString(dividerMarker)
	b.WriteString("\n")
	if op.Replace != "" {
		b.WriteString(op.Replace)
		b.WriteString("\n")
	}
	b.WriteString(replaceMarker)
	b.WriteString("\n")
	return b.String()
}

// DiffBlock is a raw unified diff from a legacy-format response. It is
// applied without context-line verification.
type DiffBlock struct {
	Path    string
	Content string
}

// Format identifies which parser produced a ParsedResponse.
type Format int

const (
	FormatNone Format = iota
	FormatSearchReplace
	FormatFenced
	FormatDiff
	FormatFileMarker
)

// ParsedResponse holds the ordered operations extracted from one response.
// Ops preserve appearance order; multiple ops may share a path and are never
// merged or deduplicated.
type ParsedResponse struct {
	Ops      []EditOperation
	Diffs    []DiffBlock
	Format   Format
	Warnings []string
}

// Empty reports whether nothing actionable was extracted.
func (p ParsedResponse) Empty() bool {
	return len(p.Ops) == 0 && len(p.Diffs) == 0
}

// Parser extracts edit operations from response text. The zero value is
// ready to use; parsing holds no shared state and is reentrant.
type Parser struct {
	// WarnIncomplete surfaces dropped incomplete blocks as warnings
	// instead of dropping them silently.
	WarnIncomplete bool
}

// Parse extracts edit operations from a full response. The primary
// SEARCH/REPLACE format wins; the legacy fallbacks are tried in fixed
// priority only when it yields zero operations, and only one fallback
// format is active per response.
func (p *Parser) Parse(response string) ParsedResponse {
	ops, warnings := p.parsePrimary(response)
	if len(ops) > 0 {
		return ParsedResponse{Ops: ops, Format: FormatSearchReplace, Warnings: warnings}
	}

	if fenced := parseFenced(response); len(fenced) > 0 {
		return ParsedResponse{Ops: fenced, Format: FormatFenced, Warnings: warnings}
	}
	if diffs := parseDiffs(response); len(diffs) > 0 {
		return ParsedResponse{Diffs: diffs, Format: FormatDiff, Warnings: warnings}
	}
	if marked := parseFileMarkers(response); len(marked) > 0 {
		return ParsedResponse{Ops: marked, Format: FormatFileMarker, Warnings: warnings}
	}

	return ParsedResponse{Format: FormatNone, Warnings: warnings}
}

type parseState int

const (
	stateScanning parseState = iota
	stateInSearch
	stateInReplace
)

// parsePrimary runs the line state machine over the response. A line is a
// path candidate only when it is non-blank, not indented, not itself a
// marker, and the very next line is exactly the begin-search marker; the
// look-ahead keeps prose from being misread as a path.
func (p *Parser) parsePrimary(response string) ([]EditOperation, []string) {
	lines := splitKeepEnds(response)

	var (
		ops      []EditOperation
		warnings []string

		state    = stateScanning
		path     string
		search   []string
		replace  []string
		rawStart int
	)

	i := 0
	for i < len(lines) {
		line := trimEOL(lines[i])

		switch state {
		case stateScanning:
			if i+1 < len(lines) && trimEOL(lines[i+1]) == searchMarker && isPathCandidate(line) {
				path = strings.TrimSpace(line)
				rawStart = i
				search, replace = nil, nil
				state = stateInSearch
				i += 2
				continue
			}
			i++

		case stateInSearch:
			if line == dividerMarker {
				state = stateInReplace
				i++
				continue
			}
			search = append(search, lines[i])
			i++

		case stateInReplace:
			if line == replaceMarker {
				ops = append(ops, EditOperation{
					Path:    path,
					Search:  joinBlock(search),
					Replace: joinBlock(replace),
					Raw:     strings.Join(lines[rawStart:i+1], ""),
				})
				state = stateScanning
				i++
				continue
			}
			replace = append(replace, lines[i])
			i++
		}
	}

	// A block still open at end of input is incomplete and is dropped.
	if state != stateScanning && p.WarnIncomplete {
		warnings = append(warnings, fmt.Sprintf("dropped incomplete edit block for %s", path))
	}

	return ops, warnings
}

func isPathCandidate(stripped string) bool {
	if stripped == "" {
		return false
	}
	if strings.HasPrefix(stripped, " ") || strings.HasPrefix(stripped, "\t") {
		return false
	}
	switch stripped {
	case searchMarker, dividerMarker, replaceMarker:
		return false
	}
	return true
}

// splitKeepEnds splits s into lines, each retaining its line ending.
func splitKeepEnds(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// trimEOL strips the trailing line ending for marker comparison.
func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

// joinBlock reassembles accumulated lines, stripping the single trailing
// newline that belongs to the marker line break rather than the content.
func joinBlock(lines []string) string {
	s := strings.Join(lines, "")
	return strings.TrimSuffix(s, "\n")
}

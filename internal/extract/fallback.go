package extract

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Legacy fallback parsers. Each produces whole-file granularity: fenced and
// FILE: blocks become create operations carrying the full new content, diff
// blocks are kept raw for naive patch application.

// parseFenced walks the markdown AST for fenced code blocks whose info
// string carries a language:path header, e.g. ```python:src/app.py.
func parseFenced(response string) []EditOperation {
	source := []byte(response)
	root := goldmark.DefaultParser().Parse(text.NewReader(source))

	var ops []EditOperation
	seen := make(map[string]bool)

	walker := func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fenced, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}

		var info string
		if fenced.Info != nil {
			info = string(fenced.Info.Text(source))
		}
		lang, path, ok := splitFenceInfo(info)
		if !ok || seen[path] {
			return ast.WalkSkipChildren, nil
		}

		var content bytes.Buffer
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			content.Write(line.Value(source))
		}

		seen[path] = true
		ops = append(ops, EditOperation{
			Path:    path,
			Replace: content.String(),
			Raw:     "```" + lang + ":" + path + "\n" + content.String() + "```",
		})
		return ast.WalkSkipChildren, nil
	}

	if err := ast.Walk(root, walker); err != nil {
		return nil
	}
	return ops
}

// splitFenceInfo parses "lang:path" from a fence info string. Both parts
// must be non-empty and the path must not contain spaces.
func splitFenceInfo(info string) (lang, path string, ok bool) {
	lang, path, found := strings.Cut(strings.TrimSpace(info), ":")
	if !found || lang == "" {
		return "", "", false
	}
	path = strings.TrimSpace(path)
	if path == "" || strings.Contains(path, " ") {
		return "", "", false
	}
	return lang, path, true
}

var diffPattern = regexp.MustCompile(
	`(?m)^--- +a/([^\n]+)\n\+\+\+ +b/([^\n]+)\n((?:@@[^\n]*\n(?:[+ \-][^\n]*\n?)*)*)`)

// parseDiffs finds unified-diff header pairs and captures their hunks.
func parseDiffs(response string) []DiffBlock {
	matches := diffPattern.FindAllStringSubmatch(response, -1)
	var diffs []DiffBlock
	seen := make(map[string]bool)

	for _, m := range matches {
		fromPath := strings.TrimSpace(m[1])
		toPath := strings.TrimSpace(m[2])
		path := toPath
		if path == "" {
			path = fromPath
		}
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		diffs = append(diffs, DiffBlock{Path: path, Content: m[0]})
	}
	return diffs
}

var fileMarkerPattern = regexp.MustCompile(`(?m)^FILE:[ \t]*([^\n]+)\n`)

// parseFileMarkers finds "FILE: path" markers; everything up to the next
// marker (or end of response) is the full new file content.
func parseFileMarkers(response string) []EditOperation {
	locs := fileMarkerPattern.FindAllStringSubmatchIndex(response, -1)
	var ops []EditOperation
	seen := make(map[string]bool)

	for i, loc := range locs {
		path := strings.TrimSpace(response[loc[2]:loc[3]])
		end := len(response)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		content := strings.TrimSpace(response[loc[1]:end])
		if path == "" || content == "" || seen[path] {
			continue
		}
		seen[path] = true
		ops = append(ops, EditOperation{
			Path:    path,
			Replace: content,
			Raw:     response[loc[0]:end],
		})
	}
	return ops
}

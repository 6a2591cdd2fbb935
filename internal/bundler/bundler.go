// Package bundler collects project files into a prompt attachment. Paths and
// globs expand through a directory walk with exclude patterns, binary files
// are sniffed and skipped, and each file reports a token estimate so callers
// can see the context cost before sending.
package bundler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sokinpui/coda/internal/token"
)

// File is one bundled file.
type File struct {
	Path      string
	Content   string
	Tokens    int
	Truncated bool
}

// Bundle is the assembled attachment.
type Bundle struct {
	Files   []File
	Skipped []string
	Tokens  int
}

// Options tunes discovery.
type Options struct {
	Root         string
	Excludes     []string
	MaxFileBytes int64
}

// Bundler expands path arguments into a Bundle.
type Bundler struct {
	opts Options
}

// New validates options and applies defaults.
func New(opts Options) (*Bundler, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("bundler root is required")
	}
	abs, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve bundler root: %w", err)
	}
	opts.Root = abs
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = 1024 * 1024
	}
	return &Bundler{opts: opts}, nil
}

// Collect expands the given paths. Each argument may be a file, a directory
// (walked recursively), or a glob relative to the root. Duplicates collapse;
// output order is sorted by path.
func (b *Bundler) Collect(paths []string) (*Bundle, error) {
	seen := make(map[string]bool)
	bundle := &Bundle{}

	for _, arg := range paths {
		matches, err := b.expand(arg)
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			bundle.Skipped = append(bundle.Skipped, arg+" (no match)")
			continue
		}
		for _, rel := range matches {
			if seen[rel] {
				continue
			}
			seen[rel] = true
			b.add(bundle, rel)
		}
	}

	sort.Slice(bundle.Files, func(i, j int) bool {
		return bundle.Files[i].Path < bundle.Files[j].Path
	})
	for _, f := range bundle.Files {
		bundle.Tokens += f.Tokens
	}
	return bundle, nil
}

// Render formats the bundle as fenced sections, the shape the model is
// instructed to echo paths back from.
func (b *Bundle) Render() string {
	var sb strings.Builder
	for _, f := range b.Files {
		fmt.Fprintf(&sb, "### %s\n```\n%s", f.Path, f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("```\n\n")
	}
	return sb.String()
}

// expand resolves one path argument to root-relative file paths.
func (b *Bundler) expand(arg string) ([]string, error) {
	full := arg
	if !filepath.IsAbs(full) {
		full = filepath.Join(b.opts.Root, arg)
	}

	if info, err := os.Stat(full); err == nil {
		if info.IsDir() {
			return b.walk(full)
		}
		rel, err := filepath.Rel(b.opts.Root, full)
		if err != nil || strings.HasPrefix(rel, "..") {
			return nil, fmt.Errorf("path %s is outside the project root", arg)
		}
		return []string{filepath.ToSlash(rel)}, nil
	}

	globMatches, err := filepath.Glob(full)
	if err != nil {
		return nil, fmt.Errorf("bad glob %q: %w", arg, err)
	}
	var out []string
	for _, m := range globMatches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		rel, err := filepath.Rel(b.opts.Root, m)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		rel = filepath.ToSlash(rel)
		if !b.excluded(rel) {
			out = append(out, rel)
		}
	}
	return out, nil
}

func (b *Bundler) walk(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(b.opts.Root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && b.excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !b.excluded(rel) {
			out = append(out, rel)
		}
		return nil
	})
	return out, err
}

// excluded matches a relative path against the exclude patterns, testing the
// base name, the whole path, and each path segment.
func (b *Bundler) excluded(rel string) bool {
	base := filepath.Base(rel)
	for _, pat := range b.opts.Excludes {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, rel); ok {
			return true
		}
		for _, seg := range strings.Split(rel, "/") {
			if ok, _ := filepath.Match(pat, seg); ok {
				return true
			}
		}
	}
	return false
}

// add reads and classifies one file into the bundle.
func (b *Bundler) add(bundle *Bundle, rel string) {
	full := filepath.Join(b.opts.Root, filepath.FromSlash(rel))
	info, err := os.Stat(full)
	if err != nil {
		bundle.Skipped = append(bundle.Skipped, rel+" (unreadable)")
		return
	}
	truncated := false
	readLimit := info.Size()
	if readLimit > b.opts.MaxFileBytes {
		readLimit = b.opts.MaxFileBytes
		truncated = true
	}

	data, err := os.ReadFile(full)
	if err != nil {
		bundle.Skipped = append(bundle.Skipped, rel+" (unreadable)")
		return
	}
	if isBinary(data) {
		bundle.Skipped = append(bundle.Skipped, rel+" (binary)")
		return
	}
	if truncated {
		data = data[:readLimit]
	}

	content := string(data)
	bundle.Files = append(bundle.Files, File{
		Path:      rel,
		Content:   content,
		Tokens:    token.Estimate(content),
		Truncated: truncated,
	})
}

// isBinary sniffs the first KiB for NUL bytes.
func isBinary(data []byte) bool {
	if len(data) > 1024 {
		data = data[:1024]
	}
	return bytes.IndexByte(data, 0) >= 0
}

package bundler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files map[string][]byte) string {
	t.Helper()
	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, content, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func TestCollectDirectoryWithExcludes(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"main.go":             []byte("package main\n"),
		"util/helper.go":      []byte("package util\n"),
		"node_modules/dep.js": []byte("module.exports = {}\n"),
		"vendor/lib/lib.go":   []byte("package lib\n"),
		"build/out.txt":       []byte("artifact\n"),
		"docs/guide.md":       []byte("# Guide\n"),
	})
	b, err := New(Options{Root: root, Excludes: []string{"node_modules", "vendor", "build"}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bundle, err := b.Collect([]string{"."})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}

	var paths []string
	for _, f := range bundle.Files {
		paths = append(paths, f.Path)
	}
	want := []string{"docs/guide.md", "main.go", "util/helper.go"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
}

func TestCollectGlob(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a.go":  []byte("package a\n"),
		"b.go":  []byte("package b\n"),
		"c.txt": []byte("text\n"),
	})
	b, err := New(Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := b.Collect([]string{"*.go"})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(bundle.Files) != 2 {
		t.Fatalf("files = %d, want 2", len(bundle.Files))
	}
}

func TestBinaryFilesSkipped(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"text.txt": []byte("hello\n"),
		"blob.bin": {0x00, 0x01, 0x02, 0xff},
	})
	b, err := New(Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := b.Collect([]string{"."})
	if err != nil {
		t.Fatal(err)
	}
	if len(bundle.Files) != 1 || bundle.Files[0].Path != "text.txt" {
		t.Fatalf("files = %+v, want only text.txt", bundle.Files)
	}
	found := false
	for _, s := range bundle.Skipped {
		if strings.Contains(s, "blob.bin") && strings.Contains(s, "binary") {
			found = true
		}
	}
	if !found {
		t.Fatalf("skipped = %v, want blob.bin marked binary", bundle.Skipped)
	}
}

func TestOversizeFileTruncated(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"big.txt": []byte(strings.Repeat("a", 100)),
	})
	b, err := New(Options{Root: root, MaxFileBytes: 10})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := b.Collect([]string{"big.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bundle.Files) != 1 {
		t.Fatalf("files = %d, want 1", len(bundle.Files))
	}
	f := bundle.Files[0]
	if !f.Truncated || len(f.Content) != 10 {
		t.Fatalf("file = %+v, want 10 bytes truncated", f)
	}
}

func TestNoMatchReported(t *testing.T) {
	b, err := New(Options{Root: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := b.Collect([]string{"missing.go"})
	if err != nil {
		t.Fatal(err)
	}
	if len(bundle.Files) != 0 || len(bundle.Skipped) != 1 {
		t.Fatalf("bundle = %+v, want one skipped entry", bundle)
	}
}

func TestRenderFencesEachFile(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a.txt": []byte("alpha\n"),
	})
	b, err := New(Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := b.Collect([]string{"a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	out := bundle.Render()
	if !strings.Contains(out, "### a.txt\n```\nalpha\n```") {
		t.Fatalf("render = %q", out)
	}
}

func TestTokenTotals(t *testing.T) {
	root := writeTree(t, map[string][]byte{
		"a.txt": []byte(strings.Repeat("word ", 50)),
	})
	b, err := New(Options{Root: root})
	if err != nil {
		t.Fatal(err)
	}
	bundle, err := b.Collect([]string{"a.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if bundle.Tokens == 0 || bundle.Tokens != bundle.Files[0].Tokens {
		t.Fatalf("tokens = %d, files[0] = %d", bundle.Tokens, bundle.Files[0].Tokens)
	}
}

package skills

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSkill(t *testing.T, dir, file, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadAndCompose(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "tests.yaml", "name: tests\ntext: Always add tests.\n")
	writeSkill(t, dir, "docs.yaml", "name: docs\ntext: Update the docs.\n")

	r := NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	got, err := r.Compose([]string{"tests", "docs"})
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	want := "Always add tests.\n\nUpdate the docs."
	if got != want {
		t.Fatalf("composed = %q, want %q", got, want)
	}
}

func TestProjectSkillOverridesUser(t *testing.T) {
	user := t.TempDir()
	project := t.TempDir()
	writeSkill(t, user, "style.yaml", "name: style\ntext: user version\n")
	writeSkill(t, project, "style.yaml", "name: style\ntext: project version\n")

	r := NewRegistry()
	if err := r.LoadDir(user); err != nil {
		t.Fatal(err)
	}
	if err := r.LoadDir(project); err != nil {
		t.Fatal(err)
	}
	s, err := r.Get("style")
	if err != nil {
		t.Fatal(err)
	}
	if s.Text != "project version" {
		t.Fatalf("text = %q, want the later-loaded project version", s.Text)
	}
}

func TestComposeUnknownSkill(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Compose([]string{"missing"}); err == nil {
		t.Fatal("composing an unknown skill should error")
	}
}

func TestNames(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "b.yaml", "text: b\n")
	writeSkill(t, dir, "a.yaml", "text: a\n")
	r := NewRegistry()
	if err := r.LoadDir(dir); err != nil {
		t.Fatal(err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v, want sorted [a b]", names)
	}
}

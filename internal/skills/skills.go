// Package skills loads reusable prompt fragments layered on top of the
// system prompt, e.g. a testing skill or a refactoring skill. Skills live in
// YAML files under ~/.coda/skills and in the project's .coda/skills.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is one named fragment.
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
	// Tags are free-form labels shown in listings.
	Tags []string `yaml:"tags"`
}

// Registry maps skill names to skills. Later-loaded directories override
// earlier ones, so project skills beat user skills.
type Registry struct {
	skills map[string]Skill
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// LoadDir merges skills from dir. Missing directories are fine.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read skills directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read skill %s: %w", name, err)
		}
		var s Skill
		if err := yaml.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("failed to parse skill %s: %w", name, err)
		}
		if s.Name == "" {
			s.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}
		if s.Text == "" {
			return fmt.Errorf("skill %s has no text", name)
		}
		r.skills[s.Name] = s
	}
	return nil
}

// Get returns a skill by name.
func (r *Registry) Get(name string) (Skill, error) {
	s, ok := r.skills[name]
	if !ok {
		return Skill{}, fmt.Errorf("unknown skill %q (have: %s)", name, strings.Join(r.Names(), ", "))
	}
	return s, nil
}

// Names lists registered skill names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.skills))
	for n := range r.skills {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Compose joins the named skills' text in the given order.
func (r *Registry) Compose(names []string) (string, error) {
	var parts []string
	for _, n := range names {
		s, err := r.Get(n)
		if err != nil {
			return "", err
		}
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n"), nil
}

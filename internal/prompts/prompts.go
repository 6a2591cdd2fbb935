// Package prompts holds the system prompt registry. The built-in default
// teaches the model the edit block contract; users add or override prompts
// with YAML files under ~/.coda/prompts.
package prompts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultName is the prompt used when none is selected.
const DefaultName = "coding"

// defaultSystemPrompt is the edit block contract. The extractor's primary
// format mirrors exactly what this asks for.
const defaultSystemPrompt = `You are a coding assistant that edits files.

When you change a file, emit each change as an edit block:

path/to/file.go
<<<<<<< SEARCH
exact lines currently in the file
=======
replacement lines
>>>>>>> REPLACE

Rules:
- The path goes on its own line directly above the block.
- SEARCH content must match the file exactly, including indentation.
- To create a new file, leave the SEARCH section empty.
- To delete lines, leave the REPLACE section empty.
- Emit multiple blocks for multiple changes; they apply in order.
- If you have no edits and need another round, write CONTINUE on its own line.`

// Prompt is one named system prompt.
type Prompt struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Text        string `yaml:"text"`
}

// Registry maps prompt names to prompts.
type Registry struct {
	prompts map[string]Prompt
}

// NewRegistry starts with the built-in prompts.
func NewRegistry() *Registry {
	r := &Registry{prompts: make(map[string]Prompt)}
	r.prompts[DefaultName] = Prompt{
		Name:        DefaultName,
		Description: "default coding prompt with the edit block contract",
		Text:        defaultSystemPrompt,
	}
	return r
}

// LoadDir merges YAML prompt files from dir, one prompt per file. User
// prompts override built-ins with the same name. A missing directory is
// fine.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read prompts directory: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || (!strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml")) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
		var p Prompt
		if err := yaml.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to parse prompt %s: %w", name, err)
		}
		if p.Name == "" {
			p.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}
		if p.Text == "" {
			return fmt.Errorf("prompt %s has no text", name)
		}
		r.prompts[p.Name] = p
	}
	return nil
}

// Get returns a prompt by name; empty name means the default.
func (r *Registry) Get(name string) (Prompt, error) {
	if name == "" {
		name = DefaultName
	}
	p, ok := r.prompts[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt %q (have: %s)", name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names lists registered prompt names sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.prompts))
	for n := range r.prompts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

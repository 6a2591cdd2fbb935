// Package history records each apply batch so the last one can be undone.
// Undo restores the .bak sibling written by the applier for modified files
// and removes files the batch created.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sokinpui/coda/internal/apply"
)

const (
	stateDirName  = ".coda"
	stateFileName = "history.json"
)

// Change is one file touched by a batch.
type Change struct {
	Path string `json:"path"`
	// Action is "create" or "modify". Creates have no backup; undoing one
	// removes the file.
	Action string `json:"action"`
	// Hash is the content after the batch, checked before undo so a file
	// changed since apply is not clobbered.
	Hash string `json:"hash"`
}

// Entry is one recorded batch.
type Entry struct {
	Timestamp int64    `json:"timestamp"`
	Changes   []Change `json:"changes"`
}

type state struct {
	Entries []Entry `json:"entries"`
}

// Manager loads and persists the history file under <root>/.coda.
type Manager struct {
	root      string
	statePath string
	state     *state
}

// New loads the history for a project root, starting empty when no file
// exists or the file is unreadable.
func New(root string) (*Manager, error) {
	dir := filepath.Join(root, stateDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("could not create state directory: %w", err)
	}
	m := &Manager{
		root:      root,
		statePath: filepath.Join(dir, stateFileName),
		state:     &state{},
	}
	if data, err := os.ReadFile(m.statePath); err == nil {
		if err := json.Unmarshal(data, m.state); err != nil {
			m.state = &state{}
		}
	}
	return m, nil
}

// Record appends a batch built from applied outcomes. Outcomes that were not
// applied are ignored; an all-failed batch records nothing.
func (m *Manager) Record(outcomes []apply.Outcome) error {
	var changes []Change
	seen := make(map[string]bool)
	for _, o := range outcomes {
		if !o.Applied || seen[o.Path] {
			continue
		}
		seen[o.Path] = true
		action := "modify"
		if strings.HasPrefix(o.Summary, "created") {
			action = "create"
		}
		full := filepath.Join(m.root, filepath.FromSlash(o.Path))
		hash, err := fileSHA256(full)
		if err != nil {
			hash = ""
		}
		changes = append(changes, Change{Path: o.Path, Action: action, Hash: hash})
	}
	if len(changes) == 0 {
		return nil
	}
	m.state.Entries = append(m.state.Entries, Entry{
		Timestamp: time.Now().UTC().Unix(),
		Changes:   changes,
	})
	return m.save()
}

// Last returns the most recent batch, or nil when the history is empty.
func (m *Manager) Last() *Entry {
	if len(m.state.Entries) == 0 {
		return nil
	}
	return &m.state.Entries[len(m.state.Entries)-1]
}

// Undo reverts the most recent batch and pops it from the history. It
// returns the paths restored and the paths skipped because their content
// changed after the batch was applied.
func (m *Manager) Undo() (restored, skipped []string, err error) {
	entry := m.Last()
	if entry == nil {
		return nil, nil, fmt.Errorf("nothing to undo")
	}

	for _, c := range entry.Changes {
		full := filepath.Join(m.root, filepath.FromSlash(c.Path))

		if c.Hash != "" {
			if hash, hashErr := fileSHA256(full); hashErr == nil && hash != c.Hash {
				skipped = append(skipped, c.Path)
				continue
			}
		}

		switch c.Action {
		case "create":
			if rmErr := os.Remove(full); rmErr != nil && !os.IsNotExist(rmErr) {
				skipped = append(skipped, c.Path)
				continue
			}
		default:
			bak := full + ".bak"
			if _, statErr := os.Stat(bak); statErr != nil {
				skipped = append(skipped, c.Path)
				continue
			}
			if cpErr := copyFile(bak, full); cpErr != nil {
				skipped = append(skipped, c.Path)
				continue
			}
			os.Remove(bak)
		}
		restored = append(restored, c.Path)
	}

	m.state.Entries = m.state.Entries[:len(m.state.Entries)-1]
	if saveErr := m.save(); saveErr != nil {
		return restored, skipped, saveErr
	}
	return restored, skipped, nil
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.statePath, data, 0o644)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

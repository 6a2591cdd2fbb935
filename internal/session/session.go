// Package session persists conversations so a run can be resumed later.
// Two backends exist: a JSON file per session and a SQLite database. The
// composite store writes to both and reads from the first.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/coda/internal/token"
)

// ErrNotFound means no session exists with the requested ID.
var ErrNotFound = errors.New("session not found")

// Turn is one message in a conversation.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Session is a stored conversation.
type Session struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Model     string      `json:"model"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	Turns     []Turn      `json:"turns"`
	Usage     token.Usage `json:"usage"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updated_at"`
	TurnCount int       `json:"turn_count"`
}

// Store persists sessions. Save overwrites by ID.
type Store interface {
	Save(s *Session) error
	Load(id string) (*Session, error)
	List() ([]Summary, error)
	Delete(id string) error
	Close() error
}

// New creates an empty session for a model.
func New(model string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        uuid.NewString(),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Append records a turn and refreshes the timestamp. The first user turn
// becomes the title.
func (s *Session) Append(role, content string) {
	s.Turns = append(s.Turns, Turn{Role: role, Content: content})
	s.UpdatedAt = time.Now().UTC()
	if s.Title == "" && role == "user" {
		s.Title = truncateTitle(content)
	}
}

func (s *Session) summary() Summary {
	return Summary{
		ID:        s.ID,
		Title:     s.Title,
		Model:     s.Model,
		UpdatedAt: s.UpdatedAt,
		TurnCount: len(s.Turns),
	}
}

const maxTitleLen = 60

func truncateTitle(content string) string {
	for i, r := range content {
		if r == '\n' {
			content = content[:i]
			break
		}
	}
	if len(content) > maxTitleLen {
		return content[:maxTitleLen] + "..."
	}
	return content
}

// Open builds a store for the configured backend under dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case "json":
		return NewJSONStore(dir)
	case "sqlite":
		return NewSQLiteStore(dir)
	case "both":
		j, err := NewJSONStore(dir)
		if err != nil {
			return nil, err
		}
		s, err := NewSQLiteStore(dir)
		if err != nil {
			j.Close()
			return nil, err
		}
		return NewComposite(j, s), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}

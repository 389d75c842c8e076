package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session ID is unknown.
var ErrNotFound = errors.New("session not found")

// Role identifies who produced a turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Length selects how verbose answers should be.
type Length string

const (
	LengthShort    Length = "short"
	LengthDetailed Length = "detailed"
)

// ValidLength reports whether l is one of the supported answer lengths.
func ValidLength(l Length) bool {
	return l == LengthShort || l == LengthDetailed
}

// StyleOptions are the per-session answer style settings, read on every turn.
type StyleOptions struct {
	Language string `json:"language"`
	Length   Length `json:"length"`
}

// Turn is a single conversation entry. Turns are never mutated after they
// are appended to a session.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Audio     []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// HasAudio reports whether synthesized speech is attached to the turn.
func (t Turn) HasAudio() bool {
	return len(t.Audio) > 0
}

// Session holds the ordered conversation history and style options for one
// interactive session. The history is append-only and lives only as long as
// the session; nothing is persisted.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu    sync.RWMutex
	opts  StyleOptions
	turns []Turn
}

// Append adds a turn to the end of the history.
func (s *Session) Append(t Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	s.turns = append(s.turns, t)
}

// AttachAudio sets the audio on the most recent assistant turn. It is a
// no-op when the last turn is not an assistant turn or audio is empty.
func (s *Session) AttachAudio(audio []byte) {
	if len(audio) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.turns); n > 0 && s.turns[n-1].Role == RoleAssistant {
		s.turns[n-1].Audio = audio
	}
}

// All returns a copy of the history in submission order.
func (s *Session) All() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len returns the number of turns in the session.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Turn returns the turn at index i (submission order).
func (s *Session) Turn(i int) (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.turns) {
		return Turn{}, false
	}
	return s.turns[i], true
}

// LastExchange returns the most recent user question and assistant answer.
// Either may be empty when the session has no such turn yet.
func (s *Session) LastExchange() (question, answer string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		switch s.turns[i].Role {
		case RoleUser:
			if question == "" {
				question = s.turns[i].Content
			}
		case RoleAssistant:
			if answer == "" {
				answer = s.turns[i].Content
			}
		}
		if question != "" && answer != "" {
			break
		}
	}
	return question, answer
}

// Options returns the current style options.
func (s *Session) Options() StyleOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.opts
}

// SetOptions replaces the style options. Empty fields keep their current value.
func (s *Session) SetOptions(opts StyleOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if opts.Language != "" {
		s.opts.Language = opts.Language
	}
	if opts.Length != "" {
		s.opts.Length = opts.Length
	}
}

// Manager owns all live sessions, keyed by UUID. Sessions are never shared
// across processes and disappear with the manager.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	defaults StyleOptions
}

// NewManager creates a Manager that seeds new sessions with the given
// default style options.
func NewManager(defaults StyleOptions) *Manager {
	if defaults.Language == "" {
		defaults.Language = "English"
	}
	if defaults.Length == "" {
		defaults.Length = LengthShort
	}
	return &Manager{
		sessions: make(map[string]*Session),
		defaults: defaults,
	}
}

// Create starts a new session. Zero-valued option fields fall back to the
// manager defaults.
func (m *Manager) Create(opts StyleOptions) *Session {
	if opts.Language == "" {
		opts.Language = m.defaults.Language
	}
	if opts.Length == "" {
		opts.Length = m.defaults.Length
	}
	s := &Session{
		ID:        uuid.New().String(),
		CreatedAt: time.Now().UTC(),
		opts:      opts,
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Get returns the session with the given ID.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete removes a session. Deleting an unknown ID returns ErrNotFound.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Package session holds per-login server-side state: the signed-in user,
// the active document and quiz, and the in-progress quiz run. Nothing in
// here leaks across sessions; a session disappears at logout or after the
// inactivity window elapses.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Timeout is the fixed session lifetime, measured from login.
const Timeout = time.Hour

var (
	// ErrNoSession indicates an unknown or missing session token.
	ErrNoSession = errors.New("no such session")
	// ErrSessionExpired indicates the session outlived its window and was
	// evicted; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
)

// Session is the per-login context passed to each handler.
type Session struct {
	Token    string
	UserID   string
	Username string
	LoginAt  time.Time

	// mu serializes quiz operations within the session.
	mu             sync.Mutex
	activeDocument string
	activeQuiz     string
	run            *QuizRun
}

// SetActiveDocument records the document the session is focused on.
func (s *Session) SetActiveDocument(documentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeDocument = documentID
}

func (s *Session) ActiveDocument() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeDocument
}

// StartQuiz installs a new run, replacing any quiz in progress.
func (s *Session) StartQuiz(run *QuizRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeQuiz = run.QuizID
	s.run = run
}

// Run returns the active quiz run, or nil when none is in progress.
func (s *Session) Run() *QuizRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run
}

// CancelQuiz discards the in-progress run without persisting anything.
func (s *Session) CancelQuiz() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeQuiz = ""
	s.run = nil
}

// WithQuiz runs fn under the session lock so no two quiz operations of the
// same session interleave.
func (s *Session) WithQuiz(fn func(run *QuizRun) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run == nil {
		return ErrQuizNotStarted
	}
	return fn(s.run)
}

// Manager tracks live sessions keyed by opaque token.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	now      func() time.Time
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		timeout:  Timeout,
		now:      time.Now,
	}
}

// Create opens a session for the user and returns it with a fresh token.
func (m *Manager) Create(userID, username string) *Session {
	s := &Session{
		Token:    uuid.NewString(),
		UserID:   userID,
		Username: username,
		LoginAt:  m.now(),
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.Token] = s
	return s
}

// Get resolves a token. An expired session is evicted and reported as
// ErrSessionExpired so the caller can force a re-login.
func (m *Manager) Get(token string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[token]
	if !ok {
		return nil, ErrNoSession
	}
	if m.now().Sub(s.LoginAt) > m.timeout {
		delete(m.sessions, token)
		return nil, ErrSessionExpired
	}
	return s, nil
}

// Destroy removes a session; unknown tokens are a no-op.
func (m *Manager) Destroy(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
}

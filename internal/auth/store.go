package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Shreyas-ITB/VibgyorChat-sub000/internal/models"
)

// TokenEvent describes a change broadcast by the token store.
type TokenEvent int

const (
	// TokenUpdated is sent after a login or a refresh rotated the credentials.
	TokenUpdated TokenEvent = iota
	// TokenCleared is sent after a logout removed the credentials.
	TokenCleared
)

// HeaderSink receives the new access token synchronously, before any
// subscriber runs, so in-flight HTTP requests pick up rotations immediately.
type HeaderSink interface {
	SetAuthToken(token string)
}

// TokenStore owns the session credentials. It persists them to a state file so
// a process restart preserves the login, and broadcasts changes to subscribers
// such as the realtime supervisor. Only the session Manager writes to it.
type TokenStore struct {
	path string
	sink HeaderSink

	mu      sync.Mutex
	session models.Session
	subs    map[int]func(TokenEvent)
	nextSub int
}

// NewTokenStore loads any persisted session from path and wires the header
// sink. An unreadable or corrupt state file starts a fresh logged-out store.
func NewTokenStore(path string, sink HeaderSink) *TokenStore {
	if sink == nil {
		panic("auth: header sink must not be nil")
	}
	s := &TokenStore{
		path: path,
		sink: sink,
		subs: make(map[int]func(TokenEvent)),
	}

	if session, err := readState(path); err == nil && session.Valid() {
		s.session = session
		sink.SetAuthToken(session.AccessToken)
	}
	return s
}

// Get returns the current session and whether both credentials are present.
func (s *TokenStore) Get() (models.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.session.Valid()
}

// Set replaces the session. The header sink is updated first, then the session
// is persisted, then subscribers are notified.
func (s *TokenStore) Set(session models.Session) {
	s.mu.Lock()
	s.sink.SetAuthToken(session.AccessToken)
	s.session = session
	s.persistLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(TokenUpdated)
	}
}

// SetAccessToken rotates only the access token, keeping the refresh token. A
// successful refresh uses it.
func (s *TokenStore) SetAccessToken(token string) {
	s.mu.Lock()
	s.sink.SetAuthToken(token)
	s.session.AccessToken = token
	s.persistLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(TokenUpdated)
	}
}

// Clear removes the session and notifies subscribers so dependent components
// tear themselves down.
func (s *TokenStore) Clear() {
	s.mu.Lock()
	s.sink.SetAuthToken("")
	s.session = models.Session{}
	s.persistLocked()
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, fn := range subs {
		fn(TokenCleared)
	}
}

// Subscribe registers a change listener and returns a function that removes it.
func (s *TokenStore) Subscribe(fn func(TokenEvent)) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *TokenStore) subscribersLocked() []func(TokenEvent) {
	subs := make([]func(TokenEvent), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func (s *TokenStore) persistLocked() {
	if s.path == "" {
		return
	}
	if err := writeState(s.path, s.session); err != nil {
		// Persistence is best-effort; the in-memory session stays authoritative
		// for the lifetime of the process.
		return
	}
}

func readState(path string) (models.Session, error) {
	if path == "" {
		return models.Session{}, os.ErrNotExist
	}
	payload, err := os.ReadFile(path)
	if err != nil {
		return models.Session{}, err
	}
	var session models.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return models.Session{}, fmt.Errorf("decode state file: %w", err)
	}
	return session, nil
}

func writeState(path string, session models.Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode state file: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o600); err != nil {
		return fmt.Errorf("write state file: %w", err)
	}
	return nil
}

package client

import "sync"

// Session holds the authenticated principal's credentials.
type Session struct {
	Token       string
	PhoneNumber string
}

// Authenticated reports whether the session carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// CredentialStore is the single holder of session state. All readers
// observe the same session; only the login and logout paths write it.
type CredentialStore struct {
	mu          sync.RWMutex
	session     Session
	subscribers []func(Session)
}

// NewCredentialStore creates an empty credential store
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{}
}

// Session returns a copy of the current session
func (s *CredentialStore) Session() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Set replaces the session and notifies subscribers
func (s *CredentialStore) Set(session Session) {
	s.mu.Lock()
	s.session = session
	subs := make([]func(Session), len(s.subscribers))
	copy(subs, s.subscribers)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(session)
	}
}

// Clear drops the session and notifies subscribers
func (s *CredentialStore) Clear() {
	s.Set(Session{})
}

// Subscribe registers a callback invoked on every session change.
// Callbacks run outside the lock.
func (s *CredentialStore) Subscribe(fn func(Session)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// internal/identity/store.go
package identity

import (
	"sync"
	"time"
)

// Credentials is the token pair issued by the identity provider.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	// ExpiresAt is the absolute access-token expiry, derived from the
	// provider's relative expires_in at issue time.
	ExpiresAt time.Time
}

// ExpiredAt reports whether the access token is expired at the given
// instant. A small skew margin avoids presenting tokens that die in flight.
func (c Credentials) ExpiredAt(now time.Time) bool {
	const skew = 10 * time.Second
	return !c.ExpiresAt.IsZero() && !now.Add(skew).Before(c.ExpiresAt)
}

// CredentialStore holds the current token pair. Injected rather than
// ambient so token lifecycle is testable without a browser-like
// persistence layer; implementations must be safe for concurrent use.
type CredentialStore interface {
	Get() (Credentials, bool)
	Set(Credentials)
	Clear()
}

// MemoryStore is the in-process CredentialStore.
type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
	set   bool
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored credentials and whether any are present.
func (s *MemoryStore) Get() (Credentials, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, s.set
}

// Set replaces the stored credentials.
func (s *MemoryStore) Set(creds Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = creds
	s.set = true
}

// Clear removes the stored credentials.
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = Credentials{}
	s.set = false
}

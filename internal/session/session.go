// Package session maps transient transport identities (browser cookies,
// reconnecting sockets) to stable, server-issued player ids. Game state is
// keyed exclusively by the stable id, so a client may reconnect under a new
// transport identity without losing its timeline or score.
package session

import (
	"sync"

	"github.com/google/uuid"
)

// Store is safe for concurrent use by every hub in the process.
type Store struct {
	mu          sync.RWMutex
	byTransient map[string]string
}

func NewStore() *Store {
	return &Store{
		byTransient: make(map[string]string),
	}
}

// Resolve looks up the stable player id for a transient identity.
func (s *Store) Resolve(transientID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byTransient[transientID]
	return id, ok
}

// Bind returns the stable player id for a transient identity, issuing a fresh
// one on first sight.
func (s *Store) Bind(transientID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byTransient[transientID]; ok {
		return id
	}
	id := uuid.NewString()
	s.byTransient[transientID] = id
	return id
}

// Alias points a new transient identity at an existing stable id, for clients
// that reconnect with a fresh transport identity but can prove the old one.
func (s *Store) Alias(newTransientID, existingTransientID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byTransient[existingTransientID]
	if !ok {
		return "", false
	}
	s.byTransient[newTransientID] = id
	return id, true
}

// Forget drops a transient identity. The stable id itself is never reused.
func (s *Store) Forget(transientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.byTransient, transientID)
}

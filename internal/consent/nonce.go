package consent

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/mr-tron/base58"
)

// NewNonce returns an unguessable one-time token used as the `state` value
// correlating an outbound consent redirect with its return.
func NewNonce() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	return base58.Encode(buf), nil
}

// NonceStore is the session-scoped holder of the pending {nonce, tenantID}
// pair. It is a single slot: a session has at most one consent flow in
// flight. Take always clears the slot, so the nonce is single use whatever
// the outcome of the return validation.
type NonceStore interface {
	Save(nonce, tenantID string) error
	Take() (nonce, tenantID string, ok bool)
}

// MemoryNonceStore is an in-memory NonceStore for the CLI driver and tests.
type MemoryNonceStore struct {
	mu       sync.Mutex
	nonce    string
	tenantID string
	set      bool
}

// NewMemoryNonceStore creates an empty in-memory nonce store.
func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{}
}

func (s *MemoryNonceStore) Save(nonce, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonce = nonce
	s.tenantID = tenantID
	s.set = true
	return nil
}

func (s *MemoryNonceStore) Take() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.set {
		return "", "", false
	}

	nonce, tenantID := s.nonce, s.tenantID
	s.nonce, s.tenantID, s.set = "", "", false
	return nonce, tenantID, true
}

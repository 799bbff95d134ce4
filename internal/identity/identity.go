// Package identity keeps the durable pseudonymous visitor id.
package identity

import (
	"context"
	"errors"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/pagetrack/internal/storage"
)

const (
	// StorageKey is the fixed key the visitor id lives under
	StorageKey = "visitorId"

	visitorPrefix  = "visitor-"
	suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	suffixLength   = 9
)

// Identity returns the visitor id for one storage scope
type Identity struct {
	mu     sync.Mutex
	store  storage.Store // may be nil
	known  string        // set once read from or written to store
	logger *zap.Logger
}

// New creates an Identity. A nil store is allowed and yields a fresh id on
// every call.
func New(store storage.Store, logger *zap.Logger) *Identity {
	return &Identity{store: store, logger: logger}
}

// GetOrCreate returns the stored visitor id, generating and persisting one
// on first use. Storage failures are not fatal: a fresh id is returned.
func (i *Identity) GetOrCreate(ctx context.Context) string {
	if i.store == nil {
		return NewVisitorID()
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if i.known != "" {
		return i.known
	}

	visitorID, err := i.store.Get(ctx, StorageKey)
	if err == nil && visitorID != "" {
		i.known = visitorID
		return visitorID
	}
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		i.logger.Debug("visitor storage unavailable", zap.Error(err))
	}

	visitorID = NewVisitorID()
	if err := i.store.Set(ctx, StorageKey, visitorID); err != nil {
		i.logger.Debug("failed to persist visitor id", zap.Error(err))
		return visitorID
	}
	i.known = visitorID
	return visitorID
}

// Known returns the visitor id once GetOrCreate has read or persisted it,
// and "" before that. It never touches the store.
func (i *Identity) Known() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.known
}

// NewVisitorID returns "visitor-" followed by nine base-36 characters
func NewVisitorID() string {
	return visitorPrefix + gonanoid.MustGenerate(suffixAlphabet, suffixLength)
}

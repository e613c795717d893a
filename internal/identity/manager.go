package identity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

// Manager resolves display names to durable identities
// FUNCTIONAL DISCOVERY: Identities are immutable once created, so a name -> identity
// cache never needs invalidation for the lifetime of the process
type Manager struct {
	store interfaces.IdentityStore
	log   logrus.FieldLogger
	cache map[string]*types.Identity // name -> Identity
	mu    sync.RWMutex
}

// NewManager creates a new identity manager
func NewManager(store interfaces.IdentityStore, log logrus.FieldLogger) *Manager {
	return &Manager{
		store: store,
		log:   log.WithField("component", "identity"),
		cache: make(map[string]*types.Identity),
	}
}

// Join returns the identity for name, creating it on first use
func (m *Manager) Join(ctx context.Context, name string) (*types.Identity, error) {
	req := types.JoinRequest{Username: name}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidName, err)
	}
	name = req.Username

	// Check in-memory cache first
	m.mu.RLock()
	if identity, ok := m.cache[name]; ok {
		m.mu.RUnlock()
		return identity, nil
	}
	m.mu.RUnlock()

	identity, err := m.store.GetIdentityByName(ctx, name)
	switch {
	case err == nil:
	case errors.Is(err, interfaces.ErrIdentityNotFound):
		identity, err = m.create(ctx, name)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("failed to look up identity: %w", err)
	}

	m.mu.Lock()
	m.cache[name] = identity
	m.mu.Unlock()
	return identity, nil
}

// create inserts a new identity
// RACE CONDITION FIX: Two concurrent joins for the same name both miss the lookup;
// the loser of the insert re-reads the winner's row instead of failing
func (m *Manager) create(ctx context.Context, name string) (*types.Identity, error) {
	identity := &types.Identity{ID: uuid.New().String(), Name: name}

	err := m.store.CreateIdentity(ctx, identity)
	if errors.Is(err, interfaces.ErrIdentityExists) {
		existing, lookupErr := m.store.GetIdentityByName(ctx, name)
		if lookupErr != nil {
			return nil, fmt.Errorf("failed to read concurrently created identity: %w", lookupErr)
		}
		return existing, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create identity: %w", err)
	}

	m.log.WithFields(logrus.Fields{"id": identity.ID, "name": name}).Info("Created identity")
	return identity, nil
}

// CacheSize returns the number of cached identities
func (m *Manager) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

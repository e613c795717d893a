//go:generate go run go.uber.org/mock/mockgen -source=database.go -destination=../../internal/mocks/mock_database.go -package=mocks
package interfaces

import (
	"context"
	"time"

	"courier/pkg/types"
)

// IdentityStore is the durable name -> id mapping
type IdentityStore interface {
	// GetIdentityByName returns ErrIdentityNotFound when the name is unknown
	GetIdentityByName(ctx context.Context, name string) (*types.Identity, error)

	// CreateIdentity returns ErrIdentityExists when the name is already taken
	CreateIdentity(ctx context.Context, identity *types.Identity) error
}

// MessageStore is the durable append-only message log
// ARCHITECTURAL DISCOVERY: Every deletion is keyed by stable ids or by an age
// predicate, so acknowledgment and the retention sweep can run concurrently
type MessageStore interface {
	// StoreMessage persists a message. The store assigns ID when empty and
	// Timestamp when zero; the caller observes both on return.
	StoreMessage(ctx context.Context, message *types.Message) error

	// GetConversation returns up to limit messages sent or received by
	// partyID, newest first
	GetConversation(ctx context.Context, partyID string, limit int) ([]*types.Message, error)

	// DeleteMessage removes one message. Deleting an unknown id returns
	// ErrMessageNotFound.
	DeleteMessage(ctx context.Context, messageID string) error

	// DeleteMessages removes every listed message in one atomic batch and
	// returns how many records existed
	DeleteMessages(ctx context.Context, messageIDs []string) (int64, error)

	// DeleteMessagesBefore removes every message with a timestamp strictly
	// before cutoff
	DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Store groups both collaborators behind one lifecycle
type Store interface {
	IdentityStore
	MessageStore

	// HealthCheck verifies the backing store is reachable
	HealthCheck(ctx context.Context) error

	// Close flushes pending writes and releases the backing store
	Close() error
}

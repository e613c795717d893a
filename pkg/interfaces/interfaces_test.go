package interfaces_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

type memoryStore struct {
	messages map[string]*types.Message
}

func (m *memoryStore) GetIdentityByName(ctx context.Context, name string) (*types.Identity, error) {
	return nil, interfaces.ErrIdentityNotFound
}
func (m *memoryStore) CreateIdentity(ctx context.Context, identity *types.Identity) error { return nil }
func (m *memoryStore) StoreMessage(ctx context.Context, message *types.Message) error {
	m.messages[message.ID] = message
	return nil
}
func (m *memoryStore) GetConversation(ctx context.Context, partyID string, limit int) ([]*types.Message, error) {
	return nil, nil
}
func (m *memoryStore) DeleteMessage(ctx context.Context, messageID string) error {
	if _, ok := m.messages[messageID]; !ok {
		return interfaces.ErrMessageNotFound
	}
	delete(m.messages, messageID)
	return nil
}
func (m *memoryStore) DeleteMessages(ctx context.Context, messageIDs []string) (int64, error) {
	var n int64
	for _, id := range messageIDs {
		if _, ok := m.messages[id]; ok {
			delete(m.messages, id)
			n++
		}
	}
	return n, nil
}
func (m *memoryStore) DeleteMessagesBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}
func (m *memoryStore) HealthCheck(ctx context.Context) error { return nil }
func (m *memoryStore) Close() error                         { return nil }

// Architectural Validation Tests - the composite Store embeds both collaborators
func TestStore_EmbedsCollaborators(t *testing.T) {
	var store interfaces.Store = &memoryStore{messages: map[string]*types.Message{}}
	var _ interfaces.IdentityStore = store
	var _ interfaces.MessageStore = store
}

// Functional Validation Tests - sentinel errors are matchable after wrapping
func TestErrors_WrapAndMatch(t *testing.T) {
	store := &memoryStore{messages: map[string]*types.Message{}}
	err := store.DeleteMessage(context.Background(), "missing")
	wrapped := errors.Join(errors.New("handler"), err)
	if !errors.Is(wrapped, interfaces.ErrMessageNotFound) {
		t.Errorf("expected ErrMessageNotFound, got %v", err)
	}

	_, err = store.GetIdentityByName(context.Background(), "nobody")
	if !errors.Is(err, interfaces.ErrIdentityNotFound) {
		t.Errorf("expected ErrIdentityNotFound, got %v", err)
	}
}

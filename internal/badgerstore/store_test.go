package badgerstore

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courier/pkg/interfaces"
	"courier/pkg/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	logger, _ := logtest.NewNullLogger()

	store, err := Open(t.TempDir(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func storeAt(t *testing.T, s *Store, sender, receiver, body string, at time.Time) *types.Message {
	t.Helper()
	msg := &types.Message{SenderID: sender, ReceiverID: receiver, Body: body, Timestamp: at}
	require.NoError(t, s.StoreMessage(context.Background(), msg))
	return msg
}

func TestStore_IdentityLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetIdentityByName(ctx, "alice")
	assert.ErrorIs(t, err, interfaces.ErrIdentityNotFound)

	identity := &types.Identity{ID: "id-alice", Name: "alice"}
	require.NoError(t, store.CreateIdentity(ctx, identity))

	found, err := store.GetIdentityByName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "id-alice", found.ID)
	assert.True(t, found.CreatedAt.Equal(identity.CreatedAt))

	err = store.CreateIdentity(ctx, &types.Identity{ID: "id-other", Name: "alice"})
	assert.ErrorIs(t, err, interfaces.ErrIdentityExists)
}

func TestStore_StoreMessageAssignsIDAndTimestamp(t *testing.T) {
	store := setupTestStore(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	msg := &types.Message{SenderID: "1", ReceiverID: "2", Body: "hi"}
	require.NoError(t, store.StoreMessage(context.Background(), msg))
	assert.NotEmpty(t, msg.ID)

	for _, party := range []string{"1", "2"} {
		history, err := store.GetConversation(context.Background(), party, 50)
		require.NoError(t, err)
		require.Len(t, history, 1)
		assert.Equal(t, msg.ID, history[0].ID)
		assert.True(t, history[0].Timestamp.Equal(fixed))
	}
}

func TestStore_GetConversationNewestFirstWithLimit(t *testing.T) {
	store := setupTestStore(t)
	base := time.Now().Add(-time.Hour).UTC()

	for i := 0; i < 5; i++ {
		storeAt(t, store, "1", "2", fmt.Sprintf("m%d", i), base.Add(time.Duration(i)*time.Minute))
	}
	storeAt(t, store, "2", "3", "reply", base.Add(10*time.Minute))
	storeAt(t, store, "3", "4", "unrelated", base.Add(20*time.Minute))

	history, err := store.GetConversation(context.Background(), "2", 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "reply", history[0].Body)
	assert.Equal(t, "m4", history[1].Body)
	assert.Equal(t, "m3", history[2].Body)

	empty, err := store.GetConversation(context.Background(), "nobody", 50)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestStore_PartyIDsDoNotAlias(t *testing.T) {
	store := setupTestStore(t)
	storeAt(t, store, "a", "b", "one", time.Now())
	storeAt(t, store, "a:b", "c", "two", time.Now())

	history, err := store.GetConversation(context.Background(), "a", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "one", history[0].Body)
}

func TestStore_SelfMessageIndexedOnce(t *testing.T) {
	store := setupTestStore(t)
	msg := storeAt(t, store, "1", "1", "note to self", time.Now())

	history, err := store.GetConversation(context.Background(), "1", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, store.DeleteMessage(context.Background(), msg.ID))
	history, err = store.GetConversation(context.Background(), "1", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_DeleteMessage(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	msg := storeAt(t, store, "1", "2", "hi", time.Now())

	require.NoError(t, store.DeleteMessage(ctx, msg.ID))
	assert.ErrorIs(t, store.DeleteMessage(ctx, msg.ID), interfaces.ErrMessageNotFound)

	history, err := store.GetConversation(ctx, "2", 50)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestStore_DeleteMessagesRemovesExactlyThoseRecords(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	a := storeAt(t, store, "1", "2", "a", now)
	b := storeAt(t, store, "1", "2", "b", now.Add(time.Second))
	c := storeAt(t, store, "1", "2", "c", now.Add(2*time.Second))

	deleted, err := store.DeleteMessages(ctx, []string{a.ID, c.ID, a.ID, "unknown", ""})
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	remaining, err := store.GetConversation(ctx, "1", 50)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, b.ID, remaining[0].ID)

	deleted, err = store.DeleteMessages(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStore_DeleteMessagesBeforeBoundary(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	now := time.Now()

	storeAt(t, store, "1", "2", "old", now.Add(-25*time.Hour))
	fresh := storeAt(t, store, "1", "2", "fresh", now.Add(-23*time.Hour))

	deleted, err := store.DeleteMessagesBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	history, err := store.GetConversation(ctx, "2", 50)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, fresh.ID, history[0].ID)

	deleted, err = store.DeleteMessagesBefore(ctx, now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestStore_DeleteMessagesBeforeSpansBatches(t *testing.T) {
	store := setupTestStore(t)
	old := time.Now().Add(-48 * time.Hour)

	for i := 0; i < sweepBatch+50; i++ {
		storeAt(t, store, "1", "2", "bulk", old.Add(time.Duration(i)*time.Millisecond))
	}

	deleted, err := store.DeleteMessagesBefore(context.Background(), time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(sweepBatch+50), deleted)
}

func TestStore_ConcurrentWrites(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &types.Message{SenderID: "1", ReceiverID: "2", Body: fmt.Sprintf("m%d", i)}
			assert.NoError(t, store.StoreMessage(ctx, msg))
		}(i)
	}
	wg.Wait()

	history, err := store.GetConversation(ctx, "1", 100)
	require.NoError(t, err)
	assert.Len(t, history, 20)
}

func TestStore_HealthCheckAndClose(t *testing.T) {
	store := setupTestStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.HealthCheck(context.Background()), interfaces.ErrStoreClosed)
	err := store.StoreMessage(context.Background(), &types.Message{SenderID: "1", ReceiverID: "2", Body: "late"})
	assert.ErrorIs(t, err, interfaces.ErrStoreClosed)
}

func TestKeys_ParseAgeKey(t *testing.T) {
	r := messageRecord{ID: "abc", Timestamp: 42}
	nanos, id, ok := parseAgeKey(ageKey(r))
	require.True(t, ok)
	assert.Equal(t, int64(42), nanos)
	assert.Equal(t, "abc", id)

	_, _, ok = parseAgeKey([]byte("ts:garbage"))
	assert.False(t, ok)

	assert.Equal(t, "abc", idFromIndexKey(partyKey("x", r)))
}

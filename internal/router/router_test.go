package router

import (
	"context"
	"errors"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"courier/internal/mocks"
	"courier/internal/presence"
	"courier/pkg/types"
)

type routerFixture struct {
	router    *Router
	directory *presence.Directory
	store     *mocks.MockMessageStore
	hook      *logtest.Hook
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	logger, hook := logtest.NewNullLogger()

	directory := presence.NewDirectory(nil, logger)
	store := mocks.NewMockMessageStore(ctrl)

	return &routerFixture{
		router:    NewRouter(directory, store, logger),
		directory: directory,
		store:     store,
		hook:      hook,
	}
}

// persistWithID mimics a store assigning id and timestamp
func persistWithID(id string, at time.Time) func(context.Context, *types.Message) error {
	return func(_ context.Context, m *types.Message) error {
		m.ID = id
		m.Timestamp = at
		return nil
	}
}

func TestRouter_DeliversToOnlineReceiverOnly(t *testing.T) {
	f := newRouterFixture(t)
	ctrl := gomock.NewController(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	sender := mocks.NewMockConnection(ctrl)
	sender.EXPECT().ID().Return("conn-a").AnyTimes()
	receiver := mocks.NewMockConnection(ctrl)
	receiver.EXPECT().ID().Return("conn-b").AnyTimes()

	f.directory.Register("A", "alice", sender)
	f.directory.Register("B", "bob", receiver)

	f.store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).DoAndReturn(persistWithID("m1", at)).Times(1)

	want := &types.Message{ID: "m1", SenderID: "A", ReceiverID: "B", Body: "hi", Timestamp: at}
	receiver.EXPECT().WriteJSON(types.Outbound{Event: types.EventReceiveMessage, Data: want}).Return(nil).Times(1)
	// sender never receives an echo: no WriteJSON expectation on it

	msg, err := f.router.Send(context.Background(), types.SendMessagePayload{SenderID: "A", ReceiverID: "B", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, want, msg)
}

func TestRouter_OfflineReceiverIsPersistedOnly(t *testing.T) {
	f := newRouterFixture(t)

	f.store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).DoAndReturn(persistWithID("m1", time.Now())).Times(1)

	msg, err := f.router.Send(context.Background(), types.SendMessagePayload{SenderID: "A", ReceiverID: "B", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
}

func TestRouter_PersistFailureAbandonsDelivery(t *testing.T) {
	f := newRouterFixture(t)
	ctrl := gomock.NewController(t)

	receiver := mocks.NewMockConnection(ctrl)
	receiver.EXPECT().ID().Return("conn-b").AnyTimes()
	f.directory.Register("B", "bob", receiver)

	f.store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).Return(errors.New("disk full")).Times(1)

	msg, err := f.router.Send(context.Background(), types.SendMessagePayload{SenderID: "A", ReceiverID: "B", Body: "hi"})
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrPersistFailed)
	require.NotNil(t, f.hook.LastEntry())
	assert.Equal(t, "Failed to persist message, not delivering", f.hook.LastEntry().Message)
}

func TestRouter_InvalidPayloadIsNotPersisted(t *testing.T) {
	tests := []struct {
		name    string
		payload types.SendMessagePayload
	}{
		{"missing sender", types.SendMessagePayload{ReceiverID: "B", Body: "hi"}},
		{"missing receiver", types.SendMessagePayload{SenderID: "A", Body: "hi"}},
		{"empty body", types.SendMessagePayload{SenderID: "A", ReceiverID: "B"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRouterFixture(t)
			// no StoreMessage expectation: any call fails the test
			_, err := f.router.Send(context.Background(), tt.payload)
			assert.ErrorIs(t, err, ErrInvalidPayload)
			assert.ErrorIs(t, err, types.ErrInvalidMessage)
		})
	}
}

func TestRouter_ReceiverWriteFailureIsLogged(t *testing.T) {
	f := newRouterFixture(t)
	ctrl := gomock.NewController(t)

	receiver := mocks.NewMockConnection(ctrl)
	receiver.EXPECT().ID().Return("conn-b").AnyTimes()
	receiver.EXPECT().WriteJSON(gomock.Any()).Return(errors.New("connection closed"))
	f.directory.Register("B", "bob", receiver)

	f.store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).DoAndReturn(persistWithID("m1", time.Now()))

	msg, err := f.router.Send(context.Background(), types.SendMessagePayload{SenderID: "A", ReceiverID: "B", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Failed to deliver message", f.hook.LastEntry().Message)
}

func TestRouter_ReceiverDisconnectedBeforeDelivery(t *testing.T) {
	f := newRouterFixture(t)
	ctrl := gomock.NewController(t)

	receiver := mocks.NewMockConnection(ctrl)
	receiver.EXPECT().ID().Return("conn-b").AnyTimes()
	f.directory.Register("B", "bob", receiver)

	f.store.EXPECT().StoreMessage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, m *types.Message) error {
			// receiver leaves while the record is being written
			f.directory.RemoveByTransport(receiver)
			m.ID = "m1"
			return nil
		})

	_, err := f.router.Send(context.Background(), types.SendMessagePayload{SenderID: "A", ReceiverID: "B", Body: "hi"})
	assert.NoError(t, err)
}

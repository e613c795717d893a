package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"courier/internal/identity"
	"courier/internal/mocks"
	"courier/internal/presence"
	"courier/pkg/interfaces"
	"courier/pkg/types"
)

type idConn string

func (c idConn) WriteJSON(any) error { return nil }
func (c idConn) Close() error        { return nil }
func (c idConn) ID() string          { return string(c) }

type fakeIdentities struct {
	identity *types.Identity
	err      error
	names    []string
}

func (f *fakeIdentities) Join(_ context.Context, name string) (*types.Identity, error) {
	f.names = append(f.names, name)
	return f.identity, f.err
}

type serverFixture struct {
	server     *Server
	store      *mocks.MockStore
	directory  *presence.Directory
	identities *fakeIdentities
	logs       *logtest.Hook
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	logger, hook := logtest.NewNullLogger()
	ctrl := gomock.NewController(t)

	f := &serverFixture{
		store:      mocks.NewMockStore(ctrl),
		directory:  presence.NewDirectory(nil, logger),
		identities: &fakeIdentities{},
		logs:       hook,
	}
	f.server = NewServer(f.identities, f.directory, f.store, nil, 0, logger)
	return f
}

func (f *serverFixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.server.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestServer_Root(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/unknown", "").Code)
}

func TestServer_Preflight(t *testing.T) {
	f := newServerFixture(t)

	w := f.do(http.MethodOptions, "/join", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestServer_OnlineUsersSearch(t *testing.T) {
	f := newServerFixture(t)
	f.directory.Register("1", "alice", idConn("c1"))
	f.directory.Register("2", "bob", idConn("c2"))
	f.directory.Register("3", "alex", idConn("c3"))

	w := f.do(http.MethodGet, "/online-users?search=al", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	page := decodeBody[types.DirectoryPage](t, w)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, []types.Session{{ID: "1", Name: "alice"}, {ID: "3", Name: "alex"}}, page.Users)
}

func TestServer_OnlineUsersPagination(t *testing.T) {
	f := newServerFixture(t)
	f.directory.Register("1", "alice", idConn("c1"))
	f.directory.Register("2", "bob", idConn("c2"))
	f.directory.Register("3", "alex", idConn("c3"))

	page := decodeBody[types.DirectoryPage](t, f.do(http.MethodGet, "/online-users?skip=1&take=1", ""))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, []types.Session{{ID: "2", Name: "bob"}}, page.Users)

	// Garbage values fall back to the defaults
	page = decodeBody[types.DirectoryPage](t, f.do(http.MethodGet, "/online-users?skip=x&take=y", ""))
	assert.Len(t, page.Users, 3)
}

func TestServer_Join(t *testing.T) {
	f := newServerFixture(t)
	f.identities.identity = &types.Identity{ID: "id-1", Name: "alice"}

	w := f.do(http.MethodPost, "/join", `{"username":"alice"}`)
	require.Equal(t, http.StatusOK, w.Code)

	got := decodeBody[types.Identity](t, w)
	assert.Equal(t, "id-1", got.ID)
	assert.Equal(t, "alice", got.Name)
	assert.Equal(t, []string{"alice"}, f.identities.names)
}

func TestServer_JoinErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		err     error
		code    int
		message string
	}{
		{"malformed body", `{`, nil, http.StatusBadRequest, ErrInvalidJSON.Error()},
		{"blank username", `{"username":"  "}`, identity.ErrInvalidName, http.StatusBadRequest, ErrUsernameRequired.Error()},
		{"store failure", `{"username":"alice"}`, errors.New("disk on fire"), http.StatusInternalServerError, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t)
			f.identities.err = tt.err

			w := f.do(http.MethodPost, "/join", tt.body)
			assert.Equal(t, tt.code, w.Code)

			body := decodeBody[ErrorResponse](t, w)
			assert.Equal(t, tt.message, body.Error)
			assert.NotContains(t, w.Body.String(), "disk on fire")
		})
	}
}

func TestServer_History(t *testing.T) {
	f := newServerFixture(t)
	stamp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.store.EXPECT().GetConversation(gomock.Any(), "id-1", DefaultHistoryLimit).Return([]*types.Message{
		{ID: "m2", SenderID: "id-2", ReceiverID: "id-1", Body: "yo", Timestamp: stamp},
		{ID: "m1", SenderID: "id-1", ReceiverID: "id-2", Body: "hi", Timestamp: stamp.Add(-time.Minute)},
	}, nil)

	w := f.do(http.MethodGet, "/messages/id-1", "")
	require.Equal(t, http.StatusOK, w.Code)

	messages := decodeBody[[]types.Message](t, w)
	require.Len(t, messages, 2)
	assert.Equal(t, "m2", messages[0].ID)
	assert.Equal(t, "id-2", messages[0].SenderID)
}

func TestServer_HistoryEmptyIsArray(t *testing.T) {
	f := newServerFixture(t)
	f.store.EXPECT().GetConversation(gomock.Any(), "nobody", gomock.Any()).Return([]*types.Message{}, nil)

	w := f.do(http.MethodGet, "/messages/nobody", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestServer_HistoryFailureIsGeneric(t *testing.T) {
	f := newServerFixture(t)
	f.store.EXPECT().GetConversation(gomock.Any(), "id-1", gomock.Any()).Return(nil, errors.New("table missing"))

	w := f.do(http.MethodGet, "/messages/id-1", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal Server Error"}`, w.Body.String())
	require.NotNil(t, f.logs.LastEntry())
	assert.Equal(t, "Request failed", f.logs.LastEntry().Message)
}

func TestServer_DeleteMessage(t *testing.T) {
	f := newServerFixture(t)
	f.store.EXPECT().DeleteMessage(gomock.Any(), "m1").Return(nil)
	f.store.EXPECT().DeleteMessage(gomock.Any(), "gone").Return(interfaces.ErrMessageNotFound)
	f.store.EXPECT().DeleteMessage(gomock.Any(), "broken").Return(errors.New("locked"))

	for _, id := range []string{"m1", "gone"} {
		w := f.do(http.MethodDelete, "/messages/"+id, "")
		require.Equal(t, http.StatusOK, w.Code)
		body := decodeBody[DeleteResponse](t, w)
		assert.True(t, body.Success)
		assert.NotEmpty(t, body.Message)
	}

	w := f.do(http.MethodDelete, "/messages/broken", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_Health(t *testing.T) {
	f := newServerFixture(t)
	f.directory.Register("1", "alice", idConn("c1"))

	f.store.EXPECT().HealthCheck(gomock.Any()).Return(nil)
	w := f.do(http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	health := decodeBody[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, 1, health.OnlineUsers)

	f.store.EXPECT().HealthCheck(gomock.Any()).Return(interfaces.ErrStoreClosed)
	w = f.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decodeBody[HealthResponse](t, w).Status)
}

func TestServer_WebsocketRoute(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	ctrl := gomock.NewController(t)

	called := false
	ws := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusSwitchingProtocols)
	})
	server := NewServer(&fakeIdentities{}, presence.NewDirectory(nil, logger), mocks.NewMockStore(ctrl), ws, 10, logger)

	w := httptest.NewRecorder()
	server.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.True(t, called)
	assert.Equal(t, 10, server.historyLimit)
}

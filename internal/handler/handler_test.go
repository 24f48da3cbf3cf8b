package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notes-sync-server/internal/domain"
	"notes-sync-server/internal/repository"
	"notes-sync-server/internal/repository/mocks"
	"notes-sync-server/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const (
	testUser     = "admin"
	testPassword = "changeme-please"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	token  string
	logger *slog.Logger
}

func newTestServer(t *testing.T, store repository.RecordStore) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth, err := service.NewAuthService(testUser, testPassword, "handler-test-secret", time.Hour, 24*time.Hour)
	require.NoError(t, err)

	locks := service.NewKeyedMutex()
	syncSvc := service.NewSyncService(store, locks, nil, logger)
	noteSvc := service.NewNoteService(store, locks, nil, logger)

	router := NewRouter(Handlers{
		Auth:  NewAuthHandler(auth, logger),
		Notes: NewNoteHandler(noteSvc, logger),
		Sync:  NewSyncHandler(syncSvc, logger),
	}, auth, CORSOptions{AllowedOrigins: "*", AllowedMethods: "GET,POST,PUT,DELETE,OPTIONS", AllowedHeaders: "Content-Type,Authorization"}, logger)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	ts := &testServer{t: t, srv: srv, logger: logger}
	var login domain.LoginResponse
	status := ts.do(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: testUser, Password: testPassword}, &login)
	require.Equal(t, http.StatusOK, status)
	ts.token = login.AccessToken
	return ts
}

// do sends body as JSON and decodes the envelope's data into out.
func (ts *testServer) do(method, path string, body interface{}, out interface{}) int {
	ts.t.Helper()
	status, _ := ts.doRaw(method, path, body, out)
	return status
}

func (ts *testServer) doRaw(method, path string, body interface{}, out interface{}) (int, envelope) {
	ts.t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, ts.srv.URL+path, reader)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if ts.token != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&env))
	if out != nil && len(env.Data) > 0 {
		require.NoError(ts.t, json.Unmarshal(env.Data, out))
	}
	return resp.StatusCode, env
}

func TestAuthRoutes(t *testing.T) {
	ts := newTestServer(t, repository.NewMemoryStore())

	status, env := ts.doRaw(http.MethodPost, "/api/v1/auth/login", domain.LoginRequest{Username: testUser, Password: "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.False(t, env.Success)

	status, _ = ts.doRaw(http.MethodPost, "/api/v1/auth/login", `{"username":""}`, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	ts.token = ""
	status, _ = ts.doRaw(http.MethodGet, "/api/v1/sync/notes", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestSyncRoutes_PushAndPull(t *testing.T) {
	ts := newTestServer(t, repository.NewMemoryStore())
	hashA := domain.HashContent("A")

	var push domain.PushResponse
	status := ts.do(http.MethodPost, "/api/v1/sync/push",
		`{"changes":[{"id":"n1","content":"A","originalHash":"","title":"Groceries","tags":["home"]}]}`, &push)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, push.Results, 1)
	assert.Equal(t, domain.PushStatusUpdated, push.Results[0].Status)
	assert.Equal(t, hashA, push.Results[0].Hash)
	require.NotNil(t, push.Results[0].UpdatedAt)
	cursor := push.Results[0].UpdatedAt.Format(time.RFC3339Nano)

	status = ts.do(http.MethodPost, "/api/v1/sync/push",
		`{"changes":[{"id":"n1","content":"B","originalHash":"`+hashA+`"},{"id":"n1","content":"C","originalHash":"`+hashA+`"}]}`, &push)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, push.Results, 2)
	assert.Equal(t, domain.PushStatusUpdated, push.Results[0].Status)
	assert.Equal(t, domain.PushStatusConflict, push.Results[1].Status)
	assert.Equal(t, "Server version has changed", push.Results[1].Message)

	var notes []domain.SyncNote
	status = ts.do(http.MethodGet, "/api/v1/sync/notes?since="+cursor, nil, &notes)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, notes, 1)
	assert.Equal(t, "B", notes[0].Content)
	assert.Equal(t, "Groceries", notes[0].Title)
	assert.Equal(t, []string{"home"}, notes[0].Tags)

	notes = nil
	status = ts.do(http.MethodGet, "/api/v1/sync/notes", nil, &notes)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, notes, 1)
}

func TestSyncRoutes_BadInput(t *testing.T) {
	ts := newTestServer(t, repository.NewMemoryStore())

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"malformed cursor", http.MethodGet, "/api/v1/sync/notes?since=yesterday", nil},
		{"malformed json", http.MethodPost, "/api/v1/sync/push", `{"changes":`},
		{"missing changes", http.MethodPost, "/api/v1/sync/push", `{}`},
		{"change without id", http.MethodPost, "/api/v1/sync/push", `{"changes":[{"content":"x"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := ts.doRaw(tt.method, tt.path, tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.False(t, env.Success)
			assert.NotEmpty(t, env.Error)
		})
	}

	var push domain.PushResponse
	status := ts.do(http.MethodPost, "/api/v1/sync/push", `{"changes":[]}`, &push)
	assert.Equal(t, http.StatusOK, status)
	assert.Empty(t, push.Results)
}

func TestNoteRoutes(t *testing.T) {
	ts := newTestServer(t, repository.NewMemoryStore())

	var created domain.NoteResponse
	status := ts.do(http.MethodPost, "/api/v1/notes", domain.CreateNoteRequest{Title: "Plan", Content: "step 1", Tags: []string{"work"}}, &created)
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, created.ID)

	var got domain.NoteResponse
	status = ts.do(http.MethodGet, "/api/v1/notes/"+created.ID, nil, &got)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "step 1", got.Content)

	var updated domain.NoteResponse
	status = ts.do(http.MethodPut, "/api/v1/notes/"+created.ID, `{"content":"step 2"}`, &updated)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Plan", updated.Title)
	assert.Equal(t, domain.HashContent("step 2"), updated.Hash)

	status, env := ts.doRaw(http.MethodPut, "/api/v1/notes/"+created.ID, `{"content":"step 3","expectedHash":"stale"}`, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, string(env.Data), updated.Hash)

	var list []domain.NoteResponse
	status = ts.do(http.MethodGet, "/api/v1/notes", nil, &list)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, list, 1)

	status = ts.do(http.MethodDelete, "/api/v1/notes/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status = ts.do(http.MethodGet, "/api/v1/notes/"+created.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	status = ts.do(http.MethodDelete, "/api/v1/notes/does-not-exist", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	list = nil
	status = ts.do(http.MethodGet, "/api/v1/notes", nil, &list)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, list)

	// The tombstone is still visible to sync.
	var notes []domain.SyncNote
	status = ts.do(http.MethodGet, "/api/v1/sync/notes", nil, &notes)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, notes, 1)
	assert.True(t, notes[0].Deleted)
	assert.Empty(t, notes[0].Content)
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockRecordStore(ctrl)
	store.EXPECT().List(gomock.Any()).Return(nil, &repository.StoreError{Op: "list", Err: errors.New("connection refused")}).AnyTimes()

	ts := newTestServer(t, store)

	status, env := ts.doRaw(http.MethodGet, "/api/v1/sync/notes", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.False(t, env.Success)

	status, _ = ts.doRaw(http.MethodGet, "/api/v1/notes", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, status)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, repository.NewMemoryStore())

	var body map[string]string
	status := ts.do(http.MethodGet, "/health", nil, &body)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
}

func TestWriteError_Default(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, slog.New(slog.NewTextHandler(io.Discard, nil)), context.DeadlineExceeded)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

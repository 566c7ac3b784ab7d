package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nbarki/shipdesk/pkg/archive"
	"github.com/nbarki/shipdesk/pkg/persona"
	"github.com/nbarki/shipdesk/pkg/provider"
	"github.com/nbarki/shipdesk/pkg/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply    string
	err      error
	requests []provider.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req provider.Request) (*provider.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Response{Content: f.reply}, nil
}

func (f *fakeCompleter) Name() string { return "fake" }

type fakeArchiver struct {
	records []archive.Record
	err     error
}

func (f *fakeArchiver) Archive(_ context.Context, rec archive.Record) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeArchiver) Close() error { return nil }

func newTestServer(t *testing.T, completer provider.Completer, archiver archive.Archiver) *Server {
	t.Helper()

	srv, err := NewServer(Config{
		Port:      3000,
		Store:     store.New(persona.DefaultFacts, zerolog.Nop()),
		Engine:    &persona.Engine{Model: "gpt-4o-mini", Temperature: 0.85, MaxTokens: 200},
		Completer: completer,
		Archiver:  archiver,
		Logger:    zerolog.Nop(),
	})
	require.NoError(t, err)
	return srv
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	buf, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{Port: 3000})
	assert.Error(t, err)

	_, err = NewServer(Config{
		Port:      0,
		Store:     store.New(nil, zerolog.Nop()),
		Engine:    &persona.Engine{},
		Completer: &fakeCompleter{},
		Archiver:  &fakeArchiver{},
	})
	assert.Error(t, err)
}

func TestChatTurnAdvancesCounter(t *testing.T) {
	completer := &fakeCompleter{reply: "I will look into that for you."}
	srv := newTestServer(t, completer, &fakeArchiver{})
	handler := srv.Handler()

	for want := 1; want <= 3; want++ {
		rec := postJSON(t, handler, "/chat", chatRequest{Message: "where is my package", SessionID: "sess-1"})
		require.Equal(t, http.StatusOK, rec.Code)

		var resp chatResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, want, resp.Turn)
		assert.Equal(t, "I will look into that for you.", resp.Reply)
	}

	require.Len(t, completer.requests, 3)
	// Third request carries the two previous exchanges plus the new message.
	assert.Len(t, completer.requests[2].Messages, 6)
}

func TestChatIsolatesSessions(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})
	handler := srv.Handler()

	postJSON(t, handler, "/chat", chatRequest{Message: "hi", SessionID: "a"})
	rec := postJSON(t, handler, "/chat", chatRequest{Message: "hi", SessionID: "b"})

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Turn)
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/chat", chatRequest{Message: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, handler, "/chat", chatRequest{SessionID: "sess-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/chat", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestChatProviderFailureRecordsNothing(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("upstream unavailable")}
	srv := newTestServer(t, completer, &fakeArchiver{})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/chat", chatRequest{Message: "hello", SessionID: "sess-1"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, fallbackReply, resp.Reply)

	// The failed call must not burn a turn.
	completer.err = nil
	completer.reply = "recovered"
	rec = postJSON(t, handler, "/chat", chatRequest{Message: "hello again", SessionID: "sess-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Turn)
}

func TestEndChatArchivesAndRemoves(t *testing.T) {
	archiver := &fakeArchiver{}
	srv := newTestServer(t, &fakeCompleter{reply: "sure"}, archiver)
	handler := srv.Handler()

	postJSON(t, handler, "/chat", chatRequest{Message: "first", SessionID: "sess-1"})
	postJSON(t, handler, "/chat", chatRequest{Message: "second", SessionID: "sess-1"})

	rec := postJSON(t, handler, "/end-chat", map[string]string{"sessionId": "sess-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, archiver.records, 1)
	got := archiver.records[0]
	assert.Equal(t, "sess-1", got.SessionID)
	assert.Equal(t, 2, got.TurnCount)
	require.Len(t, got.Transcript, 2)
	assert.Equal(t, "first", got.Transcript[0].User)
	assert.Equal(t, "sure", got.Transcript[0].Assistant)
	require.NotNil(t, got.Facts)
	assert.NotEmpty(t, got.Facts.FinalLocation)

	// Session is gone, so a new chat starts over at turn one.
	chatRec := postJSON(t, handler, "/chat", chatRequest{Message: "again", SessionID: "sess-1"})
	var resp chatResponse
	require.NoError(t, json.Unmarshal(chatRec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Turn)
}

func TestEndChatUnknownSessionArchivesEmpty(t *testing.T) {
	archiver := &fakeArchiver{}
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, archiver)
	handler := srv.Handler()

	rec := postJSON(t, handler, "/end-chat", map[string]string{"sessionId": "ghost"})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, archiver.records, 1)
	assert.Equal(t, "ghost", archiver.records[0].SessionID)
	assert.Empty(t, archiver.records[0].Transcript)
	assert.Zero(t, archiver.records[0].TurnCount)
}

func TestEndChatArchiveFailureRetainsSession(t *testing.T) {
	archiver := &fakeArchiver{err: errors.New("disk full")}
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, archiver)
	handler := srv.Handler()

	postJSON(t, handler, "/chat", chatRequest{Message: "hi", SessionID: "sess-1"})

	rec := postJSON(t, handler, "/end-chat", map[string]string{"sessionId": "sess-1"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	// Session survives a failed archive: the next turn continues the count.
	archiver.err = nil
	chatRec := postJSON(t, handler, "/chat", chatRequest{Message: "still here", SessionID: "sess-1"})
	var resp chatResponse
	require.NoError(t, json.Unmarshal(chatRec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Turn)
}

func TestEndChatValidation(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})
	handler := srv.Handler()

	rec := postJSON(t, handler, "/end-chat", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})

	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})

	rec := postJSON(t, srv.Handler(), "/chat", chatRequest{Message: "hi", SessionID: "s"})
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestShutdownRejectsNewRequests(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})
	handler := srv.Handler()

	srv.shutdownMu.Lock()
	srv.isShuttingDown = true
	srv.shutdownMu.Unlock()

	rec := postJSON(t, handler, "/chat", chatRequest{Message: "hi", SessionID: "s"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = postJSON(t, handler, "/end-chat", map[string]string{"sessionId": "s"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBeginRequestDuringDrain(t *testing.T) {
	srv := newTestServer(t, &fakeCompleter{reply: "ok"}, &fakeArchiver{})

	require.True(t, srv.beginRequest())
	srv.inFlightReqs.Done()

	// Once the drain flag is up nothing may join the in-flight group, so
	// Stop's wait can never race a late registration.
	srv.shutdownMu.Lock()
	srv.isShuttingDown = true
	srv.shutdownMu.Unlock()

	assert.False(t, srv.beginRequest())
}

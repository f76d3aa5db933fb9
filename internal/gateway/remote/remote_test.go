package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zecrypt/zecrypt-go/internal/common"
	"github.com/zecrypt/zecrypt-go/internal/fieldcipher"
	"github.com/zecrypt/zecrypt-go/internal/logging"
	"github.com/zecrypt/zecrypt-go/internal/records"
)

type fakeSessions struct {
	token   string
	ws      string
	cleared bool
}

func (f *fakeSessions) Token(ctx context.Context) (string, error) {
	if f.token == "" {
		return "", common.ErrNotFound
	}
	return f.token, nil
}

func (f *fakeSessions) WorkspaceID(ctx context.Context) (string, error) { return f.ws, nil }

func (f *fakeSessions) ClientID(ctx context.Context) (string, error) { return "client-test", nil }

func (f *fakeSessions) Clear(ctx context.Context) error {
	f.cleared = true
	f.token = ""
	return nil
}

type staticKeys struct{ key string }

func (s staticKeys) GetProjectKey(ctx context.Context, project string) (string, error) {
	if s.key == "" {
		return "", common.ErrMissingKey
	}
	return s.key, nil
}

func TestGateway_List(t *testing.T) {
	key := fieldcipher.GenerateKey()
	enc, err := fieldcipher.Encrypt(`{"username":"octo","password":"hunter2"}`, key)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/ws_1/proj_1/accounts", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get(common.AccessTokenHeaderName))
		assert.Equal(t, "client-test", r.Header.Get(common.ClientIDHeaderName))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"doc_id": "account_1", "project_id": "proj_1", "title": "GitHub", "data": enc},
			},
		})
	}))
	defer srv.Close()

	sessions := &fakeSessions{token: "tok-1", ws: "ws_1"}
	g := New(srv.URL, sessions, staticKeys{key: key}, logging.NewDiscardLogger())

	res := g.List(context.Background(), records.KindAccount, "proj_1")
	require.True(t, res.Success, "list failed: %v", res.Err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "account_1", res.Records[0].DocID)
	assert.Equal(t, "hunter2", res.Records[0].Payload.(*records.AccountPayload).Password)
}

func TestGateway_CreateEchoesStoredRecord(t *testing.T) {
	key := fieldcipher.GenerateKey()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ws_1/proj_1/notes", r.URL.Path)

		var body records.WireRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.True(t, fieldcipher.IsEncrypted(body.Data), "payload must not leave in the clear")
		assert.Equal(t, "release checklist", body.LowerTitle)

		body.DocID = "note_42"
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"data": body})
	}))
	defer srv.Close()

	g := New(srv.URL, &fakeSessions{token: "tok-1", ws: "ws_1"}, staticKeys{key: key}, logging.NewDiscardLogger())

	rec := &records.Record{
		Envelope: records.Envelope{ProjectID: "proj_1", Title: "Release Checklist"},
		Payload:  &records.NotePayload{Text: "cut the tag first"},
	}
	res := g.Create(context.Background(), records.KindNote, rec)
	require.True(t, res.Success, "create failed: %v", res.Err)
	assert.Equal(t, "note_42", res.First().DocID)
	assert.Equal(t, "cut the tag first", res.First().Payload.(*records.NotePayload).Text)
}

func TestGateway_UpdateFallsBackToSubmitted(t *testing.T) {
	key := fieldcipher.GenerateKey()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/ws_1/proj_1/accounts/account_7", r.URL.Path)
		// Body without a data envelope, as some deployments answer.
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	g := New(srv.URL, &fakeSessions{token: "tok-1", ws: "ws_1"}, staticKeys{key: key}, logging.NewDiscardLogger())

	rec := &records.Record{
		Envelope: records.Envelope{ProjectID: "proj_1", Title: "GitHub"},
		Payload:  &records.AccountPayload{Username: "octo", Password: "rotated"},
	}
	res := g.Update(context.Background(), records.KindAccount, "account_7", rec)
	require.True(t, res.Success, "update failed: %v", res.Err)
	assert.Equal(t, "account_7", res.First().DocID)
	assert.Equal(t, "rotated", res.First().Payload.(*records.AccountPayload).Password)
}

// warnCounter counts Warn calls and discards everything else.
type warnCounter struct {
	logging.Logger
	warns int
}

func newWarnCounter() *warnCounter {
	return &warnCounter{Logger: logging.NewDiscardLogger()}
}

func (w *warnCounter) Warn(ctx context.Context, msg string, args ...any) {
	w.warns++
}

func TestGateway_PlaintextUpdateIsWarned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	log := newWarnCounter()
	g := New(srv.URL, &fakeSessions{token: "tok-1", ws: "ws_1"}, staticKeys{}, log)

	rec := &records.Record{
		Envelope: records.Envelope{ProjectID: "proj_1", Title: "Note"},
		Payload:  &records.NotePayload{Text: "draft"},
	}
	res := g.Update(context.Background(), records.KindNote, "note_1", rec)
	require.True(t, res.Success, "update failed: %v", res.Err)
	assert.Equal(t, 1, log.warns)
}

func TestGateway_Delete(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := New(srv.URL, &fakeSessions{token: "tok-1", ws: "ws_1"}, staticKeys{}, logging.NewDiscardLogger())

	res := g.Delete(context.Background(), records.KindCard, "proj_1", "card_3")
	require.True(t, res.Success, "delete failed: %v", res.Err)
	assert.Equal(t, "/ws_1/proj_1/cards/card_3", gotPath)
}

func TestGateway_UnauthorizedTearsDownSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	sessions := &fakeSessions{token: "stale", ws: "ws_1"}
	g := New(srv.URL, sessions, staticKeys{}, logging.NewDiscardLogger())

	res := g.List(context.Background(), records.KindAccount, "proj_1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrAuthExpired)
	assert.True(t, sessions.cleared)
}

func TestGateway_ServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	g := New(srv.URL, &fakeSessions{token: "tok-1", ws: "ws_1"}, staticKeys{}, logging.NewDiscardLogger())

	res := g.List(context.Background(), records.KindEmail, "proj_1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrTransport)
}

func TestGateway_ConnectionRefusedIsTransport(t *testing.T) {
	// Server closed before the call, so the dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	g := New(srv.URL, &fakeSessions{token: "tok-1", ws: "ws_1"}, staticKeys{}, logging.NewDiscardLogger())

	res := g.Delete(context.Background(), records.KindNote, "proj_1", "note_1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrTransport)
}

func TestGateway_NoSessionFailsBeforeNetwork(t *testing.T) {
	g := New("http://127.0.0.1:0", &fakeSessions{}, staticKeys{}, logging.NewDiscardLogger())

	res := g.List(context.Background(), records.KindAccount, "proj_1")
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, common.ErrNotFound)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ViniZap4/lumi-notes/auth"
	"github.com/ViniZap4/lumi-notes/domain"
	"github.com/ViniZap4/lumi-notes/metrics"
	"github.com/ViniZap4/lumi-notes/notes"
	"github.com/ViniZap4/lumi-notes/storage/memory"
	"github.com/ViniZap4/lumi-notes/token"
	"github.com/ViniZap4/lumi-notes/ws"
)

type testEnv struct {
	server *Server
	codec  *token.Codec
	hub    *ws.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	codec, err := token.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	require.NoError(t, err)

	identities := memory.NewIdentityStore()
	accounts, err := auth.NewAccounts(identities, auth.NewHasher(auth.HashParams{Memory: 64, Iterations: 1, Parallelism: 1}), codec)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub(zerolog.Nop())
	go hub.Run(ctx)

	server := NewServer(Deps{
		Notes:    notes.NewRepository(memory.NewNoteStore()),
		Accounts: accounts,
		Resolver: auth.NewResolver(codec, identities),
		Hub:      hub,
		Metrics:  metrics.New(),
		Log:      zerolog.Nop(),
	})
	return &testEnv{server: server, codec: codec, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, tok string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := e.server.App().Test(req, -1)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (e *testEnv) register(t *testing.T, login string) string {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"login": login, "password": "correct horse", "display_name": login,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return body["token"].(string)
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t)
	tok := env.register(t, "alice")

	resp, _ := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"login": "ALICE", "password": "correct horse"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"login": "alice", "password": "correct horse"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, body["token"])
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice", user["login"])
	assert.NotContains(t, user, "password_hash")

	resp, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"login": "alice", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/api/auth/me", tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "alice", body["display_name"])

	resp, body = env.do(t, http.MethodPost, "/api/auth/validate-token", "", map[string]string{"token": tok})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["valid"])

	resp, body = env.do(t, http.MethodPost, "/api/auth/validate-token", "", map[string]string{"token": "garbage"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["valid"])
}

func TestAuthFailuresLookAlike(t *testing.T) {
	env := newTestEnv(t)
	expired, err := token.NewCodec([]byte("0123456789abcdef0123456789abcdef"), time.Hour,
		token.WithClock(func() time.Time { return time.Now().Add(-2 * time.Hour) }))
	require.NoError(t, err)
	expiredTok, _, err := expired.Issue("alice")
	require.NoError(t, err)
	orphanTok, _, err := env.codec.Issue("nobody")
	require.NoError(t, err)
	other, err := token.NewCodec([]byte("ffffffffffffffffffffffffffffffff"), time.Hour)
	require.NoError(t, err)
	forgedTok, _, err := other.Issue("alice")
	require.NoError(t, err)

	headers := []string{"", "Basic abc", "Bearer ###", "Bearer " + expiredTok, "Bearer " + orphanTok, "Bearer " + forgedTok}

	var bodies []string
	for _, h := range headers {
		req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		resp, err := env.server.App().Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "header %q", h)
		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		bodies = append(bodies, string(raw))
	}
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}
	assert.JSONEq(t, `{"message":"Authentication failed"}`, bodies[0])
}

func TestNoteLifecycle(t *testing.T) {
	env := newTestEnv(t)
	tok := env.register(t, "alice")

	resp, note := env.do(t, http.MethodPost, "/api/notes", tok, map[string]any{
		"title": "Shopping", "content": "milk, eggs", "tags": []string{"errand", "errand", " "},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := note["id"].(string)
	assert.Equal(t, "General", note["category"])
	assert.Equal(t, []any{"errand"}, note["tags"])

	resp, updated := env.do(t, http.MethodPut, "/api/notes/"+id, tok, map[string]any{"category": "Work"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Work", updated["category"])
	assert.Equal(t, "Shopping", updated["title"])
	assert.Equal(t, []any{"errand"}, updated["tags"])

	resp, body := env.do(t, http.MethodPut, "/api/notes/"+id, tok, map[string]any{"title": ""})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "title", body["field"])

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	listResp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	var list []domain.Note
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	resp, body = env.do(t, http.MethodDelete, "/api/notes/"+id, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Note deleted", body["message"])

	resp, _ = env.do(t, http.MethodGet, "/api/notes/"+id, tok, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.register(t, "alice")

	resp, body := env.do(t, http.MethodPost, "/api/notes", tok, map[string]any{"title": "no body"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "content", body["field"])

	req := httptest.NewRequest(http.MethodPost, "/api/notes", strings.NewReader("{not json"))
	req.Header.Set("Authorization", "Bearer "+tok)
	raw, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestCrossAccountNotFound(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	_, note := env.do(t, http.MethodPost, "/api/notes", alice, map[string]any{"title": "private", "content": "diary"})
	id := note["id"].(string)

	_, missing := env.do(t, http.MethodGet, "/api/notes/does-not-exist", bob, nil)
	for _, tc := range []struct {
		method string
		body   any
	}{
		{http.MethodGet, nil},
		{http.MethodPut, map[string]any{"title": "mine now"}},
		{http.MethodDelete, nil},
	} {
		resp, body := env.do(t, tc.method, "/api/notes/"+id, bob, tc.body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, tc.method)
		assert.Equal(t, missing, body, tc.method)
	}

	resp, got := env.do(t, http.MethodGet, "/api/notes/"+id, alice, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "private", got["title"])
}

func TestExportImport(t *testing.T) {
	env := newTestEnv(t)
	tok := env.register(t, "alice")

	_, note := env.do(t, http.MethodPost, "/api/notes", tok, map[string]any{
		"title": "Recipe", "content": "flour, water", "category": "Kitchen", "tags": []string{"bread"},
	})
	id := note["id"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/notes/"+id+"/export", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	doc, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "title: Recipe")

	req = httptest.NewRequest(http.MethodPost, "/api/notes/import", bytes.NewReader(doc))
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "text/markdown")
	resp, err = env.server.App().Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var imported domain.Note
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&imported))
	assert.NotEqual(t, id, imported.ID)
	assert.Equal(t, "Recipe", imported.Title)
	assert.Equal(t, "Kitchen", imported.Category)
	assert.Equal(t, "flour, water", imported.Content)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	env.do(t, http.MethodGet, "/api/notes", "", nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mresp, err := env.server.App().Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(mresp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `lumi_auth_failures_total{kind="missing_credential"} 1`)
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	env := newTestEnv(t)
	tok := env.register(t, "alice")

	resp, _ := env.do(t, http.MethodGet, "/ws", tok, nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}

// deleteWatcher holds back note_deleted events until released, then
// encodes them the way a websocket connection would.
type deleteWatcher struct {
	release chan struct{}
	events  chan []byte
	once    sync.Once
}

func newDeleteWatcher() *deleteWatcher {
	return &deleteWatcher{release: make(chan struct{}), events: make(chan []byte, 1)}
}

func (w *deleteWatcher) ReadJSON(v any) error { return io.EOF }

func (w *deleteWatcher) WriteJSON(v any) error {
	msg, ok := v.(ws.Message)
	if !ok || msg.Type != ws.NoteDeleted {
		return nil
	}
	<-w.release
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.events <- data
	return nil
}

func (w *deleteWatcher) Close() error { return nil }

func (w *deleteWatcher) unblock() { w.once.Do(func() { close(w.release) }) }

func TestDeleteEventCarriesDeletedID(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"login": "alice", "password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tok := body["token"].(string)
	ownerID := body["user"].(map[string]any)["id"].(string)
	other := env.register(t, "bob")

	watcher := newDeleteWatcher()
	t.Cleanup(watcher.unblock)
	env.hub.Register(ownerID, watcher)

	_, note := env.do(t, http.MethodPost, "/api/notes", tok, map[string]any{"title": "t", "content": "c"})
	id := note["id"].(string)

	resp, _ = env.do(t, http.MethodDelete, "/api/notes/"+id, tok, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Later requests with paths of the same length reuse the request buffer.
	filler := "/api/notes/" + strings.Repeat("Z", len(id))
	for i := 0; i < 20; i++ {
		env.do(t, http.MethodGet, filler, other, nil)
	}
	watcher.unblock()

	select {
	case data := <-watcher.events:
		var msg struct {
			Type string      `json:"type"`
			Note domain.Note `json:"note"`
		}
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, ws.NoteDeleted, msg.Type)
		assert.Equal(t, id, msg.Note.ID)
		assert.Equal(t, ownerID, msg.Note.OwnerID)
	case <-time.After(5 * time.Second):
		t.Fatal("no note_deleted event")
	}
}

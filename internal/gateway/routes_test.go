package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/session"
	"github.com/soyeahso/promptsmith/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doRequest(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	return v
}

func TestSetConfig(t *testing.T) {
	p := &fakeProvider{}
	srv := New(testConfig(), testLog(), WithFactory(p.factory))

	rr := doRequest(t, srv, http.MethodPost, "/api/config",
		`{"api_type":"openai","api_key":" sk-rest-1234567890 ","base_url":"https://api.example.com/v1/","model":"gpt-rest"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))
	res := decodeBody[ConfigResult](t, rr)
	assert.True(t, res.Success)
	assert.Equal(t, zh.T(i18n.MsgConfigSaved), res.Message)

	def, ok := srv.defaults.Get()
	require.True(t, ok)
	assert.Equal(t, "sk-rest-1234567890", def.APIKey)
	assert.Equal(t, "https://api.example.com/v1", def.BaseURL)
}

func TestSetConfig_ReusesKeyForSameProvider(t *testing.T) {
	def := llm.EmptyConfig()
	def.APIKey, def.BaseURL, def.Model = "sk-existing-9999", "https://api.example.com/v1", "gpt-a"
	p := &fakeProvider{}
	srv := New(testConfig(), testLog(), WithFactory(p.factory), WithDefaultConfig(llm.NewDefaultConfig(&def)))

	rr := doRequest(t, srv, http.MethodPost, "/api/config",
		`{"api_type":"openai","base_url":"https://api.example.com/v1","model":"gpt-b"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decodeBody[ConfigResult](t, rr).Success)

	got, _ := srv.defaults.Get()
	assert.Equal(t, "sk-existing-9999", got.APIKey)
	assert.Equal(t, "gpt-b", got.Model)

	// another provider never inherits the key
	rr = doRequest(t, srv, http.MethodPost, "/api/config", `{"api_type":"gemini","model":"gemini-pro"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decodeBody[ConfigResult](t, rr).Success)
	got, _ = srv.defaults.Get()
	assert.Equal(t, "gpt-b", got.Model, "a rejected config leaves the default alone")
}

func TestSetConfig_Rejected(t *testing.T) {
	srv := New(testConfig(), testLog(), WithFactory((&fakeProvider{}).factory))

	rr := doRequest(t, srv, http.MethodPost, "/api/config", `{"api_type":"openai","model":"m"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
	res := decodeBody[ConfigResult](t, rr)
	assert.False(t, res.Success)
	assert.Equal(t, zh.T(i18n.MsgConfigSaveFailed), res.Message)
	assert.False(t, srv.defaults.Configured())

	rr = doRequest(t, srv, http.MethodPost, "/api/config", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.False(t, decodeBody[ConfigResult](t, rr).Success)
}

func TestSetConfig_RecordsOnSession(t *testing.T) {
	srv := New(testConfig(), testLog(), WithFactory((&fakeProvider{}).factory))
	s, _ := srv.Registry().CreateSession()

	rr := doRequest(t, srv, http.MethodPost, "/api/config?session_id="+s.ID,
		`{"api_type":"openai","api_key":"sk-session-abcdefgh","base_url":"https://x","model":"m"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	snap, _, err := srv.Registry().Session(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "openai", snap.Metadata["api_type"])
	assert.Contains(t, snap.Metadata["api_config"], "sk-s...efgh")
	assert.NotContains(t, snap.Metadata["api_config"], "sk-session-abcdefgh")
	assert.True(t, json.Valid([]byte(snap.Metadata["api_config"])))
}

func TestStatusEndpoint(t *testing.T) {
	srv := New(testConfig(), testLog(), WithFactory((&fakeProvider{}).factory))
	srv.Registry().CreateSession()

	rr := doRequest(t, srv, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	st := decodeBody[StatusResponse](t, rr)
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 0, st.Connections)
	assert.False(t, st.Configured)
	assert.Equal(t, llm.SupportedAPITypes, st.Providers)
	assert.NotEmpty(t, st.Version)
}

func TestDebugConfigMasksKey(t *testing.T) {
	srv := New(testConfig(), testLog(), WithFactory((&fakeProvider{}).factory))

	rr := doRequest(t, srv, http.MethodGet, "/api/debug/config", "")
	assert.JSONEq(t, `{"configured":false}`, rr.Body.String())

	def := llm.EmptyConfig()
	def.APIKey, def.BaseURL, def.Model = "sk-secret-value-42", "https://x", "m"
	srv.defaults.Set(def)

	rr = doRequest(t, srv, http.MethodGet, "/api/debug/config", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[struct {
		Configured bool          `json:"configured"`
		Config     llm.APIConfig `json:"config"`
	}](t, rr)
	assert.True(t, body.Configured)
	assert.Equal(t, "sk-s...e-42", body.Config.APIKey)
	assert.Equal(t, "m", body.Config.Model)
}

func TestSessionEndpoints(t *testing.T) {
	srv := New(testConfig(), testLog(), WithFactory((&fakeProvider{}).factory))
	a, _ := srv.Registry().CreateSession()
	b, _ := srv.Registry().CreateSession()
	srv.Registry().RemoveHandler(b.ID)

	rr := doRequest(t, srv, http.MethodGet, "/api/sessions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decodeBody[struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}](t, rr)
	assert.Len(t, list.Sessions, 2)

	rr = doRequest(t, srv, http.MethodGet, "/api/sessions?limit=1", "")
	list = decodeBody[struct {
		Sessions []domain.SessionSummary `json:"sessions"`
	}](t, rr)
	assert.Len(t, list.Sessions, 1)

	rr = doRequest(t, srv, http.MethodGet, "/api/sessions/"+a.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
	got := decodeBody[struct {
		Session domain.Session `json:"session"`
		Live    bool           `json:"live"`
	}](t, rr)
	assert.Equal(t, a.ID, got.Session.ID)
	assert.Equal(t, domain.StatusActive, got.Session.Status)
	assert.True(t, got.Live)

	rr = doRequest(t, srv, http.MethodGet, "/api/sessions/does-not-exist", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"session not found"}`, rr.Body.String())
}

func TestSearchSessions(t *testing.T) {
	srv := New(testConfig(), testLog(), WithFactory((&fakeProvider{}).factory))

	rr := doRequest(t, srv, http.MethodGet, "/api/sessions/search", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(t, srv, http.MethodGet, "/api/sessions/search?q=knight", "")
	assert.Equal(t, http.StatusNotImplemented, rr.Code)
}

func TestSearchSessions_SQLiteArchive(t *testing.T) {
	ctx := context.Background()
	db, err := store.Open(ctx, store.MemoryPath, testLog())
	require.NoError(t, err)
	archive := store.NewSQLiteArchive(db)
	t.Cleanup(func() { archive.Close() })

	cfg := testConfig()
	clock := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	reg := session.NewRegistry(session.Options{
		Archive: archive,
		Handler: HandlerOptions(cfg),
		Log:     testLog(),
		Now:     func() time.Time { return clock },
	})
	srv := New(cfg, testLog(), WithFactory((&fakeProvider{}).factory), WithRegistry(reg))

	s, _ := reg.CreateSession()
	require.NoError(t, reg.AddMessage(s.ID, domain.NewMessage(domain.RoleUser, "a wandering knight with a broken sword")))
	require.NoError(t, reg.AddMessage(s.ID, domain.NewMessage(domain.RoleAssistant, "Tell me about the sword.")))

	rr := doRequest(t, srv, http.MethodGet, "/api/sessions/search?q=knight&limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decodeBody[struct {
		Hits []store.SearchHit `json:"hits"`
	}](t, rr)
	require.Len(t, body.Hits, 1)
	assert.Equal(t, s.ID, body.Hits[0].SessionID)
	assert.Contains(t, body.Hits[0].Message.Content, "knight")

	// archived sessions stay reachable after the sweep drops them
	reg.RemoveHandler(s.ID)
	clock = clock.Add(2 * time.Hour)
	require.Equal(t, 1, reg.Sweep(time.Hour))
	assert.Zero(t, reg.Len())
	rr = doRequest(t, srv, http.MethodGet, "/api/sessions/"+s.ID, "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestQueryLimit(t *testing.T) {
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultListLimit},
		{"limit=abc", defaultListLimit},
		{"limit=-3", defaultListLimit},
		{"limit=7", 7},
		{"limit=100000", maxListLimit},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/api/sessions?"+tt.query, nil)
		assert.Equal(t, tt.want, queryLimit(r), tt.query)
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/percipio/internal/app"
	"github.com/ternarybob/percipio/internal/common"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()
	cfg.Server.Port = 0

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err, "app should build against a fresh store")
	t.Cleanup(func() {
		assert.NoError(t, application.Close(), "app should close cleanly")
	})

	return New(application)
}

func TestRouteTable(t *testing.T) {
	srv := newTestServer(t)

	cases := []struct {
		method string
		path   string
		want   int
	}{
		{"GET", "/api/health", http.StatusOK},
		{"GET", "/api/version", http.StatusOK},
		{"GET", "/api/bits", http.StatusOK},
		{"GET", "/api/pages", http.StatusOK},
		{"GET", "/api/rules", http.StatusOK},
		{"GET", "/api/jobs", http.StatusOK},
		{"GET", "/api/stats", http.StatusOK},
		{"GET", "/api/search", http.StatusBadRequest},
		{"GET", "/api/nope", http.StatusNotFound},
		{"GET", "/api/crawl", http.StatusMethodNotAllowed},
		{"DELETE", "/api/jobs", http.StatusMethodNotAllowed},
		{"PUT", "/api/rules", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, nil)
		rec := httptest.NewRecorder()
		srv.server.Handler.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s should answer %d", tc.method, tc.path, tc.want)
	}
}

func TestRuleLifecycleThroughRouter(t *testing.T) {
	srv := newTestServer(t)
	handler := srv.server.Handler

	// 1. Create a rule via POST /api/rules
	body := `{"rule_name":"goroutine-keyword","rule_type":"keyword","pattern":"goroutine","category":"go","confidence_boost":0.1,"priority":10,"active":true}`
	req := httptest.NewRequest("POST", "/api/rules", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, "create should answer 201: %s", rec.Body.String())

	// 2. Fetch it back via the subtree route
	req = httptest.NewRequest("GET", "/api/rules/goroutine-keyword", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "get by name should answer 200: %s", rec.Body.String())
	var rule map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rule), "rule should decode")
	assert.Equal(t, "goroutine-keyword", rule["rule_name"], "rule name should round-trip")
	assert.Equal(t, "go", rule["category"], "rule category should round-trip")

	// 3. Deactivate it via DELETE
	req = httptest.NewRequest("DELETE", "/api/rules/goroutine-keyword", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "delete should answer 200: %s", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest("OPTIONS", "/api/bits", nil)
	rec := httptest.NewRecorder()
	srv.server.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code, "preflight should answer 200")
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), "preflight should allow all origins")
}

func TestRecoveryMiddleware(t *testing.T) {
	srv := newTestServer(t)

	panicking := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := srv.withMiddleware(panicking)

	req := httptest.NewRequest("GET", "/api/anything", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code, "a panicking handler should answer 500")
}

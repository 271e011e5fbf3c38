// internal/transport/httpapi/router_test.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"citizen-portal/internal/artifacts"
	"citizen-portal/internal/common/logger"
	"citizen-portal/internal/models"
	"citizen-portal/internal/notifier"
	"citizen-portal/internal/presence"
	"citizen-portal/internal/store"
	"citizen-portal/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Setup
// ==========================

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, rec *models.ApplicationRecord, path string) error {
	return os.WriteFile(path, []byte("%PDF-1.3 "+rec.ID), 0o644)
}

type stubConverter struct{}

func (stubConverter) Convert(_ context.Context, _, jpgPath string) error {
	return os.WriteFile(jpgPath, []byte{0xFF, 0xD8, 0xFF}, 0o644)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, checks map[string]Pinger) *httptest.Server {
	t.Helper()
	log := logger.NewTestLogger(t)
	pipeline, err := artifacts.NewPipeline(t.TempDir(), stubRenderer{}, stubConverter{}, nil, nil, log)
	require.NoError(t, err)
	svc := workflow.NewService(store.NewMemoryStore(), notifier.New(presence.NewRegistry(), log, time.Second), pipeline, log)

	srv := httptest.NewServer(NewRouter(Options{
		Workflow:       svc,
		Logger:         log,
		ReadyChecks:    checks,
		RequestTimeout: 5 * time.Second,
	}))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func createGrievance(t *testing.T, srv *httptest.Server) models.ApplicationRecord {
	t.Helper()
	resp := do(t, http.MethodPost, srv.URL+"/api/grievance",
		`{"title":"Streetlight","fields":{"category":"Electricity","description":"Out"}}`,
		map[string]string{UserIDHeader: "u1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec models.ApplicationRecord
	decode(t, resp, &rec)
	return rec
}

// ==========================
// Mutations
// ==========================

func TestRouter_Lifecycle(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := createGrievance(t, srv)
	assert.Equal(t, "u1", rec.OwnerUserID)
	assert.Equal(t, "open", rec.Status)
	base := srv.URL + "/api/grievances/" + rec.ID

	resp := do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPatch, base, `{"status":"in-progress"}`, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.ApplicationRecord
	decode(t, resp, &updated)
	assert.Equal(t, "in-progress", updated.Status)

	resp = do(t, http.MethodPost, base+"/resolve", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var resolved models.ApplicationRecord
	decode(t, resp, &resolved)
	assert.Equal(t, "resolved", resolved.Status)

	resp = do(t, http.MethodGet, srv.URL+"/api/grievance", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, resp, &list)
	assert.Equal(t, 1, list.Count)

	resp = do(t, http.MethodDelete, base, "", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = do(t, http.MethodGet, base, "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := createGrievance(t, srv)

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		headers  map[string]string
		status   int
		wantCode string
	}{
		{"unknown kind", http.MethodPost, "/api/passport", `{}`, map[string]string{UserIDHeader: "u1"}, 400, "INVALID_KIND"},
		{"missing caller", http.MethodPost, "/api/grievance", `{}`, nil, 403, "FORBIDDEN"},
		{"unknown property", http.MethodPost, "/api/grievance", `{"owner":"x"}`, map[string]string{UserIDHeader: "u1"}, 400, "INVALID_INPUT"},
		{"non-string field", http.MethodPatch, "/api/grievance/" + rec.ID, `{"fields":{"a":1}}`, nil, 400, "INVALID_INPUT"},
		{"malformed json", http.MethodPatch, "/api/grievance/" + rec.ID, `{`, nil, 400, "INVALID_INPUT"},
		{"empty update", http.MethodPatch, "/api/grievance/" + rec.ID, `{}`, nil, 400, "INVALID_INPUT"},
		{"missing record", http.MethodDelete, "/api/grievance/nope", "", nil, 404, "RESOURCE_NOT_FOUND"},
		{"bad format", http.MethodGet, "/api/grievance/" + rec.ID + "/download?format=png", "", nil, 400, "INVALID_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, tt.method, srv.URL+tt.path, tt.body, tt.headers)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body errorResponse
			decode(t, resp, &body)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

// ==========================
// Downloads
// ==========================

func TestRouter_Download(t *testing.T) {
	srv := newTestServer(t, nil)
	rec := createGrievance(t, srv)
	base := srv.URL + "/api/grievance/" + rec.ID + "/download"

	tests := []struct {
		query       string
		contentType string
		fileName    string
	}{
		{"", "application/pdf", "grievance-" + rec.ID + ".pdf"},
		{"?format=pdf", "application/pdf", "grievance-" + rec.ID + ".pdf"},
		{"?format=jpg", "image/jpeg", "grievance-" + rec.ID + ".jpg"},
		{"?format=jpeg", "image/jpeg", "grievance-" + rec.ID + ".jpg"},
	}
	for _, tt := range tests {
		t.Run("format"+tt.query, func(t *testing.T) {
			resp := do(t, http.MethodGet, base+tt.query, "", nil)
			require.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, tt.contentType, resp.Header.Get("Content-Type"))
			assert.Equal(t, `attachment; filename="`+tt.fileName+`"`, resp.Header.Get("Content-Disposition"))
		})
	}

	// Every format was generated above, so a repeat is a cache hit.
	resp := do(t, http.MethodGet, base+"?format=jpg", "", nil)
	assert.Equal(t, "hit", resp.Header.Get("X-Artifact-Cache"))
}

// ==========================
// Health
// ==========================

func TestRouter_HealthReadyMetrics(t *testing.T) {
	srv := newTestServer(t, map[string]Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
	})

	resp := do(t, http.MethodGet, srv.URL+"/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/ready", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_ReadyReportsFailingDependency(t *testing.T) {
	srv := newTestServer(t, map[string]Pinger{
		"redis": pingerFunc(func(context.Context) error { return errors.New("dial tcp: connection refused") }),
	})

	resp := do(t, http.MethodGet, srv.URL+"/ready", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body struct {
		Status string            `json:"status"`
		Failed map[string]string `json:"failed"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "not ready", body.Status)
	assert.Contains(t, body.Failed["redis"], "connection refused")
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mahino/scalar"
	"github.com/mahino/scalar/factory"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	config := scalar.DefaultConfig()
	config.Storage.Directory = t.TempDir()

	components, err := factory.Build(context.Background(), config, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	server := NewServer(components, config.Provider, nil, nil)
	server.RegisterRoutes()
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHandleAnalyze(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/analyze", map[string]any{
		"payload": map[string]any{
			"vms": []any{map[string]any{"name": "vm"}},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	data := resp.Data.(map[string]any)
	entities := data["scalable_entities"].([]any)
	require.Len(t, entities, 1)
	assert.Equal(t, "vms", entities[0].(map[string]any)["path"])
}

func TestHandleAnalyzeRejectsMissingPayload(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/analyze", map[string]any{
		"counts": map[string]any{"vms": 2},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestHandleAnalyzeMethodNotAllowed(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodGet, "/api/v1/analyze", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandlePreview(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/preview", map[string]any{
		"payload": map[string]any{
			"vms": []any{map[string]any{"name": "vm"}},
		},
		"counts": map[string]any{"vms": 3},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, resp.Success)

	result := resp.Data.(map[string]any)
	document := result["document"].(map[string]any)
	assert.Len(t, document["vms"].([]any), 3)
}

func TestHandlePreviewNegativeCountFailsSchema(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/preview", map[string]any{
		"payload": map[string]any{"vms": []any{}},
		"counts":  map[string]any{"vms": -1},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandleGenerateRecordsAgainstRuleSet(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/rulesets", map[string]any{
		"id": "bp-web",
		"rules": map[string]any{
			"custom": []any{
				map[string]any{"type": "keep_first", "target_path": "vms", "keep_count": 1},
			},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)

	rec, resp = doJSON(t, server, http.MethodPost, "/api/v1/generate", map[string]any{
		"payload": map[string]any{
			"vms": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}},
		},
		"ruleset_id": "bp-web",
	})
	require.Equal(t, http.StatusOK, rec.Code, resp.Error)
	result := resp.Data.(map[string]any)
	document := result["document"].(map[string]any)
	assert.Len(t, document["vms"].([]any), 1)

	rec, resp = doJSON(t, server, http.MethodGet, "/api/v1/rulesets/bp-web/responses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	responses := resp.Data.(map[string]any)["responses"].([]any)
	require.Len(t, responses, 1)
	assert.Equal(t, "bp-web", responses[0].(map[string]any)["ruleset_id"])
}

func TestRuleSetCRUD(t *testing.T) {
	server := newTestServer(t)
	body := map[string]any{
		"api_type": "blueprint",
		"rules": map[string]any{
			"defaults": []any{
				map[string]any{"type": "use_single", "source_entity": "spec.resources.app_profile_list"},
			},
		},
	}

	rec, resp := doJSON(t, server, http.MethodPut, "/api/v1/rulesets/bp-web", body)
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)
	assert.Equal(t, "bp-web", resp.Data.(map[string]any)["id"])

	rec, resp = doJSON(t, server, http.MethodGet, "/api/v1/rulesets/bp-web", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	doc := resp.Data.(map[string]any)
	assert.Equal(t, "blueprint", doc["api_type"])

	rec, resp = doJSON(t, server, http.MethodGet, "/api/v1/rulesets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"bp-web"}, resp.Data.(map[string]any)["ids"])

	// Second save pushes the first revision into history.
	body["api_type"] = "blueprint-v2"
	rec, _ = doJSON(t, server, http.MethodPut, "/api/v1/rulesets/bp-web", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, resp = doJSON(t, server, http.MethodGet, "/api/v1/rulesets/bp-web/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	revisions := resp.Data.(map[string]any)["revisions"].([]any)
	require.Len(t, revisions, 1)
	assert.Equal(t, "blueprint", revisions[0].(map[string]any)["api_type"])

	rec, _ = doJSON(t, server, http.MethodDelete, "/api/v1/rulesets/bp-web", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp = doJSON(t, server, http.MethodGet, "/api/v1/rulesets/bp-web", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, resp.Success)
}

func TestRuleSetCreateGeneratesID(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/rulesets", map[string]any{
		"rules": map[string]any{},
	})
	require.Equal(t, http.StatusCreated, rec.Code, resp.Error)
	assert.NotEmpty(t, resp.Data.(map[string]any)["id"])
}

func TestRuleSetUnknownSubresource(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodGet, "/api/v1/rulesets/x/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandleSeedWithoutProvider(t *testing.T) {
	server := newTestServer(t)

	rec, resp := doJSON(t, server, http.MethodPost, "/api/v1/seed", map[string]any{
		"payload": map[string]any{},
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, resp.Success)
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	server.mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status["status"])
	_, hasProvider := status["provider"]
	assert.False(t, hasProvider)
}

func TestParseRuleSetPath(t *testing.T) {
	cases := []struct {
		path string
		id   string
		sub  string
		ok   bool
	}{
		{"/api/v1/rulesets", "", "", true},
		{"/api/v1/rulesets/", "", "", true},
		{"/api/v1/rulesets/abc", "abc", "", true},
		{"/api/v1/rulesets/abc/history", "abc", "history", true},
		{"/api/v1/rulesets/abc/responses", "abc", "responses", true},
		{"/api/v1/rulesets/abc/bogus", "", "", false},
		{"/api/v1/rulesets/a/b/c", "", "", false},
	}
	for _, tc := range cases {
		id, sub, err := parseRuleSetPath(tc.path)
		if !tc.ok {
			assert.Error(t, err, tc.path)
			continue
		}
		require.NoError(t, err, tc.path)
		assert.Equal(t, tc.id, id, tc.path)
		assert.Equal(t, tc.sub, sub, tc.path)
	}
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pdiddy/image-tree/internal/orchestrator"
	"github.com/pdiddy/image-tree/internal/store"
	"github.com/pdiddy/image-tree/internal/tree"
	"github.com/pdiddy/image-tree/pkg/types"
)

type runnerFunc func(ctx context.Context, req orchestrator.Request) orchestrator.Result

func (f runnerFunc) Run(ctx context.Context, req orchestrator.Request) orchestrator.Result {
	return f(ctx, req)
}

type keywordFunc func(ctx context.Context, prompt string) ([]string, error)

func (f keywordFunc) ExtractKeywords(ctx context.Context, prompt string) ([]string, error) {
	return f(ctx, prompt)
}

type fakeImages struct{}

func (fakeImages) Open(ref string) ([]byte, string, error) {
	if ref == "" {
		return nil, "", errors.New("no ref")
	}
	return []byte("\x89PNG\r\n\x1a\n" + ref), "image/png", nil
}

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	runner := runnerFunc(func(_ context.Context, req orchestrator.Request) orchestrator.Result {
		return orchestrator.Result{
			Status:      types.StatusAccepted,
			ImageRef:    "ref-" + req.NodeID,
			Score:       8,
			FinalPrompt: req.Prompt,
			Attempts:    1,
		}
	})
	kw := keywordFunc(func(context.Context, string) ([]string, error) {
		return []string{"fog", "dawn"}, nil
	})
	m := tree.New(store.NewMemory(), runner, kw, types.TreeConfig{}, nil)

	s, err := New(m, fakeImages{}, zap.NewNop(), types.ServerConfig{})
	require.NoError(t, err)
	return s
}

func do(s *Server, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createRoot(t *testing.T, s *Server, generate bool) *types.TreeNode {
	t.Helper()
	rec := do(s, http.MethodPost, "/api/v1/nodes", fmt.Sprintf(`{"prompt":"a harbor","generate":%t}`, generate))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[*types.TreeNode](t, rec)
}

func TestNew(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		s := setupTestServer(t)
		assert.Equal(t, DefaultHost, s.config.Host)
		assert.Equal(t, DefaultPort, s.config.Port)
	})

	t.Run("returns error when tree manager is nil", func(t *testing.T) {
		_, err := New(nil, nil, nil, types.ServerConfig{})
		assert.ErrorContains(t, err, "tree manager cannot be nil")
	})
}

func TestHandleHealth(t *testing.T) {
	rec := do(setupTestServer(t), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[HealthResponse](t, rec).Status)
}

func TestHandleMetrics(t *testing.T) {
	rec := do(setupTestServer(t), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestHandleCreateRoot(t *testing.T) {
	t.Run("creates pending root", func(t *testing.T) {
		n := createRoot(t, setupTestServer(t), false)
		assert.NotEmpty(t, n.ID)
		assert.Equal(t, n.ID, n.RootID)
		assert.Equal(t, types.StatusPending, n.Status)
	})

	t.Run("generates when asked", func(t *testing.T) {
		n := createRoot(t, setupTestServer(t), true)
		assert.Equal(t, types.StatusAccepted, n.Status)
		assert.Equal(t, "ref-"+n.ID, n.ImageRef)
		require.NotNil(t, n.QualityScore)
		assert.Equal(t, 8.0, *n.QualityScore)
	})

	t.Run("rejects empty prompt", func(t *testing.T) {
		rec := do(setupTestServer(t), http.MethodPost, "/api/v1/nodes", `{"prompt":"  "}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects malformed body", func(t *testing.T) {
		rec := do(setupTestServer(t), http.MethodPost, "/api/v1/nodes", `{"prompt":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleGetNode_NotFound(t *testing.T) {
	rec := do(setupTestServer(t), http.MethodGet, "/api/v1/nodes/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "node_not_found", decode[ErrorResponse](t, rec).Error)
}

func TestHandleGenerate(t *testing.T) {
	s := setupTestServer(t)
	root := createRoot(t, s, false)

	rec := do(s, http.MethodPost, "/api/v1/nodes/"+root.ID+"/generate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, types.StatusAccepted, decode[*types.TreeNode](t, rec).Status)

	rec = do(s, http.MethodPost, "/api/v1/nodes/"+root.ID+"/generate", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_accepted", decode[ErrorResponse](t, rec).Error)
}

func TestHandleExpand(t *testing.T) {
	s := setupTestServer(t)

	pending := createRoot(t, s, false)
	rec := do(s, http.MethodPost, "/api/v1/nodes/"+pending.ID+"/expand", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "node_not_ready", decode[ErrorResponse](t, rec).Error)

	root := createRoot(t, s, true)
	rec = do(s, http.MethodPost, "/api/v1/nodes/"+root.ID+"/expand", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decode[ExpandResponse](t, rec)
	assert.Equal(t, root.ID, resp.ParentID)
	require.Len(t, resp.Children, 2)
	for _, c := range resp.Children {
		assert.Equal(t, root.ID, c.ParentID)
		assert.Equal(t, types.StatusAccepted, c.Status)
	}
	assert.Equal(t, "a harbor, fog", resp.Children[0].Prompt)

	rec = do(s, http.MethodPost, "/api/v1/nodes/"+root.ID+"/expand", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_expanded", decode[ErrorResponse](t, rec).Error)

	rec = do(s, http.MethodGet, "/api/v1/trees/"+root.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	tr := decode[types.Tree](t, rec)
	assert.Equal(t, root.ID, tr.RootID)
	assert.Len(t, tr.Nodes, 3)
}

func TestHandleImage(t *testing.T) {
	s := setupTestServer(t)

	pending := createRoot(t, s, false)
	rec := do(s, http.MethodGet, "/api/v1/nodes/"+pending.ID+"/image", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	root := createRoot(t, s, true)
	rec = do(s, http.MethodGet, "/api/v1/nodes/"+root.ID+"/image", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasSuffix(rec.Body.String(), "ref-"+root.ID))
}

func TestHandleGetTree_NotFound(t *testing.T) {
	rec := do(setupTestServer(t), http.MethodGet, "/api/v1/trees/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{types.ErrConfiguration, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", types.ErrNodeNotFound), http.StatusNotFound},
		{types.ErrAlreadyExpanded, http.StatusConflict},
		{types.ErrAlreadyExpanding, http.StatusConflict},
		{types.ErrNodeNotReady, http.StatusConflict},
		{types.ErrGenerationInProgress, http.StatusConflict},
		{types.ErrAlreadyAccepted, http.StatusConflict},
		{types.ErrCancelled, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

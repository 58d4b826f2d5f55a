package mcp

import (
	"context"
	"sync"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/async"
	"github.com/Aman-CERP/memesearch/internal/config"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/index"
	"github.com/Aman-CERP/memesearch/internal/search"
)

// ============================================================================
// Test doubles
// ============================================================================

type fakeBackend struct {
	mu        sync.Mutex
	cfg       *config.Config
	results   []search.Result
	searchErr error
	lastOpts  search.Options
	status    app.Status
	syncing   bool
	thumbs    map[string][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{cfg: config.NewConfig(), thumbs: map[string][]byte{}}
}

func (f *fakeBackend) SearchWithOptions(_ context.Context, _ string, opts search.Options) ([]search.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastOpts = opts
	return f.results, f.searchErr
}

func (f *fakeBackend) Status(context.Context) app.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeBackend) StartSync(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncing {
		return false
	}
	f.syncing = true
	return true
}

func (f *fakeBackend) Thumbnail(_ context.Context, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data, ok := f.thumbs[path]; ok {
		return data, nil
	}
	return nil, merrors.New(merrors.ErrCodeFileNotFound, "image not found", nil)
}

func (f *fakeBackend) Config() *config.Config { return f.cfg }

func newTestServer(t *testing.T, backend Backend) *Server {
	t.Helper()
	srv, err := NewServer(backend, nil)
	require.NoError(t, err)
	return srv
}

// ============================================================================
// Construction
// ============================================================================

func TestNewServer_RequiresBackend(t *testing.T) {
	_, err := NewServer(nil, nil)
	assert.Error(t, err)
}

func TestServer_ListTools(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	var names []string
	for _, tool := range srv.ListTools() {
		names = append(names, tool.Name)
		assert.NotEmpty(t, tool.Description)
	}
	assert.Equal(t, []string{"search_images", "sync_status", "start_sync"}, names)
}

func TestServer_CallTool_Unknown(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	_, err := srv.CallTool(context.Background(), "search_code", nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

// ============================================================================
// search_images
// ============================================================================

func TestSearchImages_ReturnsResults(t *testing.T) {
	backend := newFakeBackend()
	backend.cfg.Search.MinScore = 0.1
	backend.results = []search.Result{
		{Path: "/memes/drake.png", Score: 0.91, Semantic: 0.87, Lexical: 1, OCRPreview: "hotline bling"},
		{Path: "/memes/cat.webp", Score: 0.42, Semantic: 0.6},
	}
	srv := newTestServer(t, backend)

	out, err := srv.CallTool(context.Background(), "search_images", map[string]any{
		"query": "hotline bling",
		"limit": float64(5),
	})
	require.NoError(t, err)

	results := out.(SearchImagesOutput).Results
	require.Len(t, results, 2)
	assert.Equal(t, "/memes/drake.png", results[0].Path)
	assert.Equal(t, "image/png", results[0].MIMEType)
	assert.Equal(t, "thumbnail:///memes/drake.png", results[0].ThumbnailURI)
	assert.Equal(t, "image/webp", results[1].MIMEType)

	assert.Equal(t, 5, backend.lastOpts.Limit)
	assert.InDelta(t, 0.1, backend.lastOpts.MinScore, 1e-9)
}

func TestSearchImages_LimitClamped(t *testing.T) {
	tests := []struct {
		name  string
		limit any
		want  int
	}{
		{"default", nil, defaultLimit},
		{"zero", float64(0), defaultLimit},
		{"negative", float64(-3), defaultLimit},
		{"over max", float64(500), maxLimit},
		{"in range", float64(7), 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newFakeBackend()
			srv := newTestServer(t, backend)
			args := map[string]any{"query": "cat"}
			if tt.limit != nil {
				args["limit"] = tt.limit
			}
			_, err := srv.CallTool(context.Background(), "search_images", args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, backend.lastOpts.Limit)
		})
	}
}

func TestSearchImages_EmptyQuery(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	for _, args := range []map[string]any{nil, {"query": ""}, {"query": "  \n"}} {
		_, err := srv.CallTool(context.Background(), "search_images", args)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr)
		assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
	}
}

func TestSearchImages_WrongArgumentType(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	_, err := srv.CallTool(context.Background(), "search_images", map[string]any{"query": 42})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestSearchImages_BackendError(t *testing.T) {
	backend := newFakeBackend()
	backend.searchErr = merrors.New(merrors.ErrCodeEmbeddingFailed, "inference server unreachable", nil)
	srv := newTestServer(t, backend)

	_, err := srv.CallTool(context.Background(), "search_images", map[string]any{"query": "cat"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeEmbeddingFailed, mcpErr.Code)
	assert.Contains(t, mcpErr.Message, "unreachable")
}

// ============================================================================
// sync_status / start_sync
// ============================================================================

func TestSyncStatus(t *testing.T) {
	backend := newFakeBackend()
	backend.status = app.Status{
		Sync: async.ProgressSnapshot{
			Status:      string(async.StatusSyncing),
			ProgressPct: 40,
			CurrentFile: "/memes/a.png",
			Passes:      2,
			LastResult:  &index.Result{Indexed: 12, Removed: 3},
		},
		Folders:    []string{"/memes"},
		Entries:    120,
		Model:      "clip-vit-b-32",
		Dimensions: 512,
	}
	srv := newTestServer(t, backend)

	out, err := srv.CallTool(context.Background(), "sync_status", nil)
	require.NoError(t, err)

	st := out.(SyncStatusOutput)
	assert.True(t, st.Syncing)
	assert.Equal(t, "syncing", st.Status)
	assert.InDelta(t, 40, st.ProgressPct, 1e-9)
	assert.Equal(t, "/memes/a.png", st.CurrentFile)
	assert.Equal(t, 12, st.LastIndexed)
	assert.Equal(t, 3, st.LastRemoved)
	assert.Equal(t, []string{"/memes"}, st.Folders)
	assert.Equal(t, 120, st.Entries)
}

func TestSyncStatus_IdleHasEmptyFolders(t *testing.T) {
	backend := newFakeBackend()
	backend.status = app.Status{Sync: async.ProgressSnapshot{Status: string(async.StatusIdle)}}
	srv := newTestServer(t, backend)

	out, err := srv.CallTool(context.Background(), "sync_status", nil)
	require.NoError(t, err)
	st := out.(SyncStatusOutput)
	assert.False(t, st.Syncing)
	assert.NotNil(t, st.Folders)
	assert.Zero(t, st.LastIndexed)
}

func TestStartSync(t *testing.T) {
	srv := newTestServer(t, newFakeBackend())

	out, err := srv.CallTool(context.Background(), "start_sync", nil)
	require.NoError(t, err)
	assert.True(t, out.(StartSyncOutput).Started)

	out, err = srv.CallTool(context.Background(), "start_sync", nil)
	require.NoError(t, err)
	assert.False(t, out.(StartSyncOutput).Started)
	assert.Contains(t, out.(StartSyncOutput).Message, "already running")
}

// ============================================================================
// Protocol round trip
// ============================================================================

func TestServer_InMemorySession(t *testing.T) {
	backend := newFakeBackend()
	backend.results = []search.Result{{Path: "/memes/doge.jpg", Score: 0.7, Semantic: 0.7}}
	srv := newTestServer(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverTransport, clientTransport := mcp.NewInMemoryTransports()
	serverSession, err := srv.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	defer serverSession.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_images",
		Arguments: map[string]any{"query": "doge"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)

	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "doge.jpg")
	assert.NotNil(t, res.StructuredContent)
}

package mcp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/async"
	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/search"
	"github.com/Aman-CERP/memesearch/pkg/version"
)

const (
	defaultLimit = 10
	maxLimit     = 50
)

// Backend is the library surface the MCP tools use. *app.App implements it.
type Backend interface {
	SearchWithOptions(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Status(ctx context.Context) app.Status
	StartSync(ctx context.Context) bool
	Thumbnail(ctx context.Context, path string) ([]byte, error)
	Config() *config.Config
}

// Server is the MCP server for memesearch.
type Server struct {
	mcp     *mcp.Server
	backend Backend
	logger  *slog.Logger
}

// ToolInfo contains information about a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

var tools = []ToolInfo{
	{
		Name:        "search_images",
		Description: "Find images in the user's indexed folders by describing what they show or quoting text written on them. Returns absolute paths ranked by relevance, with the recognized text and a thumbnail resource URI for each.",
	},
	{
		Name:        "sync_status",
		Description: "Report whether the image index is syncing, how far along the pass is, which folders are tracked and how many images are indexed.",
	},
	{
		Name:        "start_sync",
		Description: "Start a background sync of the tracked folders. Returns immediately; use sync_status to follow progress.",
	},
}

// NewServer creates an MCP server over backend.
func NewServer(backend Backend, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("backend is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		backend: backend,
		logger:  logger,
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    "memesearch",
		Version: version.Version,
	}, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying MCP server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ListTools returns all registered tools.
func (s *Server) ListTools() []ToolInfo {
	return append([]ToolInfo(nil), tools...)
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case "search_images":
		var in SearchImagesInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		out, err := s.searchImages(ctx, in)
		if err != nil {
			return nil, err
		}
		return out, nil
	case "sync_status":
		return s.syncStatus(ctx), nil
	case "start_sync":
		return s.startSync(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	if len(args) == 0 {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError("arguments are not valid JSON")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// searchImages runs a query with the limit clamped to [1, maxLimit].
func (s *Server) searchImages(ctx context.Context, in SearchImagesInput) (SearchImagesOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return SearchImagesOutput{}, NewInvalidParamsError("query cannot be empty or whitespace only")
	}

	start := time.Now()
	requestID := generateRequestID()
	limit := clampLimit(in.Limit, defaultLimit, 1, maxLimit)

	s.logger.Info("search_started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("limit", limit))

	results, err := s.backend.SearchWithOptions(ctx, in.Query, search.Options{
		Limit:    limit,
		MinScore: s.backend.Config().Search.MinScore,
	})
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("search_failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return SearchImagesOutput{}, MapError(err)
	}

	s.logger.Info("search_completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(results)))

	out := SearchImagesOutput{Results: make([]ImageResult, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToImageResult(r))
	}
	return out, nil
}

func (s *Server) syncStatus(ctx context.Context) SyncStatusOutput {
	st := s.backend.Status(ctx)
	out := SyncStatusOutput{
		Status:         st.Sync.Status,
		Syncing:        st.Sync.Status == string(async.StatusSyncing),
		ProgressPct:    st.Sync.ProgressPct,
		CurrentFile:    st.Sync.CurrentFile,
		ElapsedSeconds: st.Sync.ElapsedSeconds,
		Passes:         st.Sync.Passes,
		ErrorMessage:   st.Sync.ErrorMessage,
		Folders:        st.Folders,
		Entries:        st.Entries,
		Model:          st.Model,
		Dimensions:     st.Dimensions,
		Watching:       st.Watching,
	}
	if out.Folders == nil {
		out.Folders = []string{}
	}
	if r := st.Sync.LastResult; r != nil {
		out.LastIndexed = r.Indexed
		out.LastRemoved = r.Removed
	}
	return out
}

func (s *Server) startSync(ctx context.Context) StartSyncOutput {
	if s.backend.StartSync(ctx) {
		s.logger.Info("sync_requested", slog.String("via", "mcp"))
		return StartSyncOutput{Started: true, Message: "Sync started. Call sync_status to follow progress."}
	}
	return StartSyncOutput{Started: false, Message: "A sync is already running."}
}

// registerTools registers all tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[0].Name, Description: tools[0].Description}, s.mcpSearchImagesHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[1].Name, Description: tools[1].Description}, s.mcpSyncStatusHandler)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: tools[2].Name, Description: tools[2].Description}, s.mcpStartSyncHandler)
	s.logger.Debug("mcp_tools_registered", slog.Int("count", len(tools)))
}

func (s *Server) mcpSearchImagesHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchImagesInput) (
	*mcp.CallToolResult,
	SearchImagesOutput,
	error,
) {
	out, err := s.searchImages(ctx, in)
	if err != nil {
		return nil, SearchImagesOutput{}, err
	}
	syncing := s.backend.Status(ctx).Sync.Status == string(async.StatusSyncing)
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: FormatSearchResults(in.Query, out.Results, syncing)}},
	}, out, nil
}

func (s *Server) mcpSyncStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ SyncStatusInput) (
	*mcp.CallToolResult,
	SyncStatusOutput,
	error,
) {
	return nil, s.syncStatus(ctx), nil
}

func (s *Server) mcpStartSyncHandler(ctx context.Context, _ *mcp.CallToolRequest, _ StartSyncInput) (
	*mcp.CallToolResult,
	StartSyncOutput,
	error,
) {
	return nil, s.startSync(ctx), nil
}

// Serve runs the server on the given transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_failed", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short unique request ID for log correlation.
func generateRequestID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

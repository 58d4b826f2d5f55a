package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/config"
	"github.com/Aman-CERP/memesearch/internal/search"
)

// Backend is the library surface the server exposes. *app.App implements it.
type Backend interface {
	SearchWithOptions(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Status(ctx context.Context) app.Status
	Folders(ctx context.Context) ([]string, error)
	SetRoots(ctx context.Context, paths []string) ([]string, error)
	AddFolder(ctx context.Context, path string) (bool, error)
	RemoveFolder(ctx context.Context, path string) (bool, error)
	StartSync(ctx context.Context) bool
	Thumbnail(ctx context.Context, path string) ([]byte, error)
	Config() *config.Config
}

// Server listens on a Unix socket and answers one JSON-RPC request per
// connection.
type Server struct {
	socketPath string
	timeout    time.Duration
	backend    Backend
	logger     *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	started  time.Time
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for backend on socketPath.
func NewServer(socketPath string, backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		timeout:    30 * time.Second,
		backend:    backend,
		logger:     logger,
	}
}

// SetTimeout bounds each connection, request and response included.
func (s *Server) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// ListenAndServe starts the server and blocks until ctx is cancelled or
// Close is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A socket left by a crashed daemon would make Listen fail.
	_ = os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.socketPath, err)
	}

	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
		return nil
	}
	s.listener = listener
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.socketPath)
	}()

	s.logger.Info("server_listening", slog.String("socket", s.socketPath))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isShutdown() || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept_failed", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.wg.Wait()
	s.logger.Info("server_stopped")
	return nil
}

func (s *Server) isShutdown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

// handleConnection processes a single client connection.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		s.logger.Warn("set_deadline_failed", slog.String("error", err.Error()))
	}

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var req Request
	if err := decoder.Decode(&req); err != nil {
		_ = encoder.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	resp := s.handleRequest(ctx, req)
	if resp.Error != nil {
		s.logger.Debug("rpc_failed",
			slog.String("method", req.Method),
			slog.Int("code", resp.Error.Code),
			slog.String("error", resp.Error.Message))
	} else {
		s.logger.Debug("rpc_handled",
			slog.String("method", req.Method),
			slog.Duration("duration", time.Since(start)))
	}
	if err := encoder.Encode(resp); err != nil {
		s.logger.Warn("response_write_failed", slog.String("error", err.Error()))
	}
}

// handleRequest dispatches a request to the backend.
func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	if req.JSONRPC != "2.0" {
		return NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be \"2.0\"")
	}

	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})

	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status(ctx))

	case MethodSearch:
		var params SearchParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if err := params.Validate(); err != nil {
			return errorResponse(req.ID, err)
		}
		opts := search.Options{Limit: params.Limit, MinScore: params.MinScore}
		if opts.Limit == 0 {
			opts.Limit = s.backend.Config().Search.Limit
		}
		if opts.MinScore == 0 {
			opts.MinScore = s.backend.Config().Search.MinScore
		}
		results, err := s.backend.SearchWithOptions(ctx, params.Query, opts)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, toSearchResults(results, params.Explain))

	case MethodFolders:
		folders, err := s.backend.Folders(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, FoldersResult{Folders: nonNil(folders)})

	case MethodSetRoots:
		var params RootsParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		roots, err := s.backend.SetRoots(ctx, params.Paths)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, FoldersResult{Folders: nonNil(roots)})

	case MethodAddFolder, MethodRemoveFolder:
		var params FolderParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		change := s.backend.AddFolder
		if req.Method == MethodRemoveFolder {
			change = s.backend.RemoveFolder
		}
		changed, err := change(ctx, params.Path)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		folders, err := s.backend.Folders(ctx)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, FolderChangeResult{Changed: changed, Folders: nonNil(folders)})

	case MethodStartSync:
		return NewSuccessResponse(req.ID, StartSyncResult{Started: s.backend.StartSync(ctx)})

	case MethodThumbnail:
		var params ThumbnailParams
		if resp, ok := decodeParams(req, &params); !ok {
			return resp
		}
		if params.Path == "" {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "path is required")
		}
		data, err := s.backend.Thumbnail(ctx, params.Path)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return NewSuccessResponse(req.ID, ThumbnailResult{Path: params.Path, JPEG: data})

	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, fmt.Sprintf("method not found: %s", req.Method))
	}
}

// decodeParams unmarshals req.Params into v. On failure it returns the error
// response to send and false.
func decodeParams(req Request, v any) (Response, bool) {
	if len(req.Params) == 0 {
		return Response{}, true
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params: "+err.Error()), false
	}
	return Response{}, true
}

func (s *Server) status(ctx context.Context) StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	return StatusResult{
		Running: true,
		PID:     os.Getpid(),
		Uptime:  time.Since(started).Round(time.Second).String(),
		Status:  s.backend.Status(ctx),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// Close stops accepting connections. In-flight requests finish.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		err := s.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}

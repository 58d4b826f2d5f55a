package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Aman-CERP/memesearch/internal/app"
	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/search"
)

// JSON-RPC 2.0 method names.
const (
	MethodPing         = "ping"
	MethodStatus       = "status"
	MethodSearch       = "search"
	MethodSetRoots     = "set_roots"
	MethodAddFolder    = "add_folder"
	MethodRemoveFolder = "remove_folder"
	MethodFolders      = "folders"
	MethodStartSync    = "start_sync"
	MethodThumbnail    = "thumbnail"
)

// Standard JSON-RPC 2.0 error codes.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// Custom error codes for daemon-specific errors.
const (
	ErrCodeSearchFailed = -32002
	ErrCodeBusy         = -32003
	ErrCodeNotFound     = -32004
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      string          `json:"id"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      string          `json:"id"`
}

// Error represents a JSON-RPC 2.0 error. Data carries the memesearch error
// code (ERR_XXX_...) when there is one.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (e *Error) Error() string {
	if e.Data != "" {
		return fmt.Sprintf("[%s] %s", e.Data, e.Message)
	}
	return e.Message
}

// NewSuccessResponse creates a successful response. A result that cannot be
// encoded becomes an internal error.
func NewSuccessResponse(id string, result any) Response {
	data, err := json.Marshal(result)
	if err != nil {
		return NewErrorResponse(id, ErrCodeInternalError, "failed to encode result")
	}
	return Response{JSONRPC: "2.0", Result: data, ID: id}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id string, code int, message string) Response {
	return Response{
		JSONRPC: "2.0",
		Error:   &Error{Code: code, Message: message},
		ID:      id,
	}
}

// errorResponse maps a library error onto a JSON-RPC error.
func errorResponse(id string, err error) Response {
	code := merrors.GetCode(err)
	rpcCode := ErrCodeInternalError
	switch code {
	case merrors.ErrCodeQueryEmpty, merrors.ErrCodeInvalidInput, merrors.ErrCodeInvalidPath,
		merrors.ErrCodeRootMissing:
		rpcCode = ErrCodeInvalidParams
	case merrors.ErrCodeSyncBusy:
		rpcCode = ErrCodeBusy
	case merrors.ErrCodeFileNotFound:
		rpcCode = ErrCodeNotFound
	case merrors.ErrCodeSearchFailed, merrors.ErrCodeEmbeddingFailed,
		merrors.ErrCodeNetworkTimeout, merrors.ErrCodeNetworkUnavailable:
		rpcCode = ErrCodeSearchFailed
	}
	msg := err.Error()
	var me *merrors.Error
	if errors.As(err, &me) {
		msg = me.Message
	}
	resp := NewErrorResponse(id, rpcCode, msg)
	resp.Error.Data = code
	return resp
}

// SearchParams are the parameters for the search method.
type SearchParams struct {
	// Query is the search text (required).
	Query string `json:"query"`

	// Limit caps the number of results; 0 uses the daemon's configured limit.
	Limit int `json:"limit,omitempty"`

	// MinScore drops results scoring below it; 0 disables the cutoff.
	MinScore float64 `json:"min_score,omitempty"`

	// Explain adds the semantic and lexical components to each result.
	Explain bool `json:"explain,omitempty"`
}

// Validate checks that required fields are present.
func (p *SearchParams) Validate() error {
	if strings.TrimSpace(p.Query) == "" {
		return merrors.New(merrors.ErrCodeQueryEmpty, "query is required", nil)
	}
	if p.Limit < 0 {
		return merrors.New(merrors.ErrCodeInvalidInput, "limit must be non-negative", nil)
	}
	return nil
}

// SearchResult is one ranked image.
type SearchResult struct {
	Path       string  `json:"path"`
	Score      float64 `json:"score"`
	OCRPreview string  `json:"ocr_preview,omitempty"`

	// Populated only when Explain was requested.
	Semantic *float64 `json:"semantic,omitempty"`
	Lexical  *float64 `json:"lexical,omitempty"`
}

func toSearchResults(results []search.Result, explain bool) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{Path: r.Path, Score: r.Score, OCRPreview: r.OCRPreview}
		if explain {
			sem, lex := r.Semantic, r.Lexical
			out[i].Semantic, out[i].Lexical = &sem, &lex
		}
	}
	return out
}

// FolderParams name one folder.
type FolderParams struct {
	Path string `json:"path"`
}

// RootsParams replace the whole root set.
type RootsParams struct {
	Paths []string `json:"paths"`
}

// FolderChangeResult reports whether a folder operation changed the roots.
type FolderChangeResult struct {
	Changed bool     `json:"changed"`
	Folders []string `json:"folders"`
}

// FoldersResult lists the tracked roots.
type FoldersResult struct {
	Folders []string `json:"folders"`
}

// StartSyncResult reports whether a new pass was started.
type StartSyncResult struct {
	Started bool `json:"started"`
}

// ThumbnailParams name the image whose thumbnail is wanted.
type ThumbnailParams struct {
	Path string `json:"path"`
}

// ThumbnailResult carries the JPEG bytes, base64 encoded by encoding/json.
type ThumbnailResult struct {
	Path string `json:"path"`
	JPEG []byte `json:"jpeg"`
}

// StatusResult contains daemon and index status.
type StatusResult struct {
	Running bool   `json:"running"`
	PID     int    `json:"pid"`
	Uptime  string `json:"uptime"`

	app.Status
}

// PingResult is the response to a ping request.
type PingResult struct {
	Pong bool `json:"pong"`
}

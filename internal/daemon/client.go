package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
)

// pingTimeout bounds the liveness probe in IsRunning.
const pingTimeout = 2 * time.Second

// Client talks to a running daemon. Each call opens its own connection.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new daemon client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		socketPath: cfg.SocketPath,
		timeout:    timeout,
	}
}

// Connect establishes a connection to the daemon.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeNetworkUnavailable, "failed to connect to daemon", err).
			WithDetail("socket", c.socketPath)
	}
	return conn, nil
}

// IsRunning reports whether a daemon answers a ping. A socket left behind
// by a crashed daemon does not count.
func (c *Client) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return c.Ping(ctx) == nil
}

// Ping checks if the daemon is responsive.
func (c *Client) Ping(ctx context.Context) error {
	var out PingResult
	return c.call(ctx, MethodPing, nil, &out)
}

// Search ranks the daemon's index against params.Query.
func (c *Client) Search(ctx context.Context, params SearchParams) ([]SearchResult, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	var results []SearchResult
	if err := c.call(ctx, MethodSearch, params, &results); err != nil {
		return nil, err
	}
	return results, nil
}

// Status retrieves daemon and index status.
func (c *Client) Status(ctx context.Context) (*StatusResult, error) {
	var status StatusResult
	if err := c.call(ctx, MethodStatus, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Folders lists the tracked roots.
func (c *Client) Folders(ctx context.Context) ([]string, error) {
	var out FoldersResult
	if err := c.call(ctx, MethodFolders, nil, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

// SetRoots replaces the tracked roots and returns the normalized set.
func (c *Client) SetRoots(ctx context.Context, paths []string) ([]string, error) {
	var out FoldersResult
	if err := c.call(ctx, MethodSetRoots, RootsParams{Paths: paths}, &out); err != nil {
		return nil, err
	}
	return out.Folders, nil
}

// AddFolder starts tracking path.
func (c *Client) AddFolder(ctx context.Context, path string) (*FolderChangeResult, error) {
	var out FolderChangeResult
	if err := c.call(ctx, MethodAddFolder, FolderParams{Path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RemoveFolder stops tracking path.
func (c *Client) RemoveFolder(ctx context.Context, path string) (*FolderChangeResult, error) {
	var out FolderChangeResult
	if err := c.call(ctx, MethodRemoveFolder, FolderParams{Path: path}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StartSync asks the daemon for a background pass. It reports false when one
// was already running.
func (c *Client) StartSync(ctx context.Context) (bool, error) {
	var out StartSyncResult
	if err := c.call(ctx, MethodStartSync, nil, &out); err != nil {
		return false, err
	}
	return out.Started, nil
}

// Thumbnail fetches the JPEG thumbnail for path.
func (c *Client) Thumbnail(ctx context.Context, path string) ([]byte, error) {
	var out ThumbnailResult
	if err := c.call(ctx, MethodThumbnail, ThumbnailParams{Path: path}, &out); err != nil {
		return nil, err
	}
	return out.JPEG, nil
}

// call performs one request/response exchange and decodes the result into
// out. Daemon errors carrying a memesearch code come back as *merrors.Error.
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	req := Request{
		JSONRPC: "2.0",
		Method:  method,
		ID:      uuid.NewString(),
	}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to encode params: %w", err)
		}
		req.Params = data
	}

	conn, err := c.Connect()
	if err != nil {
		return err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return merrors.New(merrors.ErrCodeNetworkTimeout, method+" timed out", err)
		}
		return fmt.Errorf("failed to receive response: %w", err)
	}
	if resp.ID != req.ID {
		return fmt.Errorf("response id %q does not match request %q", resp.ID, req.ID)
	}
	if resp.Error != nil {
		if resp.Error.Data != "" {
			return merrors.New(resp.Error.Data, resp.Error.Message, nil)
		}
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

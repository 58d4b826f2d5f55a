package mcp

import (
	"context"
	"net/url"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const thumbnailScheme = "thumbnail"

// ThumbnailURI returns the resource URI serving the thumbnail of path.
func ThumbnailURI(path string) string {
	return (&url.URL{Scheme: thumbnailScheme, Path: path}).String()
}

// thumbnailPath extracts the image path from a thumbnail URI.
func thumbnailPath(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != thumbnailScheme || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "", false
	}
	return u.Path, true
}

// registerResources exposes thumbnails of indexed images as a resource
// template.
func (s *Server) registerResources() {
	s.mcp.AddResourceTemplate(&mcp.ResourceTemplate{
		Name:        "thumbnail",
		URITemplate: thumbnailScheme + "://{+path}",
		Description: "JPEG thumbnail of an indexed image, addressed by its absolute path",
		MIMEType:    "image/jpeg",
	}, func(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
		return s.readThumbnail(ctx, req.Params.URI)
	})
}

func (s *Server) readThumbnail(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	path, ok := thumbnailPath(uri)
	if !ok {
		return nil, NewResourceNotFoundError(uri)
	}

	data, err := s.backend.Thumbnail(ctx, path)
	if err != nil {
		if me := MapError(err); me.Code != ErrCodeFileNotFound {
			return nil, me
		}
		return nil, NewResourceNotFoundError(uri)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "image/jpeg",
			Blob:     data,
		}},
	}, nil
}

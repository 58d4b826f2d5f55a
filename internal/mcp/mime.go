package mcp

import (
	"path/filepath"
	"strings"
)

// mimeTypes maps supported image extensions to MIME types.
var mimeTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// MimeTypeForPath returns the image MIME type for path, or
// application/octet-stream when the extension is unknown.
func MimeTypeForPath(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Package scanner discovers image files under a folder root, honoring an
// extension allow-list, exclusion patterns and .memesearchignore files.
package scanner

import (
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// FileInfo describes one eligible image.
type FileInfo struct {
	Path    string    // Absolute path
	RelPath string    // Path relative to the scanned root
	Size    int64     // File size in bytes
	ModTime time.Time // Last modification time
}

// ScanOptions configures a scan.
type ScanOptions struct {
	// RootDir is the folder to walk recursively.
	RootDir string

	// Extensions lists eligible extensions including the dot (empty = DefaultExtensions).
	// Matching is case-insensitive.
	Extensions []string

	// ExcludePatterns are extra directory or file patterns to skip.
	ExcludePatterns []string

	// MaxFileSize skips larger files (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks includes symlinked files (default: false).
	FollowSymlinks bool
}

// ScanResult is streamed from Scan. Exactly one field is set. Unreadable
// names a directory or eligible file the walk could not inspect; callers
// must not treat anything at or below it as deleted.
type ScanResult struct {
	File       *FileInfo
	Unreadable string
	Error      error
}

// Listing is the complete result of a scan.
type Listing struct {
	Files      []FileInfo // Sorted by Path
	Unreadable []string   // Sorted
}

// DefaultMaxFileSize is the default maximum image size (100MB).
const DefaultMaxFileSize = 100 * 1024 * 1024

// DefaultExtensions are the image formats the embedding pipeline can decode.
var DefaultExtensions = []string{
	".jpg", ".jpeg", ".png", ".bmp", ".gif", ".webp", ".tif", ".tiff",
}

// extensionSet normalizes exts into a lowercase lookup set.
func extensionSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		set[e] = struct{}{}
	}
	return set
}

// Filter is the eligibility rule shared by full scans and single-file
// imports.
type Filter struct {
	exts    map[string]struct{}
	maxSize int64
}

// Filter returns the eligibility rule of o.
func (o *ScanOptions) Filter() Filter {
	maxSize := o.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return Filter{exts: extensionSet(o.Extensions), maxSize: maxSize}
}

// HasExtension reports whether path carries an allowed extension.
func (f Filter) HasExtension(path string) bool {
	_, ok := f.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Eligible reports whether a file with this path and stat result is indexed:
// an allowed extension, a regular file, non-empty and within the size limit.
func (f Filter) Eligible(path string, info fs.FileInfo) bool {
	if !f.HasExtension(path) || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() > 0 && info.Size() <= f.maxSize
}

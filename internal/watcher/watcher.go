package watcher

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/memesearch/internal/scanner"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory appeared.
	OpCreate Operation = iota
	// OpModify indicates an existing file was rewritten.
	OpModify
	// OpDelete indicates a file or directory disappeared.
	OpDelete
	// OpRename indicates a file or directory was moved away. The new name,
	// when it is inside a root, arrives as a separate OpCreate.
	OpRename
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// Removes reports whether the operation means the path is gone.
func (op Operation) Removes() bool {
	return op == OpDelete || op == OpRename
}

// FileEvent is one change below a watched root.
type FileEvent struct {
	// Path is the absolute path of the file or directory.
	Path string

	Operation Operation

	// IsDir is true when the path is a directory. It is only known for paths
	// that still exist.
	IsDir bool

	Timestamp time.Time
}

// Options configures the watcher.
type Options struct {
	// DebounceWindow is the quiet period before a batch is emitted.
	// Default: 2s
	DebounceWindow time.Duration

	// EventBufferSize is the number of batches buffered for the consumer.
	// Default: 16
	EventBufferSize int

	// Extensions lists the image extensions worth reporting
	// (empty = scanner.DefaultExtensions).
	Extensions []string
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  2 * time.Second,
		EventBufferSize: 16,
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if len(o.Extensions) == 0 {
		o.Extensions = scanner.DefaultExtensions
	}
	return o
}

// interesting decides whether an event for path is worth reporting.
// Image files always are; so are directories, and removals of paths without
// an extension since those may have been directories.
func interesting(path string, op Operation, isDir bool, exts map[string]struct{}) bool {
	if isDir {
		return true
	}
	base := filepath.Base(path)
	if strings.HasPrefix(base, "._") || strings.HasPrefix(base, ".#") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	if _, ok := exts[ext]; ok {
		return true
	}
	return ext == "" && op.Removes()
}

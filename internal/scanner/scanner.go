package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/ignore"
)

// Scanner discovers eligible images in a folder tree.
type Scanner struct{}

// New creates a new Scanner instance.
func New() *Scanner {
	return &Scanner{}
}

// Scan walks opts.RootDir and streams eligible images as they are found.
// The channel is closed when the walk completes or ctx is cancelled.
// A missing root is reported synchronously as a TransientIOError.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions) (<-chan ScanResult, error) {
	if opts == nil {
		opts = &ScanOptions{}
	}
	if opts.RootDir == "" {
		return nil, merrors.Validation("root directory is required", nil)
	}

	absRoot, err := filepath.Abs(opts.RootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, merrors.New(merrors.ErrCodeRootMissing, "folder root is not accessible", err).
			WithDetail("path", absRoot)
	}
	if !info.IsDir() {
		return nil, merrors.New(merrors.ErrCodeRootMissing, "folder root is not a directory", nil).
			WithDetail("path", absRoot)
	}

	results := make(chan ScanResult, 64)
	go func() {
		defer close(results)
		s.scan(ctx, absRoot, opts, results)
	}()
	return results, nil
}

// List runs Scan to completion. Sync needs the full list up front to report
// progress fractions, and the unreadable paths to avoid purging entries it
// could not see.
func (s *Scanner) List(ctx context.Context, opts *ScanOptions) (*Listing, error) {
	ch, err := s.Scan(ctx, opts)
	if err != nil {
		return nil, err
	}

	var (
		listing Listing
		walkErr error
	)
	for res := range ch {
		switch {
		case res.Error != nil:
			walkErr = res.Error
		case res.Unreadable != "":
			listing.Unreadable = append(listing.Unreadable, res.Unreadable)
		default:
			listing.Files = append(listing.Files, *res.File)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if walkErr != nil {
		return nil, walkErr
	}

	sort.Slice(listing.Files, func(i, j int) bool { return listing.Files[i].Path < listing.Files[j].Path })
	sort.Strings(listing.Unreadable)
	return &listing, nil
}

// scan performs the actual directory traversal.
func (s *Scanner) scan(ctx context.Context, absRoot string, opts *ScanOptions, results chan<- ScanResult) {
	rules := matcher(opts)
	filter := opts.Filter()
	send := func(res ScanResult) error {
		select {
		case results <- res:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			// WalkDir passes a nil entry only when the root itself failed.
			if d == nil || path == absRoot {
				return err
			}
			if sendErr := send(ScanResult{Unreadable: path}); sendErr != nil {
				return sendErr
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return nil
		}
		if relPath == "." {
			relPath = ""
		}

		if d.IsDir() {
			if relPath != "" && rules.Match(relPath, true) {
				return filepath.SkipDir
			}
			// An unreadable ignore file is skipped.
			_, _ = rules.LoadDir(path, filepath.ToSlash(relPath))
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 && !opts.FollowSymlinks {
			return nil
		}

		if !filter.HasExtension(path) || rules.Match(relPath, false) {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil // removed mid-walk, or a dangling link
			}
			return send(ScanResult{Unreadable: path})
		}
		if !filter.Eligible(path, info) {
			return nil
		}

		return send(ScanResult{File: &FileInfo{
			Path:    path,
			RelPath: relPath,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}})
	})

	if err != nil && err != context.Canceled {
		select {
		case results <- ScanResult{Error: err}:
		case <-ctx.Done():
		}
	}
}

// matcher builds the exclusion rules shared by every directory of a scan.
func matcher(opts *ScanOptions) *ignore.Matcher {
	m := ignore.New(DefaultExcludes...)
	for _, p := range opts.ExcludePatterns {
		m.Add(p, "")
	}
	return m
}

// Excluded reports whether path, inside root, would be skipped by a scan:
// it or a parent directory matches the configured patterns or an ignore
// file between root and path.
func Excluded(root, path string, patterns []string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	m := matcher(&ScanOptions{ExcludePatterns: patterns})
	for _, dir := range ignore.Chain(rel) {
		if dir != "" && m.Match(dir, true) {
			return true
		}
		_, _ = m.LoadDir(filepath.Join(root, filepath.FromSlash(dir)), dir)
	}
	return m.Match(rel, false)
}

// DefaultExcludes skips directories that never hold user images and
// OS-generated thumbnail and resource-fork files.
var DefaultExcludes = []string{
	".git/",
	"node_modules/",
	"@eaDir/",
	".thumbnails/",
	".Trash/",
	"$RECYCLE.BIN/",
	"._*",
	"Thumbs.db",
	".DS_Store",
}

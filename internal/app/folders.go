package app

import (
	"os"
	"path/filepath"
	"sort"

	merrors "github.com/Aman-CERP/memesearch/internal/errors"
	"github.com/Aman-CERP/memesearch/internal/store"
)

// NormalizeFolder returns the absolute, cleaned form of path.
func NormalizeFolder(path string) (string, error) {
	if path == "" {
		return "", merrors.New(merrors.ErrCodeInvalidPath, "folder path is empty", nil)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", merrors.New(merrors.ErrCodeInvalidPath, "cannot resolve folder path", err).WithDetail("path", path)
	}
	return filepath.Clean(abs), nil
}

// requireDir fails unless path is an existing directory.
func requireDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return merrors.New(merrors.ErrCodeRootMissing, "folder does not exist", err).WithDetail("path", path)
	}
	if !info.IsDir() {
		return merrors.New(merrors.ErrCodeInvalidPath, "not a directory", nil).WithDetail("path", path)
	}
	return nil
}

// CollapseFolders removes duplicates and folders nested inside another
// folder of the set, and returns the rest in lexical order.
func CollapseFolders(folders []string) []string {
	sorted := append([]string(nil), folders...)
	// Parents sort before their children when compared by length.
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) < len(sorted[j]) })

	kept := make([]string, 0, len(sorted))
	for _, f := range sorted {
		if f == "" {
			continue
		}
		covered := false
		for _, k := range kept {
			if f == k || store.IsUnder(f, k) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, f)
		}
	}
	sort.Strings(kept)
	return kept
}

// withFolder returns roots after adding folder: a no-op when a tracked root
// already covers it, and replacing any tracked roots nested inside it.
func withFolder(roots []string, folder string) ([]string, bool) {
	for _, r := range roots {
		if r == folder || store.IsUnder(folder, r) {
			return roots, false
		}
	}
	return CollapseFolders(append(append([]string(nil), roots...), folder)), true
}

// withoutFolder returns roots minus folder.
func withoutFolder(roots []string, folder string) ([]string, bool) {
	out := make([]string, 0, len(roots))
	for _, r := range roots {
		if r != folder {
			out = append(out, r)
		}
	}
	return out, len(out) != len(roots)
}

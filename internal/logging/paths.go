package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the active log file inside the log directory.
const FileName = "memesearch.log"

// LogPath returns the active log file for a log directory.
func LogPath(dir string) string {
	return filepath.Join(dir, FileName)
}

// FindLogFile resolves the file to view: an explicit path if given,
// otherwise the active log in dir.
func FindLogFile(dir, explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("log file not found: %s", explicit)
		}
		return explicit, nil
	}

	path := LogPath(dir)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file found. Run `memesearch serve` or `memesearch sync` first.\nExpected at: %s", path)
	}
	return path, nil
}

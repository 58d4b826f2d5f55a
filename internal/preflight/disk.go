package preflight

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"syscall"
)

// MinDiskSpaceBytes is the free space needed for the index and thumbnails.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace reports the free space on the filesystem holding dataDir
// next to what the data directory already uses. Less than MinDiskSpaceBytes
// fails; less than the current footprint warns, since rebuilding the index
// or thumbnail cache needs about that much again.
func (c *Checker) CheckDiskSpace(dataDir string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	free, err := freeBytes(dataDir)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}
	used := dirBytes(dataDir)
	result.Message = fmt.Sprintf("%s free, %s used by memesearch", formatBytes(free), formatBytes(used))

	switch {
	case free < MinDiskSpaceBytes:
		result.Status = StatusFail
		result.Details = fmt.Sprintf("At least %s must be free", formatBytes(MinDiskSpaceBytes))
	case free < used:
		result.Status = StatusWarn
		result.Details = "A rebuild of the index or thumbnail cache may not fit"
	default:
		result.Status = StatusPass
	}
	return result
}

func freeBytes(dir string) (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}

// dirBytes sums regular file sizes under dir. Unreadable entries count as 0.
func dirBytes(dir string) uint64 {
	var total uint64
	_ = filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += uint64(info.Size())
		}
		return nil
	})
	return total
}

var byteUnits = []string{"KB", "MB", "GB", "TB"}

// formatBytes renders n with one decimal in the largest binary unit not
// exceeding it.
func formatBytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d bytes", n)
	}
	v := float64(n) / 1024
	unit := 0
	for v >= 1024 && unit < len(byteUnits)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%.1f %s", v, byteUnits[unit])
}

package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the descriptor limit below which the watcher may
// run out of handles on large libraries.
const MinFileDescriptors = 1024

// CheckFileDescriptors checks the open file limit. A low limit only fails
// the run when the watcher is enabled.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: c.cfg.Sync.Watch,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		if !result.Required {
			result.Status = StatusWarn
		}
		result.Details = "Run 'ulimit -n 10240' or set sync.watch: false"
		return result
	}
	result.Status = StatusPass
	return result
}

package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Aman-CERP/memesearch/internal/app"
	"github.com/Aman-CERP/memesearch/internal/async"
)

// DaemonInfo describes the running daemon, when there is one.
type DaemonInfo struct {
	PID    int    `json:"pid"`
	Uptime string `json:"uptime"`
	Socket string `json:"socket"`
}

// StatusInfo is everything the status command shows.
type StatusInfo struct {
	app.Status
	Daemon *DaemonInfo `json:"daemon,omitempty"`
}

// StatusRenderer displays index status.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render displays status info to the terminal.
func (r *StatusRenderer) Render(info StatusInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("memesearch • "+info.DataDir))

	_, _ = fmt.Fprintf(r.out, "  Images:      %d\n", info.Entries)
	_, _ = fmt.Fprintf(r.out, "  Index size:  %s\n", FormatBytes(info.IndexBytes))
	_, _ = fmt.Fprintf(r.out, "  Thumbnails:  %d cached\n", info.Thumbnails)
	_, _ = fmt.Fprintf(r.out, "  Model:       %s (%d dims)\n", info.Model, info.Dimensions)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Folders:")
	if len(info.Folders) == 0 {
		_, _ = fmt.Fprintf(r.out, "    %s\n", r.styles.Dim.Render("none (memesearch folders add <dir>)"))
	}
	for _, f := range info.Folders {
		_, _ = fmt.Fprintf(r.out, "    %s\n", f)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Sync:        %s\n", r.renderSync(info.Sync))
	if !info.Sync.LastFinished.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Last sync:   %s\n", formatTime(info.Sync.LastFinished))
	}
	if res := info.Sync.LastResult; res != nil {
		_, _ = fmt.Fprintf(r.out, "               %d indexed, %d removed, %d failed\n", res.Indexed, res.Removed, res.Failed)
	}
	if info.Sync.ErrorMessage != "" {
		_, _ = fmt.Fprintf(r.out, "  Last error:  %s\n", r.styles.Error.Render(info.Sync.ErrorMessage))
	}
	if info.Interrupted {
		_, _ = fmt.Fprintf(r.out, "  %s\n", r.styles.Warning.Render("The previous sync was interrupted; the next pass resumes it."))
	}
	_, _ = fmt.Fprintln(r.out)

	if q := info.Searches; q.Searches > 0 {
		_, _ = fmt.Fprintf(r.out, "  Searches:    %d (%.0f%% with no results, median %s)\n",
			q.Searches, q.ZeroResultPercentage(), q.MedianLatency.Round(time.Millisecond))
		if len(q.TopTerms) > 0 {
			terms := make([]string, len(q.TopTerms))
			for i, tc := range q.TopTerms {
				terms[i] = fmt.Sprintf("%s (%d)", tc.Term, tc.Count)
			}
			_, _ = fmt.Fprintf(r.out, "  Top terms:   %s\n", strings.Join(terms, ", "))
		}
		_, _ = fmt.Fprintln(r.out)
	}

	if info.Daemon != nil {
		_, _ = fmt.Fprintf(r.out, "  Daemon:      %s (pid %d, up %s)\n", r.styles.Success.Render("running"), info.Daemon.PID, info.Daemon.Uptime)
		watch := r.styles.Warning.Render("off")
		if info.Watching {
			watch = r.styles.Success.Render("on")
		}
		_, _ = fmt.Fprintf(r.out, "  Watcher:     %s\n", watch)
	} else {
		_, _ = fmt.Fprintf(r.out, "  Daemon:      %s\n", r.styles.Warning.Render("stopped"))
	}
	return nil
}

// RenderJSON outputs status as JSON.
func (r *StatusRenderer) RenderJSON(info StatusInfo) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(info)
}

func (r *StatusRenderer) renderSync(s async.ProgressSnapshot) string {
	switch async.SyncStatus(s.Status) {
	case async.StatusSyncing:
		return r.styles.Active.Render(fmt.Sprintf("syncing %.0f%%", s.ProgressPct))
	case async.StatusReady:
		return r.styles.Success.Render("ready")
	case async.StatusError:
		return r.styles.Error.Render("error")
	default:
		return r.styles.Dim.Render(s.Status)
	}
}

// formatTime formats a time relative to now.
func formatTime(t time.Time) string {
	diff := time.Since(t)
	plural := func(n int, unit string) string {
		if n == 1 {
			return "1 " + unit + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, unit)
	}
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return plural(int(diff.Hours()/24), "day")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws an interactive progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *syncModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}
	tracker := NewProgressTracker()
	model := newSyncModel(tracker, cfg.Title, GetStyles(cfg.NoColor))
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)
	r.started = true

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Update(event.Fraction, event.CurrentFile)
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer. It waits briefly for the final frame.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program == nil {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-time.After(500 * time.Millisecond):
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type completeMsg CompletionStats
type tickMsg time.Time

// syncModel is the bubbletea model for a sync pass.
type syncModel struct {
	tracker  *ProgressTracker
	title    string
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newSyncModel(tracker *ProgressTracker, title string, styles Styles) *syncModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Header

	bar := progress.New(
		progress.WithSolidFill(ColorAccent),
		progress.WithWidth(50),
		progress.WithoutPercentage(),
	)

	return &syncModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar:     bar,
		styles:  styles,
	}
}

// Init implements tea.Model.
func (m *syncModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *syncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The pass keeps running in the background; only the view exits.
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)

	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit

	case tickMsg:
		return m, tickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model.
func (m *syncModel) View() string {
	if m.complete {
		return m.renderComplete()
	}
	if m.quitting {
		return m.styles.Dim.Render("Detached; the sync continues in the background.") + "\n"
	}

	width := max(m.width-4, 40)
	stats := m.tracker.Stats()

	var lines []string
	title := "memesearch sync"
	if m.title != "" {
		title += " • " + m.title
	}
	lines = append(lines, m.spinner.View()+" "+m.styles.Header.Render(title))
	lines = append(lines, m.styles.Border.Render(strings.Repeat("─", width)))

	pct := m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Fraction*100))
	lines = append(lines, m.bar.ViewAs(stats.Fraction)+"  "+pct)

	meta := []string{m.styles.Label.Render("Elapsed: " + formatDuration(stats.Elapsed))}
	if stats.ETA > 0 {
		meta = append(meta, m.styles.Label.Render("ETA: "+formatDuration(stats.ETA)))
	}
	meta = append(meta, m.styles.Label.Render(fmt.Sprintf("%.1f files/s", stats.Rate)))
	lines = append(lines, strings.Join(meta, m.styles.Dim.Render("  •  ")))

	lines = append(lines, m.styles.Header.Render(Sparkline(m.tracker.History(), max(width-12, 10)))+
		" "+m.styles.Dim.Render("throughput"))

	if stats.CurrentFile != "" {
		lines = append(lines, m.styles.Dim.Render(truncateFilePath(stats.CurrentFile, width-2)))
	}

	var status []string
	if stats.WarnCount > 0 {
		status = append(status, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", stats.WarnCount)))
	}
	if stats.ErrorCount > 0 {
		status = append(status, m.styles.Error.Render(fmt.Sprintf("✗ %d errors", stats.ErrorCount)))
	}
	status = append(status, m.styles.Dim.Render("q to detach"))

	return strings.Join(lines, "\n") + "\n" + strings.Join(status, m.styles.Dim.Render("  │  ")) + "\n"
}

func (m *syncModel) renderComplete() string {
	s := m.stats
	row := func(label string, v int) string {
		return fmt.Sprintf("%s %s", m.styles.Label.Render(fmt.Sprintf("%-10s", label)), m.styles.Active.Render(fmt.Sprint(v)))
	}

	lines := []string{
		m.styles.Success.Render("✓ Sync complete"),
		"",
		row("Scanned:", s.Scanned),
		row("Indexed:", s.Indexed),
		row("Unchanged:", s.Skipped),
		row("Removed:", s.Removed),
		fmt.Sprintf("%s %s", m.styles.Label.Render(fmt.Sprintf("%-10s", "Duration:")), m.styles.Active.Render(formatDuration(s.Duration))),
	}
	if s.Failed > 0 {
		lines = append(lines, m.styles.Error.Render(fmt.Sprintf("✗ %d images failed", s.Failed)))
	}
	if s.OCRFailures > 0 {
		lines = append(lines, m.styles.Warning.Render(fmt.Sprintf("⚠ %d OCR failures", s.OCRFailures)))
	}

	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccentDim)).
		Padding(0, 2).
		Width(max(m.width-4, 40))
	return panel.Render(strings.Join(lines, "\n")) + "\n"
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		m, s := int(d.Minutes()), int(d.Seconds())%60
		if s == 0 {
			return fmt.Sprintf("%dm", m)
		}
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncateFilePath shortens path to maxLen runes, keeping the file name.
func truncateFilePath(path string, maxLen int) string {
	r := []rune(path)
	if len(r) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return "..."
	}
	return "..." + string(r[len(r)-maxLen+3:])
}

var _ Renderer = (*TUIRenderer)(nil)

package ui

import (
	"context"
	"errors"
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

// TUIRenderer draws an interactive bubbletea view of an import.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *importModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer fails when the output is not a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a terminal")
	}
	tracker := NewProgressTracker()
	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   newImportModel(tracker, cfg.GraphDir, GetStyles(cfg.NoColor)),
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
	r.tracker.Apply(event)
	r.send(refreshMsg{})
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.tracker.AddError(event)
	r.send(refreshMsg{})
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.tracker.SetStage(StageComplete, stats.Total)
	r.send(completeMsg(stats))
}

// Stop implements Renderer. It waits up to two seconds for the program to
// exit.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program == nil {
		return nil
	}

	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

func (r *TUIRenderer) send(msg tea.Msg) {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()
	if program != nil {
		program.Send(msg)
	}
}

type (
	refreshMsg  struct{}
	completeMsg CompletionStats
	tickMsg     time.Time
)

type importModel struct {
	tracker  *ProgressTracker
	graphDir string
	styles   Styles
	spinner  spinner.Model
	bar      progress.Model
	width    int
	quitting bool
	complete bool
	stats    CompletionStats
}

func newImportModel(tracker *ProgressTracker, graphDir string, styles Styles) *importModel {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = styles.Accent

	return &importModel{
		tracker:  tracker,
		graphDir: graphDir,
		styles:   styles,
		spinner:  s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(40),
			progress.WithoutPercentage(),
		),
		width: 80,
	}
}

func (m *importModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *importModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-24, 20)
	case completeMsg:
		m.complete = true
		m.stats = CompletionStats(msg)
		return m, tea.Quit
	case tickMsg:
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *importModel) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}
	width := max(m.width-4, 40)
	if m.complete {
		return m.viewComplete(width)
	}

	stats := m.tracker.Stats()
	var lines []string
	if stats.Stage == StageDiscovering {
		lines = append(lines, m.spinner.View()+" Discovering pages...")
	} else {
		lines = append(lines,
			fmt.Sprintf("%s  %s", m.bar.ViewAs(stats.Progress), m.styles.Accent.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100))),
			m.styles.Label.Render(fmt.Sprintf("%d / %d files", stats.Current, stats.Total)),
			m.viewSpeed(stats),
			m.styles.Accent.Render(m.tracker.RenderSparkline(width-2)),
		)
		if stats.CurrentFile != "" {
			lines = append(lines, m.styles.Dim.Render(truncateFilePath(stats.CurrentFile, width-2)))
		}
	}

	title := "blockindex import"
	if m.graphDir != "" {
		title += " • " + m.graphDir
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorBorder)).
		Padding(0, 1).
		Width(width)

	status := m.styles.Dim.Render("q to quit")
	if stats.ErrorCount > 0 {
		status = m.styles.Error.Render(fmt.Sprintf("✗ %d failed", stats.ErrorCount)) + m.styles.Dim.Render("  │  q to quit")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Title.Render(title),
		panel.Render(strings.Join(lines, "\n")),
		status,
	)
}

func (m *importModel) viewSpeed(stats ProgressStats) string {
	line := fmt.Sprintf("%.0f files/s", stats.Speed.Current)
	if stats.Speed.Avg > 0 {
		line += fmt.Sprintf(" (avg %.0f, peak %.0f)", stats.Speed.Avg, stats.Speed.Peak)
	}
	if stats.ETA > 0 {
		line += "  •  ETA " + formatDuration(stats.ETA)
	}
	return m.styles.Label.Render(line)
}

func (m *importModel) viewComplete(width int) string {
	header := m.styles.Title.Render("✓ Import complete")
	switch {
	case m.stats.Cancelled:
		header = m.styles.Warning.Render("⚠ Import cancelled")
	case m.stats.Err != nil:
		header = m.styles.Error.Render("✗ Import failed")
	}

	lines := []string{
		header,
		"",
		row(m.styles, "Imported", fmt.Sprintf("%d of %d", m.stats.Succeeded, m.stats.Total)),
		row(m.styles, "Unchanged", fmt.Sprint(m.stats.Unchanged)),
		row(m.styles, "Duration", formatDuration(m.stats.Duration)),
	}
	if m.stats.Degraded > 0 {
		lines = append(lines, row(m.styles, "Text only", fmt.Sprint(m.stats.Degraded)))
	}
	if m.stats.Failed > 0 {
		lines = append(lines, "", m.styles.Error.Render(fmt.Sprintf("✗ %d failed", m.stats.Failed)))
		for _, e := range m.tracker.Errors() {
			lines = append(lines, m.styles.Dim.Render("  "+truncateFilePath(e.File, width-6)))
		}
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorAccent)).
		Padding(1, 2).
		Width(width).
		Render(strings.Join(lines, "\n")) + "\n"
}

func row(s Styles, label, value string) string {
	return s.Label.Render(fmt.Sprintf("%-10s", label+":")) + " " + s.Accent.Render(value)
}

// formatDuration renders d as "42s", "3m 5s" or "1h 2m".
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
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}
	i := strings.LastIndex(path, "/")
	name := path[i+1:]
	if i < 0 || len(name)+4 > maxLen {
		return "..." + path[len(path)-maxLen+3:]
	}
	keep := maxLen - len(name) - 4
	dir := path[:i]
	return "..." + dir[len(dir)-keep:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)

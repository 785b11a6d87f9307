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

// TUIRenderer draws a live progress panel with bubbletea.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *runModel
	tracker *ProgressTracker
	started bool
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not
// a terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, fmt.Errorf("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newRunModel(tracker, cfg.Title)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

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

	var opts []tea.ProgramOption
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	// The pipeline owns SIGINT through its context; keep bubbletea off stdin.
	opts = append(opts, tea.WithInput(nil), tea.WithContext(ctx))

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
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Stage != r.tracker.Stats().Stage {
		r.tracker.SetStage(event.Stage, event.Total)
	}
	r.tracker.Update(event.Current, event.CurrentFile)

	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// AddError implements Renderer.
func (r *TUIRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.AddError(event)
	if r.program != nil {
		r.program.Send(errorMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tracker.SetStage(StageComplete, 0)
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
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

type (
	progressMsg ProgressEvent
	errorMsg    ErrorEvent
	completeMsg CompletionStats
	tickMsg     time.Time
)

// runModel is the bubbletea model of one vectorize run.
type runModel struct {
	tracker  *ProgressTracker
	title    string
	width    int
	complete bool
	stats    CompletionStats
	spinner  spinner.Model
	bar      progress.Model
	styles   Styles
}

func newRunModel(tracker *ProgressTracker, title string) *runModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorAccent))

	return &runModel{
		tracker: tracker,
		title:   title,
		width:   80,
		spinner: s,
		bar: progress.New(
			progress.WithSolidFill(ColorAccent),
			progress.WithWidth(50),
			progress.WithoutPercentage(),
		),
		styles: DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *runModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *runModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-20, 20)
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

// View implements tea.Model.
func (m *runModel) View() string {
	width := max(m.width-4, 40)
	if m.complete {
		return m.renderComplete(width)
	}

	st := m.tracker.Stats()
	sections := []string{
		m.renderStages(st.Stage),
		m.styles.Border.Render(strings.Repeat("─", width)),
		m.renderProgress(st),
	}
	if st.CurrentFile != "" {
		sections = append(sections, m.styles.Dim.Render(truncatePath(st.CurrentFile, width-2)))
	}

	title := "refvec"
	if m.title != "" {
		title = "refvec • " + m.title
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(ColorDarkGray)).
		Padding(0, 1).
		Width(width)

	return lipgloss.JoinVertical(lipgloss.Left,
		m.styles.Header.Render(title),
		panel.Render(strings.Join(sections, "\n")),
	) + "\n" + m.renderStatusBar(st)
}

func (m *runModel) renderStages(current Stage) string {
	stages := []Stage{StageScanning, StageCleanup, StageExtracting, StageIndexing}
	names := map[Stage]string{
		StageScanning:   "Scan",
		StageCleanup:    "Clean",
		StageExtracting: "Extract",
		StageIndexing:   "Index",
	}

	parts := make([]string, 0, len(stages))
	for _, s := range stages {
		switch {
		case s < current:
			parts = append(parts, m.styles.Done.Render("● "+names[s]))
		case s == current:
			parts = append(parts, m.styles.Active.Render(m.spinner.View()+" "+names[s]))
		default:
			parts = append(parts, m.styles.Dim.Render("○ "+names[s]))
		}
	}
	return strings.Join(parts, m.styles.Dim.Render(" → "))
}

func (m *runModel) renderProgress(st ProgressStats) string {
	if st.Total == 0 {
		return fmt.Sprintf("%s %s...", m.spinner.View(), st.Stage)
	}

	line := fmt.Sprintf("%s  %s", m.bar.ViewAs(st.Progress),
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", st.Progress*100)))
	count := fmt.Sprintf("%d / %d files", st.Current, st.Total)
	if st.ETA > 0 {
		count += "  •  ETA " + formatDuration(st.ETA)
	}
	return line + "\n" + m.styles.Label.Render(count)
}

func (m *runModel) renderStatusBar(st ProgressStats) string {
	var parts []string
	if st.WarnCount > 0 {
		parts = append(parts, m.styles.Warning.Render(fmt.Sprintf("⚠ %d warnings", st.WarnCount)))
	}
	if st.ErrorCount > 0 {
		parts = append(parts, m.styles.Error.Render(fmt.Sprintf("✗ %d failed", st.ErrorCount)))
	}
	if len(parts) == 0 {
		return m.styles.Dim.Render("ctrl+c to stop after the current file")
	}
	return strings.Join(parts, m.styles.Dim.Render("  │  "))
}

func (m *runModel) renderComplete(width int) string {
	label := func(s string) string { return m.styles.Label.Render(fmt.Sprintf("%-10s", s)) }
	value := func(n int) string { return m.styles.Active.Render(fmt.Sprintf("%d", n)) }

	header := m.styles.Success.Render("✓ Vectorize complete")
	if m.stats.Failed > 0 {
		header = m.styles.Warning.Render(fmt.Sprintf("⚠ Vectorize finished with %d failed", m.stats.Failed))
	}

	lines := []string{
		header,
		"",
		label("Processed") + " " + value(m.stats.Processed),
		label("Skipped") + " " + value(m.stats.Skipped),
		label("Failed") + " " + value(m.stats.Failed),
		label("Deleted") + " " + value(m.stats.Deleted),
		label("Chunks") + " " + value(m.stats.Chunks),
		label("Duration") + " " + m.styles.Active.Render(formatDuration(m.stats.Duration)),
	}

	border := ColorAccent
	if m.stats.Failed > 0 {
		border = ColorYellow
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(border)).
		Padding(1, 2).
		Width(width).
		Render(strings.Join(lines, "\n")) + "\n"
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		if s := int(d.Seconds()) % 60; s != 0 {
			return fmt.Sprintf("%dm %ds", int(d.Minutes()), s)
		}
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

// truncatePath keeps the file name and as much of its directory as fits.
func truncatePath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}
	if maxLen < 4 {
		return "..."
	}

	i := strings.LastIndex(path, "/")
	name := path[i+1:]
	if len(name)+4 > maxLen {
		return "..." + name[len(name)-maxLen+3:]
	}
	keep := maxLen - len(name) - 4
	dir := path[:max(i, 0)]
	return "..." + dir[len(dir)-keep:] + "/" + name
}

var _ Renderer = (*TUIRenderer)(nil)

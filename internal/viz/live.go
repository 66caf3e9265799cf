package viz

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/gmxflow/internal/fold"
)

const (
	chartWidth  = 50
	chartHeight = 8
	tableRows   = 8
)

// StepMsg carries one completed iteration of a replica.
type StepMsg struct {
	Replica int
	Step    fold.Step
}

// StatusMsg reports a pipeline stage change of a replica.
type StatusMsg struct {
	Replica int
	Status  string
}

// DoneMsg reports that a replica finished. State may be nil when the
// replica failed before its loop started.
type DoneMsg struct {
	Replica int
	State   *fold.State
	Err     error
}

type TickMsg time.Time

type replicaView struct {
	index  int
	status string
	steps  []fold.Step
	done   bool
	native bool
	err    error
}

// Model is the live view of a fold workflow.
type Model struct {
	title         string
	threshold     float64
	maxIterations int
	replicas      map[int]*replicaView
	order         []int
	selected      int
	started       time.Time
	frame         int
	theme         Theme
}

// NewModel prepares views for the given replica indices.
func NewModel(title string, threshold float64, maxIterations int, replicas []int) Model {
	m := Model{
		title:         title,
		threshold:     threshold,
		maxIterations: maxIterations,
		replicas:      make(map[int]*replicaView, len(replicas)),
		started:       time.Now(),
		theme:         Themes[0],
	}
	for _, idx := range replicas {
		m.replicas[idx] = &replicaView{index: idx, status: "waiting"}
		m.order = append(m.order, idx)
	}
	sort.Ints(m.order)
	return m
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/4, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tick()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "right", "l":
			if len(m.order) > 0 {
				m.selected = (m.selected + 1) % len(m.order)
			}
		case "shift+tab", "left", "h":
			if len(m.order) > 0 {
				m.selected = (m.selected - 1 + len(m.order)) % len(m.order)
			}
		case "t":
			m.theme = NextTheme(m.theme)
		}
	case StepMsg:
		r := m.replica(msg.Replica)
		r.steps = append(r.steps, msg.Step)
		r.status = fmt.Sprintf("iteration %d", msg.Step.Iteration)
		if msg.Step.Native {
			r.native = true
		}
	case StatusMsg:
		m.replica(msg.Replica).status = msg.Status
	case DoneMsg:
		r := m.replica(msg.Replica)
		r.done = true
		r.err = msg.Err
		switch {
		case msg.Err != nil:
			r.status = "failed"
		case msg.State != nil && msg.State.Converged:
			r.status = "native"
		default:
			r.status = "finished"
		}
		if m.AllDone() {
			return m, tea.Quit
		}
	case TickMsg:
		m.frame++
		return m, tick()
	}
	return m, nil
}

func (m *Model) replica(idx int) *replicaView {
	r, ok := m.replicas[idx]
	if !ok {
		r = &replicaView{index: idx, status: "waiting"}
		m.replicas[idx] = r
		m.order = append(m.order, idx)
		sort.Ints(m.order)
	}
	return r
}

// AllDone reports whether every known replica finished.
func (m Model) AllDone() bool {
	if len(m.replicas) == 0 {
		return false
	}
	for _, r := range m.replicas {
		if !r.done {
			return false
		}
	}
	return true
}

// Steps returns the iterations received for a replica.
func (m Model) Steps(replica int) []fold.Step {
	if r, ok := m.replicas[replica]; ok {
		return r.steps
	}
	return nil
}

func (m Model) View() string {
	var s strings.Builder

	title := lipgloss.NewStyle().Bold(true).Foreground(m.theme.Primary).Render("gmxflow · " + m.title)
	s.WriteString(title + "  " + Subtle.Render(time.Since(m.started).Truncate(time.Second).String()) + "\n\n")
	s.WriteString(m.tabs() + "\n")
	s.WriteString(Separator(chartWidth+10) + "\n")

	if len(m.order) > 0 {
		r := m.replicas[m.order[m.selected%len(m.order)]]
		s.WriteString(m.replicaPanel(r))
	}

	s.WriteString("\n" + KeyHint.Render("tab: replica  t: theme  q: close view") + "\n")
	return s.String()
}

func (m Model) tabs() string {
	parts := make([]string, 0, len(m.order))
	for i, idx := range m.order {
		r := m.replicas[idx]
		label := fmt.Sprintf("replica-%02d %s", idx, m.badge(r))
		if i == m.selected%len(m.order) {
			parts = append(parts, TabActive.Foreground(m.theme.Secondary).Render(label))
		} else {
			parts = append(parts, TabInactive.Render(label))
		}
	}
	return strings.Join(parts, "  ")
}

func (m Model) badge(r *replicaView) string {
	switch {
	case r.err != nil:
		return StatusFailed.Render("✗")
	case r.native:
		return StatusNative.Render("✓")
	case r.done:
		return Subtle.Render("■")
	default:
		spinner := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		return StatusRunning.Render(spinner[m.frame%len(spinner)])
	}
}

func (m Model) replicaPanel(r *replicaView) string {
	var s strings.Builder

	status := StatusRunning
	switch {
	case r.err != nil:
		status = StatusFailed
	case r.native:
		status = StatusNative
	}
	s.WriteString(MetricLabel.Render("Status") + status.Render(r.status) + "\n")
	if r.err != nil {
		s.WriteString(StatusFailed.Render(r.err.Error()) + "\n")
	}

	values := make([]float64, len(r.steps))
	for i, step := range r.steps {
		values[i] = step.Metric
	}

	if n := len(r.steps); n > 0 {
		last := r.steps[n-1]
		s.WriteString(MetricLabel.Render("Iteration") + MetricValue.Render(fmt.Sprintf("%d", last.Iteration)))
		if m.maxIterations > 0 {
			s.WriteString("  " + ProgressBar(last.Iteration, m.maxIterations, 20))
		}
		s.WriteString("\n")
		s.WriteString(MetricLabel.Render("RMSD") + MetricValue.Render(fmt.Sprintf("%.4f nm", last.Metric)) + "\n")
		s.WriteString(MetricLabel.Render("Best") + MetricValue.Render(fmt.Sprintf("%.4f nm", last.Best)) + "\n")
		s.WriteString(MetricLabel.Render("Threshold") + MetricValue.Render(fmt.Sprintf("%.4f nm", m.threshold)) + "\n")
		s.WriteString(MetricLabel.Render("Trend") + Sparkline(values, m.threshold, 30) + "\n")
	}

	if len(values) >= 2 {
		line := make([]float64, len(values))
		for i := range line {
			line[i] = m.threshold
		}
		chart := asciigraph.PlotMany(
			[][]float64{values, line},
			asciigraph.Height(chartHeight),
			asciigraph.Width(chartWidth),
			asciigraph.Precision(3),
			asciigraph.SeriesColors(asciigraph.Cyan, asciigraph.Red),
			asciigraph.Caption("RMSD per iteration"),
		)
		s.WriteString("\n" + chart + "\n")
	}

	if len(r.steps) > 0 {
		s.WriteString("\n" + Panel.Render(m.table(r.steps)) + "\n")
	}
	return s.String()
}

func (m Model) table(steps []fold.Step) string {
	if len(steps) > tableRows {
		steps = steps[len(steps)-tableRows:]
	}
	var s strings.Builder
	s.WriteString(Subtle.Render(fmt.Sprintf("%-6s %-10s %-10s %-8s %s", "ITER", "RMSD", "BEST", "NATIVE", "ELAPSED")))
	for _, step := range steps {
		native := "-"
		if step.Native {
			native = lipgloss.NewStyle().Foreground(m.theme.Native).Render("yes")
		}
		fmt.Fprintf(&s, "\n%-6d %-10.4f %-10.4f %-8s %s",
			step.Iteration, step.Metric, step.Best, native, step.Elapsed.Truncate(time.Second))
	}
	return s.String()
}

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Feed forwards fold iterations of one replica to a running program.
type Feed struct {
	to      Sender
	replica int
}

func NewFeed(to Sender, replica int) *Feed {
	return &Feed{to: to, replica: replica}
}

func (f *Feed) OnIteration(step fold.Step) {
	f.to.Send(StepMsg{Replica: f.replica, Step: step})
}

func (f *Feed) Status(status string) {
	f.to.Send(StatusMsg{Replica: f.replica, Status: status})
}

func (f *Feed) Done(st *fold.State, err error) {
	f.to.Send(DoneMsg{Replica: f.replica, State: st, Err: err})
}

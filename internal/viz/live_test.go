package viz

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/gmxflow/internal/fold"
)

type recorder struct {
	msgs []tea.Msg
}

func (r *recorder) Send(msg tea.Msg) { r.msgs = append(r.msgs, msg) }

func feed(m Model, msgs ...tea.Msg) (Model, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

func TestModelRecordsSteps(t *testing.T) {
	m := NewModel("fs-peptide", 0.3, 4, []int{0, 1})

	m, _ = feed(m,
		StepMsg{Replica: 0, Step: fold.Step{Iteration: 1, Metric: 0.9, Best: 0.9}},
		StepMsg{Replica: 0, Step: fold.Step{Iteration: 2, Metric: 0.25, Best: 0.25, Native: true}},
		StepMsg{Replica: 1, Step: fold.Step{Iteration: 1, Metric: 0.8, Best: 0.8}},
	)

	if len(m.Steps(0)) != 2 || len(m.Steps(1)) != 1 {
		t.Fatalf("unexpected step counts %d/%d", len(m.Steps(0)), len(m.Steps(1)))
	}

	view := m.View()
	for _, want := range []string{"replica-00", "replica-01", "0.2500", "RMSD per iteration"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModelQuitsWhenAllDone(t *testing.T) {
	m := NewModel("demo", 0.3, 0, []int{0, 1})

	m, cmd := feed(m, DoneMsg{Replica: 0, State: &fold.State{Converged: true}})
	if m.AllDone() || cmd != nil {
		t.Fatal("should keep running until every replica is done")
	}

	m, cmd = feed(m, DoneMsg{Replica: 1, Err: errors.New("mdrun exited with status 1")})
	if !m.AllDone() {
		t.Fatal("expected all replicas done")
	}
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
	if !strings.Contains(m.View(), "failed") && !strings.Contains(m.View(), "native") {
		t.Error("view should show replica outcome")
	}
}

func TestModelKeys(t *testing.T) {
	m := NewModel("demo", 0.3, 0, []int{0, 1, 2})

	m, _ = feed(m, tea.KeyMsg{Type: tea.KeyTab}, tea.KeyMsg{Type: tea.KeyTab})
	if m.selected != 2 {
		t.Errorf("expected third replica selected, got %d", m.selected)
	}
	m, _ = feed(m, tea.KeyMsg{Type: tea.KeyTab})
	if m.selected != 0 {
		t.Errorf("expected selection to wrap, got %d", m.selected)
	}

	before := m.theme.Name
	m, _ = feed(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'t'}})
	if m.theme.Name == before {
		t.Error("expected theme to change")
	}

	_, cmd := feed(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
}

func TestFeed(t *testing.T) {
	rec := &recorder{}
	f := NewFeed(rec, 3)

	f.Status("preparing topology")
	f.OnIteration(fold.Step{Iteration: 1, Metric: 0.5})
	f.Done(&fold.State{Iterations: 1}, nil)

	if len(rec.msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(rec.msgs))
	}
	if msg, ok := rec.msgs[1].(StepMsg); !ok || msg.Replica != 3 || msg.Step.Iteration != 1 {
		t.Errorf("unexpected step message %#v", rec.msgs[1])
	}
	if _, ok := rec.msgs[2].(DoneMsg); !ok {
		t.Errorf("expected DoneMsg, got %#v", rec.msgs[2])
	}
}

func TestSparklineAndProgress(t *testing.T) {
	if s := Sparkline(nil, 0.3, 5); !strings.Contains(s, "─") {
		t.Errorf("empty sparkline should be a rule, got %q", s)
	}
	if s := Sparkline([]float64{0.9, 0.5, 0.2}, 0.3, 10); !strings.Contains(s, "▁") || !strings.Contains(s, "█") {
		t.Errorf("expected low and high marks, got %q", s)
	}
	if s := ProgressBar(2, 4, 10); strings.Count(s, "█") != 5 {
		t.Errorf("expected half-filled bar, got %q", s)
	}
}

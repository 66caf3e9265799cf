package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/xvg"
)

func testHistory() []fold.Step {
	return []fold.Step{
		{Iteration: 1, Metric: 0.9, Best: 0.9, Restart: "w/fold-0001.cpt", Trajectory: fold.Trajectory{Path: "w/fold-0001.xtc"}, Elapsed: 2 * time.Second},
		{Iteration: 2, Metric: 0.45, Best: 0.45, Restart: "w/fold-0002.cpt", Trajectory: fold.Trajectory{Path: "w/fold-0002.xtc"}, Elapsed: 3 * time.Second},
		{Iteration: 3, Metric: 0.25, Best: 0.25, Native: true, Restart: "w/fold-0003.cpt", Trajectory: fold.Trajectory{Path: "w/fold-0003.xtc"}, Elapsed: 1500 * time.Millisecond},
	}
}

func TestStoreCreateRecordLoad(t *testing.T) {
	st := New(t.TempDir())

	run, err := st.Create(RunMetadata{Workflow: "fs-peptide", Threshold: 0.3, Budget: "2h0m0s", ReplicaCount: 1})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !strings.HasPrefix(run.ID, "fs-peptide_") {
		t.Errorf("unexpected run id %s", run.ID)
	}

	rec, err := run.Recorder(0)
	if err != nil {
		t.Fatalf("recorder failed: %v", err)
	}
	for _, step := range testHistory() {
		rec.OnIteration(step)
	}
	if err := rec.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	best, last := 0.25, 0.25
	if err := run.Report(ReplicaOutcome{Index: 0, Iterations: 3, Converged: true, Best: &best, Last: &last}); err != nil {
		t.Fatal(err)
	}
	if err := run.Finish(); err != nil {
		t.Fatal(err)
	}

	meta, err := st.Load(run.ID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if !meta.Finished || meta.Workflow != "fs-peptide" {
		t.Errorf("unexpected metadata %+v", meta)
	}
	if len(meta.Replicas) != 1 || !meta.Replicas[0].Converged || *meta.Replicas[0].Best != 0.25 {
		t.Errorf("unexpected replica outcome %+v", meta.Replicas)
	}

	history, err := st.LoadHistory(run.ID, 0)
	if err != nil {
		t.Fatalf("load history failed: %v", err)
	}
	want := testHistory()
	if len(history) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(history))
	}
	for i := range want {
		if history[i].Iteration != want[i].Iteration || history[i].Metric != want[i].Metric ||
			history[i].Native != want[i].Native || history[i].Restart != want[i].Restart ||
			history[i].Elapsed != want[i].Elapsed {
			t.Errorf("row %d = %+v, want %+v", i, history[i], want[i])
		}
	}
}

func TestStoreCreateUniqueIDs(t *testing.T) {
	st := New(t.TempDir())
	now := time.Unix(1700000000, 0)

	a, err := st.Create(RunMetadata{Workflow: "demo", Timestamp: now})
	if err != nil {
		t.Fatal(err)
	}
	b, err := st.Create(RunMetadata{Workflow: "demo", Timestamp: now})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID == b.ID {
		t.Errorf("expected distinct ids, both %s", a.ID)
	}

	runs, err := st.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("expected 2 runs, got %d", len(runs))
	}
}

func TestStoreListMissingDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent"))
	runs, err := st.List()
	if err != nil || len(runs) != 0 {
		t.Errorf("expected empty list, got %v, %v", runs, err)
	}
}

func TestReportKeepsReplicaOrder(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Create(RunMetadata{Workflow: "ens", ReplicaCount: 3})
	if err != nil {
		t.Fatal(err)
	}
	for _, idx := range []int{2, 0, 1, 0} {
		if err := run.Report(ReplicaOutcome{Index: idx, Iterations: idx + 1}); err != nil {
			t.Fatal(err)
		}
	}
	meta := run.Metadata()
	if len(meta.Replicas) != 3 {
		t.Fatalf("expected 3 replicas, got %d", len(meta.Replicas))
	}
	for i, r := range meta.Replicas {
		if r.Index != i {
			t.Errorf("replica %d out of order: %+v", i, r)
		}
	}
}

func TestExport(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Create(RunMetadata{Workflow: "fs-peptide", ReplicaCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	rec, err := run.Recorder(0)
	if err != nil {
		t.Fatal(err)
	}
	for _, step := range testHistory() {
		rec.OnIteration(step)
	}
	rec.Close()
	if err := run.Report(ReplicaOutcome{Index: 0, Iterations: 3}); err != nil {
		t.Fatal(err)
	}

	data, err := st.Export(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(data.Replicas) != 1 || len(data.Replicas[0].History) != 3 {
		t.Fatalf("unexpected export %+v", data)
	}

	path := filepath.Join(t.TempDir(), "run.json")
	if err := ExportJSON(path, data); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(raw, []byte(`"checkpoint": "w/fold-0003.cpt"`)) {
		t.Errorf("checkpoint missing from json:\n%s", raw)
	}
}

func TestWriteXVG(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXVG(&buf, testHistory()); err != nil {
		t.Fatal(err)
	}
	series, err := xvg.Parse(&buf)
	if err != nil {
		t.Fatalf("exported history is not valid xvg: %v", err)
	}
	value, at, err := series.Min(1)
	if err != nil {
		t.Fatal(err)
	}
	if value != 0.25 || at != 3 {
		t.Errorf("expected min 0.25 at iteration 3, got %v at %v", value, at)
	}
}

func TestArchiveExtract(t *testing.T) {
	st := New(t.TempDir())
	run, err := st.Create(RunMetadata{Workflow: "fs-peptide"})
	if err != nil {
		t.Fatal(err)
	}

	src := filepath.Join(t.TempDir(), "fold-0001-rmsd.xvg")
	content := []byte(strings.Repeat("# gmx rms\n0.000 0.4500\n", 50))
	if err := os.WriteFile(src, content, 0644); err != nil {
		t.Fatal(err)
	}

	archived, err := run.Archive(0, src)
	if err != nil {
		t.Fatalf("archive failed: %v", err)
	}
	if len(archived) != 1 || !strings.HasSuffix(archived[0], "fold-0001-rmsd.xvg.zst") {
		t.Fatalf("unexpected archive paths %v", archived)
	}

	out, err := Extract(archived[0], "")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, content) {
		t.Error("extracted content differs from original")
	}

	if _, err := Extract(src, ""); err == nil {
		t.Error("expected error extracting a file without .zst suffix")
	}
}

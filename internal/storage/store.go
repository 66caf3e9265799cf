package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	metadataFile = "metadata.json"
	historyFile  = "history.csv"
)

type Store struct {
	baseDir string
}

func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) Init() error {
	return os.MkdirAll(s.baseDir, 0755)
}

func (s *Store) BaseDir() string { return s.baseDir }

type RunMetadata struct {
	ID            string           `json:"id"`
	Workflow      string           `json:"workflow"`
	Timestamp     time.Time        `json:"timestamp"`
	Threshold     float64          `json:"threshold"`
	Budget        string           `json:"budget"`
	MaxIterations int              `json:"max_iterations"`
	StopOnNative  bool             `json:"stop_on_native"`
	Criterion     string           `json:"criterion"`
	ReplicaCount  int              `json:"replica_count"`
	Replicas      []ReplicaOutcome `json:"replicas"`
	Finished      bool             `json:"finished"`
}

// ReplicaOutcome is the final fold state of one replica. Best and Last are
// omitted when no iteration completed.
type ReplicaOutcome struct {
	Index      int                `json:"index"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
	Best       *float64           `json:"best,omitempty"`
	Last       *float64           `json:"last,omitempty"`
	Checkpoint string             `json:"checkpoint,omitempty"`
	Error      string             `json:"error,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// Run is an open run directory.
type Run struct {
	ID  string
	Dir string

	mu   sync.Mutex
	meta RunMetadata
}

// Create allocates a run directory named <workflow>_<unix> and writes the
// initial metadata.
func (s *Store) Create(meta RunMetadata) (*Run, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}
	if meta.Timestamp.IsZero() {
		meta.Timestamp = time.Now()
	}

	base := fmt.Sprintf("%s_%d", meta.Workflow, meta.Timestamp.Unix())
	runID := base
	for n := 2; ; n++ {
		err := os.Mkdir(filepath.Join(s.baseDir, runID), 0755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, err
		}
		runID = fmt.Sprintf("%s-%d", base, n)
	}

	meta.ID = runID
	r := &Run{ID: runID, Dir: filepath.Join(s.baseDir, runID), meta: meta}
	if err := r.writeMetadata(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Run) ReplicaDir(replica int) string {
	return filepath.Join(r.Dir, fmt.Sprintf("replica-%02d", replica))
}

// Recorder opens the history file of a replica.
func (r *Run) Recorder(replica int) (*Recorder, error) {
	dir := r.ReplicaDir(replica)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return newRecorder(filepath.Join(dir, historyFile))
}

// Report stores the outcome of one replica. Safe for concurrent use.
func (r *Run) Report(out ReplicaOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := false
	for i := range r.meta.Replicas {
		if r.meta.Replicas[i].Index == out.Index {
			r.meta.Replicas[i] = out
			replaced = true
		}
	}
	if !replaced {
		r.meta.Replicas = append(r.meta.Replicas, out)
		sort.Slice(r.meta.Replicas, func(i, j int) bool {
			return r.meta.Replicas[i].Index < r.meta.Replicas[j].Index
		})
	}
	return r.writeMetadataLocked()
}

// Finish marks the run complete.
func (r *Run) Finish() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta.Finished = true
	return r.writeMetadataLocked()
}

func (r *Run) Metadata() RunMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	meta := r.meta
	meta.Replicas = append([]ReplicaOutcome(nil), r.meta.Replicas...)
	return meta
}

func (r *Run) writeMetadata() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writeMetadataLocked()
}

func (r *Run) writeMetadataLocked() error {
	metaPath := filepath.Join(r.Dir, metadataFile)
	tmp := metaPath + ".tmp"
	metaFile, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(metaFile)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r.meta); err != nil {
		metaFile.Close()
		return err
	}
	if err := metaFile.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, metaPath)
}

func (s *Store) List() ([]RunMetadata, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunMetadata{}, nil
		}
		return nil, err
	}

	runs := make([]RunMetadata, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		meta, err := s.Load(entry.Name())
		if err != nil {
			continue
		}
		runs = append(runs, *meta)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Timestamp.Before(runs[j].Timestamp)
	})
	return runs, nil
}

func (s *Store) Load(runID string) (*RunMetadata, error) {
	metaPath := filepath.Join(s.baseDir, runID, metadataFile)
	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, err
	}

	var meta RunMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%s: %w", metaPath, err)
	}

	return &meta, nil
}

// RunDir returns the directory of a stored run.
func (s *Store) RunDir(runID string) string {
	return filepath.Join(s.baseDir, runID)
}

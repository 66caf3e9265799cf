package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/san-kum/gmxflow/internal/fold"
)

var historyHeader = []string{"iteration", "metric", "best", "native", "checkpoint", "trajectory", "elapsed_s"}

// Recorder appends one CSV row per fold iteration. It satisfies
// fold.Observer; the first write error is kept and returned by Close.
type Recorder struct {
	mu   sync.Mutex
	file *os.File
	w    *csv.Writer
	err  error
}

func newRecorder(path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(file)
	if err := w.Write(historyHeader); err != nil {
		file.Close()
		return nil, err
	}
	w.Flush()
	return &Recorder{file: file, w: w}, w.Error()
}

func (r *Recorder) OnIteration(step fold.Step) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return
	}
	row := []string{
		strconv.Itoa(step.Iteration),
		strconv.FormatFloat(step.Metric, 'f', 6, 64),
		strconv.FormatFloat(step.Best, 'f', 6, 64),
		strconv.FormatBool(step.Native),
		string(step.Restart),
		step.Trajectory.Path,
		strconv.FormatFloat(step.Elapsed.Seconds(), 'f', 3, 64),
	}
	if err := r.w.Write(row); err != nil {
		r.err = err
		return
	}
	r.w.Flush()
	r.err = r.w.Error()
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	if err := r.w.Error(); err != nil && r.err == nil {
		r.err = err
	}
	if err := r.file.Close(); err != nil && r.err == nil {
		r.err = err
	}
	return r.err
}

// LoadHistory reads the recorded iterations of one replica.
func (s *Store) LoadHistory(runID string, replica int) ([]fold.Step, error) {
	path := filepath.Join(s.baseDir, runID, fmt.Sprintf("replica-%02d", replica), historyFile)
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	r := csv.NewReader(file)
	r.FieldsPerRecord = len(historyHeader)

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if len(records) < 2 {
		return []fold.Step{}, nil
	}

	steps := make([]fold.Step, 0, len(records)-1)
	for i, record := range records[1:] {
		step, err := parseStep(record)
		if err != nil {
			return nil, fmt.Errorf("%s: row %d: %w", path, i+2, err)
		}
		steps = append(steps, step)
	}
	return steps, nil
}

func parseStep(record []string) (fold.Step, error) {
	iteration, err := strconv.Atoi(record[0])
	if err != nil {
		return fold.Step{}, err
	}
	metric, err := strconv.ParseFloat(record[1], 64)
	if err != nil {
		return fold.Step{}, err
	}
	best, err := strconv.ParseFloat(record[2], 64)
	if err != nil {
		return fold.Step{}, err
	}
	native, err := strconv.ParseBool(record[3])
	if err != nil {
		return fold.Step{}, err
	}
	elapsed, err := strconv.ParseFloat(record[6], 64)
	if err != nil {
		return fold.Step{}, err
	}
	return fold.Step{
		Iteration:  iteration,
		Metric:     metric,
		Best:       best,
		Native:     native,
		Restart:    fold.Checkpoint(record[4]),
		Trajectory: fold.Trajectory{Path: record[5]},
		Elapsed:    time.Duration(elapsed * float64(time.Second)),
	}, nil
}

package storage

import (
	"encoding/json"
	"io"
	"os"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/xvg"
)

type ExportData struct {
	Run      RunMetadata     `json:"run"`
	Replicas []ReplicaExport `json:"replicas"`
}

type ReplicaExport struct {
	Index   int           `json:"index"`
	History []HistoryJSON `json:"history"`
}

type HistoryJSON struct {
	Iteration  int     `json:"iteration"`
	Metric     float64 `json:"metric"`
	Best       float64 `json:"best"`
	Native     bool    `json:"native"`
	Checkpoint string  `json:"checkpoint"`
	Trajectory string  `json:"trajectory"`
	ElapsedS   float64 `json:"elapsed_s"`
}

// Export gathers a stored run and every replica history it has on disk.
func (s *Store) Export(runID string) (*ExportData, error) {
	meta, err := s.Load(runID)
	if err != nil {
		return nil, err
	}
	data := &ExportData{Run: *meta, Replicas: make([]ReplicaExport, 0, len(meta.Replicas))}
	for _, rep := range meta.Replicas {
		history, err := s.LoadHistory(runID, rep.Index)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		data.Replicas = append(data.Replicas, ReplicaExport{Index: rep.Index, History: historyJSON(history)})
	}
	return data, nil
}

func historyJSON(steps []fold.Step) []HistoryJSON {
	out := make([]HistoryJSON, len(steps))
	for i, s := range steps {
		out[i] = HistoryJSON{
			Iteration:  s.Iteration,
			Metric:     s.Metric,
			Best:       s.Best,
			Native:     s.Native,
			Checkpoint: string(s.Restart),
			Trajectory: s.Trajectory.Path,
			ElapsedS:   s.Elapsed.Seconds(),
		}
	}
	return out
}

func ExportJSON(path string, data *ExportData) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return WriteJSON(file, data)
}

func WriteJSON(w io.Writer, data *ExportData) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// WriteXVG renders a replica history as an xvg series of metric and best
// value against iteration number.
func WriteXVG(w io.Writer, history []fold.Step) error {
	series := &xvg.Series{
		Title:   "Fold convergence",
		XLabel:  "Iteration",
		YLabel:  "RMSD (nm)",
		Legends: []string{"metric", "best"},
		Columns: [][]float64{
			make([]float64, len(history)),
			make([]float64, len(history)),
			make([]float64, len(history)),
		},
	}
	for i, s := range history {
		series.Columns[0][i] = float64(s.Iteration)
		series.Columns[1][i] = s.Metric
		series.Columns[2][i] = s.Best
	}
	return xvg.Write(w, series)
}

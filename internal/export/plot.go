package export

import (
	"errors"
	"fmt"
	"image/color"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/san-kum/gmxflow/internal/fold"
)

var ErrNoData = errors.New("export: nothing to plot")

// Series is one labelled history line.
type Series struct {
	Name    string
	History []fold.Step
}

// PlotOptions control the rendered figure. Zero sizes fall back to 6x4 in.
type PlotOptions struct {
	Title     string
	Threshold float64
	Width     vg.Length
	Height    vg.Length
	ShowBest  bool
}

var supportedFormats = map[string]bool{
	".png": true, ".svg": true, ".pdf": true, ".eps": true, ".jpg": true, ".jpeg": true, ".tif": true, ".tiff": true,
}

// HistoryPlot draws the metric per iteration for every series with the
// threshold as a dashed line. The format follows the file extension.
func HistoryPlot(path string, series []Series, opts PlotOptions) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !supportedFormats[ext] {
		return fmt.Errorf("export: unsupported plot format %q", ext)
	}

	p, err := historyPlot(series, opts)
	if err != nil {
		return err
	}

	w, h := opts.Width, opts.Height
	if w == 0 {
		w = 6 * vg.Inch
	}
	if h == 0 {
		h = 4 * vg.Inch
	}
	return p.Save(w, h, path)
}

func historyPlot(series []Series, opts PlotOptions) (*plot.Plot, error) {
	points := 0
	for _, s := range series {
		points += len(s.History)
	}
	if points == 0 {
		return nil, ErrNoData
	}

	p := plot.New()
	p.Title.Text = opts.Title
	if p.Title.Text == "" {
		p.Title.Text = "Fold convergence"
	}
	p.X.Label.Text = "Iteration"
	p.Y.Label.Text = "RMSD (nm)"
	p.Add(plotter.NewGrid())

	for i, s := range series {
		if len(s.History) == 0 {
			continue
		}
		line, pts, err := plotter.NewLinePoints(metricXYs(s.History))
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", s.Name, err)
		}
		line.Color = plotutil.Color(i)
		pts.Color = plotutil.Color(i)
		pts.Shape = plotutil.Shape(i)
		p.Add(line, pts)
		p.Legend.Add(s.Name, line, pts)

		if opts.ShowBest {
			best, err := plotter.NewLine(bestXYs(s.History))
			if err != nil {
				return nil, fmt.Errorf("series %s: %w", s.Name, err)
			}
			best.Color = plotutil.Color(i)
			best.Dashes = plotutil.Dashes(1)
			p.Add(best)
			p.Legend.Add(s.Name+" best", best)
		}
	}

	threshold := opts.Threshold
	thr := plotter.NewFunction(func(float64) float64 { return threshold })
	thr.Color = color.RGBA{R: 200, A: 255}
	thr.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
	p.Add(thr)
	p.Legend.Add("threshold", thr)
	p.Legend.Top = true

	return p, nil
}

func metricXYs(history []fold.Step) plotter.XYs {
	pts := make(plotter.XYs, len(history))
	for i, s := range history {
		pts[i].X = float64(s.Iteration)
		pts[i].Y = s.Metric
	}
	return pts
}

func bestXYs(history []fold.Step) plotter.XYs {
	pts := make(plotter.XYs, len(history))
	for i, s := range history {
		pts[i].X = float64(s.Iteration)
		pts[i].Y = s.Best
	}
	return pts
}

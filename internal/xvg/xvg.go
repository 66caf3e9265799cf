// Package xvg reads and writes the Grace/xmgrace time-series files produced by
// GROMACS analysis tools.
//
// A file is a sequence of '#' comment lines, '@' directive lines and
// whitespace-separated data rows. The first column of every row is time; the
// remaining columns are sampled quantities. A file holding a single row is a
// valid series.
package xvg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrNoData indicates a file without any data rows.
	ErrNoData = errors.New("xvg: no data rows")

	// ErrColumn indicates a column index outside the series.
	ErrColumn = errors.New("xvg: column out of range")
)

// ParseError wraps a malformed line.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("xvg: line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Series is a parsed time series. Columns[0] holds time.
type Series struct {
	Title   string
	XLabel  string
	YLabel  string
	Legends []string
	Columns [][]float64
}

// Options tunes parsing.
type Options struct {
	// SkipRows drops a fixed number of leading non-comment rows.
	SkipRows int
}

// Len returns the number of samples.
func (s *Series) Len() int {
	if len(s.Columns) == 0 {
		return 0
	}
	return len(s.Columns[0])
}

// Time returns the time column.
func (s *Series) Time() []float64 {
	if len(s.Columns) == 0 {
		return nil
	}
	return s.Columns[0]
}

// Column returns sampled column col (1-based, column 0 is time).
func (s *Series) Column(col int) ([]float64, error) {
	if col < 0 || col >= len(s.Columns) {
		return nil, fmt.Errorf("%w: %d of %d", ErrColumn, col, len(s.Columns))
	}
	return s.Columns[col], nil
}

// Min reduces column col to its minimum value and the time it was sampled.
func (s *Series) Min(col int) (value, at float64, err error) {
	if col == 0 {
		return 0, 0, fmt.Errorf("%w: time column has no minimum metric", ErrColumn)
	}
	data, err := s.Column(col)
	if err != nil {
		return 0, 0, err
	}
	if len(data) == 0 {
		return 0, 0, ErrNoData
	}
	idx := floats.MinIdx(data)
	return data[idx], s.Columns[0][idx], nil
}

// ParseFile parses the file at path.
func ParseFile(path string, opts ...Options) (*Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f, opts...)
}

// Parse reads a series from r.
func Parse(r io.Reader, opts ...Options) (*Series, error) {
	var opt Options
	if len(opts) > 0 {
		opt = opts[0]
	}

	s := &Series{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	skipped := 0
	width := 0

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch line[0] {
		case '#':
			continue
		case '@':
			s.directive(strings.TrimSpace(line[1:]))
			continue
		case '&':
			// dataset separator, single-set files only
			continue
		}
		if skipped < opt.SkipRows {
			skipped++
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, &ParseError{Line: lineNo, Err: fmt.Errorf("expected at least 2 columns, got %d", len(fields))}
		}
		if width == 0 {
			width = len(fields)
			s.Columns = make([][]float64, width)
		} else if len(fields) != width {
			return nil, &ParseError{Line: lineNo, Err: fmt.Errorf("expected %d columns, got %d", width, len(fields))}
		}
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Err: err}
			}
			s.Columns[i] = append(s.Columns[i], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if s.Len() == 0 {
		return nil, ErrNoData
	}
	return s, nil
}

func (s *Series) directive(d string) {
	key, rest, _ := strings.Cut(d, " ")
	rest = strings.TrimSpace(rest)
	switch {
	case key == "title":
		s.Title = unquote(rest)
	case key == "xaxis" && strings.HasPrefix(rest, "label"):
		s.XLabel = unquote(strings.TrimSpace(strings.TrimPrefix(rest, "label")))
	case key == "yaxis" && strings.HasPrefix(rest, "label"):
		s.YLabel = unquote(strings.TrimSpace(strings.TrimPrefix(rest, "label")))
	case len(key) > 1 && key[0] == 's' && strings.HasPrefix(rest, "legend"):
		s.Legends = append(s.Legends, unquote(strings.TrimSpace(strings.TrimPrefix(rest, "legend"))))
	}
}

func unquote(v string) string {
	if u, err := strconv.Unquote(v); err == nil {
		return u
	}
	return strings.Trim(v, `"`)
}

// Write renders s in xvg format.
func Write(w io.Writer, s *Series) error {
	bw := bufio.NewWriter(w)
	if s.Title != "" {
		fmt.Fprintf(bw, "@    title %q\n", s.Title)
	}
	if s.XLabel != "" {
		fmt.Fprintf(bw, "@    xaxis  label %q\n", s.XLabel)
	}
	if s.YLabel != "" {
		fmt.Fprintf(bw, "@    yaxis  label %q\n", s.YLabel)
	}
	for i, legend := range s.Legends {
		fmt.Fprintf(bw, "@ s%d legend %q\n", i, legend)
	}
	for row := 0; row < s.Len(); row++ {
		for col := range s.Columns {
			if col > 0 {
				bw.WriteString("  ")
			}
			bw.WriteString(strconv.FormatFloat(s.Columns[col][row], 'f', 7, 64))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

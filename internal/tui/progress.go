// Package tui prints fold progress as plain lines for terminals where the
// live view is not wanted (logs, batch schedulers).
package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/san-kum/gmxflow/internal/fold"
)

const sparkWidth = 24

// Progress writes one line per completed iteration. It is shared by all
// replicas of a run, so writes are serialized.
type Progress struct {
	mu      sync.Mutex
	w       io.Writer
	history map[int][]float64
}

func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w, history: make(map[int][]float64)}
}

// Replica returns the fold observer for one replica.
func (p *Progress) Replica(idx int) fold.Observer {
	return fold.ObserverFunc(func(step fold.Step) { p.record(idx, step) })
}

func (p *Progress) record(replica int, step fold.Step) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.history[replica] = append(p.history[replica], step.Metric)
	mark := " "
	if step.Native {
		mark = "*"
	}
	fmt.Fprintf(p.w, "[replica-%02d] iter %4d  rmsd %.4f  best %.4f %s %s\n",
		replica, step.Iteration, step.Metric, step.Best, mark, spark(p.history[replica]))
}

// spark renders values as an ASCII sparkline, newest last.
func spark(values []float64) string {
	if len(values) > sparkWidth {
		values = values[len(values)-sparkWidth:]
	}
	const ramp = "_.-=*#"
	lo, hi := values[0], values[0]
	for _, v := range values {
		lo = min(lo, v)
		hi = max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		span = 1
	}
	var sb strings.Builder
	for _, v := range values {
		idx := int((v - lo) / span * float64(len(ramp)-1))
		sb.WriteByte(ramp[max(0, min(idx, len(ramp)-1))])
	}
	return sb.String()
}

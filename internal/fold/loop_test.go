package fold_test

import (
	"context"
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/gmxflow/internal/fold"
	"github.com/san-kum/gmxflow/internal/logger"
)

type chain struct {
	restarts []fold.Checkpoint
	metrics  []float64
	extracts int
}

func (c *chain) Simulate(ctx context.Context, req fold.StepRequest) (fold.StepResult, error) {
	c.restarts = append(c.restarts, req.Restart)
	name := fmt.Sprintf("fold-%04d", req.Iteration)
	return fold.StepResult{
		Trajectory: fold.Trajectory{Name: name, Path: name + ".xtc"},
		Restart:    fold.Checkpoint(name + ".cpt"),
	}, nil
}

func (c *chain) Extract(ctx context.Context, traj fold.Trajectory, reference string) (float64, error) {
	i := c.extracts
	c.extracts++
	if i >= len(c.metrics) {
		return 0, errors.New("no more frames")
	}
	return c.metrics[i], nil
}

var _ = Describe("Controller", func() {
	var (
		c   *chain
		cfg fold.Config
		req fold.Request
	)

	BeforeEach(func() {
		c = &chain{}
		cfg = fold.DefaultConfig()
		req = fold.Request{Input: "topol.tpr", Reference: "ref.pdb"}
	})

	run := func() (*fold.State, error) {
		ctrl := fold.New(c, c, cfg).WithLogger(logger.Discard())
		return ctrl.Run(context.Background(), req)
	}

	Context("when the metric sequence drops below the threshold", func() {
		BeforeEach(func() {
			c.metrics = []float64{1e6, 0.9, 0.45, 0.25, 0.1}
		})

		It("stops at the first native iteration", func() {
			st, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Converged).To(BeTrue())
			Expect(st.Iterations).To(Equal(4))
			Expect(st.Last).To(Equal(0.25))
			Expect(c.restarts).To(HaveLen(4))
		})

		It("threads each checkpoint into the next iteration", func() {
			st, err := run()
			Expect(err).NotTo(HaveOccurred())
			Expect(c.restarts).To(Equal([]fold.Checkpoint{
				"", "fold-0001.cpt", "fold-0002.cpt", "fold-0003.cpt",
			}))
			Expect(st.Restart).To(Equal(fold.Checkpoint("fold-0004.cpt")))
		})

		It("notifies observers once per iteration", func() {
			var seen []int
			ctrl := fold.New(c, c, cfg).WithLogger(logger.Discard())
			ctrl.AddObserver(fold.ObserverFunc(func(s fold.Step) { seen = append(seen, s.Iteration) }))
			_, err := ctrl.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(Equal([]int{1, 2, 3, 4}))
		})
	})

	Context("with an iteration cap", func() {
		BeforeEach(func() {
			c.metrics = []float64{0.9, 0.8, 0.7, 0.1}
			cfg.MaxIterations = 2
		})

		It("reports not converged after exactly the cap", func() {
			st, err := run()
			Expect(err).To(MatchError(fold.ErrNotConverged))
			Expect(st.Iterations).To(Equal(2))
			Expect(st.Best).To(Equal(0.8))
			Expect(c.restarts).To(HaveLen(2))
		})
	})

	Context("when the extractor fails", func() {
		BeforeEach(func() {
			c.metrics = []float64{0.9}
		})

		It("aborts with an analysis failure for that iteration", func() {
			st, err := run()
			Expect(err).To(MatchError(fold.ErrAnalysisFailure))
			var stepErr *fold.StepError
			Expect(errors.As(err, &stepErr)).To(BeTrue())
			Expect(stepErr.Iteration).To(Equal(2))
			Expect(stepErr.Stage).To(Equal(fold.StageAnalyze))
			Expect(st.Iterations).To(Equal(1))
		})
	})

	Context("with a custom comparator", func() {
		It("uses it for the native decision", func() {
			c.metrics = []float64{0.5}
			ctrl := fold.New(c, c, cfg).
				WithLogger(logger.Discard()).
				WithComparator(func(v, t float64) bool { return v <= 0.5 })
			st, err := ctrl.Run(context.Background(), req)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Iterations).To(Equal(1))
		})
	})
})

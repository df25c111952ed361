// Package backend drives the register allocation and scheduling phase:
// liveness, interference, coloring, selection and list scheduling for each
// function, with independent functions compiled in parallel.
package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/raymyers/ralph-backend/pkg/liveness"
	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/regalloc"
	"github.com/raymyers/ralph-backend/pkg/sched"
	"github.com/raymyers/ralph-backend/pkg/selection"
	"github.com/raymyers/ralph-backend/pkg/target"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

// ErrPhaseTimeout is returned when the whole phase exceeds its time budget
var ErrPhaseTimeout = errors.New("backend phase timed out")

// DefaultSpillWarnRatio is the spill ratio above which a warning is written
const DefaultSpillWarnRatio = 0.25

// Options configures compilation
type Options struct {
	// Jobs bounds the number of functions compiled at once (<= 0: unbounded)
	Jobs int
	// Timeout is the wall-clock budget for the whole program (0: none)
	Timeout time.Duration
	// Warn receives allocation pressure warnings (nil: discarded)
	Warn io.Writer
	// SpillWarnRatio is the spill ratio above which a warning is written
	SpillWarnRatio float64
	// StrictDeps adds WAR, WAW and memory ordering edges
	StrictDeps bool
	// GateOnLatency delays dependents until their operands complete
	GateOnLatency bool
	// Verify checks the coloring invariants after allocation
	Verify bool
}

// DefaultOptions returns the default options
func DefaultOptions() Options {
	return Options{SpillWarnRatio: DefaultSpillWarnRatio}
}

// Result holds every artifact computed for one function
type Result struct {
	Func      *vir.Function
	Liveness  *liveness.Info
	Graph     *regalloc.InterferenceGraph
	Coloring  *regalloc.Coloring
	Selected  *ltl.Function // after selection, in program order
	Schedules map[vir.BlockID]sched.Result
	Scheduled *ltl.Function // block bodies in issue order
}

// CompileFunction runs the whole phase on one function, sequentially
func CompileFunction(fn *vir.Function, tgt *target.Target, opts Options) (*Result, error) {
	if err := vir.Validate(fn); err != nil {
		return nil, err
	}

	info, err := liveness.Analyze(fn)
	if err != nil {
		return nil, err
	}
	graph := regalloc.BuildInterferenceGraph(fn, info)
	coloring := regalloc.NewAllocator(graph, fn, tgt).Allocate()
	if opts.Verify {
		if err := coloring.Verify(graph, fn, tgt); err != nil {
			return nil, fmt.Errorf("function %q: invalid allocation: %w", fn.Name, err)
		}
	}

	selected := selection.Select(fn, coloring, tgt)

	res := &Result{
		Func:      fn,
		Liveness:  info,
		Graph:     graph,
		Coloring:  coloring,
		Selected:  selected,
		Schedules: make(map[vir.BlockID]sched.Result),
		Scheduled: &ltl.Function{Name: selected.Name, Entry: selected.Entry, NumSlots: selected.NumSlots},
	}
	for _, b := range selected.Blocks {
		deps := sched.BuildDeps(b.Body, sched.Options{Strict: opts.StrictDeps})
		s := sched.Schedule(b.Body, deps, tgt, sched.ScheduleOptions{GateOnLatency: opts.GateOnLatency})
		res.Schedules[b.ID] = s
		res.Scheduled.Blocks = append(res.Scheduled.Blocks, &ltl.Block{
			ID:          b.ID,
			Body:        s.Apply(b.Body),
			Term:        b.Term,
			Fallthrough: b.Fallthrough,
		})
	}
	return res, nil
}

// CompileProgram compiles independent functions in parallel. Results are
// in input order. A function that fails leaves a nil result; the returned
// error joins every failure. If the time budget expires, functions not yet
// started are skipped and ErrPhaseTimeout is returned with no results.
func CompileProgram(ctx context.Context, fns []*vir.Function, tgt *target.Target, opts Options) ([]*Result, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make([]*Result, len(fns))
	errs := make([]error, len(fns))
	skipped := make([]bool, len(fns))

	var g errgroup.Group
	if opts.Jobs > 0 {
		g.SetLimit(opts.Jobs)
	}
	for i, fn := range fns {
		i, fn := i, fn
		g.Go(func() error {
			if ctx.Err() != nil {
				skipped[i] = true
				return nil
			}
			results[i], errs[i] = CompileFunction(fn, tgt, opts)
			return nil
		})
	}
	_ = g.Wait()

	for _, skip := range skipped {
		if !skip {
			continue
		}
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s", ErrPhaseTimeout, opts.Timeout)
		}
		return nil, err
	}

	ratio := opts.SpillWarnRatio
	if ratio <= 0 {
		ratio = DefaultSpillWarnRatio
	}
	for _, res := range results {
		if res != nil {
			warnSpills(opts.Warn, res, ratio)
		}
	}
	return results, errors.Join(errs...)
}

// warnSpills reports functions whose spill ratio exceeds ratio
func warnSpills(w io.Writer, res *Result, ratio float64) {
	if w == nil || res.Coloring.SpillRatio() <= ratio {
		return
	}
	fmt.Fprintf(w, "ralph-backend: warning: function %q spilled %d of %d registers\n",
		res.Func.Name, res.Coloring.Spilled.Len(), len(res.Coloring.Locs))
}

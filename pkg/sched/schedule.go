package sched

import (
	"github.com/raymyers/ralph-backend/pkg/ltl"
)

// LatencyTable gives the cycle count of an opcode. *target.Target
// implements it.
type LatencyTable interface {
	Latency(op string) int
}

// ScheduleOptions controls list scheduling
type ScheduleOptions struct {
	// GateOnLatency makes a dependent ready only once the clock reaches the
	// completion time of every predecessor. Without it a dependent is ready
	// as soon as its last predecessor issues.
	GateOnLatency bool
}

// Result is a block schedule
type Result struct {
	// Order is a permutation of the body indices in issue order
	Order []int
	// Issue[i] is the cycle at which instruction i issues
	Issue []int
	// Completion[i] is the cycle at which instruction i completes
	Completion []int
	// Stalls counts cycles in which nothing was ready
	Stalls int
	// Cycles is the clock value after the last issue
	Cycles int
}

// Makespan returns the latest completion time
func (r Result) Makespan() int {
	m := 0
	for _, c := range r.Completion {
		if c > m {
			m = c
		}
	}
	return m
}

// Apply returns body permuted into schedule order
func (r Result) Apply(body []ltl.Instruction) []ltl.Instruction {
	out := make([]ltl.Instruction, len(r.Order))
	for pos, i := range r.Order {
		out[pos] = body[i]
	}
	return out
}

// Schedule list-schedules body along deps. Ready instructions are issued
// first-in first-out, seeded in program order, one per cycle.
func Schedule(body []ltl.Instruction, deps Deps, latencies LatencyTable, opts ScheduleOptions) Result {
	n := len(body)
	res := Result{
		Order:      make([]int, 0, n),
		Issue:      make([]int, n),
		Completion: make([]int, n),
	}

	pending := make([]int, n)
	var ready []int
	for i := 0; i < n; i++ {
		pending[i] = len(deps.Preds[i])
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	// Released instructions waiting for their operands, in release order
	var waiting []int
	readyAt := make([]int, n)

	clock := 0
	for len(res.Order) < n {
		if opts.GateOnLatency && len(waiting) > 0 {
			rest := waiting[:0]
			for _, i := range waiting {
				if readyAt[i] <= clock {
					ready = append(ready, i)
				} else {
					rest = append(rest, i)
				}
			}
			waiting = rest
		}

		if len(ready) == 0 {
			res.Stalls++
			clock++
			continue
		}

		i := ready[0]
		ready = ready[1:]
		res.Order = append(res.Order, i)
		res.Issue[i] = clock
		res.Completion[i] = clock + latencies.Latency(body[i].Op)

		for _, s := range deps.Succs[i] {
			pending[s]--
			if pending[s] > 0 {
				continue
			}
			if opts.GateOnLatency {
				for _, p := range deps.Preds[s] {
					if res.Completion[p] > readyAt[s] {
						readyAt[s] = res.Completion[p]
					}
				}
				waiting = append(waiting, s)
			} else {
				ready = append(ready, s)
			}
		}
		clock++
	}

	res.Cycles = clock
	return res
}

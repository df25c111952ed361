// Package sched orders the body of each block. It builds a dependency DAG
// over the instructions and list-schedules it against a virtual clock.
package sched

import (
	"sort"

	"github.com/raymyers/ralph-backend/pkg/ltl"
)

// Options controls dependency analysis
type Options struct {
	// Strict adds write-after-read and write-after-write edges on every
	// location and orders loads, stores and calls among themselves.
	// Without it only read-after-write edges are recorded.
	Strict bool
}

// Deps is a dependency DAG over instruction indices. Every edge goes from a
// lower index to a higher one.
type Deps struct {
	// Preds[i] are the instructions i depends on, ascending
	Preds [][]int
	// Succs[i] are the instructions depending on i, ascending
	Succs [][]int
}

// Opcodes ordered through memory in strict mode
var (
	memReaders = map[string]bool{"load": true, "ldr": true, "ldrb": true, "ldrh": true}
	memWriters = map[string]bool{"store": true, "str": true, "strb": true, "strh": true, "call": true, "bl": true}
)

// memory is the pseudo-location standing for all of memory
type memory struct{}

// BuildDeps computes the dependency DAG of body.
// For each instruction, an edge comes from the last writer of every
// location it reads; the instruction then becomes the last writer of every
// location it writes.
func BuildDeps(body []ltl.Instruction, opts Options) Deps {
	n := len(body)
	preds := make([]map[int]bool, n)

	lastWriter := make(map[any]int)
	readers := make(map[any][]int) // reads since the last write, strict mode

	addEdge := func(from, to int) {
		if from == to {
			return
		}
		if preds[to] == nil {
			preds[to] = make(map[int]bool)
		}
		preds[to][from] = true
	}

	for i := range body {
		instr := &body[i]
		uses := locKeys(instr.Uses())
		defs := locKeys(instr.Defs())
		if opts.Strict {
			if memReaders[instr.Op] || memWriters[instr.Op] {
				uses = append(uses, memory{})
			}
			if memWriters[instr.Op] {
				defs = append(defs, memory{})
			}
		}

		for _, loc := range uses {
			if w, ok := lastWriter[loc]; ok {
				addEdge(w, i)
			}
			if opts.Strict {
				readers[loc] = append(readers[loc], i)
			}
		}
		for _, loc := range defs {
			if opts.Strict {
				if w, ok := lastWriter[loc]; ok {
					addEdge(w, i)
				}
				for _, r := range readers[loc] {
					addEdge(r, i)
				}
				delete(readers, loc)
			}
			lastWriter[loc] = i
		}
	}

	deps := Deps{Preds: make([][]int, n), Succs: make([][]int, n)}
	for i := range preds {
		for p := range preds[i] {
			deps.Preds[i] = append(deps.Preds[i], p)
		}
		sort.Ints(deps.Preds[i])
		for _, p := range deps.Preds[i] {
			deps.Succs[p] = append(deps.Succs[p], i)
		}
	}
	return deps
}

func locKeys(locs []ltl.Loc) []any {
	keys := make([]any, len(locs))
	for i, l := range locs {
		keys[i] = l
	}
	return keys
}

// Edges returns the number of edges in the DAG
func (d Deps) Edges() int {
	n := 0
	for _, p := range d.Preds {
		n += len(p)
	}
	return n
}

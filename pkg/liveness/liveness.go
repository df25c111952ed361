// Package liveness computes live-in and live-out register sets per basic
// block by backward dataflow over the CFG:
//
//	live_out[B] = ⋃ live_in[S] over successors S
//	live_in[B]  = use[B] ∪ (live_out[B] − def[B])
//
// iterated to a fixed point.
package liveness

import (
	"fmt"

	"github.com/raymyers/ralph-backend/pkg/vir"
)

// Info holds the result of liveness analysis
type Info struct {
	// Def is the set of registers defined in each block
	Def map[vir.BlockID]vir.RegSet
	// Use is the set of registers read in each block before any definition there
	Use map[vir.BlockID]vir.RegSet
	// LiveIn is the set of registers live at block entry
	LiveIn map[vir.BlockID]vir.RegSet
	// LiveOut is the set of registers live at block exit
	LiveOut map[vir.BlockID]vir.RegSet
	// Order is the block visiting order (reverse postorder, then unreachable blocks)
	Order []vir.BlockID
	// Passes is the number of full passes until nothing changed
	Passes int
}

// ComputeDefUse scans each block once and computes its def and use sets
func ComputeDefUse(fn *vir.Function) (def, use map[vir.BlockID]vir.RegSet) {
	def = make(map[vir.BlockID]vir.RegSet, len(fn.Blocks))
	use = make(map[vir.BlockID]vir.RegSet, len(fn.Blocks))

	for id, b := range fn.Blocks {
		d := vir.NewRegSet()
		u := vir.NewRegSet()
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			// Operands are read before the destination is written
			for _, r := range instr.Uses() {
				if !d.Contains(r) {
					u.Add(r)
				}
			}
			if instr.Dest != nil {
				d.Add(*instr.Dest)
			}
		}
		def[id] = d
		use[id] = u
	}
	return def, use
}

// Analyze performs liveness analysis on fn.
// A successor that does not name an existing block is a malformed-input error.
func Analyze(fn *vir.Function) (*Info, error) {
	if err := checkSuccessors(fn); err != nil {
		return nil, err
	}

	def, use := ComputeDefUse(fn)
	info := &Info{
		Def:     def,
		Use:     use,
		LiveIn:  make(map[vir.BlockID]vir.RegSet, len(fn.Blocks)),
		LiveOut: make(map[vir.BlockID]vir.RegSet, len(fn.Blocks)),
		Order:   ReversePostorder(fn),
	}
	for id := range fn.Blocks {
		info.LiveIn[id] = vir.NewRegSet()
		info.LiveOut[id] = vir.NewRegSet()
	}

	for {
		info.Passes++
		if !info.pass(fn) {
			break
		}
	}
	return info, nil
}

// pass applies the transfer functions to every block once and reports
// whether any set changed
func (info *Info) pass(fn *vir.Function) bool {
	changed := false
	// Backward problem: walk the order from the end so successors tend to
	// be visited before their predecessors
	for i := len(info.Order) - 1; i >= 0; i-- {
		id := info.Order[i]
		out := vir.NewRegSet()
		for _, succ := range fn.Blocks[id].Successors() {
			out.AddAll(info.LiveIn[succ])
		}
		in := info.Use[id].Union(out.Minus(info.Def[id]))

		if !out.Equal(info.LiveOut[id]) {
			info.LiveOut[id] = out
			changed = true
		}
		if !in.Equal(info.LiveIn[id]) {
			info.LiveIn[id] = in
			changed = true
		}
	}
	return changed
}

// Transfer re-applies the transfer functions to a copy of the result and
// reports whether any set would change. At the fixed point it returns false.
func (info *Info) Transfer(fn *vir.Function) bool {
	c := &Info{
		Def:     info.Def,
		Use:     info.Use,
		LiveIn:  make(map[vir.BlockID]vir.RegSet, len(info.LiveIn)),
		LiveOut: make(map[vir.BlockID]vir.RegSet, len(info.LiveOut)),
		Order:   info.Order,
	}
	for id, s := range info.LiveIn {
		c.LiveIn[id] = s.Copy()
	}
	for id, s := range info.LiveOut {
		c.LiveOut[id] = s.Copy()
	}
	return c.pass(fn)
}

// ReversePostorder orders the blocks reachable from the entry in reverse
// postorder, followed by unreachable blocks in ascending id order
func ReversePostorder(fn *vir.Function) []vir.BlockID {
	visited := make(map[vir.BlockID]bool, len(fn.Blocks))
	var postorder []vir.BlockID

	var dfs func(id vir.BlockID)
	dfs = func(id vir.BlockID) {
		if visited[id] {
			return
		}
		visited[id] = true

		b := fn.Blocks[id]
		if b == nil {
			return
		}
		for _, succ := range b.Successors() {
			dfs(succ)
		}
		postorder = append(postorder, id)
	}
	if _, ok := fn.Blocks[fn.Entry]; ok {
		dfs(fn.Entry)
	}

	order := make([]vir.BlockID, 0, len(fn.Blocks))
	for i := len(postorder) - 1; i >= 0; i-- {
		order = append(order, postorder[i])
	}
	for _, id := range fn.SortedBlockIDs() {
		if !visited[id] {
			order = append(order, id)
		}
	}
	return order
}

func checkSuccessors(fn *vir.Function) error {
	for _, id := range fn.SortedBlockIDs() {
		for _, succ := range fn.Blocks[id].Successors() {
			if _, ok := fn.Blocks[succ]; !ok {
				return &vir.MalformedInputError{
					Func:   fn.Name,
					Ref:    fmt.Sprintf("undefined block b%d", succ),
					Detail: fmt.Sprintf("successor of b%d", id),
				}
			}
		}
	}
	return nil
}

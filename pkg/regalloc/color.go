package regalloc

import (
	"fmt"

	"github.com/raymyers/ralph-backend/pkg/liveness"
	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/target"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

// Classifier reports the register class of a virtual register.
// *vir.Function implements it.
type Classifier interface {
	ClassOf(r vir.Reg) vir.Class
}

// Coloring is the result of register allocation: a total map from virtual
// registers to locations
type Coloring struct {
	// Locs maps every node of the interference graph to its location
	Locs map[vir.Reg]ltl.Loc
	// Spilled is the set of registers assigned a stack slot
	Spilled vir.RegSet
	// NumSlots is the number of stack slots used (slot ids are 0..NumSlots-1)
	NumSlots int
}

// Loc returns the location assigned to r
func (c *Coloring) Loc(r vir.Reg) (ltl.Loc, bool) {
	loc, ok := c.Locs[r]
	return loc, ok
}

// SpillRatio returns the fraction of registers that were spilled
func (c *Coloring) SpillRatio() float64 {
	if len(c.Locs) == 0 {
		return 0
	}
	return float64(c.Spilled.Len()) / float64(len(c.Locs))
}

// Allocator colors an interference graph.
//
// Simplify pushes every node on a stack, always taking the node with the
// fewest not-yet-pushed neighbors (ties broken by ascending register id).
// No node is marked as a spill candidate while simplifying: select pops the
// stack and gives each node the first register of its pool not used by an
// already colored neighbor and not reserved, or a fresh stack slot.
type Allocator struct {
	graph   *InterferenceGraph
	classes Classifier
	tgt     *target.Target

	selectStack []vir.Reg
	locs        map[vir.Reg]ltl.Loc
	spilled     vir.RegSet
	nextSlot    int
}

// NewAllocator creates a new register allocator
func NewAllocator(graph *InterferenceGraph, classes Classifier, tgt *target.Target) *Allocator {
	return &Allocator{
		graph:   graph,
		classes: classes,
		tgt:     tgt,
		locs:    make(map[vir.Reg]ltl.Loc),
		spilled: vir.NewRegSet(),
	}
}

// Allocate performs register allocation and returns the coloring
func (a *Allocator) Allocate() *Coloring {
	a.simplify()
	a.assignColors()
	return &Coloring{
		Locs:     a.locs,
		Spilled:  a.spilled,
		NumSlots: a.nextSlot,
	}
}

// SelectStack returns the order in which simplify pushed the nodes
// (bottom of the stack first). Valid after Allocate.
func (a *Allocator) SelectStack() []vir.Reg {
	return append([]vir.Reg(nil), a.selectStack...)
}

func (a *Allocator) simplify() {
	nodes := a.graph.SortedNodes()
	degree := make(map[vir.Reg]int, len(nodes))
	for _, r := range nodes {
		degree[r] = a.graph.Degree(r)
	}
	pushed := make(map[vir.Reg]bool, len(nodes))

	for range nodes {
		// Minimum remaining degree; nodes are sorted so the first minimum
		// found has the lowest id
		best := vir.Reg(-1)
		for _, r := range nodes {
			if pushed[r] {
				continue
			}
			if best < 0 || degree[r] < degree[best] {
				best = r
			}
		}

		a.selectStack = append(a.selectStack, best)
		pushed[best] = true
		for _, n := range a.graph.Edges[best].Slice() {
			if !pushed[n] {
				degree[n]--
			}
		}
	}
}

func (a *Allocator) assignColors() {
	for i := len(a.selectStack) - 1; i >= 0; i-- {
		r := a.selectStack[i]

		// Registers already taken by colored neighbors
		usedColors := make(map[ltl.MReg]bool)
		for _, n := range a.graph.Edges[r].Slice() {
			if loc, ok := a.locs[n].(ltl.R); ok {
				usedColors[loc.Reg] = true
			}
		}

		var color ltl.Loc
		for _, mreg := range a.tgt.Pool(a.classes.ClassOf(r)) {
			if !usedColors[mreg] && !a.tgt.IsReserved(mreg) {
				color = ltl.R{Reg: mreg}
				break
			}
		}

		if color == nil {
			// Must spill
			color = ltl.S{Slot: a.nextSlot}
			a.nextSlot++
			a.spilled.Add(r)
		}
		a.locs[r] = color
	}
}

// AllocateFunction runs liveness, builds the interference graph and colors it
func AllocateFunction(fn *vir.Function, tgt *target.Target) (*Coloring, error) {
	info, err := liveness.Analyze(fn)
	if err != nil {
		return nil, err
	}
	graph := BuildInterferenceGraph(fn, info)
	return NewAllocator(graph, fn, tgt).Allocate(), nil
}

// Verify checks the coloring invariants against the graph it was computed
// from: every node has a location, interfering nodes never share a machine
// register, machine registers come from the node's own class pool, and no
// reserved register is used.
func (c *Coloring) Verify(graph *InterferenceGraph, classes Classifier, tgt *target.Target) error {
	inPool := func(class vir.Class, r ltl.MReg) bool {
		for _, p := range tgt.Pool(class) {
			if p == r {
				return true
			}
		}
		return false
	}

	slots := make(map[int]vir.Reg)
	for _, r := range graph.SortedNodes() {
		loc, ok := c.Locs[r]
		if !ok {
			return fmt.Errorf("%s has no location", r)
		}
		switch l := loc.(type) {
		case ltl.R:
			if tgt.IsReserved(l.Reg) {
				return fmt.Errorf("%s assigned reserved register %s", r, l.Reg)
			}
			if class := classes.ClassOf(r); !inPool(class, l.Reg) {
				return fmt.Errorf("%s (%s) assigned %s outside its pool", r, class, l.Reg)
			}
		case ltl.S:
			if other, dup := slots[l.Slot]; dup {
				return fmt.Errorf("%s and %s share %s", other, r, l)
			}
			slots[l.Slot] = r
		}
	}
	for _, e := range graph.EdgeList() {
		l1, ok1 := c.Locs[e[0]].(ltl.R)
		l2, ok2 := c.Locs[e[1]].(ltl.R)
		if ok1 && ok2 && l1.Reg == l2.Reg {
			return fmt.Errorf("interfering %s and %s both assigned %s", e[0], e[1], l1.Reg)
		}
	}
	return nil
}

// Package regalloc assigns every virtual register a location: a machine
// register from its class's pool or, failing that, a fresh stack slot.
// It builds the interference graph from liveness and colors it with a
// simplify/select allocator that defers every spill decision to select.
package regalloc

import (
	"github.com/raymyers/ralph-backend/pkg/liveness"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

// InterferenceGraph represents the register interference graph.
// Two registers interfere if they are both live at the same point.
// The graph is undirected and has no self-edges.
type InterferenceGraph struct {
	// Nodes are virtual registers
	Nodes vir.RegSet
	// Edges maps each register to its interfering neighbors
	Edges map[vir.Reg]vir.RegSet
}

// NewInterferenceGraph creates an empty interference graph
func NewInterferenceGraph() *InterferenceGraph {
	return &InterferenceGraph{
		Nodes: vir.NewRegSet(),
		Edges: make(map[vir.Reg]vir.RegSet),
	}
}

// AddNode adds a register to the graph
func (g *InterferenceGraph) AddNode(r vir.Reg) {
	g.Nodes.Add(r)
	if _, ok := g.Edges[r]; !ok {
		g.Edges[r] = vir.NewRegSet()
	}
}

// AddEdge adds an interference edge between two registers
func (g *InterferenceGraph) AddEdge(r1, r2 vir.Reg) {
	g.AddNode(r1)
	g.AddNode(r2)
	if r1 == r2 {
		return // No self-edges
	}
	g.Edges[r1].Add(r2)
	g.Edges[r2].Add(r1)
}

// HasEdge returns true if there is an interference edge
func (g *InterferenceGraph) HasEdge(r1, r2 vir.Reg) bool {
	if edges, ok := g.Edges[r1]; ok {
		return edges.Contains(r2)
	}
	return false
}

// Degree returns the number of neighbors for a register
func (g *InterferenceGraph) Degree(r vir.Reg) int {
	if edges, ok := g.Edges[r]; ok {
		return edges.Len()
	}
	return 0
}

// Neighbors returns the interfering neighbors of a register
func (g *InterferenceGraph) Neighbors(r vir.Reg) vir.RegSet {
	if edges, ok := g.Edges[r]; ok {
		return edges.Copy()
	}
	return vir.NewRegSet()
}

// SortedNodes returns the nodes in ascending register order
func (g *InterferenceGraph) SortedNodes() []vir.Reg {
	return g.Nodes.Slice()
}

// EdgeList returns every edge once as an ordered pair (lower id first),
// sorted, for deterministic output
func (g *InterferenceGraph) EdgeList() [][2]vir.Reg {
	var edges [][2]vir.Reg
	for _, r := range g.SortedNodes() {
		for _, n := range g.Edges[r].Slice() {
			if r < n {
				edges = append(edges, [2]vir.Reg{r, n})
			}
		}
	}
	return edges
}

// BuildInterferenceGraph constructs the interference graph from liveness info.
// Every register that appears as a def or a use gets a node. Each block is
// scanned backwards from its live-out set: a definition interferes with
// everything live after it, is dead before it, and then the instruction's
// uses become live.
func BuildInterferenceGraph(fn *vir.Function, info *liveness.Info) *InterferenceGraph {
	g := NewInterferenceGraph()

	for _, r := range fn.Registers().Slice() {
		g.AddNode(r)
	}

	for _, id := range fn.SortedBlockIDs() {
		b := fn.Blocks[id]
		live := info.LiveOut[id].Copy()

		for i := len(b.Instrs) - 1; i >= 0; i-- {
			instr := &b.Instrs[i]
			if instr.Dest != nil {
				d := *instr.Dest
				for _, r := range live.Slice() {
					g.AddEdge(d, r)
				}
				live.Remove(d)
			}
			for _, r := range instr.Uses() {
				live.Add(r)
			}
		}
	}

	return g
}

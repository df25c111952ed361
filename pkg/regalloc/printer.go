package regalloc

import (
	"fmt"
	"io"
	"sort"

	"github.com/raymyers/ralph-backend/pkg/vir"
)

// Print writes each node with its neighbors, in ascending register order
func (g *InterferenceGraph) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s: %d nodes, %d edges\n", name, g.Nodes.Len(), len(g.EdgeList()))
	for _, r := range g.SortedNodes() {
		fmt.Fprintf(w, "  %s: %s\n", r, g.Edges[r])
	}
}

// Print writes the location of every register, in ascending register order
func (c *Coloring) Print(w io.Writer, name string) {
	fmt.Fprintf(w, "%s: %d spilled, %d stack slots\n", name, c.Spilled.Len(), c.NumSlots)
	regs := make([]vir.Reg, 0, len(c.Locs))
	for r := range c.Locs {
		regs = append(regs, r)
	}
	sort.Slice(regs, func(i, j int) bool {
		return regs[i] < regs[j]
	})
	for _, r := range regs {
		fmt.Fprintf(w, "  %s -> %s\n", r, c.Locs[r])
	}
}

package liveness

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-backend/pkg/vir"
)

// Print writes the live-in and live-out sets of every block, in ascending
// block order
func (info *Info) Print(w io.Writer, fn *vir.Function) {
	fmt.Fprintf(w, "%s: %d passes\n", fn.Name, info.Passes)
	for _, id := range fn.SortedBlockIDs() {
		fmt.Fprintf(w, "  b%d: in %s out %s\n", id, info.LiveIn[id], info.LiveOut[id])
	}
}

package sched

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-backend/pkg/ltl"
)

// Print writes a block schedule, one line per instruction in issue order:
// issue cycle, original index, instruction and completion time
func (r Result) Print(w io.Writer, body []ltl.Instruction) {
	fmt.Fprintf(w, "    ; %d cycles, %d stalls\n", r.Cycles, r.Stalls)
	for _, i := range r.Order {
		fmt.Fprintf(w, "    %3d: [%d] %s ; done %d\n", r.Issue[i], i, ltl.FormatInstruction(&body[i]), r.Completion[i])
	}
}

package emit

import (
	"fmt"
	"io"
	"runtime"

	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

// Writer outputs whole functions through an Encoder
type Writer struct {
	w        io.Writer
	enc      Encoder
	isDarwin bool
}

// NewWriter creates a new assembly writer
func NewWriter(w io.Writer, enc Encoder) *Writer {
	return &Writer{w: w, enc: enc, isDarwin: runtime.GOOS == "darwin"}
}

// symbolName returns the symbol name with platform-appropriate prefix
func (p *Writer) symbolName(name string) string {
	if p.isDarwin {
		return "_" + name
	}
	return name
}

// FrameSize returns the stack frame needed for fn's spill slots,
// rounded up to the 16-byte stack alignment
func FrameSize(fn *ltl.Function) int {
	size := fn.NumSlots * SlotSize
	return (size + 15) &^ 15
}

// WriteFunction outputs a function. Blocks are written in order; a block
// whose fallthrough successor is not the next block gets an explicit jump.
func (p *Writer) WriteFunction(fn *ltl.Function) {
	name := p.symbolName(fn.Name)
	fmt.Fprintf(p.w, "\t.align\t2\n")
	fmt.Fprintf(p.w, "\t.global\t%s\n", name)
	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.type\t%s, %%function\n", name)
	}
	fmt.Fprintf(p.w, "%s:\n", name)

	frame := FrameSize(fn)
	if frame > 0 {
		fmt.Fprintf(p.w, "\tsub\tsp, sp, #%d\n", frame)
	}
	if len(fn.Blocks) > 0 && fn.Blocks[0].ID != fn.Entry {
		p.writeJump(fn, fn.Entry)
	}

	for i, b := range fn.Blocks {
		fmt.Fprintf(p.w, "%s:\n", p.enc.Label(fn, b.ID))
		for j := range b.Body {
			p.writeLines(p.enc.Encode(fn, &b.Body[j]))
		}
		switch {
		case b.Term != nil:
			if b.Term.Op == vir.OpReturn && frame > 0 {
				fmt.Fprintf(p.w, "\tadd\tsp, sp, #%d\n", frame)
			}
			p.writeLines(p.enc.Encode(fn, b.Term))
		case b.Fallthrough != nil:
			if i+1 >= len(fn.Blocks) || fn.Blocks[i+1].ID != *b.Fallthrough {
				p.writeJump(fn, *b.Fallthrough)
			}
		default:
			// Falling off the end of the function returns
			if frame > 0 {
				fmt.Fprintf(p.w, "\tadd\tsp, sp, #%d\n", frame)
			}
			p.writeLines(p.enc.Encode(fn, &ltl.Instruction{Op: vir.OpReturn}))
		}
	}

	if !p.isDarwin {
		fmt.Fprintf(p.w, "\t.size\t%s, .-%s\n", name, name)
	}
	fmt.Fprintf(p.w, "\n")
}

func (p *Writer) writeJump(fn *ltl.Function, id vir.BlockID) {
	p.writeLines(p.enc.Encode(fn, &ltl.Instruction{Op: vir.OpJump, Targets: []vir.BlockID{id}}))
}

func (p *Writer) writeLines(lines []string) {
	for _, l := range lines {
		fmt.Fprintln(p.w, l)
	}
}

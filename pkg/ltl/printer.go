package ltl

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs location-form functions
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintFunction prints a function block by block
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "%s() {\n", fn.Name)
	if fn.NumSlots > 0 {
		fmt.Fprintf(p.w, "  ; %d stack slots\n", fn.NumSlots)
	}
	for _, b := range fn.Blocks {
		fmt.Fprintf(p.w, "  b%d:\n", b.ID)
		for i := range b.Body {
			fmt.Fprintf(p.w, "    %s\n", FormatInstruction(&b.Body[i]))
		}
		if b.Term != nil {
			fmt.Fprintf(p.w, "    %s\n", FormatInstruction(b.Term))
		} else if b.Fallthrough != nil {
			fmt.Fprintf(p.w, "    fallthrough b%d\n", *b.Fallthrough)
		}
	}
	fmt.Fprintln(p.w, "}")
	fmt.Fprintf(p.w, "entry: b%d\n", fn.Entry)
}

// FormatInstruction renders an instruction, e.g. "x0 = add x1, 4"
func FormatInstruction(instr *Instruction) string {
	var sb strings.Builder
	if instr.Dest != nil {
		fmt.Fprintf(&sb, "%s = ", instr.Dest)
	}
	sb.WriteString(instr.Op)
	for i, a := range instr.Args {
		if i == 0 {
			sb.WriteString(" ")
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(FormatOperand(a))
	}
	if len(instr.Targets) > 0 {
		sb.WriteString(" ->")
		for i, t := range instr.Targets {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " b%d", t)
		}
	}
	return sb.String()
}

// FormatOperand renders a location by name and an immediate by value
func FormatOperand(a Operand) string {
	switch o := a.(type) {
	case LocOperand:
		return o.Loc.String()
	case Imm:
		return fmt.Sprintf("%d", o.Value)
	default:
		return "???"
	}
}

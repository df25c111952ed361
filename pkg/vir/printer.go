package vir

import (
	"fmt"
	"io"
	"strings"
)

// Printer outputs the virtual-register IR in a readable text form
type Printer struct {
	w io.Writer
}

// NewPrinter creates a new IR printer
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints every function of a program
func (p *Printer) PrintProgram(prog *Program) {
	for i, fn := range prog.Functions {
		p.PrintFunction(fn)
		if i < len(prog.Functions)-1 {
			fmt.Fprintln(p.w)
		}
	}
}

// PrintFunction prints a function, blocks in ascending id order
func (p *Printer) PrintFunction(fn *Function) {
	fmt.Fprintf(p.w, "%s() {\n", fn.Name)
	for _, id := range fn.SortedBlockIDs() {
		b := fn.Blocks[id]
		fmt.Fprintf(p.w, "  b%d:\n", id)
		for i := range b.Instrs {
			fmt.Fprintf(p.w, "    %s\n", FormatInstruction(&b.Instrs[i]))
		}
		if b.Terminator() == nil && b.Fallthrough != nil {
			fmt.Fprintf(p.w, "    fallthrough b%d\n", *b.Fallthrough)
		}
	}
	fmt.Fprintln(p.w, "}")
	fmt.Fprintf(p.w, "entry: b%d\n", fn.Entry)
}

// FormatInstruction renders one instruction, e.g. "v3 = add v1, 4"
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

// FormatOperand renders a register as vN and an immediate as its value
func FormatOperand(a Operand) string {
	switch o := a.(type) {
	case RegOperand:
		return o.Reg.String()
	case Imm:
		return fmt.Sprintf("%d", o.Value)
	default:
		return "???"
	}
}

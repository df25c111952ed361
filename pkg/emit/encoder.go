// Package emit turns scheduled location-form functions into assembly text.
// Encoding of single instructions is behind the Encoder interface so that a
// binary encoder can replace the text one.
package emit

import (
	"fmt"
	"strings"

	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/target"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

// SlotSize is the size in bytes of one spill slot
const SlotSize = 8

// Encoder renders instructions of a function as assembly lines
type Encoder interface {
	// Encode returns the lines for one instruction (without newlines)
	Encode(fn *ltl.Function, in *ltl.Instruction) []string
	// Label returns the local label of a block
	Label(fn *ltl.Function, id vir.BlockID) string
}

// TextEncoder produces GNU as syntax, using the target's mnemonic table
type TextEncoder struct {
	Target *target.Target
}

// NewTextEncoder creates a text encoder for tgt
func NewTextEncoder(tgt *target.Target) *TextEncoder {
	return &TextEncoder{Target: tgt}
}

// Label returns ".L<function>_<block>"
func (e *TextEncoder) Label(fn *ltl.Function, id vir.BlockID) string {
	return fmt.Sprintf(".L%s_%d", fn.Name, id)
}

// Encode renders one instruction
func (e *TextEncoder) Encode(fn *ltl.Function, in *ltl.Instruction) []string {
	mn := e.Target.Mnemonic(in.Op)

	switch in.Kind {
	case ltl.Reload:
		return []string{line(mn, e.loc(in.Dest), e.operand(in.Args[0]))}
	case ltl.Spill:
		return []string{line(mn, e.operand(in.Args[0]), e.loc(in.Dest))}
	}

	switch in.Op {
	case vir.OpBranch:
		// Two-way branch: conditional jump to the first target, then an
		// unconditional one to the second
		return []string{
			line(mn, e.operand(in.Args[0]), e.Label(fn, in.Targets[0])),
			line(e.Target.Mnemonic(vir.OpJump), e.Label(fn, in.Targets[1])),
		}
	case vir.OpJump:
		return []string{line(mn, e.Label(fn, in.Targets[0]))}
	case vir.OpReturn:
		return []string{line(mn)}
	case "load":
		if in.Dest != nil && len(in.Args) == 1 {
			return []string{line(mn, e.loc(in.Dest), e.address(in.Args[0]))}
		}
	case "store":
		if len(in.Args) == 2 {
			return []string{line(mn, e.operand(in.Args[0]), e.address(in.Args[1]))}
		}
	}

	var ops []string
	if in.Dest != nil {
		ops = append(ops, e.loc(in.Dest))
	}
	for _, a := range in.Args {
		ops = append(ops, e.operand(a))
	}
	return []string{line(mn, ops...)}
}

func (e *TextEncoder) operand(a ltl.Operand) string {
	switch o := a.(type) {
	case ltl.LocOperand:
		return e.loc(o.Loc)
	case ltl.Imm:
		return fmt.Sprintf("#%d", o.Value)
	default:
		return "???"
	}
}

// address renders a base register operand as "[reg]"; an operand left in a
// stack slot is already a memory reference and is rendered as such
func (e *TextEncoder) address(a ltl.Operand) string {
	if l, ok := a.(ltl.LocOperand); ok {
		if r, ok := l.Loc.(ltl.R); ok {
			return "[" + string(r.Reg) + "]"
		}
	}
	return e.operand(a)
}

// loc renders a register by name and a stack slot as an sp-relative address
func (e *TextEncoder) loc(l ltl.Loc) string {
	switch x := l.(type) {
	case ltl.R:
		return string(x.Reg)
	case ltl.S:
		return fmt.Sprintf("[sp, #%d]", x.Slot*SlotSize)
	default:
		return "???"
	}
}

func line(mnemonic string, ops ...string) string {
	if len(ops) == 0 {
		return "\t" + mnemonic
	}
	return "\t" + mnemonic + "\t" + strings.Join(ops, ", ")
}

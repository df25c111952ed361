// Package ltl defines the location-based form of a function after register
// allocation. Virtual registers have been replaced by locations: machine
// registers or stack slots. Spilled values move between stack slots and
// scratch registers through explicit reload and spill instructions.
package ltl

import (
	"fmt"

	"github.com/raymyers/ralph-backend/pkg/vir"
)

// MReg is a machine register, named as the target description names it
type MReg string

// Loc is a location: either a machine register or a stack slot
type Loc interface {
	implLoc()
	String() string
}

// R is a machine register location
type R struct {
	Reg MReg
}

// S is a stack slot location. Slots are indexed from 0 and never shared
// between distinct spilled registers.
type S struct {
	Slot int
}

func (R) implLoc() {}
func (S) implLoc() {}

func (r R) String() string { return string(r.Reg) }
func (s S) String() string { return fmt.Sprintf("stack[%d]", s.Slot) }

// IsStack reports whether l is a stack slot
func IsStack(l Loc) bool {
	_, ok := l.(S)
	return ok
}

// Operand is an instruction input: a location or an immediate
type Operand interface {
	implOperand()
}

// LocOperand reads a location
type LocOperand struct {
	Loc Loc
}

// Imm is an integer immediate
type Imm struct {
	Value int64
}

func (LocOperand) implOperand() {}
func (Imm) implOperand()        {}

// Kind distinguishes selected instructions from inserted spill code
type Kind int

const (
	Normal Kind = iota
	Reload      // Dest = scratch register, Args[0] = stack slot
	Spill       // Dest = stack slot, Args[0] = scratch register
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Reload:
		return "reload"
	case Spill:
		return "spill"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Spill code opcodes
const (
	OpReload = "reload"
	OpSpill  = "spill"
)

// Instruction is a target-form instruction over locations
type Instruction struct {
	Kind    Kind
	Op      string
	Dest    Loc // nil if the instruction defines nothing
	Args    []Operand
	Targets []vir.BlockID
}

// NewReload builds a reload of slot into reg
func NewReload(slot S, reg R) Instruction {
	return Instruction{Kind: Reload, Op: OpReload, Dest: reg, Args: []Operand{LocOperand{Loc: slot}}}
}

// NewSpill builds a store of reg into slot
func NewSpill(reg R, slot S) Instruction {
	return Instruction{Kind: Spill, Op: OpSpill, Dest: slot, Args: []Operand{LocOperand{Loc: reg}}}
}

// Defs returns the locations written by the instruction
func (i *Instruction) Defs() []Loc {
	if i.Dest == nil {
		return nil
	}
	return []Loc{i.Dest}
}

// Uses returns the locations read by the instruction, in operand order
func (i *Instruction) Uses() []Loc {
	var locs []Loc
	for _, a := range i.Args {
		if l, ok := a.(LocOperand); ok {
			locs = append(locs, l.Loc)
		}
	}
	return locs
}

// Block is a basic block after selection. Body is the schedulable part;
// Term, when present, stays last.
type Block struct {
	ID          vir.BlockID
	Body        []Instruction
	Term        *Instruction
	Fallthrough *vir.BlockID
}

// Function is a function after register allocation and selection.
// Blocks are in ascending id order.
type Function struct {
	Name     string
	Entry    vir.BlockID
	Blocks   []*Block
	NumSlots int // stack slots used by spills
}

// Block returns the block with the given id, or nil
func (f *Function) Block(id vir.BlockID) *Block {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b
		}
	}
	return nil
}

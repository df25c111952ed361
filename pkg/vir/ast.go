// Package vir defines the virtual-register IR consumed by the backend.
// A function is a CFG of basic blocks; instructions name an opcode, an optional
// destination register and an ordered list of operands. Registers are
// SSA-like values with an unlimited supply, tagged with a register class.
package vir

import (
	"fmt"
	"sort"
)

// BlockID identifies a basic block within a function
type BlockID int

// Reg is a virtual register (positive integer, dense within a function)
type Reg int

func (r Reg) String() string {
	return fmt.Sprintf("v%d", int(r))
}

// Class is the register class a virtual register must be allocated from
type Class int

const (
	Integer Class = iota
	Float
)

func (c Class) String() string {
	switch c {
	case Integer:
		return "int"
	case Float:
		return "float"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

// Terminator opcodes. Every other opcode is a plain instruction.
const (
	OpBranch = "br"  // conditional branch: Targets[0] if taken, Targets[1] otherwise
	OpJump   = "jmp" // unconditional jump to Targets[0]
	OpReturn = "ret" // return, no successors
)

// --- Operands ---

// Operand is an instruction input: a register or an immediate
type Operand interface {
	implOperand()
}

// RegOperand reads a virtual register
type RegOperand struct {
	Reg Reg
}

// Imm is an integer immediate
type Imm struct {
	Value int64
}

func (RegOperand) implOperand() {}
func (Imm) implOperand()        {}

// --- Instructions ---

// Instruction is a single three-address instruction
type Instruction struct {
	Op      string    // opcode tag
	Dest    *Reg      // optional output register
	Args    []Operand // ordered inputs
	Targets []BlockID // branch/jump targets (terminators only)
}

// IsTerminator returns true for control transfer instructions
func (i *Instruction) IsTerminator() bool {
	return IsTerminatorOp(i.Op)
}

// IsTerminatorOp returns true if op ends a basic block
func IsTerminatorOp(op string) bool {
	switch op {
	case OpBranch, OpJump, OpReturn:
		return true
	}
	return false
}

// Uses returns the registers read by the instruction, in operand order
// (duplicates preserved)
func (i *Instruction) Uses() []Reg {
	var regs []Reg
	for _, a := range i.Args {
		if r, ok := a.(RegOperand); ok {
			regs = append(regs, r.Reg)
		}
	}
	return regs
}

// BasicBlock is a straight-line sequence of instructions.
// If the last instruction is not a terminator, control falls through to
// Fallthrough (when set) or leaves the function.
type BasicBlock struct {
	ID          BlockID
	Instrs      []Instruction
	Fallthrough *BlockID
}

// Terminator returns the block's terminator, or nil
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Instrs) == 0 {
		return nil
	}
	last := &b.Instrs[len(b.Instrs)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}

// Successors derives the successor list from the terminator
func (b *BasicBlock) Successors() []BlockID {
	term := b.Terminator()
	if term == nil {
		if b.Fallthrough != nil {
			return []BlockID{*b.Fallthrough}
		}
		return nil
	}
	switch term.Op {
	case OpBranch, OpJump:
		succs := make([]BlockID, len(term.Targets))
		copy(succs, term.Targets)
		return succs
	}
	return nil
}

// Function is a CFG of basic blocks
type Function struct {
	Name    string
	Entry   BlockID
	Blocks  map[BlockID]*BasicBlock
	Classes map[Reg]Class // registers missing here are Integer
}

// NewFunction creates an empty function
func NewFunction(name string) *Function {
	return &Function{
		Name:    name,
		Blocks:  make(map[BlockID]*BasicBlock),
		Classes: make(map[Reg]Class),
	}
}

// AddBlock adds a block to the function, replacing any block with the same id
func (f *Function) AddBlock(b *BasicBlock) {
	f.Blocks[b.ID] = b
}

// ClassOf returns the register class of r
func (f *Function) ClassOf(r Reg) Class {
	if c, ok := f.Classes[r]; ok {
		return c
	}
	return Integer
}

// SortedBlockIDs returns block ids in ascending order (for deterministic output)
func (f *Function) SortedBlockIDs() []BlockID {
	ids := make([]BlockID, 0, len(f.Blocks))
	for id := range f.Blocks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return ids[i] < ids[j]
	})
	return ids
}

// Registers returns every register defined or used anywhere in the function
func (f *Function) Registers() RegSet {
	regs := NewRegSet()
	for _, b := range f.Blocks {
		for i := range b.Instrs {
			instr := &b.Instrs[i]
			if instr.Dest != nil {
				regs.Add(*instr.Dest)
			}
			for _, r := range instr.Uses() {
				regs.Add(r)
			}
		}
	}
	return regs
}

// Program is a list of independent functions
type Program struct {
	Functions []*Function
}

// R is a convenience constructor for register operands
func R(r Reg) RegOperand {
	return RegOperand{Reg: r}
}

// Dst returns a pointer to r, for Instruction.Dest
func Dst(r Reg) *Reg {
	return &r
}

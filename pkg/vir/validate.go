package vir

import (
	"errors"
	"fmt"
)

// ErrMalformedInput indicates a function that violates the input contract:
// an unresolved block or register reference. It is an upstream compiler
// defect, never a user error.
var ErrMalformedInput = errors.New("malformed input")

// MalformedInputError names the offending function and reference
type MalformedInputError struct {
	Func   string
	Ref    string // the reference that did not resolve, e.g. "b9" or "v3"
	Detail string
}

func (e *MalformedInputError) Error() string {
	msg := fmt.Sprintf("internal compiler error: function %q: %s", e.Func, e.Ref)
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// Is makes errors.Is(err, ErrMalformedInput) match
func (e *MalformedInputError) Is(target error) bool {
	return target == ErrMalformedInput
}

// regIDSlack bounds register ids relative to function size. Register sets
// are dense bitsets sized by the largest id.
const regIDSlack = 1 << 16

func regLimit(fn *Function) Reg {
	n := 0
	for _, b := range fn.Blocks {
		n += len(b.Instrs)
	}
	return Reg(regIDSlack + 16*n)
}

func malformed(fn *Function, ref, format string, args ...any) error {
	return &MalformedInputError{Func: fn.Name, Ref: ref, Detail: fmt.Sprintf(format, args...)}
}

// Validate checks the input contract of a function: every referenced block
// exists, terminators are well formed and last, register ids are positive
// and dense enough to index a bitset, and every used register is defined
// somewhere in the function. A br takes exactly one register condition, a
// jmp takes no operands and a ret at most one.
// The first violation found (in ascending block order) is returned.
func Validate(fn *Function) error {
	if len(fn.Blocks) == 0 {
		return malformed(fn, "no blocks", "function has no basic blocks")
	}
	if _, ok := fn.Blocks[fn.Entry]; !ok {
		return malformed(fn, fmt.Sprintf("undefined block b%d", fn.Entry), "entry block")
	}

	limit := regLimit(fn)
	defined := NewRegSet()
	for _, id := range fn.SortedBlockIDs() {
		b := fn.Blocks[id]
		if b.ID != id {
			return malformed(fn, fmt.Sprintf("block b%d", id), "stored under id %d but named b%d", id, b.ID)
		}
		for idx := range b.Instrs {
			instr := &b.Instrs[idx]
			if err := validateInstr(fn, b, idx, instr, limit); err != nil {
				return err
			}
			if instr.Dest != nil {
				defined.Add(*instr.Dest)
			}
		}
		if b.Terminator() == nil && b.Fallthrough != nil {
			if _, ok := fn.Blocks[*b.Fallthrough]; !ok {
				return malformed(fn, fmt.Sprintf("undefined block b%d", *b.Fallthrough), "fallthrough of b%d", id)
			}
		}
	}

	// Use of an undefined register
	for _, id := range fn.SortedBlockIDs() {
		b := fn.Blocks[id]
		for idx := range b.Instrs {
			for _, r := range b.Instrs[idx].Uses() {
				if !defined.Contains(r) {
					return malformed(fn, "undefined register "+r.String(), "used in b%d at %d", id, idx)
				}
			}
		}
	}
	return nil
}

func checkReg(fn *Function, r, limit Reg, where string) error {
	if r <= 0 {
		return malformed(fn, "register "+r.String(), "register ids must be positive, %s", where)
	}
	if r > limit {
		return malformed(fn, "register "+r.String(), "register id exceeds %d for a function this size, %s", limit, where)
	}
	return nil
}

func validateInstr(fn *Function, b *BasicBlock, idx int, instr *Instruction, limit Reg) error {
	where := fmt.Sprintf("b%d at %d", b.ID, idx)
	if instr.Op == "" {
		return malformed(fn, "empty opcode", "%s", where)
	}
	if instr.Dest != nil {
		if err := checkReg(fn, *instr.Dest, limit, where); err != nil {
			return err
		}
	}
	for _, r := range instr.Uses() {
		if err := checkReg(fn, r, limit, where); err != nil {
			return err
		}
	}

	if !instr.IsTerminator() {
		if len(instr.Targets) > 0 {
			return malformed(fn, instr.Op, "non-terminator with targets, %s", where)
		}
		return nil
	}
	if idx != len(b.Instrs)-1 {
		return malformed(fn, instr.Op, "terminator is not the last instruction, %s", where)
	}

	want, maxArgs := 0, 1
	switch instr.Op {
	case OpBranch:
		want = 2
		if len(instr.Args) != 1 {
			return malformed(fn, instr.Op, "want 1 condition operand, got %d, %s", len(instr.Args), where)
		}
		if _, ok := instr.Args[0].(RegOperand); !ok {
			return malformed(fn, instr.Op, "condition must be a register, %s", where)
		}
	case OpJump:
		want, maxArgs = 1, 0
	}
	if len(instr.Args) > maxArgs {
		return malformed(fn, instr.Op, "want at most %d operands, got %d, %s", maxArgs, len(instr.Args), where)
	}
	if len(instr.Targets) != want {
		return malformed(fn, instr.Op, "want %d targets, got %d, %s", want, len(instr.Targets), where)
	}
	for _, t := range instr.Targets {
		if _, ok := fn.Blocks[t]; !ok {
			return malformed(fn, fmt.Sprintf("undefined block b%d", t), "target of %s", where)
		}
	}
	return nil
}

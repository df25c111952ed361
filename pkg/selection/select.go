// Package selection rewrites an allocated function into location form.
// Register operands become their assigned locations; values living in
// stack slots are reloaded into scratch registers before use and stored back
// after definition. Opcodes are kept as-is; mnemonics are chosen at emission.
package selection

import (
	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/regalloc"
	"github.com/raymyers/ralph-backend/pkg/target"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

// SelectionContext holds state for selecting one function
type SelectionContext struct {
	fn       *vir.Function
	coloring *regalloc.Coloring
	tgt      *target.Target
}

// NewSelectionContext creates a selection context
func NewSelectionContext(fn *vir.Function, coloring *regalloc.Coloring, tgt *target.Target) *SelectionContext {
	return &SelectionContext{fn: fn, coloring: coloring, tgt: tgt}
}

// Select rewrites fn using the locations of coloring
func Select(fn *vir.Function, coloring *regalloc.Coloring, tgt *target.Target) *ltl.Function {
	return NewSelectionContext(fn, coloring, tgt).SelectFunction()
}

// SelectFunction rewrites every block of the function, in ascending id order
func (ctx *SelectionContext) SelectFunction() *ltl.Function {
	out := &ltl.Function{
		Name:     ctx.fn.Name,
		Entry:    ctx.fn.Entry,
		NumSlots: ctx.coloring.NumSlots,
	}
	for _, id := range ctx.fn.SortedBlockIDs() {
		out.Blocks = append(out.Blocks, ctx.SelectBlock(ctx.fn.Blocks[id]))
	}
	return out
}

// SelectBlock rewrites one block. Reloads needed by the terminator are
// appended to the body so that the terminator itself stays last.
func (ctx *SelectionContext) SelectBlock(b *vir.BasicBlock) *ltl.Block {
	out := &ltl.Block{ID: b.ID, Fallthrough: b.Fallthrough}
	for i := range b.Instrs {
		instr := &b.Instrs[i]
		before, sel, after := ctx.SelectInstruction(instr)
		out.Body = append(out.Body, before...)
		if instr.IsTerminator() {
			term := sel
			out.Term = &term
			continue
		}
		out.Body = append(out.Body, sel)
		out.Body = append(out.Body, after...)
	}
	return out
}

// scratchPool hands out the scratch registers of each class for a single
// instruction
type scratchPool struct {
	tgt  *target.Target
	next map[vir.Class]int
}

func (p *scratchPool) take(class vir.Class) (ltl.R, bool) {
	regs := p.tgt.Scratch(class)
	n := p.next[class]
	if n >= len(regs) {
		return ltl.R{}, false
	}
	p.next[class] = n + 1
	return ltl.R{Reg: regs[n]}, true
}

// SelectInstruction rewrites one instruction. It returns the reloads to
// place before it, the rewritten instruction and the spills to place after.
// A spilled operand that finds no free scratch register of its class stays
// a stack slot operand.
func (ctx *SelectionContext) SelectInstruction(instr *vir.Instruction) (before []ltl.Instruction, sel ltl.Instruction, after []ltl.Instruction) {
	pool := &scratchPool{tgt: ctx.tgt, next: make(map[vir.Class]int)}
	reloaded := make(map[vir.Reg]ltl.R)

	sel = ltl.Instruction{
		Kind:    ltl.Normal,
		Op:      instr.Op,
		Targets: instr.Targets,
	}

	for _, a := range instr.Args {
		switch arg := a.(type) {
		case vir.Imm:
			sel.Args = append(sel.Args, ltl.Imm{Value: arg.Value})
		case vir.RegOperand:
			sel.Args = append(sel.Args, ltl.LocOperand{Loc: ctx.useLoc(arg.Reg, pool, reloaded, &before)})
		}
	}

	if instr.Dest != nil {
		d := *instr.Dest
		loc := ctx.loc(d)
		if slot, ok := loc.(ltl.S); ok {
			// Uses are read before the definition is written, so the def may
			// take the first scratch register again
			defPool := &scratchPool{tgt: ctx.tgt, next: make(map[vir.Class]int)}
			if reg, ok := defPool.take(ctx.fn.ClassOf(d)); ok {
				loc = reg
				after = append(after, ltl.NewSpill(reg, slot))
			}
		}
		sel.Dest = loc
	}

	return before, sel, after
}

func (ctx *SelectionContext) useLoc(r vir.Reg, pool *scratchPool, reloaded map[vir.Reg]ltl.R, before *[]ltl.Instruction) ltl.Loc {
	loc := ctx.loc(r)
	slot, ok := loc.(ltl.S)
	if !ok {
		return loc
	}
	if reg, ok := reloaded[r]; ok {
		return reg
	}
	reg, ok := pool.take(ctx.fn.ClassOf(r))
	if !ok {
		return slot
	}
	reloaded[r] = reg
	*before = append(*before, ltl.NewReload(slot, reg))
	return reg
}

// loc returns the location of r. The coloring is total over the
// function's registers, so a missing entry is a programming error.
func (ctx *SelectionContext) loc(r vir.Reg) ltl.Loc {
	loc, ok := ctx.coloring.Loc(r)
	if !ok {
		panic("selection: no location for " + r.String())
	}
	return loc
}

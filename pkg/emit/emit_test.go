package emit

import (
	"bytes"
	"strings"
	"testing"

	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/target"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

func reg(name ltl.MReg) ltl.Operand { return ltl.LocOperand{Loc: ltl.R{Reg: name}} }

func TestEncode(t *testing.T) {
	fn := &ltl.Function{Name: "f"}
	tests := []struct {
		name string
		in   ltl.Instruction
		want []string
	}{
		{"add", ltl.Instruction{Op: "add", Dest: ltl.R{Reg: "x0"}, Args: []ltl.Operand{reg("x1"), ltl.Imm{Value: 4}}},
			[]string{"\tadd\tx0, x1, #4"}},
		{"div mnemonic", ltl.Instruction{Op: "div", Dest: ltl.R{Reg: "x0"}, Args: []ltl.Operand{reg("x1"), reg("x2")}},
			[]string{"\tsdiv\tx0, x1, x2"}},
		{"memory operand", ltl.Instruction{Op: "add", Dest: ltl.R{Reg: "x0"}, Args: []ltl.Operand{ltl.LocOperand{Loc: ltl.S{Slot: 2}}}},
			[]string{"\tadd\tx0, [sp, #16]"}},
		{"load", ltl.Instruction{Op: "load", Dest: ltl.R{Reg: "x0"}, Args: []ltl.Operand{reg("x1")}},
			[]string{"\tldr\tx0, [x1]"}},
		{"store", ltl.Instruction{Op: "store", Args: []ltl.Operand{reg("x3"), reg("x4")}},
			[]string{"\tstr\tx3, [x4]"}},
		{"reload", ltl.NewReload(ltl.S{Slot: 1}, ltl.R{Reg: "x16"}),
			[]string{"\tldr\tx16, [sp, #8]"}},
		{"spill", ltl.NewSpill(ltl.R{Reg: "x17"}, ltl.S{Slot: 0}),
			[]string{"\tstr\tx17, [sp, #0]"}},
		{"branch", ltl.Instruction{Op: vir.OpBranch, Args: []ltl.Operand{reg("x0")}, Targets: []vir.BlockID{2, 3}},
			[]string{"\tcbnz\tx0, .Lf_2", "\tb\t.Lf_3"}},
		{"jump", ltl.Instruction{Op: vir.OpJump, Targets: []vir.BlockID{7}},
			[]string{"\tb\t.Lf_7"}},
		{"return", ltl.Instruction{Op: vir.OpReturn, Args: []ltl.Operand{reg("x0")}},
			[]string{"\tret"}},
		{"unknown opcode", ltl.Instruction{Op: "frob"},
			[]string{"\tfrob"}},
	}

	enc := NewTextEncoder(target.Default())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := enc.Encode(fn, &tt.in)
			if strings.Join(got, "\n") != strings.Join(tt.want, "\n") {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFrameSize(t *testing.T) {
	tests := []struct {
		slots int
		want  int
	}{
		{0, 0}, {1, 16}, {2, 16}, {3, 32}, {4, 32},
	}
	for _, tt := range tests {
		if got := FrameSize(&ltl.Function{NumSlots: tt.slots}); got != tt.want {
			t.Errorf("FrameSize(%d slots) = %d, want %d", tt.slots, got, tt.want)
		}
	}
}

func TestWriteFunction(t *testing.T) {
	two := vir.BlockID(2)
	fn := &ltl.Function{
		Name:     "loop",
		Entry:    1,
		NumSlots: 1,
		Blocks: []*ltl.Block{
			{ID: 1, Body: []ltl.Instruction{
				{Op: "mov", Dest: ltl.R{Reg: "x0"}, Args: []ltl.Operand{ltl.Imm{Value: 0}}},
			}, Fallthrough: &two},
			{ID: 2, Body: []ltl.Instruction{
				{Op: "add", Dest: ltl.R{Reg: "x0"}, Args: []ltl.Operand{reg("x0"), ltl.Imm{Value: 1}}},
			}, Term: &ltl.Instruction{Op: vir.OpBranch, Args: []ltl.Operand{reg("x0")}, Targets: []vir.BlockID{2, 4}}},
			{ID: 3, Fallthrough: &two},
			{ID: 4, Term: &ltl.Instruction{Op: vir.OpReturn}},
		},
	}

	var buf bytes.Buffer
	NewWriter(&buf, NewTextEncoder(target.Default())).WriteFunction(fn)
	out := buf.String()

	wantOrder := []string{
		"\tsub\tsp, sp, #16\n",
		".Lloop_1:\n",
		"\tmov\tx0, #0\n",
		".Lloop_2:\n",
		"\tadd\tx0, x0, #1\n",
		"\tcbnz\tx0, .Lloop_2\n",
		"\tb\t.Lloop_4\n",
		".Lloop_3:\n",
		"\tb\t.Lloop_2\n",
		".Lloop_4:\n",
		"\tadd\tsp, sp, #16\n",
		"\tret\n",
	}
	pos := 0
	for _, want := range wantOrder {
		idx := strings.Index(out[pos:], want)
		if idx < 0 {
			t.Fatalf("missing %q after offset %d in:\n%s", want, pos, out)
		}
		pos += idx + len(want)
	}

	// b1 falls through into b2, which is next: no jump between them
	if strings.Contains(out, "\tmov\tx0, #0\n\tb\t") {
		t.Errorf("unexpected jump after fallthrough block:\n%s", out)
	}
}

func TestWriteFunctionNoFrame(t *testing.T) {
	fn := &ltl.Function{
		Name:   "leaf",
		Entry:  1,
		Blocks: []*ltl.Block{{ID: 1}},
	}
	var buf bytes.Buffer
	NewWriter(&buf, NewTextEncoder(target.Default())).WriteFunction(fn)
	out := buf.String()

	if strings.Contains(out, "sp, sp") {
		t.Errorf("leaf function without slots should not adjust sp:\n%s", out)
	}
	if !strings.Contains(out, ".Lleaf_1:\n\tret\n") {
		t.Errorf("block falling off the end should return:\n%s", out)
	}
}

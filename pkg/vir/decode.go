package vir

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// programFile is the YAML layout of a program:
//
//	functions:
//	  - name: f
//	    entry: 1
//	    float: [v3]
//	    blocks:
//	      - id: 1
//	        instrs:
//	          - v1 = add v2, 4
//	          - br v1 -> b2, b3
//	      - id: 2
//	        fallthrough: 3
type programFile struct {
	Functions []functionFile `yaml:"functions"`
}

type functionFile struct {
	Name   string      `yaml:"name"`
	Entry  *int        `yaml:"entry"`
	Float  []string    `yaml:"float"`
	Blocks []blockFile `yaml:"blocks"`
}

type blockFile struct {
	ID          int      `yaml:"id"`
	Fallthrough *int     `yaml:"fallthrough"`
	Instrs      []string `yaml:"instrs"`
}

// DecodeProgram decodes a YAML program description.
// Syntax errors are reported as plain errors; contract violations such as
// undefined blocks are left to Validate.
func DecodeProgram(data []byte) (*Program, error) {
	var file programFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}

	prog := &Program{}
	for i, ff := range file.Functions {
		fn, err := decodeFunction(ff)
		if err != nil {
			name := ff.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("function %s: %w", name, err)
		}
		prog.Functions = append(prog.Functions, fn)
	}
	return prog, nil
}

func decodeFunction(ff functionFile) (*Function, error) {
	if ff.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	fn := NewFunction(ff.Name)
	for _, s := range ff.Float {
		r, err := ParseReg(s)
		if err != nil {
			return nil, err
		}
		fn.Classes[r] = Float
	}

	for _, bf := range ff.Blocks {
		if _, dup := fn.Blocks[BlockID(bf.ID)]; dup {
			return nil, fmt.Errorf("duplicate block b%d", bf.ID)
		}
		b := &BasicBlock{ID: BlockID(bf.ID)}
		if bf.Fallthrough != nil {
			ft := BlockID(*bf.Fallthrough)
			b.Fallthrough = &ft
		}
		for j, text := range bf.Instrs {
			instr, err := ParseInstruction(text)
			if err != nil {
				return nil, fmt.Errorf("b%d instruction %d: %w", bf.ID, j, err)
			}
			b.Instrs = append(b.Instrs, instr)
		}
		fn.AddBlock(b)
	}

	switch {
	case ff.Entry != nil:
		fn.Entry = BlockID(*ff.Entry)
	case len(ff.Blocks) > 0:
		fn.Entry = BlockID(ff.Blocks[0].ID)
	}
	return fn, nil
}

// ParseInstruction parses the text form produced by FormatInstruction:
//
//	[vD =] op [arg {, arg}] [-> bX {, bY}]
func ParseInstruction(text string) (Instruction, error) {
	var instr Instruction
	s := strings.TrimSpace(text)

	if lhs, rhs, ok := strings.Cut(s, "="); ok {
		dest, err := ParseReg(strings.TrimSpace(lhs))
		if err != nil {
			return instr, err
		}
		instr.Dest = &dest
		s = strings.TrimSpace(rhs)
	}

	if body, targets, ok := strings.Cut(s, "->"); ok {
		for _, t := range splitList(targets) {
			id, err := parseBlockRef(t)
			if err != nil {
				return instr, err
			}
			instr.Targets = append(instr.Targets, id)
		}
		s = strings.TrimSpace(body)
	}

	op, rest := s, ""
	if i := strings.IndexFunc(s, unicode.IsSpace); i >= 0 {
		op, rest = s[:i], s[i:]
	}
	if op == "" {
		return instr, fmt.Errorf("missing opcode in %q", text)
	}
	instr.Op = op
	for _, a := range splitList(rest) {
		operand, err := parseOperand(a)
		if err != nil {
			return instr, err
		}
		instr.Args = append(instr.Args, operand)
	}
	return instr, nil
}

// ParseReg parses a register reference of the form vN
func ParseReg(s string) (Reg, error) {
	if !strings.HasPrefix(s, "v") {
		return 0, fmt.Errorf("bad register %q", s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil {
		return 0, fmt.Errorf("bad register %q", s)
	}
	return Reg(n), nil
}

func parseBlockRef(s string) (BlockID, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(s, "b"))
	if err != nil {
		return 0, fmt.Errorf("bad block reference %q", s)
	}
	return BlockID(n), nil
}

func parseOperand(s string) (Operand, error) {
	if strings.HasPrefix(s, "v") {
		r, err := ParseReg(s)
		if err != nil {
			return nil, err
		}
		return RegOperand{Reg: r}, nil
	}
	n, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return nil, fmt.Errorf("bad operand %q", s)
	}
	return Imm{Value: n}, nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Package target holds the static target description shared by every
// function compiled for a machine: register pools, the reserved set, spill
// scratch registers, the opcode latency table and the mnemonic table.
// A Target is immutable once loaded and may be shared between goroutines.
package target

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/raymyers/ralph-backend/pkg/ltl"
	"github.com/raymyers/ralph-backend/pkg/vir"
)

//go:embed arm64.yaml
var arm64YAML []byte

// Target is a machine description
type Target struct {
	Name string

	// Allocatable pools, in the order registers are tried
	General []ltl.MReg
	Float   []ltl.MReg

	reserved map[ltl.MReg]bool
	scratch  map[vir.Class][]ltl.MReg

	latency        map[string]int
	defaultLatency int
	mnemonics      map[string]string
}

type targetFile struct {
	Name           string            `yaml:"name"`
	General        []string          `yaml:"general"`
	Float          []string          `yaml:"float"`
	Reserved       []string          `yaml:"reserved"`
	Scratch        scratchFile       `yaml:"scratch"`
	DefaultLatency int               `yaml:"default_latency"`
	Latency        map[string]int    `yaml:"latency"`
	Mnemonics      map[string]string `yaml:"mnemonics"`
}

type scratchFile struct {
	General []string `yaml:"general"`
	Float   []string `yaml:"float"`
}

// Default returns the built-in AArch64 description
func Default() *Target {
	t, err := Load(arm64YAML)
	if err != nil {
		panic(fmt.Sprintf("target: embedded arm64 description: %v", err))
	}
	return t
}

// LoadFile reads a YAML target description from disk
func LoadFile(path string) (*Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Load(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Load decodes and checks a YAML target description
func Load(data []byte) (*Target, error) {
	var f targetFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decoding target: %w", err)
	}
	t := &Target{
		Name:           f.Name,
		General:        toMRegs(f.General),
		Float:          toMRegs(f.Float),
		reserved:       make(map[ltl.MReg]bool),
		scratch:        make(map[vir.Class][]ltl.MReg),
		latency:        make(map[string]int),
		defaultLatency: f.DefaultLatency,
		mnemonics:      make(map[string]string),
	}
	for _, r := range f.Reserved {
		t.reserved[ltl.MReg(r)] = true
	}
	t.scratch[vir.Integer] = toMRegs(f.Scratch.General)
	t.scratch[vir.Float] = toMRegs(f.Scratch.Float)
	for op, n := range f.Latency {
		t.latency[op] = n
	}
	for op, m := range f.Mnemonics {
		t.mnemonics[op] = m
	}
	if t.defaultLatency == 0 {
		t.defaultLatency = 1
	}
	if err := t.check(); err != nil {
		return nil, err
	}
	return t, nil
}

// New builds a target from explicit pools. Latencies default to 1.
// It is meant for tests and embedders that do not use YAML descriptions.
func New(general, float, reserved []ltl.MReg) *Target {
	t := &Target{
		Name:           "custom",
		General:        general,
		Float:          float,
		reserved:       make(map[ltl.MReg]bool),
		scratch:        make(map[vir.Class][]ltl.MReg),
		latency:        make(map[string]int),
		defaultLatency: 1,
		mnemonics:      make(map[string]string),
	}
	for _, r := range reserved {
		t.reserved[r] = true
	}
	return t
}

// WithScratch returns a copy of t using the given spill scratch registers
func (t *Target) WithScratch(class vir.Class, regs ...ltl.MReg) *Target {
	c := t.clone()
	c.scratch[class] = regs
	return c
}

// WithLatency returns a copy of t with op's latency set to cycles
func (t *Target) WithLatency(op string, cycles int) *Target {
	c := t.clone()
	c.latency[op] = cycles
	return c
}

func (t *Target) clone() *Target {
	c := *t
	c.reserved = make(map[ltl.MReg]bool, len(t.reserved))
	for k, v := range t.reserved {
		c.reserved[k] = v
	}
	c.scratch = make(map[vir.Class][]ltl.MReg, len(t.scratch))
	for k, v := range t.scratch {
		c.scratch[k] = v
	}
	c.latency = make(map[string]int, len(t.latency))
	for k, v := range t.latency {
		c.latency[k] = v
	}
	c.mnemonics = make(map[string]string, len(t.mnemonics))
	for k, v := range t.mnemonics {
		c.mnemonics[k] = v
	}
	return &c
}

// Pool returns the allocatable registers for a class, in declaration order
func (t *Target) Pool(class vir.Class) []ltl.MReg {
	if class == vir.Float {
		return t.Float
	}
	return t.General
}

// IsReserved reports whether r must never be allocated
func (t *Target) IsReserved(r ltl.MReg) bool {
	return t.reserved[r]
}

// Scratch returns the spill scratch registers for a class
func (t *Target) Scratch(class vir.Class) []ltl.MReg {
	return t.scratch[class]
}

// Latency returns the cycle count of an opcode
func (t *Target) Latency(op string) int {
	if n, ok := t.latency[op]; ok {
		return n
	}
	return t.defaultLatency
}

// Mnemonic returns the assembler mnemonic of an opcode (the opcode itself
// when the table has no entry)
func (t *Target) Mnemonic(op string) string {
	if m, ok := t.mnemonics[op]; ok {
		return m
	}
	return op
}

// check verifies that pools are disjoint and that scratch registers are
// neither allocatable nor reserved
func (t *Target) check() error {
	seen := make(map[ltl.MReg]string)
	for _, pool := range []struct {
		name string
		regs []ltl.MReg
	}{{"general", t.General}, {"float", t.Float}} {
		for _, r := range pool.regs {
			if prev, dup := seen[r]; dup {
				return fmt.Errorf("register %s listed in both %s and %s pools", r, prev, pool.name)
			}
			seen[r] = pool.name
		}
	}
	for _, class := range []vir.Class{vir.Integer, vir.Float} {
		for _, r := range t.scratch[class] {
			if pool, ok := seen[r]; ok {
				return fmt.Errorf("scratch register %s is in the %s pool", r, pool)
			}
			if t.reserved[r] {
				return fmt.Errorf("scratch register %s is reserved", r)
			}
		}
	}
	for op, n := range t.latency {
		if n < 0 {
			return fmt.Errorf("negative latency %d for %s", n, op)
		}
	}
	return nil
}

func toMRegs(names []string) []ltl.MReg {
	regs := make([]ltl.MReg, len(names))
	for i, n := range names {
		regs[i] = ltl.MReg(n)
	}
	return regs
}

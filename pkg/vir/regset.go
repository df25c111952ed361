package vir

import (
	"strings"

	"github.com/bits-and-blooms/bitset"
)

// RegSet is a set of virtual registers.
// Register ids are dense small integers, so the set is a bitset. RegSet has
// reference semantics: copies share storage, use Copy for an independent set.
// The zero value is an empty read-only set; use NewRegSet before adding.
type RegSet struct {
	bits *bitset.BitSet
}

// NewRegSet creates a set holding regs
func NewRegSet(regs ...Reg) RegSet {
	s := RegSet{bits: bitset.New(0)}
	for _, r := range regs {
		s.Add(r)
	}
	return s
}

// Add inserts a register
func (s RegSet) Add(r Reg) {
	if r < 0 {
		panic("vir: negative register id")
	}
	s.bits.Set(uint(r))
}

// Remove deletes a register
func (s RegSet) Remove(r Reg) {
	if s.bits == nil || r < 0 {
		return
	}
	s.bits.Clear(uint(r))
}

// Contains tests membership
func (s RegSet) Contains(r Reg) bool {
	if s.bits == nil || r < 0 {
		return false
	}
	return s.bits.Test(uint(r))
}

// Len returns the number of registers in the set
func (s RegSet) Len() int {
	if s.bits == nil {
		return 0
	}
	return int(s.bits.Count())
}

// AddAll adds every member of other to s in place
func (s RegSet) AddAll(other RegSet) {
	if other.bits == nil {
		return
	}
	s.bits.InPlaceUnion(other.bits)
}

// Union returns s ∪ other as a new set
func (s RegSet) Union(other RegSet) RegSet {
	result := s.Copy()
	result.AddAll(other)
	return result
}

// Minus returns s − other as a new set
func (s RegSet) Minus(other RegSet) RegSet {
	if s.bits == nil {
		return NewRegSet()
	}
	if other.bits == nil {
		return s.Copy()
	}
	return RegSet{bits: s.bits.Difference(other.bits)}
}

// Equal returns true if both sets hold the same registers
func (s RegSet) Equal(other RegSet) bool {
	if s.Len() != other.Len() {
		return false
	}
	if s.Len() == 0 {
		return true
	}
	return s.bits.IsSuperSet(other.bits)
}

// Copy returns an independent copy of the set
func (s RegSet) Copy() RegSet {
	if s.bits == nil {
		return NewRegSet()
	}
	return RegSet{bits: s.bits.Clone()}
}

// Slice returns the members in ascending order
func (s RegSet) Slice() []Reg {
	if s.bits == nil {
		return nil
	}
	result := make([]Reg, 0, s.bits.Count())
	for i, ok := s.bits.NextSet(0); ok; i, ok = s.bits.NextSet(i + 1) {
		result = append(result, Reg(i))
	}
	return result
}

func (s RegSet) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, r := range s.Slice() {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(r.String())
	}
	sb.WriteString("}")
	return sb.String()
}

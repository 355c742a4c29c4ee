package vm

import "fmt"

// ProgramCapacity is the reference capacity of a Program: positions past
// the last meaningful op are implicitly Nop.
const ProgramCapacity = 256

// Program is a fixed-capacity ordered sequence of Op.
type Program struct {
	ops []Op
}

// NewProgram builds a Program from an ordered list of ops. It rejects
// programs longer than ProgramCapacity; positions beyond len(ops) read
// back as Nop via Get.
func NewProgram(ops ...Op) (*Program, error) {
	if len(ops) > ProgramCapacity {
		return nil, fmt.Errorf("vm: program has %d ops, capacity is %d: %w", len(ops), ProgramCapacity, ErrInvalidOperand)
	}
	cp := make([]Op, len(ops))
	copy(cp, ops)
	return &Program{ops: cp}, nil
}

// Len returns the number of explicitly provided ops (not the capacity).
func (p *Program) Len() int {
	return len(p.ops)
}

// Get returns the op at index i, or a Nop if i is at or beyond Len().
func (p *Program) Get(i int) Op {
	if i < 0 || i >= len(p.ops) {
		return Op{Type: Nop}
	}
	return p.ops[i]
}

// All returns the program's ops in order. The returned slice must not be
// mutated by the caller.
func (p *Program) All() []Op {
	return p.ops
}

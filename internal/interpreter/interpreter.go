// Package interpreter is the portable reference oracle: a straightforward
// dispatch loop over vm.Op whose observable behavior (registers, memory,
// and the order and content of CallOut invocations) is authoritative —
// the JIT must reproduce it byte-for-byte.
package interpreter

import (
	"fmt"

	"github.com/regvm/regvm/internal/vm"
)

// Run interprets program against env in place, returning when the
// top-level Return pops the final frame.
func Run(program *vm.Program, env *vm.ExecutionEnvironment) error {
	labels := indexLabels(program)

	frames := []int{int(env.PC)}
	for len(frames) > 0 {
		top := len(frames) - 1
		pc := frames[top]
		op := program.Get(pc)
		frames[top] = pc + 1

		switch op.Type {
		case vm.Nop, vm.LabelOp:
			// no runtime effect

		case vm.Return:
			frames = frames[:top]

		case vm.Load:
			env.Regs[op.RegA] = env.Mem[env.Regs[op.RegB]]

		case vm.Store:
			env.Mem[env.Regs[op.RegA]] = env.Regs[op.RegB]

		case vm.SetReg:
			env.Regs[op.RegA] = env.Regs[op.RegB]

		case vm.SetImm:
			env.Regs[op.RegA] = op.Imm

		case vm.AddReg:
			env.Regs[op.RegA] = env.Regs[op.RegA] + env.Regs[op.RegB]

		case vm.AddImm:
			env.Regs[op.RegA] = env.Regs[op.RegA] + op.Imm

		case vm.Negate:
			env.Regs[op.RegA] = -env.Regs[op.RegA]

		case vm.Jump:
			target, ok := labels[op.Target]
			if !ok {
				return fmt.Errorf("interpreter: jump to undefined label %q: %w", op.Target.String(), vm.ErrInvalidOperand)
			}
			frames[top] = target

		case vm.JumpIfZero:
			if env.Regs[op.RegA] == 0 {
				target, ok := labels[op.Target]
				if !ok {
					return fmt.Errorf("interpreter: jump to undefined label %q: %w", op.Target.String(), vm.ErrInvalidOperand)
				}
				frames[top] = target
			}

		case vm.Call:
			target, ok := labels[op.Target]
			if !ok {
				return fmt.Errorf("interpreter: call to undefined label %q: %w", op.Target.String(), vm.ErrInvalidOperand)
			}
			frames = append(frames, target)

		case vm.CallOut:
			op.Func(env)

		default:
			return fmt.Errorf("interpreter: unknown op type %v: %w", op.Type, vm.ErrInvalidOperand)
		}
	}
	return nil
}

// indexLabels builds a map from every Label op's name to its op index.
// If a label is defined more than once the last definition wins, matching
// the reference's silent-accept behavior (see DESIGN.md).
func indexLabels(program *vm.Program) map[vm.Label]int {
	labels := make(map[vm.Label]int)
	for i := 0; i < program.Len(); i++ {
		op := program.Get(i)
		if op.Type == vm.LabelOp {
			labels[op.Target] = i
		}
	}
	return labels
}

// Package arm is the 32-bit ARM (A32) native back-end. It completes the
// project's original reference implementation, which only covered
// SetReg/SetImm/AddReg/AddImm/Negate/Return and the preamble — Load,
// Store, Jump, JumpIfZero, Call, and CallOut are newly authored here in
// the same idiom (see DESIGN.md). r0-r3 hold the four virtual
// registers directly; r12 is the data base pointer; r14 is scratch, and
// doubles as the link register for the call/return convention below.
//
// A subroutine call is emulated on top of unconditional branches: a
// Call op computes its own return address, pushes it, then branches;
// Return always pops the top of stack into pc. This lets one Return
// encoding serve both a nested Call frame and the top-level entry,
// which fakes one more such "call" in its own preamble for the same
// reason the x86 back-ends use a real call/ret pair.
package arm

import (
	"encoding/binary"
	"fmt"

	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/vm"
)

type backend struct{}

// New returns the 32-bit ARM back-end.
func New() native.Backend { return backend{} }

func (backend) WordSize() int    { return 4 }
func (backend) TrapFill() byte   { return 0 }
func (backend) TrapWord() uint32 { return 0xe7f000f0 } // udf
func (backend) TrapIsWord() bool { return true }

func encodeReg(r vm.Register) (uint32, error) {
	switch r {
	case vm.R0, vm.R1, vm.R2, vm.R3:
		return uint32(r), nil
	default:
		return 0, fmt.Errorf("arm: register index %d out of range: %w", int(r), errInvalidOperand)
	}
}

var errInvalidOperand = fmt.Errorf("arm: invalid operand")
var errUnknownLabel = fmt.Errorf("arm: unknown label")

func push(reg uint32) uint32 { return 0xe52d0004 | (reg << 12) }
func pop(reg uint32) uint32  { return 0xe49d0004 | (reg << 12) }
func movReg(rd, rm uint32) uint32 { return 0xe1a00000 | (rd << 12) | rm }
func addRegs(rd, rn, rm uint32) uint32 { return 0xe0800000 | (rn << 16) | (rd << 12) | rm }
func movw(rd uint32, imm16 uint32) uint32 {
	return 0xe3000000 | (((imm16 >> 12) & 0xf) << 16) | (rd << 12) | (imm16 & 0xfff)
}
func movt(rd uint32, imm16 uint32) uint32 {
	return 0xe3400000 | (((imm16 >> 12) & 0xf) << 16) | (rd << 12) | (imm16 & 0xfff)
}
func ldrb(rd, rn, imm uint32) uint32 { return 0xe5d00000 | (rn << 16) | (rd << 12) | imm }
func strb(rd, rn, imm uint32) uint32 { return 0xe5c00000 | (rn << 16) | (rd << 12) | imm }

func writeWords(buf []byte, pos int, words []uint32) {
	if buf == nil {
		return
	}
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[pos+i*4:pos+i*4+4], w)
	}
}

// Preamble prepends a one-word ABI shim to the reference entry/exit
// sequence: Go's calling convention for 32-bit ARM, like 386, is
// stack-based, so the NativeState pointer this buffer is invoked with
// arrives at 0(SP) rather than in r0 as the reference implementation's
// AAPCS-style preamble assumes. "ldr r0, [sp]" bridges the two before
// the ported sequence runs unmodified.
func (backend) Preamble(buf []byte) int {
	abiShim := []uint32{0xe59d0000} // ldr r0, [sp]

	enter := []uint32{
		0xe52de004, // push {r14}
		0xe52d0004, // push {r0}

		0xe5901004, // ldr r1, [r0, #4]
		0xe5902008, // ldr r2, [r0, #8]
		0xe590300c, // ldr r3, [r0, #12]
		0xe590c010, // ldr r12, [r0, #16]
		0xe5900000, // ldr r0, [r0, #0]

		0xe28fe004, // add r14, pc, #4
		0xe52de004, // push {r14}
		0xe1a00000, // nop (patched to b <body>)
	}
	leave := []uint32{
		0xe49dc004, // pop {r12}

		0xe58c0000, // str r0, [r12, #0]
		0xe58c1004, // str r1, [r12, #4]
		0xe58c2008, // str r2, [r12, #8]
		0xe58c300c, // str r3, [r12, #12]

		0xe49df004, // pop {pc}

		0xe7f000f0, 0xe7f000f0, 0xe7f000f0, // trap guard
	}
	enter[len(enter)-1] = 0xea000000 + uint32(len(leave)) - 1

	words := append(append(append([]uint32{}, abiShim...), enter...), leave...)
	writeWords(buf, 0, words)
	return len(words) * 4
}

func (backend) Encode(op vm.Op, buf []byte, pos int, labels native.LabelMap) (int, error) {
	switch op.Type {
	case vm.Nop, vm.LabelOp:
		return 0, nil
	case vm.Load, vm.Store:
		return encodeLoadStore(op, buf, pos)
	case vm.SetReg, vm.SetImm:
		return encodeSet(op, buf, pos)
	case vm.AddReg, vm.AddImm, vm.Negate:
		return encodeArithmetic(op, buf, pos)
	case vm.Jump, vm.JumpIfZero:
		return encodeBranch(op, buf, pos, labels)
	case vm.Call:
		return encodeCall(op, buf, pos, labels)
	case vm.Return:
		return encodeReturn(buf, pos)
	case vm.CallOut:
		return encodeCallOut(op, buf, pos)
	default:
		return 0, fmt.Errorf("arm: unknown op type %v: %w", op.Type, errInvalidOperand)
	}
}

func encodeLoadStore(op vm.Op, buf []byte, pos int) (int, error) {
	a, err := encodeReg(op.RegA)
	if err != nil {
		return 0, err
	}
	b, err := encodeReg(op.RegB)
	if err != nil {
		return 0, err
	}
	var words []uint32
	if op.Type == vm.Load {
		words = []uint32{
			addRegs(14, 12, b), // add r14, r12, regB
			ldrb(a, 14, 0),     // ldrb regA, [r14]
		}
	} else {
		words = []uint32{
			addRegs(14, 12, a), // add r14, r12, regA
			strb(b, 14, 0),     // strb regB, [r14]
		}
	}
	writeWords(buf, pos, words)
	return len(words) * 4, nil
}

func encodeSet(op vm.Op, buf []byte, pos int) (int, error) {
	a, err := encodeReg(op.RegA)
	if err != nil {
		return 0, err
	}
	var words []uint32
	if op.Type == vm.SetImm {
		words = []uint32{0xe3a00000 | (a << 12) | uint32(op.Imm)}
	} else {
		b, err := encodeReg(op.RegB)
		if err != nil {
			return 0, err
		}
		words = []uint32{movReg(a, b)}
	}
	writeWords(buf, pos, words)
	return len(words) * 4, nil
}

func encodeArithmetic(op vm.Op, buf []byte, pos int) (int, error) {
	a, err := encodeReg(op.RegA)
	if err != nil {
		return 0, err
	}
	var words []uint32
	switch op.Type {
	case vm.AddImm:
		words = []uint32{
			0xe3a00000 | (0xe << 12) | uint32(op.Imm), // mov r14, imm
			addRegs(a, a, 14),                         // add reg, reg, r14
			0xe2000000 | (a << 16) | (a << 12) | 0xff, // and reg, reg, #255
		}
	case vm.AddReg:
		b, err := encodeReg(op.RegB)
		if err != nil {
			return 0, err
		}
		words = []uint32{
			addRegs(a, a, b),
			0xe2000000 | (a << 16) | (a << 12) | 0xff,
		}
	case vm.Negate:
		words = []uint32{
			0xe2600000 | (a << 16) | (a << 12), // rsb reg, reg, #0
			0xe2000000 | (a << 16) | (a << 12) | 0xff,
		}
	}
	writeWords(buf, pos, words)
	return len(words) * 4, nil
}

// encodeBranch handles Jump and JumpIfZero. The label map (like the
// other back-ends) is only populated during emission.
func encodeBranch(op vm.Op, buf []byte, pos int, labels native.LabelMap) (int, error) {
	var words []uint32
	switch op.Type {
	case vm.Jump:
		words = []uint32{0xea000000}
	case vm.JumpIfZero:
		a, err := encodeReg(op.RegA)
		if err != nil {
			return 0, err
		}
		words = []uint32{
			0xe3500000 | (a << 16), // cmp reg, #0
			0x0a000000,             // beq <offset>
		}
	}
	if buf != nil {
		target, ok := labels[op.Target]
		if !ok {
			return 0, fmt.Errorf("arm: %w", errUnknownLabel)
		}
		branchIdx := len(words) - 1
		fromWord := (pos + branchIdx*4) / 4
		toWord := target / 4
		offset := uint32(toWord-fromWord-2) & 0x00ffffff
		words[branchIdx] |= offset
	}
	writeWords(buf, pos, words)
	return len(words) * 4, nil
}

// encodeCall emits the same "push return address, then branch" idiom
// the preamble uses to enter the body, so that a plain Return (pop
// {pc}) serves as this call's return too.
func encodeCall(op vm.Op, buf []byte, pos int, labels native.LabelMap) (int, error) {
	words := []uint32{
		0xe28fe004, // add r14, pc, #4
		0xe52de004, // push {r14}
		0xea000000, // b <target> (patched)
	}
	if buf != nil {
		target, ok := labels[op.Target]
		if !ok {
			return 0, fmt.Errorf("arm: %w", errUnknownLabel)
		}
		fromWord := (pos + 2*4) / 4
		toWord := target / 4
		offset := uint32(toWord-fromWord-2) & 0x00ffffff
		words[2] |= offset
	}
	writeWords(buf, pos, words)
	return len(words) * 4, nil
}

func encodeReturn(buf []byte, pos int) (int, error) {
	writeWords(buf, pos, []uint32{0xe49df004}) // pop {pc}
	return 4, nil
}

// encodeCallOut stores the virtual registers into env.Regs through r12
// (the data base pointer), preserves r12 across the call, and invokes
// native.calloutThunk via the same stack-argument convention the
// preamble itself is entered with (env pushed last so it lands at the
// lowest address, arg0). See amd64's encodeCallOut and DESIGN.md for
// why this departs from the reference implementation's helper-thunk
// approach, which the original a32.cxx never finished anyway.
func encodeCallOut(op vm.Op, buf []byte, pos int) (int, error) {
	var words []uint32
	for i := uint32(0); i < vm.NumRegisters; i++ {
		words = append(words, strb(i, 12, vm.MemorySize+i))
	}

	fnWordIdx := len(words)
	words = append(words,
		0, 0, // movw/movt r14, #fn (patched)
		push(14), // push {r14}   (arg1: fn)
		push(12), // push {r12}   (arg0: env, also preserves r12)
	)
	thunkWordIdx := len(words)
	words = append(words,
		0, 0, // movw/movt r14, #thunk (patched)
		0xe12fff3e, // blx r14
		pop(12),    // pop {r12}  (restore data pointer)
		pop(14),    // pop {r14}  (discard fn arg)
	)

	for i := uint32(0); i < vm.NumRegisters; i++ {
		words = append(words, ldrb(i, 12, vm.MemorySize+i))
	}

	if buf != nil {
		fn := uint32(native.ClosureWord(op.Func))
		words[fnWordIdx] = movw(14, fn&0xffff)
		words[fnWordIdx+1] = movt(14, fn>>16)

		thunk := uint32(native.CalloutThunkEntry())
		words[thunkWordIdx] = movw(14, thunk&0xffff)
		words[thunkWordIdx+1] = movt(14, thunk>>16)
	}

	writeWords(buf, pos, words)
	return len(words) * 4, nil
}

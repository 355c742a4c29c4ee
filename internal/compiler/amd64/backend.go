// Package amd64 is the x86-64 native back-end: it lowers vm.Op values to
// machine code, using the same register assignment and instruction
// sequences as the project's original reference implementation (see
// DESIGN.md).
//
// Only caller-saved registers are used, so the body never has to restore
// anything on exit: rax, rcx, rdx, rsi hold the four virtual registers;
// r10 holds the data base pointer; r11 is a scratch temporary.
package amd64

import (
	"encoding/binary"
	"fmt"

	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/vm"
)

type backend struct{}

// New returns the x86-64 back-end.
func New() native.Backend { return backend{} }

func (backend) WordSize() int    { return 8 }
func (backend) TrapFill() byte   { return 0xcc } // int3
func (backend) TrapWord() uint32 { return 0 }
func (backend) TrapIsWord() bool { return false }

// encodeReg maps a virtual register to its 3-bit physical encoding:
// rax=0, rcx=1, rdx=2, rsi=6.
func encodeReg(r vm.Register) (byte, error) {
	switch r {
	case vm.R0:
		return 0x0, nil
	case vm.R1:
		return 0x1, nil
	case vm.R2:
		return 0x2, nil
	case vm.R3:
		return 0x6, nil
	default:
		return 0, fmt.Errorf("amd64: register index %d out of range: %w", int(r), native_ErrInvalidOperand)
	}
}

// native_ErrInvalidOperand avoids importing the compiler package (which
// would create a cycle back through this package's registration); the
// driver classifies any non-ErrUnknownLabel Encode error as an invalid
// operand regardless of its concrete type.
var native_ErrInvalidOperand = fmt.Errorf("amd64: invalid operand")

// Preamble is the ABI bridge plus the entry/exit shim. CompiledCode.Run
// invokes the generated buffer as a normal Go function value taking one pointer
// argument; Go's internal calling convention on amd64 delivers that
// argument in RAX, so a one-instruction shim moves it into RDI before
// the rest of the shim (ported directly from the reference
// implementation, which assumes the System V C convention's RDI) runs
// unmodified.
func (backend) Preamble(buf []byte) int {
	abiShim := []byte{0x48, 0x89, 0xc7} // mov %rax,%rdi

	enter := []byte{
		0x48, 0x83, 0xec, 0x38, // sub $0x38,%rsp
		0x48, 0x89, 0x7c, 0x24, 0x08, // mov %rdi,0x8(%rsp)
		0x48, 0x8b, 0x07, // mov (%rdi),%rax
		0x48, 0x8b, 0x4f, 0x08, // mov 0x8(%rdi),%rcx
		0x48, 0x8b, 0x57, 0x10, // mov 0x10(%rdi),%rdx
		0x48, 0x8b, 0x77, 0x18, // mov 0x18(%rdi),%rsi
		0x4c, 0x8b, 0x57, 0x20, // mov 0x20(%rdi),%r10
		0xe8, 0x00, 0x00, 0x00, 0x00, // call <leave-relative>
	}
	leave := []byte{
		0x48, 0x8b, 0x7c, 0x24, 0x08, // mov 0x8(%rsp),%rdi
		0x48, 0x89, 0x07, // mov %rax,(%rdi)
		0x48, 0x89, 0x4f, 0x08, // mov %rcx,0x8(%rdi)
		0x48, 0x89, 0x57, 0x10, // mov %rdx,0x10(%rdi)
		0x48, 0x89, 0x77, 0x18, // mov %rsi,0x18(%rdi)
		0x4c, 0x89, 0x57, 0x20, // mov %r10,0x20(%rdi)
		0x48, 0x83, 0xc4, 0x38, // add $0x38,%rsp
		0xc3,             // ret
		0xcc, 0xcc, 0xcc, // trap guard
	}
	binary.LittleEndian.PutUint32(enter[len(enter)-4:], uint32(len(leave)))

	if buf != nil {
		pos := copy(buf, abiShim)
		pos += copy(buf[pos:], enter)
		copy(buf[pos:], leave)
	}
	return len(abiShim) + len(enter) + len(leave)
}

func (b backend) Encode(op vm.Op, buf []byte, pos int, labels native.LabelMap) (int, error) {
	switch op.Type {
	case vm.Nop, vm.LabelOp:
		return 0, nil
	case vm.Load, vm.Store:
		return encodeLoadStore(op, buf, pos)
	case vm.SetReg, vm.SetImm:
		return encodeSet(op, buf, pos)
	case vm.AddReg, vm.AddImm, vm.Negate:
		return encodeArithmetic(op, buf, pos)
	case vm.Jump, vm.JumpIfZero, vm.Call:
		return encodeJump(op, buf, pos, labels)
	case vm.Return:
		return encodeReturn(buf, pos)
	case vm.CallOut:
		return encodeCallOut(op, buf, pos)
	default:
		return 0, fmt.Errorf("amd64: unknown op type %v: %w", op.Type, native_ErrInvalidOperand)
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
	var ins []byte
	if op.Type == vm.Load {
		ins = []byte{
			0x4d, 0x89, 0xd3, // mov %r10,%r11
			0x49, 0x01, 0xc3 | (b << 3), // add reg,%r11
			0x41, 0x0f, 0xb6, 0x03 | (a << 3), // movzbl (%r11),reg
		}
	} else {
		ins = []byte{
			0x4d, 0x89, 0xd3, // mov %r10,%r11
			0x49, 0x01, 0xc3 | (a << 3), // add reg,%r11
			0x41, 0x88, 0x03 | (b << 3), // mov reg8,(%r11)
		}
	}
	if buf != nil {
		copy(buf[pos:], ins)
	}
	return len(ins), nil
}

func encodeSet(op vm.Op, buf []byte, pos int) (int, error) {
	a, err := encodeReg(op.RegA)
	if err != nil {
		return 0, err
	}
	var ins []byte
	if op.Type == vm.SetImm {
		ins = []byte{0x48, 0xc7, 0xc0 | a, op.Imm, 0x00, 0x00, 0x00}
	} else {
		b, err := encodeReg(op.RegB)
		if err != nil {
			return 0, err
		}
		ins = []byte{0x48, 0x89, 0xc0 | (b << 3) | a}
	}
	if buf != nil {
		copy(buf[pos:], ins)
	}
	return len(ins), nil
}

func encodeArithmetic(op vm.Op, buf []byte, pos int) (int, error) {
	a, err := encodeReg(op.RegA)
	if err != nil {
		return 0, err
	}
	var ins []byte
	switch op.Type {
	case vm.AddImm:
		ins = []byte{
			0x48, 0x83, 0xc0 | a, op.Imm,
			0x48, 0x81, 0xe0 | a, 0xff, 0x00, 0x00, 0x00,
		}
	case vm.AddReg:
		b, err := encodeReg(op.RegB)
		if err != nil {
			return 0, err
		}
		ins = []byte{
			0x48, 0x01, 0xc0 | (b << 3) | a,
			0x48, 0x81, 0xe0 | a, 0xff, 0x00, 0x00, 0x00,
		}
	case vm.Negate:
		ins = []byte{
			0x48, 0xf7, 0xd8 | a,
			0x48, 0x81, 0xe0 | a, 0xff, 0x00, 0x00, 0x00,
		}
	}
	if buf != nil {
		copy(buf[pos:], ins)
	}
	return len(ins), nil
}

func encodeJump(op vm.Op, buf []byte, pos int, labels native.LabelMap) (int, error) {
	var ins []byte
	switch op.Type {
	case vm.Jump:
		ins = []byte{0xe9, 0x00, 0x00, 0x00, 0x00}
	case vm.JumpIfZero:
		a, err := encodeReg(op.RegA)
		if err != nil {
			return 0, err
		}
		ins = []byte{
			0x48, 0x85, 0xc0 | (a << 3) | a, // test reg,reg
			0x0f, 0x84, 0x00, 0x00, 0x00, 0x00, // jz rel32
		}
	case vm.Call:
		ins = []byte{0xe8, 0x00, 0x00, 0x00, 0x00}
	}
	// The label map is only populated during emission; the sizing pass
	// calls Encode with labels == nil and only needs ins's length.
	if buf != nil {
		target, ok := labels[op.Target]
		if !ok {
			return 0, fmt.Errorf("amd64: %w", errUnknownLabel)
		}
		rel := int32(target - (pos + len(ins)))
		binary.LittleEndian.PutUint32(ins[len(ins)-4:], uint32(rel))
		copy(buf[pos:], ins)
	}
	return len(ins), nil
}

func encodeReturn(buf []byte, pos int) (int, error) {
	if buf != nil {
		buf[pos] = 0xc3
	}
	return 1, nil
}

// encodeCallOut spills the virtual registers directly into
// env.Regs (reachable through r10, the data base pointer) the same way a
// Store op would, then calls into native.calloutThunk — the one piece of
// plain Go code a CallOut sequence ever reaches, responsible for the
// part raw bytes cannot do: invoking the (possibly closure) callback
// through Go's calling convention. See DESIGN.md for why this departs
// from the reference implementation's C-ABI helper thunk.
func encodeCallOut(op vm.Op, buf []byte, pos int) (int, error) {
	var ins []byte

	// Store rax,rcx,rdx,rsi into env.Regs[0..3] (offset vm.MemorySize+i
	// from the data base pointer r10), one byte each.
	storeRegModRM := []byte{0x82, 0x8a, 0x92, 0xb2} // al,cl,dl,sil -> (%r10,disp32)
	for i, modrm := range storeRegModRM {
		var disp [4]byte
		binary.LittleEndian.PutUint32(disp[:], uint32(vm.MemorySize+i))
		ins = append(ins, 0x41, 0x88, modrm)
		ins = append(ins, disp[:]...)
	}

	ins = append(ins,
		0x41, 0x52, // push %r10
		0x4c, 0x89, 0xd0, // mov %r10,%rax  (arg0: env)
	)

	fnWordOff := len(ins) + 2 // skip "mov $fn,%rbx" opcode bytes
	ins = append(ins, 0x48, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0)

	thunkWordOff := len(ins) + 2 // skip "mov $thunk,%r11" opcode bytes
	ins = append(ins, 0x49, 0xbb, 0, 0, 0, 0, 0, 0, 0, 0)

	ins = append(ins,
		0x41, 0xff, 0xd3, // call *%r11
		0x41, 0x5a, // pop %r10
	)

	loadRegModRM := []byte{0x82, 0x8a, 0x92, 0xb2} // rax,rcx,rdx,rsi <- (%r10,disp32)
	for i, modrm := range loadRegModRM {
		var disp [4]byte
		binary.LittleEndian.PutUint32(disp[:], uint32(vm.MemorySize+i))
		ins = append(ins, 0x41, 0x0f, 0xb6, modrm)
		ins = append(ins, disp[:]...)
	}

	if buf != nil {
		binary.LittleEndian.PutUint64(ins[fnWordOff:fnWordOff+8], uint64(native.ClosureWord(op.Func)))
		binary.LittleEndian.PutUint64(ins[thunkWordOff:thunkWordOff+8], uint64(native.CalloutThunkEntry()))
		copy(buf[pos:], ins)
	}
	return len(ins), nil
}

var errUnknownLabel = fmt.Errorf("amd64: unknown label")

// Package x86 is the 32-bit (386) native back-end, grounded on the
// project's original cdecl-convention reference implementation (see
// DESIGN.md). eax, ecx, edx, ebx hold the four virtual registers; edi
// is the data base pointer; esi is a scratch temporary.
package x86

import (
	"encoding/binary"
	"fmt"

	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/vm"
)

type backend struct{}

// New returns the 386 back-end.
func New() native.Backend { return backend{} }

func (backend) WordSize() int    { return 4 }
func (backend) TrapFill() byte   { return 0xcc } // int3
func (backend) TrapWord() uint32 { return 0 }
func (backend) TrapIsWord() bool { return false }

// encodeReg maps a virtual register to its physical encoding:
// eax=0, ecx=1, edx=2, ebx=3.
func encodeReg(r vm.Register) (byte, error) {
	switch r {
	case vm.R0:
		return 0x0, nil
	case vm.R1:
		return 0x1, nil
	case vm.R2:
		return 0x2, nil
	case vm.R3:
		return 0x3, nil
	default:
		return 0, fmt.Errorf("x86: register index %d out of range: %w", int(r), errInvalidOperand)
	}
}

var errInvalidOperand = fmt.Errorf("x86: invalid operand")
var errUnknownLabel = fmt.Errorf("x86: unknown label")

// Preamble ports the reference cdecl entry/exit shim unchanged: Go's
// 386 calling convention is already stack-based (ABI0), so the
// NativeState pointer lands at the same stack offset a C caller would
// leave it at, and no ABI bridging is required (unlike amd64).
func (backend) Preamble(buf []byte) int {
	enter := []byte{
		0x53, // push %ebx
		0x57, // push %edi
		0x56, // push %esi

		0x83, 0xec, 0x20, // sub $0x20,%esp

		0x8b, 0x74, 0x24, 0x30, // mov 0x30(%esp),%esi

		0x8b, 0x06, // mov (%esi),%eax
		0x8b, 0x4e, 0x04, // mov 0x4(%esi),%ecx
		0x8b, 0x56, 0x08, // mov 0x8(%esi),%edx
		0x8b, 0x5e, 0x0c, // mov 0xc(%esi),%ebx
		0x8b, 0x7e, 0x10, // mov 0x10(%esi),%edi

		0xe8, 0x00, 0x00, 0x00, 0x00, // call <leave-relative>
	}
	leave := []byte{
		0x8b, 0x74, 0x24, 0x30, // mov 0x30(%esp),%esi

		0x89, 0x06, // mov %eax,(%esi)
		0x89, 0x4e, 0x04, // mov %ecx,0x4(%esi)
		0x89, 0x56, 0x08, // mov %edx,0x8(%esi)
		0x89, 0x5e, 0x0c, // mov %ebx,0xc(%esi)
		0x89, 0x7e, 0x10, // mov %edi,0x10(%esi)

		0x83, 0xc4, 0x20, // add $0x20,%esp
		0x5e, // pop %esi
		0x5f, // pop %edi
		0x5b, // pop %ebx
		0xc3, // ret

		0xcc, 0xcc, 0xcc, // trap guard
	}
	binary.LittleEndian.PutUint32(enter[len(enter)-4:], uint32(len(leave)))

	if buf != nil {
		pos := copy(buf, enter)
		copy(buf[pos:], leave)
	}
	return len(enter) + len(leave)
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
	case vm.Jump, vm.JumpIfZero, vm.Call:
		return encodeJump(op, buf, pos, labels)
	case vm.Return:
		return encodeReturn(buf, pos)
	case vm.CallOut:
		return encodeCallOut(op, buf, pos)
	default:
		return 0, fmt.Errorf("x86: unknown op type %v: %w", op.Type, errInvalidOperand)
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
			0x89, 0xfe, // mov %edi,%esi
			0x01, 0xc6 | (b << 3), // add reg,%esi
			0x0f, 0xb6, 0x06 | (a << 3), // movzbl (%esi),reg
		}
	} else {
		ins = []byte{
			0x89, 0xfe, // mov %edi,%esi
			0x01, 0xc6 | (a << 3), // add reg,%esi
			0x88, 0x06 | (b << 3), // mov reg8,(%esi)
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
		ins = []byte{0xb8 | a, op.Imm, 0x00, 0x00, 0x00}
	} else {
		b, err := encodeReg(op.RegB)
		if err != nil {
			return 0, err
		}
		ins = []byte{0x89, 0xc0 | (b << 3) | a}
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
			0x81, 0xc0 | a, op.Imm, 0x00, 0x00, 0x00,
			0x81, 0xe0 | a, 0xff, 0x00, 0x00, 0x00,
		}
	case vm.AddReg:
		b, err := encodeReg(op.RegB)
		if err != nil {
			return 0, err
		}
		ins = []byte{
			0x01, 0xc0 | (b << 3) | a,
			0x81, 0xe0 | a, 0xff, 0x00, 0x00, 0x00,
		}
	case vm.Negate:
		ins = []byte{
			0xf7, 0xd8 | a,
			0x81, 0xe0 | a, 0xff, 0x00, 0x00, 0x00,
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
			0x85, 0xc0 | (a << 3) | a, // test reg,reg
			0x0f, 0x84, 0x00, 0x00, 0x00, 0x00, // jz rel32
		}
	case vm.Call:
		ins = []byte{0xe8, 0x00, 0x00, 0x00, 0x00}
	}
	if buf != nil {
		target, ok := labels[op.Target]
		if !ok {
			return 0, fmt.Errorf("x86: %w", errUnknownLabel)
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

// encodeCallOut stores the virtual registers into env.Regs through edi
// (the data base pointer), then calls native.calloutThunk with a
// cdecl-style stack call: fn is pushed first, env pushed last so it
// lands at the lowest address (arg0), matching Go's ABI0 stack
// convention for 386. See amd64's encodeCallOut and DESIGN.md for why
// this departs from the reference implementation's helper-thunk
// approach, which relied on a raw C function pointer.
func encodeCallOut(op vm.Op, buf []byte, pos int) (int, error) {
	var ins []byte

	storeRegModRM := []byte{0x80, 0x88, 0x90, 0x98} // al,cl,dl,bl -> (%edi,disp32)
	for i, modrm := range storeRegModRM {
		var disp [4]byte
		binary.LittleEndian.PutUint32(disp[:], uint32(vm.MemorySize+i))
		ins = append(ins, 0x88, modrm|0x07)
		ins = append(ins, disp[:]...)
	}

	fnImmOff := len(ins) + 1 // skip "push $fn" opcode byte
	ins = append(ins, 0x68, 0, 0, 0, 0) // push $fn
	ins = append(ins, 0x57)             // push %edi (env)

	thunkImmOff := len(ins) + 1 // skip "mov $thunk,%eax" opcode byte
	ins = append(ins, 0xb8, 0, 0, 0, 0) // mov $thunk,%eax
	ins = append(ins,
		0xff, 0xd0, // call *%eax
		0x83, 0xc4, 0x08, // add $0x8,%esp
	)

	loadRegModRM := []byte{0x80, 0x88, 0x90, 0x98} // eax,ecx,edx,ebx <- (%edi,disp32)
	for i, modrm := range loadRegModRM {
		var disp [4]byte
		binary.LittleEndian.PutUint32(disp[:], uint32(vm.MemorySize+i))
		ins = append(ins, 0x0f, 0xb6, modrm|0x07)
		ins = append(ins, disp[:]...)
	}

	if buf != nil {
		binary.LittleEndian.PutUint32(ins[fnImmOff:fnImmOff+4], uint32(native.ClosureWord(op.Func)))
		binary.LittleEndian.PutUint32(ins[thunkImmOff:thunkImmOff+4], uint32(native.CalloutThunkEntry()))
		copy(buf[pos:], ins)
	}
	return len(ins), nil
}

package native

import "github.com/regvm/regvm/internal/vm"

// NativeState is the struct the generated code's entry point reads from
// and writes to: four machine-word-sized register slots followed by a
// pointer to the environment. uintptr is exactly the native word size on
// every architecture Go targets, so this single definition serves x86-32,
// ARM A32 (4-byte words), and x86-64 (8-byte words) without needing a
// separate type per back-end.
//
// High bits above the 8-bit Value width may be written by native code;
// the driver truncates when copying register values back out.
type NativeState struct {
	Regs [vm.NumRegisters]uintptr
	Data uintptr
}

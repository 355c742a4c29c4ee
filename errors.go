package regvm

import "github.com/regvm/regvm/internal/compiler"

// Compile error sentinels. Use errors.Is to test a Compile error
// against one of these; CompileError additionally carries the
// offending op index and label.
var (
	ErrUnknownLabel           = compiler.ErrUnknownLabel
	ErrInvalidOperand         = compiler.ErrInvalidOperand
	ErrAllocFailed            = compiler.ErrAllocFailed
	ErrProtectFailed          = compiler.ErrProtectFailed
	ErrInternalSizingMismatch = compiler.ErrInternalSizingMismatch
	ErrUnsupportedArch        = compiler.ErrUnsupportedArch
)

// CompileError is returned by Compile when a program cannot be lowered;
// errors.As recovers OpIndex and Label alongside the Kind sentinel.
type CompileError = compiler.CompileError

// Package regvm is a register-based toy virtual machine with both a
// portable interpreter and a per-architecture JIT compiler that produce
// byte-identical observable behavior. See SPEC_FULL.md for the full
// design; package doc here covers the external surface only.
package regvm

import (
	"github.com/regvm/regvm/internal/compiler"
	"github.com/regvm/regvm/internal/interpreter"
	"github.com/regvm/regvm/internal/vm"
)

// Re-exported value and register types.
type (
	Value    = vm.Value
	Register = vm.Register
	Label    = vm.Label
	Op       = vm.Op
	OpType   = vm.OpType

	// CallOutFunc is a host callback invoked by a CallOut op, under both
	// the interpreter and the JIT.
	CallOutFunc = vm.CallOutFunc

	// Program is a fixed-capacity sequence of ops.
	Program = vm.Program

	// ExecutionEnvironment is the mutable state a Program runs against:
	// memory, registers, and an opaque UserData pointer for CallOut.
	ExecutionEnvironment = vm.ExecutionEnvironment
)

// Register names.
const (
	R0 = vm.R0
	R1 = vm.R1
	R2 = vm.R2
	R3 = vm.R3
)

// NumRegisters is the fixed register file size.
const NumRegisters = vm.NumRegisters

// MemorySize is the fixed memory size, in bytes.
const MemorySize = vm.MemorySize

// ProgramCapacity is the fixed maximum op count for a Program.
const ProgramCapacity = vm.ProgramCapacity

// LabelSize is the fixed encoded size of a Label.
const LabelSize = vm.LabelSize

// Op constructors.
var (
	NewNop       = vm.NewNop
	NewReturn    = vm.NewReturn
	NewLoad      = vm.NewLoad
	NewStore     = vm.NewStore
	NewSetReg    = vm.NewSetReg
	NewSetImm    = vm.NewSetImm
	NewAddReg    = vm.NewAddReg
	NewAddImm    = vm.NewAddImm
	NewNegate    = vm.NewNegate
	NewJump      = vm.NewJump
	NewJumpIfZero = vm.NewJumpIfZero
	NewCall      = vm.NewCall
	NewLabelOp   = vm.NewLabelOp
	NewCallOut   = vm.NewCallOut

	NewLabel            = vm.NewLabel
	NewProgram          = vm.NewProgram
	NewExecutionEnvironment = vm.NewExecutionEnvironment
)

// Run interprets program against env, starting at env.PC. It is the
// portable oracle: CompiledCode.Run must agree with it bit-for-bit for
// every program this package accepts.
func Run(program *Program, env *ExecutionEnvironment) error {
	return interpreter.Run(program, env)
}

// CompiledCode is an owning handle over a JIT-compiled program's
// executable memory.
type CompiledCode struct {
	inner *compiler.CompiledCode
}

// Run executes the compiled program against env. Unlike the
// interpreter, execution always starts at the program's first op;
// env.PC is not consulted.
func (c *CompiledCode) Run(env *ExecutionEnvironment) {
	c.inner.Run(env)
}

// Close releases the executable memory backing c. Run must not be
// called again afterward.
func (c *CompiledCode) Close() error {
	return c.inner.Close()
}

// Compile lowers program to native machine code for the host
// architecture and returns an owning, executable handle. It fails with
// ErrUnsupportedArch if this build has no back-end linked in for
// GOARCH.
func Compile(program *Program) (*CompiledCode, error) {
	cc, err := compiler.Compile(program)
	if err != nil {
		return nil, err
	}
	return &CompiledCode{inner: cc}, nil
}

package compiler

import (
	"fmt"
	"reflect"
	"unsafe"

	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/platform"
	"github.com/regvm/regvm/internal/vm"
)

// CompiledCode is an owning handle over an executable code buffer. It is
// created by Compile, may be transferred, and must be released exactly
// once via Close; a zero value is not usable.
type CompiledCode struct {
	buf      []byte
	entry    func(*native.NativeState)
	wordSize int
	closed   bool
}

func newCompiledCode(buf []byte, wordSize int) *CompiledCode {
	cc := &CompiledCode{buf: buf, wordSize: wordSize}
	cc.entry = makeEntry(buf)
	return cc
}

// makeEntry turns the executable byte slice into a callable Go function
// value, per the layout described in "Go 1.1 Function Calls": a
// non-closure func value is a pointer to a pointer to the code. buf must
// already be mapped read+execute before the returned function is ever
// invoked.
func makeEntry(buf []byte) func(*native.NativeState) {
	var fn func(*native.NativeState)
	setFunctionCode(&fn, buf)
	return fn
}

// setFunctionCode points dst (a pointer to a function value) at code.
// dst must be a non-nil pointer to a function value; the function value
// itself may be nil.
func setFunctionCode(dst interface{}, code []byte) {
	type interfaceHeader struct {
		typ  uintptr
		addr **[]byte
	}
	v := reflect.ValueOf(dst)
	if !v.IsValid() || v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Func {
		panic("regvm: setFunctionCode requires a pointer to a function value")
	}
	header := *(*interfaceHeader)(unsafe.Pointer(&dst))
	*header.addr = &code
}

// Run executes the compiled program: it copies env's registers into a
// zeroed NativeState, sets the state's data pointer to env's memory
// base, invokes the code buffer, then copies the register slots back
// into env (truncated to 8 bits).
func (c *CompiledCode) Run(env *vm.ExecutionEnvironment) {
	if c.closed {
		panic("regvm: CompiledCode.Run called after Close")
	}
	var state native.NativeState
	for i := 0; i < vm.NumRegisters; i++ {
		state.Regs[i] = uintptr(env.Regs[i])
	}
	state.Data = uintptr(unsafe.Pointer(&env.Mem[0]))

	c.entry(&state)

	for i := 0; i < vm.NumRegisters; i++ {
		env.Regs[i] = vm.Value(state.Regs[i])
	}
}

// Close releases the executable memory backing this handle. Calling Run
// after Close is a programming error.
func (c *CompiledCode) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if err := platform.Release(c.buf); err != nil {
		return fmt.Errorf("compiler: failed to release compiled code: %w", err)
	}
	return nil
}

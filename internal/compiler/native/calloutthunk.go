package native

import (
	"reflect"
	"unsafe"

	"github.com/regvm/regvm/internal/vm"
)

// calloutThunk is the one piece of plain Go code a CallOut encoding ever
// calls into. Every architecture's CallOut sequence marshals the virtual
// registers into env.Regs itself, using the data-base register exactly
// like a Store op, before reaching here — so this thunk's only remaining
// job is the part raw bytes cannot do: invoking the (possibly closure)
// callback through Go's own calling convention, which Go source code
// does automatically and safely.
func calloutThunk(env *vm.ExecutionEnvironment, fn vm.CallOutFunc) {
	fn(env)
}

// CalloutThunkEntry returns calloutThunk's entry address, for embedding
// as a literal constant in a CallOut encoding's machine code.
func CalloutThunkEntry() uintptr {
	return reflect.ValueOf(calloutThunk).Pointer()
}

// ClosureWord returns fn's own representation as a single pointer-sized
// word: a non-nil Go func value is itself a pointer, so this is simply
// that pointer's bit pattern, embedded as a literal constant and passed
// back to calloutThunk unchanged by the generated code.
func ClosureWord(fn vm.CallOutFunc) uintptr {
	return *(*uintptr)(unsafe.Pointer(&fn))
}

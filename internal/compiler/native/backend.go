// Package native defines the contract every architecture back-end
// implements, the NativeState layout generated code exchanges values
// through, and the registry the compiler package's build-tag-gated glue
// uses to install the host's backend at program init time. It has no
// dependency on the compiler driver so that per-architecture packages
// (amd64, x86, arm) can depend on it without creating an import cycle
// back through the driver that wires them in.
package native

import (
	"fmt"
	"reflect"

	"github.com/regvm/regvm/internal/vm"
)

// LabelMap is an intermediate-only mapping from Label to byte offset
// within the code buffer, scoped to a single Compile call.
type LabelMap map[vm.Label]int

// Backend is implemented once per supported architecture (x86-64, x86-32,
// ARM A32). Exactly one is registered as Default in a given binary: the
// compiler package's select_*.go files, each gated by its own
// //go:build constraint, construct and Register the one backend whose
// constraint matches the build.
//
// Preamble and Encode share a sizing/emission duality: when buf is nil
// they report how many bytes they would write without writing anything;
// otherwise they write exactly that many bytes at the given position.
// The sizing pass must get the same byte count back as the emission pass
// later produces for the same op — see the compiler driver.
type Backend interface {
	// Preamble returns the number of bytes the architecture's entry shim
	// occupies, writing them to buf[0:] if buf is non-nil.
	Preamble(buf []byte) int

	// Encode returns the number of bytes op occupies, writing them to
	// buf[pos:] if buf is non-nil. labels is only consulted (and only
	// needs to be populated) during emission; during sizing it may be
	// nil, since Jump/JumpIfZero/Call encode to a fixed-width
	// instruction regardless of the target.
	Encode(op vm.Op, buf []byte, pos int, labels LabelMap) (int, error)

	// WordSize returns 4 for 32-bit architectures, 8 for 64-bit.
	WordSize() int

	// TrapFill returns the single byte (x86) the finalize step repeats
	// across the buffer's unused tail. ARM uses TrapWord instead.
	TrapFill() byte

	// TrapWord returns the 32-bit instruction word ARM repeats across
	// the buffer's unused tail. Unused on byte-oriented architectures.
	TrapWord() uint32

	// TrapIsWord reports whether the tail must be filled with TrapWord
	// (four bytes at a time, fixed-width ISA) rather than TrapFill (one
	// byte at a time).
	TrapIsWord() bool
}

var registered Backend

// Register installs b as the backend for the running binary's GOARCH.
// Called from the init() of the compiler package's select_*.go build-tag
// glue, exactly one of which matches any given GOARCH; a second,
// differing registration means two back-ends got linked into the same
// binary, which would make Default's choice arbitrary, so Register
// panics instead of silently letting the later one win. Tests that
// deliberately exercise more than one back-end in the same process
// must do so through CompileWith against an explicitly constructed
// Backend value, not through Default.
func Register(b Backend) {
	if registered != nil && reflect.TypeOf(registered) != reflect.TypeOf(b) {
		panic(fmt.Sprintf("native: Register called with %T after %T was already registered", b, registered))
	}
	registered = b
}

// Default returns the backend registered for the running binary's
// GOARCH, or ok=false if the host architecture has none linked in.
func Default() (b Backend, ok bool) {
	return registered, registered != nil
}

package compiler

import (
	"errors"
	"strconv"
)

// Error kinds surfaced to the caller of Compile, per the error handling
// design: a failure value carries one of these sentinels, either as the
// Kind of a CompileError (which adds the offending op index and label) or
// wrapped with fmt.Errorf("%w: %v", ...) around the underlying OS error.
var (
	// ErrUnknownLabel: a control-flow op references a label that no Label
	// op defines. Detected during the second (emission) pass.
	ErrUnknownLabel = errors.New("compiler: unknown label")

	// ErrInvalidOperand: a register index is out of range, or an
	// operation's payload does not match its tag. Detected at encode.
	ErrInvalidOperand = errors.New("compiler: invalid operand")

	// ErrAllocFailed: could not obtain RW pages.
	ErrAllocFailed = errors.New("compiler: failed to allocate executable memory")

	// ErrProtectFailed: could not transition RW to RX.
	ErrProtectFailed = errors.New("compiler: failed to make buffer executable")

	// ErrInternalSizingMismatch: the emission pass wrote a different
	// number of bytes than the sizing pass predicted for some op. This
	// is a back-end bug, not a user error — CompileWith panics with a
	// message naming this error instead of returning it.
	ErrInternalSizingMismatch = errors.New("compiler: internal sizing mismatch")

	// ErrUnsupportedArch: compile was invoked on a GOARCH with no linked
	// back-end.
	ErrUnsupportedArch = errors.New("compiler: no native back-end for this architecture")
)

// CompileError wraps one of the sentinels above with the op index (and,
// where known, the offending label) that triggered it.
type CompileError struct {
	Kind    error
	OpIndex int
	Label   string
}

func (e *CompileError) Error() string {
	if e.Label != "" {
		return e.Kind.Error() + ": op " + strconv.Itoa(e.OpIndex) + ", label " + e.Label
	}
	return e.Kind.Error() + ": op " + strconv.Itoa(e.OpIndex)
}

func (e *CompileError) Unwrap() error {
	return e.Kind
}

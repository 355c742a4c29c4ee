package compiler

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/platform"
	"github.com/regvm/regvm/internal/vm"
)

// Compile lowers program to native machine code for the host
// architecture's registered back-end and returns an owning, executable
// CompiledCode handle. It fails with ErrUnsupportedArch if no back-end is
// linked in for GOARCH.
func Compile(program *vm.Program) (*CompiledCode, error) {
	backend, ok := native.Default()
	if !ok {
		return nil, ErrUnsupportedArch
	}
	return CompileWith(program, backend)
}

// CompileWith lowers program using an explicit back-end, bypassing the
// host-architecture registry. This exists mainly so a back-end's sizing
// and emission logic can be exercised by tests on any host, independent
// of which architecture the test binary itself runs on.
//
// The driver walks the program twice. The first (sizing) pass asks the
// back-end how many bytes each op requires and records, for every Label
// op, the running offset BEFORE adding that op's own (zero) byte count.
// The second (emission) pass allocates an executable-capable buffer,
// writes the preamble, then each op's bytes in order, using the label
// map from the first pass to patch branch displacements. The emitted
// total must equal the sized total, or this is an ErrInternalSizingMismatch
// bug, not a user error.
func CompileWith(program *vm.Program, backend native.Backend) (*CompiledCode, error) {
	labels, total, err := size(program, backend)
	if err != nil {
		return nil, err
	}

	buf, err := platform.Allocate(total)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocFailed, err)
	}

	used, err := emit(program, backend, buf, labels)
	if err != nil {
		_ = platform.Release(buf)
		return nil, err
	}
	if used != total {
		_ = platform.Release(buf)
		panic(fmt.Sprintf("regvm: %v: sizing pass predicted %d bytes, emission wrote %d", ErrInternalSizingMismatch, total, used))
	}

	finalizeTail(buf, used, backend)

	if err := platform.FlushInstructionCache(buf); err != nil {
		_ = platform.Release(buf)
		return nil, fmt.Errorf("%w: %v", ErrProtectFailed, err)
	}

	if err := platform.Protect(buf); err != nil {
		_ = platform.Release(buf)
		return nil, fmt.Errorf("%w: %v", ErrProtectFailed, err)
	}

	return newCompiledCode(buf, backend.WordSize()), nil
}

// size performs the first pass: it computes the label offsets and the
// total byte count the emission pass must produce.
func size(program *vm.Program, backend native.Backend) (native.LabelMap, int, error) {
	labels := make(native.LabelMap)
	offset := backend.Preamble(nil)

	for i := 0; i < program.Len(); i++ {
		op := program.Get(i)
		if op.Type == vm.LabelOp {
			// Last definition wins if a label repeats (see DESIGN.md).
			labels[op.Target] = offset
		}
		n, err := backend.Encode(op, nil, 0, nil)
		if err != nil {
			return nil, 0, &CompileError{Kind: errKind(err), OpIndex: i, Label: op.Target.String()}
		}
		offset += n
	}
	return labels, offset, nil
}

// emit performs the second pass: it writes the preamble and every op's
// bytes into buf, returning the number of bytes written.
func emit(program *vm.Program, backend native.Backend, buf []byte, labels native.LabelMap) (int, error) {
	pos := backend.Preamble(buf)

	for i := 0; i < program.Len(); i++ {
		op := program.Get(i)
		if op.Type == vm.Jump || op.Type == vm.JumpIfZero || op.Type == vm.Call {
			if _, ok := labels[op.Target]; !ok {
				return 0, &CompileError{Kind: ErrUnknownLabel, OpIndex: i, Label: op.Target.String()}
			}
		}
		n, err := backend.Encode(op, buf, pos, labels)
		if err != nil {
			return 0, &CompileError{Kind: errKind(err), OpIndex: i, Label: op.Target.String()}
		}
		pos += n
	}
	return pos, nil
}

// finalizeTail fills [used, len(buf)) with a trapping instruction pattern
// so that any control-flow bug inside the JIT traps deterministically
// rather than running stale or zeroed bytes.
func finalizeTail(buf []byte, used int, backend native.Backend) {
	tail := buf[used:]
	if backend.TrapIsWord() {
		word := backend.TrapWord()
		var w [4]byte
		binary.LittleEndian.PutUint32(w[:], word)
		for i := 0; i+4 <= len(tail); i += 4 {
			copy(tail[i:i+4], w[:])
		}
		return
	}
	fill := backend.TrapFill()
	for i := range tail {
		tail[i] = fill
	}
}

func errKind(err error) error {
	if errors.Is(err, ErrUnknownLabel) {
		return ErrUnknownLabel
	}
	return ErrInvalidOperand
}

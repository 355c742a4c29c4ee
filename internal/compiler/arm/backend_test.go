package arm_test

import (
	"testing"

	"github.com/regvm/regvm/internal/compiler/arm"
	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/testing/require"
	"github.com/regvm/regvm/internal/vm"
)

func sizeThenEmit(t *testing.T, b native.Backend, op vm.Op, labels native.LabelMap) {
	t.Helper()
	n, err := b.Encode(op, nil, 0, nil)
	require.NoError(t, err)

	buf := make([]byte, n)
	written, err := b.Encode(op, buf, 0, labels)
	require.NoError(t, err)
	require.Equal(t, n, written)
}

func TestEncodeSizingMatchesEmission(t *testing.T) {
	b := arm.New()
	target, err := vm.NewLabel("l")
	require.NoError(t, err)
	labels := native.LabelMap{target: 0}

	addImm, err := vm.NewAddImm(vm.R0, 5)
	require.NoError(t, err)
	load, err := vm.NewLoad(vm.R1, vm.R2)
	require.NoError(t, err)
	store, err := vm.NewStore(vm.R2, vm.R3)
	require.NoError(t, err)
	jz, err := vm.NewJumpIfZero(vm.R0, target)
	require.NoError(t, err)
	callOut, err := vm.NewCallOut(func(*vm.ExecutionEnvironment) {})
	require.NoError(t, err)

	for _, op := range []vm.Op{
		vm.NewNop(),
		vm.NewReturn(),
		addImm,
		load,
		store,
		jz,
		vm.NewJump(target),
		vm.NewCall(target),
		callOut,
	} {
		sizeThenEmit(t, b, op, labels)
	}
}

func TestPreambleSizingMatchesEmission(t *testing.T) {
	b := arm.New()
	n := b.Preamble(nil)
	buf := make([]byte, n)
	require.Equal(t, n, b.Preamble(buf))
	require.Zero(t, n%4) // fixed-width 32-bit instruction stream
}

func TestTrapIsWordAligned(t *testing.T) {
	b := arm.New()
	require.True(t, b.TrapIsWord())
	require.Equal(t, uint32(0xe7f000f0), b.TrapWord())
}

func TestEncodeUnknownLabelFailsDuringEmission(t *testing.T) {
	b := arm.New()
	missing, err := vm.NewLabel("missing")
	require.NoError(t, err)
	op := vm.NewJump(missing)

	n, err := b.Encode(op, nil, 0, nil)
	require.NoError(t, err)

	buf := make([]byte, n)
	_, err = b.Encode(op, buf, 0, native.LabelMap{})
	require.Error(t, err)
}

package x86_test

import (
	"testing"

	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/compiler/x86"
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
	b := x86.New()
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
	b := x86.New()
	n := b.Preamble(nil)
	buf := make([]byte, n)
	require.Equal(t, n, b.Preamble(buf))
}

func TestEncodeUnknownLabelFailsDuringEmission(t *testing.T) {
	b := x86.New()
	missing, err := vm.NewLabel("missing")
	require.NoError(t, err)
	op := vm.NewJump(missing)

	n, err := b.Encode(op, nil, 0, nil)
	require.NoError(t, err)

	buf := make([]byte, n)
	_, err = b.Encode(op, buf, 0, native.LabelMap{})
	require.Error(t, err)
}

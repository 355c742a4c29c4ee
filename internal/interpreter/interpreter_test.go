package interpreter_test

import (
	"testing"

	"github.com/regvm/regvm/internal/interpreter"
	"github.com/regvm/regvm/internal/testing/require"
	"github.com/regvm/regvm/internal/vm"
)

func mustLabel(t *testing.T, name string) vm.Label {
	t.Helper()
	l, err := vm.NewLabel(name)
	require.NoError(t, err)
	return l
}

func TestRunEmptyProgramReturnsImmediately(t *testing.T) {
	program, err := vm.NewProgram(vm.NewReturn())
	require.NoError(t, err)
	env := vm.NewExecutionEnvironment()
	require.NoError(t, interpreter.Run(program, env))
}

func TestRunArithmeticWrapsModulo256(t *testing.T) {
	addImm, err := vm.NewAddImm(vm.R0, 10)
	require.NoError(t, err)
	program, err := vm.NewProgram(addImm, vm.NewReturn())
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	env.Regs[vm.R0] = 250
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, vm.Value(4), env.Regs[vm.R0]) // (250+10) mod 256
}

func TestRunNegate(t *testing.T) {
	neg, err := vm.NewNegate(vm.R0)
	require.NoError(t, err)
	program, err := vm.NewProgram(neg, vm.NewReturn())
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	env.Regs[vm.R0] = 1
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, vm.Value(255), env.Regs[vm.R0])
}

func TestRunLoadStoreRoundTrip(t *testing.T) {
	setAddr, err := vm.NewSetImm(vm.R0, 5)
	require.NoError(t, err)
	setVal, err := vm.NewSetImm(vm.R1, 42)
	require.NoError(t, err)
	store, err := vm.NewStore(vm.R0, vm.R1)
	require.NoError(t, err)
	load, err := vm.NewLoad(vm.R2, vm.R0)
	require.NoError(t, err)
	program, err := vm.NewProgram(setAddr, setVal, store, load, vm.NewReturn())
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, byte(42), env.Mem[5])
	require.Equal(t, vm.Value(42), env.Regs[vm.R2])
}

func TestRunJumpIfZeroLoop(t *testing.T) {
	begin := mustLabel(t, "begin")
	done := mustLabel(t, "done")

	dec, err := vm.NewAddImm(vm.R0, 255) // subtract one, mod 256
	require.NoError(t, err)
	jz, err := vm.NewJumpIfZero(vm.R0, done)
	require.NoError(t, err)
	incCounter, err := vm.NewAddImm(vm.R1, 1)
	require.NoError(t, err)

	program, err := vm.NewProgram(
		vm.NewLabelOp(begin),
		dec,
		incCounter,
		jz,
		vm.NewJump(begin),
		vm.NewLabelOp(done),
		vm.NewReturn(),
	)
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	env.Regs[vm.R0] = 5
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, vm.Value(0), env.Regs[vm.R0])
	require.Equal(t, vm.Value(5), env.Regs[vm.R1])
}

func TestRunCallReturnsToCaller(t *testing.T) {
	callee := mustLabel(t, "callee")
	after := mustLabel(t, "after")

	setBefore, err := vm.NewSetImm(vm.R0, 1)
	require.NoError(t, err)
	setAfter, err := vm.NewSetImm(vm.R1, 1)
	require.NoError(t, err)

	program, err := vm.NewProgram(
		setBefore,
		vm.NewCall(callee),
		vm.NewJump(after),
		vm.NewLabelOp(callee),
		setAfter,
		vm.NewReturn(),
		vm.NewLabelOp(after),
		vm.NewReturn(),
	)
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, vm.Value(1), env.Regs[vm.R0])
	require.Equal(t, vm.Value(1), env.Regs[vm.R1])
}

func TestRunJumpToUndefinedLabelFails(t *testing.T) {
	ghost := mustLabel(t, "ghost")
	program, err := vm.NewProgram(vm.NewJump(ghost))
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	err = interpreter.Run(program, env)
	require.ErrorIs(t, err, vm.ErrInvalidOperand)
}

func TestRunDuplicateLabelLastDefinitionWins(t *testing.T) {
	dup := mustLabel(t, "dup")

	setFirst, err := vm.NewSetImm(vm.R0, 1)
	require.NoError(t, err)
	setSecond, err := vm.NewSetImm(vm.R0, 2)
	require.NoError(t, err)

	// Both LabelOps share the name "dup"; a Jump to it must land on the
	// second (last) definition, not the first.
	program, err := vm.NewProgram(
		vm.NewJump(dup),
		vm.NewLabelOp(dup),
		setFirst,
		vm.NewReturn(),
		vm.NewLabelOp(dup),
		setSecond,
		vm.NewReturn(),
	)
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, vm.Value(2), env.Regs[vm.R0])
}

func TestRunCallOutRoundTrips(t *testing.T) {
	var seen []vm.Value
	callOut, err := vm.NewCallOut(func(env *vm.ExecutionEnvironment) {
		seen = append(seen, env.Regs[vm.R0])
		env.Regs[vm.R0]++
	})
	require.NoError(t, err)

	program, err := vm.NewProgram(callOut, callOut, vm.NewReturn())
	require.NoError(t, err)

	env := vm.NewExecutionEnvironment()
	env.Regs[vm.R0] = 10
	require.NoError(t, interpreter.Run(program, env))
	require.Equal(t, []vm.Value{10, 11}, seen)
	require.Equal(t, vm.Value(12), env.Regs[vm.R0])
}

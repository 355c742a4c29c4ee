package regvm_test

import (
	"errors"
	"runtime"
	"testing"

	"github.com/regvm/regvm"
	"github.com/regvm/regvm/internal/testing/require"
)

// runBoth interprets ops against a fresh environment, then — if a
// native back-end is linked in for this host — compiles and runs the
// same ops against a clone, and asserts the two post-states agree
// bit-for-bit. This is the universal oracle property: both engines
// must be observationally identical for every well-formed program.
func runBoth(t *testing.T, build func() (*regvm.Program, *regvm.ExecutionEnvironment)) *regvm.ExecutionEnvironment {
	t.Helper()

	program, env := build()
	require.NoError(t, regvm.Run(program, env))

	_, jitEnv := build()
	code, err := regvm.Compile(program)
	if err != nil {
		t.Logf("no native back-end for GOARCH=%s, interpreter-only: %v", runtime.GOARCH, err)
		return env
	}
	defer code.Close()
	code.Run(jitEnv)

	require.Equal(t, env.Mem, jitEnv.Mem)
	require.Equal(t, env.Regs, jitEnv.Regs)
	return env
}

func newLabel(t *testing.T, name string) regvm.Label {
	t.Helper()
	l, err := regvm.NewLabel(name)
	require.NoError(t, err)
	return l
}

// TestEmptyProgramLeavesEnvironmentZeroed ports jittest.cxx's
// test_basic: a program that is a single Return must not touch any
// register.
func TestEmptyProgramLeavesEnvironmentZeroed(t *testing.T) {
	env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
		program, err := regvm.NewProgram(regvm.NewReturn())
		require.NoError(t, err)
		return program, regvm.NewExecutionEnvironment()
	})
	for i := 0; i < regvm.NumRegisters; i++ {
		require.Equal(t, regvm.Value(0), env.Regs[i])
	}
}

// TestSetImmAllValues ports jittest.cxx's test_set_all: every 8-bit
// immediate round-trips through SetImm exactly.
func TestSetImmAllValues(t *testing.T) {
	for i := 0; i <= 255; i++ {
		i := i
		setImm, err := regvm.NewSetImm(regvm.R0, regvm.Value(i))
		require.NoError(t, err)
		env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
			program, err := regvm.NewProgram(setImm, regvm.NewReturn())
			require.NoError(t, err)
			return program, regvm.NewExecutionEnvironment()
		})
		require.Equal(t, regvm.Value(i), env.Regs[regvm.R0])
	}
}

// TestAddImmAllValues ports jittest.cxx's test_add_all.
func TestAddImmAllValues(t *testing.T) {
	for i := 0; i <= 255; i++ {
		i := i
		addImm, err := regvm.NewAddImm(regvm.R0, regvm.Value(i))
		require.NoError(t, err)
		env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
			program, err := regvm.NewProgram(addImm, regvm.NewReturn())
			require.NoError(t, err)
			return program, regvm.NewExecutionEnvironment()
		})
		require.Equal(t, regvm.Value(i), env.Regs[regvm.R0])
	}
}

// TestAddWraps ports jittest.cxx's test_add_wrap.
func TestAddWraps(t *testing.T) {
	setImm, err := regvm.NewSetImm(regvm.R1, 255)
	require.NoError(t, err)
	addImm, err := regvm.NewAddImm(regvm.R1, 1)
	require.NoError(t, err)

	env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
		program, err := regvm.NewProgram(setImm, addImm, regvm.NewReturn())
		require.NoError(t, err)
		return program, regvm.NewExecutionEnvironment()
	})
	require.Equal(t, regvm.Value(0), env.Regs[regvm.R1])
}

// TestNegate ports jittest.cxx's test_neg.
func TestNegate(t *testing.T) {
	setImm, err := regvm.NewSetImm(regvm.R1, 255)
	require.NoError(t, err)
	negate, err := regvm.NewNegate(regvm.R1)
	require.NoError(t, err)

	env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
		program, err := regvm.NewProgram(setImm, negate, regvm.NewReturn())
		require.NoError(t, err)
		return program, regvm.NewExecutionEnvironment()
	})
	require.Equal(t, regvm.Value(1), env.Regs[regvm.R1])
}

// TestLoadStoreRoundTrip ports jittest.cxx's test_load_store.
func TestLoadStoreRoundTrip(t *testing.T) {
	load, err := regvm.NewLoad(regvm.R2, regvm.R0)
	require.NoError(t, err)
	store, err := regvm.NewStore(regvm.R1, regvm.R3)
	require.NoError(t, err)

	env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
		program, err := regvm.NewProgram(load, store, regvm.NewReturn())
		require.NoError(t, err)
		e := regvm.NewExecutionEnvironment()
		e.Regs[regvm.R0] = 4
		e.Regs[regvm.R1] = 10
		e.Regs[regvm.R3] = 9
		e.Mem[4] = 7
		return program, e
	})
	require.Equal(t, regvm.Value(7), env.Regs[regvm.R2])
	require.Equal(t, byte(9), env.Mem[10])
}

// TestJumpSkipsInterveningOps ports jittest.cxx's test_jump.
func TestJumpSkipsInterveningOps(t *testing.T) {
	target := newLabel(t, "test")
	setImm, err := regvm.NewSetImm(regvm.R1, 7)
	require.NoError(t, err)
	skipped, err := regvm.NewAddImm(regvm.R1, 1)
	require.NoError(t, err)
	after, err := regvm.NewAddImm(regvm.R1, 2)
	require.NoError(t, err)

	env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
		program, err := regvm.NewProgram(
			setImm,
			regvm.NewJump(target),
			skipped,
			regvm.NewLabelOp(target),
			after,
			regvm.NewReturn(),
		)
		require.NoError(t, err)
		return program, regvm.NewExecutionEnvironment()
	})
	require.Equal(t, regvm.Value(9), env.Regs[regvm.R1])
}

// TestCallReturnComposes ports jittest.cxx's test_call.
func TestCallReturnComposes(t *testing.T) {
	target := newLabel(t, "test")
	addAfterCall, err := regvm.NewAddImm(regvm.R1, 5)
	require.NoError(t, err)
	setInCallee, err := regvm.NewSetImm(regvm.R1, 3)
	require.NoError(t, err)

	env := runBoth(t, func() (*regvm.Program, *regvm.ExecutionEnvironment) {
		program, err := regvm.NewProgram(
			regvm.NewCall(target),
			addAfterCall,
			regvm.NewReturn(),
			regvm.NewNop(),
			regvm.NewLabelOp(target),
			setInCallee,
			regvm.NewReturn(),
		)
		require.NoError(t, err)
		return program, regvm.NewExecutionEnvironment()
	})
	require.Equal(t, regvm.Value(8), env.Regs[regvm.R1])
}

// TestCallOutAccumulator ports jittest.cxx's test_call_out: the
// callback observes the pre-op snapshot, and its mutations to
// registers, memory, and UserData are all visible afterward.
func TestCallOutAccumulator(t *testing.T) {
	type userData struct{ total regvm.Value }

	callOut, err := regvm.NewCallOut(func(env *regvm.ExecutionEnvironment) {
		ud := env.UserData.(*userData)
		ud.total += env.Mem[0]
		env.Mem[0] = 3
		env.Regs[regvm.R0] += 1
		env.Regs[regvm.R1] += 2
		env.Regs[regvm.R2] += 3
		env.Regs[regvm.R3] += 4
	})
	require.NoError(t, err)
	addAfter, err := regvm.NewAddImm(regvm.R2, 5)
	require.NoError(t, err)

	ud := &userData{total: 7}
	program, err := regvm.NewProgram(callOut, addAfter, regvm.NewReturn())
	require.NoError(t, err)

	env := regvm.NewExecutionEnvironment()
	env.Mem[0] = 10
	env.Regs = [regvm.NumRegisters]regvm.Value{1, 2, 3, 4}
	env.UserData = ud

	require.NoError(t, regvm.Run(program, env))
	require.Equal(t, regvm.Value(17), ud.total)
	require.Equal(t, byte(3), env.Mem[0])
	require.Equal(t, byte(0), env.Mem[1])
	require.Equal(t, [regvm.NumRegisters]regvm.Value{2, 4, 11, 8}, env.Regs)
}

func TestCompileErrorCarriesOpIndexAndLabel(t *testing.T) {
	ghost, err := regvm.NewLabel("ghost")
	require.NoError(t, err)
	program, err := regvm.NewProgram(regvm.NewNop(), regvm.NewJump(ghost))
	require.NoError(t, err)

	_, err = regvm.Compile(program)
	if errors.Is(err, regvm.ErrUnsupportedArch) {
		t.Skipf("no native back-end for GOARCH=%s", runtime.GOARCH)
	}
	require.ErrorIs(t, err, regvm.ErrUnknownLabel)

	var cerr *regvm.CompileError
	if ce, ok := err.(*regvm.CompileError); ok {
		cerr = ce
	} else {
		t.Fatalf("expected *regvm.CompileError, got %T", err)
	}
	require.Equal(t, 1, cerr.OpIndex)
	require.Equal(t, "ghost", cerr.Label)
}

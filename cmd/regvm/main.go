// Command regvm runs the Fibonacci-mod-256 sample program with one engine
// (the native compiler by default, falling back to the interpreter when
// Compile fails; the interpreter alone when REGVM_USE_JIT is false) and
// prints the first rows of the resulting memory, matching the project's
// original example driver (see DESIGN.md). It does not run both engines
// or compare their results.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/xyproto/env/v2"

	"github.com/regvm/regvm"
	"github.com/regvm/regvm/examples/fibonacci"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "regvm:", err)
		os.Exit(1)
	}
}

func run() error {
	useJIT := true
	if v := env.Str("REGVM_USE_JIT", ""); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("REGVM_USE_JIT: %w", err)
		}
		useJIT = parsed
	}

	printRows := 4
	if v := env.Str("REGVM_PRINT_ROWS", ""); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REGVM_PRINT_ROWS: %w", err)
		}
		printRows = parsed
	}
	if printRows > 16 {
		printRows = 16
	}

	program, err := fibonacci.Build()
	if err != nil {
		return fmt.Errorf("build program: %w", err)
	}

	envState := regvm.NewExecutionEnvironment()

	if !useJIT {
		if err := regvm.Run(program, envState); err != nil {
			return fmt.Errorf("interpret: %w", err)
		}
		fmt.Println("ran with the portable interpreter")
	} else {
		code, err := regvm.Compile(program)
		if err != nil {
			fmt.Fprintf(os.Stderr, "regvm: no native back-end for this host (%v), falling back to the interpreter\n", err)
			if err := regvm.Run(program, envState); err != nil {
				return fmt.Errorf("interpret: %w", err)
			}
		} else {
			defer code.Close()
			code.Run(envState)
			fmt.Println("ran with the native compiler")
		}
	}

	printMemory(envState, printRows)
	return nil
}

func printMemory(env *regvm.ExecutionEnvironment, rows int) {
	for y := 0; y < rows; y++ {
		for x := 0; x < 16; x++ {
			fmt.Printf("%3d ", env.Mem[y*16+x])
		}
		fmt.Println()
	}
}

package regvm

// CompilerConfig configures Compile. The zero value obtained from
// NewCompilerConfig behaves exactly like the package-level Compile.
//
// This exists, in the chained-builder style used throughout this
// package's config surface, as a home for future compiler-level knobs;
// it does not currently change Compile's behavior. Pinning compilation
// to a specific architecture's back-end regardless of host GOARCH is
// deliberately not part of the public surface — exactly one back-end is
// registered per binary, by build-tag-gated glue in the internal compiler
// package, and such a toggle would require this package to link all three
// back-ends into every binary regardless of GOARCH. Tests that need
// to exercise a specific back-end on any host do so by importing that
// back-end package directly and calling the internal compiler's
// CompileWith.
type CompilerConfig struct{}

// NewCompilerConfig returns the default compiler configuration.
func NewCompilerConfig() *CompilerConfig {
	return &CompilerConfig{}
}

// CompileConfig lowers program to native machine code using cfg. A nil
// cfg is equivalent to Compile.
func CompileConfig(program *Program, cfg *CompilerConfig) (*CompiledCode, error) {
	_ = cfg
	return Compile(program)
}

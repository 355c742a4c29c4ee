//go:build amd64

package compiler

import (
	"github.com/regvm/regvm/internal/compiler/amd64"
	"github.com/regvm/regvm/internal/compiler/native"
)

// This file's init registers the amd64 back-end as the one
// native.Default returns. Exactly one of the three select_*.go files'
// build tags matches any given GOARCH, so exactly one such init ever
// runs per binary; the architecture packages themselves stay free of
// any registration side effect, so importing them directly (as tests
// do, to exercise CompileWith against a specific back-end regardless of
// host GOARCH) never perturbs native.Default.
func init() {
	native.Register(amd64.New())
}

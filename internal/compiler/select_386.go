//go:build 386

package compiler

import (
	"github.com/regvm/regvm/internal/compiler/native"
	"github.com/regvm/regvm/internal/compiler/x86"
)

// See select_amd64.go for why registration lives here rather than in
// the x86 package's own init.
func init() {
	native.Register(x86.New())
}

//go:build arm

package compiler

import (
	"github.com/regvm/regvm/internal/compiler/arm"
	"github.com/regvm/regvm/internal/compiler/native"
)

// See select_amd64.go for why registration lives here rather than in
// the arm package's own init.
func init() {
	native.Register(arm.New())
}

package platform

import (
	"runtime"
	"testing"

	"github.com/regvm/regvm/internal/testing/require"
)

func requireSupportedOS(t *testing.T) {
	switch runtime.GOOS {
	case "linux", "darwin", "freebsd", "netbsd", "openbsd", "dragonfly", "solaris":
		return
	}
	t.Skip("executable memory not supported on this GOOS")
}

func TestAllocateProtectRelease(t *testing.T) {
	requireSupportedOS(t)

	buf, err := Allocate(37)
	require.NoError(t, err)
	// Rounded up to a whole page.
	require.True(t, len(buf) >= 37)
	require.Zero(t, len(buf)%4096)

	copy(buf, []byte{0x90, 0x90, 0xc3})
	require.NoError(t, Protect(buf))
	require.NoError(t, Release(buf))
}

func TestAllocateZero(t *testing.T) {
	captured := require.CapturePanic(func() {
		_, _ = Allocate(0)
	})
	require.EqualError(t, captured, "BUG: platform.Allocate with non-positive size")
}

//go:build linux && arm

package platform

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// FlushInstructionCache synchronizes the instruction cache with buf's
// freshly written bytes. 32-bit ARM does not keep the instruction and
// data caches coherent for self-modifying code, so the compiler must
// call this after writing a code buffer and before ever jumping into
// it; every other architecture this package targets has coherent
// caches and gets a no-op version of this function instead.
func FlushInstructionCache(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	begin := uintptr(unsafe.Pointer(&buf[0]))
	end := begin + uintptr(len(buf))
	if _, _, errno := unix.Syscall(unix.SYS_CACHEFLUSH, begin, end, 0); errno != 0 {
		return fmt.Errorf("platform: cacheflush: %w", errno)
	}
	return nil
}

// Package platform allocates, protects and releases the executable memory
// regions used to hold JIT-compiled code. Allocation, protection, and
// release go through the standard library's syscall package; the one
// exception is the ARM instruction-cache flush (see
// cacheflush_linux_arm.go), which syscall has no portable wrapper for
// and which pulls in golang.org/x/sys/unix instead.
package platform

import "errors"

// ErrUnsupported is returned by Allocate when the host GOOS/GOARCH has no
// executable memory support wired up. Callers should fall back to the
// interpreter in that case.
var ErrUnsupported = errors.New("platform: executable memory unsupported on this GOOS; use the interpreter instead")

// Allocate reserves a readable and writable anonymous memory region of at
// least size bytes, rounded up to a whole number of pages, and returns it
// together with its actual (rounded) length.
func Allocate(size int) (buf []byte, err error) {
	if size <= 0 {
		panic("BUG: platform.Allocate with non-positive size")
	}
	return mmapRW(roundUpToPage(size))
}

func roundUpToPage(size int) int {
	pageSize := pagesize()
	return ((size - 1) | (pageSize - 1)) + 1
}

// Protect transitions buf from read+write to read+execute. buf must have
// been returned by Allocate; the range protected is buf's full length.
func Protect(buf []byte) error {
	if len(buf) == 0 {
		panic("BUG: platform.Protect with zero length")
	}
	return mprotectRX(buf)
}

// Release unmaps a region previously returned by Allocate.
func Release(buf []byte) error {
	if len(buf) == 0 {
		panic("BUG: platform.Release with zero length")
	}
	return munmap(buf)
}

//go:build !(linux && arm)

package platform

// FlushInstructionCache is a no-op everywhere except linux/arm, where
// instruction and data caches are not kept coherent automatically.
func FlushInstructionCache(buf []byte) error {
	return nil
}

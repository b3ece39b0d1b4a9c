//go:build !unix

package sandbox

// applyMemoryLimit is a no-op on non-Unix platforms.
func applyMemoryLimit(pid int, limitBytes int64) {}

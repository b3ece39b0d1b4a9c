//go:build unix

package sandbox

import "golang.org/x/sys/unix"

// applyMemoryLimit sets RLIMIT_AS on the spawned child so that a runaway
// skill process's allocations past the cap fail instead of exhausting the
// host.
// Best-effort: a failure here is not fatal to the run, the same tolerance
// the bubblewrap-style config takes toward sandbox features the host
// kernel happens not to support.
func applyMemoryLimit(pid int, limitBytes int64) {
	rlimit := unix.Rlimit{Cur: uint64(limitBytes), Max: uint64(limitBytes)}
	_ = unix.Prlimit(pid, unix.RLIMIT_AS, &rlimit, nil)
}

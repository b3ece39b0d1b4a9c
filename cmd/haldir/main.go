// Package main provides the haldir CLI: keygen, sign, verify, revoke,
// sandboxed run, and doctor diagnostics over a skill directory.
package main

import (
	"fmt"
	"os"

	"github.com/Haldir-AI/haldir/internal/sandbox"
)

func main() {
	// Must run before any cobra dispatch: on Linux, a sandboxed run
	// re-execs this same binary with HALDIR_SANDBOX_LANDLOCK_EXEC set so
	// the restriction and the exec into the target happen in one process
	// (see internal/sandbox/landlock_linux.go). ExecWrapperMain returns
	// immediately on every other invocation.
	sandbox.ExecWrapperMain()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

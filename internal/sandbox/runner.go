// Package sandbox spawns a skill process under a compiled SpawnPolicy and
// post-hoc analyzes its output for capability violations. The Linux
// Landlock self-restriction lives here rather than in internal/permissions
// because it has to be applied by the process that execs the child: the
// runner re-execs the haldir binary, which restricts itself and then execs
// the target (landlock_linux.go); internal/permissions only compiles the
// declarative LandlockRuleset.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Haldir-AI/haldir/internal/haldirerr"
	"github.com/Haldir-AI/haldir/internal/permissions"
)

// DefaultTimeout is the wall-clock timeout applied when RunOptions.Timeout
// is zero (spec §4.F: "default 30s").
const DefaultTimeout = 30 * time.Second

// RunOptions controls one sandboxed execution.
type RunOptions struct {
	Policy *permissions.SpawnPolicy

	Timeout time.Duration

	// MemoryLimitBytes caps the child's address space, best-effort, via
	// rlimit on platforms that support it. Zero means no cap.
	MemoryLimitBytes int64
}

// RunResult captures everything the caller needs to decide pass/fail
// without inspecting the child process directly (spec §4.F / §7: "a crash
// is data, not an exception").
type RunResult struct {
	RunID    string
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Signal   string
	TimedOut bool
	Duration time.Duration
}

// Run spawns policy.Command under the compiled SpawnPolicy, with a
// wall-clock timeout and optional memory cap, and captures stdout/stderr/
// exit status. It never returns a bare error for a child crash or nonzero
// exit; only a failure to spawn the process, or a wait that ends without
// an exit status, is reported as sandbox_spawn_failed.
func Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	if opts.Policy == nil {
		return nil, haldirerr.New(haldirerr.KindSandboxSpawnFailed, "no spawn policy supplied")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	runID := uuid.NewString()

	if opts.Policy.ProfilePath != "" {
		defer os.Remove(opts.Policy.ProfilePath)
	}

	cmd := exec.CommandContext(runCtx, opts.Policy.Command, opts.Policy.Args...)
	cmd.Env = append(os.Environ(), opts.Policy.Env...)

	// Run the child in its own process group so a timeout can terminate it
	// and any subprocesses it spawned, not just the direct child.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	if opts.Policy.Backend == permissions.BackendLinuxLandlock && opts.Policy.Landlock != nil {
		applyLandlockSelfRestriction(cmd, opts.Policy.Landlock)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, haldirerr.Wrap(haldirerr.KindSandboxSpawnFailed, "failed to start sandboxed process", err)
	}

	if opts.MemoryLimitBytes > 0 {
		applyMemoryLimit(cmd.Process.Pid, opts.MemoryLimitBytes)
	}

	start := time.Now()
	waitErr := cmd.Wait()
	duration := time.Since(start)

	result := &RunResult{
		RunID:    runID,
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: duration,
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		return result, nil
	}

	if waitErr == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			result.Signal = status.Signal().String()
		}
		return result, nil
	}

	return nil, haldirerr.Wrap(haldirerr.KindSandboxSpawnFailed, "sandboxed process did not run to completion", waitErr)
}

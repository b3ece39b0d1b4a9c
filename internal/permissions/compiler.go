package permissions

import (
	"fmt"
	"os"
	"runtime"

	"github.com/google/uuid"
)

// CompileOptions controls backend selection and output location for the
// compiler.
type CompileOptions struct {
	// ForceBackend overrides host-OS auto-detection.
	ForceBackend Backend
	// TempDir is where Darwin sandbox profiles are written; defaults to
	// os.TempDir() when empty.
	TempDir string
}

// Compile selects a backend (by host OS, or CompileOptions.ForceBackend)
// and compiles policy into a SpawnPolicy ready for the sandbox runner.
func Compile(policy *Policy, command string, args []string, opts CompileOptions) (*SpawnPolicy, error) {
	backend := opts.ForceBackend
	if backend == "" {
		backend = defaultBackend()
	}

	tempDir := opts.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	switch backend {
	case BackendDarwinSandbox:
		return compileDarwin(policy, command, args, tempDir)
	case BackendLinuxLandlock:
		return compileLinuxLandlock(policy, command, args)
	case BackendRuntimeFallback:
		return compileRuntimeFallback(policy, command, args)
	default:
		return nil, fmt.Errorf("permissions: unknown backend %q", backend)
	}
}

func defaultBackend() Backend {
	switch runtime.GOOS {
	case "darwin":
		return BackendDarwinSandbox
	case "linux":
		return BackendLinuxLandlock
	default:
		return BackendRuntimeFallback
	}
}

func compileRuntimeFallback(policy *Policy, command string, args []string) (*SpawnPolicy, error) {
	flags := runtimeFlags(policy)
	out := append(append([]string{}, flags...), args...)
	return &SpawnPolicy{
		Command: command,
		Args:    out,
		Backend: BackendRuntimeFallback,
		// Runtime-level flags are advisory conventions the child interpreter
		// may or may not honor; Haldir cannot verify enforcement, so none of
		// these axes are claimed as kernel-enforced.
		Enforced: Enforced{Filesystem: false, Network: false, Exec: false},
	}, nil
}

// runtimeFlags renders a Deno-style restrictive flag set from policy, the
// "pass restrictive flags directly to the child runtime" fallback named in
// spec §4.E.
func runtimeFlags(policy *Policy) []string {
	var flags []string
	if len(policy.FilesystemRead) > 0 {
		flags = append(flags, "--allow-read="+joinPaths(policy.FilesystemRead))
	}
	if len(policy.FilesystemWrite) > 0 {
		flags = append(flags, "--allow-write="+joinPaths(policy.FilesystemWrite))
	}
	switch policy.Network.Mode {
	case NetworkAll:
		flags = append(flags, "--allow-net")
	case NetworkAllowlist:
		flags = append(flags, "--allow-net="+joinPaths(policy.Network.Hosts))
	}
	if policy.Exec {
		flags = append(flags, "--allow-run="+joinPaths(policy.ExecAllowlist))
	}
	return flags
}

func joinPaths(paths []string) string {
	out := ""
	for i, p := range paths {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// newProfileSuffix returns a random, namespaced suffix for temp artifacts
// (spec §5: "each is namespaced by a random suffix").
func newProfileSuffix() string {
	return uuid.NewString()
}

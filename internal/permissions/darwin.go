package permissions

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// compileDarwin generates a Scheme-like sandbox profile and spawns under the
// system sandbox tool: `sandbox-exec -f <profile> <command> <args...>`.
func compileDarwin(policy *Policy, command string, args []string, tempDir string) (*SpawnPolicy, error) {
	profile := darwinProfile(policy, tempDir)

	profilePath := filepath.Join(tempDir, fmt.Sprintf("haldir-%s.sb", newProfileSuffix()))
	if err := os.WriteFile(profilePath, []byte(profile), 0o600); err != nil {
		return nil, fmt.Errorf("permissions: failed to write darwin sandbox profile: %w", err)
	}

	spawnArgs := append([]string{"-f", profilePath, command}, args...)

	enforced := Enforced{Filesystem: true, Exec: true}
	switch policy.Network.Mode {
	case NetworkNone:
		enforced.Network = true
	case NetworkAll:
		enforced.Network = true
	case NetworkAllowlist:
		// Host-pattern filtering is not a kernel-level mechanism under the
		// macOS sandbox profile language; only full allow/deny is enforced.
		enforced.Network = false
	}

	return &SpawnPolicy{
		Command:     "sandbox-exec",
		Args:        spawnArgs,
		Backend:     BackendDarwinSandbox,
		Enforced:    enforced,
		ProfilePath: profilePath,
	}, nil
}

// darwinProfile renders the sandbox profile text. Deny-by-default, then
// explicit allows: process-exec/fork, sysctl read, mach lookup/register
// (needed by the child runtime), self-signal, read on each declared read
// path as a subpath, read on standard system directories required for
// dynamic linking, read on the temp dir, and write on each declared write
// path plus the temp dir.
func darwinProfile(policy *Policy, tempDir string) string {
	var b strings.Builder

	b.WriteString("(version 1)\n")
	b.WriteString("(deny default)\n\n")

	b.WriteString("(allow process-exec)\n")
	b.WriteString("(allow process-fork)\n")
	b.WriteString("(allow sysctl-read)\n")
	b.WriteString("(allow mach-lookup)\n")
	b.WriteString("(allow mach-register)\n")
	b.WriteString("(allow signal (target self))\n\n")

	for _, sys := range []string{"/usr/lib", "/usr/share", "/System/Library", "/private/var/db/dyld"} {
		fmt.Fprintf(&b, "(allow file-read* (subpath %s))\n", quoteProfilePath(sys))
	}
	fmt.Fprintf(&b, "(allow file-read* (subpath %s))\n", quoteProfilePath(tempDir))

	for _, p := range policy.FilesystemRead {
		fmt.Fprintf(&b, "(allow file-read* (subpath %s))\n", quoteProfilePath(p))
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "(allow file-write* (subpath %s))\n", quoteProfilePath(tempDir))
	for _, p := range policy.FilesystemWrite {
		fmt.Fprintf(&b, "(allow file-write* (subpath %s))\n", quoteProfilePath(p))
	}

	b.WriteString("\n")
	switch policy.Network.Mode {
	case NetworkAll:
		b.WriteString("(allow network*)\n")
	case NetworkAllowlist:
		// Per-host filtering is policy-level only; the kernel mechanism
		// cannot distinguish destinations, so this grants outbound TCP and
		// relies on Enforced.Network=false to tell the caller the
		// allowlist itself is not kernel-checked.
		b.WriteString("(allow network-outbound (remote tcp))\n")
	case NetworkNone:
		// no network rules
	}

	return b.String()
}

func quoteProfilePath(p string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(p)
	return `"` + escaped + `"`
}

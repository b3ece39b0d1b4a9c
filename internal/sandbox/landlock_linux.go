//go:build linux

package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/Haldir-AI/haldir/internal/permissions"
)

// Linux Landlock syscall numbers (x86_64/arm64; both architectures share the
// same numbers on modern kernels >= 5.13). golang.org/x/sys/unix does not
// wrap these at the pinned version, so the three syscalls are invoked
// directly via unix.Syscall, the same way the kernel's own samples do.
const (
	sysLandlockCreateRuleset = 444
	sysLandlockAddRule       = 445
	sysLandlockRestrictSelf  = 446

	landlockRuleTypePathBeneath = 1

	prSetNoNewPrivs = 38
)

// Access bit flags from linux/landlock.h, the subset Haldir's declarative
// ruleset (internal/permissions.LandlockRuleset) actually uses.
const (
	accessFSExecute   = 1 << 0
	accessFSWriteFile = 1 << 1
	accessFSReadFile  = 1 << 2
	accessFSReadDir   = 1 << 3

	accessNetBindTCP    = 1 << 0
	accessNetConnectTCP = 1 << 1
)

const fullReadAccess = accessFSReadFile | accessFSReadDir | accessFSExecute
const fullWriteAccess = accessFSWriteFile | accessFSReadFile | accessFSReadDir | accessFSExecute
const fullExecAccess = accessFSExecute | accessFSReadFile

// landlockRulesetAttr mirrors struct landlock_ruleset_attr.
type landlockRulesetAttr struct {
	HandledAccessFS  uint64
	HandledAccessNet uint64
}

// landlockPathBeneathAttr mirrors struct landlock_path_beneath_attr.
type landlockPathBeneathAttr struct {
	AllowedAccess uint64
	ParentFD      int32
}

const (
	wrapperTriggerEnv = "HALDIR_SANDBOX_LANDLOCK_EXEC"
	wrapperRulesetEnv = "HALDIR_SANDBOX_LANDLOCK_RULESET"
	wrapperCommandEnv = "HALDIR_SANDBOX_LANDLOCK_COMMAND"
	wrapperArgsEnv    = "HALDIR_SANDBOX_LANDLOCK_ARGS"
)

// applyLandlockSelfRestriction rewrites cmd to re-exec the current binary
// instead of running policy.Command directly. landlock_restrict_self must be
// called by the exact process that goes on to exec the confined target, so
// the only way to use Landlock from a Go os/exec.Cmd (which forks+execs in
// one step with no hook in between) is to have the child re-exec itself: it
// detects the trigger environment variable, applies the ruleset, then
// syscall.Exec's into the real target. ExecWrapperMain implements that
// child-side half; it must be called at the very top of cmd/haldir's main().
func applyLandlockSelfRestriction(cmd *exec.Cmd, ruleset *permissions.LandlockRuleset) {
	self, err := os.Executable()
	if err != nil {
		// Fall back to running unconfined rather than failing the spawn
		// outright; the caller's post-hoc analyzer still flags anything the
		// declarative policy would have blocked.
		return
	}

	rulesetJSON, err := json.Marshal(ruleset)
	if err != nil {
		return
	}
	argsJSON, err := json.Marshal(cmd.Args[1:])
	if err != nil {
		return
	}

	realCommand := cmd.Path
	cmd.Path = self
	cmd.Args = []string{self}
	cmd.Env = append(cmd.Env,
		wrapperTriggerEnv+"=1",
		wrapperRulesetEnv+"="+string(rulesetJSON),
		wrapperCommandEnv+"="+realCommand,
		wrapperArgsEnv+"="+string(argsJSON),
	)
}

// ExecWrapperMain must be the first call in cmd/haldir's main(). If the
// process was re-exec'd by applyLandlockSelfRestriction it applies the
// Landlock ruleset to itself and then execs into the real target,
// never returning. Otherwise it returns immediately and main() proceeds
// normally.
func ExecWrapperMain() {
	if os.Getenv(wrapperTriggerEnv) != "1" {
		return
	}

	ruleset := &permissions.LandlockRuleset{}
	if err := json.Unmarshal([]byte(os.Getenv(wrapperRulesetEnv)), ruleset); err != nil {
		fmt.Fprintf(os.Stderr, "haldir: malformed landlock ruleset in exec wrapper: %v\n", err)
		os.Exit(1)
	}
	var args []string
	if err := json.Unmarshal([]byte(os.Getenv(wrapperArgsEnv)), &args); err != nil {
		fmt.Fprintf(os.Stderr, "haldir: malformed landlock args in exec wrapper: %v\n", err)
		os.Exit(1)
	}
	command := os.Getenv(wrapperCommandEnv)

	if err := restrictSelf(ruleset); err != nil {
		fmt.Fprintf(os.Stderr, "haldir: failed to apply landlock restriction: %v\n", err)
		os.Exit(1)
	}

	env := os.Environ()
	env = stripWrapperEnv(env)

	if err := syscall.Exec(command, append([]string{command}, args...), env); err != nil {
		fmt.Fprintf(os.Stderr, "haldir: exec into confined target failed: %v\n", err)
		os.Exit(1)
	}
}

func stripWrapperEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		switch {
		case hasPrefix(kv, wrapperTriggerEnv+"="),
			hasPrefix(kv, wrapperRulesetEnv+"="),
			hasPrefix(kv, wrapperCommandEnv+"="),
			hasPrefix(kv, wrapperArgsEnv+"="):
			continue
		default:
			out = append(out, kv)
		}
	}
	return out
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// restrictSelf creates a Landlock ruleset from the declarative rule set,
// adds one path-beneath rule per allowed path, then calls
// landlock_restrict_self. PR_SET_NO_NEW_PRIVS must be set first, same
// requirement as seccomp. With DenyAllTCP the ruleset handles TCP bind and
// connect with no network rule, so both are denied; on a kernel without
// Landlock network support landlock_create_ruleset then fails.
func restrictSelf(ruleset *permissions.LandlockRuleset) error {
	attr := landlockRulesetAttr{HandledAccessFS: fullWriteAccess}
	if ruleset.DenyAllTCP {
		attr.HandledAccessNet = accessNetBindTCP | accessNetConnectTCP
	}

	rulesetFD, _, errno := unix.Syscall(sysLandlockCreateRuleset, uintptr(unsafe.Pointer(&attr)), unsafe.Sizeof(attr), 0)
	if errno == unix.ENOSYS || errno == unix.EOPNOTSUPP {
		return fmt.Errorf("landlock is not supported by this kernel")
	}
	if errno != 0 {
		return fmt.Errorf("landlock_create_ruleset: %w", errno)
	}
	fd := int(rulesetFD)
	defer unix.Close(fd)

	addPath := func(path string, access uint64) error {
		parentFD, err := unix.Open(path, unix.O_PATH|unix.O_CLOEXEC, 0)
		if err != nil {
			// A declared path that does not exist on disk is not fatal: it
			// simply grants access to nothing.
			return nil
		}
		defer unix.Close(parentFD)

		pathAttr := landlockPathBeneathAttr{AllowedAccess: access, ParentFD: int32(parentFD)}
		_, _, errno := unix.Syscall6(sysLandlockAddRule, uintptr(fd), landlockRuleTypePathBeneath,
			uintptr(unsafe.Pointer(&pathAttr)), 0, 0, 0)
		if errno != 0 {
			return fmt.Errorf("landlock_add_rule(%s): %w", path, errno)
		}
		return nil
	}

	for _, p := range ruleset.ReadPaths {
		if err := addPath(p, fullReadAccess); err != nil {
			return err
		}
	}
	for _, p := range ruleset.WritePaths {
		if err := addPath(p, fullWriteAccess); err != nil {
			return err
		}
	}
	for _, p := range ruleset.ExecPaths {
		if err := addPath(p, fullExecAccess); err != nil {
			return err
		}
	}

	if _, _, errno := unix.Syscall(unix.SYS_PRCTL, prSetNoNewPrivs, 1, 0); errno != 0 {
		return fmt.Errorf("prctl(PR_SET_NO_NEW_PRIVS): %w", errno)
	}

	if _, _, errno := unix.Syscall(sysLandlockRestrictSelf, uintptr(fd), 0, 0); errno != 0 {
		return fmt.Errorf("landlock_restrict_self: %w", errno)
	}

	return nil
}

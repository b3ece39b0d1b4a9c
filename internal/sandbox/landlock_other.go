//go:build !linux

package sandbox

import (
	"os/exec"

	"github.com/Haldir-AI/haldir/internal/permissions"
)

// applyLandlockSelfRestriction is a no-op outside Linux: the compiler never
// selects BackendLinuxLandlock on other platforms (internal/permissions
// picks Darwin's sandbox-exec or the runtime fallback instead), so this
// path should be unreachable, but is kept total rather than panicking.
func applyLandlockSelfRestriction(cmd *exec.Cmd, ruleset *permissions.LandlockRuleset) {}

// ExecWrapperMain is a no-op outside Linux.
func ExecWrapperMain() {}

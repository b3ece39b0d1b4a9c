package sandbox

import (
	"regexp"
	"strings"

	"github.com/Haldir-AI/haldir/internal/permissions"
)

// ViolationType names the capability axis a post-hoc indicator belongs to.
type ViolationType string

const (
	ViolationNetwork         ViolationType = "network"
	ViolationExec            ViolationType = "exec"
	ViolationFilesystemWrite ViolationType = "filesystem_write"
	ViolationTimeout         ViolationType = "timeout"
	ViolationMemory          ViolationType = "memory"
	ViolationCrash           ViolationType = "crash"
)

// Severity ranks how seriously a Violation should be taken; Status is
// derived from the single highest severity observed (spec §4.F: "critical
// -> reject, high -> flag, else -> pass").
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Status is the overall verdict an Analysis carries.
type Status string

const (
	StatusPass   Status = "pass"
	StatusFlag   Status = "flag"
	StatusReject Status = "reject"
)

// Violation is one indicator the analyzer found in a run's output or exit
// behavior.
type Violation struct {
	Type     ViolationType
	Severity Severity
	Detail   string
}

// Analysis is the result of analyzing one RunResult against the policy it
// ran under.
type Analysis struct {
	Status     Status
	Violations []Violation
}

var networkIndicatorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)https?://`),
	regexp.MustCompile(`(?i)\bfetch\(`),
	regexp.MustCompile(`(?i)\bcurl\b`),
	regexp.MustCompile(`(?i)\bwget\b`),
}

var execIndicatorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bexec(ve|l|v)?\(`),
	regexp.MustCompile(`(?i)\bsubprocess\.(Popen|run|call)`),
	regexp.MustCompile(`(?i)\bos\.(system|popen)\(`),
	regexp.MustCompile(`(?i)\bchild_process\b`),
}

var denialIndicatorPattern = regexp.MustCompile(`\bE(ACCES|PERM)\b`)

// Analyze scans a RunResult's captured streams for indicators that the
// child evidenced a capability it did not declare (spec §4.F), and folds in
// runner-reported timeout/signal metadata. policy is the declared policy
// the run was compiled from; enforced records which axes the backend
// actually enforces at the kernel level (an indicator on an enforced axis
// is lower severity — the kernel already stopped it).
func Analyze(result *RunResult, policy *permissions.Policy, enforced permissions.Enforced) *Analysis {
	analysis := &Analysis{Status: StatusPass}
	combined := string(result.Stdout) + "\n" + string(result.Stderr)

	if policy.Network.Mode == permissions.NetworkNone {
		for _, pat := range networkIndicatorPatterns {
			if pat.MatchString(combined) {
				sev := SeverityHigh
				if enforced.Network {
					sev = SeverityLow
				}
				analysis.Violations = append(analysis.Violations, Violation{
					Type: ViolationNetwork, Severity: sev,
					Detail: "output contains a network-access indicator despite network=none: " + pat.String(),
				})
				break
			}
		}
	}

	if !policy.Exec {
		for _, pat := range execIndicatorPatterns {
			if pat.MatchString(combined) {
				sev := SeverityHigh
				if enforced.Exec {
					sev = SeverityLow
				}
				analysis.Violations = append(analysis.Violations, Violation{
					Type: ViolationExec, Severity: sev,
					Detail: "output contains a subprocess-spawn indicator despite exec=false: " + pat.String(),
				})
				break
			}
		}
	}

	// EACCES/EPERM in stderr with a nonzero exit means the kernel denied an
	// attempted write: the sandbox worked, but the attempt itself is
	// reported as a violation so the caller can see what the skill tried.
	if result.ExitCode != 0 && denialIndicatorPattern.MatchString(string(result.Stderr)) {
		analysis.Violations = append(analysis.Violations, Violation{
			Type: ViolationFilesystemWrite, Severity: SeverityLow,
			Detail: "stderr shows a permission denial alongside a nonzero exit, consistent with a blocked write attempt",
		})
	}

	if result.TimedOut {
		analysis.Violations = append(analysis.Violations, Violation{
			Type: ViolationTimeout, Severity: SeverityMedium,
			Detail: "process exceeded its wall-clock timeout",
		})
	}

	if result.Signal != "" {
		if strings.Contains(strings.ToUpper(result.Signal), "KILL") {
			analysis.Violations = append(analysis.Violations, Violation{
				Type: ViolationMemory, Severity: SeverityMedium,
				Detail: "process was killed, consistent with a memory-limit enforcement signal",
			})
		} else {
			analysis.Violations = append(analysis.Violations, Violation{
				Type: ViolationCrash, Severity: SeverityLow,
				Detail: "process terminated by signal " + result.Signal,
			})
		}
	}

	analysis.Status = statusFromViolations(analysis.Violations)
	return analysis
}

func statusFromViolations(violations []Violation) Status {
	highest := Severity("")
	for _, v := range violations {
		if severityRank[v.Severity] > severityRank[highest] {
			highest = v.Severity
		}
	}
	switch highest {
	case SeverityCritical:
		return StatusReject
	case SeverityHigh:
		return StatusFlag
	default:
		return StatusPass
	}
}

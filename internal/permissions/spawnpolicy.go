package permissions

// Backend identifies a concrete OS confinement mechanism.
type Backend string

const (
	BackendDarwinSandbox   Backend = "darwin_sandbox"
	BackendLinuxLandlock   Backend = "linux_landlock"
	BackendRuntimeFallback Backend = "runtime_fallback"
)

// Enforced tells the caller which axes the chosen backend actually enforces
// at the kernel level versus merely documents. This is load-bearing for
// honest post-hoc analysis (spec §4.E/§4.F): a caller must not treat an
// unenforced axis's absence-of-violation as proof of compliance.
type Enforced struct {
	Filesystem bool
	Network    bool
	Exec       bool
}

// LandlockRuleset is the Linux-specific rule set the sandbox runner applies
// through a re-exec of the haldir binary: that process restricts itself
// (via landlock_create_ruleset/landlock_add_rule/landlock_restrict_self),
// then execs into the program that inherits the restriction.
type LandlockRuleset struct {
	ReadPaths    []string
	WritePaths   []string
	ExecPaths    []string
	DenyAllTCP   bool
	AllowedPorts []uint16
}

// SpawnPolicy is the compiled command/args/env plus enforcement descriptor
// handed to the sandbox runner.
type SpawnPolicy struct {
	Command string
	Args    []string
	Env     []string
	Backend Backend
	Enforced

	// ProfilePath is set for the Darwin backend: the tempfile holding the
	// generated sandbox profile, which the runner must remove on every
	// exit path once the child has finished.
	ProfilePath string

	// Landlock is set for the Linux backend.
	Landlock *LandlockRuleset
}

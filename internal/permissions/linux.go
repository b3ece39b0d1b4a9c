package permissions

// compileLinuxLandlock builds a LandlockRuleset from policy. This file only
// compiles the declarative rule set; internal/sandbox owns the actual
// syscalls (golang.org/x/sys/unix): the runner re-execs the haldir binary,
// which calls landlock_create_ruleset, landlock_add_rule for each
// path/access pair and landlock_restrict_self on itself, then execs the
// target, because only the process that performs the exec can restrict
// itself for it.
func compileLinuxLandlock(policy *Policy, command string, args []string) (*SpawnPolicy, error) {
	ruleset := &LandlockRuleset{
		ReadPaths:  append([]string{}, policy.FilesystemRead...),
		WritePaths: append([]string{}, policy.FilesystemWrite...),
		ExecPaths:  append([]string{}, policy.ExecAllowlist...),
	}

	enforced := Enforced{Filesystem: true, Exec: true}

	switch policy.Network.Mode {
	case NetworkNone:
		ruleset.DenyAllTCP = true
		enforced.Network = true
	case NetworkAllowlist:
		// Landlock's TCP rules are bind/connect-port based, not
		// hostname based, so a host-pattern allowlist can't be
		// expressed at this layer and is not kernel-enforced.
		enforced.Network = false
	case NetworkAll:
		enforced.Network = false
	}

	return &SpawnPolicy{
		Command:  command,
		Args:     args,
		Backend:  BackendLinuxLandlock,
		Enforced: enforced,
		Landlock: ruleset,
	}, nil
}

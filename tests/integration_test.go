// Package tests exercises the complete sign -> verify -> revoke -> sandbox
// lifecycle end to end through the internal packages the CLI is built on,
// without invoking the CLI itself.
package tests

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Haldir-AI/haldir/internal/attest"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/revocationcache"
	"github.com/Haldir-AI/haldir/internal/sandbox"
	"github.com/Haldir-AI/haldir/internal/signing"
)

func writeSkillDir(t *testing.T, root string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "SKILL.md"), []byte("# greeter\n"), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "scripts"), 0o755); err != nil {
		t.Fatalf("mkdir scripts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "scripts", "run.sh"), []byte("#!/bin/sh\necho hi\n"), 0o755); err != nil {
		t.Fatalf("write run.sh: %v", err)
	}
}

// TestFullLifecycle signs a skill, verifies it, tampers with its payload and
// confirms verification now fails, restores it, revokes it, confirms a
// caller consulting the revocation list at install time is blocked, and
// finally compiles and runs the skill's declared permissions in the sandbox.
func TestFullLifecycle(t *testing.T) {
	root := t.TempDir()
	writeSkillDir(t, root)

	keyManager := signing.NewKeyManager()
	skillPub, skillPriv, err := keyManager.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair (skill signer): %v", err)
	}
	skillKeyID, err := keyManager.KeyID(skillPub)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}
	skillKeyring := map[string]ed25519.PublicKey{skillKeyID: skillPub}

	permDoc := &permissions.Document{
		SchemaVersion: permissions.SchemaVersion,
		Declared: permissions.Declared{
			Network:    permissions.Network{Mode: permissions.NetworkNone},
			Filesystem: permissions.Filesystem{Read: []string{"scripts"}},
			Exec:       []string{"/bin/sh"},
		},
	}

	signer := attest.NewSigner(nil)
	if _, err := signer.Sign(root, attest.SignOptions{
		Skill:      attest.SkillIdentity{Name: "greeter", Version: "1.0.0", Type: "agent-skill"},
		Permissions: permDoc,
		PrivateKey:  skillPriv,
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	verifier := attest.NewVerifier(nil)

	installResult := verifier.Verify(attest.VerifyOptions{
		SkillDir: root,
		Keyring:  skillKeyring,
		Context:  attest.ContextInstall,
	})
	if !installResult.OK {
		t.Fatalf("expected clean verify after signing, got errors: %v", installResult.Errors)
	}

	// Tamper with a file covered by the integrity manifest: verification
	// must now fail at the integrity-hash phase.
	tamperPath := filepath.Join(root, "scripts", "run.sh")
	if err := os.WriteFile(tamperPath, []byte("#!/bin/sh\necho pwned\n"), 0o755); err != nil {
		t.Fatalf("tamper write: %v", err)
	}
	tamperedResult := verifier.Verify(attest.VerifyOptions{
		SkillDir: root,
		Keyring:  skillKeyring,
		Context:  attest.ContextInstall,
	})
	if tamperedResult.OK {
		t.Fatal("expected verify to fail after tampering with a covered file")
	}

	// Restore the original content and re-sign for the revocation leg.
	writeSkillDir(t, root)
	if _, err := signer.Sign(root, attest.SignOptions{
		Skill:       attest.SkillIdentity{Name: "greeter", Version: "1.0.0", Type: "agent-skill"},
		Permissions: permDoc,
		PrivateKey:  skillPriv,
	}); err != nil {
		t.Fatalf("re-sign: %v", err)
	}

	revPub, revPriv, err := keyManager.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair (revocation signer): %v", err)
	}
	revKeyID, err := keyManager.KeyID(revPub)
	if err != nil {
		t.Fatalf("KeyID (revocation): %v", err)
	}
	revocationKeyring := map[string]ed25519.PublicKey{revKeyID: revPub}

	now := time.Now().UTC()
	list := &revocation.List{
		SchemaVersion:  revocation.SchemaVersion,
		SequenceNumber: 1,
		IssuedAt:       now.Format(time.RFC3339),
		ExpiresAt:      now.Add(30 * 24 * time.Hour).Format(time.RFC3339),
		NextUpdate:     now.Add(24 * time.Hour).Format(time.RFC3339),
		Entries: []revocation.Entry{
			{Name: "greeter", Versions: []string{"1.0.0"}, Severity: "high"},
		},
	}
	if err := revocation.Sign(list, revPriv, revKeyID); err != nil {
		t.Fatalf("revocation.Sign: %v", err)
	}
	if revErr := revocation.Verify(list, revocationKeyring); revErr != nil {
		t.Fatalf("revocation.Verify: %v", revErr)
	}

	cache, err := revocationcache.Open(filepath.Join(t.TempDir(), "revocation.db"))
	if err != nil {
		t.Fatalf("revocationcache.Open: %v", err)
	}
	defer cache.Close()

	if _, err := cache.Put(revKeyID, list, now); err != nil {
		t.Fatalf("cache.Put: %v", err)
	}

	revokedResult := verifier.Verify(attest.VerifyOptions{
		SkillDir:   root,
		Keyring:    skillKeyring,
		Context:    attest.ContextInstall,
		Revocation: &attest.RevocationConsult{List: list},
	})
	if revokedResult.OK {
		t.Fatal("expected install-time verify to reject a revoked skill")
	}
	if !revokedResult.Revoked || revokedResult.RevocationSeverity != "high" {
		t.Fatalf("expected Revoked=true severity=high, got Revoked=%v severity=%q",
			revokedResult.Revoked, revokedResult.RevocationSeverity)
	}

	// A runtime-context caller is only warned, not blocked, and may proceed
	// to sandbox the skill under its own risk policy.
	runtimeResult := verifier.Verify(attest.VerifyOptions{
		SkillDir:          root,
		Keyring:           skillKeyring,
		Context:           attest.ContextRuntime,
		SkipHardlinkCheck: true,
		Revocation:        &attest.RevocationConsult{List: list},
	})
	if !runtimeResult.OK {
		t.Fatalf("expected runtime verify to only warn on revocation, got errors: %v", runtimeResult.Errors)
	}
	if len(runtimeResult.Warnings) != 1 {
		t.Fatalf("expected exactly one revocation warning, got %v", runtimeResult.Warnings)
	}

	policy := permissions.Resolve(permDoc, root)
	spawnPolicy, err := permissions.Compile(policy, "/bin/sh", []string{"-c", "echo hi"}, permissions.CompileOptions{
		ForceBackend: permissions.BackendRuntimeFallback,
	})
	if err != nil {
		t.Fatalf("permissions.Compile: %v", err)
	}

	runner := sandbox.NewRunner(nil)
	runResult, err := runner.Run(context.Background(), sandbox.RunOptions{
		Policy:  spawnPolicy,
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("sandbox run: %v", err)
	}
	if runResult.ExitCode != 0 {
		t.Fatalf("expected exit code 0, got %d", runResult.ExitCode)
	}

	analysis := sandbox.Analyze(runResult, policy, spawnPolicy.Enforced)
	if analysis.Status == sandbox.StatusReject {
		t.Fatalf("expected sandbox run not to be rejected, violations: %v", analysis.Violations)
	}
}

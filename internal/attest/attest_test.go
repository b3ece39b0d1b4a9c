package attest

import (
	"crypto/ed25519"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/Haldir-AI/haldir/internal/haldirerr"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/signing"
)

func writeSkill(t *testing.T, root string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "SKILL.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(root, "scripts"), 0o755); err != nil {
		t.Fatalf("mkdir scripts: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "scripts", "run.sh"), []byte("#!/bin/sh\necho ok\n"), 0o755); err != nil {
		t.Fatalf("write run.sh: %v", err)
	}
}

func keypair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey, string) {
	t.Helper()
	km := signing.NewKeyManager()
	pub, priv, err := km.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	keyID, err := km.KeyID(pub)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}
	return pub, priv, keyID
}

// TestSignThenVerifyHappyPath is spec scenario 1.
func TestSignThenVerifyHappyPath(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	result1, err := Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0", Type: "agent-skill"},
		PrivateKey: priv,
		KeyID:      keyID,
		SignedAt:   "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	root2 := t.TempDir()
	writeSkill(t, root2)
	result2, err := Sign(root2, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0", Type: "agent-skill"},
		PrivateKey: priv,
		KeyID:      keyID,
		SignedAt:   "2026-01-01T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("Sign (2nd run): %v", err)
	}
	if result1.Attestation.IntegrityHash != result2.Attestation.IntegrityHash {
		t.Fatalf("integrity_hash should be identical across independent runs over identical content: %q vs %q",
			result1.Attestation.IntegrityHash, result2.Attestation.IntegrityHash)
	}

	verifyResult := Verify(VerifyOptions{
		SkillDir: root,
		Keyring:  map[string]ed25519.PublicKey{keyID: pub},
		Context:  ContextInstall,
	})
	if !verifyResult.OK {
		t.Fatalf("expected verify success, got errors: %v", verifyResult.Errors)
	}
	if len(verifyResult.Warnings) != 0 {
		t.Fatalf("expected zero warnings, got %v", verifyResult.Warnings)
	}
}

// TestSignDefaultsSignedAtAndExportsPublicKey covers the fallback a maintainer
// flagged as missing: an omitted SignOptions.SignedAt must fall back to the
// current time rather than leaving signed_at empty, and every signature entry
// must carry the signer's own public key PEM so a pin-store lookup has key
// material to check an offered keyid against.
func TestSignDefaultsSignedAtAndExportsPublicKey(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	result, err := Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0", Type: "agent-skill"},
		PrivateKey: priv,
		KeyID:      keyID,
	})
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if result.Attestation.SignedAt == "" {
		t.Fatalf("expected SignedAt to default to the current time, got empty string")
	}

	if len(result.Envelope.Signatures) != 1 {
		t.Fatalf("expected exactly one signature entry, got %d", len(result.Envelope.Signatures))
	}
	entry := result.Envelope.Signatures[0]
	if entry.PublicKeyPEM == "" {
		t.Fatalf("expected signature entry to carry the signer's public key PEM")
	}

	km := signing.NewKeyManager()
	offered, err := km.LoadPublicKeyPEM(entry.PublicKeyPEM)
	if err != nil {
		t.Fatalf("LoadPublicKeyPEM: %v", err)
	}
	if !offered.Equal(pub) {
		t.Fatalf("offered public key does not match the signer's actual key")
	}
}

// TestBitFlipDetection is spec scenario 2.
func TestBitFlipDetection(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	if _, err := Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0"},
		PrivateKey: priv,
		KeyID:      keyID,
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	scriptPath := filepath.Join(root, "scripts", "run.sh")
	data, err := os.ReadFile(scriptPath)
	if err != nil {
		t.Fatalf("read script: %v", err)
	}
	data[len(data)-1] ^= 0xFF
	if err := os.WriteFile(scriptPath, data, 0o755); err != nil {
		t.Fatalf("rewrite script: %v", err)
	}

	result := Verify(VerifyOptions{
		SkillDir: root,
		Keyring:  map[string]ed25519.PublicKey{keyID: pub},
		Context:  ContextInstall,
	})
	if result.OK {
		t.Fatalf("expected verify failure after bit flip")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected exactly one error, got %v", result.Errors)
	}
	if result.Errors[0].Kind != haldirerr.KindFileHashMismatch {
		t.Fatalf("expected file_hash_mismatch, got %v", result.Errors[0].Kind)
	}
	if result.Errors[0].Path != "scripts/run.sh" {
		t.Fatalf("expected path scripts/run.sh, got %q", result.Errors[0].Path)
	}
}

// TestPermissionsPrettyPrintTolerance is spec scenario 3.
func TestPermissionsPrettyPrintTolerance(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	doc := &permissions.Document{
		SchemaVersion: permissions.SchemaVersion,
		Declared: permissions.Declared{
			Filesystem: permissions.Filesystem{Read: []string{"./data"}},
			Network:    permissions.Network{Mode: permissions.NetworkNone},
		},
	}
	if _, err := Sign(root, SignOptions{
		Skill:       SkillIdentity{Name: "example-skill", Version: "1.0.0"},
		Permissions: doc,
		PrivateKey:  priv,
		KeyID:       keyID,
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Reformat permissions.json with different indentation and key order,
	// without re-signing.
	reformatted := `{
  "declared": {
    "network": "none",
    "filesystem": {
      "read": [
        "./data"
      ]
    }
  },
  "schema_version": "1.0"
}
`
	if err := os.WriteFile(filepath.Join(root, ".vault", "permissions.json"), []byte(reformatted), 0o644); err != nil {
		t.Fatalf("rewrite permissions.json: %v", err)
	}

	result := Verify(VerifyOptions{
		SkillDir: root,
		Keyring:  map[string]ed25519.PublicKey{keyID: pub},
		Context:  ContextInstall,
	})
	if !result.OK {
		t.Fatalf("expected verify success despite pretty-print reformat, got errors: %v", result.Errors)
	}
}

func TestVerifyToleratesOneUnparseableSignatureIfAnotherValidates(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	if _, err := Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0"},
		PrivateKey: priv,
		KeyID:      keyID,
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Append a second, unparseable signature entry directly to the
	// envelope: an unknown keyid is not an error on its own (spec §9 Open
	// Questions) as long as some other entry validates.
	envelopePath := filepath.Join(root, ".vault", "signature.json")
	data, err := os.ReadFile(envelopePath)
	if err != nil {
		t.Fatalf("read signature.json: %v", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal signature.json: %v", err)
	}
	envelope.Signatures = append(envelope.Signatures, SignatureEntry{KeyID: "unknown-key", Sig: "not-a-real-signature"})
	rewritten, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		t.Fatalf("remarshal signature.json: %v", err)
	}
	if err := os.WriteFile(envelopePath, rewritten, 0o644); err != nil {
		t.Fatalf("rewrite signature.json: %v", err)
	}

	result := Verify(VerifyOptions{
		SkillDir: root,
		Keyring:  map[string]ed25519.PublicKey{keyID: pub},
		Context:  ContextInstall,
	})
	if !result.OK {
		t.Fatalf("expected success: one valid signature among several is sufficient, got %v", result.Errors)
	}
}

func TestVerifyNoSignatureFromTrustedKeyIsFatal(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	_, priv, keyID := keypair(t)

	if _, err := Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0"},
		PrivateKey: priv,
		KeyID:      keyID,
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	// Keyring missing the real signer entirely: every signature entry
	// fails, which is signature_invalid.
	otherPub, _, otherKeyID := keypair(t)
	result := Verify(VerifyOptions{
		SkillDir: root,
		Keyring:  map[string]ed25519.PublicKey{otherKeyID: otherPub},
		Context:  ContextInstall,
	})
	if result.OK {
		t.Fatalf("expected failure when no trusted key matches")
	}
	if result.Errors[0].Kind != haldirerr.KindSignatureInvalid {
		t.Fatalf("expected signature_invalid, got %v", result.Errors[0].Kind)
	}
}

func TestSignerAndVerifierLoggingWrappers(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	signer := NewSigner(nil)
	if _, err := signer.Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0"},
		PrivateKey: priv,
		KeyID:      keyID,
	}); err != nil {
		t.Fatalf("Signer.Sign: %v", err)
	}

	verifier := NewVerifier(nil)
	result := verifier.Verify(VerifyOptions{
		SkillDir: root,
		Keyring:  map[string]ed25519.PublicKey{keyID: pub},
		Context:  ContextInstall,
	})
	if !result.OK {
		t.Fatalf("expected verify success via Verifier, got errors: %v", result.Errors)
	}
}

func TestVerifyRevocationInstallVsRuntime(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, root)
	pub, priv, keyID := keypair(t)

	if _, err := Sign(root, SignOptions{
		Skill:      SkillIdentity{Name: "example-skill", Version: "1.0.0"},
		PrivateKey: priv,
		KeyID:      keyID,
	}); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	list := &revocation.List{
		SequenceNumber: 1,
		Entries: []revocation.Entry{
			{Name: "example-skill", Versions: []string{"1.0.0"}, Severity: "critical"},
		},
	}

	installResult := Verify(VerifyOptions{
		SkillDir:   root,
		Keyring:    map[string]ed25519.PublicKey{keyID: pub},
		Context:    ContextInstall,
		Revocation: &RevocationConsult{List: list},
	})
	if installResult.OK {
		t.Fatalf("expected install-context verify to fail for a revoked skill")
	}
	if installResult.Errors[0].Kind != haldirerr.KindRevoked {
		t.Fatalf("expected revoked, got %v", installResult.Errors[0].Kind)
	}

	runtimeResult := Verify(VerifyOptions{
		SkillDir:          root,
		Keyring:           map[string]ed25519.PublicKey{keyID: pub},
		Context:           ContextRuntime,
		SkipHardlinkCheck: true,
		Revocation:        &RevocationConsult{List: list},
	})
	if !runtimeResult.OK {
		t.Fatalf("expected runtime-context verify to succeed with only a warning, got %v", runtimeResult.Errors)
	}
	if len(runtimeResult.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", runtimeResult.Warnings)
	}
	if !runtimeResult.Revoked {
		t.Fatalf("expected Revoked=true to be reported regardless of context")
	}
}

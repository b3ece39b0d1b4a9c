package attest

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Haldir-AI/haldir/internal/canon"
	"github.com/Haldir-AI/haldir/internal/integrity"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/signing"
)

// SignOptions controls attestation creation.
type SignOptions struct {
	Skill SkillIdentity

	// Permissions is normalized and bound into the attestation; nil
	// defaults to deny-all (spec §4.C step 3).
	Permissions *permissions.Document

	PrivateKey ed25519.PrivateKey

	// KeyID overrides the derived key id with an externally supplied
	// stable id (spec §6: "unless explicitly supplied").
	KeyID string

	// SignedAt stamps Attestation.SignedAt; callers pass a fixed value for
	// reproducible test fixtures, otherwise the current time formatted
	// RFC3339.
	SignedAt string
}

// SignResult carries every artifact Sign produced, for callers that want
// them without re-reading .vault/ back off disk.
type SignResult struct {
	Manifest    *integrity.Manifest
	Permissions *permissions.Document
	Attestation *Attestation
	Envelope    *Envelope
}

const (
	vaultDirName        = integrity.VaultDir
	integrityFileName   = "integrity.json"
	permissionsFileName = "permissions.json"
	attestationFileName = "attestation.json"
	signatureFileName   = "signature.json"
)

// Sign runs the filesystem-safety pre-check, derives and writes the
// integrity manifest and permissions document, builds and signs the
// attestation, and writes the full .vault/ artifact set. It aborts on any
// filesystem-safety violation (spec §4.C step 1: "abort on any error").
func Sign(skillDir string, opts SignOptions) (*SignResult, error) {
	manifest, violations, err := integrity.Build(skillDir, integrity.WalkOptions{})
	if err != nil {
		return nil, fmt.Errorf("attest: integrity walk failed: %w", err)
	}
	if len(violations) > 0 {
		return nil, fmt.Errorf("attest: refusing to sign, %d filesystem-safety violation(s), first: %s (%s)",
			len(violations), violations[0].Path, violations[0].Kind)
	}

	vaultDir := filepath.Join(skillDir, vaultDirName)
	if err := os.MkdirAll(vaultDir, 0o755); err != nil {
		return nil, fmt.Errorf("attest: failed to create vault directory: %w", err)
	}

	bM, err := canon.CanonicalizeValue(manifest)
	if err != nil {
		return nil, fmt.Errorf("attest: failed to canonicalize integrity manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, integrityFileName), bM, 0o644); err != nil {
		return nil, fmt.Errorf("attest: failed to write integrity.json: %w", err)
	}

	permDoc := opts.Permissions
	if permDoc == nil {
		permDoc = permissions.DenyAll()
	}
	rawP, err := json.Marshal(permDoc)
	if err != nil {
		return nil, fmt.Errorf("attest: failed to marshal permissions document: %w", err)
	}
	permDoc, err = permissions.Parse(rawP)
	if err != nil {
		return nil, fmt.Errorf("attest: failed to normalize permissions document: %w", err)
	}
	bP, err := canon.CanonicalizeValue(permDoc)
	if err != nil {
		return nil, fmt.Errorf("attest: failed to canonicalize permissions document: %w", err)
	}
	prettyP, err := json.MarshalIndent(permDoc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("attest: failed to render permissions document: %w", err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, permissionsFileName), prettyP, 0o644); err != nil {
		return nil, fmt.Errorf("attest: failed to write permissions.json: %w", err)
	}

	integritySum := sha256.Sum256(bM)
	permsSum := sha256.Sum256(bP)

	signedAt := opts.SignedAt
	if signedAt == "" {
		signedAt = time.Now().UTC().Format(time.RFC3339)
	}
	attestation := &Attestation{
		SchemaVersion:   AttestationSchemaVersion,
		Skill:           opts.Skill,
		IntegrityHash:   "sha256:" + hex.EncodeToString(integritySum[:]),
		PermissionsHash: "sha256:" + hex.EncodeToString(permsSum[:]),
		SignedAt:        signedAt,
	}

	bA, err := canon.CanonicalizeValue(attestation)
	if err != nil {
		return nil, fmt.Errorf("attest: failed to canonicalize attestation: %w", err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, attestationFileName), bA, 0o644); err != nil {
		return nil, fmt.Errorf("attest: failed to write attestation.json: %w", err)
	}

	pae := canon.PAE(PayloadType, bA)

	sigManager := signing.NewSignatureManager()
	sig := sigManager.Sign(pae, opts.PrivateKey)

	keyManager := signing.NewKeyManager()
	pub, ok := opts.PrivateKey.Public().(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("attest: private key does not expose an Ed25519 public key")
	}

	keyID := opts.KeyID
	if keyID == "" {
		keyID, err = keyManager.KeyID(pub)
		if err != nil {
			return nil, fmt.Errorf("attest: failed to derive keyid: %w", err)
		}
	}

	pubPEM, err := keyManager.ExportPublicKeyPEM(pub)
	if err != nil {
		return nil, fmt.Errorf("attest: failed to export public key: %w", err)
	}

	envelope := &Envelope{
		SchemaVersion: EnvelopeSchemaVersion,
		PayloadType:   PayloadType,
		Payload:       base64.RawURLEncoding.EncodeToString(bA),
		Signatures:    []SignatureEntry{{KeyID: keyID, Sig: sig, PublicKeyPEM: pubPEM}},
	}

	prettyEnv, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("attest: failed to render signature envelope: %w", err)
	}
	if err := os.WriteFile(filepath.Join(vaultDir, signatureFileName), prettyEnv, 0o644); err != nil {
		return nil, fmt.Errorf("attest: failed to write signature.json: %w", err)
	}

	return &SignResult{
		Manifest:    manifest,
		Permissions: permDoc,
		Attestation: attestation,
		Envelope:    envelope,
	}, nil
}

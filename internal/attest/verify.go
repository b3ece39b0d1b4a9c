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
	"sort"

	"github.com/hashicorp/go-multierror"

	"github.com/Haldir-AI/haldir/internal/canon"
	"github.com/Haldir-AI/haldir/internal/haldirerr"
	"github.com/Haldir-AI/haldir/internal/integrity"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/signing"
)

// Context selects which filesystem-safety rules apply (spec §4.B/§4.C).
type Context string

const (
	ContextInstall Context = "install"
	ContextRuntime Context = "runtime"
)

// RevocationConsult is the input needed for verify phase 7. It is optional:
// a nil Revocation means the caller has no list available, which is not
// itself an error (callers that require revocation coverage must enforce
// that at a higher layer).
type RevocationConsult struct {
	List *revocation.List
}

// VerifyOptions controls one verify operation.
type VerifyOptions struct {
	SkillDir string

	// Keyring maps skill-signing keyid -> trusted public key. Per spec §4.D
	// this is a separate keyring from the revocation signer keyring.
	Keyring map[string]ed25519.PublicKey

	Context           Context
	SkipHardlinkCheck bool

	Revocation *RevocationConsult
}

// Result is the structured outcome of Verify: never panics, never returns a
// bare Go error from the phase pipeline — every phase failure is a
// haldirerr.Error appended to Errors, and the pipeline always short-circuits
// at the first failing phase (spec §5 ordering invariant).
type Result struct {
	OK       bool
	Errors   []*haldirerr.Error
	Warnings []string

	Attestation *Attestation

	Revoked            bool
	RevocationSeverity string
}

func fail(kind haldirerr.Kind, msg string) *Result {
	return &Result{Errors: []*haldirerr.Error{haldirerr.New(kind, msg)}}
}

func failf(kind haldirerr.Kind, format string, args ...interface{}) *Result {
	return &Result{Errors: []*haldirerr.Error{haldirerr.Newf(kind, format, args...)}}
}

// Verify runs the fixed, seven-phase ordered pipeline from spec §4.C. Later
// phases never run before an earlier one has passed.
func Verify(opts VerifyOptions) *Result {
	vaultDir := filepath.Join(opts.SkillDir, vaultDirName)

	// Phase 1: load & shape-check every .vault/ artifact.
	envelope, attestation, permDoc, err := loadArtifacts(vaultDir)
	if err != nil {
		return failf(haldirerr.KindSchemaInvalid, "%v", err)
	}
	if envelope.SchemaVersion != EnvelopeSchemaVersion {
		return failf(haldirerr.KindSchemaInvalid, "unsupported envelope schema_version %q", envelope.SchemaVersion)
	}
	if attestation.SchemaVersion != AttestationSchemaVersion {
		return failf(haldirerr.KindSchemaInvalid, "unsupported attestation schema_version %q", attestation.SchemaVersion)
	}
	if envelope.PayloadType != PayloadType {
		return failf(haldirerr.KindSchemaInvalid, "unexpected payloadType %q", envelope.PayloadType)
	}
	if len(envelope.Signatures) == 0 {
		return fail(haldirerr.KindSchemaInvalid, "signature envelope has no signatures")
	}
	if permDoc.SchemaVersion != permissions.SchemaVersion {
		return failf(haldirerr.KindSchemaInvalid, "unsupported permissions schema_version %q", permDoc.SchemaVersion)
	}
	storedManifestData, err := os.ReadFile(filepath.Join(vaultDir, integrityFileName))
	if err != nil {
		return failf(haldirerr.KindSchemaInvalid, "failed to read integrity.json: %v", err)
	}
	var storedManifest integrity.Manifest
	if err := json.Unmarshal(storedManifestData, &storedManifest); err != nil {
		return failf(haldirerr.KindSchemaInvalid, "malformed integrity.json: %v", err)
	}
	if storedManifest.SchemaVersion != integrity.SchemaVersion {
		return failf(haldirerr.KindSchemaInvalid, "unsupported integrity manifest schema_version %q", storedManifest.SchemaVersion)
	}

	// Phase 2: re-canonicalize attestation, compare to envelope payload.
	bA, err := canon.CanonicalizeValue(attestation)
	if err != nil {
		return failf(haldirerr.KindSchemaInvalid, "failed to canonicalize attestation: %v", err)
	}
	decodedPayload, err := base64.RawURLEncoding.DecodeString(envelope.Payload)
	if err != nil {
		return failf(haldirerr.KindPayloadMismatch, "envelope payload is not valid base64url: %v", err)
	}
	if string(decodedPayload) != string(bA) {
		return fail(haldirerr.KindPayloadMismatch, "envelope payload does not match re-canonicalized attestation")
	}

	// Phase 3: verify at least one signature.
	pae := canon.PAE(PayloadType, bA)
	sigManager := signing.NewSignatureManager()

	var sigErrs *multierror.Error
	validated := false
	for _, entry := range envelope.Signatures {
		pub, known := opts.Keyring[entry.KeyID]
		if !known {
			sigErrs = multierror.Append(sigErrs, fmt.Errorf("keyid %q is not in the trusted keyring", entry.KeyID))
			continue
		}
		if sigManager.Verify(pae, entry.Sig, pub) {
			validated = true
			break
		}
		sigErrs = multierror.Append(sigErrs, fmt.Errorf("signature from keyid %q did not verify", entry.KeyID))
	}
	if !validated {
		if len(opts.Keyring) == 0 {
			return fail(haldirerr.KindNoTrustedKey, "no trusted keys configured")
		}
		detail := "no signature validated"
		if sigErrs != nil {
			detail = sigErrs.Error()
		}
		return failf(haldirerr.KindSignatureInvalid, "%s", detail)
	}

	// Phase 4: permissions hash.
	bP, err := canon.CanonicalizeValue(permDoc)
	if err != nil {
		return failf(haldirerr.KindSchemaInvalid, "failed to canonicalize permissions document: %v", err)
	}
	permsSum := sha256.Sum256(bP)
	if "sha256:"+hex.EncodeToString(permsSum[:]) != attestation.PermissionsHash {
		return fail(haldirerr.KindPermissionsHashMismatch, "permissions document hash does not match attestation")
	}

	// Phase 5: re-derive integrity manifest, compare.
	manifest, violations, err := integrity.Build(opts.SkillDir, integrity.WalkOptions{
		SkipHardlinkCheck: true, // hardlink check is its own phase (6), run separately
	})
	if err != nil {
		return failf(haldirerr.KindFileMissing, "failed to re-derive integrity manifest: %v", err)
	}
	var fileErrs *multierror.Error
	for _, v := range violations {
		fileErrs = multierror.Append(fileErrs, fmt.Errorf("%s: %s", v.Kind, v.Path))
	}
	if fileErrs != nil {
		return &Result{Errors: []*haldirerr.Error{haldirerr.Wrap(haldirerr.KindUnsafeFileType, "filesystem-safety violation during re-derivation", fileErrs)}}
	}

	bM, err := canon.CanonicalizeValue(manifest)
	if err != nil {
		return failf(haldirerr.KindSchemaInvalid, "failed to canonicalize integrity manifest: %v", err)
	}
	integritySum := sha256.Sum256(bM)
	if "sha256:"+hex.EncodeToString(integritySum[:]) != attestation.IntegrityHash {
		// Localize the diagnosis: load the manifest claims stored at sign
		// time and compare per-file against what the live tree just
		// produced (spec §4.C step 5: "redundant but localizes diagnostics").
		if fileErr := diffAgainstStoredManifest(vaultDir, manifest); fileErr != nil {
			return &Result{Errors: []*haldirerr.Error{fileErr}}
		}
		return fail(haldirerr.KindIntegrityHashMismatch, fmt.Sprintf(
			"re-derived integrity hash does not match attestation.integrity_hash %q", attestation.IntegrityHash))
	}

	// Phase 6: hardlink check, unless runtime context with the skip flag.
	if !(opts.Context == ContextRuntime && opts.SkipHardlinkCheck) {
		_, hardlinkViolations, err := integrity.Build(opts.SkillDir, integrity.WalkOptions{})
		if err != nil {
			return failf(haldirerr.KindFileMissing, "failed to check hardlinks: %v", err)
		}
		for _, v := range hardlinkViolations {
			if v.Kind == haldirerr.KindHardlinkViolation {
				return &Result{Errors: []*haldirerr.Error{haldirerr.New(haldirerr.KindHardlinkViolation, "file is hardlinked to an inode also linked from outside the skill root").WithPath(v.Path)}}
			}
		}
	}

	result := &Result{OK: true, Attestation: attestation}

	// Phase 7: revocation consult.
	if opts.Revocation != nil && opts.Revocation.List != nil {
		revoked, severity := revocation.Lookup(opts.Revocation.List, attestation.Skill.Name, attestation.Skill.Version)
		result.Revoked = revoked
		result.RevocationSeverity = severity
		if revoked {
			if opts.Context == ContextInstall {
				result.OK = false
				result.Errors = append(result.Errors, haldirerr.Newf(haldirerr.KindRevoked,
					"%s@%s is revoked (severity=%s)", attestation.Skill.Name, attestation.Skill.Version, severity))
			} else {
				result.Warnings = append(result.Warnings, fmt.Sprintf(
					"%s@%s is revoked (severity=%s); caller policy determines whether to proceed at runtime",
					attestation.Skill.Name, attestation.Skill.Version, severity))
			}
		}
	}

	return result
}

func loadArtifacts(vaultDir string) (*Envelope, *Attestation, *permissions.Document, error) {
	envelopeData, err := os.ReadFile(filepath.Join(vaultDir, signatureFileName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read signature.json: %w", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(envelopeData, &envelope); err != nil {
		return nil, nil, nil, fmt.Errorf("malformed signature.json: %w", err)
	}

	attestationData, err := os.ReadFile(filepath.Join(vaultDir, attestationFileName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read attestation.json: %w", err)
	}
	var attestation Attestation
	if err := json.Unmarshal(attestationData, &attestation); err != nil {
		return nil, nil, nil, fmt.Errorf("malformed attestation.json: %w", err)
	}

	permsData, err := os.ReadFile(filepath.Join(vaultDir, permissionsFileName))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read permissions.json: %w", err)
	}
	permDoc, err := permissions.Parse(permsData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("malformed permissions.json: %w", err)
	}

	return &envelope, &attestation, permDoc, nil
}

// diffAgainstStoredManifest loads the manifest claims recorded at sign time
// and compares them file-by-file against a freshly re-derived manifest,
// returning a haldirerr.Error naming the first file missing or mismatched.
// Returns nil if every stored claim still holds (the aggregate-hash
// mismatch was caused by something other than file content, e.g. an added
// file) so the caller falls back to the generic integrity_hash_mismatch.
func diffAgainstStoredManifest(vaultDir string, live *integrity.Manifest) *haldirerr.Error {
	storedBytes, err := os.ReadFile(filepath.Join(vaultDir, integrityFileName))
	if err != nil {
		return haldirerr.Wrap(haldirerr.KindFileMissing, "failed to read stored integrity manifest", err)
	}
	var stored integrity.Manifest
	if err := json.Unmarshal(storedBytes, &stored); err != nil {
		return haldirerr.Wrap(haldirerr.KindSchemaInvalid, "stored integrity manifest is malformed", err)
	}

	paths := make([]string, 0, len(stored.Files))
	for p := range stored.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		claimed := stored.Files[path]
		actual, present := live.Files[path]
		if !present {
			return haldirerr.New(haldirerr.KindFileMissing, "file present at sign time is missing").WithPath(path)
		}
		if actual != claimed {
			return haldirerr.New(haldirerr.KindFileHashMismatch, "file content no longer matches the claim recorded at sign time").WithPath(path)
		}
	}
	return nil
}

// EnvelopeSignerEntries reads a skill's .vault/signature.json and returns
// every signature entry present (keyid, signature, and the signer's offered
// public key PEM), without validating any of them. Callers use this to
// decide which keyids need trust resolution (static keyring, pin store, or
// interactive confirmation) before Verify runs; the offered public key is
// exactly what a TOFU pin store trusts on first use, not a substitute for
// Verify's own signature check against a trusted keyring.
func EnvelopeSignerEntries(skillDir string) ([]SignatureEntry, error) {
	vaultDir := filepath.Join(skillDir, vaultDirName)
	envelopeData, err := os.ReadFile(filepath.Join(vaultDir, signatureFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read signature.json: %w", err)
	}
	var envelope Envelope
	if err := json.Unmarshal(envelopeData, &envelope); err != nil {
		return nil, fmt.Errorf("malformed signature.json: %w", err)
	}
	return envelope.Signatures, nil
}

// PeekSkillIdentity reads a skill's .vault/attestation.json and returns its
// declared identity without validating the signature covering it. Callers
// use this only to key a pin-store lookup ahead of the full Verify pipeline,
// which independently re-derives and authenticates everything it reports.
func PeekSkillIdentity(skillDir string) (SkillIdentity, error) {
	vaultDir := filepath.Join(skillDir, vaultDirName)
	data, err := os.ReadFile(filepath.Join(vaultDir, attestationFileName))
	if err != nil {
		return SkillIdentity{}, fmt.Errorf("failed to read attestation.json: %w", err)
	}
	var attestation Attestation
	if err := json.Unmarshal(data, &attestation); err != nil {
		return SkillIdentity{}, fmt.Errorf("malformed attestation.json: %w", err)
	}
	return attestation.Skill, nil
}

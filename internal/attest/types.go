// Package attest builds and verifies the signed attestation envelope that
// binds a skill's identity to the hashes of its integrity manifest and
// permissions document. It composes internal/canon (the byte encoding),
// internal/signing (Ed25519), and internal/integrity (the manifest), the
// way the teacher's pkg/verification composes pkg/core, pkg/crypto, and
// pkg/discovery into one phased verification flow — generalized here from
// a single schema hash/signature pair to the full envelope + revocation
// pipeline spec §4.C describes.
package attest

// PayloadType is the frozen payload type string for Haldir attestations.
const PayloadType = "application/vnd.haldir.attestation+json"

// EnvelopeSchemaVersion and AttestationSchemaVersion are the current schema
// versions for the two on-disk JSON shapes this package owns. Verify
// rejects any other value rather than guess forward-compatibility.
const (
	EnvelopeSchemaVersion    = "1.0"
	AttestationSchemaVersion = "1.0"
)

// SkillIdentity names the skill an attestation binds to.
type SkillIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Type    string `json:"type,omitempty"`
}

// Attestation binds a skill identity to the canonical-byte hashes of its
// integrity manifest and permissions document.
type Attestation struct {
	SchemaVersion   string        `json:"schema_version"`
	Skill           SkillIdentity `json:"skill"`
	IntegrityHash   string        `json:"integrity_hash"`
	PermissionsHash string        `json:"permissions_hash"`
	SignedAt        string        `json:"signed_at"`
}

// SignatureEntry is one detached signature over the envelope's PAE bytes.
// PublicKeyPEM carries the signer's own public key alongside the signature,
// the way a TOFU-pinned channel always offers its key material over the same
// untrusted transport as the data it authenticates (spec §11's pin-store
// fallback consults this field for a keyid absent from the static keyring;
// Verify itself never trusts it without a hit in opts.Keyring).
type SignatureEntry struct {
	KeyID        string `json:"keyid"`
	Sig          string `json:"sig"`
	PublicKeyPEM string `json:"public_key_pem,omitempty"`
}

// Envelope is the signature envelope written to .vault/signature.json.
// Payload is base64url(attestation canonical bytes); at least one signature
// is required, multiple are permitted, and verification passes if any one
// validates under a trusted key.
type Envelope struct {
	SchemaVersion string           `json:"schema_version"`
	PayloadType   string           `json:"payloadType"`
	Payload       string           `json:"payload"`
	Signatures    []SignatureEntry `json:"signatures"`
}

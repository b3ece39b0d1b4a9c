package trust

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/signing"
)

// BundleVersion is the schema version of KeyringBundle's JSON form,
// following the teacher's SchemaPinTrustBundle.schemapin_bundle_version
// field precedent.
const BundleVersion = "1.0"

// KeyringBundle packages a skill-signing keyring, a revocation-signing
// keyring, and the latest known revocation list into one JSON blob an
// operator can sync to an air-gapped host, generalized from the teacher's
// SchemaPinTrustBundle (which bundled discovery documents + revocations for
// a domain-based trust model) to Haldir's keyid-based one.
type KeyringBundle struct {
	BundleVersion string `json:"bundle_version"`
	CreatedAt     string `json:"created_at"`

	// SkillKeys and RevocationKeys map keyid -> PEM-encoded public key.
	SkillKeys      map[string]string `json:"skill_keys"`
	RevocationKeys map[string]string `json:"revocation_keys"`

	RevocationList *revocation.List `json:"revocation_list,omitempty"`
}

// NewKeyringBundle creates an empty bundle stamped with createdAt (RFC3339).
func NewKeyringBundle(createdAt string) *KeyringBundle {
	return &KeyringBundle{
		BundleVersion:  BundleVersion,
		CreatedAt:      createdAt,
		SkillKeys:      map[string]string{},
		RevocationKeys: map[string]string{},
	}
}

// AddSkillKey inserts a skill-signing public key into the bundle, keyed by
// its derived keyid.
func (b *KeyringBundle) AddSkillKey(pub ed25519.PublicKey) error {
	keyID, pem, err := keyIDAndPEM(pub)
	if err != nil {
		return err
	}
	b.SkillKeys[keyID] = pem
	return nil
}

// AddRevocationKey inserts a revocation-signing public key into the bundle.
func (b *KeyringBundle) AddRevocationKey(pub ed25519.PublicKey) error {
	keyID, pem, err := keyIDAndPEM(pub)
	if err != nil {
		return err
	}
	b.RevocationKeys[keyID] = pem
	return nil
}

func keyIDAndPEM(pub ed25519.PublicKey) (keyID, pem string, err error) {
	km := signing.NewKeyManager()
	keyID, err = km.KeyID(pub)
	if err != nil {
		return "", "", fmt.Errorf("trust: failed to derive keyid: %w", err)
	}
	pem, err = km.ExportPublicKeyPEM(pub)
	if err != nil {
		return "", "", fmt.Errorf("trust: failed to export public key: %w", err)
	}
	return keyID, pem, nil
}

// ToSkillKeyring decodes SkillKeys into the keyid -> public key map
// attest.VerifyOptions.Keyring expects.
func (b *KeyringBundle) ToSkillKeyring() (map[string]ed25519.PublicKey, error) {
	return decodeKeyMap(b.SkillKeys)
}

// ToRevocationKeyring decodes RevocationKeys into the keyid -> public key
// map revocation.Verify expects.
func (b *KeyringBundle) ToRevocationKeyring() (map[string]ed25519.PublicKey, error) {
	return decodeKeyMap(b.RevocationKeys)
}

func decodeKeyMap(pems map[string]string) (map[string]ed25519.PublicKey, error) {
	km := signing.NewKeyManager()
	out := make(map[string]ed25519.PublicKey, len(pems))
	for keyID, pem := range pems {
		pub, err := km.LoadPublicKeyPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("trust: bundle entry %s is not a valid PEM public key: %w", keyID, err)
		}
		out[keyID] = pub
	}
	return out, nil
}

// MarshalBundle serializes a bundle to indented JSON, matching the rest of
// the .vault/ artifacts' pretty-printed style.
func MarshalBundle(b *KeyringBundle) ([]byte, error) {
	return json.MarshalIndent(b, "", "  ")
}

// ParseBundle parses a bundle from JSON bytes.
func ParseBundle(data []byte) (*KeyringBundle, error) {
	var b KeyringBundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("trust: failed to parse keyring bundle: %w", err)
	}
	return &b, nil
}

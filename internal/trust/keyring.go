// Package trust loads and distributes the trusted keyrings Haldir's verify
// and revocation operations consult. Skill-signing and revocation-signing
// keys are kept in separate keyrings (spec §4.D: "separate keyring from
// skill signers"), both loadable from a directory of PEM files or bundled
// together for offline distribution (KeyringBundle).
package trust

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Haldir-AI/haldir/internal/signing"
)

// LoadKeyringDir reads every *.pem file in dir as a SubjectPublicKeyInfo
// Ed25519 public key and returns a keyid -> public key map, the shape both
// attest.VerifyOptions.Keyring and revocation.Verify expect. The file's
// basename (without extension) is ignored; keyid is always derived from the
// key material itself, so renaming a file cannot change which keyid trusts
// it.
func LoadKeyringDir(dir string) (map[string]ed25519.PublicKey, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("trust: failed to read keyring directory %s: %w", dir, err)
	}

	km := signing.NewKeyManager()
	keyring := make(map[string]ed25519.PublicKey)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".pem") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("trust: failed to read %s: %w", path, err)
		}
		pub, err := km.LoadPublicKeyPEM(string(data))
		if err != nil {
			return nil, fmt.Errorf("trust: %s does not contain a valid Ed25519 public key: %w", path, err)
		}
		keyID, err := km.KeyID(pub)
		if err != nil {
			return nil, fmt.Errorf("trust: failed to derive keyid for %s: %w", path, err)
		}
		keyring[keyID] = pub
	}
	return keyring, nil
}

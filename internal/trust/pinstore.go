package trust

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var pinnedSkillKeysBucket = []byte("pinned_skill_keys")

// PinnedKey records that an operator has previously approved a signer
// keyid for a given skill name, the way the teacher's PinnedKeyInfo records
// a tool's pinned public key.
type PinnedKey struct {
	SkillName    string    `json:"skill_name"`
	KeyID        string    `json:"keyid"`
	PinnedAt     time.Time `json:"pinned_at"`
	LastVerified time.Time `json:"last_verified,omitempty"`
}

// PinStore is the opt-in TOFU layer supplementing the static keyring (see
// the KeyringBundle/PinStore split named in the supplemented-features list):
// when a skill's signer keyid is not in the trusted keyring but has been
// interactively approved before, PinStore remembers that decision per
// (skill name, keyid). It never substitutes for the keyring — Resolve only
// consults it as a fallback.
type PinStore struct {
	db *bbolt.DB
}

// OpenPinStore opens (creating if absent) the bbolt-backed pin store at
// path, adapted wholesale from pkg/pinning's bbolt TOFU bucket shape.
func OpenPinStore(path string) (*PinStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("trust: failed to create pin store directory: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("trust: failed to open pin store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pinnedSkillKeysBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("trust: failed to initialize pin store bucket: %w", err)
	}
	return &PinStore{db: db}, nil
}

// Close closes the underlying database.
func (p *PinStore) Close() error { return p.db.Close() }

// IsPinned reports whether keyID has previously been approved for
// skillName.
func (p *PinStore) IsPinned(skillName, keyID string) (bool, error) {
	pinned, err := p.get(skillName)
	if err != nil {
		return false, err
	}
	return pinned != nil && pinned.KeyID == keyID, nil
}

// Pin records operator approval of keyID for skillName, overwriting any
// previously pinned key for that skill (a key rotation always needs fresh
// approval; PinStore does not keep history of prior pins).
func (p *PinStore) Pin(skillName, keyID string) error {
	pinned := PinnedKey{SkillName: skillName, KeyID: keyID, PinnedAt: time.Now().UTC()}
	data, err := json.Marshal(pinned)
	if err != nil {
		return fmt.Errorf("trust: failed to marshal pinned key: %w", err)
	}
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(pinnedSkillKeysBucket).Put([]byte(skillName), data)
	})
}

// TouchLastVerified updates the last-verified timestamp for an existing pin.
func (p *PinStore) TouchLastVerified(skillName string) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(pinnedSkillKeysBucket)
		data := bucket.Get([]byte(skillName))
		if data == nil {
			return fmt.Errorf("trust: no pinned key for skill %q", skillName)
		}
		var pinned PinnedKey
		if err := json.Unmarshal(data, &pinned); err != nil {
			return fmt.Errorf("trust: failed to unmarshal pinned key: %w", err)
		}
		pinned.LastVerified = time.Now().UTC()
		updated, err := json.Marshal(pinned)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(skillName), updated)
	})
}

func (p *PinStore) get(skillName string) (*PinnedKey, error) {
	var pinned *PinnedKey
	err := p.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(pinnedSkillKeysBucket).Get([]byte(skillName))
		if data == nil {
			return nil
		}
		var p PinnedKey
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("trust: failed to unmarshal pinned key: %w", err)
		}
		pinned = &p
		return nil
	})
	return pinned, err
}

// ConfirmFunc is supplied by a caller (typically cmd/haldir, backed by a
// terminal prompt) to approve first-time use of a keyid not already in the
// static keyring. Returning false means "do not trust this key".
type ConfirmFunc func(skillName, keyID string) (bool, error)

// Resolve decides whether keyID should be trusted for skillName: the static
// keyring always wins; if absent there and store is non-nil, a previous pin
// is honored; if neither applies and confirm is non-nil, the operator is
// asked once and the decision is pinned for next time.
func Resolve(keyring map[string]ed25519.PublicKey, store *PinStore, skillName, keyID string, confirm ConfirmFunc) (bool, error) {
	if _, trusted := keyring[keyID]; trusted {
		return true, nil
	}
	if store != nil {
		if pinned, err := store.IsPinned(skillName, keyID); err != nil {
			return false, err
		} else if pinned {
			return true, store.TouchLastVerified(skillName)
		}
	}
	if confirm == nil {
		return false, nil
	}
	accepted, err := confirm(skillName, keyID)
	if err != nil || !accepted {
		return false, err
	}
	if store != nil {
		if err := store.Pin(skillName, keyID); err != nil {
			return false, err
		}
	}
	return true, nil
}

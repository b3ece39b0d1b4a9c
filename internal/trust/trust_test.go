package trust

import (
	"crypto/ed25519"
	"os"
	"path/filepath"
	"testing"

	"github.com/Haldir-AI/haldir/internal/signing"
)

func writeKeyPEM(t *testing.T, dir, name string) (keyID string) {
	t.Helper()
	km := signing.NewKeyManager()
	pub, _, err := km.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	pem, err := km.ExportPublicKeyPEM(pub)
	if err != nil {
		t.Fatalf("ExportPublicKeyPEM: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(pem), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	keyID, err = km.KeyID(pub)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}
	return keyID
}

func TestLoadKeyringDir(t *testing.T) {
	dir := t.TempDir()
	keyID1 := writeKeyPEM(t, dir, "a.pem")
	keyID2 := writeKeyPEM(t, dir, "b.pem")
	if err := os.WriteFile(filepath.Join(dir, "not-a-key.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("write stray file: %v", err)
	}

	keyring, err := LoadKeyringDir(dir)
	if err != nil {
		t.Fatalf("LoadKeyringDir: %v", err)
	}
	if len(keyring) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keyring))
	}
	if _, ok := keyring[keyID1]; !ok {
		t.Fatalf("expected keyring to contain %s", keyID1)
	}
	if _, ok := keyring[keyID2]; !ok {
		t.Fatalf("expected keyring to contain %s", keyID2)
	}
}

func TestKeyringBundleRoundTrip(t *testing.T) {
	km := signing.NewKeyManager()
	skillPub, _, err := km.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	revPub, _, err := km.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	bundle := NewKeyringBundle("2026-01-01T00:00:00Z")
	if err := bundle.AddSkillKey(skillPub); err != nil {
		t.Fatalf("AddSkillKey: %v", err)
	}
	if err := bundle.AddRevocationKey(revPub); err != nil {
		t.Fatalf("AddRevocationKey: %v", err)
	}

	data, err := MarshalBundle(bundle)
	if err != nil {
		t.Fatalf("MarshalBundle: %v", err)
	}

	parsed, err := ParseBundle(data)
	if err != nil {
		t.Fatalf("ParseBundle: %v", err)
	}

	skillKeyring, err := parsed.ToSkillKeyring()
	if err != nil {
		t.Fatalf("ToSkillKeyring: %v", err)
	}
	if len(skillKeyring) != 1 {
		t.Fatalf("expected 1 skill key, got %d", len(skillKeyring))
	}

	revocationKeyring, err := parsed.ToRevocationKeyring()
	if err != nil {
		t.Fatalf("ToRevocationKeyring: %v", err)
	}
	if len(revocationKeyring) != 1 {
		t.Fatalf("expected 1 revocation key, got %d", len(revocationKeyring))
	}
}

func TestPinStorePersistsAcrossOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pins.db")

	store, err := OpenPinStore(path)
	if err != nil {
		t.Fatalf("OpenPinStore: %v", err)
	}
	if err := store.Pin("example-skill", "abc123"); err != nil {
		t.Fatalf("Pin: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := OpenPinStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	pinned, err := reopened.IsPinned("example-skill", "abc123")
	if err != nil {
		t.Fatalf("IsPinned: %v", err)
	}
	if !pinned {
		t.Fatalf("expected pin to persist across reopen")
	}

	pinnedOther, err := reopened.IsPinned("example-skill", "different-key")
	if err != nil {
		t.Fatalf("IsPinned: %v", err)
	}
	if pinnedOther {
		t.Fatalf("expected a different keyid not to be considered pinned")
	}
}

func TestResolvePrefersStaticKeyringOverPinStore(t *testing.T) {
	km := signing.NewKeyManager()
	pub, _, err := km.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	keyID, err := km.KeyID(pub)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}

	keyring := map[string]ed25519.PublicKey{keyID: pub}
	trusted, err := Resolve(keyring, nil, "example-skill", keyID, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !trusted {
		t.Fatalf("expected a keyring-trusted key to resolve as trusted")
	}
}

func TestResolveFallsBackToPinStoreThenConfirm(t *testing.T) {
	km := signing.NewKeyManager()
	pub, _, err := km.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	keyID, err := km.KeyID(pub)
	if err != nil {
		t.Fatalf("KeyID: %v", err)
	}

	emptyKeyring := map[string]ed25519.PublicKey{}
	store, err := OpenPinStore(filepath.Join(t.TempDir(), "pins.db"))
	if err != nil {
		t.Fatalf("OpenPinStore: %v", err)
	}
	defer store.Close()

	// No keyring entry, no pin, no confirm func: not trusted.
	trusted, err := Resolve(emptyKeyring, store, "example-skill", keyID, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if trusted {
		t.Fatalf("expected an unpinned, unconfirmed key not to be trusted")
	}

	// With a confirm func that approves, the key becomes trusted and pinned.
	confirmCalls := 0
	confirm := func(skillName, kid string) (bool, error) {
		confirmCalls++
		return true, nil
	}
	trusted, err = Resolve(emptyKeyring, store, "example-skill", keyID, confirm)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !trusted {
		t.Fatalf("expected confirm-approved key to be trusted")
	}
	if confirmCalls != 1 {
		t.Fatalf("expected confirm to be called once, got %d", confirmCalls)
	}

	// Second call should resolve from the pin store without prompting again.
	trusted, err = Resolve(emptyKeyring, store, "example-skill", keyID, confirm)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !trusted {
		t.Fatalf("expected pinned key to be trusted")
	}
	if confirmCalls != 1 {
		t.Fatalf("expected confirm not to be called again once pinned, got %d calls", confirmCalls)
	}
}

package main

import (
	"bufio"
	"crypto/ed25519"
	"fmt"
	"os"
	"strings"

	"github.com/Haldir-AI/haldir/internal/attest"
	"github.com/Haldir-AI/haldir/internal/signing"
	"github.com/Haldir-AI/haldir/internal/trust"
)

// resolveKeyring returns staticKeyring unchanged when the pin store is
// disabled (cfg.PinStoreDir == ""), matching the zero-config default.
// Otherwise it opens the pin store, reads the skill's declared identity and
// signer keyids off disk (unauthenticated — Verify re-derives and checks all
// of this itself), and for every signer keyid absent from staticKeyring
// consults trust.Resolve: the pin store answers first, falling back to an
// interactive terminal prompt that pins the decision for next time. The
// static keyring always wins and is never itself modified; resolveKeyring
// returns an augmented copy.
func resolveKeyring(skillDir string, staticKeyring map[string]ed25519.PublicKey) (map[string]ed25519.PublicKey, error) {
	if cfg.PinStoreDir == "" {
		return staticKeyring, nil
	}

	identity, err := attest.PeekSkillIdentity(skillDir)
	if err != nil {
		return nil, err
	}
	entries, err := attest.EnvelopeSignerEntries(skillDir)
	if err != nil {
		return nil, err
	}

	store, err := trust.OpenPinStore(cfg.PinStoreDir)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	resolved := make(map[string]ed25519.PublicKey, len(staticKeyring))
	for keyID, pub := range staticKeyring {
		resolved[keyID] = pub
	}

	keyManager := signing.NewKeyManager()
	for _, entry := range entries {
		if _, known := resolved[entry.KeyID]; known {
			continue
		}
		if entry.PublicKeyPEM == "" {
			continue
		}
		offeredKey, err := keyManager.LoadPublicKeyPEM(entry.PublicKeyPEM)
		if err != nil {
			continue
		}
		derivedKeyID, err := keyManager.KeyID(offeredKey)
		if err != nil || derivedKeyID != entry.KeyID {
			// The offered key doesn't actually produce the keyid it claims
			// to: never let the pin store consider trusting it.
			continue
		}

		trusted, err := trust.Resolve(staticKeyring, store, identity.Name, entry.KeyID, confirmKeyOnTerminal)
		if err != nil {
			return nil, err
		}
		if trusted {
			resolved[entry.KeyID] = offeredKey
			logger.Infow("pin store trusted a previously unseen signer",
				"kind", "pin_store_resolve", "skill", identity.Name, "keyid", entry.KeyID)
		}
	}
	return resolved, nil
}

// confirmKeyOnTerminal is the default trust.ConfirmFunc: it prompts the
// operator on the controlling terminal, the same accept/reject shape the
// teacher's console interactive handler uses.
func confirmKeyOnTerminal(skillName, keyID string) (bool, error) {
	fmt.Printf("Skill %q is signed by keyid %s, which is not in the trusted keyring.\n", skillName, keyID)
	fmt.Print("Trust this key for this skill going forward? [y/N]: ")
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	choice := strings.ToLower(strings.TrimSpace(input))
	return choice == "y" || choice == "yes", nil
}

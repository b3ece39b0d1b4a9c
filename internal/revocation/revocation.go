// Package revocation implements the signed, sequenced revocation list: its
// wire shape, the strip-sign-reattach signing pattern shared with
// attestations, lookup by (name, version), and the pure freshness/rollback
// policy function the concurrency model (spec §5) requires: "the core
// treats updates as pure functions (cached, incoming) -> (new_cached,
// verdict)". Grounded on the teacher's pkg/pinning TOFU bucket pattern for
// the cache half (see internal/revocationcache) and on internal/attest's
// canonicalize-then-PAE-then-sign pattern for the signing half.
package revocation

import (
	"crypto/ed25519"
	"fmt"
	"time"

	"github.com/Haldir-AI/haldir/internal/canon"
	"github.com/Haldir-AI/haldir/internal/haldirerr"
	"github.com/Haldir-AI/haldir/internal/signing"
)

// PayloadType is the PAE payload type tag for revocation lists, following
// the same binding pattern attestations use (spec §4.D: "same canonical-
// encode-then-Ed25519 pattern as attestations").
const PayloadType = "application/vnd.haldir.revocation-list+json"

// SchemaVersion is the current revocation list schema version.
const SchemaVersion = "1.0"

// Entry withdraws trust from a named skill's listed versions.
type Entry struct {
	Name      string   `json:"name"`
	Versions  []string `json:"versions"`
	RevokedAt string   `json:"revoked_at"`
	Reason    string   `json:"reason,omitempty"`
	Severity  string   `json:"severity,omitempty"`
}

// Signature is the detached signature over the list with Signature itself
// stripped before canonicalization.
type Signature struct {
	KeyID string `json:"keyid"`
	Sig   string `json:"sig"`
}

// List is the signed, sequenced revocation document.
type List struct {
	SchemaVersion  string     `json:"schema_version"`
	SequenceNumber int64      `json:"sequence_number"`
	IssuedAt       string     `json:"issued_at"`
	ExpiresAt      string     `json:"expires_at"`
	NextUpdate     string     `json:"next_update"`
	Entries        []Entry    `json:"entries"`
	Signature      *Signature `json:"signature,omitempty"`
}

// unsigned is List with Signature always omitted, used as the canonicalized
// payload for both signing and verification.
type unsigned struct {
	SchemaVersion  string  `json:"schema_version"`
	SequenceNumber int64   `json:"sequence_number"`
	IssuedAt       string  `json:"issued_at"`
	ExpiresAt      string  `json:"expires_at"`
	NextUpdate     string  `json:"next_update"`
	Entries        []Entry `json:"entries"`
}

func (l *List) canonicalUnsignedBytes() ([]byte, error) {
	u := unsigned{
		SchemaVersion:  l.SchemaVersion,
		SequenceNumber: l.SequenceNumber,
		IssuedAt:       l.IssuedAt,
		ExpiresAt:      l.ExpiresAt,
		NextUpdate:     l.NextUpdate,
		Entries:        l.Entries,
	}
	return canon.CanonicalizeValue(u)
}

// Sign canonicalizes the list with its signature field stripped, signs the
// PAE over those bytes, and reattaches the signature in place.
func Sign(list *List, priv ed25519.PrivateKey, keyID string) error {
	b, err := list.canonicalUnsignedBytes()
	if err != nil {
		return fmt.Errorf("revocation: failed to canonicalize list: %w", err)
	}
	pae := canon.PAE(PayloadType, b)
	sigManager := signing.NewSignatureManager()
	sig := sigManager.Sign(pae, priv)
	list.Signature = &Signature{KeyID: keyID, Sig: sig}
	return nil
}

// Verify checks the list's signature against a revocation-signer keyring
// (a keyring kept separate from the skill-signing keyring, per spec §4.D).
func Verify(list *List, keyring map[string]ed25519.PublicKey) *haldirerr.Error {
	if list.Signature == nil {
		return haldirerr.New(haldirerr.KindSignatureInvalid, "revocation list has no signature")
	}
	pub, ok := keyring[list.Signature.KeyID]
	if !ok {
		return haldirerr.Newf(haldirerr.KindNoTrustedKey, "revocation signer %q is not trusted", list.Signature.KeyID)
	}

	b, err := list.canonicalUnsignedBytes()
	if err != nil {
		return haldirerr.Wrap(haldirerr.KindSchemaInvalid, "failed to canonicalize revocation list", err)
	}
	pae := canon.PAE(PayloadType, b)

	sigManager := signing.NewSignatureManager()
	if !sigManager.Verify(pae, list.Signature.Sig, pub) {
		return haldirerr.New(haldirerr.KindSignatureInvalid, "revocation list signature did not verify")
	}
	return nil
}

// Lookup reports whether (name, version) appears in any entry. Matching is
// exact string equality; no version-range semantics (spec §4.D).
func Lookup(list *List, name, version string) (revoked bool, severity string) {
	if list == nil {
		return false, ""
	}
	for _, e := range list.Entries {
		if e.Name != name {
			continue
		}
		for _, v := range e.Versions {
			if v == version {
				return true, e.Severity
			}
		}
	}
	return false, ""
}

// Verdict is the outcome of evaluating an incoming list against a cached
// one, per spec §4.D's freshness & rollback policy.
type Verdict struct {
	// RolledBack is true when incoming.SequenceNumber < cached.SequenceNumber;
	// callers must keep using the cached list.
	RolledBack       bool
	ObservedSequence int64
	ExpectedSequence int64

	// SoftStale is true when now is past incoming.NextUpdate: usable, but
	// callers should surface a warning.
	SoftStale bool

	// HardStale is true when now is past incoming.ExpiresAt: refuse for new
	// installs; runtime use is a caller policy decision.
	HardStale bool
}

// Evaluate is the pure (cached, incoming) -> (new_cached, verdict) function
// the concurrency model names. cached may be nil (first-ever fetch).
func Evaluate(cached, incoming *List, now time.Time) (newCached *List, verdict Verdict) {
	if cached != nil && incoming.SequenceNumber < cached.SequenceNumber {
		return cached, Verdict{
			RolledBack:       true,
			ObservedSequence: incoming.SequenceNumber,
			ExpectedSequence: cached.SequenceNumber,
		}
	}

	v := Verdict{}
	if nextUpdate, err := time.Parse(time.RFC3339, incoming.NextUpdate); err == nil && now.After(nextUpdate) {
		v.SoftStale = true
	}
	if expiresAt, err := time.Parse(time.RFC3339, incoming.ExpiresAt); err == nil && now.After(expiresAt) {
		v.HardStale = true
	}
	return incoming, v
}

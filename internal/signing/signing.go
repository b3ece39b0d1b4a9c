// Package signing provides Ed25519 key management and detached signature
// operations for Haldir. It follows the same KeyManager/SignatureManager
// split the teacher uses for ECDSA keys (see the SchemaPin Go crypto
// package this is adapted from), switched to Ed25519 and PEM/PKCS8 per
// spec: PEM-encoded Ed25519, PKCS#8 private / SubjectPublicKeyInfo public.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

// KeyManager loads, generates, and exports Ed25519 keys.
type KeyManager struct{}

// NewKeyManager creates a KeyManager.
func NewKeyManager() *KeyManager { return &KeyManager{} }

// GenerateKeypair generates a new Ed25519 key pair.
func (k *KeyManager) GenerateKeypair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("signing: failed to generate ed25519 key pair: %w", err)
	}
	return pub, priv, nil
}

// ExportPrivateKeyPEM exports a private key as PKCS#8 PEM.
func (k *KeyManager) ExportPrivateKeyPEM(key ed25519.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("signing: failed to marshal private key: %w", err)
	}
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// ExportPublicKeyPEM exports a public key as SubjectPublicKeyInfo PEM.
func (k *KeyManager) ExportPublicKeyPEM(key ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("signing: failed to marshal public key: %w", err)
	}
	block := &pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return string(pem.EncodeToMemory(block)), nil
}

// LoadPrivateKeyPEM loads a PKCS#8-encoded Ed25519 private key from PEM.
func (k *KeyManager) LoadPrivateKeyPEM(pemData string) (ed25519.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("signing: failed to decode PEM block")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signing: failed to parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("signing: not an Ed25519 private key")
	}
	return priv, nil
}

// LoadPublicKeyPEM loads a SubjectPublicKeyInfo-encoded Ed25519 public key from PEM.
func (k *KeyManager) LoadPublicKeyPEM(pemData string) (ed25519.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("signing: failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("signing: failed to parse public key: %w", err)
	}
	key, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("signing: not an Ed25519 public key")
	}
	return key, nil
}

// KeyID derives the stable key identifier for a public key: the first 16
// hex characters of sha256(public_key_der), unless an explicit id is
// supplied by the caller at sign time.
func (k *KeyManager) KeyID(key ed25519.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("signing: failed to marshal public key for keyid: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:])[:16], nil
}

// KeyIDFromPEM is a convenience wrapper around KeyID for PEM-encoded keys.
func (k *KeyManager) KeyIDFromPEM(publicKeyPEM string) (string, error) {
	pub, err := k.LoadPublicKeyPEM(publicKeyPEM)
	if err != nil {
		return "", err
	}
	return k.KeyID(pub)
}

// SignatureManager signs and verifies detached Ed25519 signatures.
type SignatureManager struct{}

// NewSignatureManager creates a SignatureManager.
func NewSignatureManager() *SignatureManager { return &SignatureManager{} }

// Sign signs data and returns a base64url-without-padding signature.
func (s *SignatureManager) Sign(data []byte, priv ed25519.PrivateKey) string {
	sig := ed25519.Sign(priv, data)
	return base64.RawURLEncoding.EncodeToString(sig)
}

// Verify verifies a base64url-without-padding signature against data.
// A malformed signature string verifies as false, never panics or errors.
func (s *SignatureManager) Verify(data []byte, sigB64 string, pub ed25519.PublicKey) bool {
	sig, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return false
	}
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, data, sig)
}

// Package haldirconfig holds the small set of values every haldir
// subcommand needs (where keys and caches live, which sandbox backend to
// use). cmd/haldir builds one Config in its root command and keeps it in a
// package-level variable that its subcommands read; no internal package
// reads it, each takes the values it needs as function arguments, the
// pattern opal-lang-opal's CLIs use (a config struct built from flags,
// threaded through function arguments) rather than the module-scoped
// "cacheDir + setCacheDir" shape this repo's source material warned against.
package haldirconfig

import (
	"os"
	"path/filepath"
	"time"

	"github.com/Haldir-AI/haldir/internal/permissions"
)

// Config is the resolved configuration for one haldir invocation.
type Config struct {
	// KeyringDir holds skill-signing public keys (*.pem), consulted by
	// verify. RevocationKeyringDir holds the separate revocation-signer
	// keyring (spec §4.D).
	KeyringDir           string
	RevocationKeyringDir string
	RevocationCacheDir   string

	// PinStoreDir holds the opt-in TOFU pin store (internal/trust.PinStore).
	// Empty means the pin store is disabled: only the static keyring is
	// consulted, with no fallback trust-on-first-use path.
	PinStoreDir string

	// SandboxBackend overrides automatic OS detection when non-empty;
	// valid values mirror permissions.Backend.
	SandboxBackend permissions.Backend
	SandboxTimeout time.Duration

	// DefaultExclusions lists directory names (".git", "node_modules",
	// ".vault") that never belong in a signed artifact. Nothing in this
	// module reads it: integrity.Build applies its own fixed exclusion list.
	DefaultExclusions []string

	Verbose bool
}

// Default env var names, each with a HALDIR_ prefix per SPEC_FULL.md §9.3.
const (
	EnvKeyringDir           = "HALDIR_KEYRING_DIR"
	EnvRevocationKeyringDir = "HALDIR_REVOCATION_KEYRING_DIR"
	EnvRevocationCacheDir   = "HALDIR_REVOCATION_CACHE_DIR"
	EnvSandboxBackend       = "HALDIR_SANDBOX_BACKEND"
	EnvPinStoreDir          = "HALDIR_PIN_STORE_DIR"
)

// defaultExclusions matches the teacher's own walk-skip list in spirit
// (dotfiles-heavy VCS/tooling directories never belong in a signed
// artifact).
var defaultExclusions = []string{".git", "node_modules", ".vault"}

// Default returns a Config with every field at its out-of-the-box default,
// before flags or environment variables are applied.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		KeyringDir:           filepath.Join(home, ".haldir", "keys", "skills"),
		RevocationKeyringDir: filepath.Join(home, ".haldir", "keys", "revocation"),
		RevocationCacheDir:   filepath.Join(home, ".haldir", "revocation-cache.db"),
		SandboxTimeout:       30 * time.Second,
		DefaultExclusions:    append([]string{}, defaultExclusions...),
	}
}

// ApplyEnv overlays environment variable values onto c, for every field
// whose corresponding env var is set and non-empty. Flags (copied onto the
// struct afterward by cmd/haldir's root PersistentPreRunE) always win over
// environment variables, which in turn win over Default()'s baked-in
// defaults.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvKeyringDir); v != "" {
		c.KeyringDir = v
	}
	if v := os.Getenv(EnvRevocationKeyringDir); v != "" {
		c.RevocationKeyringDir = v
	}
	if v := os.Getenv(EnvRevocationCacheDir); v != "" {
		c.RevocationCacheDir = v
	}
	if v := os.Getenv(EnvSandboxBackend); v != "" {
		c.SandboxBackend = permissions.Backend(v)
	}
	if v := os.Getenv(EnvPinStoreDir); v != "" {
		c.PinStoreDir = v
	}
}

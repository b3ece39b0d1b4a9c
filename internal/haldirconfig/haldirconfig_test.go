package haldirconfig

import (
	"testing"

	"github.com/Haldir-AI/haldir/internal/permissions"
)

func TestDefaultPopulatesPaths(t *testing.T) {
	cfg := Default()
	if cfg.KeyringDir == "" {
		t.Fatalf("expected a non-empty default KeyringDir")
	}
	if cfg.SandboxTimeout <= 0 {
		t.Fatalf("expected a positive default SandboxTimeout")
	}
	if len(cfg.DefaultExclusions) == 0 {
		t.Fatalf("expected default exclusions to be populated")
	}
}

func TestApplyEnvOverridesDefaults(t *testing.T) {
	t.Setenv(EnvKeyringDir, "/custom/keys")
	t.Setenv(EnvSandboxBackend, string(permissions.BackendLinuxLandlock))
	t.Setenv(EnvPinStoreDir, "/custom/pins")

	cfg := Default()
	cfg.ApplyEnv()

	if cfg.KeyringDir != "/custom/keys" {
		t.Fatalf("expected env override, got %q", cfg.KeyringDir)
	}
	if cfg.SandboxBackend != permissions.BackendLinuxLandlock {
		t.Fatalf("expected sandbox backend override, got %q", cfg.SandboxBackend)
	}
	if cfg.PinStoreDir != "/custom/pins" {
		t.Fatalf("expected pin store dir override, got %q", cfg.PinStoreDir)
	}
}

func TestApplyEnvLeavesUnsetFieldsAlone(t *testing.T) {
	cfg := Default()
	original := cfg.RevocationCacheDir
	cfg.ApplyEnv()
	if cfg.RevocationCacheDir != original {
		t.Fatalf("expected RevocationCacheDir to remain %q, got %q", original, cfg.RevocationCacheDir)
	}
	if cfg.PinStoreDir != "" {
		t.Fatalf("expected PinStoreDir to default to empty (disabled), got %q", cfg.PinStoreDir)
	}
}

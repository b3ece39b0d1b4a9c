package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Haldir-AI/haldir/internal/haldirconfig"
	"github.com/Haldir-AI/haldir/internal/haldirlog"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/version"
)

// cfg and logger are package-level values assembled once in
// PersistentPreRunE; every subcommand's RunE reads them directly. Neither is
// ever mutated outside that one assembly point.
var (
	cfg    = haldirconfig.Default()
	logger *zap.SugaredLogger

	flagKeyringDir           string
	flagRevocationKeyringDir string
	flagRevocationCacheDir   string
	flagSandboxBackend       string
	flagPinStoreDir          string
	flagVerbose              bool
)

var rootCmd = &cobra.Command{
	Use:     "haldir",
	Short:   "Sign, verify, and sandbox-run agent skills",
	Version: version.GetVersion(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg.ApplyEnv()
		if flagKeyringDir != "" {
			cfg.KeyringDir = flagKeyringDir
		}
		if flagRevocationKeyringDir != "" {
			cfg.RevocationKeyringDir = flagRevocationKeyringDir
		}
		if flagRevocationCacheDir != "" {
			cfg.RevocationCacheDir = flagRevocationCacheDir
		}
		if flagSandboxBackend != "" {
			cfg.SandboxBackend = permissions.Backend(flagSandboxBackend)
		}
		if flagPinStoreDir != "" {
			cfg.PinStoreDir = flagPinStoreDir
		}
		if flagVerbose {
			cfg.Verbose = true
		}

		l, err := haldirlog.New(cfg.Verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagKeyringDir, "keyring-dir", "", "directory of trusted skill-signing public keys (default "+cfg.KeyringDir+")")
	rootCmd.PersistentFlags().StringVar(&flagRevocationKeyringDir, "revocation-keyring-dir", "", "directory of trusted revocation-signing public keys (default "+cfg.RevocationKeyringDir+")")
	rootCmd.PersistentFlags().StringVar(&flagRevocationCacheDir, "revocation-cache-dir", "", "path to the revocation sequence cache (default "+cfg.RevocationCacheDir+")")
	rootCmd.PersistentFlags().StringVar(&flagSandboxBackend, "sandbox-backend", "", "override automatic sandbox backend detection (darwin_sandbox, linux_landlock, runtime_fallback)")
	rootCmd.PersistentFlags().StringVar(&flagPinStoreDir, "pin-store", "", "path to the opt-in trust-on-first-use pin store (disabled when unset)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose structured logging")
}

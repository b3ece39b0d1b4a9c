package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/signing"
)

var (
	keygenOutputDir string
	keygenPrefix    string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 signing key pair",
	RunE:  runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOutputDir, "output-dir", ".", "output directory for the generated key pair")
	keygenCmd.Flags().StringVar(&keygenPrefix, "prefix", "haldir", "filename prefix for the generated keys")
	rootCmd.AddCommand(keygenCmd)
}

// runKeygen generates one keypair suitable either for skill signing or for
// revocation-list signing; the caller decides which keyring to drop the
// resulting public key into.
func runKeygen(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(keygenOutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	km := signing.NewKeyManager()
	pub, priv, err := km.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("failed to generate key pair: %w", err)
	}

	privPEM, err := km.ExportPrivateKeyPEM(priv)
	if err != nil {
		return fmt.Errorf("failed to export private key: %w", err)
	}
	pubPEM, err := km.ExportPublicKeyPEM(pub)
	if err != nil {
		return fmt.Errorf("failed to export public key: %w", err)
	}
	keyID, err := km.KeyID(pub)
	if err != nil {
		return fmt.Errorf("failed to derive keyid: %w", err)
	}

	privPath := filepath.Join(keygenOutputDir, keygenPrefix+"_private.pem")
	pubPath := filepath.Join(keygenOutputDir, keygenPrefix+"_public.pem")

	if err := os.WriteFile(privPath, []byte(privPEM), 0o600); err != nil {
		return fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil {
		return fmt.Errorf("failed to write public key: %w", err)
	}

	fmt.Printf("Generated Ed25519 key pair:\n  keyid:       %s\n  private key: %s\n  public key:  %s\n", keyID, privPath, pubPath)
	return nil
}

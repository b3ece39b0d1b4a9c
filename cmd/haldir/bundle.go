package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/trust"
)

var (
	bundleOutput         string
	bundleRevocationFile string

	bundleImportKeyringDir           string
	bundleImportRevocationKeyringDir string
)

var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Package or unpack a trust bundle for offline/air-gapped keyring distribution",
}

var bundleExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Package the configured keyrings (and optionally a revocation list) into one JSON bundle",
	Args:  cobra.NoArgs,
	RunE:  runBundleExport,
}

var bundleImportCmd = &cobra.Command{
	Use:   "import <bundle-file>",
	Short: "Unpack a trust bundle's keyrings into keyring directories",
	Args:  cobra.ExactArgs(1),
	RunE:  runBundleImport,
}

func init() {
	bundleExportCmd.Flags().StringVar(&bundleOutput, "output", "bundle.json", "path to write the trust bundle")
	bundleExportCmd.Flags().StringVar(&bundleRevocationFile, "revocation-list", "", "signed revocation list to include in the bundle")
	bundleCmd.AddCommand(bundleExportCmd)

	bundleImportCmd.Flags().StringVar(&bundleImportKeyringDir, "keyring-dir", "", "directory to write the bundle's skill-signing keys into (defaults to the configured keyring dir)")
	bundleImportCmd.Flags().StringVar(&bundleImportRevocationKeyringDir, "revocation-keyring-dir", "", "directory to write the bundle's revocation-signing keys into (defaults to the configured revocation keyring dir)")
	bundleCmd.AddCommand(bundleImportCmd)

	rootCmd.AddCommand(bundleCmd)
}

func runBundleExport(cmd *cobra.Command, args []string) error {
	skillKeyring, err := trust.LoadKeyringDir(cfg.KeyringDir)
	if err != nil {
		return err
	}
	revocationKeyring, err := trust.LoadKeyringDir(cfg.RevocationKeyringDir)
	if err != nil {
		return err
	}

	b := trust.NewKeyringBundle(time.Now().UTC().Format(time.RFC3339))
	for _, pub := range skillKeyring {
		if err := b.AddSkillKey(pub); err != nil {
			return err
		}
	}
	for _, pub := range revocationKeyring {
		if err := b.AddRevocationKey(pub); err != nil {
			return err
		}
	}

	if bundleRevocationFile != "" {
		list, err := loadRevocationListFile(bundleRevocationFile)
		if err != nil {
			return err
		}
		if err := revocation.Verify(list, revocationKeyring); err != nil {
			return fmt.Errorf("revocation list failed signature verification: %w", err)
		}
		b.RevocationList = list
	}

	data, err := trust.MarshalBundle(b)
	if err != nil {
		return err
	}
	if err := os.WriteFile(bundleOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	fmt.Printf("Wrote trust bundle to %s (%d skill key(s), %d revocation key(s))\n",
		bundleOutput, len(b.SkillKeys), len(b.RevocationKeys))
	return nil
}

func runBundleImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read bundle: %w", err)
	}
	b, err := trust.ParseBundle(data)
	if err != nil {
		return err
	}

	keyringDir := bundleImportKeyringDir
	if keyringDir == "" {
		keyringDir = cfg.KeyringDir
	}
	revocationKeyringDir := bundleImportRevocationKeyringDir
	if revocationKeyringDir == "" {
		revocationKeyringDir = cfg.RevocationKeyringDir
	}

	if err := writeKeyPEMs(keyringDir, b.SkillKeys); err != nil {
		return err
	}
	if err := writeKeyPEMs(revocationKeyringDir, b.RevocationKeys); err != nil {
		return err
	}

	fmt.Printf("Imported %d skill key(s) into %s and %d revocation key(s) into %s\n",
		len(b.SkillKeys), keyringDir, len(b.RevocationKeys), revocationKeyringDir)
	if b.RevocationList != nil {
		fmt.Printf("Bundle also carried a revocation list at sequence %d; write it to disk and run `haldir revoke check` to adopt it.\n",
			b.RevocationList.SequenceNumber)
	}
	return nil
}

func writeKeyPEMs(dir string, keys map[string]string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create keyring directory %s: %w", dir, err)
	}
	for keyID, pem := range keys {
		path := filepath.Join(dir, keyID+".pem")
		if err := os.WriteFile(path, []byte(pem), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

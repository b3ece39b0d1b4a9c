package main

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/attest"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/signing"
)

var (
	signKeyFile      string
	signPermissions  string
	signSkillName    string
	signSkillVersion string
	signSkillType    string
	signBatch        string
)

var signCmd = &cobra.Command{
	Use:   "sign [skill-dir]",
	Short: "Sign a skill directory, writing its .vault/ attestation",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSign,
}

func init() {
	signCmd.Flags().StringVar(&signKeyFile, "key", "", "private key file (PEM)")
	signCmd.MarkFlagRequired("key")
	signCmd.Flags().StringVar(&signPermissions, "permissions", "", "permissions document to bind (default: deny-all)")
	signCmd.Flags().StringVar(&signSkillName, "name", "", "skill name (not allowed with --batch, which uses each subdirectory's name)")
	signCmd.Flags().StringVar(&signSkillVersion, "skill-version", "", "skill version")
	signCmd.Flags().StringVar(&signSkillType, "type", "agent-skill", "skill type")
	signCmd.Flags().StringVar(&signBatch, "batch", "", "directory whose immediate subdirectories (each containing SKILL.md) are signed in one pass")
	signCmd.MarkFlagsMutuallyExclusive("batch", "name")
	rootCmd.AddCommand(signCmd)
}

func loadSignPrivateKey() (ed25519.PrivateKey, error) {
	keyData, err := os.ReadFile(signKeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key file: %w", err)
	}
	km := signing.NewKeyManager()
	priv, err := km.LoadPrivateKeyPEM(string(keyData))
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	return priv, nil
}

func loadSignPermissions() (*permissions.Document, error) {
	if signPermissions == "" {
		return nil, nil
	}
	data, err := os.ReadFile(signPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions document: %w", err)
	}
	doc, err := permissions.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid permissions document: %w", err)
	}
	return doc, nil
}

func runSign(cmd *cobra.Command, args []string) error {
	priv, err := loadSignPrivateKey()
	if err != nil {
		return err
	}
	permDoc, err := loadSignPermissions()
	if err != nil {
		return err
	}

	signer := attest.NewSigner(logger)

	if signBatch != "" {
		return runSignBatch(signer, priv, permDoc)
	}

	if len(args) != 1 {
		return fmt.Errorf("sign requires exactly one skill-dir argument unless --batch is set")
	}
	if signSkillName == "" || signSkillVersion == "" {
		return fmt.Errorf("--name and --skill-version are required")
	}

	skillDir := args[0]
	if _, err := signer.Sign(skillDir, attest.SignOptions{
		Skill:       attest.SkillIdentity{Name: signSkillName, Version: signSkillVersion, Type: signSkillType},
		Permissions: permDoc,
		PrivateKey:  priv,
	}); err != nil {
		return fmt.Errorf("sign failed: %w", err)
	}
	fmt.Printf("Signed %s (%s@%s)\n", skillDir, signSkillName, signSkillVersion)
	return nil
}

// batchResult mirrors the teacher's schemapin-sign ProcessResult shape,
// generalized from one schema file per entry to one skill directory.
type batchResult struct {
	SkillDir string `json:"skill_dir"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

func runSignBatch(signer *attest.Signer, priv ed25519.PrivateKey, permDoc *permissions.Document) error {
	entries, err := os.ReadDir(signBatch)
	if err != nil {
		return fmt.Errorf("failed to read batch directory: %w", err)
	}
	if signSkillVersion == "" {
		return fmt.Errorf("--skill-version is required for --batch")
	}

	var results []batchResult
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillDir := filepath.Join(signBatch, entry.Name())
		if _, err := os.Stat(filepath.Join(skillDir, "SKILL.md")); err != nil {
			continue
		}

		_, signErr := signer.Sign(skillDir, attest.SignOptions{
			Skill:       attest.SkillIdentity{Name: entry.Name(), Version: signSkillVersion, Type: signSkillType},
			Permissions: permDoc,
			PrivateKey:  priv,
		})
		if signErr != nil {
			results = append(results, batchResult{SkillDir: skillDir, Status: "error", Error: signErr.Error()})
			fmt.Fprintf(os.Stderr, "error signing %s: %v\n", skillDir, signErr)
			continue
		}
		results = append(results, batchResult{SkillDir: skillDir, Status: "success"})
	}

	successful, failed := 0, 0
	for _, r := range results {
		if r.Status == "success" {
			successful++
		} else {
			failed++
		}
	}
	fmt.Printf("Signed %d skills: %d successful, %d failed\n", len(results), successful, failed)
	if failed > 0 {
		return fmt.Errorf("batch sign: %d of %d skills failed", failed, len(results))
	}
	return nil
}

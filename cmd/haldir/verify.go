package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/attest"
	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/trust"
)

var (
	verifyContext           string
	verifySkipHardlinkCheck bool
	verifyRevocationFile    string
)

var verifyCmd = &cobra.Command{
	Use:   "verify <skill-dir>",
	Short: "Verify a skill's attestation against the trusted keyring",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().StringVar(&verifyContext, "context", "install", "verification context: install or runtime")
	verifyCmd.Flags().BoolVar(&verifySkipHardlinkCheck, "skip-hardlink-check", false, "skip the hardlink-escape check (runtime context only)")
	verifyCmd.Flags().StringVar(&verifyRevocationFile, "revocation-list", "", "signed revocation list to consult")
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	skillDir := args[0]

	keyring, err := trust.LoadKeyringDir(cfg.KeyringDir)
	if err != nil {
		return err
	}
	keyring, err = resolveKeyring(skillDir, keyring)
	if err != nil {
		return err
	}

	var consult *attest.RevocationConsult
	if verifyRevocationFile != "" {
		list, err := loadRevocationListFile(verifyRevocationFile)
		if err != nil {
			return err
		}
		revocationKeyring, err := trust.LoadKeyringDir(cfg.RevocationKeyringDir)
		if err != nil {
			return err
		}
		if err := revocation.Verify(list, revocationKeyring); err != nil {
			return fmt.Errorf("revocation list failed signature verification: %w", err)
		}
		consult = &attest.RevocationConsult{List: list}
	}

	verifier := attest.NewVerifier(logger)
	result := verifier.Verify(attest.VerifyOptions{
		SkillDir:          skillDir,
		Keyring:           keyring,
		Context:           attest.Context(verifyContext),
		SkipHardlinkCheck: verifySkipHardlinkCheck,
		Revocation:        consult,
	})

	printVerifyResult(result)
	if !result.OK {
		return fmt.Errorf("verification failed")
	}
	return nil
}

func printVerifyResult(result *attest.Result) {
	if result.OK {
		color.New(color.FgGreen).Println("PASS")
	} else {
		color.New(color.FgRed).Println("FAIL")
	}
	for _, e := range result.Errors {
		color.New(color.FgRed).Printf("  error: %s\n", e.Error())
	}
	for _, w := range result.Warnings {
		color.New(color.FgYellow).Printf("  warning: %s\n", w)
	}
}

func loadRevocationListFile(path string) (*revocation.List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read revocation list: %w", err)
	}
	var list revocation.List
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("malformed revocation list: %w", err)
	}
	return &list, nil
}

package main

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/revocation"
	"github.com/Haldir-AI/haldir/internal/revocationcache"
	"github.com/Haldir-AI/haldir/internal/signing"
	"github.com/Haldir-AI/haldir/internal/trust"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Issue and check signed revocation lists",
}

func init() {
	rootCmd.AddCommand(revokeCmd)
}

var (
	revokeIssueKeyFile    string
	revokeIssueEntries    string
	revokeIssueSequence   int64
	revokeIssueIssuedAt   string
	revokeIssueExpiresAt  string
	revokeIssueNextUpdate string
	revokeIssueOutput     string
)

var revokeIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a new revocation list",
	RunE:  runRevokeIssue,
}

func init() {
	revokeIssueCmd.Flags().StringVar(&revokeIssueKeyFile, "key", "", "revocation-signer private key file (PEM)")
	revokeIssueCmd.MarkFlagRequired("key")
	revokeIssueCmd.Flags().StringVar(&revokeIssueEntries, "entries", "", "JSON file containing the list's entries array")
	revokeIssueCmd.MarkFlagRequired("entries")
	revokeIssueCmd.Flags().Int64Var(&revokeIssueSequence, "sequence", 0, "monotonic sequence number (must increase on every reissue)")
	revokeIssueCmd.Flags().StringVar(&revokeIssueIssuedAt, "issued-at", "", "RFC3339 issued-at timestamp (default: now)")
	revokeIssueCmd.Flags().StringVar(&revokeIssueExpiresAt, "expires-at", "", "RFC3339 hard-expiry timestamp")
	revokeIssueCmd.Flags().StringVar(&revokeIssueNextUpdate, "next-update", "", "RFC3339 soft-staleness timestamp")
	revokeIssueCmd.Flags().StringVar(&revokeIssueOutput, "output", "revocation.json", "output file for the signed list")
	revokeCmd.AddCommand(revokeIssueCmd)
}

func runRevokeIssue(cmd *cobra.Command, args []string) error {
	keyData, err := os.ReadFile(revokeIssueKeyFile)
	if err != nil {
		return fmt.Errorf("failed to read revocation signing key: %w", err)
	}
	km := signing.NewKeyManager()
	priv, err := km.LoadPrivateKeyPEM(string(keyData))
	if err != nil {
		return fmt.Errorf("failed to load revocation signing key: %w", err)
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return fmt.Errorf("revocation signing key does not expose an Ed25519 public key")
	}
	keyID, err := km.KeyID(pub)
	if err != nil {
		return fmt.Errorf("failed to derive keyid: %w", err)
	}

	entriesData, err := os.ReadFile(revokeIssueEntries)
	if err != nil {
		return fmt.Errorf("failed to read entries file: %w", err)
	}
	var entries []revocation.Entry
	if err := json.Unmarshal(entriesData, &entries); err != nil {
		return fmt.Errorf("malformed entries file: %w", err)
	}

	issuedAt := revokeIssueIssuedAt
	if issuedAt == "" {
		issuedAt = time.Now().UTC().Format(time.RFC3339)
	}

	list := &revocation.List{
		SchemaVersion:  revocation.SchemaVersion,
		SequenceNumber: revokeIssueSequence,
		IssuedAt:       issuedAt,
		ExpiresAt:      revokeIssueExpiresAt,
		NextUpdate:     revokeIssueNextUpdate,
		Entries:        entries,
	}
	if err := revocation.Sign(list, priv, keyID); err != nil {
		return fmt.Errorf("failed to sign revocation list: %w", err)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal revocation list: %w", err)
	}
	if err := os.WriteFile(revokeIssueOutput, data, 0o644); err != nil {
		return fmt.Errorf("failed to write revocation list: %w", err)
	}

	fmt.Printf("Issued revocation list sequence=%d entries=%d -> %s\n", list.SequenceNumber, len(list.Entries), revokeIssueOutput)
	return nil
}

var (
	revokeCheckSkillName    string
	revokeCheckSkillVersion string
	revokeCheckListFile     string
)

var revokeCheckCmd = &cobra.Command{
	Use:   "check <signer-keyid>",
	Short: "Consult a signed revocation list for one skill, updating the sequence cache",
	Args:  cobra.ExactArgs(1),
	RunE:  runRevokeCheck,
}

func init() {
	revokeCheckCmd.Flags().StringVar(&revokeCheckSkillName, "name", "", "skill name to look up")
	revokeCheckCmd.MarkFlagRequired("name")
	revokeCheckCmd.Flags().StringVar(&revokeCheckSkillVersion, "skill-version", "", "skill version to look up")
	revokeCheckCmd.MarkFlagRequired("skill-version")
	revokeCheckCmd.Flags().StringVar(&revokeCheckListFile, "list", "", "signed revocation list to consult")
	revokeCheckCmd.MarkFlagRequired("list")
	revokeCmd.AddCommand(revokeCheckCmd)
}

func runRevokeCheck(cmd *cobra.Command, args []string) error {
	signerKeyID := args[0]

	list, err := loadRevocationListFile(revokeCheckListFile)
	if err != nil {
		return err
	}

	revocationKeyring, err := trust.LoadKeyringDir(cfg.RevocationKeyringDir)
	if err != nil {
		return err
	}
	if sigErr := revocation.Verify(list, revocationKeyring); sigErr != nil {
		return fmt.Errorf("revocation list signature invalid: %w", sigErr)
	}

	cache, err := revocationcache.Open(cfg.RevocationCacheDir)
	if err != nil {
		return fmt.Errorf("failed to open revocation cache: %w", err)
	}
	defer cache.Close()
	cache.SetLogger(logger)

	verdict, err := cache.Put(signerKeyID, list, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update revocation cache: %w", err)
	}
	if verdict.RolledBack {
		color.New(color.FgRed).Printf("rejected: incoming sequence %d is behind cached sequence %d\n", verdict.ObservedSequence, verdict.ExpectedSequence)
		return fmt.Errorf("revocation list rollback detected")
	}
	if verdict.HardStale {
		color.New(color.FgRed).Println("revocation list has expired (hard stale)")
	} else if verdict.SoftStale {
		color.New(color.FgYellow).Println("revocation list is past its next_update (soft stale)")
	}

	revoked, severity := revocation.Lookup(list, revokeCheckSkillName, revokeCheckSkillVersion)
	if revoked {
		color.New(color.FgRed).Printf("REVOKED: %s@%s (severity=%s)\n", revokeCheckSkillName, revokeCheckSkillVersion, severity)
		return fmt.Errorf("%s@%s is revoked", revokeCheckSkillName, revokeCheckSkillVersion)
	}
	color.New(color.FgGreen).Printf("not revoked: %s@%s\n", revokeCheckSkillName, revokeCheckSkillVersion)
	return nil
}

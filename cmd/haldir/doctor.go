package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/attest"
	"github.com/Haldir-AI/haldir/internal/haldirerr"
	"github.com/Haldir-AI/haldir/internal/trust"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor <skill-dir>",
	Short: "Run the verify pipeline without a sandbox spawn, reporting each phase",
	Args:  cobra.ExactArgs(1),
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// doctorPhases names verify's seven ordered phases (spec §4.C); Verify
// itself only reports the first one that failed, so doctor infers the rest
// of the table from that single failing Kind.
var doctorPhases = []string{
	"load .vault artifacts",
	"payload matches attestation",
	"signature validates against keyring",
	"permissions hash matches attestation",
	"integrity hash matches attestation",
	"hardlink safety",
	"revocation consult",
}

func phaseIndexForKind(kind haldirerr.Kind) int {
	switch kind {
	case haldirerr.KindSchemaInvalid:
		return 0
	case haldirerr.KindPayloadMismatch:
		return 1
	case haldirerr.KindSignatureInvalid, haldirerr.KindNoTrustedKey:
		return 2
	case haldirerr.KindPermissionsHashMismatch:
		return 3
	case haldirerr.KindIntegrityHashMismatch, haldirerr.KindFileHashMismatch, haldirerr.KindFileMissing, haldirerr.KindUnsafeFileType:
		return 4
	case haldirerr.KindHardlinkViolation:
		return 5
	case haldirerr.KindRevoked:
		return 6
	default:
		return len(doctorPhases) - 1
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	skillDir := args[0]

	keyring, err := trust.LoadKeyringDir(cfg.KeyringDir)
	if err != nil {
		return err
	}

	verifier := attest.NewVerifier(logger)
	result := verifier.Verify(attest.VerifyOptions{
		SkillDir: skillDir,
		Keyring:  keyring,
		Context:  attest.ContextInstall,
	})

	failedAt := len(doctorPhases)
	if !result.OK && len(result.Errors) > 0 {
		failedAt = phaseIndexForKind(result.Errors[0].Kind)
	}

	for i, name := range doctorPhases {
		switch {
		case i < failedAt || (i == failedAt && result.OK):
			color.New(color.FgGreen).Printf("  [pass] %s\n", name)
		case i == failedAt:
			color.New(color.FgRed).Printf("  [fail] %s: %s\n", name, result.Errors[0].Error())
		default:
			color.New(color.FgYellow).Printf("  [skip] %s\n", name)
		}
	}

	if !result.OK {
		return fmt.Errorf("doctor: verification failed at phase %q", doctorPhases[failedAt])
	}
	fmt.Println("all phases passed")
	return nil
}

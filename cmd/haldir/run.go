package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Haldir-AI/haldir/internal/attest"
	"github.com/Haldir-AI/haldir/internal/permissions"
	"github.com/Haldir-AI/haldir/internal/sandbox"
	"github.com/Haldir-AI/haldir/internal/trust"
)

var (
	runCommand        string
	runArgsFlag       []string
	runTimeoutSeconds int
	runMemoryLimitMB  int64
	runSkipVerify     bool
)

var runCmd = &cobra.Command{
	Use:   "run <skill-dir>",
	Short: "Verify a skill, compile its declared permissions, and execute it sandboxed",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&runCommand, "command", "", "command to execute inside the sandbox")
	runCmd.MarkFlagRequired("command")
	runCmd.Flags().StringArrayVar(&runArgsFlag, "arg", nil, "argument to pass to the command (repeatable)")
	runCmd.Flags().IntVar(&runTimeoutSeconds, "timeout", 30, "wall-clock timeout in seconds")
	runCmd.Flags().Int64Var(&runMemoryLimitMB, "memory-limit-mb", 0, "best-effort memory cap in megabytes (0 = uncapped)")
	runCmd.Flags().BoolVar(&runSkipVerify, "skip-verify", false, "skip attestation verification before running (dangerous)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	skillDir := args[0]

	var policyDoc *permissions.Document
	if runSkipVerify {
		policyDoc = permissions.DenyAll()
	} else {
		keyring, err := trust.LoadKeyringDir(cfg.KeyringDir)
		if err != nil {
			return err
		}
		keyring, err = resolveKeyring(skillDir, keyring)
		if err != nil {
			return err
		}

		verifier := attest.NewVerifier(logger)
		result := verifier.Verify(attest.VerifyOptions{
			SkillDir:          skillDir,
			Keyring:           keyring,
			Context:           attest.ContextRuntime,
			SkipHardlinkCheck: true,
		})
		if !result.OK {
			printVerifyResult(result)
			return fmt.Errorf("refusing to run an unverified skill")
		}

		policyDoc, err = loadSkillPermissions(skillDir)
		if err != nil {
			return err
		}
	}

	policy := permissions.Resolve(policyDoc, skillDir)
	spawnPolicy, err := permissions.Compile(policy, runCommand, runArgsFlag, permissions.CompileOptions{ForceBackend: cfg.SandboxBackend})
	if err != nil {
		return fmt.Errorf("failed to compile sandbox policy: %w", err)
	}

	runner := sandbox.NewRunner(logger)
	result, err := runner.Run(context.Background(), sandbox.RunOptions{
		Policy:           spawnPolicy,
		Timeout:          time.Duration(runTimeoutSeconds) * time.Second,
		MemoryLimitBytes: runMemoryLimitMB * 1024 * 1024,
	})
	if err != nil {
		return fmt.Errorf("sandbox run failed: %w", err)
	}

	analysis := sandbox.Analyze(result, policy, spawnPolicy.Enforced)
	printRunResult(result, analysis)

	if analysis.Status == sandbox.StatusReject {
		return fmt.Errorf("sandbox run rejected: %d violation(s)", len(analysis.Violations))
	}
	return nil
}

func loadSkillPermissions(skillDir string) (*permissions.Document, error) {
	data, err := os.ReadFile(filepath.Join(skillDir, ".vault", "permissions.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read permissions.json: %w", err)
	}
	return permissions.Parse(data)
}

func printRunResult(result *sandbox.RunResult, analysis *sandbox.Analysis) {
	switch analysis.Status {
	case sandbox.StatusPass:
		color.New(color.FgGreen).Println("PASS")
	case sandbox.StatusFlag:
		color.New(color.FgYellow).Println("FLAG")
	case sandbox.StatusReject:
		color.New(color.FgRed).Println("REJECT")
	}
	for _, v := range analysis.Violations {
		c := color.FgYellow
		if v.Severity == sandbox.SeverityCritical || v.Severity == sandbox.SeverityHigh {
			c = color.FgRed
		}
		color.New(c).Printf("  %s (%s): %s\n", v.Type, v.Severity, v.Detail)
	}
	fmt.Printf("exit_code=%d timed_out=%v duration=%s\n", result.ExitCode, result.TimedOut, result.Duration)
}

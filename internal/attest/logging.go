package attest

import (
	"time"

	"go.uber.org/zap"

	"github.com/Haldir-AI/haldir/internal/haldirlog"
)

// Signer wraps Sign with structured logging, the injected-logger pattern
// SPEC_FULL.md's ambient-stack section names explicitly
// ("attest.Verifier, sandbox.Runner"). Sign/Verify remain plain functions
// for callers (and the existing test suite) that don't need logging; Signer
// and Verifier are the long-lived, logger-carrying wrappers cmd/haldir uses.
type Signer struct {
	logger *zap.SugaredLogger
}

// NewSigner builds a Signer. A nil logger is replaced with a no-op one.
func NewSigner(logger *zap.SugaredLogger) *Signer {
	if logger == nil {
		logger = haldirlog.Nop()
	}
	return &Signer{logger: logger}
}

// Sign delegates to the package-level Sign and logs one structured event at
// completion.
func (s *Signer) Sign(skillDir string, opts SignOptions) (*SignResult, error) {
	start := time.Now()
	result, err := Sign(skillDir, opts)
	fields := []interface{}{
		"kind", "sign",
		"skill", opts.Skill.Name,
		"version", opts.Skill.Version,
		"duration_ms", time.Since(start).Milliseconds(),
	}
	if err != nil {
		s.logger.Errorw("sign failed", append(fields, "error", err)...)
		return nil, err
	}
	s.logger.Infow("sign completed", fields...)
	return result, nil
}

// Verifier wraps Verify with structured logging.
type Verifier struct {
	logger *zap.SugaredLogger
}

// NewVerifier builds a Verifier. A nil logger is replaced with a no-op one.
func NewVerifier(logger *zap.SugaredLogger) *Verifier {
	if logger == nil {
		logger = haldirlog.Nop()
	}
	return &Verifier{logger: logger}
}

// Verify delegates to the package-level Verify and logs one structured
// event at completion.
func (v *Verifier) Verify(opts VerifyOptions) *Result {
	start := time.Now()
	result := Verify(opts)
	fields := []interface{}{
		"kind", "verify",
		"context", string(opts.Context),
		"duration_ms", time.Since(start).Milliseconds(),
		"ok", result.OK,
	}
	if result.Attestation != nil {
		fields = append(fields, "skill", result.Attestation.Skill.Name, "version", result.Attestation.Skill.Version)
	}
	if !result.OK {
		v.logger.Warnw("verify failed", append(fields, "errors", result.Errors)...)
		return result
	}
	v.logger.Infow("verify completed", fields...)
	return result
}

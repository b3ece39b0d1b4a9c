package sandbox

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Haldir-AI/haldir/internal/haldirlog"
)

// Runner wraps Run with structured logging, the long-lived injected-logger
// type SPEC_FULL.md's ambient-stack section names alongside
// attest.Verifier. Run remains a plain function for callers that don't need
// logging; Runner is what cmd/haldir constructs once and reuses.
type Runner struct {
	logger *zap.SugaredLogger
}

// NewRunner builds a Runner. A nil logger is replaced with a no-op one.
func NewRunner(logger *zap.SugaredLogger) *Runner {
	if logger == nil {
		logger = haldirlog.Nop()
	}
	return &Runner{logger: logger}
}

// Run delegates to the package-level Run and logs one structured event at
// completion.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*RunResult, error) {
	start := time.Now()
	result, err := Run(ctx, opts)
	if err != nil {
		r.logger.Errorw("sandbox run failed to spawn", "duration_ms", time.Since(start).Milliseconds(), "error", err)
		return nil, err
	}
	r.logger.Infow("sandbox run completed",
		"kind", "sandbox_run",
		"run_id", result.RunID,
		"exit_code", result.ExitCode,
		"signal", result.Signal,
		"timed_out", result.TimedOut,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

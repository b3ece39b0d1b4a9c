// Package haldirlog constructs the structured loggers injected into
// Haldir's long-lived types (attest.Verifier, attest.Signer,
// sandbox.Runner), the same zap.SugaredLogger-via-constructor pattern
// sigstore-policy-controller uses rather than a package-level global.
package haldirlog

import "go.uber.org/zap"

// New builds a zap.SugaredLogger; verbose selects development config
// (human-readable, debug level) over production config (JSON, info level).
func New(verbose bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Nop returns a logger that discards everything, for callers (tests,
// library consumers that haven't configured logging) that don't want to
// construct a real one.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

// Package logging constructs the process-wide zap logger.
//
// Per the "global mutable state -> injected collaborators" design note,
// there is no package-level logger: New returns a *zap.SugaredLogger that
// main() injects explicitly into every component that needs one. The only
// process-wide state this package touches is zap's own global flush on
// teardown (Sync), called once from main.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a SugaredLogger. verbose=true selects debug-level,
// development-formatted output (human-readable console lines);
// verbose=false selects info-level, JSON output suited to log shipping.
func New(verbose bool) (*zap.SugaredLogger, error) {
	var cfg zap.Config
	if verbose {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

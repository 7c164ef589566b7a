// Package ginlog is the module's structured-logging seam. Diagnostics (the
// advisory notice on a resolved concurrent split, the CLI's config warnings
// and verification-failure reports) go through here; the CLI's plain result
// lines are printed with fmt. This mirrors how daviszhen-plan's storage and
// planner layers share one zap logger instance instead of each constructing
// their own.
package ginlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	logger *zap.Logger
)

// L returns the process-wide logger, building a sane production default the
// first time it's needed.
func L() *zap.Logger {
	once.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.TimeKey = ""
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
	})
	return logger
}

// SetLogger overrides the process-wide logger. Used by cmd/gincheck to wire
// its verbosity flag.
func SetLogger(l *zap.Logger) {
	once.Do(func() {})
	logger = l
}

// Sugar returns a SugaredLogger for call sites that prefer printf-style
// formatting.
func Sugar() *zap.SugaredLogger {
	return L().Sugar()
}

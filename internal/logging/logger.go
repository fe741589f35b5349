// Package logging builds the zap-backed logr.Logger used by the binaries.
// Library packages never import it; they read their logger from the context
// with logr.FromContextOrDiscard.
package logging

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	uberzap "go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// Verbosity levels passed to logr's V.
const (
	DEFAULT = 0
	DEBUG   = 1
	TRACE   = 2
)

// ParseLevel accepts error, warn, info, debug, trace or a logr verbosity
// number.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "debug":
		return zapcore.Level(-DEBUG), nil
	case "trace":
		return zapcore.Level(-TRACE), nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("logging: unknown level %q", s)
	}
	return zapcore.Level(-v), nil
}

// New returns a JSON logger writing to stderr at the given level.
func New(level string) (logr.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return logr.Discard(), err
	}
	cfg := uberzap.NewProductionConfig()
	cfg.Level = uberzap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	z, err := cfg.Build(uberzap.AddCaller())
	if err != nil {
		return logr.Discard(), fmt.Errorf("logging: build: %w", err)
	}
	return zapr.NewLogger(z), nil
}

// NewTestLogger returns a logger at trace level that writes through t.Log.
func NewTestLogger(t zaptest.TestingT) logr.Logger {
	return zapr.NewLogger(zaptest.NewLogger(t, zaptest.Level(zapcore.Level(-TRACE))))
}

// IntoContext stores logger in ctx for logr.FromContextOrDiscard.
func IntoContext(ctx context.Context, logger logr.Logger) context.Context {
	return logr.NewContext(ctx, logger)
}

// Fatal calls logger.Error followed by os.Exit(1).
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...any) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}

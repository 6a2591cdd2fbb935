// Package logging builds the process logger. Verbose runs log to a dated
// file under ~/.coda/logs; quiet runs get a no-op logger so the hot path
// never pays for formatting.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sokinpui/coda/internal/config"
)

// New returns a logger and a flush function. The flush function is safe to
// call on the no-op logger.
func New(verbose bool) (*zap.SugaredLogger, func(), error) {
	if !verbose {
		return zap.NewNop().Sugar(), func() {}, nil
	}

	dir, err := config.Dir()
	if err != nil {
		return nil, nil, err
	}
	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(logDir, time.Now().UTC().Format("2006-01-02")+".log")

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	sugared := logger.Sugar()
	return sugared, func() { _ = sugared.Sync() }, nil
}

// Package logging builds the zap loggers used by the binaries
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultDir      = "logs"
	DefaultFileName = "buildrun.log"
	MaxFileSize     = 10 * 1024 * 1024
)

// Options selects where log output goes
// With Debug off the returned logger discards everything
type Options struct {
	Debug bool
	// Dir and FileName locate the JSON log file; empty uses the defaults
	Dir      string
	FileName string
	// Console adds a human-readable stderr core; leave off while the terminal view is active
	Console bool
}

// New returns the logger and a close func that flushes and releases the log file
func New(opts Options) (*zap.Logger, func() error, error) {
	if !opts.Debug {
		return zap.NewNop(), func() error { return nil }, nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = DefaultDir
	}
	name := opts.FileName
	if name == "" {
		name = DefaultFileName
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := rotate(path); err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel),
	}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			zapcore.InfoLevel,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closeFn := func() error {
		_ = logger.Sync()
		return f.Close()
	}
	return logger, closeFn, nil
}

// rotate moves an oversized log aside under a timestamped name
func rotate(path string) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() <= MaxFileSize {
		return nil
	}
	ext := filepath.Ext(path)
	rotated := fmt.Sprintf("%s-%s%s", path[:len(path)-len(ext)], time.Now().Format("20060102-150405"), ext)
	if err := os.Rename(path, rotated); err != nil {
		return fmt.Errorf("rotate log: %w", err)
	}
	return nil
}

package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options controls where and how much a component logs.
type Options struct {
	// Level is a logrus level name; empty means info.
	Level string
	// File, when set, receives the log output instead of stderr.
	File string
	// Output overrides both File and stderr. Used by tests.
	Output io.Writer
}

// New creates a logger for component and returns it with a cleanup.
// Stdout is never used: in stdio mode it carries the protocol stream.
func New(component string, opts Options) (*logrus.Entry, func(), error) {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	level := logrus.InfoLevel
	if strings.TrimSpace(opts.Level) != "" {
		parsed, err := logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, nil, err
		}
		level = parsed
	}
	logger.SetLevel(level)

	cleanup := func() {}
	switch {
	case opts.Output != nil:
		logger.SetOutput(opts.Output)
	case opts.File != "":
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		logger.SetOutput(f)
		cleanup = func() { _ = f.Close() }
	default:
		logger.SetOutput(os.Stderr)
	}

	return logger.WithField("component", component), cleanup, nil
}

// Discard returns an entry that drops everything.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// Package logging builds the zerolog logger shared by the CLI
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Options selects where log lines go
type Options struct {
	// Verbose writes human readable lines to Console instead of the file
	Verbose bool
	Console io.Writer
	Level   string
	Fs      afero.Fs
	Dir     string // defaults to ~/.mimic-swap
}

const (
	DefaultDirName = ".mimic-swap"
	LogFileName    = "mimic-swap.log"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New creates the logger. The returned closer releases the log file
func New(opts Options) (zerolog.Logger, io.Closer, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		l, err := zerolog.ParseLevel(opts.Level)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	if opts.Verbose {
		out := opts.Console
		if out == nil {
			out = os.Stderr
		}
		w := zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
		if level > zerolog.DebugLevel && opts.Level == "" {
			level = zerolog.DebugLevel
		}
		log := zerolog.New(w).Level(level).With().Timestamp().Logger()
		return log, nopCloser{}, nil
	}

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	dir := opts.Dir
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dir = filepath.Join(home, DefaultDirName)
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	f, err := fs.OpenFile(
		filepath.Join(dir, LogFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
	)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}

	log := zerolog.New(f).Level(level).With().Timestamp().Logger()
	return log, f, nil
}

package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Rotation defaults for the supervisor's own log file.
const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// FileConfig describes the supervisor's rotating log destination (used by
// the serve daemon). Service process logs are plain append-only files owned
// by the spawned processes themselves and do not rotate from here.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Writer returns a rotating writer for the configured path.
func (c FileConfig) Writer() (io.WriteCloser, error) {
	if c.Path == "" {
		return nil, os.ErrInvalid
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o750); err != nil {
		return nil, err
	}
	return &lj.Logger{
		Filename:   c.Path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.Compress,
	}, nil
}

// NewCLI builds the operator-facing logger: colored level prefixes, no
// timestamps (the terminal session provides temporal context).
func NewCLI(level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Level is rendered by the color handler; time is noise on a TTY.
			if a.Key == slog.TimeKey || a.Key == slog.LevelKey {
				return slog.Attr{}
			}
			return a
		},
	}
	return slog.New(newColorTextHandler(os.Stderr, opts))
}

// NewDaemon builds a structured logger for long-running serve mode writing
// to w (typically a rotating file writer).
func NewDaemon(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

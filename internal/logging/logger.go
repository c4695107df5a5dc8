// Package logging configures log/slog with a zerolog backend for the
// binmap command line tool.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
	slogzerolog "github.com/samber/slog-zerolog/v2"
)

const DefaultLogLevel = slog.LevelInfo

// ParseLogLevel will convert the slog level configuration to slog.Level values.
func ParseLogLevel(levelStr string) (slog.Level, error) {
	switch {
	case strings.EqualFold(levelStr, slog.LevelDebug.String()):
		return slog.LevelDebug, nil
	case strings.EqualFold(levelStr, slog.LevelInfo.String()):
		return slog.LevelInfo, nil
	case strings.EqualFold(levelStr, slog.LevelWarn.String()):
		return slog.LevelWarn, nil
	case strings.EqualFold(levelStr, slog.LevelError.String()):
		return slog.LevelError, nil
	}

	return DefaultLogLevel, errors.Errorf("unknown level string: '%s', defaulting to LevelInfo", levelStr)
}

// New builds a slog.Logger writing to w through zerolog. Without json the
// output is zerolog's human readable console format.
func New(w io.Writer, level slog.Level, json bool) *slog.Logger {
	zerologLogger := zerolog.New(w).
		With().
		Timestamp().
		Stack().
		Logger()

	if !json {
		zerologLogger = zerologLogger.Output(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.StampMicro,
		})
	}

	return slog.New(
		slogzerolog.Option{
			Level:  level,
			Logger: &zerologLogger,
		}.NewZerologHandler(),
	)
}

// ConfigureLogger installs a logger on stderr as the slog default.
func ConfigureLogger(level slog.Level, json bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	//nolint
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	slog.SetDefault(New(os.Stderr, level, json))
}

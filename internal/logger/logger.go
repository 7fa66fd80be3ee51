package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const simpleTimeFormat = "02-01-2006 15:04:05"

// Options describes how a service logger should be built.
type Options struct {
	Service string
	Env     string
	Level   string
}

// New constructs a zerolog logger for a service. Development environments
// receive human readable console logs while other environments emit JSON.
// Supplying writers overrides the output (tests use a bytes.Buffer).
func New(opts Options, writers ...io.Writer) (*zerolog.Logger, error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = simpleTimeFormat
	zerolog.DurationFieldUnit = time.Millisecond

	var output io.Writer
	switch {
	case len(writers) > 0:
		output = io.MultiWriter(writers...)
	case isDevelopment(opts.Env):
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: simpleTimeFormat}
		cw.FieldsExclude = []string{zerolog.TimestampFieldName}
		output = cw
	default:
		output = os.Stdout
	}

	ctx := zerolog.New(output).With().Timestamp()
	if s := strings.TrimSpace(opts.Service); s != "" {
		ctx = ctx.Str("service", s)
	}
	logger := ctx.Logger().Level(lvl)
	return &logger, nil
}

// Fallback returns a plain JSON logger used when configuration could not be
// loaded and no leveled logger exists yet.
func Fallback(service string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().Timestamp().Str("service", service).Logger()
}

func isDevelopment(env string) bool {
	return strings.EqualFold(env, "development") || strings.EqualFold(env, "dev")
}

func parseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		level = zerolog.InfoLevel.String()
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, err
	}
	return lvl, nil
}

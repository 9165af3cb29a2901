package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. Development gets a human readable console writer,
// every other environment writes JSON lines to stdout.
func New(env, level string) zerolog.Logger {
	var out io.Writer = os.Stdout
	if env == "development" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("service", "classroom-backend").Logger()
}

// For returns a child logger tagged with a component and, optionally, an operation.
func For(base zerolog.Logger, component, operation string) zerolog.Logger {
	ctx := base.With().Str("component", component)
	if operation != "" {
		ctx = ctx.Str("operation", operation)
	}
	return ctx.Logger()
}

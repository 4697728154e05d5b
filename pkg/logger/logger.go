// Package logger wraps zerolog so every entry picks up the fields stored on
// the context by earlier calls (request id, session, checkout, intent).
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options configures New. An empty Format reads LOG_FORMAT, then defaults to
// JSON.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Format      string
	Output      io.Writer
}

type Logger struct {
	root      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	root := zerolog.New(writerFor(opts)).
		Level(level).
		With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{root: root, warnStack: opts.WarnStack}
}

func writerFor(opts Options) io.Writer {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	format := opts.Format
	if format == "" {
		format = os.Getenv("LOG_FORMAT")
	}
	if strings.EqualFold(format, FormatConsole) {
		return zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	return out
}

// ParseLevel falls back to info for empty or unknown values.
func ParseLevel(value string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// scoped returns the logger stored on ctx by WithFields, or the root one.
func (l *Logger) scoped(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &l.root
	}
	if zl := zerolog.Ctx(ctx); zl.GetLevel() != zerolog.Disabled {
		return zl
	}
	return &l.root
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	child := l.scoped(ctx).With().Fields(fields).Logger()
	return child.WithContext(ctx)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.WithFields(ctx, map[string]any{key: value})
}

func (l *Logger) WithRequestID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "request_id", id)
}

func (l *Logger) WithSessionID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "session_id", id)
}

func (l *Logger) WithCheckoutID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "checkout_id", id)
}

func (l *Logger) WithPaymentIntentID(ctx context.Context, id string) context.Context {
	return l.WithField(ctx, "payment_intent_id", id)
}

func (l *Logger) Debug(ctx context.Context, msg string) { l.scoped(ctx).Debug().Msg(msg) }

func (l *Logger) Info(ctx context.Context, msg string) { l.scoped(ctx).Info().Msg(msg) }

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.scoped(ctx).Warn()
	if l.warnStack {
		ev.Str("stack", stackTrace())
	}
	ev.Msg(msg)
}

// Error records err with a stack trace, plus error_code for coded errors.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	ev := l.scoped(ctx).Error().Err(err)
	if coded := pkgerrors.As(err); coded != nil {
		ev.Str("error_code", string(coded.Code()))
	}
	ev.Str("stack", stackTrace()).Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}

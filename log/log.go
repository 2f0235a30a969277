// Package log is the client's logger: logrus carried through a context so every line
// of one request shares the same fields.
package log

import (
	"context"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Field names shared by the client packages.
const (
	RequestIDKey = "request_id"
	EndpointKey  = "endpoint"
	AddrKey      = "addr"
)

type loggerKeyType int

const loggerKey loggerKeyType = iota

// Logger is what the client logs through.
type Logger interface {
	logrus.FieldLogger
}

var mainLogger Logger

func init() {
	mainLogger = logrus.NewEntry(New(os.Stderr, logrus.InfoLevel))
}

// New returns a logrus logger with the client's text format.
func New(w io.Writer, level logrus.Level) *logrus.Logger {
	formatter := new(logrus.TextFormatter)
	formatter.TimestampFormat = "2006-01-02 15:04:05.000"
	formatter.FullTimestamp = true

	l := logrus.New()
	l.SetFormatter(formatter)
	l.SetOutput(w)
	l.SetLevel(level)
	return l
}

// ParseLevel falls back to info for an empty or unknown level.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Default is the package-level logger used when nothing is attached to a context.
func Default() Logger {
	return mainLogger
}

// Str ..
func Str(key, value string) func(logrus.Fields) {
	return func(fields logrus.Fields) {
		fields[key] = value
	}
}

// NewContext returns ctx carrying base (or the logger already in ctx when base is nil)
// extended with the given fields.
func NewContext(ctx context.Context, base Logger, opts ...func(logrus.Fields)) context.Context {
	fields := make(logrus.Fields)
	for _, opt := range opts {
		opt(fields)
	}
	if base == nil {
		base = WithContext(ctx)
	}
	return context.WithValue(ctx, loggerKey, Logger(base.WithFields(fields)))
}

// WithContext returns the logger stored in ctx, or the default one.
func WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return mainLogger
	}
	if ctxLogger, ok := ctx.Value(loggerKey).(Logger); ok {
		return ctxLogger
	}
	return mainLogger
}

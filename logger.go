package statusflow

import (
	"context"
	"os"

	internal_logger "github.com/julo/statusflow/internal/logger"
)

type Logger interface {
	// Debug will be used by the engine for debug logs when in debug mode.
	Debug(ctx context.Context, msg string, meta map[string]string)
	// Error is used when writing errors to the logs.
	Error(ctx context.Context, err error)
}

// logger gates debug logs behind debug mode.
type logger struct {
	debugMode bool
	inner     Logger
}

func newLogger(l Logger, debugMode bool) *logger {
	if l == nil {
		l = internal_logger.New(os.Stdout)
	}

	return &logger{
		debugMode: debugMode,
		inner:     l,
	}
}

func (l *logger) Debug(ctx context.Context, msg string, meta map[string]string) {
	if !l.debugMode {
		return
	}

	l.inner.Debug(ctx, msg, meta)
}

func (l *logger) Error(ctx context.Context, err error) {
	l.inner.Error(ctx, err)
}

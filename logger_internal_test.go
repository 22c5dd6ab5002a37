package statusflow

import (
	"context"
	"testing"

	"github.com/luno/jettison/errors"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct {
	debugs []string
	errs   []error
}

func (r *recordingLogger) Debug(ctx context.Context, msg string, meta map[string]string) {
	r.debugs = append(r.debugs, msg)
}

func (r *recordingLogger) Error(ctx context.Context, err error) {
	r.errs = append(r.errs, err)
}

func TestLoggerDebugMode(t *testing.T) {
	ctx := context.Background()

	inner := &recordingLogger{}
	l := newLogger(inner, false)
	l.Debug(ctx, "transition committed", nil)
	l.Error(ctx, errors.New("store unavailable"))
	require.Empty(t, inner.debugs)
	require.Len(t, inner.errs, 1)

	inner = &recordingLogger{}
	l = newLogger(inner, true)
	l.Debug(ctx, "transition committed", nil)
	require.Equal(t, []string{"transition committed"}, inner.debugs)
}

func TestDefaultLogger(t *testing.T) {
	l := newLogger(nil, true)
	require.NotNil(t, l.inner)
}

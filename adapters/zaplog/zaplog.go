package zaplog

import (
	"context"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/julo/statusflow"
)

// New adapts a zap logger to statusflow.Logger.
func New(l *zap.Logger) *Logger {
	return &Logger{zap: l}
}

// NewProduction builds a JSON logger writing to stdout at the given level with ISO8601 timestamps.
func NewProduction(level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encoderConfig)

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

type Logger struct {
	zap *zap.Logger
}

var _ statusflow.Logger = (*Logger)(nil)

func (l *Logger) Debug(ctx context.Context, msg string, meta map[string]string) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		fields = append(fields, zap.String(k, meta[k]))
	}

	l.zap.Debug(msg, fields...)
}

func (l *Logger) Error(ctx context.Context, err error) {
	l.zap.Error(err.Error(), zap.Error(err))
}

package logger_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/julo/statusflow/internal/logger"
)

func TestLoggerDebug(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	log.Debug(t.Context(), "transition committed", map[string]string{"entity_id": "app-1"})

	require.Contains(t, buf.String(), "\"level\":\"DEBUG\",\"msg\":\"transition committed\",\"meta\":{\"entity_id\":\"app-1\"}")
}

func TestLoggerError(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	log.Error(t.Context(), errors.New("post hook failed"))

	require.Contains(t, buf.String(), "\"level\":\"ERROR\",\"msg\":\"post hook failed\"")
}

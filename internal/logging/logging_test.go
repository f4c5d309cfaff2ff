package logging_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"go.arsenm.dev/pvrpc/internal/logging"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, logging.ParseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, logging.ParseLevel("WARN"))
	assert.Equal(t, zapcore.InfoLevel, logging.ParseLevel("verbose"))
	assert.Equal(t, zapcore.InfoLevel, logging.ParseLevel(""))
}

func TestNew(t *testing.T) {
	l, err := logging.New(logging.Config{Level: "error", Format: "json"})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.WarnLevel))
	assert.True(t, l.Core().Enabled(zapcore.ErrorLevel))
}

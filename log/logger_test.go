package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { level.SetLevel(zapcore.InfoLevel) })

	require.NoError(t, SetLevel("debug"))
	assert.True(t, GetInstance().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, SetLevel(""))
	assert.Equal(t, zapcore.DebugLevel, level.Level())

	assert.Error(t, SetLevel("loud"))
	assert.Equal(t, zapcore.DebugLevel, level.Level())
}

func TestGetInstanceIsShared(t *testing.T) {
	assert.Same(t, GetInstance(), GetInstance())
}

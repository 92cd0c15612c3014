package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew_TestEnvIsNop(t *testing.T) {
	l, err := New("test", "multisig-server")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.ErrorLevel))
}

func TestNew_Levels(t *testing.T) {
	prod, err := New("production", "multisig-server")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, prod.Core().Enabled(zapcore.InfoLevel))

	dev, err := New("development", "multisig-cli")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestNamed_DefaultNop(t *testing.T) {
	// 未调用 Init 时组件 Logger 也可用
	assert.NotPanics(t, func() { Named("signing").Info("flow started") })
}

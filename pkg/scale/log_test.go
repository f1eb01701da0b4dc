package scale

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDefaultLogger(t *testing.T) {
	logger, err := NewDefaultLogger(false)
	require.NoError(t, err)
	assert.False(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Desugar().Core().Enabled(zapcore.InfoLevel))

	logger, err = NewDefaultLogger(true)
	require.NoError(t, err)
	assert.True(t, logger.Desugar().Core().Enabled(zapcore.DebugLevel))
}

func TestNullLogger(t *testing.T) {
	var l Logger = &NullLogger{}
	l.Infof("ignored %d", 1)
	l.Debug("ignored")
}

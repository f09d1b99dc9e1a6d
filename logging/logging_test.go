package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	for _, opts := range []Options{{}, {Level: "debug"}, {JSON: true, Level: "warn"}} {
		l, err := New(opts)
		require.NoError(t, err)
		require.NotNil(t, l)
	}

	l, err := New(Options{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, l.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Desugar().Core().Enabled(zapcore.ErrorLevel))
}

func TestUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.ErrorContains(t, err, `log level "loud"`)
}

package logging

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"INFO", zapcore.InfoLevel},
		{"error", zapcore.ErrorLevel},
		{"warn", zapcore.WarnLevel},
		{"debug", zapcore.DebugLevel},
		{"trace", zapcore.Level(-2)},
		{"3", zapcore.Level(-3)},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseLevel(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	_, err := ParseLevel("loud")
	require.ErrorContains(t, err, `unknown level "loud"`)
	_, err = ParseLevel("-1")
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	log, err := New("debug")
	require.NoError(t, err)
	require.True(t, log.V(DEBUG).Enabled())
	require.False(t, log.V(TRACE).Enabled())

	_, err = New("loud")
	require.Error(t, err)
}

func TestContextRoundTrip(t *testing.T) {
	log := NewTestLogger(t)
	require.True(t, log.V(TRACE).Enabled())

	ctx := IntoContext(context.Background(), log)
	got := logr.FromContextOrDiscard(ctx)
	require.True(t, got.V(TRACE).Enabled())
	got.V(DEBUG).Info("reaches the test log", "key", "value")
}

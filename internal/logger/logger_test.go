package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"cot-sentiment-lab/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.LogConfig
		want zapcore.Level
	}{
		{"debug console", config.LogConfig{Level: "debug", Encoding: "console"}, zapcore.DebugLevel},
		{"warn json", config.LogConfig{Level: "WARN", Encoding: "json", Sampling: true}, zapcore.WarnLevel},
		{"unknown level", config.LogConfig{Level: "verbose"}, zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.want))
			if tt.want > zapcore.DebugLevel {
				assert.False(t, l.Core().Enabled(tt.want-1))
			}
		})
	}
}

func TestNew_BadEncoding(t *testing.T) {
	_, err := New(config.LogConfig{Level: "info", Encoding: "xml"})
	assert.Error(t, err)
}

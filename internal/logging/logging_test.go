package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		level   string
		enabled zapcore.Level
		quiet   *zapcore.Level
		wantErr bool
	}{
		{name: "dev default is debug", mode: "dev", enabled: zapcore.DebugLevel},
		{name: "prod default is info", mode: "production", enabled: zapcore.InfoLevel, quiet: level(zapcore.DebugLevel)},
		{name: "explicit warn", mode: "prod", level: "WARN", enabled: zapcore.WarnLevel, quiet: level(zapcore.InfoLevel)},
		{name: "bad level", mode: "prod", level: "loud", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.mode, tt.level)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, log.Core().Enabled(tt.enabled))
			if tt.quiet != nil {
				assert.False(t, log.Core().Enabled(*tt.quiet))
			}
		})
	}
}

func level(l zapcore.Level) *zapcore.Level { return &l }

func TestFields(t *testing.T) {
	assert.Equal(t, "learner_id", Learner("tg:1").Key)
	assert.Equal(t, "lesson_id", Lesson("intro").Key)
}

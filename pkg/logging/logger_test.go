package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/z-wentao/speechflow/pkg/config"
)

func TestNewLoggerLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"", logrus.InfoLevel},
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		logger := NewLogger(config.LogConfig{Level: tt.in})
		assert.Equal(t, tt.want, logger.GetLevel(), "level %q", tt.in)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	logger := NewLogger(config.LogConfig{Format: "json"})
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	Component(logger, "batch").WithField("job_id", "abc").Info("created new transcription")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "batch", line["component"])
	assert.Equal(t, "abc", line["job_id"])
	assert.Equal(t, "created new transcription", line["msg"])
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
azure:
  region: westeurope
transcription:
  locale: de-DE
  poll_interval: 2s
  properties:
    diarization_enabled: true
    max_speakers: 3
    time_to_live: PT1H
storage:
  type: redis
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("AZURE_SPEECH_KEY", "from-env")
	t.Setenv("LUIS_APP_ID", "app-1")

	cfg, err := LoadConfig(writeFile(t, "config.yaml", sampleYAML), "")
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Azure.SubscriptionKey)
	assert.Equal(t, "key", cfg.Azure.Auth)
	assert.Equal(t, "westeurope", cfg.Azure.Region)
	assert.Equal(t, "de-DE", cfg.Transcription.Locale)
	assert.Equal(t, 2*time.Second, cfg.Transcription.PollInterval)
	assert.Equal(t, "redis", cfg.Storage.Type)
	assert.Equal(t, "app-1", cfg.LUIS.AppID)
}

func TestLoadConfigDotEnv(t *testing.T) {
	// godotenv does not override variables that are already set.
	t.Setenv("AZURE_SPEECH_KEY", "")
	require.NoError(t, os.Unsetenv("AZURE_SPEECH_KEY"))

	envFile := writeFile(t, ".env", "AZURE_SPEECH_KEY=dotenv-key\n")
	cfg, err := LoadConfig(writeFile(t, "config.yaml", sampleYAML), envFile)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-key", cfg.Azure.SubscriptionKey)
}

func TestLoadConfigMissingEnvFileIsIgnored(t *testing.T) {
	t.Setenv("AZURE_SPEECH_KEY", "k")
	_, err := LoadConfig(writeFile(t, "config.yaml", sampleYAML), filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{Azure: AzureConfig{Region: "eastus", SubscriptionKey: "k"}}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "en-US", cfg.Transcription.Locale)
	assert.Equal(t, 5*time.Second, cfg.Transcription.PollInterval)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Queue.Type)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 2, cfg.Worker.PoolSize)
}

func TestValidateRejects(t *testing.T) {
	tests := map[string]Config{
		"no region": {Azure: AzureConfig{SubscriptionKey: "k"}},
		"no key":    {Azure: AzureConfig{Region: "eastus"}},
		"bad auth":  {Azure: AzureConfig{Region: "eastus", Auth: "basic"}},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, cfg.Validate())
		})
	}

	aad := Config{Azure: AzureConfig{Region: "eastus", Auth: "aad"}}
	assert.NoError(t, aad.Validate())
}

func TestTranscriptionProperties(t *testing.T) {
	cfg := &Config{}
	cfg.Transcription.Properties = PropertiesConfig{
		PunctuationMode:    "DictatedAndAutomatic",
		DiarizationEnabled: true,
		MaxSpeakers:        4,
	}

	props := cfg.TranscriptionProperties()
	assert.Equal(t, "DictatedAndAutomatic", props.PunctuationMode)
	require.NotNil(t, props.Diarization)
	assert.Equal(t, 1, props.Diarization.Speakers.MinCount)
	assert.Equal(t, 4, props.Diarization.Speakers.MaxCount)

	cfg.Transcription.Properties.DiarizationEnabled = false
	assert.Nil(t, cfg.TranscriptionProperties().Diarization)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Realtime.Driver)
	assert.Equal(t, "store", cfg.Search.Driver)
	assert.Equal(t, "gemini-pro", cfg.LLM.TextModel)
	assert.Equal(t, "gemini-pro-vision", cfg.LLM.VisionModel)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: "9090"
database:
  driver: postgres
  dsn: "host=db user=chat"
llm:
  text_model: gemini-1.5-flash
  timeout: 5s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("CHAT_LLM_API_KEY", "secret-key")
	t.Setenv("CHAT_REALTIME_DRIVER", "redis")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=chat", cfg.Database.DSN)
	assert.Equal(t, "gemini-1.5-flash", cfg.LLM.TextModel)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
	assert.Equal(t, "redis", cfg.Realtime.Driver)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

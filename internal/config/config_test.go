package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "openai", c.Model.Provider)
	assert.Equal(t, "https://openrouter.ai/api/v1", c.OpenAI.BaseURL)
	assert.Equal(t, 30*time.Second, c.Chat.Timeout)
	assert.Equal(t, "bolt", c.Storage.Type)
	assert.Empty(t, c.OpenAI.APIKey)
	assert.Same(t, c, Get())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  port: 9090
model:
  provider: gemini
chat:
  timeout: 5s
openai:
  api_key: from-file
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	t.Setenv("OPENROUTER_API_KEY", "from-env")
	t.Setenv("GEMINI_API_KEY", "gem-env")
	t.Setenv("SCANALYTICS_LOG_LEVEL", "debug")

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, "gemini", c.Model.Provider)
	assert.Equal(t, 5*time.Second, c.Chat.Timeout)
	assert.Equal(t, "from-file", c.OpenAI.APIKey)
	assert.Equal(t, "gem-env", c.Gemini.APIKey)
	assert.Equal(t, "debug", c.Log.Level)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestStreamClientTimeout(t *testing.T) {
	testCases := []struct {
		name   string
		client time.Duration
		chat   time.Duration
		want   time.Duration
	}{
		{name: "disabled", client: 0, chat: 30 * time.Second, want: 0},
		{name: "above chat timeout", client: 60 * time.Second, chat: 30 * time.Second, want: 60 * time.Second},
		{name: "equal to chat timeout", client: 30 * time.Second, chat: 30 * time.Second, want: 35 * time.Second},
		{name: "below chat timeout", client: 10 * time.Second, chat: 30 * time.Second, want: 35 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Config{Client: ClientConfig{Timeout: tc.client}, Chat: ChatConfig{Timeout: tc.chat}}
			assert.Equal(t, tc.want, c.StreamClientTimeout())
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/poiesic/colloquy/ai"
	"github.com/poiesic/colloquy/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1400, cfg.Index.ChunkSize)
	assert.Equal(t, 200, cfg.Index.ChunkOverlap)
	assert.Equal(t, 4, cfg.Index.SearchK)
	assert.Equal(t, "llama3", cfg.AI.ChatModel)
}

func TestLoad_YAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, "colloquy.yaml", `
data_dir: /var/lib/colloquy
ai:
  chat_host: http://gpu-box:8000
  chat_model: qwen2.5:7b
  prompt_style: completion
  stop_words: ["User:"]
  retry_delay: 2s
  max_attempts: 3
index:
  chunk_size: 800
  chunk_overlap: 100
server:
  addr: 127.0.0.1:9090
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/colloquy", cfg.DataDir)
	assert.Equal(t, "http://gpu-box:8000/v1", cfg.AI.ChatHost, "hosts are normalized")
	assert.Equal(t, "qwen2.5:7b", cfg.AI.ChatModel)
	assert.Equal(t, ai.PromptStyleCompletion, cfg.AI.PromptStyle)
	assert.Equal(t, []string{"User:"}, cfg.AI.StopWords)
	assert.Equal(t, 2*time.Second, cfg.AI.RetryDelay)
	assert.Equal(t, 3, cfg.AI.MaxAttempts)
	assert.Equal(t, 800, cfg.Index.ChunkSize)
	assert.Equal(t, 4, cfg.Index.SearchK, "unset keys keep defaults")
	assert.Equal(t, "nomic-embed-text", cfg.AI.EmbeddingModel)
	assert.True(t, cfg.AI.Streaming)
	assert.Equal(t, "127.0.0.1:9090", cfg.Server.Addr)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "index:\n  chunk_sise: 10\n"))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(writeFile(t, "overlap.yaml", "index:\n  chunk_size: 100\n  chunk_overlap: 100\n"))
	assert.ErrorIs(t, err, core.ErrInvalidChunking)

	cfg, err := Load(writeFile(t, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().DataDir, cfg.DataDir)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(envMap(map[string]string{
		"COLLOQUY_HOST":           "http://remote:11434",
		"COLLOQUY_CHAT_MODEL":     "mistral",
		"COLLOQUY_TEMPERATURE":    "0.2",
		"COLLOQUY_CONTEXT_WINDOW": "512",
		"COLLOQUY_STOP_WORDS":     "User:, Usuário: ,",
		"COLLOQUY_STREAMING":      "false",
		"COLLOQUY_PROMPT_STYLE":   "COMPLETION",
		"COLLOQUY_SEARCH_K":       "6",
		"COLLOQUY_DATA_DIR":       "/tmp/idx",
		"UNRELATED_CHAT_MODEL":    "ignored",
	}))
	require.NoError(t, err)

	assert.Equal(t, "http://remote:11434", cfg.AI.ChatHost)
	assert.Equal(t, "http://remote:11434", cfg.AI.EmbeddingHost)
	assert.Equal(t, "mistral", cfg.AI.ChatModel)
	assert.Equal(t, 0.2, cfg.AI.Temperature)
	assert.Equal(t, 512, cfg.AI.ContextWindow)
	assert.Equal(t, []string{"User:", "Usuário:"}, cfg.AI.StopWords)
	assert.False(t, cfg.AI.Streaming)
	assert.Equal(t, ai.PromptStyleCompletion, cfg.AI.PromptStyle)
	assert.Equal(t, 6, cfg.Index.SearchK)
	assert.Equal(t, "/tmp/idx", cfg.DataDir)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_InvalidNumbers(t *testing.T) {
	for _, kv := range [][2]string{
		{"COLLOQUY_CHUNK_SIZE", "big"},
		{"COLLOQUY_TEMPERATURE", "warm"},
		{"COLLOQUY_STREAMING", "maybe"},
	} {
		err := Default().ApplyEnv(envMap(map[string]string{kv[0]: kv[1]}))
		assert.Error(t, err, kv[0])
		assert.Contains(t, err.Error(), kv[0])
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "COLLOQUY_TEST_DOTENV_VALUE=from-file\n")
	t.Setenv("COLLOQUY_TEST_DOTENV_VALUE", "")
	os.Unsetenv("COLLOQUY_TEST_DOTENV_VALUE")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("COLLOQUY_TEST_DOTENV_VALUE"))

	assert.Error(t, LoadDotEnv(filepath.Join(t.TempDir(), "nope.env")))
}

func TestLoadDotEnv_MissingDefaultIsFine(t *testing.T) {
	t.Chdir(t.TempDir())
	assert.NoError(t, LoadDotEnv())
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable Load reads for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"SCHEMAMEM_CONFIG", "SCHEMAMEM_BACKEND", "SCHEMAMEM_DB", "SCHEMAMEM_REDIS_URL",
		"SCHEMAMEM_REDIS_NAMESPACE", "ANTHROPIC_API_KEY", "SCHEMAMEM_ANTHROPIC_API_KEY",
		"SCHEMAMEM_MODEL", "SCHEMAMEM_MAX_TOKENS", "SCHEMAMEM_LLM_RATE",
		"SCHEMAMEM_DEFAULT_INTENT", "SCHEMAMEM_DEFAULT_LIMIT", "SCHEMAMEM_AUTO_INIT",
		"SCHEMAMEM_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("SCHEMAMEM_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Backend)
	assert.Equal(t, "claude-haiku-4-5", cfg.Model)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, "remember", cfg.DefaultIntent)
	assert.Equal(t, 20, cfg.DefaultLimit)
	assert.True(t, cfg.AutoInit)
	assert.Equal(t, "memory.db", filepath.Base(cfg.DBPath))
}

func TestFileThenEnvPrecedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: sqlite
db_path: /tmp/from-file.db
model: file-model
default_intent: recall
default_limit: 7
auto_init: false
`), 0o644))
	t.Setenv("SCHEMAMEM_CONFIG", path)
	t.Setenv("SCHEMAMEM_MODEL", "env-model")
	t.Setenv("ANTHROPIC_API_KEY", "sk-env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Backend)
	assert.Equal(t, "/tmp/from-file.db", cfg.DBPath)
	assert.Equal(t, "env-model", cfg.Model, "env beats file")
	assert.Equal(t, "recall", cfg.DefaultIntent)
	assert.Equal(t, 7, cfg.DefaultLimit)
	assert.False(t, cfg.AutoInit)
	assert.Equal(t, "sk-env", cfg.AnthropicKey)
	assert.Equal(t, 2048, cfg.MaxTokens, "keys absent from the file keep defaults")
}

func TestInvalidConfig(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: dynamo\n"), 0o644))
	t.Setenv("SCHEMAMEM_CONFIG", path)

	_, err := Load()
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed\n"), 0o644))
	_, err = Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Backend = "redis"
	assert.Error(t, bad.Validate(), "redis needs a URL")

	bad = cfg
	bad.DefaultIntent = "forget"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.MaxTokens = 0
	assert.Error(t, bad.Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("SCHEMAMEM_TEST_INT", "notanint")
	assert.Equal(t, 3, getEnvInt("SCHEMAMEM_TEST_INT", 3))
	t.Setenv("SCHEMAMEM_TEST_BOOL", "yes")
	assert.True(t, getEnvBool("SCHEMAMEM_TEST_BOOL", false))
	t.Setenv("SCHEMAMEM_TEST_BOOL", "0")
	assert.False(t, getEnvBool("SCHEMAMEM_TEST_BOOL", true))
	t.Setenv("SCHEMAMEM_TEST_FLOAT", "2.5")
	assert.Equal(t, 2.5, getEnvFloat("SCHEMAMEM_TEST_FLOAT", 1))
}

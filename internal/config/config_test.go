package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
	assert.Equal(t, "loopback", cfg.Gateway.Bind)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, DefaultIdleMinutes, cfg.Session.IdleMinutes)
	assert.Equal(t, "zh", cfg.Conversation.Language)
	assert.Equal(t, DefaultEvalWorkers, cfg.Evaluator.Workers)
	assert.Nil(t, cfg.LLM.Default)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Gateway.Port)
}

func TestLoadValidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("TEST_PROMPTSMITH_KEY", "sk-from-env")

	yaml := `
gateway:
  port: 9999
  bind: lan
  allowedOrigins: ["http://localhost:3000"]
logging:
  level: debug
  consoleStyle: json
session:
  store: redis
  redis:
    addr: localhost:6379
conversation:
  language: en
  minTraits: 5
llm:
  default:
    apiType: openai
    apiKey: ${TEST_PROMPTSMITH_KEY}
    baseUrl: https://api.example.com/v1
    model: gpt-test
hooks:
  sessionEnd:
    - command: "echo done"
      timeout: 500
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "lan", cfg.Gateway.Bind)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Gateway.AllowedOrigins)
	assert.Equal(t, "json", cfg.Logging.ConsoleStyle)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, "localhost:6379", cfg.Session.Redis.Addr)
	assert.Equal(t, DefaultRedisTTLMinutes, cfg.Session.Redis.TTLMinutes)
	assert.Equal(t, "en", cfg.Conversation.Language)
	assert.Equal(t, 5, cfg.Conversation.MinTraits)
	assert.Equal(t, DefaultMinTurns, cfg.Conversation.MinTurns)

	require.NotNil(t, cfg.LLM.Default)
	assert.Equal(t, "sk-from-env", cfg.LLM.Default.APIKey)
	assert.Equal(t, 0.7, cfg.LLM.Default.Temperature)
	assert.Equal(t, 4000, cfg.LLM.Default.MaxTokens)

	require.Len(t, cfg.Hooks.SessionEnd, 1)
	assert.Equal(t, 500, cfg.Hooks.SessionEnd[0].Timeout)
	assert.Empty(t, Validate(&cfg))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	var ce *ConfigError
	assert.ErrorAs(t, err, &ce)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PROMPTSMITH_PORT", "12345")
	t.Setenv("PROMPTSMITH_LOG_LEVEL", "TRACE")
	t.Setenv("PROMPTSMITH_API_KEY", "sk-env")
	t.Setenv("PROMPTSMITH_BASE_URL", "https://llm.local/v1")
	t.Setenv("PROMPTSMITH_MODEL", "local-model")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Gateway.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	require.NotNil(t, cfg.LLM.Default)
	assert.Equal(t, "openai", cfg.LLM.Default.APIType)
	assert.Equal(t, "sk-env", cfg.LLM.Default.APIKey)
	assert.Equal(t, "local-model", cfg.LLM.Default.Model)
	assert.Equal(t, 4000, cfg.LLM.Default.MaxTokens)
}

func TestExpandEnvVarsLeavesUnset(t *testing.T) {
	assert.Equal(t, "${PROMPTSMITH_SURELY_UNSET}", expandEnvVars("${PROMPTSMITH_SURELY_UNSET}"))
}

func TestParseConfigPath(t *testing.T) {
	tests := []struct {
		input   string
		want    []string
		wantErr bool
	}{
		{"gateway.port", []string{"gateway", "port"}, false},
		{"session.redis.addr", []string{"session", "redis", "addr"}, false},
		{"", nil, true},
		{"a..b", nil, true},
		{".gateway", nil, true},
		{"__proto__.x", nil, true},
		{"x.constructor", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseConfigPath(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValueAtPath(t *testing.T) {
	root := map[string]any{"gateway": map[string]any{"port": 8765}, "flat": "x"}

	val, ok := GetValueAtPath(root, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 8765, val)

	_, ok = GetValueAtPath(root, []string{"flat", "sub"})
	assert.False(t, ok)

	SetValueAtPath(root, []string{"llm", "default", "model"}, "m1")
	val, ok = GetValueAtPath(root, []string{"llm", "default", "model"})
	assert.True(t, ok)
	assert.Equal(t, "m1", val)

	SetValueAtPath(root, []string{"flat", "sub"}, 1)
	val, _ = GetValueAtPath(root, []string{"flat", "sub"})
	assert.Equal(t, 1, val)

	assert.True(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"gateway", "port"}))
	assert.False(t, UnsetValueAtPath(root, []string{"missing", "key"}))
}

func TestLoadRawAndSaveRaw(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw)

	SetValueAtPath(raw, []string{"gateway", "port"}, 9999)
	require.NoError(t, SaveRaw(path, raw))

	loaded, err := LoadRaw(path)
	require.NoError(t, err)
	val, ok := GetValueAtPath(loaded, []string{"gateway", "port"})
	assert.True(t, ok)
	assert.Equal(t, 9999, val)
}

func TestResolvePathsAndEnsureDirs(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("PROMPTSMITH_HOME", tmp)

	paths, err := ResolvePaths()
	require.NoError(t, err)
	assert.Equal(t, tmp, paths.Base)
	assert.Equal(t, filepath.Join(tmp, "config.yaml"), paths.Config)
	assert.Equal(t, filepath.Join(tmp, "data", "sessions.db"), paths.Sessions)

	require.NoError(t, paths.EnsureDirs())
	require.NoError(t, paths.EnsureDirs())
	for _, d := range []string{paths.Data, paths.Logs} {
		info, err := os.Stat(d)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	var paths []string
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_SingleField(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"port", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"custom bind host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"tls paths", func(c *Config) { c.Gateway.TLS.Enabled = true }, "gateway.tls"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
		{"store", func(c *Config) { c.Session.Store = "postgres" }, "session.store"},
		{"redis addr", func(c *Config) { c.Session.Store = "redis" }, "session.redis.addr"},
		{"language", func(c *Config) { c.Conversation.Language = "fr" }, "conversation.language"},
		{"min turns", func(c *Config) { c.Conversation.MinTurns = -1 }, "conversation.minTurns"},
		{"workers", func(c *Config) { c.Evaluator.Workers = -2 }, "evaluator.workers"},
		{"hook command", func(c *Config) { c.Hooks.GatewayStart = []HookEntry{{Command: " "}} }, "hooks.gatewayStart[0].command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			issues := Validate(&cfg)
			require.Len(t, issues, 1, issuePaths(issues))
			assert.Equal(t, tt.path, issues[0].Path)
		})
	}
}

func TestValidate_DefaultProvider(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Default = &DefaultProvider{APIType: "openai", Temperature: 3}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "llm.default.apiKey")
	assert.Contains(t, paths, "llm.default.model")
	assert.Contains(t, paths, "llm.default.baseUrl")
	assert.Contains(t, paths, "llm.default.temperature")

	cfg.LLM.Default = &DefaultProvider{APIType: "gemini", APIKey: "k", Model: "gemini-pro", Temperature: 0.7}
	assert.Empty(t, Validate(&cfg))

	cfg.LLM.Default.APIType = "anthropic"
	assert.Equal(t, []string{"llm.default.apiType"}, issuePaths(Validate(&cfg)))
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", issue.String())
}

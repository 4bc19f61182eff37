package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

var (
	validBinds         = []string{"loopback", "lan", "custom"}
	validLogLevels     = []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	validConsoleStyles = []string{"pretty", "json"}
	validStores        = []string{"memory", "sqlite", "redis"}
	validLanguages     = []string{"zh", "en"}
	validAPITypes      = []string{"openai", "gemini"}
)

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue
	add := func(path, format string, args ...any) {
		issues = append(issues, ValidationIssue{Path: path, Message: fmt.Sprintf(format, args...)})
	}
	oneOf := func(path, value string, allowed []string) {
		if value != "" && !slices.Contains(allowed, value) {
			add(path, "must be one of %v, got %q", allowed, value)
		}
	}

	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		add("gateway.port", "port must be 0-65535, got %d", cfg.Gateway.Port)
	}
	oneOf("gateway.bind", cfg.Gateway.Bind, validBinds)
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		add("gateway.customBindHost", "required when bind is custom")
	}
	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		add("gateway.tls", "certPath and keyPath are required when TLS is enabled")
	}
	if cfg.Gateway.MaxMessageBytes < 0 {
		add("gateway.maxMessageBytes", "must not be negative")
	}

	oneOf("logging.level", cfg.Logging.Level, validLogLevels)
	oneOf("logging.consoleStyle", cfg.Logging.ConsoleStyle, validConsoleStyles)

	if cfg.Session.IdleMinutes < 0 {
		add("session.idleMinutes", "must not be negative")
	}
	oneOf("session.store", cfg.Session.Store, validStores)
	if cfg.Session.Store == "redis" && cfg.Session.Redis.Addr == "" {
		add("session.redis.addr", "required when store is redis")
	}

	oneOf("conversation.language", cfg.Conversation.Language, validLanguages)
	if cfg.Conversation.MinTraits < 0 {
		add("conversation.minTraits", "must not be negative")
	}
	if cfg.Conversation.MinTurns < 0 {
		add("conversation.minTurns", "must not be negative")
	}
	if cfg.Conversation.EvaluateEvery < 0 {
		add("conversation.evaluateEvery", "must not be negative")
	}

	if cfg.Evaluator.Workers < 0 {
		add("evaluator.workers", "must not be negative")
	}
	if cfg.Evaluator.QueueSize < 0 {
		add("evaluator.queueSize", "must not be negative")
	}

	if d := cfg.LLM.Default; d != nil {
		oneOf("llm.default.apiType", d.APIType, validAPITypes)
		if d.APIType == "" {
			add("llm.default.apiType", "required")
		}
		if strings.TrimSpace(d.APIKey) == "" {
			add("llm.default.apiKey", "required")
		}
		if strings.TrimSpace(d.Model) == "" {
			add("llm.default.model", "required")
		}
		if d.APIType == "openai" && strings.TrimSpace(d.BaseURL) == "" {
			add("llm.default.baseUrl", "required for openai-compatible providers")
		}
		if d.Temperature < 0 || d.Temperature > 2 {
			add("llm.default.temperature", "must be 0-2, got %v", d.Temperature)
		}
	}

	for event, entries := range map[string][]HookEntry{
		"sessionStart":       cfg.Hooks.SessionStart,
		"sessionEnd":         cfg.Hooks.SessionEnd,
		"promptGenerated":    cfg.Hooks.PromptGenerated,
		"evaluationComplete": cfg.Hooks.EvaluationComplete,
		"gatewayStart":       cfg.Hooks.GatewayStart,
		"gatewayStop":        cfg.Hooks.GatewayStop,
	} {
		for i, h := range entries {
			if strings.TrimSpace(h.Command) == "" {
				add(fmt.Sprintf("hooks.%s[%d].command", event, i), "command is required")
			}
		}
	}

	return issues
}

package config

import "fmt"

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultPort            = 8765
	DefaultIdleMinutes     = 60
	DefaultMinTraits       = 8
	DefaultMinTurns        = 6
	DefaultEvaluateEvery   = 3
	DefaultEvalWorkers     = 4
	DefaultEvalQueue       = 64
	DefaultEvalTimeout     = 90
	DefaultRequestTimeout  = 120
	DefaultMaxRetries      = 2
	DefaultMaxMessageBytes = 1 << 20
	DefaultRedisTTLMinutes = 24 * 60
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills zero-value fields.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = DefaultPort
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.MaxMessageBytes == 0 {
		cfg.Gateway.MaxMessageBytes = DefaultMaxMessageBytes
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
	if cfg.Session.IdleMinutes == 0 {
		cfg.Session.IdleMinutes = DefaultIdleMinutes
	}
	if cfg.Session.Store == "" {
		cfg.Session.Store = "memory"
	}
	if cfg.Session.Redis.TTLMinutes == 0 {
		cfg.Session.Redis.TTLMinutes = DefaultRedisTTLMinutes
	}
	if cfg.Session.Redis.KeyPrefix == "" {
		cfg.Session.Redis.KeyPrefix = "promptsmith:session:"
	}
	if cfg.Conversation.Language == "" {
		cfg.Conversation.Language = "zh"
	}
	if cfg.Conversation.MinTraits == 0 {
		cfg.Conversation.MinTraits = DefaultMinTraits
	}
	if cfg.Conversation.MinTurns == 0 {
		cfg.Conversation.MinTurns = DefaultMinTurns
	}
	if cfg.Conversation.EvaluateEvery == 0 {
		cfg.Conversation.EvaluateEvery = DefaultEvaluateEvery
	}
	if cfg.Evaluator.Workers == 0 {
		cfg.Evaluator.Workers = DefaultEvalWorkers
	}
	if cfg.Evaluator.QueueSize == 0 {
		cfg.Evaluator.QueueSize = DefaultEvalQueue
	}
	if cfg.Evaluator.TimeoutSeconds == 0 {
		cfg.Evaluator.TimeoutSeconds = DefaultEvalTimeout
	}
	if cfg.LLM.RequestTimeoutSeconds == 0 {
		cfg.LLM.RequestTimeoutSeconds = DefaultRequestTimeout
	}
	if cfg.LLM.MaxRetries == 0 {
		cfg.LLM.MaxRetries = DefaultMaxRetries
	}
	if d := cfg.LLM.Default; d != nil {
		if d.Temperature == 0 {
			d.Temperature = 0.7
		}
		if d.MaxTokens == 0 {
			d.MaxTokens = 4000
		}
	}
}

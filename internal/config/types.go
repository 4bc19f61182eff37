package config

// Config is the root configuration for promptsmith.
type Config struct {
	Gateway      GatewayConfig      `yaml:"gateway,omitempty"`
	Logging      LoggingConfig      `yaml:"logging,omitempty"`
	Session      SessionConfig      `yaml:"session,omitempty"`
	Conversation ConversationConfig `yaml:"conversation,omitempty"`
	Evaluator    EvaluatorConfig    `yaml:"evaluator,omitempty"`
	LLM          LLMConfig          `yaml:"llm,omitempty"`
	Hooks        HooksConfig        `yaml:"hooks,omitempty"`
	Export       ExportConfig       `yaml:"export,omitempty"`
}

// GatewayConfig controls the HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int        `yaml:"port,omitempty"`
	Bind           string     `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string     `yaml:"customBindHost,omitempty"`
	TLS            GatewayTLS `yaml:"tls,omitempty"`
	AllowedOrigins []string   `yaml:"allowedOrigins,omitempty"`
	// MaxMessageBytes caps a single inbound WebSocket frame.
	MaxMessageBytes int64 `yaml:"maxMessageBytes,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}

// SessionConfig defines session retention and archiving.
type SessionConfig struct {
	IdleMinutes int         `yaml:"idleMinutes,omitempty"`
	Store       string      `yaml:"store,omitempty"` // "memory" | "sqlite" | "redis"
	SQLitePath  string      `yaml:"sqlitePath,omitempty"`
	Redis       RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig locates the redis archive.
type RedisConfig struct {
	Addr       string `yaml:"addr,omitempty"`
	Password   string `yaml:"password,omitempty"`
	DB         int    `yaml:"db,omitempty"`
	TTLMinutes int    `yaml:"ttlMinutes,omitempty"`
	KeyPrefix  string `yaml:"keyPrefix,omitempty"`
}

// ConversationConfig tunes the interview loop.
type ConversationConfig struct {
	Language      string `yaml:"language,omitempty"` // "zh" | "en"
	MinTraits     int    `yaml:"minTraits,omitempty"`
	MinTurns      int    `yaml:"minTurns,omitempty"`
	EvaluateEvery int    `yaml:"evaluateEvery,omitempty"`
}

// EvaluatorConfig sizes the background evaluation worker.
type EvaluatorConfig struct {
	Workers        int `yaml:"workers,omitempty"`
	QueueSize      int `yaml:"queueSize,omitempty"`
	TimeoutSeconds int `yaml:"timeoutSeconds,omitempty"`
}

// LLMConfig holds upstream call settings and an optional process-wide
// default provider configuration.
type LLMConfig struct {
	RequestTimeoutSeconds int              `yaml:"requestTimeoutSeconds,omitempty"`
	MaxRetries            int              `yaml:"maxRetries,omitempty"`
	Default               *DefaultProvider `yaml:"default,omitempty"`
}

// DefaultProvider is the provider used when a connection never sends
// its own api_config.
type DefaultProvider struct {
	APIType        string  `yaml:"apiType"` // "openai" | "gemini"
	APIKey         string  `yaml:"apiKey"`
	BaseURL        string  `yaml:"baseUrl,omitempty"`
	Model          string  `yaml:"model"`
	EvaluatorModel string  `yaml:"evaluatorModel,omitempty"`
	Temperature    float64 `yaml:"temperature,omitempty"`
	MaxTokens      int     `yaml:"maxTokens,omitempty"`
	NSFWMode       bool    `yaml:"nsfwMode,omitempty"`
}

// HooksConfig maps lifecycle events to shell commands.
type HooksConfig struct {
	SessionStart       []HookEntry `yaml:"sessionStart,omitempty"`
	SessionEnd         []HookEntry `yaml:"sessionEnd,omitempty"`
	PromptGenerated    []HookEntry `yaml:"promptGenerated,omitempty"`
	EvaluationComplete []HookEntry `yaml:"evaluationComplete,omitempty"`
	GatewayStart       []HookEntry `yaml:"gatewayStart,omitempty"`
	GatewayStop        []HookEntry `yaml:"gatewayStop,omitempty"`
}

// HookEntry defines a single hook action.
type HookEntry struct {
	Command string `yaml:"command"`
	Timeout int    `yaml:"timeout,omitempty"` // milliseconds
}

// ExportConfig enables the built-in prompt export plugin.
type ExportConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Dir     string `yaml:"dir,omitempty"` // default <data>/prompts
}

package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets credentials be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Session.Redis.Password = expandEnvVars(cfg.Session.Redis.Password)
	if cfg.LLM.Default != nil {
		cfg.LLM.Default.APIKey = expandEnvVars(cfg.LLM.Default.APIKey)
	}
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. A missing file yields defaults.
func Load(path string) (Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return Defaults(), err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Defaults(), &ConfigError{Message: "failed to parse config: " + err.Error()}
		}
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file, creating the
// directory if needed.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnvOverrides reads PROMPTSMITH_* environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PROMPTSMITH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("PROMPTSMITH_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("PROMPTSMITH_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PROMPTSMITH_SESSION_STORE"); v != "" {
		cfg.Session.Store = strings.ToLower(v)
	}
	if v := os.Getenv("PROMPTSMITH_REDIS_ADDR"); v != "" {
		cfg.Session.Redis.Addr = v
	}
	if v := os.Getenv("PROMPTSMITH_LANGUAGE"); v != "" {
		cfg.Conversation.Language = v
	}

	// A key in the environment is enough to configure a default provider.
	if key := os.Getenv("PROMPTSMITH_API_KEY"); key != "" {
		if cfg.LLM.Default == nil {
			cfg.LLM.Default = &DefaultProvider{APIType: "openai"}
		}
		cfg.LLM.Default.APIKey = key
	}
	if d := cfg.LLM.Default; d != nil {
		if v := os.Getenv("PROMPTSMITH_API_TYPE"); v != "" {
			d.APIType = v
		}
		if v := os.Getenv("PROMPTSMITH_BASE_URL"); v != "" {
			d.BaseURL = v
		}
		if v := os.Getenv("PROMPTSMITH_MODEL"); v != "" {
			d.Model = v
		}
	}
}

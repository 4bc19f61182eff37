package llm

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/soyeahso/promptsmith/internal/config"
)

// Supported api_type values.
const (
	APITypeOpenAI = "openai"
	APITypeGemini = "gemini"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4000

	chatCompletionsPath = "/chat/completions"
)

// SupportedAPITypes lists the providers a Factory can build.
var SupportedAPITypes = []string{APITypeGemini, APITypeOpenAI}

var (
	// ErrNotConfigured is returned when no usable APIConfig has been bound.
	ErrNotConfigured = errors.New("api not configured")
	// ErrInvalidConfig is wrapped by every *InvalidConfigError.
	ErrInvalidConfig = errors.New("invalid api config")
)

// InvalidConfigError lists every problem found in an APIConfig.
type InvalidConfigError struct {
	Issues []config.ValidationIssue
}

func (e *InvalidConfigError) Error() string {
	parts := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		parts[i] = issue.String()
	}
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(parts, "; "))
}

func (e *InvalidConfigError) Unwrap() error { return ErrInvalidConfig }

// APIConfig selects and tunes an upstream provider. It is a value type:
// each connection owns its copy.
type APIConfig struct {
	APIType        string  `json:"api_type"`
	APIKey         string  `json:"api_key"`
	BaseURL        string  `json:"base_url"`
	Model          string  `json:"model"`
	EvaluatorModel string  `json:"evaluator_model,omitempty"`
	Temperature    float64 `json:"temperature"`
	MaxTokens      int     `json:"max_tokens"`
	NSFWMode       bool    `json:"nsfw_mode"`
}

// EmptyConfig is the starting point for a connection that has sent nothing.
func EmptyConfig() APIConfig {
	return APIConfig{
		APIType:     APITypeOpenAI,
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	}
}

// FromDefaultProvider converts the config-file form.
func FromDefaultProvider(d *config.DefaultProvider) APIConfig {
	cfg := EmptyConfig()
	if d == nil {
		return cfg
	}
	cfg.APIType = d.APIType
	cfg.APIKey = d.APIKey
	cfg.BaseURL = d.BaseURL
	cfg.Model = d.Model
	cfg.EvaluatorModel = d.EvaluatorModel
	cfg.NSFWMode = d.NSFWMode
	if d.Temperature != 0 {
		cfg.Temperature = d.Temperature
	}
	if d.MaxTokens != 0 {
		cfg.MaxTokens = d.MaxTokens
	}
	return cfg.Sanitized()
}

// APIConfigPatch is the wire form of an api_config message. Absent fields
// leave the base value untouched.
type APIConfigPatch struct {
	APIType        *string  `json:"api_type,omitempty"`
	APIKey         *string  `json:"api_key,omitempty"`
	BaseURL        *string  `json:"base_url,omitempty"`
	Model          *string  `json:"model,omitempty"`
	EvaluatorModel *string  `json:"evaluator_model,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	MaxTokens      *int     `json:"max_tokens,omitempty"`
	NSFWMode       *bool    `json:"nsfw_mode,omitempty"`
}

// Apply overlays p on base and trims every string field. This is the
// single place inbound configuration is trimmed.
func (p APIConfigPatch) Apply(base APIConfig) APIConfig {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	out := base
	set(&out.APIType, p.APIType)
	set(&out.APIKey, p.APIKey)
	set(&out.BaseURL, p.BaseURL)
	set(&out.Model, p.Model)
	set(&out.EvaluatorModel, p.EvaluatorModel)
	if p.Temperature != nil {
		out.Temperature = *p.Temperature
	}
	if p.MaxTokens != nil {
		out.MaxTokens = *p.MaxTokens
	}
	if p.NSFWMode != nil {
		out.NSFWMode = *p.NSFWMode
	}
	return out.Sanitized()
}

// Sanitized returns a copy with surrounding whitespace removed from every
// string field, the api type lowercased, and trailing slashes dropped from
// the base URL. Trimming an already trimmed config is a no-op.
func (c APIConfig) Sanitized() APIConfig {
	c.APIType = strings.ToLower(strings.TrimSpace(c.APIType))
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Model = strings.TrimSpace(c.Model)
	c.EvaluatorModel = strings.TrimSpace(c.EvaluatorModel)
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	return c
}

// Validate reports missing required fields and control characters.
// The returned error wraps ErrInvalidConfig.
func (c APIConfig) Validate() error {
	var issues []config.ValidationIssue
	add := func(path, msg string) {
		issues = append(issues, config.ValidationIssue{Path: path, Message: msg})
	}

	if !slices.Contains(SupportedAPITypes, c.APIType) {
		add("api_type", fmt.Sprintf("unsupported api type %q", c.APIType))
	}
	if c.APIKey == "" {
		add("api_key", "required")
	}
	if c.Model == "" {
		add("model", "required")
	}
	if c.APIType == APITypeOpenAI && c.BaseURL == "" {
		add("base_url", "required for openai-compatible providers")
	}
	for field, v := range map[string]string{"api_key": c.APIKey, "base_url": c.BaseURL, "model": c.Model} {
		if hasControlChars(v) {
			add(field, "contains control characters")
		}
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		add("temperature", fmt.Sprintf("must be 0-2, got %v", c.Temperature))
	}

	if len(issues) == 0 {
		return nil
	}
	slices.SortFunc(issues, func(a, b config.ValidationIssue) int { return strings.Compare(a.Path, b.Path) })
	return &InvalidConfigError{Issues: issues}
}

func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// ChatCompletionsURL is the openai-compatible endpoint for BaseURL.
func (c APIConfig) ChatCompletionsURL() string {
	base := strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if strings.HasSuffix(base, chatCompletionsPath) {
		return base
	}
	return base + chatCompletionsPath
}

// EvaluationModel is the model used for scoring passes.
func (c APIConfig) EvaluationModel() string {
	if c.EvaluatorModel != "" {
		return c.EvaluatorModel
	}
	return c.Model
}

// Masked returns a copy safe to log or return from debug endpoints.
func (c APIConfig) Masked() APIConfig {
	c.APIKey = MaskKey(c.APIKey)
	return c
}

// MaskKey keeps the first and last four characters of a key (two for
// short keys).
func MaskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) <= 4:
		return "..."
	case len(key) <= 8:
		return key[:2] + "..." + key[len(key)-2:]
	default:
		return key[:4] + "..." + key[len(key)-4:]
	}
}

// NewRequest builds a request for the dialogue or writer model, applying
// the mature-content sampling adjustments when NSFWMode is on.
func (c APIConfig) NewRequest(system string, messages []Message) CompletionRequest {
	temp := c.Temperature
	req := CompletionRequest{
		Model:       c.Model,
		System:      system,
		Messages:    messages,
		MaxTokens:   c.MaxTokens,
		Temperature: &temp,
	}
	if c.NSFWMode {
		temp = min(c.Temperature+0.2, 1.0)
		topP, freq, pres := 0.95, -0.5, -0.3
		req.TopP = &topP
		req.FrequencyPenalty = &freq
		req.PresencePenalty = &pres
		req.Relaxed = true
	}
	return req
}

// NewEvaluationRequest builds a request for the evaluator model.
func (c APIConfig) NewEvaluationRequest(system, profile string) CompletionRequest {
	req := c.NewRequest(system, []Message{{Role: RoleUser, Content: profile}})
	req.Model = c.EvaluationModel()
	return req
}

// DefaultConfig is the process-wide fallback APIConfig, set through the
// REST surface or the config file. It hands out copies.
type DefaultConfig struct {
	mu  sync.RWMutex
	cfg APIConfig
	set bool
}

// NewDefaultConfig returns a holder, optionally pre-populated.
func NewDefaultConfig(initial *APIConfig) *DefaultConfig {
	d := &DefaultConfig{}
	if initial != nil {
		d.cfg, d.set = *initial, true
	}
	return d
}

// Get returns the current default and whether one is set.
func (d *DefaultConfig) Get() (APIConfig, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg, d.set
}

// Set replaces the default.
func (d *DefaultConfig) Set(cfg APIConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg, d.set = cfg, true
}

// Configured reports whether a default is available.
func (d *DefaultConfig) Configured() bool {
	_, ok := d.Get()
	return ok
}

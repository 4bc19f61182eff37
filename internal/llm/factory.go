package llm

import (
	"fmt"
	"net/http"
	"time"

	"github.com/soyeahso/promptsmith/internal/logging"
)

// FactoryOptions tunes clients built by a Factory.
type FactoryOptions struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	HTTPClient *http.Client
}

// Factory builds a Client from an APIConfig.
type Factory func(cfg APIConfig) (Client, error)

// NewFactory returns a Factory that validates the config and wraps the
// provider client in a RetryClient.
func NewFactory(opts FactoryOptions, log *logging.Logger) Factory {
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	return func(cfg APIConfig) (Client, error) {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		httpClient := opts.HTTPClient
		if httpClient == nil {
			httpClient = &http.Client{Timeout: opts.Timeout}
		}

		var c Client
		switch cfg.APIType {
		case APITypeOpenAI:
			c = NewOpenAIClient(cfg, httpClient)
		case APITypeGemini:
			c = NewGeminiClient(cfg, httpClient)
		default:
			return nil, fmt.Errorf("%w: unsupported api type %q", ErrInvalidConfig, cfg.APIType)
		}
		return NewRetryClient(c, opts.MaxRetries, opts.Backoff, log), nil
	}
}

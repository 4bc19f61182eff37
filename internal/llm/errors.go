package llm

import "fmt"

// ProviderError is returned when an upstream provider fails.
type ProviderError struct {
	Provider string
	Message  string
	Code     int // HTTP status code, 0 for transport failures
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// Unwrap lets callers test provider failures with errors.Is(err, ErrUpstream).
func (e *ProviderError) Unwrap() error { return ErrUpstream }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validOpenAIConfig(baseURL string) APIConfig {
	cfg := EmptyConfig()
	cfg.APIKey = "sk-test-1234567890"
	cfg.BaseURL = baseURL
	cfg.Model = "test-model"
	return cfg
}

func collect(t *testing.T, ch <-chan StreamEvent) (string, StreamEvent) {
	t.Helper()
	var sb strings.Builder
	var last StreamEvent
	for ev := range ch {
		if ev.Type == EventDelta {
			sb.WriteString(ev.Content)
		}
		last = ev
	}
	return sb.String(), last
}

func TestPatchApplyTrimsOnce(t *testing.T) {
	patch := APIConfigPatch{
		APIType: strPtr(" OpenAI\t"),
		APIKey:  strPtr("  sk-abc\n"),
		BaseURL: strPtr(" https://api.example.com/v1/ "),
		Model:   strPtr("\tgpt-x "),
	}
	cfg := patch.Apply(EmptyConfig())

	assert.Equal(t, "openai", cfg.APIType)
	assert.Equal(t, "sk-abc", cfg.APIKey)
	assert.Equal(t, "https://api.example.com/v1", cfg.BaseURL)
	assert.Equal(t, "gpt-x", cfg.Model)
	assert.Equal(t, DefaultTemperature, cfg.Temperature)
	assert.Equal(t, DefaultMaxTokens, cfg.MaxTokens)
	assert.Equal(t, cfg, cfg.Sanitized())
	require.NoError(t, cfg.Validate())
}

func TestPatchApplyKeepsAbsentFields(t *testing.T) {
	base := validOpenAIConfig("https://a.example")
	temp := 0.3
	cfg := APIConfigPatch{Temperature: &temp}.Apply(base)
	assert.Equal(t, "sk-test-1234567890", cfg.APIKey)
	assert.Equal(t, 0.3, cfg.Temperature)
}

func TestValidate(t *testing.T) {
	err := EmptyConfig().Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	var invalid *InvalidConfigError
	require.ErrorAs(t, err, &invalid)
	var fields []string
	for _, i := range invalid.Issues {
		fields = append(fields, i.Path)
	}
	assert.Equal(t, []string{"api_key", "base_url", "model"}, fields)

	cfg := validOpenAIConfig("https://api.example.com/v1")
	cfg.APIKey = "sk-\x01bad"
	require.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	for _, key := range []string{"sk-\x7fbad", "sk-\u0085bad", "sk-\u009bbad"} {
		cfg := validOpenAIConfig("https://api.example.com/v1")
		cfg.APIKey = key
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig, "%q", key)
	}
	cfg = validOpenAIConfig("https://api.example.com/\x7fv1")
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)

	gem := APIConfig{APIType: APITypeGemini, APIKey: "k", Model: "gemini-2.5-flash", Temperature: 0.7}
	assert.NoError(t, gem.Validate())

	gem.APIType = "claude"
	assert.ErrorIs(t, gem.Validate(), ErrInvalidConfig)
}

func TestChatCompletionsURL(t *testing.T) {
	tests := map[string]string{
		"https://api.example.com/v1":                   "https://api.example.com/v1/chat/completions",
		"https://api.example.com/v1/":                  "https://api.example.com/v1/chat/completions",
		"https://api.example.com/v1/chat/completions":  "https://api.example.com/v1/chat/completions",
		"https://api.example.com/v1/chat/completions/": "https://api.example.com/v1/chat/completions",
		"http://localhost:8080":                        "http://localhost:8080/chat/completions",
	}
	for in, want := range tests {
		assert.Equal(t, want, APIConfig{BaseURL: in}.ChatCompletionsURL(), in)
	}
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "", MaskKey(""))
	assert.Equal(t, "...", MaskKey("abc"))
	assert.Equal(t, "ab...gh", MaskKey("abcdefgh"))
	assert.Equal(t, "sk-t...7890", MaskKey("sk-test-1234567890"))

	masked := validOpenAIConfig("x").Masked()
	assert.Equal(t, "sk-t...7890", masked.APIKey)
}

func TestNewRequestContentMode(t *testing.T) {
	cfg := validOpenAIConfig("x")
	cfg.Temperature = 0.9

	req := cfg.NewRequest("sys", []Message{{Role: RoleUser, Content: "hi"}})
	require.NotNil(t, req.Temperature)
	assert.Equal(t, 0.9, *req.Temperature)
	assert.Nil(t, req.TopP)
	assert.False(t, req.Relaxed)

	cfg.NSFWMode = true
	req = cfg.NewRequest("sys", nil)
	assert.Equal(t, 1.0, *req.Temperature)
	assert.Equal(t, 0.95, *req.TopP)
	assert.Equal(t, -0.5, *req.FrequencyPenalty)
	assert.Equal(t, -0.3, *req.PresencePenalty)
	assert.True(t, req.Relaxed)

	cfg.EvaluatorModel = "judge"
	assert.Equal(t, "judge", cfg.NewEvaluationRequest("s", "p").Model)
}

func TestDefaultConfigConcurrentAccess(t *testing.T) {
	d := NewDefaultConfig(nil)
	assert.False(t, d.Configured())

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			cfg := validOpenAIConfig("x")
			cfg.Model = fmt.Sprintf("m-%d", i)
			d.Set(cfg)
		}()
		go func() {
			defer wg.Done()
			if cfg, ok := d.Get(); ok {
				assert.True(t, strings.HasPrefix(cfg.Model, "m-"))
			}
		}()
	}
	wg.Wait()
	assert.True(t, d.Configured())
}

func TestOpenAIStream(t *testing.T) {
	var gotBody openAIRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-1234567890", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"Hel", "lo -", "--trait: x"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewOpenAIClient(validOpenAIConfig(srv.URL+"/v1/"), srv.Client())
	ch, err := c.Stream(context.Background(), CompletionRequest{
		System:   "be nice",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	text, last := collect(t, ch)
	assert.Equal(t, "Hello ---trait: x", text)
	assert.Equal(t, EventDone, last.Type)
	assert.Equal(t, text, last.Response.Content)

	assert.True(t, gotBody.Stream)
	assert.Equal(t, "test-model", gotBody.Model)
	require.Len(t, gotBody.Messages, 2)
	assert.Equal(t, RoleSystem, gotBody.Messages[0].Role)
}

func TestOpenAIComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"model":"m","choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":1}}`)
	}))
	defer srv.Close()

	resp, err := NewOpenAIClient(validOpenAIConfig(srv.URL), nil).Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 3, resp.Usage.InputTokens)
}

func TestOpenAIStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewOpenAIClient(validOpenAIConfig(srv.URL), nil).Stream(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusUnauthorized, pe.Code)
	assert.Equal(t, "openai", pe.Provider)
}

func TestGeminiStreamRequestShape(t *testing.T) {
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-test:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "gk", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		for _, piece := range []string{"你好", "，世界"} {
			fmt.Fprintf(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":%q}]}}]}\r\n\r\n", piece)
		}
	}))
	defer srv.Close()

	cfg := APIConfig{APIType: APITypeGemini, APIKey: "gk", Model: "gemini-test", BaseURL: srv.URL}
	ch, err := NewGeminiClient(cfg, nil).Stream(context.Background(), CompletionRequest{
		System:   "sys",
		Messages: []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}},
		Relaxed:  true,
	})
	require.NoError(t, err)

	text, last := collect(t, ch)
	assert.Equal(t, "你好，世界", text)
	assert.Equal(t, EventDone, last.Type)

	require.NotNil(t, gotBody.SystemInstruction)
	assert.Equal(t, "sys", gotBody.SystemInstruction.Parts[0].Text)
	require.Len(t, gotBody.Contents, 2)
	assert.Equal(t, "model", gotBody.Contents[1].Role)
	assert.Len(t, gotBody.SafetySettings, len(geminiHarmCategories))
}

func TestGeminiCompleteBlocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"candidates":[],"promptFeedback":{"blockReason":"SAFETY"}}`)
	}))
	defer srv.Close()

	cfg := APIConfig{APIType: APITypeGemini, APIKey: "gk", Model: "g", BaseURL: srv.URL}
	_, err := NewGeminiClient(cfg, nil).Complete(context.Background(), CompletionRequest{})
	require.ErrorIs(t, err, ErrUpstream)
	assert.Contains(t, err.Error(), "SAFETY")
}

func TestRetryClient(t *testing.T) {
	var calls atomic.Int32
	mock := &MockClient{
		CompleteFunc: func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
			if calls.Add(1) < 3 {
				return nil, &ProviderError{Provider: "mock", Code: 503, Message: "busy"}
			}
			return &CompletionResponse{Content: "finally"}, nil
		},
	}
	rc := NewRetryClient(mock, 2, time.Millisecond, logging.Nop())

	resp, err := rc.Complete(context.Background(), CompletionRequest{})
	require.NoError(t, err)
	assert.Equal(t, "finally", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetryClientGivesUpOnPermanentError(t *testing.T) {
	var calls atomic.Int32
	mock := &MockClient{
		StreamFunc: func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
			calls.Add(1)
			return nil, &ProviderError{Provider: "mock", Code: 400, Message: "bad request"}
		},
	}
	_, err := NewRetryClient(mock, 5, time.Millisecond, logging.Nop()).Stream(context.Background(), CompletionRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, false},
		{&ProviderError{Code: 429}, true},
		{&ProviderError{Code: 502}, true},
		{&ProviderError{Code: 401}, false},
		{errors.New("connection timeout"), true},
		{errors.New("Model Overloaded"), true},
		{errors.New("bad input"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryable(tt.err), fmt.Sprint(tt.err))
	}
}

func TestFactory(t *testing.T) {
	factory := NewFactory(FactoryOptions{}, logging.Nop())

	_, err := factory(EmptyConfig())
	assert.ErrorIs(t, err, ErrInvalidConfig)

	c, err := factory(validOpenAIConfig("https://api.example.com/v1"))
	require.NoError(t, err)
	assert.Equal(t, APITypeOpenAI, c.Name())

	c, err = factory(APIConfig{APIType: APITypeGemini, APIKey: "k", Model: "g"})
	require.NoError(t, err)
	assert.Equal(t, APITypeGemini, c.Name())
}

func TestStreamChunks(t *testing.T) {
	text, last := collect(t, StreamChunks("a", "b"))
	assert.Equal(t, "ab", text)
	assert.Equal(t, "ab", last.Response.Content)
}

func TestProviderErrorFormat(t *testing.T) {
	assert.Equal(t, "openai: 429 slow down", (&ProviderError{Provider: "openai", Code: 429, Message: "slow down"}).Error())
	assert.Equal(t, "gemini: boom", (&ProviderError{Provider: "gemini", Message: "boom"}).Error())
}

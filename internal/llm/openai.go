package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soyeahso/promptsmith/internal/version"
)

// OpenAIClient talks to any openai-compatible chat completions endpoint.
type OpenAIClient struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

// NewOpenAIClient creates a client for cfg. The endpoint is derived from
// cfg.BaseURL.
func NewOpenAIClient(cfg APIConfig, httpClient *http.Client) *OpenAIClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	return &OpenAIClient{
		apiKey:   cfg.APIKey,
		endpoint: cfg.ChatCompletionsURL(),
		model:    cfg.Model,
		client:   httpClient,
	}
}

// Name returns the provider name.
func (o *OpenAIClient) Name() string { return APITypeOpenAI }

// Complete sends a non-streaming chat completion.
func (o *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := o.do(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: o.Name(), Message: "failed to parse response: " + err.Error()}
	}
	if len(result.Choices) == 0 {
		return nil, &ProviderError{Provider: o.Name(), Message: "response has no choices"}
	}

	return &CompletionResponse{
		Content:    result.Choices[0].Message.Content,
		StopReason: result.Choices[0].FinishReason,
		Model:      result.Model,
		Usage: Usage{
			InputTokens:  result.Usage.PromptTokens,
			OutputTokens: result.Usage.CompletionTokens,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streaming chat completion. Connection and status errors
// are returned directly; mid-stream failures arrive as an "error" event.
func (o *OpenAIClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := o.do(ctx, req, true)
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go o.readStream(ctx, resp.Body, events)
	return events, nil
}

func (o *OpenAIClient) do(ctx context.Context, req CompletionRequest, stream bool) (*http.Response, error) {
	payload, err := json.Marshal(o.buildRequestBody(req, stream))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json; charset=utf-8")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("User-Agent", version.UserAgent())
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: o.Name(), Message: "request failed: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &ProviderError{Provider: o.Name(), Code: resp.StatusCode, Message: truncate(strings.TrimSpace(string(body)), 512)}
	}
	return resp, nil
}

func (o *OpenAIClient) readStream(ctx context.Context, body io.ReadCloser, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	var full strings.Builder
	var finish string
	scanner := newSSEScanner(body)
	for scanner.Next() {
		data := scanner.Data()
		if data == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Error != nil {
			sendEvent(ctx, events, StreamEvent{Type: EventError, Error: chunk.Error.Message})
			return
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if fr := chunk.Choices[0].FinishReason; fr != "" {
			finish = fr
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		full.WriteString(text)
		if !sendEvent(ctx, events, StreamEvent{Type: EventDelta, Content: text}) {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		sendEvent(ctx, events, StreamEvent{Type: EventError, Error: "stream read failed: " + err.Error()})
		return
	}

	sendEvent(ctx, events, StreamEvent{
		Type: EventDone,
		Response: &CompletionResponse{
			Content:    full.String(),
			StopReason: finish,
			Model:      o.model,
		},
	})
}

func (o *OpenAIClient) buildRequestBody(req CompletionRequest, stream bool) openAIRequest {
	model := req.Model
	if model == "" {
		model = o.model
	}

	messages := make([]Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: req.System})
	}
	messages = append(messages, req.Messages...)

	return openAIRequest{
		Model:            model,
		Messages:         messages,
		MaxTokens:        req.MaxTokens,
		Temperature:      req.Temperature,
		TopP:             req.TopP,
		FrequencyPenalty: req.FrequencyPenalty,
		PresencePenalty:  req.PresencePenalty,
		Stream:           stream,
	}
}

type openAIRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	MaxTokens        int       `json:"max_tokens,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
	Stream           bool      `json:"stream"`
}

type openAIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

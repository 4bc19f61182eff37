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

const geminiDefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var geminiHarmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiClient is a direct HTTP client for the Google Gemini API.
type GeminiClient struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewGeminiClient creates a Gemini client. cfg.BaseURL overrides the
// public endpoint when set.
func NewGeminiClient(cfg APIConfig, httpClient *http.Client) *GeminiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = geminiDefaultBaseURL
	}
	return &GeminiClient{
		apiKey:  cfg.APIKey,
		baseURL: base,
		model:   cfg.Model,
		client:  httpClient,
	}
}

// Name returns the provider name.
func (g *GeminiClient) Name() string { return APITypeGemini }

// Complete sends a non-streaming generateContent request.
func (g *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	start := time.Now()

	resp, err := g.do(ctx, req, "generateContent")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &ProviderError{Provider: g.Name(), Message: "failed to parse response: " + err.Error()}
	}
	if len(result.Candidates) == 0 {
		reason := "no candidates"
		if result.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + result.PromptFeedback.BlockReason
		}
		return nil, &ProviderError{Provider: g.Name(), Message: reason}
	}

	return &CompletionResponse{
		Content:    result.text(),
		StopReason: result.Candidates[0].FinishReason,
		Model:      g.modelFor(req),
		Usage: Usage{
			InputTokens:  result.UsageMetadata.PromptTokenCount,
			OutputTokens: result.UsageMetadata.CandidatesTokenCount,
		},
		Duration: time.Since(start),
	}, nil
}

// Stream sends a streamGenerateContent request using the SSE transport.
func (g *GeminiClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	resp, err := g.do(ctx, req, "streamGenerateContent")
	if err != nil {
		return nil, err
	}

	events := make(chan StreamEvent)
	go g.readStream(ctx, resp.Body, g.modelFor(req), events)
	return events, nil
}

func (g *GeminiClient) modelFor(req CompletionRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return g.model
}

func (g *GeminiClient) do(ctx context.Context, req CompletionRequest, method string) (*http.Response, error) {
	payload, err := json.Marshal(g.buildRequestBody(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:%s", g.baseURL, g.modelFor(req), method)
	if method == "streamGenerateContent" {
		endpoint += "?alt=sse"
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", g.apiKey)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Provider: g.Name(), Message: "request failed: " + err.Error()}
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &ProviderError{Provider: g.Name(), Code: resp.StatusCode, Message: truncate(strings.TrimSpace(string(body)), 512)}
	}
	return resp, nil
}

func (g *GeminiClient) readStream(ctx context.Context, body io.ReadCloser, model string, events chan<- StreamEvent) {
	defer close(events)
	defer body.Close()

	var full strings.Builder
	var finish string
	scanner := newSSEScanner(body)
	for scanner.Next() {
		var chunk geminiResponse
		if err := json.Unmarshal([]byte(scanner.Data()), &chunk); err != nil {
			continue
		}
		if len(chunk.Candidates) > 0 && chunk.Candidates[0].FinishReason != "" {
			finish = chunk.Candidates[0].FinishReason
		}
		text := chunk.text()
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
		Type:     EventDone,
		Response: &CompletionResponse{Content: full.String(), StopReason: finish, Model: model},
	})
}

func (g *GeminiClient) buildRequestBody(req CompletionRequest) geminiRequest {
	body := geminiRequest{
		GenerationConfig: geminiGenerationConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			TopP:            req.TopP,
		},
	}
	if req.System != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	for _, m := range req.Messages {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	if req.Relaxed {
		for _, c := range geminiHarmCategories {
			body.SafetySettings = append(body.SafetySettings, geminiSafetySetting{Category: c, Threshold: "BLOCK_NONE"})
		}
	}
	return body
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig"`
	SafetySettings    []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens,omitempty"`
	Temperature     *float64 `json:"temperature,omitempty"`
	TopP            *float64 `json:"topP,omitempty"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (r *geminiResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

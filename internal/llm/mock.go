package llm

import (
	"context"
	"strings"
)

// MockClient is a test double for Client.
type MockClient struct {
	ProviderName string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	StreamFunc   func(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error)
}

func (m *MockClient) Name() string {
	if m.ProviderName == "" {
		return "mock"
	}
	return m.ProviderName
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return &CompletionResponse{Content: "mock response"}, nil
}

func (m *MockClient) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamEvent, error) {
	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, req)
	}
	return StreamChunks("mock ", "stream response"), nil
}

// StreamChunks returns a closed, buffered channel that yields each chunk
// as a delta followed by a done event.
func StreamChunks(chunks ...string) <-chan StreamEvent {
	ch := make(chan StreamEvent, len(chunks)+1)
	for _, c := range chunks {
		ch <- StreamEvent{Type: EventDelta, Content: c}
	}
	ch <- StreamEvent{Type: EventDone, Response: &CompletionResponse{Content: strings.Join(chunks, "")}}
	close(ch)
	return ch
}

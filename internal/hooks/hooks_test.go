package hooks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soyeahso/promptsmith/internal/config"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var got Payload
	m.On(EventSessionStart, "test", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventSessionStart, "s1", map[string]any{"api_type": "openai"})
	assert.Equal(t, EventSessionStart, got.Event)
	assert.Equal(t, "s1", got.SessionID)
	assert.Equal(t, "openai", got.Data["api_type"])
	assert.False(t, got.Timestamp.IsZero())
}

func TestManager_Emit_MultipleHandlers(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventPromptGenerated, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventPromptGenerated, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventPromptGenerated, "", nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_HandlerErrorDoesNotStopOthers(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventSessionEnd, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("boom")
	})
	m.On(EventSessionEnd, "second", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventSessionEnd, "s1", nil)
	assert.True(t, secondCalled)
}

func TestManager_Emit_NoHandlers(t *testing.T) {
	m := testManager()
	m.Emit(context.Background(), EventGatewayStop, "", nil)
}

func TestManager_Off_KeepsOthers(t *testing.T) {
	m := testManager()
	noop := func(_ context.Context, _ Payload) error { return nil }

	m.On(EventSessionStart, "a", noop)
	m.On(EventSessionStart, "b", noop)
	m.On(EventSessionStart, "a", noop)
	m.Off(EventSessionStart, "a")

	assert.Equal(t, 1, m.Count(EventSessionStart))
}

func TestManager_EmitAsync(t *testing.T) {
	m := testManager()

	var count atomic.Int32
	for i := 0; i < 3; i++ {
		m.On(EventEvaluationComplete, "h", func(_ context.Context, _ Payload) error {
			count.Add(1)
			return nil
		})
	}

	m.EmitAsync(context.Background(), EventEvaluationComplete, "s1", nil)
	m.Wait()
	assert.Equal(t, int32(3), count.Load())
}

func TestManager_EmitAsync_Concurrent(t *testing.T) {
	m := testManager()

	var mu sync.Mutex
	seen := map[string]bool{}
	m.On(EventSessionStart, "h", func(_ context.Context, p Payload) error {
		mu.Lock()
		defer mu.Unlock()
		seen[p.SessionID] = true
		return nil
	})

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			m.EmitAsync(context.Background(), EventSessionStart, id, nil)
		}(id)
	}
	wg.Wait()
	m.Wait()

	assert.Len(t, seen, 4)
}

func TestManager_Events(t *testing.T) {
	m := testManager()
	noop := func(_ context.Context, _ Payload) error { return nil }
	m.On(EventSessionStart, "a", noop)
	m.On(EventGatewayStart, "b", noop)

	assert.Equal(t, []string{EventGatewayStart, EventSessionStart}, m.Events())
}

func TestAllEvents(t *testing.T) {
	assert.Len(t, AllEvents, 6)
	assert.Contains(t, AllEvents, EventEvaluationComplete)
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell hooks are tested with /bin/sh")
	}
}

func TestCommandHandler_ReceivesPayload(t *testing.T) {
	skipOnWindows(t)
	out := filepath.Join(t.TempDir(), "payload.json")

	h := CommandHandler(`cat > "`+out+`"; echo "$PROMPTSMITH_EVENT" >> "`+out+`"`, time.Second)
	err := h(context.Background(), newPayload(EventPromptGenerated, "s1", map[string]any{"length": 12}))
	require.NoError(t, err)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"event":"prompt_generated"`)
	assert.Contains(t, string(data), `"session_id":"s1"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(string(data)), EventPromptGenerated))
}

func TestCommandHandler_Failure(t *testing.T) {
	skipOnWindows(t)
	h := CommandHandler(`echo nope >&2; exit 3`, time.Second)
	err := h(context.Background(), newPayload(EventSessionEnd, "s1", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCommandHandler_Timeout(t *testing.T) {
	skipOnWindows(t)
	h := CommandHandler(`sleep 5`, 50*time.Millisecond)
	start := time.Now()
	err := h(context.Background(), newPayload(EventSessionEnd, "", nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestRegisterCommands(t *testing.T) {
	m := testManager()
	n := m.RegisterCommands(config.HooksConfig{
		SessionStart:    []config.HookEntry{{Command: "true"}, {Command: "  "}},
		PromptGenerated: []config.HookEntry{{Command: "true", Timeout: 100}},
	})
	assert.Equal(t, 2, n)
	assert.Equal(t, 1, m.Count(EventSessionStart))
	assert.Equal(t, 1, m.Count(EventPromptGenerated))
	assert.Zero(t, m.Count(EventGatewayStart))
}

package domain

import (
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/soyeahso/promptsmith/internal/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageIDUnique(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				id := NewMessageID()
				mu.Lock()
				assert.False(t, seen[id], id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 1000)
}

func TestNewMessage(t *testing.T) {
	m := NewMessage(RoleUser, "hi")
	assert.True(t, strings.HasPrefix(m.ID, "msg_"))
	assert.Equal(t, RoleUser, m.Role)
	assert.True(t, m.IsComplete)
	assert.False(t, m.Timestamp.IsZero())

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"user"`)
}

func TestSessionStatusValid(t *testing.T) {
	assert.True(t, StatusActive.Valid())
	assert.True(t, StatusPromptGenerated.Valid())
	assert.True(t, StatusEnded.Valid())
	assert.False(t, SessionStatus("paused").Valid())
}

func TestSessionSummary(t *testing.T) {
	s := Session{
		ID:       "s1",
		Status:   StatusActive,
		Messages: []ChatMessage{NewMessage(RoleSystem, "start"), NewMessage(RoleUser, "x")},
		Profile:  profile.Snapshot{Traits: []profile.Trait{{Key: "a", Value: "b"}}},
	}
	sum := s.Summary(true)
	assert.Equal(t, 2, sum.MessageCount)
	assert.Equal(t, 1, sum.TraitCount)
	assert.True(t, sum.Live)
}

package domain

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Role identifies who authored a ChatMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ChatMessage is one entry of a session transcript. Messages are never
// edited after they are appended.
type ChatMessage struct {
	ID         string    `json:"id"`
	Role       Role      `json:"type"`
	Content    string    `json:"content"`
	IsComplete bool      `json:"is_complete"`
	Timestamp  time.Time `json:"timestamp"`
}

var messageSeq atomic.Uint64

// NewMessageID returns a process-unique, monotonically increasing id of
// the form msg_<unix-millis>_<seq>.
func NewMessageID() string {
	return fmt.Sprintf("msg_%d_%d", time.Now().UnixMilli(), messageSeq.Add(1))
}

// NewMessage builds a complete message stamped with the current time.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:         NewMessageID(),
		Role:       role,
		Content:    content,
		IsComplete: true,
		Timestamp:  time.Now(),
	}
}

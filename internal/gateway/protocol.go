package gateway

import (
	"encoding/json"

	"github.com/soyeahso/promptsmith/internal/domain"
)

// Inbound message types.
const (
	TypeAPIConfig            = "api_config"
	TypeStartSession         = "start_session"
	TypeUserResponse         = "user_response"
	TypeUserConfirmation     = "user_confirmation"
	TypeGeneratePrompt       = "generate_prompt"
	TypeContinueConversation = "continue_conversation"
	TypeEndSession           = "end_session"
)

// Outbound message types.
const (
	TypeAPIConfigResult       = "api_config_result"
	TypeError                 = "error"
	TypeConfirmationRequest   = "confirmation_request"
	TypeEvaluationUpdate      = "evaluation_update"
	TypeAIResponseChunk       = "ai_response_chunk"
	TypeSystemMessage         = "system_message"
	TypeFinalPromptChunk      = "final_prompt_chunk"
	TypePromptGenerated       = "prompt_generated"
	TypeConversationContinued = "conversation_continued"
	TypeSessionEnd            = "session_end"
)

// Envelope is the frame for every WebSocket text message in both
// directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: msgType, Payload: json.RawMessage("{}")}, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: raw}, nil
}

// Decode unmarshals the payload into target. A missing payload leaves
// target untouched.
func (e Envelope) Decode(target any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	return json.Unmarshal(e.Payload, target)
}

// UserResponse is the user_response payload.
type UserResponse struct {
	Answer string `json:"answer"`
}

// UserConfirmation is the user_confirmation payload.
type UserConfirmation struct {
	Confirm bool `json:"confirm"`
}

// ConfigResult answers api_config and POST /api/config.
type ConfigResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MessagePayload carries a single human-readable message.
type MessagePayload struct {
	Message string `json:"message"`
}

// ChunkPayload carries one streamed text fragment.
type ChunkPayload struct {
	Chunk string `json:"chunk"`
}

// ConfirmationRequest asks the user whether to write the final prompt.
type ConfirmationRequest struct {
	Reason string `json:"reason"`
}

// EvaluationUpdate reports evaluator progress. Only Message is set for the
// trigger notice and for failures; a completed evaluation fills the rest.
type EvaluationUpdate struct {
	Message               string             `json:"message"`
	ExtractedTraits       []string           `json:"extracted_traits,omitempty"`
	ExtractedKeywords     []string           `json:"extracted_keywords,omitempty"`
	EvaluationScore       *float64           `json:"evaluation_score,omitempty"`
	CompletenessBreakdown map[string]float64 `json:"completeness_breakdown,omitempty"`
	Suggestions           []string           `json:"suggestions,omitempty"`
	IsReady               *bool              `json:"is_ready,omitempty"`
}

// newEvaluationUpdate renders a worker result. message is the already
// localized headline.
func newEvaluationUpdate(message string, res domain.EvaluationResult) EvaluationUpdate {
	ready := res.Ready
	u := EvaluationUpdate{Message: message, IsReady: &ready}
	if res.Failed {
		return u
	}
	u.ExtractedTraits = res.ExtractedTraits
	u.ExtractedKeywords = res.ExtractedKeywords
	u.EvaluationScore = res.Score
	u.CompletenessBreakdown = res.CompletenessBreakdown
	u.Suggestions = res.Suggestions
	return u
}

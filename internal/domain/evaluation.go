package domain

import "github.com/soyeahso/promptsmith/internal/profile"

// EvaluationResult is the scoring pass verdict on a profile snapshot.
type EvaluationResult struct {
	SessionID             string             `json:"session_id"`
	Critique              string             `json:"critique"`
	ExtractedTraits       []string           `json:"extracted_traits,omitempty"`
	ExtractedKeywords     []string           `json:"extracted_keywords,omitempty"`
	Score                 *float64           `json:"evaluation_score,omitempty"`
	CompletenessBreakdown map[string]float64 `json:"completeness_breakdown,omitempty"`
	Suggestions           []string           `json:"suggestions,omitempty"`
	Ready                 bool               `json:"is_ready"`
	// Failed marks results synthesized from an error rather than a reply.
	Failed bool `json:"-"`
	// Snapshot is the profile state that was scored.
	Snapshot profile.Snapshot `json:"-"`
}

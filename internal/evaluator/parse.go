package evaluator

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/soyeahso/promptsmith/internal/domain"
)

// ErrEvaluationParse is returned when the evaluator reply is not the
// expected JSON object.
var ErrEvaluationParse = errors.New("evaluation reply is not valid JSON")

type reply struct {
	Critique              string             `json:"critique"`
	ExtractedTraits       stringList         `json:"extracted_traits"`
	ExtractedKeywords     stringList         `json:"extracted_keywords"`
	EvaluationScore       *float64           `json:"evaluation_score"`
	CompletenessBreakdown map[string]float64 `json:"completeness_breakdown"`
	Suggestions           stringList         `json:"suggestions"`
	IsReadyForWriting     bool               `json:"is_ready_for_writing"`
}

// stringList accepts a JSON array of strings or a single string.
type stringList []string

func (s *stringList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*s = list
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err != nil {
		return err
	}
	if one != "" {
		*s = []string{one}
	}
	return nil
}

// ParseReply decodes an evaluator reply. Markdown code fences are removed
// and any prose around the outermost JSON object is ignored.
func ParseReply(raw string) (domain.EvaluationResult, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.ReplaceAll(cleaned, "```json", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	cleaned = strings.TrimSpace(cleaned)

	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		cleaned = cleaned[start : end+1]
	}

	var r reply
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("%w: %w", ErrEvaluationParse, err)
	}

	return domain.EvaluationResult{
		Critique:              strings.TrimSpace(r.Critique),
		ExtractedTraits:       r.ExtractedTraits,
		ExtractedKeywords:     r.ExtractedKeywords,
		Score:                 r.EvaluationScore,
		CompletenessBreakdown: r.CompletenessBreakdown,
		Suggestions:           r.Suggestions,
		Ready:                 r.IsReadyForWriting,
	}, nil
}

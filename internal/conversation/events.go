package conversation

import "github.com/soyeahso/promptsmith/internal/profile"

// EventKind discriminates handler events.
type EventKind int

const (
	// DialogueChunk carries visible reply text. When Err is set the text
	// is a localized failure notice instead.
	DialogueChunk EventKind = iota
	// ConfirmationRequested asks the user whether to write the final prompt.
	ConfirmationRequested
	// EvaluationTriggered asks the caller to schedule a scoring pass on
	// Snapshot.
	EvaluationTriggered
)

func (k EventKind) String() string {
	switch k {
	case DialogueChunk:
		return "dialogue_chunk"
	case ConfirmationRequested:
		return "confirmation_requested"
	case EvaluationTriggered:
		return "evaluation_triggered"
	default:
		return "unknown"
	}
}

// Event is one item of a turn's output.
type Event struct {
	Kind EventKind
	// Text is the chunk, the confirmation reason, or the trigger notice.
	Text string
	Err  error
	// Snapshot is set on EvaluationTriggered.
	Snapshot profile.Snapshot
}

// State is the handler's position in the dialogue.
type State string

const (
	StateAwaitingInput        State = "awaiting_input"
	StateGenerating           State = "generating"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateFinalizing           State = "finalizing"
	StateEnded                State = "ended"
)

// CompletionState is what a CompletionPredicate sees after each turn.
type CompletionState struct {
	Traits    int
	Turns     int
	MinTraits int
	MinTurns  int
	// Ready is the readiness flag of the latest successful evaluation.
	Ready     bool
	Evaluated bool
}

// CompletionPredicate decides whether to offer final prompt generation.
type CompletionPredicate func(CompletionState) bool

// DefaultCompletion fires when the evaluator says the profile is ready, or
// when both the trait and turn minimums are met.
func DefaultCompletion(s CompletionState) bool {
	if s.Evaluated && s.Ready {
		return true
	}
	return s.MinTraits > 0 && s.Traits >= s.MinTraits && s.Turns >= s.MinTurns
}

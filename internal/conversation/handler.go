// Package conversation drives one session's interview: it streams the
// model's reply, separates visible text from extracted traits, merges the
// traits into the profile, and decides when to evaluate or to offer the
// final prompt.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/soyeahso/promptsmith/internal/profile"
	"github.com/soyeahso/promptsmith/internal/prompts"
	"github.com/soyeahso/promptsmith/internal/stream"
)

// FinalPromptEnd terminates every FinalizePrompt stream.
const FinalPromptEnd = "::FINAL_PROMPT_END::"

var (
	// ErrNotConfigured is returned when no generator has been bound.
	ErrNotConfigured = llm.ErrNotConfigured
	// ErrBusy is returned while a turn or finalization is in flight.
	ErrBusy = errors.New("conversation: turn already in progress")
	// ErrEnded is returned after End.
	ErrEnded = errors.New("conversation: session ended")
	// ErrInvalidTransition is returned by Decline outside a confirmation.
	ErrInvalidTransition = errors.New("conversation: invalid state transition")
)

// Transcript stores a session's messages. The session registry implements it.
type Transcript interface {
	AddMessage(sessionID string, msg domain.ChatMessage) error
	Messages(sessionID string) ([]domain.ChatMessage, error)
}

// Options configures a Handler.
type Options struct {
	SessionID  string
	Profile    *profile.Profile
	Transcript Transcript
	Language   string

	MinTraits     int
	MinTurns      int
	EvaluateEvery int
	Completion    CompletionPredicate

	Log *logging.Logger
}

// Handler owns the mutable conversation state of one session.
type Handler struct {
	sessionID  string
	profile    *profile.Profile
	transcript Transcript
	prompts    prompts.Set
	catalog    *i18n.Catalog
	completion CompletionPredicate

	minTraits     int
	minTurns      int
	evaluateEvery int
	log           *logging.Logger

	mu         sync.Mutex
	state      State
	client     llm.Client
	cfg        llm.APIConfig
	critique   string
	evaluated  bool
	ready      bool
	turns      int
	sinceEval  int
	dirty      bool // traits changed since the last evaluation trigger
	suppressed bool // user declined and nothing changed since
}

// New creates a handler in StateAwaitingInput with no generator bound.
func New(opts Options) *Handler {
	if opts.Profile == nil {
		opts.Profile = profile.New()
	}
	if opts.Completion == nil {
		opts.Completion = DefaultCompletion
	}
	if opts.EvaluateEvery <= 0 {
		opts.EvaluateEvery = 1
	}
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	return &Handler{
		sessionID:     opts.SessionID,
		profile:       opts.Profile,
		transcript:    opts.Transcript,
		prompts:       prompts.For(opts.Language),
		catalog:       i18n.For(opts.Language),
		completion:    opts.Completion,
		minTraits:     opts.MinTraits,
		minTurns:      opts.MinTurns,
		evaluateEvery: opts.EvaluateEvery,
		log:           opts.Log.Sub("conversation").With("sessionId", opts.SessionID),
		state:         StateAwaitingInput,
	}
}

// Bind sets the generator and the config used to build requests.
func (h *Handler) Bind(client llm.Client, cfg llm.APIConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = client
	h.cfg = cfg
	h.log.Debug().Str("provider", cfg.APIType).Str("model", cfg.Model).Msg("generator bound")
}

// SessionID returns the session this handler serves.
func (h *Handler) SessionID() string { return h.sessionID }

// Profile returns the live profile.
func (h *Handler) Profile() *profile.Profile { return h.profile }

// State returns the current state.
func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Critique returns the latest evaluator critique.
func (h *Handler) Critique() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.critique
}

// Mature reports whether the bound config enables mature content.
func (h *Handler) Mature() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg.NSFWMode
}

// begin moves into a busy state and returns the bound generator.
func (h *Handler) begin(next State) (llm.Client, llm.APIConfig, string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.state {
	case StateEnded:
		return nil, llm.APIConfig{}, "", ErrEnded
	case StateGenerating, StateFinalizing:
		return nil, llm.APIConfig{}, "", ErrBusy
	}
	if h.client == nil {
		return nil, llm.APIConfig{}, "", ErrNotConfigured
	}
	h.state = next
	return h.client, h.cfg, h.critique, nil
}

// settle leaves a busy state unless the session ended meanwhile.
func (h *Handler) settle(next State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateEnded {
		h.state = next
	}
}

// HandleMessage runs one user turn. The returned channel yields the
// reply's visible text as DialogueChunk events, then at most one
// EvaluationTriggered and one ConfirmationRequested, and is closed when
// the turn is over. Nothing is generated faster than the caller reads;
// cancelling ctx abandons the turn.
func (h *Handler) HandleMessage(ctx context.Context, text string) (<-chan Event, error) {
	client, cfg, critique, err := h.begin(StateGenerating)
	if err != nil {
		return nil, err
	}

	history, err := h.history()
	if err != nil {
		h.settle(StateAwaitingInput)
		return nil, err
	}
	if err := h.record(domain.RoleUser, text); err != nil {
		h.settle(StateAwaitingInput)
		return nil, err
	}

	messages := append(history, llm.Message{Role: llm.RoleUser, Content: h.prompts.UserTurn(critique, text)})
	req := cfg.NewRequest(h.prompts.Conversation(cfg.NSFWMode), messages)

	events := make(chan Event)
	go h.runTurn(ctx, client, req, events)
	return events, nil
}

func (h *Handler) runTurn(ctx context.Context, client llm.Client, req llm.CompletionRequest, events chan<- Event) {
	defer close(events)

	send := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	upstream, err := client.Stream(ctx, req)
	if err != nil {
		h.failTurn(send, err)
		return
	}

	splitter := stream.NewSplitter()
	var streamErr error
	for ev := range upstream {
		switch ev.Type {
		case llm.EventDelta:
			if visible := splitter.Feed(ev.Content); visible != "" {
				if !send(Event{Kind: DialogueChunk, Text: visible}) {
					h.abandon()
					return
				}
			}
		case llm.EventError:
			streamErr = errors.New(ev.Error)
		}
	}
	if ctx.Err() != nil {
		h.abandon()
		return
	}

	res := splitter.Close()
	if res.Tail != "" && !send(Event{Kind: DialogueChunk, Text: res.Tail}) {
		h.abandon()
		return
	}
	if streamErr != nil {
		h.failTurn(send, streamErr)
		return
	}

	for _, ev := range h.completeTurn(res) {
		if !send(ev) {
			return
		}
	}
}

// completeTurn folds a finished reply into the session and returns the
// trailing events.
func (h *Handler) completeTurn(res stream.Result) []Event {
	traits, notes := profile.ParseTraits(res.Hidden)
	changed := h.profile.MergeTraits(traits)
	h.profile.AddNotes(notes...)

	if err := h.record(domain.RoleAssistant, res.Visible); err != nil {
		h.log.Warn().Err(err).Msg("failed to record assistant message")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.turns++
	h.sinceEval++
	if changed > 0 {
		h.dirty = true
		h.suppressed = false
	}

	h.log.Debug().
		Int("turn", h.turns).
		Int("traitsChanged", changed).
		Int("traits", h.profile.Len()).
		Msg("turn complete")

	var out []Event
	if h.dirty && h.sinceEval >= h.evaluateEvery {
		h.dirty = false
		h.sinceEval = 0
		out = append(out, Event{
			Kind:     EvaluationTriggered,
			Text:     h.catalog.T(i18n.MsgEvaluating),
			Snapshot: h.profile.Snapshot(),
		})
	}

	next := StateAwaitingInput
	if reason, ok := h.confirmationLocked(); ok {
		next = StateAwaitingConfirmation
		out = append(out, Event{Kind: ConfirmationRequested, Text: reason})
	}
	if h.state != StateEnded {
		h.state = next
	}
	return out
}

func (h *Handler) confirmationLocked() (string, bool) {
	if h.suppressed {
		return "", false
	}
	st := CompletionState{
		Traits:    h.profile.Len(),
		Turns:     h.turns,
		MinTraits: h.minTraits,
		MinTurns:  h.minTurns,
		Ready:     h.ready,
		Evaluated: h.evaluated,
	}
	if !h.completion(st) {
		return "", false
	}
	if h.evaluated && h.ready {
		return h.catalog.T(i18n.MsgConfirmByScore), true
	}
	return h.catalog.T(i18n.MsgConfirmByCount, st.Traits), true
}

func (h *Handler) failTurn(send func(Event) bool, err error) {
	if !errors.Is(err, llm.ErrUpstream) {
		err = fmt.Errorf("%w: %w", llm.ErrUpstream, err)
	}
	h.log.Warn().Err(err).Msg("dialogue generation failed")
	h.settle(StateAwaitingInput)
	send(Event{Kind: DialogueChunk, Text: h.catalog.T(i18n.MsgConversationError, err), Err: err})
}

func (h *Handler) abandon() {
	h.log.Debug().Msg("turn abandoned")
	h.settle(StateAwaitingInput)
}

// Decline records that the user does not want the final prompt yet.
// The offer is not repeated until the profile changes.
func (h *Handler) Decline() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateAwaitingConfirmation {
		return fmt.Errorf("%w: decline from %s", ErrInvalidTransition, h.state)
	}
	h.state = StateAwaitingInput
	h.suppressed = true
	return nil
}

// FinalizePrompt streams the final prompt written from the current
// profile. The last value is always FinalPromptEnd. On upstream failure a
// localized notice precedes the terminator.
func (h *Handler) FinalizePrompt(ctx context.Context) (<-chan string, error) {
	client, cfg, _, err := h.begin(StateFinalizing)
	if err != nil {
		return nil, err
	}

	req := cfg.NewRequest(h.prompts.Writer(cfg.NSFWMode), []llm.Message{
		{Role: llm.RoleUser, Content: h.profile.FullText()},
	})

	chunks := make(chan string)
	go h.runFinalize(ctx, client, req, chunks)
	return chunks, nil
}

func (h *Handler) runFinalize(ctx context.Context, client llm.Client, req llm.CompletionRequest, chunks chan<- string) {
	defer close(chunks)

	send := func(s string) bool {
		select {
		case chunks <- s:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var failure error
	upstream, err := client.Stream(ctx, req)
	if err != nil {
		failure = err
	} else {
		for ev := range upstream {
			switch ev.Type {
			case llm.EventDelta:
				if ev.Content != "" && !send(ev.Content) {
					h.abandon()
					return
				}
			case llm.EventError:
				failure = errors.New(ev.Error)
			}
		}
	}
	if ctx.Err() != nil {
		h.abandon()
		return
	}

	h.settle(StateAwaitingInput)
	if failure != nil {
		h.log.Warn().Err(failure).Msg("final prompt generation failed")
		if !send(h.catalog.T(i18n.MsgWriterError, failure)) {
			return
		}
	} else {
		h.log.Info().Int("traits", h.profile.Len()).Msg("final prompt generated")
	}
	send(FinalPromptEnd)
}

// ApplyEvaluation merges a worker verdict into the live session. Failed
// results keep the previous critique and never mark the profile ready.
// When the verdict makes the profile ready while the handler is idle, the
// handler moves to StateAwaitingConfirmation and returns the event to
// forward.
func (h *Handler) ApplyEvaluation(res domain.EvaluationResult) (Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if res.Failed {
		return Event{}, false
	}
	if c := strings.TrimSpace(res.Critique); c != "" {
		h.critique = c
	}
	h.evaluated = true
	h.ready = res.Ready

	if h.state != StateAwaitingInput || !res.Ready {
		return Event{}, false
	}
	reason, ok := h.confirmationLocked()
	if !ok {
		return Event{}, false
	}
	h.state = StateAwaitingConfirmation
	return Event{Kind: ConfirmationRequested, Text: reason}, true
}

// End moves the handler to StateEnded. Further turns fail with ErrEnded.
func (h *Handler) End() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = StateEnded
}

func (h *Handler) history() ([]llm.Message, error) {
	if h.transcript == nil {
		return nil, nil
	}
	msgs, err := h.transcript.Messages(h.sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case domain.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case domain.RoleAssistant:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return out, nil
}

func (h *Handler) record(role domain.Role, content string) error {
	if h.transcript == nil {
		return nil
	}
	return h.transcript.AddMessage(h.sessionID, domain.NewMessage(role, content))
}

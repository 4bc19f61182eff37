package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/promptsmith/internal/conversation"
	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/evaluator"
	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/soyeahso/promptsmith/internal/profile"
)

// connection is the protocol state of one WebSocket. Everything but the
// evaluation callbacks runs on the read loop goroutine.
type connection struct {
	srv     *Server
	client  *Client
	catalog *i18n.Catalog
	log     *logging.Logger

	// cfg accumulates api_config patches; bound is the last config that
	// produced a working generator.
	cfg        llm.APIConfig
	bound      llm.APIConfig
	generator  llm.Client
	configured bool

	sessionID string
	handler   *conversation.Handler
	ended     bool
}

func newConnection(srv *Server, client *Client) *connection {
	return &connection{
		srv:     srv,
		client:  client,
		catalog: srv.catalog,
		log:     client.log,
		cfg:     llm.EmptyConfig(),
	}
}

// run drives the configuration phase, then the interaction phase, until
// the transport fails or the user ends the session.
func (c *connection) run(ctx context.Context) {
	if def, ok := c.srv.defaults.Get(); ok {
		c.cfg = def
		if err := c.bind(def); err == nil {
			c.send(TypeAPIConfigResult, ConfigResult{Success: true, Message: c.catalog.T(i18n.MsgServerConfigured)})
		} else {
			c.log.Warn().Err(err).Msg("default api config rejected")
		}
	}

	for !c.configured {
		env, ok := c.read()
		if !ok {
			return
		}
		switch env.Type {
		case TypeAPIConfig:
			c.applyConfig(env, false)
		case TypeStartSession:
			c.sendError(c.catalog.T(i18n.MsgConfigureFirst))
		default:
			c.log.Debug().Str("type", env.Type).Msg("message before configuration")
			c.sendError(c.catalog.T(i18n.MsgConfigureBefore, env.Type))
		}
	}

	for !c.ended {
		env, ok := c.read()
		if !ok {
			return
		}
		c.dispatch(ctx, env)
	}
}

// read returns the next well-formed envelope. Malformed frames are
// answered with an error message and skipped.
func (c *connection) read() (Envelope, bool) {
	for {
		env, err := c.client.ReadEnvelope()
		if err == nil {
			return env, true
		}
		if errors.Is(err, ErrBadFrame) {
			c.log.Debug().Err(err).Msg("bad frame")
			c.sendError(c.catalog.T(i18n.MsgBadFrame))
			continue
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || c.client.Closed() {
			c.log.Debug().Msg("client closed connection")
		} else {
			c.log.Warn().Err(err).Msg("read error")
		}
		return Envelope{}, false
	}
}

func (c *connection) dispatch(ctx context.Context, env Envelope) {
	switch env.Type {
	case TypeAPIConfig:
		c.applyConfig(env, true)
	case TypeStartSession:
		c.send(TypeSystemMessage, MessagePayload{Message: c.catalog.T(i18n.MsgReady)})
	case TypeUserResponse:
		var p UserResponse
		if err := env.Decode(&p); err != nil {
			c.sendError(c.catalog.T(i18n.MsgBadFrame))
			return
		}
		c.userResponse(ctx, p.Answer)
	case TypeUserConfirmation:
		var p UserConfirmation
		if err := env.Decode(&p); err != nil {
			c.sendError(c.catalog.T(i18n.MsgBadFrame))
			return
		}
		c.userConfirmation(ctx, p.Confirm)
	case TypeGeneratePrompt:
		if !c.requireSession() {
			return
		}
		c.send(TypeSystemMessage, MessagePayload{Message: c.catalog.T(i18n.MsgGeneratingPrompt)})
		c.finalize(ctx, c.catalog.T(i18n.MsgPromptGeneratedDirect))
	case TypeContinueConversation:
		c.send(TypeSystemMessage, MessagePayload{Message: c.catalog.T(i18n.MsgContinueSystem)})
		c.send(TypeConversationContinued, MessagePayload{Message: c.catalog.T(i18n.MsgContinueMessage)})
	case TypeEndSession:
		c.endSession()
	default:
		c.sendError(c.catalog.T(i18n.MsgUnknownType, env.Type))
	}
}

// bind builds a generator for cfg and hands it to the live handler.
func (c *connection) bind(cfg llm.APIConfig) error {
	gen, err := c.srv.factory(cfg)
	if err != nil {
		return err
	}
	c.bound = cfg
	c.generator = gen
	c.configured = true
	if c.handler != nil {
		c.handler.Bind(gen, cfg)
	}
	c.log.Info().
		Str("provider", cfg.APIType).
		Str("model", cfg.Model).
		Str("apiKey", llm.MaskKey(cfg.APIKey)).
		Msg("api configured")
	return nil
}

// applyConfig overlays an api_config patch on this connection's config.
// A rejected patch leaves the previously bound generator in place.
func (c *connection) applyConfig(env Envelope, reconfigure bool) {
	var patch llm.APIConfigPatch
	err := env.Decode(&patch)
	if err == nil {
		c.cfg = patch.Apply(c.cfg)
		err = c.bind(c.cfg)
	}
	if err != nil {
		c.log.Warn().Err(err).Bool("reconfigure", reconfigure).Msg("api config rejected")
		msg := i18n.MsgConfigFailed
		if reconfigure {
			msg = i18n.MsgReconfigFailed
		}
		c.send(TypeAPIConfigResult, ConfigResult{Success: false, Message: c.catalog.T(msg)})
		return
	}

	msg := i18n.MsgConfigApplied
	if reconfigure {
		msg = i18n.MsgConfigReapplied
	}
	c.send(TypeAPIConfigResult, ConfigResult{Success: true, Message: c.catalog.T(msg, c.cfg.APIType)})
	if c.sessionID != "" {
		c.recordConfig(context.Background())
	}
}

// ensureSession creates the session on the first user message.
func (c *connection) ensureSession(ctx context.Context) {
	if c.handler != nil {
		return
	}
	s, h := c.srv.registry.CreateSession()
	h.Bind(c.generator, c.bound)
	c.sessionID = s.ID
	c.handler = h
	c.log = c.log.With("sessionId", s.ID)
	c.recordConfig(ctx)
	c.srv.emit(ctx, hooks.EventSessionStart, s.ID, map[string]any{
		"connId":   c.client.ConnID,
		"api_type": c.bound.APIType,
	})
}

func (c *connection) recordConfig(ctx context.Context) {
	if err := c.srv.registry.SetMetadata(ctx, c.sessionID, "api_type", c.bound.APIType); err != nil {
		c.log.Warn().Err(err).Msg("failed to record api config on session")
	}
	if err := c.srv.registry.SetMetadata(ctx, c.sessionID, "model", c.bound.Model); err != nil {
		c.log.Warn().Err(err).Msg("failed to record api config on session")
	}
}

func (c *connection) requireSession() bool {
	if c.handler != nil {
		return true
	}
	c.log.Debug().Err(ErrSessionNotInitialized).Msg("session operation rejected")
	c.sendError(c.catalog.T(i18n.MsgSessionNotInitialized))
	return false
}

func (c *connection) userResponse(ctx context.Context, answer string) {
	if strings.TrimSpace(answer) == "" {
		c.sendError(c.catalog.T(i18n.MsgEmptyAnswer))
		return
	}
	c.ensureSession(ctx)

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := c.handler.HandleMessage(turnCtx, answer)
	if err != nil {
		c.sendError(c.turnError(err))
		return
	}

	for ev := range events {
		var err error
		switch ev.Kind {
		case conversation.DialogueChunk:
			err = c.client.Send(TypeAIResponseChunk, ChunkPayload{Chunk: ev.Text})
		case conversation.EvaluationTriggered:
			err = c.client.Send(TypeEvaluationUpdate, EvaluationUpdate{Message: ev.Text})
			c.submitEvaluation(ev.Snapshot)
		case conversation.ConfirmationRequested:
			err = c.client.Send(TypeConfirmationRequest, ConfirmationRequest{Reason: ev.Text})
		}
		if err != nil {
			c.log.Debug().Err(err).Msg("turn abandoned, send failed")
			cancel()
			for range events {
			}
			return
		}
	}
}

func (c *connection) turnError(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return c.catalog.T(i18n.MsgBusy)
	case errors.Is(err, conversation.ErrNotConfigured):
		return c.catalog.T(i18n.MsgNotConfigured)
	case errors.Is(err, conversation.ErrEnded):
		return c.catalog.T(i18n.MsgSessionEnded)
	default:
		c.log.Error().Err(err).Msg("turn failed")
		return c.catalog.T(i18n.MsgInternalError)
	}
}

// submitEvaluation hands a snapshot to the worker. The result is
// attributed to the session that asked for it, whatever this connection
// is doing by the time it arrives.
func (c *connection) submitEvaluation(snap profile.Snapshot) {
	sessionID := c.sessionID
	c.srv.worker.Submit(evaluator.Job{
		SessionID: sessionID,
		Snapshot:  snap,
		Config:    c.bound,
		Client:    c.generator,
		Language:  c.srv.language,
		Deliver: func(res domain.EvaluationResult) {
			c.deliverEvaluation(sessionID, res)
		},
	})
}

// deliverEvaluation runs on a worker goroutine.
func (c *connection) deliverEvaluation(sessionID string, res domain.EvaluationResult) {
	var confirm *conversation.Event
	if h, ok := c.srv.registry.Handler(sessionID); ok {
		if ev, ok := h.ApplyEvaluation(res); ok {
			confirm = &ev
		}
	}

	data := map[string]any{"ready": res.Ready, "failed": res.Failed}
	if res.Score != nil {
		data["score"] = *res.Score
	}
	c.srv.emit(context.Background(), hooks.EventEvaluationComplete, sessionID, data)

	message := res.Critique
	if !res.Failed {
		message = c.catalog.T(i18n.MsgEvaluationDone, res.Critique)
	}
	if err := c.client.Send(TypeEvaluationUpdate, newEvaluationUpdate(message, res)); err != nil {
		c.log.Debug().Err(err).Str("sessionId", sessionID).Msg("evaluation result dropped")
		return
	}
	if confirm != nil {
		c.client.Send(TypeConfirmationRequest, ConfirmationRequest{Reason: confirm.Text})
	}
}

func (c *connection) userConfirmation(ctx context.Context, confirm bool) {
	if !c.requireSession() {
		return
	}
	if confirm {
		c.send(TypeSystemMessage, MessagePayload{Message: c.catalog.T(i18n.MsgAIPrompt)})
		c.finalize(ctx, c.catalog.T(i18n.MsgPromptGenerated))
		return
	}

	if err := c.handler.Decline(); err != nil {
		c.log.Debug().Err(err).Msg("decline outside confirmation")
	}
	c.send(TypeSystemMessage, MessagePayload{Message: c.catalog.T(i18n.MsgYouPrompt)})
	c.send(TypeAIResponseChunk, ChunkPayload{Chunk: c.catalog.T(i18n.MsgContinuePrompt)})
}

// finalize streams the final prompt and marks the session.
func (c *connection) finalize(ctx context.Context, done string) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chunks, err := c.handler.FinalizePrompt(turnCtx)
	if err != nil {
		c.sendError(c.turnError(err))
		return
	}

	var prompt strings.Builder
	for chunk := range chunks {
		if chunk == conversation.FinalPromptEnd {
			continue
		}
		prompt.WriteString(chunk)
		if err := c.client.Send(TypeFinalPromptChunk, ChunkPayload{Chunk: chunk}); err != nil {
			c.log.Debug().Err(err).Msg("finalize abandoned, send failed")
			cancel()
			for range chunks {
			}
			return
		}
	}

	if err := c.srv.registry.UpdateSession(c.sessionID, domain.StatusPromptGenerated); err != nil {
		c.log.Warn().Err(err).Msg("failed to mark prompt generated")
	}
	c.srv.emit(ctx, hooks.EventPromptGenerated, c.sessionID, map[string]any{
		"prompt": prompt.String(),
		"length": prompt.Len(),
		"traits": c.handler.Profile().Len(),
	})
	c.send(TypePromptGenerated, MessagePayload{Message: done})
}

func (c *connection) endSession() {
	if c.sessionID != "" {
		if err := c.srv.registry.UpdateSession(c.sessionID, domain.StatusEnded); err != nil {
			c.log.Warn().Err(err).Msg("failed to mark session ended")
		}
	}
	c.send(TypeSessionEnd, MessagePayload{Message: c.catalog.T(i18n.MsgSessionEnded)})
	c.ended = true
}

// cleanup detaches the session handler. In-flight evaluations still
// complete; their results fail to send and are dropped.
func (c *connection) cleanup() {
	if c.sessionID == "" {
		return
	}
	c.srv.registry.RemoveHandler(c.sessionID)
	c.srv.emit(context.Background(), hooks.EventSessionEnd, c.sessionID, map[string]any{
		"connId": c.client.ConnID,
		"ended":  c.ended,
	})
	c.log.Info().Msg("session detached")
}

func (c *connection) send(msgType string, payload any) {
	if err := c.client.Send(msgType, payload); err != nil {
		c.log.Debug().Err(err).Str("type", msgType).Msg("send failed")
	}
}

func (c *connection) sendError(message string) {
	c.send(TypeError, MessagePayload{Message: message})
}

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/session"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	maxConfigBody    = 64 << 10
)

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws/prompt", s.handleWebSocket)

	mux.HandleFunc("POST /api/config", s.handleSetConfig)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/debug/config", s.handleDebugConfig)
	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("GET /api/sessions/search", s.handleSearchSessions)
	mux.HandleFunc("GET /api/sessions/{id}", s.handleGetSession)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// handleSetConfig binds the process-wide default APIConfig. A missing
// api_key reuses the current default's key when the provider matches.
func (s *Server) handleSetConfig(w http.ResponseWriter, r *http.Request) {
	var patch llm.APIConfigPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConfigBody)).Decode(&patch); err != nil {
		writeJSON(w, http.StatusBadRequest, ConfigResult{Success: false, Message: s.catalog.T(i18n.MsgBadFrame)})
		return
	}

	cfg := patch.Apply(llm.EmptyConfig())
	if cfg.APIKey == "" {
		if current, ok := s.defaults.Get(); ok && current.APIType == cfg.APIType {
			cfg.APIKey = current.APIKey
		}
	}

	if _, err := s.factory(cfg); err != nil {
		s.log.Warn().Err(err).Str("provider", cfg.APIType).Msg("default api config rejected")
		writeJSON(w, http.StatusOK, ConfigResult{Success: false, Message: s.catalog.T(i18n.MsgConfigSaveFailed)})
		return
	}
	s.defaults.Set(cfg)
	s.log.Info().
		Str("provider", cfg.APIType).
		Str("model", cfg.Model).
		Str("apiKey", llm.MaskKey(cfg.APIKey)).
		Msg("default api config set")

	if id := r.URL.Query().Get("session_id"); id != "" {
		meta := map[string]string{"api_type": cfg.APIType}
		if masked, err := json.Marshal(cfg.Masked()); err != nil {
			s.log.Warn().Err(err).Msg("unable to encode api config for session")
		} else {
			meta["api_config"] = string(masked)
		}
		for k, v := range meta {
			if err := s.registry.SetMetadata(r.Context(), id, k, v); err != nil {
				s.log.Warn().Err(err).Str("sessionId", id).Msg("unable to record api config on session")
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, ConfigResult{Success: true, Message: s.catalog.T(i18n.MsgConfigSaved)})
}

// StatusResponse is returned by GET /api/status.
type StatusResponse struct {
	Status             string   `json:"status"`
	Version            string   `json:"version"`
	Providers          []string `json:"providers"`
	Configured         bool     `json:"configured"`
	Sessions           int      `json:"sessions"`
	Connections        int      `json:"connections"`
	PendingEvaluations int      `json:"pending_evaluations"`
	UptimeSeconds      int64    `json:"uptime_seconds"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var uptime int64
	if !s.startedAt.IsZero() {
		uptime = int64(time.Since(s.startedAt).Seconds())
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:             "ok",
		Version:            s.version,
		Providers:          llm.SupportedAPITypes,
		Configured:         s.defaults.Configured(),
		Sessions:           s.registry.Len(),
		Connections:        s.clients.Count(),
		PendingEvaluations: s.worker.Pending(),
		UptimeSeconds:      uptime,
	})
}

func (s *Server) handleDebugConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.defaults.Get()
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"configured": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"configured": true,
		"config":     cfg.Masked(),
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.registry.List(r.Context(), queryLimit(r))
	if err != nil {
		s.log.Error().Err(err).Msg("listing sessions")
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	snap, live, err := s.registry.Session(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("sessionId", id).Msg("loading session")
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session": snap, "live": live})
}

func (s *Server) handleSearchSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	hits, err := s.registry.Search(r.Context(), q, queryLimit(r))
	if errors.Is(err, session.ErrSearchUnsupported) {
		writeError(w, http.StatusNotImplemented, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("searching sessions")
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": hits})
}

func queryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

// Package gateway serves the interview protocol over WebSocket plus a small
// REST surface for configuration and session inspection.
package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/promptsmith/internal/config"
	"github.com/soyeahso/promptsmith/internal/conversation"
	"github.com/soyeahso/promptsmith/internal/evaluator"
	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/llm"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/soyeahso/promptsmith/internal/session"
	"github.com/soyeahso/promptsmith/internal/version"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrBadFrame     = errors.New("malformed message")
	// ErrSessionNotInitialized is reported for session operations sent
	// before the first user_response.
	ErrSessionNotInitialized = errors.New("session not initialized")
)

// Server is the promptsmith HTTP + WebSocket server.
type Server struct {
	cfg      config.Config
	log      *logging.Logger
	clients  *ClientRegistry
	version  string
	language string
	catalog  *i18n.Catalog

	registry *session.Registry
	worker   *evaluator.Worker
	factory  llm.Factory
	defaults *llm.DefaultConfig

	// Hook manager (optional, nil if not configured)
	hooks *hooks.Manager

	startedAt  time.Time
	httpServer *http.Server
	upgrader   websocket.Upgrader
	limiter    *connRateLimiter
}

// connRateLimiter caps WebSocket upgrade attempts per IP.
type connRateLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	limit    int
	now      func() time.Time
}

const (
	connRateWindow = time.Minute
	connRateMax    = 60
	connRateMaxIPs = 10000 // max tracked IPs to prevent memory exhaustion
)

func newConnRateLimiter(limit int) *connRateLimiter {
	return &connRateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		now:      time.Now,
	}
}

// run prunes stale entries every window until ctx is done.
func (l *connRateLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(connRateWindow)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.prune()
		}
	}
}

func (l *connRateLimiter) prune() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-connRateWindow)
	for ip, times := range l.attempts {
		if kept := recent(times, cutoff); len(kept) == 0 {
			delete(l.attempts, ip)
		} else {
			l.attempts[ip] = kept
		}
	}
}

func recent(times []time.Time, cutoff time.Time) []time.Time {
	filtered := times[:0]
	for _, t := range times {
		if t.After(cutoff) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// allow records an attempt from remoteAddr and reports whether it is
// within the limit.
func (l *connRateLimiter) allow(remoteAddr string) bool {
	host, _, _ := net.SplitHostPort(remoteAddr)
	if host == "" {
		host = remoteAddr
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	times := recent(l.attempts[host], now.Add(-connRateWindow))
	if len(times) >= l.limit {
		l.attempts[host] = times
		return false
	}

	if _, exists := l.attempts[host]; !exists && len(l.attempts) >= connRateMaxIPs {
		var oldestIP string
		var oldestTime time.Time
		for ip, ts := range l.attempts {
			if len(ts) > 0 && (oldestIP == "" || ts[len(ts)-1].Before(oldestTime)) {
				oldestIP = ip
				oldestTime = ts[len(ts)-1]
			}
		}
		if oldestIP != "" {
			delete(l.attempts, oldestIP)
		}
	}

	l.attempts[host] = append(times, now)
	return true
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithRegistry sets the session registry. Without it the server keeps
// sessions in memory only.
func WithRegistry(r *session.Registry) ServerOption {
	return func(s *Server) {
		s.registry = r
	}
}

// WithEvaluator sets the evaluation worker.
func WithEvaluator(w *evaluator.Worker) ServerOption {
	return func(s *Server) {
		s.worker = w
	}
}

// WithFactory replaces the provider client factory.
func WithFactory(f llm.Factory) ServerOption {
	return func(s *Server) {
		s.factory = f
	}
}

// WithDefaultConfig sets the process-wide default APIConfig holder.
func WithDefaultConfig(d *llm.DefaultConfig) ServerOption {
	return func(s *Server) {
		s.defaults = d
	}
}

// New creates a new gateway server. Collaborators not supplied through
// options are built from cfg.
func New(cfg config.Config, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:      cfg,
		log:      log.Sub("gateway"),
		clients:  NewClientRegistry(log.Sub("clients")),
		version:  version.Version,
		language: cfg.Conversation.Language,
		catalog:  i18n.For(cfg.Conversation.Language),
		limiter:  newConnRateLimiter(connRateMax),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.registry == nil {
		s.registry = session.NewRegistry(session.Options{
			Handler: HandlerOptions(cfg),
			Log:     log,
		})
	}
	if s.worker == nil {
		s.worker = evaluator.NewWorker(evaluator.Options{
			Workers:   cfg.Evaluator.Workers,
			QueueSize: cfg.Evaluator.QueueSize,
			Timeout:   time.Duration(cfg.Evaluator.TimeoutSeconds) * time.Second,
			Log:       log,
		})
	}
	if s.factory == nil {
		s.factory = llm.NewFactory(llm.FactoryOptions{
			Timeout:    time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second,
			MaxRetries: cfg.LLM.MaxRetries,
		}, log)
	}
	if s.defaults == nil {
		var initial *llm.APIConfig
		if cfg.LLM.Default != nil {
			c := llm.FromDefaultProvider(cfg.LLM.Default)
			initial = &c
		}
		s.defaults = llm.NewDefaultConfig(initial)
	}
	return s
}

// HandlerOptions maps the conversation section of cfg onto handler options.
func HandlerOptions(cfg config.Config) conversation.Options {
	return conversation.Options{
		Language:      cfg.Conversation.Language,
		MinTraits:     cfg.Conversation.MinTraits,
		MinTurns:      cfg.Conversation.MinTurns,
		EvaluateEvery: cfg.Conversation.EvaluateEvery,
	}
}

// Registry returns the session registry the server uses.
func (s *Server) Registry() *session.Registry { return s.registry }

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// If no origins are configured, only same-origin (no Origin header) or non-browser
// clients are allowed. If origins are configured, the Origin must match one of them.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return isOriginAllowed(origin, allowed)
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "loopback":
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	case "lan", "auto":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	case "custom":
		host := cfg.CustomBindHost
		if host == "" {
			host = "0.0.0.0"
		}
		return net.JoinHostPort(host, fmt.Sprint(cfg.Port))
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the full HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// Start begins listening for HTTP and WebSocket connections and runs the
// evaluation worker. It blocks until the context is cancelled or an error
// occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.cfg.Gateway.TLS.Enabled {
		cert, err := tls.LoadX509KeyPair(s.cfg.Gateway.TLS.CertPath, s.cfg.Gateway.TLS.KeyPath)
		if err != nil {
			ln.Close()
			return fmt.Errorf("loading TLS certificate: %w", err)
		}
		tlsCfg := &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		ln = tls.NewListener(ln, tlsCfg)
		s.log.Info().Msg("TLS enabled")
	} else if s.cfg.Gateway.Bind != "loopback" {
		s.log.Warn().Msg("TLS is not enabled, API keys will be transmitted in cleartext")
	}

	s.startedAt = time.Now()
	s.worker.Start(ctx)
	go s.limiter.run(ctx)

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Bool("defaultConfig", s.defaults.Configured()).
		Msg("gateway server ready")

	s.emit(ctx, hooks.EventGatewayStart, "", map[string]any{
		"addr": ln.Addr().String(),
	})

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		s.emit(context.Background(), hooks.EventGatewayStop, "", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	err = s.httpServer.Serve(ln)
	s.worker.Stop()
	if s.hooks != nil {
		s.hooks.Wait()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// emit fires a hook event asynchronously. No-op without a hook manager.
func (s *Server) emit(ctx context.Context, event, sessionID string, data map[string]any) {
	if s.hooks == nil {
		return
	}
	s.hooks.EmitAsync(context.WithoutCancel(ctx), event, sessionID, data)
}

// handleWebSocket upgrades HTTP to WebSocket and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r.RemoteAddr) {
		s.log.Warn().Str("remote", r.RemoteAddr).Msg("rate limited, too many connection attempts")
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	if s.cfg.Gateway.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.Gateway.MaxMessageBytes)
	}

	client := NewClient(conn, s.log.Sub("ws"))
	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	c := newConnection(s, client)
	defer c.cleanup()
	c.run(r.Context())
}

package plugin

import (
	"context"
	"fmt"
	"sync"

	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/logging"
)

// Registry manages plugin lifecycle.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]Plugin
	order    []string // registration order
	inited   []string
	hooks    *hooks.Manager
	sessions Sessions
	log      *logging.Logger
}

// NewRegistry creates a plugin registry.
func NewRegistry(hm *hooks.Manager, sessions Sessions, log *logging.Logger) *Registry {
	return &Registry{
		plugins:  make(map[string]Plugin),
		hooks:    hm,
		sessions: sessions,
		log:      log.Sub("plugins"),
	}
}

// Register adds a plugin without initializing it.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.ID()]; exists {
		return fmt.Errorf("plugin already registered: %s", p.ID())
	}
	r.plugins[p.ID()] = p
	r.order = append(r.order, p.ID())

	r.log.Debug().
		Str("id", p.ID()).
		Str("name", p.Name()).
		Str("version", p.Version()).
		Msg("plugin registered")
	return nil
}

// InitAll initializes plugins in registration order. If one fails, the
// ones already initialized are closed again before the error returns.
func (r *Registry) InitAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		api := API{
			Hooks:    r.hooks,
			Sessions: r.sessions,
			Log:      r.log.Sub(id),
		}
		if err := r.plugins[id].Init(ctx, api); err != nil {
			r.closeLocked()
			return fmt.Errorf("init plugin %s: %w", id, err)
		}
		r.inited = append(r.inited, id)
		r.log.Info().Str("id", id).Msg("plugin initialized")
	}
	return nil
}

// CloseAll shuts down initialized plugins in reverse order.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
}

func (r *Registry) closeLocked() {
	for i := len(r.inited) - 1; i >= 0; i-- {
		id := r.inited[i]
		if err := r.plugins[id].Close(); err != nil {
			r.log.Error().Err(err).Str("id", id).Msg("plugin close error")
		}
	}
	r.inited = nil
}

// List returns summary information in registration order.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.order))
	for _, id := range r.order {
		p := r.plugins[id]
		infos = append(infos, Info{ID: p.ID(), Name: p.Name(), Version: p.Version()})
	}
	return infos
}

// Info summarizes a plugin.
type Info struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

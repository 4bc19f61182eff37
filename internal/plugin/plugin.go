// Package plugin manages in-process extensions that react to session
// lifecycle events.
package plugin

import (
	"context"

	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/hooks"
	"github.com/soyeahso/promptsmith/internal/logging"
)

// Plugin is an in-process extension.
type Plugin interface {
	// ID returns a unique identifier such as "prompt-export".
	ID() string
	Name() string
	Version() string

	// Init registers hooks and acquires resources.
	Init(ctx context.Context, api API) error

	// Close releases what Init acquired.
	Close() error
}

// Sessions is the read-only view of the session registry given to plugins.
type Sessions interface {
	Session(ctx context.Context, id string) (domain.Session, bool, error)
}

// API is what a plugin can reach.
type API struct {
	Hooks    *hooks.Manager
	Sessions Sessions
	Log      *logging.Logger
}

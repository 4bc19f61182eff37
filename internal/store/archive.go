// Package store persists finished and idle sessions so they survive the
// in-memory registry.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/soyeahso/promptsmith/internal/config"
	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/logging"
)

// ErrNotFound is returned when an archive has no record of a session.
var ErrNotFound = errors.New("session not archived")

// Archive is a durable copy of session state. Writes replace the whole
// session record; messages are append-only so replacing is idempotent.
type Archive interface {
	SaveSession(ctx context.Context, s domain.Session) error
	LoadSession(ctx context.Context, id string) (domain.Session, error)
	ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error
	Close() error
}

// Backend names accepted in session.store.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// FromConfig opens the archive selected by cfg.Store. The memory backend
// has no archive and returns nil. defaultSQLitePath is used when
// cfg.SQLitePath is empty.
func FromConfig(ctx context.Context, cfg config.SessionConfig, defaultSQLitePath string, log *logging.Logger) (Archive, error) {
	switch cfg.Store {
	case "", BackendMemory:
		return nil, nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = defaultSQLitePath
		}
		db, err := Open(ctx, path, log)
		if err != nil {
			return nil, err
		}
		return NewSQLiteArchive(db), nil
	case BackendRedis:
		a, err := OpenRedis(ctx, RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.KeyPrefix,
			TTL:      time.Duration(cfg.Redis.TTLMinutes) * time.Minute,
		}, log)
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}

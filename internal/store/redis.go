package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/logging"
)

const (
	DefaultRedisPrefix = "promptsmith:session:"
	DefaultRedisTTL    = 24 * time.Hour
)

// RedisOptions configures a RedisArchive.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. The index sorted set lives at
	// Prefix + "index".
	Prefix string
	// TTL expires idle sessions. Zero keeps them forever.
	TTL time.Duration
}

// RedisArchive stores each session as one JSON value with a TTL, plus a
// sorted set of ids scored by last update.
type RedisArchive struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *logging.Logger
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions, log *logging.Logger) (*RedisArchive, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", opts.Addr, err)
	}
	a := NewRedisArchive(rdb, opts, log)
	a.log.Info().Str("addr", opts.Addr).Dur("ttl", a.ttl).Msg("redis session archive connected")
	return a, nil
}

// NewRedisArchive wraps an existing client.
func NewRedisArchive(rdb redis.UniversalClient, opts RedisOptions, log *logging.Logger) *RedisArchive {
	if opts.Prefix == "" {
		opts.Prefix = DefaultRedisPrefix
	}
	return &RedisArchive{rdb: rdb, prefix: opts.Prefix, ttl: opts.TTL, log: log.Sub("store.redis")}
}

func (a *RedisArchive) key(id string) string { return a.prefix + id }

func (a *RedisArchive) indexKey() string { return a.prefix + "index" }

// SaveSession writes the whole session and refreshes its TTL.
func (a *RedisArchive) SaveSession(ctx context.Context, s domain.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	updated := s.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, a.key(s.ID), data, a.ttl)
		pipe.ZAdd(ctx, a.indexKey(), redis.Z{Score: float64(updated.UnixMilli()), Member: s.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", s.ID, err)
	}
	return nil
}

// LoadSession returns the stored session or ErrNotFound.
func (a *RedisArchive) LoadSession(ctx context.Context, id string) (domain.Session, error) {
	data, err := a.rdb.Get(ctx, a.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to load session %s: %w", id, err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return domain.Session{}, fmt.Errorf("failed to unmarshal session %s: %w", id, err)
	}
	return s, nil
}

// ListSessions walks the index newest first, pruning ids whose value has
// expired.
func (a *RedisArchive) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := a.rdb.ZRevRange(ctx, a.indexKey(), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := make([]domain.SessionSummary, 0, len(ids))
	var stale []any
	for _, id := range ids {
		s, err := a.LoadSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s.Summary(false))
	}
	if len(stale) > 0 {
		if err := a.rdb.ZRem(ctx, a.indexKey(), stale...).Err(); err != nil {
			a.log.Warn().Err(err).Int("count", len(stale)).Msg("failed to prune expired sessions from index")
		}
	}
	return out, nil
}

// DeleteSession removes the value and its index entry.
func (a *RedisArchive) DeleteSession(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := a.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, a.key(id))
		pipe.ZRem(ctx, a.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete session %s: %w", id, err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the client.
func (a *RedisArchive) Close() error {
	return a.rdb.Close()
}

// Package session owns the set of live sessions and their conversation
// handlers.
package session

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/promptsmith/internal/conversation"
	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/i18n"
	"github.com/soyeahso/promptsmith/internal/logging"
	"github.com/soyeahso/promptsmith/internal/profile"
	"github.com/soyeahso/promptsmith/internal/store"
)

// ErrSessionNotFound is returned for ids the registry (and its archive)
// do not know.
var ErrSessionNotFound = errors.New("session not found")

const archiveTimeout = 5 * time.Second

// Options configures a Registry.
type Options struct {
	// Archive receives a copy of every mutation. Nil keeps sessions in
	// memory only.
	Archive store.Archive
	// Handler is the template for new conversation handlers. SessionID,
	// Profile and Transcript are filled in by the registry.
	Handler conversation.Options
	Log     *logging.Logger
	// Now is overridable for sweep tests.
	Now func() time.Time
}

type record struct {
	id        string
	status    domain.SessionStatus
	createdAt time.Time
	updatedAt time.Time
	messages  []domain.ChatMessage
	metadata  map[string]string
	profile   *profile.Profile
	handler   *conversation.Handler

	// version counts mutations under Registry.mu. saveMu orders archive
	// writes so a snapshot never replaces a newer one.
	version uint64
	saveMu  sync.Mutex
	saved   uint64
}

// pendingSave is a snapshot waiting to be archived.
type pendingSave struct {
	rec     *record
	version uint64
	snap    domain.Session
}

// capture must be called with Registry.mu held.
func (r *record) capture() pendingSave {
	r.version++
	return pendingSave{rec: r, version: r.version, snap: r.snapshot()}
}

func (r *record) snapshot() domain.Session {
	return domain.Session{
		ID:        r.id,
		Status:    r.status,
		CreatedAt: r.createdAt,
		UpdatedAt: r.updatedAt,
		Messages:  slices.Clone(r.messages),
		Profile:   r.profile.Snapshot(),
		Metadata:  maps.Clone(r.metadata),
	}
}

// Registry is the process-wide session table. One mutex guards the map
// and every record; it is never held across upstream calls or archive
// I/O.
type Registry struct {
	opts    Options
	archive store.Archive
	log     *logging.Logger
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*record
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Log == nil {
		opts.Log = logging.Nop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Handler.Log == nil {
		opts.Handler.Log = opts.Log
	}
	return &Registry{
		opts:     opts,
		archive:  opts.Archive,
		log:      opts.Log.Sub("session"),
		now:      opts.Now,
		sessions: make(map[string]*record),
	}
}

// CreateSession registers a new ACTIVE session with its opening system
// message and a fresh handler.
func (r *Registry) CreateSession() (domain.Session, *conversation.Handler) {
	now := r.now()
	rec := &record{
		id:        uuid.NewString(),
		status:    domain.StatusActive,
		createdAt: now,
		updatedAt: now,
		profile:   profile.New(),
	}
	rec.messages = []domain.ChatMessage{
		domain.NewMessage(domain.RoleSystem, i18n.For(r.opts.Handler.Language).T(i18n.MsgSessionStarted)),
	}

	hopts := r.opts.Handler
	hopts.SessionID = rec.id
	hopts.Profile = rec.profile
	hopts.Transcript = r
	rec.handler = conversation.New(hopts)

	r.mu.Lock()
	r.sessions[rec.id] = rec
	save := rec.capture()
	r.mu.Unlock()

	r.log.Info().Str("sessionId", rec.id).Msg("session created")
	r.persist(save)
	return save.snap, rec.handler
}

// Handler returns the live handler for id.
func (r *Registry) Handler(id string) (*conversation.Handler, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok || rec.handler == nil {
		return nil, false
	}
	return rec.handler, true
}

// RemoveHandler detaches and ends the session's handler. The session
// record stays until swept. Removing an unknown id is a no-op.
func (r *Registry) RemoveHandler(id string) {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	if !ok || rec.handler == nil {
		r.mu.Unlock()
		return
	}
	h := rec.handler
	rec.handler = nil
	rec.updatedAt = r.now()
	save := rec.capture()
	r.mu.Unlock()

	h.End()
	r.log.Debug().Str("sessionId", id).Msg("handler removed")
	r.persist(save)
}

// UpdateSession sets the session status.
func (r *Registry) UpdateSession(id string, status domain.SessionStatus) error {
	if !status.Valid() {
		return conversation.ErrInvalidTransition
	}
	return r.mutate(id, func(rec *record) { rec.status = status })
}

// AddMessage appends msg to the session transcript.
func (r *Registry) AddMessage(id string, msg domain.ChatMessage) error {
	return r.mutate(id, func(rec *record) { rec.messages = append(rec.messages, msg) })
}

// Messages returns a copy of the session transcript.
func (r *Registry) Messages(id string) ([]domain.ChatMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return slices.Clone(rec.messages), nil
}

// SetMetadata records a key on a live or archived session.
func (r *Registry) SetMetadata(ctx context.Context, id, key, value string) error {
	err := r.mutate(id, func(rec *record) {
		if rec.metadata == nil {
			rec.metadata = make(map[string]string)
		}
		rec.metadata[key] = value
	})
	if !errors.Is(err, ErrSessionNotFound) || r.archive == nil {
		return err
	}

	s, err := r.archive.LoadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return err
	}
	if s.Metadata == nil {
		s.Metadata = make(map[string]string)
	}
	s.Metadata[key] = value
	s.UpdatedAt = r.now()
	return r.archive.SaveSession(ctx, s)
}

// Session returns a snapshot of a live session, falling back to the
// archive.
func (r *Registry) Session(ctx context.Context, id string) (domain.Session, bool, error) {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	var snap domain.Session
	live := false
	if ok {
		snap = rec.snapshot()
		live = rec.handler != nil
	}
	r.mu.Unlock()
	if ok {
		return snap, live, nil
	}

	if r.archive == nil {
		return domain.Session{}, false, ErrSessionNotFound
	}
	s, err := r.archive.LoadSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, false, ErrSessionNotFound
	}
	return s, false, err
}

// List summarizes in-memory sessions plus up to limit archived ones,
// most recently updated first.
func (r *Registry) List(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	r.mu.Lock()
	out := make([]domain.SessionSummary, 0, len(r.sessions))
	seen := make(map[string]bool, len(r.sessions))
	for id, rec := range r.sessions {
		out = append(out, rec.snapshot().Summary(rec.handler != nil))
		seen[id] = true
	}
	r.mu.Unlock()

	if r.archive != nil {
		archived, err := r.archive.ListSessions(ctx, limit)
		if err != nil {
			return nil, err
		}
		for _, s := range archived {
			if !seen[s.ID] {
				out = append(out, s)
			}
		}
	}

	slices.SortFunc(out, func(a, b domain.SessionSummary) int { return b.UpdatedAt.Compare(a.UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Searcher is implemented by archives with full-text search.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]store.SearchHit, error)
}

// ErrSearchUnsupported is returned by Search when the archive cannot search.
var ErrSearchUnsupported = errors.New("session archive does not support search")

// Search queries archived message content.
func (r *Registry) Search(ctx context.Context, query string, limit int) ([]store.SearchHit, error) {
	s, ok := r.archive.(Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	return s.Search(ctx, query, limit)
}

// Len is the number of in-memory sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops handler-less sessions not updated within idle and returns
// how many were dropped. Archived copies are kept.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	var dropped []string
	for id, rec := range r.sessions {
		if rec.handler == nil && rec.updatedAt.Before(cutoff) {
			delete(r.sessions, id)
			dropped = append(dropped, id)
		}
	}
	r.mu.Unlock()

	if len(dropped) > 0 {
		r.log.Info().Int("count", len(dropped)).Dur("idle", idle).Msg("swept idle sessions")
	}
	return len(dropped)
}

// RunSweeper calls Sweep every interval until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, interval, idle time.Duration) {
	if interval <= 0 || idle <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(idle)
		}
	}
}

// Close ends every live handler and closes the archive.
func (r *Registry) Close() error {
	r.mu.Lock()
	var handlers []*conversation.Handler
	var saves []pendingSave
	for _, rec := range r.sessions {
		if rec.handler != nil {
			handlers = append(handlers, rec.handler)
			rec.handler = nil
			saves = append(saves, rec.capture())
		}
	}
	r.mu.Unlock()

	for _, h := range handlers {
		h.End()
	}
	for _, save := range saves {
		r.persist(save)
	}
	if r.archive != nil {
		return r.archive.Close()
	}
	return nil
}

func (r *Registry) mutate(id string, fn func(*record)) error {
	r.mu.Lock()
	rec, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return ErrSessionNotFound
	}
	fn(rec)
	rec.updatedAt = r.now()
	save := rec.capture()
	r.mu.Unlock()

	r.persist(save)
	return nil
}

// persist archives a captured snapshot unless a later one of the same
// session has already been written.
func (r *Registry) persist(p pendingSave) {
	if r.archive == nil {
		return
	}
	p.rec.saveMu.Lock()
	defer p.rec.saveMu.Unlock()
	if p.version <= p.rec.saved {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.archive.SaveSession(ctx, p.snap); err != nil {
		r.log.Warn().Err(err).Str("sessionId", p.snap.ID).Msg("failed to archive session")
		return
	}
	p.rec.saved = p.version
}

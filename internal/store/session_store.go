package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/soyeahso/promptsmith/internal/domain"
	"github.com/soyeahso/promptsmith/internal/profile"
)

// SQLiteArchive is an Archive backed by a SQLite database.
type SQLiteArchive struct {
	db *DB
}

// NewSQLiteArchive wraps an open database.
func NewSQLiteArchive(db *DB) *SQLiteArchive {
	return &SQLiteArchive{db: db}
}

// SearchHit is one message matching a full-text query.
type SearchHit struct {
	SessionID string             `json:"session_id"`
	Message   domain.ChatMessage `json:"message"`
	Rank      float64            `json:"rank"`
}

// SaveSession upserts the session row and appends messages not yet stored.
func (a *SQLiteArchive) SaveSession(ctx context.Context, s domain.Session) error {
	profileJSON, err := json.Marshal(s.Profile)
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}
	metadata := s.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	tx, err := a.db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, status, profile, metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   status = excluded.status,
		   profile = excluded.profile,
		   metadata = excluded.metadata,
		   updated_at = excluded.updated_at`,
		s.ID, string(s.Status), string(profileJSON), string(metaJSON),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", s.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR IGNORE INTO messages (session_id, msg_id, role, content, is_complete, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing message insert: %w", err)
	}
	defer stmt.Close()

	for _, m := range s.Messages {
		if _, err := stmt.ExecContext(ctx, s.ID, m.ID, string(m.Role), m.Content, m.IsComplete, formatTime(m.Timestamp)); err != nil {
			return fmt.Errorf("inserting message %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// LoadSession returns the archived session or ErrNotFound.
func (a *SQLiteArchive) LoadSession(ctx context.Context, id string) (domain.Session, error) {
	var (
		s                    domain.Session
		status               string
		profileJSON          string
		metaJSON             string
		createdAt, updatedAt string
	)
	err := a.db.sql.QueryRowContext(ctx,
		`SELECT id, status, profile, metadata, created_at, updated_at FROM sessions WHERE id = ?`, id,
	).Scan(&s.ID, &status, &profileJSON, &metaJSON, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("loading session %s: %w", id, err)
	}

	s.Status = domain.SessionStatus(status)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	if err := json.Unmarshal([]byte(profileJSON), &s.Profile); err != nil {
		a.db.log.Warn().Err(err).Str("sessionId", id).Msg("corrupt archived profile")
		s.Profile = profile.Snapshot{}
	}
	if err := json.Unmarshal([]byte(metaJSON), &s.Metadata); err != nil || len(s.Metadata) == 0 {
		s.Metadata = nil
	}

	s.Messages, err = a.loadMessages(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

// ListSessions returns the most recently updated sessions first.
func (a *SQLiteArchive) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := a.db.sql.QueryContext(ctx,
		`SELECT s.id, s.status, s.profile, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id)
		 FROM sessions s ORDER BY s.updated_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var out []domain.SessionSummary
	for rows.Next() {
		var (
			sum                  domain.SessionSummary
			status, profileJSON  string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&sum.ID, &status, &profileJSON, &createdAt, &updatedAt, &sum.MessageCount); err != nil {
			return nil, err
		}
		sum.Status = domain.SessionStatus(status)
		sum.CreatedAt = parseTime(createdAt)
		sum.UpdatedAt = parseTime(updatedAt)
		var snap profile.Snapshot
		if json.Unmarshal([]byte(profileJSON), &snap) == nil {
			sum.TraitCount = len(snap.Traits)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its messages.
func (a *SQLiteArchive) DeleteSession(ctx context.Context, id string) error {
	res, err := a.db.sql.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search runs a full-text query over archived message content.
func (a *SQLiteArchive) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := a.db.sql.QueryContext(ctx,
		`SELECT m.session_id, m.msg_id, m.role, m.content, m.is_complete, m.timestamp, f.rank
		 FROM messages_fts f
		 JOIN messages m ON m.seq = f.rowid
		 WHERE messages_fts MATCH ?
		 ORDER BY f.rank
		 LIMIT ?`, ftsQuery(query), limit)
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var (
			h    SearchHit
			role string
			ts   string
		)
		if err := rows.Scan(&h.SessionID, &h.Message.ID, &role, &h.Message.Content, &h.Message.IsComplete, &ts, &h.Rank); err != nil {
			return nil, err
		}
		h.Message.Role = domain.Role(role)
		h.Message.Timestamp = parseTime(ts)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Close closes the underlying database.
func (a *SQLiteArchive) Close() error {
	return a.db.Close()
}

func (a *SQLiteArchive) loadMessages(ctx context.Context, id string) ([]domain.ChatMessage, error) {
	rows, err := a.db.sql.QueryContext(ctx,
		`SELECT msg_id, role, content, is_complete, timestamp
		 FROM messages WHERE session_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("loading messages for %s: %w", id, err)
	}
	defer rows.Close()

	var msgs []domain.ChatMessage
	for rows.Next() {
		var (
			m    domain.ChatMessage
			role string
			ts   string
		)
		if err := rows.Scan(&m.ID, &role, &m.Content, &m.IsComplete, &ts); err != nil {
			return nil, err
		}
		m.Role = domain.Role(role)
		m.Timestamp = parseTime(ts)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ftsQuery quotes every term so user input cannot inject FTS5 syntax.
func ftsQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

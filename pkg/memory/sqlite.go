package memory

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/germanamz/egbert/pkg/store"
)

// SQLite has the same trigger semantics as Keyword but keeps memories in the
// bot database, returning at most Limit of the newest ones.
type SQLite struct {
	name    string
	db      *sql.DB
	trigger trigger
	limit   int
	log     *slog.Logger
	now     func() time.Time
}

// DefaultLimit caps how many memories SQLite returns.
const DefaultLimit = 50

// NewSQLite creates a database-backed manager. limit <= 0 selects DefaultLimit.
func NewSQLite(name string, db *store.DB, pattern string, limit int, log *slog.Logger) (*SQLite, error) {
	t, err := newTrigger(pattern)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if log == nil {
		log = slog.Default()
	}
	return &SQLite{name: name, db: db.SQL(), trigger: t, limit: limit, log: log, now: time.Now}, nil
}

// Name returns the manager's configured name.
func (s *SQLite) Name() string { return s.name }

// LoadRelevant returns the newest memories for the scope, oldest first.
func (s *SQLite) LoadRelevant(ctx context.Context, scope Scope, _ string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sender, text, created_at FROM (
			SELECT id, sender, text, created_at FROM memories
			WHERE manager = ? AND bot = ? AND social_context = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`,
		s.name, scope.Bot, scope.SocialContext, s.limit)
	if err != nil {
		return nil, fmt.Errorf("memory: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ms int64
		)
		if err := rows.Scan(&e.Sender, &e.Text, &ms); err != nil {
			return nil, fmt.Errorf("memory: scan: %w", err)
		}
		e.Date = time.UnixMilli(ms)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: rows: %w", err)
	}
	return out, nil
}

// MaybeSave inserts a memory when text matches the trigger pattern.
func (s *SQLite) MaybeSave(ctx context.Context, scope Scope, sender, text string) (bool, error) {
	mem, ok := s.trigger.extract(text)
	if !ok {
		return false, nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (manager, bot, social_context, chat_source, sender, text, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.name, scope.Bot, scope.SocialContext, scope.ChatSource, sender, mem, s.now().UnixMilli())
	if err != nil {
		return false, fmt.Errorf("memory: insert: %w", err)
	}

	s.log.InfoContext(ctx, "memory saved",
		"manager", s.name,
		"bot", scope.Bot,
		"social_context", scope.SocialContext,
	)
	return true, nil
}

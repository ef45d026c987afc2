package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hanamilabs/discord-modmail/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteArchive is an append-only log of ticket activity. It is never read
// back into the live ticket table.
type SQLiteArchive struct {
	db *sql.DB
}

func OpenArchive(path string) (*SQLiteArchive, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	archive := &SQLiteArchive{db: db}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

func (s *SQLiteArchive) Close() error {
	return s.db.Close()
}

func (s *SQLiteArchive) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ticket_events (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			user_id TEXT NOT NULL,
			channel_id TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ticket_events_user_idx ON ticket_events (user_id, created_at);`,
	}

	for _, query := range queries {
		if _, err := s.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("run migration query: %w", err)
		}
	}

	return nil
}

func (s *SQLiteArchive) RecordEvent(ctx context.Context, event domain.TicketEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ticket_events (id, kind, user_id, channel_id, actor_id, content, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?);
	`, event.ID, string(event.Kind), event.UserID, event.ChannelID, event.ActorID, event.Content, event.CreatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// ListEvents returns up to limit events for userID, oldest first.
func (s *SQLiteArchive) ListEvents(ctx context.Context, userID string, limit int) ([]domain.TicketEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, user_id, channel_id, actor_id, content, created_at
		FROM ticket_events
		WHERE user_id = ?
		ORDER BY created_at ASC, rowid ASC
		LIMIT ?;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.TicketEvent, 0)
	for rows.Next() {
		var event domain.TicketEvent
		var kind, createdAt string
		if err := rows.Scan(&event.ID, &kind, &event.UserID, &event.ChannelID, &event.ActorID, &event.Content, &createdAt); err != nil {
			return nil, err
		}
		event.Kind = domain.TicketEventKind(kind)
		parsed, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, err)
		}
		event.CreatedAt = parsed
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

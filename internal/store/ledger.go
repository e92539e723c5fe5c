// ABOUTME: SQLite message ledger using modernc.org/sqlite
// ABOUTME: Best-effort history of rendered and sent messages per conversation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Direction indicates whether a ledger entry was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Entry is one recorded message.
type Entry struct {
	ID              string
	ConversationKey string
	Direction       Direction
	Author          string
	Text            string
	CreatedAt       time.Time
}

// Ledger records message history in SQLite. All writes are best-effort
// from the caller's point of view: the Recorder methods log failures
// instead of returning them, so a broken ledger never blocks rendering.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenLedger opens (or creates) the ledger database at path. Parent
// directories are created if needed.
func OpenLedger(path string) (*Ledger, error) {
	logger := slog.Default().With("component", "ledger")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger database: %w", err)
	}

	// WAL keeps writes from stalling concurrent reads
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	l := &Ledger{db: db, logger: logger}
	if err := l.createSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id               TEXT PRIMARY KEY,
		conversation_key TEXT NOT NULL,
		direction        TEXT NOT NULL,
		author           TEXT NOT NULL,
		text             TEXT NOT NULL,
		created_at       TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation
		ON messages(conversation_key, created_at);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("creating ledger schema: %w", err)
	}
	return nil
}

// Record inserts one entry. An empty ID or CreatedAt is filled in.
func (l *Ledger) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_key, direction, author, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.ConversationKey, string(e.Direction), e.Author, e.Text, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording message: %w", err)
	}
	return nil
}

// Recent returns up to limit entries for a conversation, oldest first.
func (l *Ledger) Recent(ctx context.Context, conversationKey string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, conversation_key, direction, author, text, created_at
		 FROM (
			SELECT * FROM messages WHERE conversation_key = ?
			ORDER BY created_at DESC, id DESC LIMIT ?
		 ) ORDER BY created_at ASC, id ASC`,
		conversationKey, limit)
	if err != nil {
		return nil, fmt.Errorf("querying ledger: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var direction string
		if err := rows.Scan(&e.ID, &e.ConversationKey, &direction, &e.Author, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning ledger row: %w", err)
		}
		e.Direction = Direction(direction)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordInbound implements conversation.Recorder for received messages.
func (l *Ledger) RecordInbound(conversationKey, author, text string) {
	l.record(conversationKey, DirectionInbound, author, text)
}

// RecordOutbound implements conversation.Recorder for sent messages.
func (l *Ledger) RecordOutbound(conversationKey, author, text string) {
	l.record(conversationKey, DirectionOutbound, author, text)
}

// record writes with its own timeout context so a cancelled caller
// context cannot abort persistence mid-flight.
func (l *Ledger) record(conversationKey string, direction Direction, author, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := l.Record(ctx, Entry{
		ConversationKey: conversationKey,
		Direction:       direction,
		Author:          author,
		Text:            text,
	})
	if err != nil {
		l.logger.Error("ledger write failed",
			"conversation_key", conversationKey,
			"direction", direction,
			"error", err)
	}
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

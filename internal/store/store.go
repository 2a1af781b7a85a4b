package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a conversation does not exist
var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	pinned     INTEGER NOT NULL DEFAULT 0,
	order_rank REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_entries (
	id              TEXT PRIMARY KEY,
	conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	kind            TEXT NOT NULL,
	text            TEXT NOT NULL,
	translated_text TEXT,
	language        TEXT,
	created_at      INTEGER NOT NULL,
	metadata        TEXT
);

CREATE INDEX IF NOT EXISTS idx_entries_conversation_created
	ON conversation_entries(conversation_id, created_at);
`

// Store is the durable conversation log. Every operation runs under one
// mutex on one connection.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// lastStamp makes issued timestamps strictly increasing
	lastStamp int64
	now       func() time.Time
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One connection keeps in-memory databases alive and serializes writers
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// stamp returns a timestamp in unix nanoseconds strictly greater than any
// previously issued one. Callers hold s.mu.
func (s *Store) stamp() int64 {
	n := s.now().UnixNano()
	if n <= s.lastStamp {
		n = s.lastStamp + 1
	}
	s.lastStamp = n
	return n
}

// CreateConversation creates a conversation. A blank title becomes
// DefaultConversationTitle.
func (s *Store) CreateConversation(title string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultConversationTitle
	}

	ts := s.stamp()
	c := &Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: timeFromNanos(ts),
		UpdatedAt: timeFromNanos(ts),
		Pinned:    false,
		OrderRank: float64(ts / int64(time.Millisecond)),
	}

	_, err := s.db.Exec(`
		INSERT INTO conversations (id, title, created_at, updated_at, pinned, order_rank)
		VALUES (?, ?, ?, ?, 0, ?)
	`, c.ID, c.Title, ts, ts, c.OrderRank)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}

	return c, nil
}

// Conversation returns a conversation by id.
func (s *Store) Conversation(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, title, created_at, updated_at, pinned, order_rank
		FROM conversations
		WHERE id = ?
	`, id)

	c, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AppendEntry inserts an entry and bumps the parent conversation's
// updated_at in a single transaction.
func (s *Store) AppendEntry(e NewEntry) (*Entry, error) {
	if !e.Kind.Valid() {
		return nil, fmt.Errorf("invalid entry kind %q", e.Kind)
	}

	var metadata sql.NullString
	if len(e.Metadata) > 0 {
		raw, err := json.Marshal(e.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encode entry metadata: %w", err)
		}
		metadata = sql.NullString{String: string(raw), Valid: true}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	ts := s.stamp()

	res, err := tx.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, ts, e.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("touch conversation: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	entry := &Entry{
		ID:             uuid.NewString(),
		ConversationID: e.ConversationID,
		Kind:           e.Kind,
		Text:           e.Text,
		TranslatedText: e.TranslatedText,
		Language:       e.Language,
		CreatedAt:      timeFromNanos(ts),
		Metadata:       e.Metadata,
	}

	_, err = tx.Exec(`
		INSERT INTO conversation_entries
			(id, conversation_id, kind, text, translated_text, language, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.ConversationID, string(entry.Kind), entry.Text,
		nullString(entry.TranslatedText), nullString(entry.Language), ts, metadata)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit entry: %w", err)
	}

	return entry, nil
}

// ListConversations returns all conversations, pinned first, then by
// order_rank descending.
func (s *Store) ListConversations() ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at, pinned, order_rank
		FROM conversations
		ORDER BY pinned DESC, order_rank DESC, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, *c)
	}
	return conversations, rows.Err()
}

// EntriesForConversation returns a conversation's entries in persistence
// order. A limit of zero or less returns all entries.
func (s *Store) EntriesForConversation(conversationID string, limit int) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT id, conversation_id, kind, text, translated_text, language, created_at, metadata
		FROM conversation_entries
		WHERE conversation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`
	args := []any{conversationID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			kind       string
			translated sql.NullString
			language   sql.NullString
			createdAt  int64
			metadata   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &kind, &e.Text,
			&translated, &language, &createdAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}

		e.Kind = EntryKind(kind)
		e.CreatedAt = timeFromNanos(createdAt)
		if translated.Valid {
			e.TranslatedText = &translated.String
		}
		if language.Valid {
			e.Language = &language.String
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode entry metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// UpdateConversationTitle renames a conversation.
func (s *Store) UpdateConversationTitle(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultConversationTitle
	}
	return s.updateConversation(`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`, title, id)
}

// SetPinned pins or unpins a conversation.
func (s *Store) SetPinned(id string, pinned bool) error {
	return s.updateConversation(`UPDATE conversations SET pinned = ?, updated_at = ? WHERE id = ?`, boolToInt(pinned), id)
}

// UpdateOrderRank moves a conversation within its pinned group.
func (s *Store) UpdateOrderRank(id string, rank float64) error {
	return s.updateConversation(`UPDATE conversations SET order_rank = ?, updated_at = ? WHERE id = ?`, rank, id)
}

// updateConversation runs a single-row metadata update that also bumps updated_at
func (s *Store) updateConversation(query string, value any, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(query, value, s.stamp(), id)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	return requireRow(res)
}

// DeleteConversation deletes a conversation and, by cascade, its entries.
func (s *Store) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return requireRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*Conversation, error) {
	var (
		c         Conversation
		createdAt int64
		updatedAt int64
		pinned    int
	)
	if err := row.Scan(&c.ID, &c.Title, &createdAt, &updatedAt, &pinned, &c.OrderRank); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan conversation: %w", err)
	}
	c.CreatedAt = timeFromNanos(createdAt)
	c.UpdatedAt = timeFromNanos(updatedAt)
	c.Pinned = pinned != 0
	return &c, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func timeFromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

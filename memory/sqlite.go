package memory

import (
	"database/sql"
	"fmt"

	json "github.com/goccy/go-json"
	_ "github.com/mattn/go-sqlite3"

	"github.com/modelrelay/ag/messages"
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_session_id_id
	ON messages(session_id, id);

CREATE TABLE IF NOT EXISTS usage (
	session_id TEXT PRIMARY KEY,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	input_tokens_cached INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	reasoning_tokens INTEGER NOT NULL DEFAULT 0,
	token_cost REAL NOT NULL DEFAULT 0.0,
	tool_cost REAL NOT NULL DEFAULT 0.0,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

// SQLite is a durable store on a single SQLite database file. Reads go
// through an in-process Ephemeral clone populated on first miss; since
// sessions are append-only and this process is the only writer, the clone
// never needs invalidating.
type SQLite struct {
	db    *sql.DB
	cache *Ephemeral
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at path. Pass ":memory:"
// for a throwaway in-memory database.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open sqlite %s: %w", path, err)
	}
	// a single connection keeps :memory: databases coherent and serializes
	// writers
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: init schema: %w", err)
	}
	return &SQLite{db: db, cache: NewEphemeral()}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Messages returns the session's history, serving from the in-process clone
// when the session was already loaded.
func (s *SQLite) Messages(sessionID string) ([]messages.Message, error) {
	if cached, _ := s.cache.Messages(sessionID); len(cached) > 0 {
		return cached, nil
	}

	rows, err := s.db.Query(
		`SELECT payload FROM messages WHERE session_id = ? ORDER BY id ASC;`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("memory: load messages: %w", err)
	}
	defer rows.Close()

	var msgs []messages.Message
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("memory: scan message: %w", err)
		}
		msg, err := messages.Decode(payload)
		if err != nil {
			return nil, fmt.Errorf("memory: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("memory: load messages: %w", err)
	}

	if len(msgs) > 0 {
		// first read of this session, pull it into the clone together with
		// its usage
		usage, err := s.readUsage(sessionID)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Extend(sessionID, msgs, usage); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// Usage returns the session's accumulated usage, zero for unknown sessions.
func (s *SQLite) Usage(sessionID string) (messages.Usage, error) {
	// a recorded session always has input tokens, so a zero value means the
	// clone has not seen it yet
	if cached, _ := s.cache.Usage(sessionID); cached.InputTokens > 0 {
		return cached, nil
	}
	return s.readUsage(sessionID)
}

func (s *SQLite) readUsage(sessionID string) (messages.Usage, error) {
	var u messages.Usage
	err := s.db.QueryRow(
		`SELECT input_tokens, input_tokens_cached, output_tokens, reasoning_tokens, token_cost, tool_cost
		 FROM usage WHERE session_id = ?;`, sessionID).
		Scan(&u.InputTokens, &u.CachedInputTokens, &u.OutputTokens, &u.ReasoningTokens, &u.TokenCost, &u.ToolCost)
	if err == sql.ErrNoRows {
		return messages.Usage{}, nil
	}
	if err != nil {
		return messages.Usage{}, fmt.Errorf("memory: load usage: %w", err)
	}
	return u, nil
}

// Extend appends messages and adds usage in one transaction, then mirrors
// the append into the in-process clone.
func (s *SQLite) Extend(sessionID string, msgs []messages.Message, usage messages.Usage) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("memory: begin extend: %w", err)
	}
	defer tx.Rollback()

	insert, err := tx.Prepare(`INSERT INTO messages (session_id, payload) VALUES (?, ?);`)
	if err != nil {
		return fmt.Errorf("memory: prepare insert: %w", err)
	}
	defer insert.Close()

	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("memory: serialize message: %w", err)
		}
		if _, err := insert.Exec(sessionID, string(payload)); err != nil {
			return fmt.Errorf("memory: insert message: %w", err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO usage (session_id, input_tokens, input_tokens_cached, output_tokens, reasoning_tokens, token_cost, tool_cost)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id) DO UPDATE SET
			input_tokens = usage.input_tokens + excluded.input_tokens,
			input_tokens_cached = usage.input_tokens_cached + excluded.input_tokens_cached,
			output_tokens = usage.output_tokens + excluded.output_tokens,
			reasoning_tokens = usage.reasoning_tokens + excluded.reasoning_tokens,
			token_cost = usage.token_cost + excluded.token_cost,
			tool_cost = usage.tool_cost + excluded.tool_cost,
			created_at = excluded.created_at;`,
		sessionID, usage.InputTokens, usage.CachedInputTokens, usage.OutputTokens,
		usage.ReasoningTokens, usage.TokenCost, usage.ToolCost)
	if err != nil {
		return fmt.Errorf("memory: upsert usage: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("memory: commit extend: %w", err)
	}

	return s.cache.Extend(sessionID, msgs, usage)
}

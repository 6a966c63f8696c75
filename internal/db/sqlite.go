package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS exchanges (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    request_id TEXT NOT NULL DEFAULT '',
    op TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    outcome TEXT NOT NULL,
    status_code INTEGER NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL,
    prompt_tokens INTEGER,
    completion_tokens INTEGER,
    error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS exchanges_session_idx ON exchanges(session_id);`

// Exchange is one journaled backend call.
type Exchange struct {
	ID               int64     `json:"id"`
	SessionID        string    `json:"session_id"`
	RequestID        string    `json:"request_id"`
	Op               string    `json:"op"`
	Model            string    `json:"model,omitempty"`
	Outcome          string    `json:"outcome"`
	StatusCode       int       `json:"status_code,omitempty"`
	LatencyMS        int64     `json:"latency_ms"`
	PromptTokens     *int      `json:"prompt_tokens,omitempty"`
	CompletionTokens *int      `json:"completion_tokens,omitempty"`
	Error            string    `json:"error,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

func (db *Database) RecordExchange(ctx context.Context, ex *Exchange) error {
	query := `
        INSERT INTO exchanges (session_id, request_id, op, model, outcome, status_code,
            latency_ms, prompt_tokens, completion_tokens, error, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
        RETURNING id, created_at`

	err := db.db.QueryRowContext(ctx, query,
		ex.SessionID, ex.RequestID, ex.Op, ex.Model, ex.Outcome, ex.StatusCode,
		ex.LatencyMS, ex.PromptTokens, ex.CompletionTokens, ex.Error,
	).Scan(&ex.ID, &ex.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record exchange: %w", err)
	}
	return nil
}

// RecentExchanges returns up to limit exchanges, newest first.
// An empty sessionID matches every session.
func (db *Database) RecentExchanges(ctx context.Context, sessionID string, limit int) ([]Exchange, error) {
	query := `
        SELECT id, session_id, request_id, op, model, outcome, status_code,
            latency_ms, prompt_tokens, completion_tokens, error, created_at
        FROM exchanges
        WHERE (? = '' OR session_id = ?)
        ORDER BY id DESC
        LIMIT ?`

	rows, err := db.db.QueryContext(ctx, query, sessionID, sessionID, limit)
	if err != nil {
		return []Exchange{}, fmt.Errorf("failed to query exchanges: %w", err)
	}
	defer rows.Close()

	exchanges := make([]Exchange, 0)
	for rows.Next() {
		var ex Exchange
		var prompt, completion sql.NullInt64
		err := rows.Scan(&ex.ID, &ex.SessionID, &ex.RequestID, &ex.Op, &ex.Model, &ex.Outcome,
			&ex.StatusCode, &ex.LatencyMS, &prompt, &completion, &ex.Error, &ex.CreatedAt)
		if err != nil {
			return []Exchange{}, fmt.Errorf("failed to scan exchange: %w", err)
		}
		if prompt.Valid {
			n := int(prompt.Int64)
			ex.PromptTokens = &n
		}
		if completion.Valid {
			n := int(completion.Int64)
			ex.CompletionTokens = &n
		}
		exchanges = append(exchanges, ex)
	}
	return exchanges, rows.Err()
}

// DeleteSession drops every exchange recorded for sessionID.
func (db *Database) DeleteSession(ctx context.Context, sessionID string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM exchanges WHERE session_id = ?", sessionID); err != nil {
		return err
	}

	return tx.Commit()
}

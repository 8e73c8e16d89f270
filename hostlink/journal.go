package hostlink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/raezil/agentchat-go/agent"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS agent_errors (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	message      TEXT NOT NULL,
	raw_response TEXT,
	status       INTEGER NOT NULL DEFAULT 0,
	endpoint     TEXT NOT NULL,
	user_agent   TEXT NOT NULL,
	url          TEXT NOT NULL DEFAULT '',
	occurred_at  TIMESTAMPTZ NOT NULL,
	forwarded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	attempts     INTEGER NOT NULL DEFAULT 1
)`

// Journal is a forwarder that appends errors to a PostgreSQL table, for hosts
// that consume failures from a database rather than a webhook.
type Journal struct {
	conn *sql.DB
}

// OpenJournal connects to dsn, verifies connectivity and creates the table.
func OpenJournal(ctx context.Context, dsn string) (*Journal, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	conn.SetMaxOpenConns(4)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := conn.ExecContext(ctx, journalSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return &Journal{conn: conn}, nil
}

// Close closes the connection pool.
func (j *Journal) Close() error {
	return j.conn.Close()
}

// Forward records d. Re-sending the same error bumps its attempt count.
func (j *Journal) Forward(ctx context.Context, d agent.ErrorDetails) error {
	_, err := j.conn.ExecContext(ctx, `
		INSERT INTO agent_errors (id, kind, message, raw_response, status, endpoint, user_agent, url, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET attempts = agent_errors.attempts + 1, forwarded_at = now()`,
		d.ID, string(d.Kind), d.Message, d.RawResponse, d.Status, d.Endpoint, d.UserAgent, d.URL, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert agent error: %w", err)
	}
	return nil
}

// JournalEntry is a stored error with its delivery bookkeeping.
type JournalEntry struct {
	agent.ErrorDetails
	Attempts    int       `json:"attempts"`
	ForwardedAt time.Time `json:"forwarded_at"`
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.conn.QueryContext(ctx, `
		SELECT id, kind, message, raw_response, status, endpoint, user_agent, url, occurred_at, attempts, forwarded_at
		FROM agent_errors ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query agent errors: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		var kind string
		var raw sql.NullString
		if err := rows.Scan(&e.ID, &kind, &e.Message, &raw, &e.Status, &e.Endpoint, &e.UserAgent, &e.URL, &e.Timestamp, &e.Attempts, &e.ForwardedAt); err != nil {
			return nil, fmt.Errorf("scan agent error: %w", err)
		}
		e.Kind = agent.ErrorKind(kind)
		if raw.Valid {
			s := raw.String
			e.RawResponse = &s
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

package telemetry

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the telemetry_events table. Execute it via
// [PostgresSink.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS telemetry_events (
    id             BIGSERIAL PRIMARY KEY,
    session_id     TEXT NOT NULL,
    tenant_id      TEXT NOT NULL,
    kind           TEXT NOT NULL,
    parser_status  TEXT NOT NULL DEFAULT '',
    parser_reason  TEXT NOT NULL DEFAULT '',
    utterance      TEXT NOT NULL DEFAULT '',
    pii_redacted   BOOLEAN NOT NULL DEFAULT FALSE,
    occurred_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_telemetry_events_session ON telemetry_events(session_id);
CREATE INDEX IF NOT EXISTS idx_telemetry_events_tenant_time ON telemetry_events(tenant_id, occurred_at);
`

// DB is the database interface used by [PostgresSink]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresSink is a [Sink] appending events to PostgreSQL.
type PostgresSink struct {
	db DB
}

// Compile-time interface check.
var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink creates a sink using the given connection or pool.
// Call [PostgresSink.Migrate] before the first write.
func NewPostgresSink(db DB) *PostgresSink {
	return &PostgresSink{db: db}
}

// Migrate executes the [Schema] DDL, creating the telemetry_events table
// if it does not already exist.
func (s *PostgresSink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("telemetry: migrate: %w", err)
	}
	return nil
}

// Write implements Sink.
func (s *PostgresSink) Write(ctx context.Context, ev Event) error {
	const query = `
		INSERT INTO telemetry_events (
			session_id, tenant_id, kind, parser_status, parser_reason,
			utterance, pii_redacted, occurred_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`

	_, err := s.db.Exec(ctx, query,
		ev.SessionID, ev.TenantID, ev.Kind, ev.ParserStatus, ev.ParserReason,
		ev.Utterance, ev.PIIRedacted, ev.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("telemetry: insert event: %w", err)
	}
	return nil
}

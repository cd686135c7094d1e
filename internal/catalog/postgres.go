package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gopkg.in/yaml.v3"

	"github.com/voxterra/maitred/internal/normalize"
)

// Schema is the SQL DDL for the tenant and catalog tables. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS tenants (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    norm_rules    TEXT NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS catalog_items (
    tenant_id     TEXT NOT NULL REFERENCES tenants(id),
    item_id       TEXT NOT NULL,
    display_name  TEXT NOT NULL,
    aliases       TEXT[] NOT NULL DEFAULT '{}',
    is_category   BOOLEAN NOT NULL DEFAULT FALSE,
    parent_id     TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (tenant_id, item_id)
);
CREATE INDEX IF NOT EXISTS idx_catalog_items_parent ON catalog_items(tenant_id, parent_id);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// ErrTenantNotFound is returned when a tenant id has no row.
var ErrTenantNotFound = errors.New("catalog: tenant not found")

// Store loads immutable per-tenant data at session start.
type Store interface {
	// LoadSnapshot returns the validated catalog tree for a tenant.
	LoadSnapshot(ctx context.Context, tenantID string) (*Snapshot, error)

	// LoadRuleset returns the tenant's normalization rules, or the
	// built-in defaults when the tenant configured none.
	LoadRuleset(ctx context.Context, tenantID string) (normalize.Ruleset, error)
}

// PostgresStore is a [Store] backed by a PostgreSQL database.
type PostgresStore struct {
	db DB
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a new [PostgresStore] using the given
// connection or pool. Call [PostgresStore.Migrate] before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL, creating the tenant and catalog
// tables if they do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// LoadSnapshot implements Store.
func (s *PostgresStore) LoadSnapshot(ctx context.Context, tenantID string) (*Snapshot, error) {
	const query = `
		SELECT item_id, display_name, aliases, is_category, parent_id
		FROM catalog_items
		WHERE tenant_id = $1
		ORDER BY item_id`

	rows, err := s.db.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("catalog: load snapshot: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.DisplayName, &it.Aliases, &it.IsCategory, &it.ParentID); err != nil {
			return nil, fmt.Errorf("catalog: scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: load snapshot: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("catalog: tenant %q has no catalog items", tenantID)
	}

	snap, err := NewSnapshot(items)
	if err != nil {
		return nil, fmt.Errorf("catalog: tenant %q: %w", tenantID, err)
	}
	return snap, nil
}

// LoadRuleset implements Store. Rules are stored as a YAML document in
// the tenants table; an empty document yields the built-in defaults.
func (s *PostgresStore) LoadRuleset(ctx context.Context, tenantID string) (normalize.Ruleset, error) {
	const query = `SELECT norm_rules FROM tenants WHERE id = $1`

	var doc string
	err := s.db.QueryRow(ctx, query, tenantID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return normalize.Ruleset{}, fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
	}
	if err != nil {
		return normalize.Ruleset{}, fmt.Errorf("catalog: load ruleset: %w", err)
	}

	if doc == "" {
		return normalize.DefaultRuleset(), nil
	}

	var rs normalize.Ruleset
	if err := yaml.Unmarshal([]byte(doc), &rs); err != nil {
		return normalize.Ruleset{}, fmt.Errorf("catalog: tenant %q rules: %w", tenantID, err)
	}
	return rs, nil
}

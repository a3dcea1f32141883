package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is an optional write-behind mirror of the bridge engine's
// checkpoint and audit trail. The engine's AppState is the source of
// truth and is never read from this store at runtime; Repository exists
// so an operator can inspect history and resume roughly where indexing
// left off after a restart, without requiring Postgres to be available
// for the engine to make progress.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(dbURL string) (*Repository, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse db url: %w", err)
	}

	if maxConnStr := os.Getenv("DB_MAX_OPEN_CONNS"); maxConnStr != "" {
		if maxConn, err := strconv.Atoi(maxConnStr); err == nil {
			config.MaxConns = int32(maxConn)
		}
	}
	if minConnStr := os.Getenv("DB_MAX_IDLE_CONNS"); minConnStr != "" {
		if minConn, err := strconv.Atoi(minConnStr); err == nil {
			config.MinConns = int32(minConn)
		}
	}

	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	if config.ConnConfig.RuntimeParams == nil {
		config.ConnConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := config.ConnConfig.RuntimeParams["statement_timeout"]; !ok {
		config.ConnConfig.RuntimeParams["statement_timeout"] = getEnvDefault("DB_STATEMENT_TIMEOUT", "300000")
	}

	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	repo := &Repository{db: pool}
	if err := repo.ensureSchema(context.Background()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure bridge mirror schema: %w", err)
	}
	return repo, nil
}

func getEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func (r *Repository) Close() {
	r.db.Close()
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS bridge_checkpoints (
			name        TEXT PRIMARY KEY,
			last_block  BIGINT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS bridge_audit_log (
			id          BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			reason      TEXT NOT NULL,
			kind        TEXT,
			operations  JSONB NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_bridge_audit_log_occurred_at
			ON bridge_audit_log (occurred_at DESC);
	`
	_, err := r.db.Exec(ctx, ddl)
	return err
}

// SaveCheckpoint records the latest block the engine has fully indexed
// under name (e.g. "bridge_loop"). Best-effort: failures are logged by
// the caller, never fatal to the engine.
func (r *Repository) SaveCheckpoint(ctx context.Context, name string, lastBlock uint64) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO bridge_checkpoints (name, last_block, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET last_block = EXCLUDED.last_block, updated_at = NOW()
	`, name, lastBlock)
	return err
}

// LoadCheckpoint returns the last mirrored block for name, or 0 if none
// has been recorded yet.
func (r *Repository) LoadCheckpoint(ctx context.Context, name string) (uint64, error) {
	var block uint64
	err := r.db.QueryRow(ctx, "SELECT last_block FROM bridge_checkpoints WHERE name = $1", name).Scan(&block)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return block, err
}

// MirrorAudit writes one audit entry to the durable trail. ops is
// marshaled to JSON by the caller so this package stays free of a
// dependency on the bridge package's operation types.
func (r *Repository) MirrorAudit(ctx context.Context, at time.Time, reason, kind string, ops interface{}) error {
	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("marshal audit operations: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO bridge_audit_log (occurred_at, reason, kind, operations)
		VALUES ($1, $2, $3, $4)
	`, at, reason, kind, payload)
	return err
}

// AuditRow is one row returned by RecentAudit.
type AuditRow struct {
	OccurredAt time.Time       `json:"occurred_at"`
	Reason     string          `json:"reason"`
	Kind       string          `json:"kind"`
	Operations json.RawMessage `json:"operations"`
}

// RecentAudit returns the most recent limit audit entries, newest first.
func (r *Repository) RecentAudit(ctx context.Context, limit int) ([]AuditRow, error) {
	rows, err := r.db.Query(ctx, `
		SELECT occurred_at, reason, kind, operations
		FROM bridge_audit_log
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditRow
	for rows.Next() {
		var row AuditRow
		var kind *string
		if err := rows.Scan(&row.OccurredAt, &row.Reason, &kind, &row.Operations); err != nil {
			return nil, err
		}
		if kind != nil {
			row.Kind = *kind
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

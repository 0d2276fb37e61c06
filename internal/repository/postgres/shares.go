package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/socialkit/crosspost/internal/domain/social"
	"github.com/socialkit/crosspost/internal/repository"
)

const sharesSchema = `
CREATE TABLE IF NOT EXISTS share_records (
	id            BIGINT PRIMARY KEY,
	network       TEXT NOT NULL,
	text          TEXT NOT NULL,
	status        TEXT NOT NULL,
	external_ref  TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS share_records_network_created_idx
	ON share_records (network, created_at DESC);
`

// ShareRepo persists the publish audit log in Postgres.
type ShareRepo struct {
	pool *pgxpool.Pool
	node *snowflake.Node
}

var _ repository.ShareRecordRepo = (*ShareRepo)(nil)

// NewShareRepo constructs the repository.
func NewShareRepo(pool *pgxpool.Pool, node *snowflake.Node) *ShareRepo {
	return &ShareRepo{pool: pool, node: node}
}

// EnsureSchema creates the audit table when missing.
func (r *ShareRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, sharesSchema); err != nil {
		return fmt.Errorf("ensure share_records schema: %w", err)
	}
	return nil
}

// Create inserts a new record in pending state.
func (r *ShareRepo) Create(ctx context.Context, record social.ShareRecord) (social.ShareRecord, error) {
	now := time.Now().UTC()
	record.ID = r.node.Generate().Int64()
	record.CreatedAt = now
	record.UpdatedAt = now
	if record.Status == "" {
		record.Status = social.SharePending
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO share_records (id, network, text, status, external_ref, error_message, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		record.ID, record.Network, record.Text, record.Status,
		record.ExternalRef, record.ErrorMessage, record.CreatedAt, record.UpdatedAt,
	)
	if err != nil {
		return social.ShareRecord{}, fmt.Errorf("insert share record: %w", err)
	}
	return record, nil
}

// SetStatus transitions a record and stores the publish outcome.
func (r *ShareRepo) SetStatus(ctx context.Context, id int64, status social.ShareStatus, externalRef, errorMessage string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE share_records
		 SET status = $2, external_ref = $3, error_message = $4, updated_at = $5
		 WHERE id = $1`,
		id, status, externalRef, errorMessage, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update share record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update share record %d: %w", id, pgx.ErrNoRows)
	}
	return nil
}

// ListRecent returns the newest records for a network.
func (r *ShareRepo) ListRecent(ctx context.Context, network social.Network, limit int) ([]social.ShareRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, network, text, status, external_ref, error_message, created_at, updated_at
		 FROM share_records
		 WHERE network = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		network, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list share records: %w", err)
	}
	defer rows.Close()

	var records []social.ShareRecord
	for rows.Next() {
		var rec social.ShareRecord
		if err := rows.Scan(&rec.ID, &rec.Network, &rec.Text, &rec.Status,
			&rec.ExternalRef, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan share record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("iterate share records: %w", err)
	}
	return records, nil
}

package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresLogger persists audit records in PostgreSQL.
type PostgresLogger struct {
	db *sql.DB
}

// NewPostgresLogger creates a PostgreSQL-backed audit logger.
func NewPostgresLogger(db *sql.DB) *PostgresLogger {
	return &PostgresLogger{db: db}
}

// Migrate creates the audit_log table if it doesn't exist.
func (l *PostgresLogger) Migrate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_log (
			id          BIGSERIAL PRIMARY KEY,
			type        VARCHAR(64)  NOT NULL,
			actor       VARCHAR(128) NOT NULL,
			target      VARCHAR(192) NOT NULL,
			action      VARCHAR(32)  NOT NULL,
			meta        JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_target
			ON audit_log (target, created_at DESC);
	`)
	return err
}

func (l *PostgresLogger) Log(ctx context.Context, rec *Record) error {
	metaJSON, err := json.Marshal(rec.Meta)
	if err != nil {
		return fmt.Errorf("marshal audit meta: %w", err)
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO audit_log (type, actor, target, action, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.Type, rec.Actor, rec.Target, rec.Action, metaJSON)
	if err != nil {
		return fmt.Errorf("record audit entry: %w", err)
	}
	return nil
}

func (l *PostgresLogger) Query(ctx context.Context, target string, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, type, actor, target, action, meta, created_at
		FROM audit_log
		WHERE ($1 = '' OR target = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, target, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Record
	for rows.Next() {
		var rec Record
		var metaJSON []byte
		var createdAt time.Time
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Actor, &rec.Target, &rec.Action, &metaJSON, &createdAt); err != nil {
			continue
		}
		rec.CreatedAt = createdAt
		_ = json.Unmarshal(metaJSON, &rec.Meta)
		result = append(result, &rec)
	}
	return result, rows.Err()
}

package risk

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LegionofMany/blockpages-risk/internal/idgen"
	"github.com/LegionofMany/blockpages-risk/internal/wallets"
)

// PostgresStore persists overrides and history in PostgreSQL. The
// override upsert and its history entry share one serializable
// transaction so a failure partway leaves neither persisted.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed override/history store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the risk tables if they don't exist. The goose
// migrations in migrations/ are authoritative for deployments.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS risk_overrides (
			chain       VARCHAR(32)  NOT NULL,
			address     VARCHAR(128) NOT NULL,
			score       INTEGER CHECK (score >= 0 AND score <= 100),
			category    VARCHAR(8) CHECK (category IN ('green', 'yellow', 'red', 'black')),
			updated_by  VARCHAR(128) NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chain, address)
		);

		CREATE TABLE IF NOT EXISTS risk_history (
			id          VARCHAR(32) PRIMARY KEY,
			chain       VARCHAR(32)  NOT NULL,
			address     VARCHAR(128) NOT NULL,
			score       INTEGER,
			category    VARCHAR(8),
			note        TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_risk_history_wallet
			ON risk_history (chain, address, created_at);
	`)
	return err
}

func (s *PostgresStore) GetOverride(ctx context.Context, chain, address string) (*Override, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT chain, address, score, category, updated_by, created_at, updated_at
		FROM risk_overrides
		WHERE chain = $1 AND address = $2
	`, wallets.NormalizeChain(chain), wallets.NormalizeAddress(address))

	return scanOverride(row)
}

func (s *PostgresStore) SetOverride(ctx context.Context, ov *Override, entry *HistoryEntry) (*Override, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, fmt.Errorf("begin override write: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chain := wallets.NormalizeChain(ov.Chain)
	address := wallets.NormalizeAddress(ov.Address)

	var score *int
	if ov.Score != nil {
		clamped := Clamp(*ov.Score)
		score = &clamped
	}
	var category *string
	if ov.Category != nil {
		c := string(*ov.Category)
		category = &c
	}

	// COALESCE keeps the stored value for fields absent from this call.
	row := tx.QueryRowContext(ctx, `
		INSERT INTO risk_overrides (chain, address, score, category, updated_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (chain, address) DO UPDATE SET
			score      = COALESCE(EXCLUDED.score, risk_overrides.score),
			category   = COALESCE(EXCLUDED.category, risk_overrides.category),
			updated_by = EXCLUDED.updated_by,
			updated_at = NOW()
		RETURNING chain, address, score, category, updated_by, created_at, updated_at
	`, chain, address, score, category, ov.UpdatedBy)

	stored, err := scanOverride(row)
	if err != nil {
		return nil, err
	}

	if err := appendHistoryTx(ctx, tx, chain, address, entry); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit override write: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) ClearOverride(ctx context.Context, chain, address string, entry *HistoryEntry) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin override clear: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chain = wallets.NormalizeChain(chain)
	address = wallets.NormalizeAddress(address)

	res, err := tx.ExecContext(ctx, `
		DELETE FROM risk_overrides WHERE chain = $1 AND address = $2
	`, chain, address)
	if err != nil {
		return fmt.Errorf("clear override: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrOverrideNotFound
	}

	if err := appendHistoryTx(ctx, tx, chain, address, entry); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit override clear: %w", err)
	}
	return nil
}

func (s *PostgresStore) History(ctx context.Context, chain, address string, limit int) ([]*HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	// Most recent N, returned oldest first.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chain, address, score, category, note, created_at FROM (
			SELECT id, chain, address, score, category, note, created_at
			FROM risk_history
			WHERE chain = $1 AND address = $2
			ORDER BY created_at DESC
			LIMIT $3
		) recent
		ORDER BY created_at ASC
	`, wallets.NormalizeChain(chain), wallets.NormalizeAddress(address), limit)
	if err != nil {
		return nil, fmt.Errorf("query risk history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*HistoryEntry
	for rows.Next() {
		var e HistoryEntry
		var score sql.NullInt64
		var category sql.NullString
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Chain, &e.Address, &score, &category, &e.Note, &createdAt); err != nil {
			continue
		}
		if score.Valid {
			v := int(score.Int64)
			e.Score = &v
		}
		if category.Valid {
			c := Category(category.String)
			e.Category = &c
		}
		e.Date = createdAt
		result = append(result, &e)
	}
	return result, rows.Err()
}

func appendHistoryTx(ctx context.Context, tx *sql.Tx, chain, address string, entry *HistoryEntry) error {
	id := entry.ID
	if id == "" {
		id = idgen.WithPrefix("rh_")
	}
	date := entry.Date
	if date.IsZero() {
		date = time.Now()
	}
	var score *int
	if entry.Score != nil {
		v := Clamp(*entry.Score)
		score = &v
	}
	var category *string
	if entry.Category != nil {
		c := string(*entry.Category)
		category = &c
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO risk_history (id, chain, address, score, category, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, id, chain, address, score, category, entry.Note, date)
	if err != nil {
		return fmt.Errorf("append risk history: %w", err)
	}
	return nil
}

func scanOverride(row *sql.Row) (*Override, error) {
	var ov Override
	var score sql.NullInt64
	var category sql.NullString
	var createdAt, updatedAt time.Time

	err := row.Scan(&ov.Chain, &ov.Address, &score, &category, &ov.UpdatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOverrideNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan override: %w", err)
	}
	if score.Valid {
		v := int(score.Int64)
		ov.Score = &v
	}
	if category.Valid {
		c := Category(category.String)
		ov.Category = &c
	}
	ov.CreatedAt = createdAt
	ov.UpdatedAt = updatedAt
	return &ov, nil
}

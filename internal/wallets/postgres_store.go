package wallets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists wallet records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed wallet store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallets table if it doesn't exist. The goose
// migrations in migrations/ are authoritative; this exists so the server
// can bootstrap without a separate migrate step in development.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			chain        VARCHAR(32)  NOT NULL,
			address      VARCHAR(128) NOT NULL,
			flags        JSONB NOT NULL DEFAULT '[]',
			suspicious   BOOLEAN NOT NULL DEFAULT FALSE,
			blacklisted  BOOLEAN NOT NULL DEFAULT FALSE,
			tx_count     BIGINT NOT NULL DEFAULT 0,
			kyc_status   VARCHAR(16) NOT NULL DEFAULT 'none',
			trust_score  INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (chain, address)
		);

		CREATE INDEX IF NOT EXISTS idx_wallets_blacklisted
			ON wallets (blacklisted) WHERE blacklisted;
	`)
	return err
}

const walletColumns = `chain, address, flags, suspicious, blacklisted, tx_count, kyc_status, trust_score, created_at, updated_at`

func (s *PostgresStore) FindOne(ctx context.Context, chain, address string) (*Wallet, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE chain = $1 AND address = $2
	`, NormalizeChain(chain), NormalizeAddress(address))
	return scanWallet(row)
}

func (s *PostgresStore) Find(ctx context.Context, q Query) ([]*Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE 1=1`
	var args []any
	if q.Chain != "" {
		args = append(args, NormalizeChain(q.Chain))
		query += fmt.Sprintf(" AND chain = $%d", len(args))
	}
	if q.Blacklisted != nil {
		args = append(args, *q.Blacklisted)
		query += fmt.Sprintf(" AND blacklisted = $%d", len(args))
	}
	if q.Suspicious != nil {
		args = append(args, *q.Suspicious)
		query += fmt.Sprintf(" AND suspicious = $%d", len(args))
	}
	query += " ORDER BY updated_at DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list wallets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			continue
		}
		result = append(result, w)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Upsert(ctx context.Context, w *Wallet) error {
	flagsJSON, err := json.Marshal(w.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO wallets (chain, address, flags, suspicious, blacklisted, tx_count, kyc_status, trust_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (chain, address) DO UPDATE SET
			flags = EXCLUDED.flags,
			suspicious = EXCLUDED.suspicious,
			blacklisted = EXCLUDED.blacklisted,
			tx_count = EXCLUDED.tx_count,
			kyc_status = EXCLUDED.kyc_status,
			trust_score = EXCLUDED.trust_score,
			updated_at = NOW()
	`,
		NormalizeChain(w.Chain),
		NormalizeAddress(w.Address),
		flagsJSON,
		w.Suspicious,
		w.Blacklisted,
		w.TxCount,
		w.KYCStatus,
		w.TrustScore,
	)
	if err != nil {
		return fmt.Errorf("upsert wallet: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, chain, address string, fn func(*Wallet) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		SELECT `+walletColumns+`
		FROM wallets
		WHERE chain = $1 AND address = $2
		FOR UPDATE
	`, NormalizeChain(chain), NormalizeAddress(address))
	w, err := scanWallet(row)
	if err != nil {
		return err
	}

	if err := fn(w); err != nil {
		return err
	}

	flagsJSON, err := json.Marshal(w.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE wallets
		SET flags = $3, suspicious = $4, blacklisted = $5, tx_count = $6,
		    kyc_status = $7, trust_score = $8, updated_at = NOW()
		WHERE chain = $1 AND address = $2
	`,
		NormalizeChain(chain),
		NormalizeAddress(address),
		flagsJSON,
		w.Suspicious,
		w.Blacklisted,
		w.TxCount,
		w.KYCStatus,
		w.TrustScore,
	)
	if err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*Wallet, error) {
	var w Wallet
	var flagsJSON []byte
	var createdAt, updatedAt time.Time

	err := row.Scan(
		&w.Chain, &w.Address, &flagsJSON, &w.Suspicious, &w.Blacklisted,
		&w.TxCount, &w.KYCStatus, &w.TrustScore, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan wallet: %w", err)
	}
	w.CreatedAt = createdAt
	w.UpdatedAt = updatedAt
	_ = json.Unmarshal(flagsJSON, &w.Flags)
	return &w, nil
}

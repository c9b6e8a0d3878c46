package oidc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/lib/pq"
)

// pgUniqueViolation is the SQLSTATE for a primary key conflict.
const pgUniqueViolation = "23505"

// PostgresStore keeps codes in a Postgres table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens connString, pings it and creates the schema.
func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(parseEnvInt("CODE_DB_MAX_OPEN_CONNS", 5))
	db.SetMaxIdleConns(parseEnvInt("CODE_DB_MAX_IDLE_CONNS", 2))
	db.SetConnMaxLifetime(parseDurationEnv("CODE_DB_CONN_MAX_LIFETIME", 5*time.Minute))

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// SaveAuthCode inserts the code; a duplicate hash yields ErrCodeExists.
func (s *PostgresStore) SaveAuthCode(ctx context.Context, code *AuthCode) error {
	if timeUntil(code) < 0 {
		return fmt.Errorf("save auth code: already expired")
	}
	query := `
		INSERT INTO govbr_auth_codes
			(code_hash, client_id, redirect_uri, state, subject, name, email, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`
	_, err := s.db.ExecContext(ctx, query,
		code.CodeHash,
		code.ClientID,
		code.RedirectURI,
		code.State,
		code.Subject,
		code.Name,
		code.Email,
		code.CreatedAt,
		nullableTime(code.ExpiresAt),
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return ErrCodeExists
	}
	return err
}

// ConsumeAuthCode retrieves and deletes an auth code inside one
// transaction, holding a row lock so a concurrent consumer blocks and then
// finds nothing.
func (s *PostgresStore) ConsumeAuthCode(ctx context.Context, codeHash string) (code *AuthCode, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var rec AuthCode
	var expiresAt sql.NullTime
	query := `
		SELECT code_hash, client_id, redirect_uri, state, subject, name, email, created_at, expires_at
		FROM govbr_auth_codes
		WHERE code_hash = $1
		FOR UPDATE
	`
	err = tx.QueryRowContext(ctx, query, codeHash).Scan(
		&rec.CodeHash,
		&rec.ClientID,
		&rec.RedirectURI,
		&rec.State,
		&rec.Subject,
		&rec.Name,
		&rec.Email,
		&rec.CreatedAt,
		&expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCodeNotFound
	}
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		rec.ExpiresAt = expiresAt.Time
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM govbr_auth_codes WHERE code_hash = $1`, codeHash); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS govbr_auth_codes (
		code_hash TEXT PRIMARY KEY,
		client_id VARCHAR(255) NOT NULL,
		redirect_uri TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT '',
		subject VARCHAR(255) NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		expires_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_govbr_auth_codes_expires ON govbr_auth_codes(expires_at);
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func parseEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

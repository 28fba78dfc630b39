package sql

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/keyauthd/keyauthd/internal/domain"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// isUniqueViolation checks if an error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	// SQLite
	if strings.Contains(errStr, "UNIQUE constraint failed") {
		return true
	}
	// PostgreSQL
	if strings.Contains(errStr, "duplicate key value violates unique constraint") {
		return true
	}
	return false
}

// wrapUniqueError converts UNIQUE violations to domain.ErrDuplicateKey.
func wrapUniqueError(err error) error {
	if isUniqueViolation(err) {
		return domain.ErrDuplicateKey
	}
	return err
}

// Store implements the storage.Store interface using SQL.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New creates a new SQL store and runs pending migrations.
func New(driver, dsn string) (*Store, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(driver); err != nil {
		return nil, fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

const keyColumns = `id, key, name, active, key_type, uses, created_at, last_used_at, activated_at, expires_at, device_id, device_name`

func (s *Store) CreateKey(ctx context.Context, record *domain.KeyRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keys (`+keyColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		record.ID, record.Key, record.Name, record.Active, record.Type,
		record.Uses, record.CreatedAt, record.LastUsedAt, record.ActivatedAt,
		record.ExpiresAt, record.DeviceID, record.DeviceName)
	return wrapUniqueError(err)
}

func (s *Store) GetKey(ctx context.Context, key string) (*domain.KeyRecord, error) {
	var record domain.KeyRecord
	err := s.db.GetContext(ctx, &record,
		`SELECT `+keyColumns+` FROM keys WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateKey applies mutate inside a transaction. On PostgreSQL the row is
// locked with FOR UPDATE; SQLite's single-writer transaction gives the same
// per-key serialization. If mutate returns an error the transaction is
// rolled back and that error is returned unchanged.
func (s *Store) UpdateKey(ctx context.Context, key string, mutate func(*domain.KeyRecord) error) (*domain.KeyRecord, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `SELECT ` + keyColumns + ` FROM keys WHERE key = $1`
	if s.driver == "postgres" {
		query += ` FOR UPDATE`
	}

	var record domain.KeyRecord
	err = tx.GetContext(ctx, &record, query, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := mutate(&record); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE keys SET name = $1, active = $2, key_type = $3, uses = $4,
		        last_used_at = $5, activated_at = $6, expires_at = $7,
		        device_id = $8, device_name = $9
		 WHERE key = $10`,
		record.Name, record.Active, record.Type, record.Uses,
		record.LastUsedAt, record.ActivatedAt, record.ExpiresAt,
		record.DeviceID, record.DeviceName, key)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) DeleteKey(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM keys WHERE key = $1`, key)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context) ([]*domain.KeyRecord, error) {
	var records []*domain.KeyRecord
	err := s.db.SelectContext(ctx, &records,
		`SELECT `+keyColumns+` FROM keys ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Store) CountKeys(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM keys`)
	return count, err
}

package audit

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/report-sentinel/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_records (
	id                      BIGSERIAL PRIMARY KEY,
	request_id              TEXT        NOT NULL,
	status                  TEXT        NOT NULL,
	provider                TEXT        NOT NULL DEFAULT '',
	blocked                 BOOLEAN     NOT NULL DEFAULT FALSE,
	overridden              BOOLEAN     NOT NULL DEFAULT FALSE,
	reasons                 TEXT[]      NOT NULL DEFAULT '{}',
	added_numbers           TEXT[]      NOT NULL DEFAULT '{}',
	removed_numbers         TEXT[]      NOT NULL DEFAULT '{}',
	laterality_changed      BOOLEAN     NOT NULL DEFAULT FALSE,
	new_medical_keywords    TEXT[]      NOT NULL DEFAULT '{}',
	date_count              INTEGER     NOT NULL DEFAULT 0,
	id_count                INTEGER     NOT NULL DEFAULT 0,
	name_count              INTEGER     NOT NULL DEFAULT 0,
	missing_placeholders    TEXT[]      NOT NULL DEFAULT '{}',
	duplicated_placeholders TEXT[]      NOT NULL DEFAULT '{}',
	unknown_placeholders    TEXT[]      NOT NULL DEFAULT '{}',
	error                   TEXT        NOT NULL DEFAULT '',
	duration_ms             BIGINT      NOT NULL DEFAULT 0,
	created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_records_request_id ON audit_records (request_id);
CREATE INDEX IF NOT EXISTS idx_audit_records_created_at ON audit_records (created_at DESC);`

const selectColumns = `id, request_id, status, provider, blocked, overridden, reasons,
	added_numbers, removed_numbers, laterality_changed, new_medical_keywords,
	date_count, id_count, name_count, missing_placeholders, duplicated_placeholders,
	unknown_placeholders, error, duration_ms, created_at`

// PostgresStore persists audit records with PostgreSQL
type PostgresStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewPostgresStore connects, configures the pool and ensures the schema
func NewPostgresStore(cfg config.AuditConfig, logger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	store := NewPostgresStoreWithDB(db, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	logger.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

// NewPostgresStoreWithDB wraps an existing connection
func NewPostgresStoreWithDB(db *sqlx.DB, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the audit table and its indexes if missing
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Record inserts r and fills in its ID and creation time
func (s *PostgresStore) Record(ctx context.Context, r *Record) error {
	query := `
		INSERT INTO audit_records (
			request_id, status, provider, blocked, overridden, reasons,
			added_numbers, removed_numbers, laterality_changed, new_medical_keywords,
			date_count, id_count, name_count, missing_placeholders, duplicated_placeholders,
			unknown_placeholders, error, duration_ms
		) VALUES (
			:request_id, :status, :provider, :blocked, :overridden, :reasons,
			:added_numbers, :removed_numbers, :laterality_changed, :new_medical_keywords,
			:date_count, :id_count, :name_count, :missing_placeholders, :duplicated_placeholders,
			:unknown_placeholders, :error, :duration_ms
		)
		RETURNING id, created_at`

	normalizeArrays(r)

	rows, err := s.db.NamedQueryContext(ctx, query, r)
	if err != nil {
		s.logger.Error("Failed to insert audit record",
			zap.Error(err),
			zap.String("request_id", r.RequestID))
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	defer rows.Close()

	if rows.Next() {
		if err := rows.Scan(&r.ID, &r.CreatedAt); err != nil {
			return fmt.Errorf("failed to read inserted audit record: %w", err)
		}
	}
	return rows.Err()
}

// ListByRequest returns the records of a request, oldest first
func (s *PostgresStore) ListByRequest(ctx context.Context, requestID string) ([]Record, error) {
	var records []Record
	query := `SELECT ` + selectColumns + ` FROM audit_records WHERE request_id = $1 ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &records, query, requestID); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}

// Recent returns up to limit records, newest first
func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []Record
	query := `SELECT ` + selectColumns + ` FROM audit_records ORDER BY id DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent audit records: %w", err)
	}
	return records, nil
}

// Since returns all records created at or after t, oldest first
func (s *PostgresStore) Since(ctx context.Context, t time.Time) ([]Record, error) {
	var records []Record
	query := `SELECT ` + selectColumns + ` FROM audit_records WHERE created_at >= $1 ORDER BY id ASC`
	if err := s.db.SelectContext(ctx, &records, query, t); err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	return records, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// normalizeArrays stores nil slices as empty arrays to satisfy NOT NULL
func normalizeArrays(r *Record) {
	for _, a := range []*[]string{
		(*[]string)(&r.Reasons),
		(*[]string)(&r.AddedNumbers),
		(*[]string)(&r.RemovedNumbers),
		(*[]string)(&r.NewMedicalKeywords),
		(*[]string)(&r.MissingPlaceholders),
		(*[]string)(&r.DuplicatedPlaceholders),
		(*[]string)(&r.UnknownPlaceholders),
	} {
		if *a == nil {
			*a = []string{}
		}
	}
}

// maskDatabaseURL hides the password of a connection URL for logging
func maskDatabaseURL(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil || u.User == nil {
		return databaseURL
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

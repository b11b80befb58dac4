package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dotframe/snapbooth/internal/domain"
	_ "github.com/lib/pq"
)

const recordSchemaSQL = `
CREATE TABLE IF NOT EXISTS capture_records (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	status TEXT NOT NULL,
	filter_id TEXT NOT NULL,
	object_key TEXT NOT NULL,
	processed_key TEXT NOT NULL DEFAULT '',
	public_url TEXT NOT NULL DEFAULT '',
	width INTEGER NOT NULL DEFAULT 0,
	height INTEGER NOT NULL DEFAULT 0,
	bytes INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

type PostgresRecordStore struct {
	db *sql.DB
}

func NewPostgresRecordStore(ctx context.Context, dsn string) (*PostgresRecordStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresRecordStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresRecordStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, recordSchemaSQL); err != nil {
		return fmt.Errorf("ensure capture_records schema: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) Close() error {
	return s.db.Close()
}

func (s *PostgresRecordStore) Create(ctx context.Context, rec domain.CaptureRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO capture_records
		 (id, session_id, status, filter_id, object_key, processed_key, public_url, width, height, bytes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID,
		rec.SessionID,
		rec.Status,
		rec.FilterID,
		rec.ObjectKey,
		rec.ProcessedKey,
		rec.PublicURL,
		rec.Width,
		rec.Height,
		rec.Bytes,
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert capture record: %w", err)
	}

	return nil
}

func (s *PostgresRecordStore) Get(ctx context.Context, id string) (domain.CaptureRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, session_id, status, filter_id, object_key, processed_key, public_url, width, height, bytes, created_at, updated_at
		 FROM capture_records
		 WHERE id = $1`,
		id,
	)

	var rec domain.CaptureRecord
	if err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.Status,
		&rec.FilterID,
		&rec.ObjectKey,
		&rec.ProcessedKey,
		&rec.PublicURL,
		&rec.Width,
		&rec.Height,
		&rec.Bytes,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		if err == sql.ErrNoRows {
			return domain.CaptureRecord{}, false, nil
		}
		return domain.CaptureRecord{}, false, fmt.Errorf("query capture record: %w", err)
	}

	return rec, true, nil
}

func (s *PostgresRecordStore) UpdateStatus(ctx context.Context, id, status string) (domain.CaptureRecord, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE capture_records
		 SET status = $1, updated_at = $2
		 WHERE id = $3`,
		status,
		now,
		id,
	)
	if err != nil {
		return domain.CaptureRecord{}, fmt.Errorf("update capture record status: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresRecordStore) MarkRendered(ctx context.Context, id, processedKey string) (domain.CaptureRecord, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE capture_records
		 SET status = $1, processed_key = $2, updated_at = $3
		 WHERE id = $4`,
		domain.RecordStatusRendered,
		processedKey,
		now,
		id,
	)
	if err != nil {
		return domain.CaptureRecord{}, fmt.Errorf("mark capture record rendered: %w", err)
	}

	return s.mustGet(ctx, id)
}

func (s *PostgresRecordStore) mustGet(ctx context.Context, id string) (domain.CaptureRecord, error) {
	rec, ok, err := s.Get(ctx, id)
	if err != nil {
		return domain.CaptureRecord{}, err
	}
	if !ok {
		return domain.CaptureRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

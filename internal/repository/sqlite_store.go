package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"notes-sync-server/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS notes (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	tags         TEXT NOT NULL DEFAULT '[]',
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	deleted      INTEGER NOT NULL DEFAULT 0
);
`

// SQLiteStore persists records in a single notes table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer; one connection avoids SQLITE_BUSY churn.
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate is idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("migrate notes table: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*domain.NoteRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, tags, content, content_hash, created_at, updated_at, deleted
		 FROM notes WHERE id = ?`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeErr("get", id, err)
	}
	return rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *domain.NoteRecord) error {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return storeErr("put", rec.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO notes (id, title, tags, content, content_hash, created_at, updated_at, deleted)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		 title = excluded.title, tags = excluded.tags, content = excluded.content,
		 content_hash = excluded.content_hash, created_at = excluded.created_at,
		 updated_at = excluded.updated_at, deleted = excluded.deleted`,
		rec.ID, rec.Title, string(tagsJSON), rec.Content, rec.ContentHash,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt), rec.Deleted,
	)
	if err != nil {
		return storeErr("put", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]*domain.NoteRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, tags, content, content_hash, created_at, updated_at, deleted
		 FROM notes ORDER BY id`)
	if err != nil {
		return nil, storeErr("list", "", err)
	}
	defer rows.Close()

	var out []*domain.NoteRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("list", "", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("list", "", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.NoteRecord, error) {
	var (
		rec                  domain.NoteRecord
		tagsJSON             string
		createdAt, updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.Title, &tagsJSON, &rec.Content, &rec.ContentHash,
		&createdAt, &updatedAt, &rec.Deleted); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tagsJSON), &rec.Tags); err != nil {
		return nil, fmt.Errorf("decode tags for %s: %w", rec.ID, err)
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at for %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at for %s: %w", rec.ID, err)
	}
	return &rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

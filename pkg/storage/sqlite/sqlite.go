package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rexliu/idelink/pkg/core"
)

// Store owns the open journal database for a profile.
type Store struct {
	db   *sql.DB
	path string
}

// Path returns the underlying SQLite file path.
func (s *Store) Path() string {
	return s.path
}

// Open initializes a SQLite database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Init ensures pragmas and schema are configured.
func (s *Store) Init(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("nil store")
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, stmt := range pragmas {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply pragma %q: %w", stmt, err)
		}
	}
	return s.applySchema(ctx)
}

func (s *Store) applySchema(ctx context.Context) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR IGNORE INTO meta(key,value) VALUES ('schemaVersion','1');`,
		`CREATE TABLE IF NOT EXISTS opens (
			id TEXT PRIMARY KEY,
			file_path TEXT NOT NULL,
			line INTEGER NOT NULL DEFAULT 0,
			col INTEGER NOT NULL DEFAULT 0,
			focus INTEGER NOT NULL DEFAULT 0,
			source_ide TEXT NOT NULL DEFAULT '',
			source_pid INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL,
			error TEXT,
			received_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_opens_received ON opens(received_at);`,
		`CREATE INDEX IF NOT EXISTS idx_opens_file ON opens(file_path);`,
	}
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Record stores one served open request. It satisfies core.Journal.
func (s *Store) Record(ctx context.Context, rec core.OpenRecord) error {
	if rec.ID == "" {
		rec.ID = core.NewTraceID()
	}
	if rec.ReceivedAt == 0 {
		rec.ReceivedAt = time.Now().UnixMilli()
	}
	var errText *string
	if rec.Error != "" {
		errText = &rec.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opens(id, file_path, line, col, focus, source_ide, source_pid, success, error, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`, rec.ID, rec.FilePath, rec.Line, rec.Column, boolInt(rec.Focus), rec.SourceIDE, rec.SourcePID,
		boolInt(rec.Success), errText, rec.ReceivedAt)
	if err != nil {
		return fmt.Errorf("record open %s: %w", rec.FilePath, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]core.OpenRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, line, col, focus, source_ide, source_pid, success, error, received_at
		FROM opens
		ORDER BY received_at DESC, id DESC
		LIMIT ?;
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []core.OpenRecord
	for rows.Next() {
		var (
			rec     core.OpenRecord
			focus   int
			success int
			errText *string
		)
		if err := rows.Scan(&rec.ID, &rec.FilePath, &rec.Line, &rec.Column, &focus, &rec.SourceIDE,
			&rec.SourcePID, &success, &errText, &rec.ReceivedAt); err != nil {
			return nil, err
		}
		rec.Focus = focus != 0
		rec.Success = success != 0
		if errText != nil {
			rec.Error = *errText
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Prune deletes records received before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM opens WHERE received_at < ?;`, cutoff.UnixMilli())
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO meta(key,value) VALUES ('lastPrune', ?);`,
		fmt.Sprint(time.Now().UnixMilli())); err != nil {
		tx.Rollback()
		return 0, err
	}
	return n, tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

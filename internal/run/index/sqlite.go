package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndex stores the run index in an embedded SQLite database,
// grounded on the teacher's internal/task/repository.SQLiteRepository:
// a single-writer connection pool and an idempotent initSchema.
type SQLiteIndex struct {
	db *sql.DB
}

// NewSQLiteIndex opens (creating if necessary) a SQLite-backed index.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	idx := &SQLiteIndex{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize sqlite index schema: %w", err)
	}
	return idx, nil
}

func (idx *SQLiteIndex) initSchema() error {
	_, err := idx.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		program_name TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		closed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_runs_start_time ON runs(start_time);
	`)
	return err
}

func (idx *SQLiteIndex) Upsert(ctx context.Context, rec Record) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO runs (uuid, name, program_name, start_time, closed)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(uuid) DO UPDATE SET name=excluded.name, program_name=excluded.program_name,
			start_time=excluded.start_time, closed=excluded.closed
	`, rec.UUID, rec.Name, rec.ProgramName, rec.StartTime, boolToInt(rec.Closed))
	return err
}

func (idx *SQLiteIndex) Delete(ctx context.Context, uuid string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM runs WHERE uuid = ?`, uuid)
	return err
}

func (idx *SQLiteIndex) List(ctx context.Context) ([]Record, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT uuid, name, program_name, start_time, closed FROM runs ORDER BY start_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		var closed int
		if err := rows.Scan(&rec.UUID, &rec.Name, &rec.ProgramName, &rec.StartTime, &closed); err != nil {
			return nil, err
		}
		rec.Closed = closed != 0
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (idx *SQLiteIndex) Close() error { return idx.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

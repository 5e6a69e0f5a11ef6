package index

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresIndex stores the run index in PostgreSQL via pgx's
// database/sql driver, grounded on the teacher's internal/db.OpenPostgres
// helper (plain database/sql over the pgx stdlib adapter, pooled with
// SetMaxOpenConns/SetMaxIdleConns).
type PostgresIndex struct {
	db *sql.DB
}

// NewPostgresIndex opens a pooled connection and ensures the schema
// exists.
func NewPostgresIndex(dsn string) (*PostgresIndex, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres index: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres index: %w", err)
	}

	idx := &PostgresIndex{db: db}
	if err := idx.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize postgres index schema: %w", err)
	}
	return idx, nil
}

func (idx *PostgresIndex) initSchema() error {
	_, err := idx.db.Exec(`
	CREATE TABLE IF NOT EXISTS runs (
		uuid TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		program_name TEXT NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		closed BOOLEAN NOT NULL DEFAULT FALSE
	);
	CREATE INDEX IF NOT EXISTS idx_runs_start_time ON runs(start_time);
	`)
	return err
}

func (idx *PostgresIndex) Upsert(ctx context.Context, rec Record) error {
	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO runs (uuid, name, program_name, start_time, closed)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (uuid) DO UPDATE SET name=$2, program_name=$3, start_time=$4, closed=$5
	`, rec.UUID, rec.Name, rec.ProgramName, rec.StartTime, rec.Closed)
	return err
}

func (idx *PostgresIndex) Delete(ctx context.Context, uuid string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM runs WHERE uuid = $1`, uuid)
	return err
}

func (idx *PostgresIndex) List(ctx context.Context) ([]Record, error) {
	rows, err := idx.db.QueryContext(ctx, `SELECT uuid, name, program_name, start_time, closed FROM runs ORDER BY start_time DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.UUID, &rec.Name, &rec.ProgramName, &rec.StartTime, &rec.Closed); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (idx *PostgresIndex) Close() error { return idx.db.Close() }

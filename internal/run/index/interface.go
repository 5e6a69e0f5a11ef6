// Package index implements the optional secondary metadata index over
// historical runs (uuid, name, program_name, start_time, closed), used so
// a UI with many historical runs can list/search without deserializing
// every run from the log. It is grounded on the teacher's
// internal/task/repository interface+memory+sqlite triad, generalized
// with a postgres backend (via jackc/pgx/v5's database/sql driver) to
// give every SQL dependency named in the teacher's go.mod a home. The
// index is written-through by internal/run.Store and is never the
// system of record: the in-memory Store and the run log remain
// authoritative, per §4.2 and §4.8 of the design.
package index

import (
	"context"
	"time"
)

// Record is the queryable projection of a Run kept in the index.
type Record struct {
	UUID        string
	Name        string
	ProgramName string
	StartTime   time.Time
	Closed      bool
}

// Index is implemented by the memory, sqlite and postgres backends,
// selected via Config.Index.Driver.
type Index interface {
	Upsert(ctx context.Context, rec Record) error
	Delete(ctx context.Context, uuid string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Package runlog implements the external log-persistence contract of
// §4.8: a directory of files keyed by run uuid where save(run_bytes)
// and load(run_uuid) -> bytes suffice. It is not append-only: saving a
// uuid that already has a file replaces that file. Grounded on the teacher's
// SQLiteRepository's pattern of a small dedicated type owning exactly
// one resource (there: *sql.DB; here: a directory), but backed by plain
// files since §4.8 specifies a directory of per-run files, not a
// database.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"
)

// Log is a directory of per-run files, each the exact byte sequence
// produced by (*run.Store).Export for that run.
type Log struct {
	dir string
}

// Open ensures dir exists and returns a Log rooted at it.
func Open(dir string) (*Log, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	return &Log{dir: dir}, nil
}

func (l *Log) pathFor(runUUID string) string {
	return filepath.Join(l.dir, runUUID+".json")
}

// Save writes runBytes as the file for runUUID, replacing any prior
// content. Writes are atomic via a temp-file rename so a crash mid-write
// never leaves a truncated run file.
func (l *Log) Save(runUUID string, runBytes []byte) error {
	final := l.pathFor(runUUID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, runBytes, 0644); err != nil {
		return fmt.Errorf("failed to write run log entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("failed to finalize run log entry: %w", err)
	}
	return nil
}

// Load reads back the bytes previously saved for runUUID.
func (l *Log) Load(runUUID string) ([]byte, error) {
	data, err := os.ReadFile(l.pathFor(runUUID))
	if err != nil {
		return nil, fmt.Errorf("failed to load run log entry: %w", err)
	}
	return data, nil
}

// List returns the run uuids currently present in the log.
func (l *Log) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list run log directory: %w", err)
	}
	var uuids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".json" {
			continue
		}
		uuids = append(uuids, name[:len(name)-len(".json")])
	}
	return uuids, nil
}

package runlog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if err := log.Save("run-1", []byte(`{"uuid":"run-1"}`)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := log.Load("run-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if string(data) != `{"uuid":"run-1"}` {
		t.Fatalf("unexpected content: %s", data)
	}
}

func TestSaveLeavesNoTempFileOnSuccess(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := log.Save("run-1", []byte("{}")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "run-1.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected no leftover temp file")
	}
}

func TestListReturnsKnownRunUUIDs(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = log.Save("run-1", []byte("{}"))
	_ = log.Save("run-2", []byte("{}"))

	ids, err := log.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 run ids, got %d: %v", len(ids), ids)
	}
}

func TestLoadMissingRunErrors(t *testing.T) {
	dir := t.TempDir()
	log, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := log.Load("does-not-exist"); err == nil {
		t.Fatalf("expected an error loading an unknown run")
	}
}

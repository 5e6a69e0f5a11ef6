package index

import (
	"context"
	"testing"
	"time"
)

func TestMemoryIndexUpsertListDelete(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	rec := Record{UUID: "r1", Name: "demo-1", ProgramName: "demo", StartTime: time.Now().UTC()}
	if err := idx.Upsert(ctx, rec); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	list, err := idx.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].UUID != "r1" {
		t.Fatalf("expected one record r1, got %+v", list)
	}

	rec.Closed = true
	if err := idx.Upsert(ctx, rec); err != nil {
		t.Fatalf("re-upsert: %v", err)
	}
	list, _ = idx.List(ctx)
	if len(list) != 1 || !list[0].Closed {
		t.Fatalf("expected upsert to update in place, got %+v", list)
	}

	if err := idx.Delete(ctx, "r1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ = idx.List(ctx)
	if len(list) != 0 {
		t.Fatalf("expected empty index after delete, got %+v", list)
	}
}

package run

import (
	"context"
	"os"
	"testing"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/run/index"
	"github.com/agentbreak/coordinator/internal/runlog"
	"github.com/agentbreak/coordinator/pkg/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "runlog-test-*")
	if err != nil {
		t.Fatalf("mkdtemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	log, err := runlog.Open(dir)
	if err != nil {
		t.Fatalf("open runlog: %v", err)
	}
	return New(log, index.NewMemoryIndex(), nil, "1.0.0", logger.Default())
}

func TestOpenRunAssignsUniqueNames(t *testing.T) {
	s := newTestStore(t)
	r1 := s.OpenRun("demo")
	s.CloseActive("done")
	r2 := s.OpenRun("demo")

	if r1.Name == r2.Name {
		t.Fatalf("expected distinct run names, got %q twice", r1.Name)
	}
}

func TestAttachEventRequiresActiveRun(t *testing.T) {
	s := newTestStore(t)
	err := s.AttachEvent(&model.Event{EventID: "e1", EventType: model.EventDebugMessage})
	if !coorderrors.Is(err, coorderrors.NoActiveRun) {
		t.Fatalf("expected NO_ACTIVE_RUN, got %v", err)
	}
}

func TestAttachBreakpointUnknownEvent(t *testing.T) {
	s := newTestStore(t)
	s.OpenRun("demo")
	err := s.AttachBreakpoint(context.Background(), &model.Breakpoint{UUID: "bp-1", EventID: "missing"})
	if !coorderrors.Is(err, coorderrors.UnknownEvent) {
		t.Fatalf("expected UNKNOWN_EVENT, got %v", err)
	}
}

func TestAttachBreakpointDefaultsModifiedData(t *testing.T) {
	s := newTestStore(t)
	s.OpenRun("demo")
	evt := &model.Event{EventID: "e1", EventType: model.EventLLMQuery}
	if err := s.AttachEvent(evt); err != nil {
		t.Fatalf("attach event: %v", err)
	}

	bp := &model.Breakpoint{UUID: "bp-1", EventID: "e1", OriginalData: model.TextPayload("hello")}
	if err := s.AttachBreakpoint(context.Background(), bp); err != nil {
		t.Fatalf("attach breakpoint: %v", err)
	}
	if bp.ModifiedData != bp.OriginalData {
		t.Fatalf("expected modified_data to default to original_data")
	}
}

func TestCloseActiveSynthesizesTerminalBreakpoint(t *testing.T) {
	s := newTestStore(t)
	r := s.OpenRun("demo")

	closed, bp := s.CloseActive("agent disconnected")
	if closed == nil || closed.UUID != r.UUID {
		t.Fatalf("expected the active run to be closed")
	}
	if !closed.Closed {
		t.Fatalf("expected Closed=true")
	}
	if bp == nil || bp.Phase != model.PhaseMessage {
		t.Fatalf("expected a message-phase terminal breakpoint")
	}
	if s.Active() != nil {
		t.Fatalf("expected no active run after close")
	}
	if len(s.History()) != 1 {
		t.Fatalf("expected one historical run, got %d", len(s.History()))
	}
}

func TestCloseActiveNoActiveRunReturnsNil(t *testing.T) {
	s := newTestStore(t)
	closed, bp := s.CloseActive("reason")
	if closed != nil || bp != nil {
		t.Fatalf("expected nil, nil when there is no active run")
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	s := newTestStore(t)
	r := s.OpenRun("demo")
	s.CloseActive("done")

	data, err := s.Export(r.UUID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	s2 := newTestStore(t)
	imported, err := s2.Import(data)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if imported.UUID != r.UUID {
		t.Fatalf("expected re-imported run to keep its uuid")
	}
	if !imported.Closed {
		t.Fatalf("expected imported run to be marked closed")
	}
}

func TestImportRejectsVersionMismatch(t *testing.T) {
	s := newTestStore(t)
	bad := `{"uuid":"r1","name":"demo","server_version":"0.0.1"}`
	_, err := s.Import([]byte(bad))
	if !coorderrors.Is(err, coorderrors.VersionMismatch) {
		t.Fatalf("expected VERSION_MISMATCH, got %v", err)
	}
}

func TestDeleteRejectsActiveRun(t *testing.T) {
	s := newTestStore(t)
	r := s.OpenRun("demo")
	err := s.Delete(r.UUID)
	if !coorderrors.Is(err, coorderrors.ActiveRun) {
		t.Fatalf("expected ACTIVE_RUN, got %v", err)
	}
}

func TestRenameDeduplicatesAgainstOtherRuns(t *testing.T) {
	s := newTestStore(t)
	r1 := s.OpenRun("demo")
	s.CloseActive("done")
	r2 := s.OpenRun("demo")
	s.CloseActive("done")

	if err := s.Rename(r2.UUID, r1.Name); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if r2.Name == r1.Name {
		t.Fatalf("expected rename to suffix on collision, both runs named %q", r1.Name)
	}
}

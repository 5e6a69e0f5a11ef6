// Package run implements the in-memory aggregate of all known runs (§4.2
// of the design): attaching events, breakpoints and commits, indexing
// events by identifier, persisting closed runs to the log, and
// reconstructing runs from exported bytes. It is grounded on the
// teacher's internal/task/repository pattern (an interface plus an
// in-memory map-backed implementation guarded by a mutex) generalized to
// a single in-process aggregate rather than a pluggable storage backend,
// since §4.2 specifies an in-memory store with log-backed persistence of
// closed runs, not a queryable database of its own.
package run

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/run/index"
	"github.com/agentbreak/coordinator/internal/runlog"
	"github.com/agentbreak/coordinator/pkg/model"
)

// Summarizer is the narrow interface the store needs from the summarizer
// adapter (§4.3); it is satisfied by *summarizer.Adapter without an
// import cycle.
type Summarizer interface {
	Summarize(ctx context.Context, run *model.Run, bp *model.Breakpoint) (string, bool)
}

// Store is the run store of §4.2.
type Store struct {
	mu sync.Mutex

	active     *model.Run
	history    []*model.Run // newest first
	byUUID     map[string]*model.Run
	eventIndex map[string]map[string]*model.Event // run uuid -> event_id -> event

	log        *runlog.Log
	index      index.Index
	summarizer Summarizer
	version    string
	logger     *logger.Logger
}

// New creates an empty Store.
func New(log *runlog.Log, idx index.Index, summarizer Summarizer, serverVersion string, lg *logger.Logger) *Store {
	return &Store{
		byUUID:     make(map[string]*model.Run),
		eventIndex: make(map[string]map[string]*model.Event),
		log:        log,
		index:      idx,
		summarizer: summarizer,
		version:    serverVersion,
		logger:     lg,
	}
}

// Active returns the current active run, or nil.
func (s *Store) Active() *model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// History returns all closed runs, newest first.
func (s *Store) History() []*model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Run, len(s.history))
	copy(out, s.history)
	return out
}

// OpenRun creates a new active Run. Callers (the controller) are
// responsible for closing any existing active run first; OpenRun itself
// does not check, since spec.md's PROGRAM_STARTED handler decides the
// AGENT_PROTOCOL policy around a pre-existing active run.
func (s *Store) OpenRun(programName string) *model.Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := s.uniqueNameLocked(defaultRunName(programName))
	r := &model.Run{
		UUID:          uuid.New().String(),
		Name:          name,
		ProgramName:   programName,
		StartTime:     time.Now().UTC(),
		ServerVersion: s.version,
	}
	s.active = r
	s.byUUID[r.UUID] = r
	s.eventIndex[r.UUID] = make(map[string]*model.Event)
	return r
}

// AttachEvent appends event to the active run and updates its secondary
// index. Returns NO_ACTIVE_RUN if there is none.
func (s *Store) AttachEvent(event *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return coorderrors.New(coorderrors.NoActiveRun, "no active run to attach event to")
	}
	s.active.Events = append(s.active.Events, event)
	s.eventIndex[s.active.UUID][event.EventID] = event
	return nil
}

// AttachBreakpoint locates event by event_id in the active run, appends
// bp to it, and fills bp.Summary via the summarizer if it is empty.
// Returns UNKNOWN_EVENT if the event id is absent.
func (s *Store) AttachBreakpoint(ctx context.Context, bp *model.Breakpoint) error {
	s.mu.Lock()
	if s.active == nil {
		s.mu.Unlock()
		return coorderrors.New(coorderrors.NoActiveRun, "no active run to attach breakpoint to")
	}
	evt, ok := s.eventIndex[s.active.UUID][bp.EventID]
	if !ok {
		s.mu.Unlock()
		return coorderrors.New(coorderrors.UnknownEvent, fmt.Sprintf("breakpoint references unknown event %q", bp.EventID))
	}
	bp.ModifiedData = bp.OriginalData
	evt.Breakpoints = append(evt.Breakpoints, bp)
	run := s.active
	s.mu.Unlock()

	if bp.Summary == "" && s.summarizer != nil {
		if text, ok := s.summarizer.Summarize(ctx, run, bp); ok {
			s.mu.Lock()
			bp.Summary = text
			s.mu.Unlock()
		}
	}
	return nil
}

// AttachCommit appends commit to the active run.
func (s *Store) AttachCommit(commit *model.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return coorderrors.New(coorderrors.NoActiveRun, "no active run to attach commit to")
	}
	s.active.Commits = append(s.active.Commits, commit)
	return nil
}

// CloseActive synthesizes a terminal PROGRAM_FINISHED event carrying a
// message-phase breakpoint with reason, persists the run to the log, and
// moves it to history. Returns the closed run and the synthesized
// breakpoint (so the controller can forward it to the UI as a new
// message), or nil if there was no active run.
func (s *Store) CloseActive(reason string) (*model.Run, *model.Breakpoint) {
	s.mu.Lock()
	run := s.active
	if run == nil {
		s.mu.Unlock()
		return nil, nil
	}

	now := time.Now().UTC()
	evt := &model.Event{
		EventID:   uuid.New().String(),
		EventType: model.EventProgramFinished,
		Payload:   model.TextPayload(reason),
		SentAt:    now,
	}
	bp := &model.Breakpoint{
		UUID:         uuid.New().String(),
		EventID:      evt.EventID,
		Phase:        model.PhaseMessage,
		OriginalData: model.TextPayload(reason),
		ModifiedData: model.TextPayload(reason),
		Timestamp:    now,
	}
	evt.Breakpoints = append(evt.Breakpoints, bp)
	run.Events = append(run.Events, evt)
	run.Closed = true

	s.active = nil
	s.history = append([]*model.Run{run}, s.history...)
	delete(s.eventIndex, run.UUID)
	s.mu.Unlock()

	s.persist(run)
	return run, bp
}

func (s *Store) persist(run *model.Run) {
	data, err := s.Export(run.UUID)
	if err != nil {
		s.logger.Error("failed to export run for persistence", zap.String("run", run.UUID), zap.Error(err))
		return
	}
	if err := s.log.Save(run.UUID, data); err != nil {
		s.logger.Error("failed to persist run", zap.String("run", run.UUID), zap.Error(coorderrors.Wrap(coorderrors.Persistence, "log save failed", err)))
	}
	if s.index != nil {
		if err := s.index.Upsert(context.Background(), toIndexRecord(run)); err != nil {
			s.logger.Warn("failed to upsert run index record", zap.String("run", run.UUID), zap.Error(err))
		}
	}
}

// Export produces a deterministic, self-describing serialization of the
// named run (active or historical).
func (s *Store) Export(runUUID string) ([]byte, error) {
	s.mu.Lock()
	run, ok := s.byUUID[runUUID]
	s.mu.Unlock()
	if !ok {
		return nil, coorderrors.New(coorderrors.UnknownEvent, fmt.Sprintf("unknown run %q", runUUID))
	}
	return json.MarshalIndent(run, "", "  ")
}

// Import deserializes bytes and validates server_version; on success the
// run is inserted into history (it is never the active run).
func (s *Store) Import(data []byte) (*model.Run, error) {
	var r model.Run
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, coorderrors.Wrap(coorderrors.Parse, "malformed run export", err)
	}
	if r.ServerVersion != s.version {
		return nil, coorderrors.New(coorderrors.VersionMismatch, fmt.Sprintf("run server_version %q does not match core version %q", r.ServerVersion, s.version))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	r.Name = s.uniqueNameLocked(r.Name)
	r.Closed = true
	s.byUUID[r.UUID] = &r
	s.history = append([]*model.Run{&r}, s.history...)
	if s.index != nil {
		_ = s.index.Upsert(context.Background(), toIndexRecord(&r))
	}
	return &r, nil
}

// Delete removes a historical run. Returns ACTIVE_RUN if runUUID is the
// active run.
func (s *Store) Delete(runUUID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.UUID == runUUID {
		return coorderrors.New(coorderrors.ActiveRun, "cannot delete the active run")
	}
	run, ok := s.byUUID[runUUID]
	if !ok {
		return coorderrors.New(coorderrors.UnknownEvent, fmt.Sprintf("unknown run %q", runUUID))
	}
	delete(s.byUUID, runUUID)
	for i, r := range s.history {
		if r == run {
			s.history = append(s.history[:i], s.history[i+1:]...)
			break
		}
	}
	if s.index != nil {
		_ = s.index.Delete(context.Background(), runUUID)
	}
	return nil
}

// Rename updates name, deduplicating against every other known run.
func (s *Store) Rename(runUUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.byUUID[runUUID]
	if !ok {
		return coorderrors.New(coorderrors.UnknownEvent, fmt.Sprintf("unknown run %q", runUUID))
	}
	run.Name = s.uniqueNameExcludingLocked(name, run)
	if s.index != nil {
		_ = s.index.Upsert(context.Background(), toIndexRecord(run))
	}
	return nil
}

// ByUUID returns any known run (active or historical) by uuid.
func (s *Store) ByUUID(runUUID string) (*model.Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.byUUID[runUUID]
	return r, ok
}

func toIndexRecord(r *model.Run) index.Record {
	return index.Record{
		UUID: r.UUID, Name: r.Name, ProgramName: r.ProgramName,
		StartTime: r.StartTime, Closed: r.Closed,
	}
}

// allNamesLocked returns every name currently known to the store, for
// collision detection. Must be called with s.mu held.
func (s *Store) allNamesLocked() map[string]bool {
	names := make(map[string]bool, len(s.byUUID))
	for _, r := range s.byUUID {
		names[r.Name] = true
	}
	return names
}

func (s *Store) uniqueNameLocked(base string) string {
	return s.uniqueNameExcludingLocked(base, nil)
}

// uniqueNameExcludingLocked returns a name not used by any run other than
// exclude, suffixing an integer on collision per §4.2's naming policy.
func (s *Store) uniqueNameExcludingLocked(base string, exclude *model.Run) string {
	taken := s.allNamesLocked()
	if exclude != nil {
		delete(taken, exclude.Name)
	}
	if !taken[base] {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if !taken[candidate] {
			return candidate
		}
	}
}

// sortedHistoryNames returns the names of runs in sorted order; nothing in
// the package calls it.
func sortedHistoryNames(runs []*model.Run) []string {
	names := make([]string, 0, len(runs))
	for _, r := range runs {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

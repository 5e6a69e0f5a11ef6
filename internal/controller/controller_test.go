package controller

import (
	"context"
	"os"
	"testing"

	"github.com/agentbreak/coordinator/internal/common/logger"
	"github.com/agentbreak/coordinator/internal/events/bus"
	"github.com/agentbreak/coordinator/internal/run"
	"github.com/agentbreak/coordinator/internal/run/index"
	"github.com/agentbreak/coordinator/internal/runlog"
	"github.com/agentbreak/coordinator/internal/wire"
	"github.com/agentbreak/coordinator/pkg/model"
)

func newTestController(t *testing.T) *Controller {
	t.Helper()
	dir := t.TempDir()
	log, err := runlog.Open(dir)
	if err != nil {
		t.Fatalf("open runlog: %v", err)
	}
	_ = os.Setenv("AGENTBREAK_SUMMARIZER_API_KEY", "")
	store := run.New(log, index.NewMemoryIndex(), nil, "1.0.0", logger.Default())
	return New(store, bus.NewMemoryEventBus(logger.Default()), logger.Default())
}

// TestProgramStartedThenStepHalts exercises scenario S1 of the design:
// PROGRAM_STARTED opens a run in STEP, and the next breakpoint while
// still in STEP halts with a pending breakpoint.
func TestProgramStartedThenStepHalts(t *testing.T) {
	c := newTestController(t)

	c.handleEvent(&wire.AgentEventData{
		EventID: "e1", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo-agent"),
	})
	if c.store.Active() == nil {
		t.Fatalf("expected an active run after PROGRAM_STARTED")
	}
	if c.sm.ExecutionState() != model.StateStep {
		t.Fatalf("expected STEP after PROGRAM_STARTED, got %s", c.sm.ExecutionState())
	}

	c.handleEvent(&wire.AgentEventData{
		EventID: "e2", EventType: model.EventLLMQuery, Payload: model.TextPayload("thinking"),
	})
	c.handleBreakpoint(context.Background(), &wire.AgentBreakpointData{
		UUID: "bp-1", EventID: "e2", Phase: model.PhaseBegin, OriginalData: model.TextPayload("query"),
	})

	if c.sm.ExecutionState() != model.StateHalted {
		t.Fatalf("expected HALTED after breakpoint while STEP, got %s", c.sm.ExecutionState())
	}
	if c.sm.Pending() == nil || c.sm.Pending().Breakpoint.UUID != "bp-1" {
		t.Fatalf("expected bp-1 pending, got %+v", c.sm.Pending())
	}
}

// TestSecondProgramStartedWhileActiveIsAgentProtocol covers the open
// question resolution: a second PROGRAM_STARTED before the prior run
// closes is rejected rather than silently opening a second run.
func TestSecondProgramStartedWhileActiveIsAgentProtocol(t *testing.T) {
	c := newTestController(t)

	c.handleEvent(&wire.AgentEventData{EventID: "e1", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo")})
	firstRun := c.store.Active()

	c.handleEvent(&wire.AgentEventData{EventID: "e2", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo")})

	if c.store.Active() == nil || c.store.Active().UUID != firstRun.UUID {
		t.Fatalf("expected the first run to remain active and untouched")
	}
}

// TestBreakpointWithNoActiveRunIsAgentProtocol covers the AGENT_PROTOCOL
// handler branch for a breakpoint with no active run.
func TestBreakpointWithNoActiveRunIsAgentProtocol(t *testing.T) {
	c := newTestController(t)
	c.handleBreakpoint(context.Background(), &wire.AgentBreakpointData{UUID: "bp-1", EventID: "e1"})
	if c.store.Active() != nil {
		t.Fatalf("expected no active run to be created by a stray breakpoint")
	}
}

// TestUIStepForwardsPendingBreakpointAndResumes exercises the UI STEP
// control path after a halt, and covers scenario S2: stepping over the
// pending begin/LLM_QUERY breakpoint must resume into LLM_THINKING, not
// a blanket AGENT_RUNNING.
func TestUIStepForwardsPendingBreakpointAndResumes(t *testing.T) {
	c := newTestController(t)
	c.handleEvent(&wire.AgentEventData{EventID: "e1", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo")})
	c.handleEvent(&wire.AgentEventData{EventID: "e2", EventType: model.EventLLMQuery})
	c.handleBreakpoint(context.Background(), &wire.AgentBreakpointData{UUID: "bp-1", EventID: "e2", Phase: model.PhaseBegin, OriginalData: model.TextPayload("q")})

	if c.sm.ExecutionState() != model.StateHalted {
		t.Fatalf("precondition failed: expected HALTED")
	}
	c.uiStep()
	if c.sm.ExecutionState() != model.StateStep {
		t.Fatalf("expected STEP after UI step, got %s", c.sm.ExecutionState())
	}
	if c.sm.Pending() != nil {
		t.Fatalf("expected pending cleared after UI step")
	}
	if c.sm.AgentState() != model.AgentLLMThinking {
		t.Fatalf("expected LLM_THINKING after stepping over a begin/LLM_QUERY breakpoint, got %s", c.sm.AgentState())
	}
}

// TestUIStepOverToolInvocationResumesToolExecuting covers the
// TOOL_INVOCATION half of the same S2 derivation.
func TestUIStepOverToolInvocationResumesToolExecuting(t *testing.T) {
	c := newTestController(t)
	c.handleEvent(&wire.AgentEventData{EventID: "e1", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo")})
	c.handleEvent(&wire.AgentEventData{EventID: "e2", EventType: model.EventToolInvocation})
	c.handleBreakpoint(context.Background(), &wire.AgentBreakpointData{UUID: "bp-1", EventID: "e2", Phase: model.PhaseBegin, OriginalData: model.TextPayload("q")})

	c.uiStep()
	if c.sm.AgentState() != model.AgentToolExec {
		t.Fatalf("expected TOOL_EXECUTING after stepping over a begin/TOOL_INVOCATION breakpoint, got %s", c.sm.AgentState())
	}
}

// TestBreakpointWithoutSummaryStillAttaches covers the S1 requirement
// that a breakpoint is dispatched as a new_message whether or not the
// summarizer produced a summary: attachment (and therefore the
// unconditional notifyNewMessage call in handleBreakpoint) must not be
// gated on bp.Summary being non-empty.
func TestBreakpointWithoutSummaryStillAttaches(t *testing.T) {
	c := newTestController(t)
	c.handleEvent(&wire.AgentEventData{EventID: "e1", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo")})
	c.handleEvent(&wire.AgentEventData{EventID: "e2", EventType: model.EventLLMQuery})
	c.handleBreakpoint(context.Background(), &wire.AgentBreakpointData{UUID: "bp-1", EventID: "e2", Phase: model.PhaseBegin, OriginalData: model.TextPayload("q")})

	activeRun := c.store.Active()
	if activeRun == nil {
		t.Fatalf("expected an active run")
	}
	evt := activeRun.EventByID("e2")
	if evt == nil || len(evt.Breakpoints) != 1 || evt.Breakpoints[0].Summary != "" {
		t.Fatalf("expected bp-1 attached with no summary, got %+v", evt)
	}
	if c.sm.Pending() == nil || c.sm.Pending().Breakpoint.UUID != "bp-1" {
		t.Fatalf("expected bp-1 pending regardless of its (empty) summary")
	}
}

// TestAgentDisconnectClosesActiveRun covers the "Agent disconnect"
// handler: the active run is closed with a synthesized terminal message.
func TestAgentDisconnectClosesActiveRun(t *testing.T) {
	c := newTestController(t)
	c.handleEvent(&wire.AgentEventData{EventID: "e1", EventType: model.EventProgramStarted, Payload: model.TextPayload("demo")})

	c.handleAgentDisconnect()

	if c.store.Active() != nil {
		t.Fatalf("expected the run to be closed on agent disconnect")
	}
	if c.sm.ExecutionState() != model.StateIdle {
		t.Fatalf("expected IDLE after agent disconnect, got %s", c.sm.ExecutionState())
	}
	if len(c.store.History()) != 1 {
		t.Fatalf("expected one historical run, got %d", len(c.store.History()))
	}
}

package statemachine

import (
	"testing"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/pkg/model"
)

func TestNewStartsIdle(t *testing.T) {
	m := New()
	if m.ExecutionState() != model.StateIdle {
		t.Fatalf("expected IDLE, got %s", m.ExecutionState())
	}
	if m.Pending() != nil {
		t.Fatalf("expected no pending breakpoint at startup")
	}
}

func TestProgramStartedEntersStep(t *testing.T) {
	m := New()
	m.ProgramStarted()
	if m.ExecutionState() != model.StateStep {
		t.Fatalf("expected STEP, got %s", m.ExecutionState())
	}
	if m.AgentState() != model.AgentRunning {
		t.Fatalf("expected AGENT_RUNNING, got %s", m.AgentState())
	}
}

func TestBreakpointWhileStepHalts(t *testing.T) {
	m := New()
	m.ProgramStarted()
	bp := &model.Breakpoint{UUID: "bp-1"}
	m.BreakpointArrivedWhileStep("run-1", bp)

	if m.ExecutionState() != model.StateHalted {
		t.Fatalf("expected HALTED, got %s", m.ExecutionState())
	}
	if m.Pending() == nil || m.Pending().Breakpoint.UUID != "bp-1" {
		t.Fatalf("expected pending breakpoint bp-1, got %+v", m.Pending())
	}
	if m.AgentState() != model.AgentHalted {
		t.Fatalf("expected HALTED agent_state, got %s", m.AgentState())
	}
}

func TestPendingIsSingleton(t *testing.T) {
	m := New()
	m.ProgramStarted()
	m.BreakpointArrivedWhileStep("run-1", &model.Breakpoint{UUID: "bp-1"})
	if m.ExecutionState() != model.StateHalted || m.Pending() == nil {
		t.Fatalf("expected a single pending breakpoint while HALTED")
	}

	pending, err := m.UIStep()
	if err != nil {
		t.Fatalf("UIStep failed: %v", err)
	}
	if pending.Breakpoint.UUID != "bp-1" {
		t.Fatalf("expected returned pending to carry bp-1")
	}
	if m.Pending() != nil {
		t.Fatalf("expected pending cleared, invariant 3 requires non-nil iff HALTED")
	}
	if m.ExecutionState() != model.StateStep {
		t.Fatalf("expected STEP after UIStep, got %s", m.ExecutionState())
	}
}

func TestUIStepRejectedOutsideHalted(t *testing.T) {
	m := New()
	m.ProgramStarted()
	if _, err := m.UIStep(); !coorderrors.Is(err, coorderrors.UIProtocol) {
		t.Fatalf("expected UI_PROTOCOL error stepping outside HALTED, got %v", err)
	}
}

func TestUIContinueFromHaltedClearsAndMoves(t *testing.T) {
	m := New()
	m.ProgramStarted()
	m.BreakpointArrivedWhileStep("run-1", &model.Breakpoint{UUID: "bp-1"})

	if err := m.UIContinue(); err != nil {
		t.Fatalf("UIContinue failed: %v", err)
	}
	if m.ExecutionState() != model.StateContinue {
		t.Fatalf("expected CONTINUE, got %s", m.ExecutionState())
	}
	if m.Pending() != nil {
		t.Fatalf("expected pending cleared after continue")
	}
}

func TestUIContinueNoOpInIdle(t *testing.T) {
	m := New()
	if err := m.UIContinue(); !coorderrors.Is(err, coorderrors.UIProtocol) {
		t.Fatalf("expected UI_PROTOCOL continuing from IDLE, got %v", err)
	}
}

func TestUIHaltFromContinueMovesToStep(t *testing.T) {
	m := New()
	m.ProgramStarted()
	_ = m.UIContinue()
	if m.ExecutionState() != model.StateContinue {
		t.Fatalf("precondition failed: expected CONTINUE")
	}

	m.UIHalt()
	if m.ExecutionState() != model.StateStep {
		t.Fatalf("expected STEP after halt, got %s", m.ExecutionState())
	}
	if m.AgentState() != model.AgentHalting {
		t.Fatalf("expected HALTING with no pending breakpoint, got %s", m.AgentState())
	}
}

func TestUIHaltIsNoOpInStep(t *testing.T) {
	m := New()
	m.ProgramStarted()
	m.UIHalt()
	if m.ExecutionState() != model.StateStep {
		t.Fatalf("expected halt to no-op in STEP, got %s", m.ExecutionState())
	}
}

func TestProgramFinishedReturnsToIdleFromAnyState(t *testing.T) {
	m := New()
	m.ProgramStarted()
	m.BreakpointArrivedWhileStep("run-1", &model.Breakpoint{UUID: "bp-1"})
	m.ProgramFinished()

	if m.ExecutionState() != model.StateIdle {
		t.Fatalf("expected IDLE, got %s", m.ExecutionState())
	}
	if m.Pending() != nil {
		t.Fatalf("expected pending cleared on program finish")
	}
	if m.AgentState() != model.AgentFinishedDone {
		t.Fatalf("expected AGENT_FINISHED, got %s", m.AgentState())
	}
}

func TestCanAcceptModifiedDataRequiresMatchingPending(t *testing.T) {
	m := New()
	m.ProgramStarted()
	m.BreakpointArrivedWhileStep("run-1", &model.Breakpoint{UUID: "bp-1"})

	if !m.CanAcceptModifiedData("bp-1") {
		t.Fatalf("expected update_msg_content to be valid for the pending breakpoint")
	}
	if m.CanAcceptModifiedData("bp-2") {
		t.Fatalf("expected update_msg_content to reject a non-pending message id")
	}
}

func TestDeriveAgentStateTable(t *testing.T) {
	cases := []struct {
		eventType        model.EventType
		insideBreakpoint bool
		want             model.AgentState
	}{
		{model.EventLLMQuery, true, model.AgentLLMThinking},
		{model.EventLLMQuery, false, model.AgentRunning},
		{model.EventToolInvocation, true, model.AgentToolExec},
		{model.EventToolInvocation, false, model.AgentRunning},
		{model.EventDebugMessage, true, model.AgentRunning},
	}
	for _, c := range cases {
		got := DeriveAgentState(model.AgentRunning, c.eventType, c.insideBreakpoint)
		if c.eventType == model.EventDebugMessage {
			if got != model.AgentRunning {
				t.Fatalf("expected DEBUG_MESSAGE to leave agent_state unchanged, got %s", got)
			}
			continue
		}
		if got != c.want {
			t.Fatalf("DeriveAgentState(%s, inside=%v) = %s, want %s", c.eventType, c.insideBreakpoint, got, c.want)
		}
	}
}

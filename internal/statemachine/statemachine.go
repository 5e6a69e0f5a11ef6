// Package statemachine owns execution_state and agent_state for the
// active run, plus the pending breakpoint if any (§4.4). All transitions
// are driven by the controller; the state machine itself is passive —
// it validates and records transitions, it never reads sockets or calls
// out to other components.
package statemachine

import (
	"fmt"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/pkg/model"
)

// Pending is the PendingBreakpoint entity of §3: a reference to the most
// recent Breakpoint observed while HALTED. At most one exists per core.
type Pending struct {
	RunUUID    string
	Breakpoint *model.Breakpoint
}

// Machine holds execution_state/agent_state for the single active run.
// It is not safe for concurrent use; the controller serializes all
// access to it on its single execution lane (§5).
type Machine struct {
	execState  model.ExecutionState
	agentState model.AgentState
	pending    *Pending
}

// New creates a Machine in IDLE with no pending breakpoint.
func New() *Machine {
	return &Machine{execState: model.StateIdle, agentState: model.AgentIdle}
}

// ExecutionState returns the current execution_state.
func (m *Machine) ExecutionState() model.ExecutionState { return m.execState }

// AgentState returns the current agent_state.
func (m *Machine) AgentState() model.AgentState { return m.agentState }

// Pending returns the current pending breakpoint, or nil. Invariant 3:
// non-nil iff execution_state == HALTED.
func (m *Machine) Pending() *Pending { return m.pending }

// SetAgentState overrides agent_state directly; used for the explicit
// HALTED/HALTING/AGENT_FINISHED states set by control actions (§4.4).
func (m *Machine) SetAgentState(s model.AgentState) { m.agentState = s }

// DeriveAgentState computes agent_state from (phase_is_begin, event_type)
// per §4.4's table. DEBUG_MESSAGE leaves agent_state unchanged.
func DeriveAgentState(current model.AgentState, eventType model.EventType, insideBreakpoint bool) model.AgentState {
	switch eventType {
	case model.EventLLMQuery:
		if insideBreakpoint {
			return model.AgentLLMThinking
		}
		return model.AgentRunning
	case model.EventToolInvocation:
		if insideBreakpoint {
			return model.AgentToolExec
		}
		return model.AgentRunning
	case model.EventDebugMessage:
		return current
	default:
		return current
	}
}

// ProgramStarted transitions IDLE -> STEP (run opened, pending empty).
// The controller is responsible for having already closed any prior
// active run before calling this.
func (m *Machine) ProgramStarted() {
	m.execState = model.StateStep
	m.pending = nil
	m.agentState = model.AgentRunning
}

// BreakpointArrivedWhileStep transitions STEP -> HALTED, recording pending.
func (m *Machine) BreakpointArrivedWhileStep(runUUID string, bp *model.Breakpoint) {
	m.execState = model.StateHalted
	m.pending = &Pending{RunUUID: runUUID, Breakpoint: bp}
	m.agentState = model.AgentHalted
}

// BreakpointArrivedWhileContinue stays in CONTINUE; the breakpoint is
// echoed back immediately by the caller, agent_state is re-derived.
func (m *Machine) BreakpointArrivedWhileContinue(eventType model.EventType, insideBreakpoint bool) {
	m.execState = model.StateContinue
	m.agentState = DeriveAgentState(m.agentState, eventType, insideBreakpoint)
}

// UIContinue applies the UI CONTINUE command. In HALTED, the caller has
// already read Pending() to send it to the agent; this call clears it
// and moves to CONTINUE. In STEP, the run proceeds without sending
// anything. In CONTINUE/IDLE it is a no-op (the caller reports a
// UI_PROTOCOL-adjacent warning).
func (m *Machine) UIContinue() error {
	switch m.execState {
	case model.StateHalted:
		m.pending = nil
		m.execState = model.StateContinue
		return nil
	case model.StateStep:
		m.execState = model.StateContinue
		return nil
	default:
		return coorderrors.New(coorderrors.UIProtocol, fmt.Sprintf("continue is a no-op in state %s", m.execState))
	}
}

// UIStep applies the UI STEP command. Requires HALTED; any other state
// is UI_PROTOCOL. The caller reads the returned Pending before calling
// this to forward it to the agent, and is responsible for deriving and
// setting the resulting agent_state via DeriveAgentState/SetAgentState
// from the released breakpoint's event (§4.4: stepping over a begin
// breakpoint resumes into LLM_THINKING/TOOL_EXECUTING for that event,
// not a blanket AGENT_RUNNING).
func (m *Machine) UIStep() (*Pending, error) {
	if m.execState != model.StateHalted {
		return nil, coorderrors.New(coorderrors.UIProtocol, fmt.Sprintf("step is invalid in state %s", m.execState))
	}
	p := m.pending
	m.pending = nil
	m.execState = model.StateStep
	return p, nil
}

// UIHalt applies the UI HALT command. In CONTINUE it moves to STEP,
// setting agent_state to HALTED if a breakpoint is already pending, else
// HALTING. In STEP or HALTED it is a no-op.
func (m *Machine) UIHalt() {
	if m.execState != model.StateContinue {
		return
	}
	m.execState = model.StateStep
	if m.pending != nil {
		m.agentState = model.AgentHalted
	} else {
		m.agentState = model.AgentHalting
	}
}

// ProgramFinished transitions to IDLE from any state (§4.4 diagrams this
// transition leaving every state).
func (m *Machine) ProgramFinished() {
	m.execState = model.StateIdle
	m.pending = nil
	m.agentState = model.AgentFinishedDone
}

// CanAcceptModifiedData reports whether a UI update_msg_content targeting
// messageUUID is currently valid: HALTED and messageUUID equals the
// pending breakpoint's uuid.
func (m *Machine) CanAcceptModifiedData(messageUUID string) bool {
	return m.execState == model.StateHalted && m.pending != nil && m.pending.Breakpoint.UUID == messageUUID
}

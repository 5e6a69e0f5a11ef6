// Package model holds the exported data-model types shared between the
// controller and its channels: runs, events, breakpoints, commits and
// the changes they carry.
package model

import "time"

// EventType enumerates the kinds of trajectory events the agent reports.
type EventType string

const (
	EventProgramStarted  EventType = "PROGRAM_STARTED"
	EventProgramFinished EventType = "PROGRAM_FINISHED"
	EventLLMQuery        EventType = "LLM_QUERY"
	EventToolInvocation  EventType = "TOOL_INVOCATION"
	EventDebugMessage    EventType = "DEBUG_MESSAGE"
)

// BreakpointPhase brackets the work the agent does for a single event.
type BreakpointPhase string

const (
	PhaseBegin   BreakpointPhase = "begin"
	PhaseEnd     BreakpointPhase = "end"
	PhaseMessage BreakpointPhase = "message"
)

// ExecutionState is the coordinator's control mode.
type ExecutionState string

const (
	StateIdle     ExecutionState = "IDLE"
	StateStep     ExecutionState = "STEP"
	StateHalted   ExecutionState = "HALTED"
	StateContinue ExecutionState = "CONTINUE"
)

// AgentState is a reporting label describing what the agent appears to be
// doing right now.
type AgentState string

const (
	AgentIdle         AgentState = "IDLE"
	AgentRunning      AgentState = "AGENT_RUNNING"
	AgentLLMThinking  AgentState = "LLM_THINKING"
	AgentToolExec     AgentState = "TOOL_EXECUTING"
	AgentHalting      AgentState = "HALTING"
	AgentHalted       AgentState = "HALTED"
	AgentFinishedDone AgentState = "AGENT_FINISHED"
)

// ChangeKind enumerates the ways a file in a commit may have moved.
type ChangeKind string

const (
	ChangeNewFile  ChangeKind = "NEW_FILE"
	ChangeDeleted  ChangeKind = "DELETED_FILE"
	ChangeModified ChangeKind = "MODIFIED"
)

// Payload is the duck-typed tagged union carried by a breakpoint's
// original_data/modified_data: either opaque text or a structured object.
// The core never interprets the contents, only the tag.
type Payload struct {
	Kind string      `json:"kind"` // "text" | "json"
	Text string      `json:"text,omitempty"`
	JSON interface{} `json:"json,omitempty"`
}

// TextPayload builds a text-tagged Payload.
func TextPayload(s string) Payload { return Payload{Kind: "text", Text: s} }

// JSONPayload builds a json-tagged Payload.
func JSONPayload(v interface{}) Payload { return Payload{Kind: "json", JSON: v} }

// Event is a discrete moment in the run's trajectory.
type Event struct {
	EventID     string          `json:"event_id"`
	EventType   EventType       `json:"event_type"`
	Payload     Payload         `json:"payload"`
	SentAt      time.Time       `json:"sent_at"`
	Breakpoints []*Breakpoint   `json:"breakpoints"`
}

// Breakpoint is a payload-carrying marker attached to an Event.
type Breakpoint struct {
	UUID         string          `json:"uuid"`
	EventID      string          `json:"event_id"`
	Phase        BreakpointPhase `json:"phase"`
	OriginalData Payload         `json:"original_data"`
	ModifiedData Payload         `json:"modified_data"`
	Summary      string          `json:"summary,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// Change is an immutable record of one file's movement within a Commit.
type Change struct {
	Path            string     `json:"path"`
	Kind            ChangeKind `json:"kind"`
	CurrentContent  string     `json:"current_content,omitempty"`
	PreviousContent string     `json:"previous_content,omitempty"`
}

// Commit is a snapshot of the agent's workspace at a point in the
// trajectory. Commits are never mutated once appended.
type Commit struct {
	ID      string    `json:"id"`
	Date    time.Time `json:"date"`
	Title   string    `json:"title"`
	Changes []Change  `json:"changes"`
}

// Run is one execution of an agent, start to finish, as observed by the
// coordinator.
type Run struct {
	UUID          string    `json:"uuid"`
	Name          string    `json:"name"`
	ProgramName   string    `json:"program_name"`
	StartTime     time.Time `json:"start_time"`
	ServerVersion string    `json:"server_version"`
	Events        []*Event  `json:"events"`
	Commits       []*Commit `json:"commits"`
	Closed        bool      `json:"closed"`
}

// EventByID returns the event with the given id, or nil.
func (r *Run) EventByID(eventID string) *Event {
	for _, e := range r.Events {
		if e.EventID == eventID {
			return e
		}
	}
	return nil
}

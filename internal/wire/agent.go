// Package wire implements the coordinator's two wire codecs: the agent
// envelope family (event/breakpoint/commit) and the UI envelope family
// (eight UI->core events, seven core->UI events), per the design's
// external-interfaces section. Decoding an unrecognized tag fails with a
// CoordError of kind Protocol; a well-tagged message with missing/mistyped
// fields fails with kind Parse. Numeric identifiers are opaque strings.
// The breakpoint echoed to the agent carries sent_at as ISO-8601 with
// millisecond precision; time.Time fields sent to the UI use
// encoding/json's RFC 3339 form, whose fractional seconds run to as many
// as nine digits rather than a fixed three.
package wire

import (
	"encoding/json"
	"fmt"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/pkg/model"
)

// AgentMessage kinds.
const (
	AgentMsgEvent      = "event"
	AgentMsgBreakpoint = "breakpoint"
	AgentMsgCommit     = "commit"
)

// AgentEnvelope is the top-level shape of every message the agent sends:
// {"message": "event"|"breakpoint"|"commit", "data": {...}}.
type AgentEnvelope struct {
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// AgentEventData is the payload of an `event` envelope.
type AgentEventData struct {
	EventID   string          `json:"event_id"`
	EventType model.EventType `json:"event_type"`
	Payload   model.Payload   `json:"payload"`
	SentAt    string          `json:"sent_at"`
}

// AgentBreakpointData is the payload of a `breakpoint` envelope.
type AgentBreakpointData struct {
	UUID         string                `json:"uuid"`
	EventID      string                `json:"event_id"`
	Phase        model.BreakpointPhase `json:"phase"`
	OriginalData model.Payload         `json:"original_data"`
	ModifiedData *model.Payload        `json:"modified_data,omitempty"`
	Summary      string                `json:"summary,omitempty"`
	SentAt       string                `json:"sent_at"`
}

// AgentChangeData is one entry of a commit's changes list.
type AgentChangeData struct {
	Path            string           `json:"path"`
	Kind            model.ChangeKind `json:"kind"`
	Content         string           `json:"content"`
	PreviousContent string           `json:"previous_content"`
}

// AgentCommitData is the payload of a `commit` envelope.
type AgentCommitData struct {
	ID      string            `json:"id"`
	Date    string            `json:"date"`
	Title   string            `json:"title"`
	Changes []AgentChangeData `json:"changes"`
}

// DecodeAgentEnvelope parses the outer envelope. An unrecognized tag or
// malformed JSON is a Protocol/Parse CoordError respectively.
func DecodeAgentEnvelope(raw []byte) (*AgentEnvelope, error) {
	var env AgentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, coorderrors.Wrap(coorderrors.Parse, "malformed agent envelope", err)
	}
	switch env.Message {
	case AgentMsgEvent, AgentMsgBreakpoint, AgentMsgCommit:
		return &env, nil
	default:
		return nil, coorderrors.New(coorderrors.Protocol, fmt.Sprintf("unrecognized agent message tag %q", env.Message))
	}
}

// DecodeEventData parses an event envelope's data field.
func DecodeEventData(data json.RawMessage) (*AgentEventData, error) {
	var d AgentEventData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, coorderrors.Wrap(coorderrors.Parse, "malformed event data", err)
	}
	if d.EventID == "" || d.EventType == "" {
		return nil, coorderrors.New(coorderrors.Parse, "event data missing event_id or event_type")
	}
	return &d, nil
}

// DecodeBreakpointData parses a breakpoint envelope's data field.
func DecodeBreakpointData(data json.RawMessage) (*AgentBreakpointData, error) {
	var d AgentBreakpointData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, coorderrors.Wrap(coorderrors.Parse, "malformed breakpoint data", err)
	}
	if d.UUID == "" || d.EventID == "" || d.Phase == "" {
		return nil, coorderrors.New(coorderrors.Parse, "breakpoint data missing uuid, event_id or phase")
	}
	return &d, nil
}

// DecodeCommitData parses a commit envelope's data field.
func DecodeCommitData(data json.RawMessage) (*AgentCommitData, error) {
	var d AgentCommitData
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, coorderrors.Wrap(coorderrors.Parse, "malformed commit data", err)
	}
	if d.ID == "" {
		return nil, coorderrors.New(coorderrors.Parse, "commit data missing id")
	}
	return &d, nil
}

// EncodeBreakpointEnvelope serializes the only message kind the core ever
// sends to the agent: the (possibly mutated) breakpoint echoed back.
func EncodeBreakpointEnvelope(bp *model.Breakpoint) ([]byte, error) {
	data := AgentBreakpointData{
		UUID:         bp.UUID,
		EventID:      bp.EventID,
		Phase:        bp.Phase,
		OriginalData: bp.OriginalData,
		ModifiedData: &bp.ModifiedData,
		Summary:      bp.Summary,
		SentAt:       bp.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode breakpoint data: %w", err)
	}
	env := AgentEnvelope{Message: AgentMsgBreakpoint, Data: raw}
	return json.Marshal(env)
}

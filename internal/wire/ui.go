package wire

import (
	"encoding/json"
	"fmt"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
)

// UI -> core event names.
const (
	UIEventStep                = "step"
	UIEventContinue            = "continue"
	UIEventHalt                = "halt"
	UIEventRenameRun           = "rename_run"
	UIEventDownloadRunRequest  = "download_run_request"
	UIEventImportRun           = "import_run"
	UIEventDeleteRun           = "delete_run"
	UIEventUpdateMsgContent    = "update_msg_content"
)

// Core -> UI event names.
const (
	UIEventInitAppState  = "init_app_state"
	UIEventNewRun        = "new_run"
	UIEventNewMessage    = "new_message"
	UIEventUpdateRunState = "update_run_state"
	UIEventNewCommit     = "new_commit"
	UIEventRunExport     = "run_export"
	UIEventError         = "error"
)

// uiInboundEvents is the set of event names the core accepts from the UI.
var uiInboundEvents = map[string]bool{
	UIEventStep: true, UIEventContinue: true, UIEventHalt: true,
	UIEventRenameRun: true, UIEventDownloadRunRequest: true,
	UIEventImportRun: true, UIEventDeleteRun: true, UIEventUpdateMsgContent: true,
}

// UIEnvelope is the top-level shape of every message exchanged on the UI
// channel: {"event": <name>, "content": {...}}.
type UIEnvelope struct {
	Event   string          `json:"event"`
	Content json.RawMessage `json:"content"`
}

// DecodeUIEnvelope parses an inbound UI message. An unrecognized event
// name is reported back to the UI as an `error` event by the caller
// (UIProtocol), not treated as fatal.
func DecodeUIEnvelope(raw []byte) (*UIEnvelope, error) {
	var env UIEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, coorderrors.Wrap(coorderrors.Parse, "malformed UI envelope", err)
	}
	if !uiInboundEvents[env.Event] {
		return nil, coorderrors.New(coorderrors.UIProtocol, fmt.Sprintf("unrecognized UI event %q", env.Event))
	}
	return &env, nil
}

// EncodeUIEnvelope serializes a core->UI event.
func EncodeUIEnvelope(event string, content interface{}) ([]byte, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode UI content: %w", err)
	}
	env := UIEnvelope{Event: event, Content: raw}
	return json.Marshal(env)
}

// UI inbound content shapes.

type RunRefContent struct {
	Run string `json:"run"`
}

type RenameRunContent struct {
	Run  string `json:"run"`
	Name string `json:"name"`
}

type ImportRunContent struct {
	Data string `json:"data"` // base64-encoded export bytes; not compressed
}

type UpdateMsgContentContent struct {
	Run     string          `json:"run"`
	Message string          `json:"message"`
	Content json.RawMessage `json:"content"`
}

// UI outbound content shapes.

type ErrorContent struct {
	Message string `json:"message"`
}

type NewRunContent struct {
	Run interface{} `json:"run"`
}

type NewMessageContent struct {
	Run     string      `json:"run"`
	Message interface{} `json:"message"`
}

type UpdateRunStateContent struct {
	Run        string  `json:"run"`
	State      string  `json:"state"`
	AgentState string  `json:"agent_state"`
	HaltedAt   *string `json:"halted_at,omitempty"`
}

type NewCommitContent struct {
	Run    string      `json:"run"`
	Commit interface{} `json:"commit"`
}

type RunExportContent struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

type InitAppStateContent struct {
	Runs      []interface{} `json:"runs"`
	ActiveRun *string       `json:"active_run,omitempty"`
	HaltedAt  *string       `json:"halted_at,omitempty"`
}

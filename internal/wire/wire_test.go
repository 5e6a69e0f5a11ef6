package wire

import (
	"encoding/json"
	"testing"

	coorderrors "github.com/agentbreak/coordinator/internal/common/errors"
	"github.com/agentbreak/coordinator/pkg/model"
)

func TestDecodeAgentEnvelope_UnknownTag(t *testing.T) {
	_, err := DecodeAgentEnvelope([]byte(`{"message":"bogus","data":{}}`))
	if !coorderrors.Is(err, coorderrors.Protocol) {
		t.Fatalf("expected PROTOCOL error, got %v", err)
	}
}

func TestDecodeAgentEnvelope_Malformed(t *testing.T) {
	_, err := DecodeAgentEnvelope([]byte(`not json`))
	if !coorderrors.Is(err, coorderrors.Parse) {
		t.Fatalf("expected PARSE error, got %v", err)
	}
}

func TestDecodeEventData_Valid(t *testing.T) {
	raw := json.RawMessage(`{"event_id":"e1","event_type":"LLM_QUERY","payload":{"kind":"text","text":"p"},"sent_at":"2024-01-01T00:00:00.000Z"}`)
	d, err := DecodeEventData(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.EventID != "e1" || d.EventType != model.EventLLMQuery {
		t.Fatalf("unexpected decode: %+v", d)
	}
}

func TestDecodeEventData_MissingFields(t *testing.T) {
	_, err := DecodeEventData(json.RawMessage(`{"payload":{}}`))
	if !coorderrors.Is(err, coorderrors.Parse) {
		t.Fatalf("expected PARSE error, got %v", err)
	}
}

func TestEncodeBreakpointEnvelope(t *testing.T) {
	bp := &model.Breakpoint{
		UUID: "b1", EventID: "e1", Phase: model.PhaseBegin,
		OriginalData: model.TextPayload("p"), ModifiedData: model.TextPayload("p2"),
	}
	raw, err := EncodeBreakpointEnvelope(bp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env, err := DecodeAgentEnvelope(raw)
	if err != nil {
		t.Fatalf("round-trip decode failed: %v", err)
	}
	if env.Message != AgentMsgBreakpoint {
		t.Fatalf("expected breakpoint message, got %s", env.Message)
	}
	d, err := DecodeBreakpointData(env.Data)
	if err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if d.ModifiedData.Text != "p2" {
		t.Fatalf("expected modified_data to round-trip, got %+v", d.ModifiedData)
	}
}

func TestDecodeUIEnvelope_UnknownEvent(t *testing.T) {
	_, err := DecodeUIEnvelope([]byte(`{"event":"bogus","content":{}}`))
	if !coorderrors.Is(err, coorderrors.UIProtocol) {
		t.Fatalf("expected UI_PROTOCOL error, got %v", err)
	}
}

func TestDecodeUIEnvelope_Known(t *testing.T) {
	env, err := DecodeUIEnvelope([]byte(`{"event":"step","content":{"run":"r1"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var c RunRefContent
	if err := json.Unmarshal(env.Content, &c); err != nil {
		t.Fatalf("unmarshal content: %v", err)
	}
	if c.Run != "r1" {
		t.Fatalf("expected run r1, got %s", c.Run)
	}
}

package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_TextDelta(t *testing.T) {
	data := []byte(`{"type":"text_delta","turn_id":"t1","seq":3,"text":"hello"}`)

	f, err := Decode(data)

	require.NoError(t, err)
	assert.Equal(t, FrameTextDelta, f.Type)
	assert.Equal(t, "t1", f.TurnID)
	assert.Equal(t, 3, f.Seq)
	assert.Equal(t, "hello", f.Text)
}

func TestDecode_ToolCall(t *testing.T) {
	data := []byte(`{"type":"tool_call","turn_id":"t1","call_id":"c1","tool":"read_file","args":{"path":"notes.md"}}`)

	f, err := Decode(data)

	require.NoError(t, err)
	assert.Equal(t, FrameToolCall, f.Type)
	assert.Equal(t, "c1", f.CallID)
	assert.Equal(t, "read_file", f.Tool)
	assert.Equal(t, "notes.md", f.Args["path"])
}

func TestDecode_InvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))

	require.Error(t, err)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "invalid JSON")
}

func TestDecode_UnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"type":"telemetry"}`))

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "unknown frame type")
}

func TestDecode_MissingRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"missing type", `{"turn_id":"t1"}`},
		{"text_delta without turn_id", `{"type":"text_delta","text":"x"}`},
		{"tool_call without call_id", `{"type":"tool_call","turn_id":"t1","tool":"read_file"}`},
		{"tool_call without tool", `{"type":"tool_call","turn_id":"t1","call_id":"c1"}`},
		{"tool_result without outcome", `{"type":"tool_result","call_id":"c1"}`},
		{"cancel without turn_id", `{"type":"cancel"}`},
		{"turn_error without turn_id", `{"type":"turn_error","reason":"x"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))

			var perr *ProtocolError
			require.ErrorAs(t, err, &perr)
		})
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	f := Frame{
		Type:   FrameToolResult,
		TurnID: "t1",
		CallID: "c1",
		Outcome: &Outcome{
			Status:     OutcomeSucceeded,
			Payload:    map[string]interface{}{"bytes": float64(2)},
			DurationMs: 12,
		},
	}

	data, err := Encode(f)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, f.Outcome.Status, decoded.Outcome.Status)
	assert.Equal(t, f.Outcome.Payload, decoded.Outcome.Payload)
}

func TestEncode_MissingType(t *testing.T) {
	_, err := Encode(Frame{})

	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
}

func TestFrame_Terminal(t *testing.T) {
	assert.True(t, Frame{Type: FrameTurnComplete}.Terminal())
	assert.True(t, Frame{Type: FrameTurnError}.Terminal())
	assert.False(t, Frame{Type: FrameTextDelta}.Terminal())
	assert.False(t, Frame{Type: FrameHeartbeat}.Terminal())
}

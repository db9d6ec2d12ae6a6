package protocol

import (
	"encoding/json"
	"fmt"
)

// ProtocolError reports a malformed frame. It is fatal to the current turn,
// never to the session.
type ProtocolError struct {
	Reason string
	Raw    []byte
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

// Encode serializes a frame for the wire.
func Encode(f Frame) ([]byte, error) {
	if f.Type == "" {
		return nil, &ProtocolError{Reason: "frame type is required"}
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode parses and validates a single inbound frame. Unknown frame types and
// frames missing required payload fields are rejected with a ProtocolError.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, &ProtocolError{Reason: fmt.Sprintf("invalid JSON: %v", err), Raw: data}
	}
	if err := validate(f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

func validate(f Frame) error {
	switch f.Type {
	case FrameHeartbeat:
		return nil

	case FrameUserInput:
		if f.Text == "" {
			return &ProtocolError{Reason: "user_input frame requires text"}
		}

	case FrameTextDelta:
		if f.TurnID == "" {
			return &ProtocolError{Reason: "text_delta frame requires turn_id"}
		}

	case FrameToolCall:
		if f.TurnID == "" {
			return &ProtocolError{Reason: "tool_call frame requires turn_id"}
		}
		if f.CallID == "" {
			return &ProtocolError{Reason: "tool_call frame requires call_id"}
		}
		if f.Tool == "" {
			return &ProtocolError{Reason: "tool_call frame requires tool"}
		}

	case FrameToolResult:
		if f.CallID == "" {
			return &ProtocolError{Reason: "tool_result frame requires call_id"}
		}
		if f.Outcome == nil {
			return &ProtocolError{Reason: "tool_result frame requires outcome"}
		}

	case FrameCancel:
		if f.TurnID == "" {
			return &ProtocolError{Reason: "cancel frame requires turn_id"}
		}

	case FrameTurnComplete:
		if f.TurnID == "" {
			return &ProtocolError{Reason: "turn_complete frame requires turn_id"}
		}

	case FrameTurnError:
		if f.TurnID == "" {
			return &ProtocolError{Reason: "turn_error frame requires turn_id"}
		}

	case "":
		return &ProtocolError{Reason: "frame type is required"}

	default:
		return &ProtocolError{Reason: fmt.Sprintf("unknown frame type: %s", f.Type)}
	}

	return nil
}

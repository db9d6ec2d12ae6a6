package protocol

// FrameType identifies the kind of payload a frame carries.
type FrameType string

const (
	// FrameUserInput carries a user prompt to the backend.
	FrameUserInput FrameType = "user_input"

	// FrameTextDelta carries a chunk of streamed assistant text.
	FrameTextDelta FrameType = "text_delta"

	// FrameToolCall carries a backend request to execute a tool locally.
	FrameToolCall FrameType = "tool_call"

	// FrameToolResult carries the outcome of a local tool execution upstream.
	FrameToolResult FrameType = "tool_result"

	// FrameCancel aborts the turn identified by TurnID.
	FrameCancel FrameType = "cancel"

	// FrameHeartbeat is a keepalive; it carries no payload and no turn id.
	FrameHeartbeat FrameType = "heartbeat"

	// FrameTurnComplete marks the end of a successful turn.
	FrameTurnComplete FrameType = "turn_complete"

	// FrameTurnError marks the end of a failed turn.
	FrameTurnError FrameType = "turn_error"
)

// Outcome statuses reported in a tool_result frame.
const (
	OutcomeSucceeded        = "succeeded"
	OutcomeFailed           = "failed"
	OutcomeCancelled        = "cancelled"
	OutcomePermissionDenied = "permission_denied"
	OutcomeTimeout          = "timeout"
)

// Frame is the single wire message exchanged with the backend. Payload fields
// are populated depending on Type; Decode enforces which ones are required.
type Frame struct {
	Type   FrameType `json:"type"`
	TurnID string    `json:"turn_id,omitempty"`
	Seq    int       `json:"seq,omitempty"`

	// user_input / text_delta
	Text string `json:"text,omitempty"`

	// tool_call
	CallID string                 `json:"call_id,omitempty"`
	Tool   string                 `json:"tool,omitempty"`
	Args   map[string]interface{} `json:"args,omitempty"`

	// tool_result
	Outcome *Outcome `json:"outcome,omitempty"`

	// user_input routing
	Agent string `json:"agent,omitempty"`

	// turn_error
	Reason string `json:"reason,omitempty"`
}

// Outcome describes how a tool call resolved.
type Outcome struct {
	Status     string                 `json:"status"`
	Payload    map[string]interface{} `json:"payload,omitempty"`
	Error      string                 `json:"error,omitempty"`
	DurationMs int64                  `json:"duration_ms"`
}

// Terminal reports whether the frame ends a turn.
func (f Frame) Terminal() bool {
	return f.Type == FrameTurnComplete || f.Type == FrameTurnError
}

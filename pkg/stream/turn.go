package stream

import "time"

// TurnState is the lifecycle state of one conversational turn.
type TurnState string

const (
	TurnIdle        TurnState = "idle"
	TurnStreaming   TurnState = "streaming"
	TurnToolPending TurnState = "tool_pending"
	TurnCompleted   TurnState = "completed"
	TurnErrored     TurnState = "errored"
	TurnCancelled   TurnState = "cancelled"
)

// Terminal reports whether the state ends the turn. A turn reaches exactly one
// terminal state.
func (s TurnState) Terminal() bool {
	return s == TurnCompleted || s == TurnErrored || s == TurnCancelled
}

// ToolCall is one backend-requested tool execution within a turn.
type ToolCall struct {
	CallID string
	Tool   string
	Args   map[string]interface{}
	Seq    int
}

// Turn records the observable outcome of one exchange with the backend.
type Turn struct {
	ID        string
	Agent     string
	State     TurnState
	Error     string
	StartedAt time.Time
	EndedAt   time.Time

	// Deltas counts text chunks rendered; ToolCalls counts tool requests seen
	// (including denied ones).
	Deltas    int
	ToolCalls int
}

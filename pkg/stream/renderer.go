package stream

// Renderer receives the user-visible output of a turn. Text deltas arrive in
// the order the backend sent them; tool notifications interleave as calls
// start and resolve.
type Renderer interface {
	WriteDelta(text string)
	ToolStarted(call ToolCall)
	ToolResolved(call ToolCall, status string)
}

// NopRenderer discards everything. Useful in tests and one-shot plumbing.
type NopRenderer struct{}

func (NopRenderer) WriteDelta(string)             {}
func (NopRenderer) ToolStarted(ToolCall)          {}
func (NopRenderer) ToolResolved(ToolCall, string) {}

package sandbox

import (
	"errors"
	"fmt"
)

var (
	// ErrPathEscape is returned when a tool argument resolves outside the
	// project root, via traversal or symlink. Raised before any I/O occurs.
	ErrPathEscape = errors.New("path escapes project root")

	// ErrUnknownTool is returned when a tool name matches neither a built-in
	// tool nor a registered integration provider.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrReadOnly is returned for mutating tools when the sandbox runs in
	// restricted mode.
	ErrReadOnly = errors.New("sandbox is in read-only mode")

	// errWriteDeclined marks a write whose overwrite confirmation was refused.
	// It resolves the call as Cancelled, not Failed.
	errWriteDeclined = errors.New("write not confirmed")
)

// ToolError reports a failure from an integration provider. Providers are
// untrusted collaborators: their failures become structured results, never a
// crashed session.
type ToolError struct {
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

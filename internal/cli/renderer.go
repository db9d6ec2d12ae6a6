package cli

import (
	"fmt"
	"io"

	"github.com/sudosu-ai/sudosu/pkg/stream"
)

// terminalRenderer prints a turn's stream to the terminal. Deltas go out as
// they arrive; tool activity is shown as single status lines.
type terminalRenderer struct {
	out     io.Writer
	midLine bool
}

func newTerminalRenderer(out io.Writer) *terminalRenderer {
	return &terminalRenderer{out: out}
}

func (r *terminalRenderer) WriteDelta(text string) {
	fmt.Fprint(r.out, text)
	if len(text) > 0 {
		r.midLine = text[len(text)-1] != '\n'
	}
}

func (r *terminalRenderer) ToolStarted(call stream.ToolCall) {
	r.breakLine()
	fmt.Fprintf(r.out, "  ⚙ %s ...\n", call.Tool)
}

func (r *terminalRenderer) ToolResolved(call stream.ToolCall, status string) {
	r.breakLine()
	fmt.Fprintf(r.out, "  ⚙ %s → %s\n", call.Tool, status)
}

// finish closes any dangling delta line after a turn.
func (r *terminalRenderer) finish() {
	r.breakLine()
}

func (r *terminalRenderer) breakLine() {
	if r.midLine {
		fmt.Fprintln(r.out)
		r.midLine = false
	}
}

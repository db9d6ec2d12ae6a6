package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sudosu-ai/sudosu/pkg/sandbox"
)

// CLIApprover prompts the user on the terminal before a file overwrite
// proceeds. It is the session's confirmation boundary: tool execution blocks
// until the user answers or the context expires.
type CLIApprover struct {
	reader *bufio.Reader
	writer io.Writer
	logger zerolog.Logger
}

// NewCLIApprover creates an approver reading answers from reader and writing
// prompts to writer. Callers that also read from the same stream (the chat
// loop on stdin) should pass a shared *bufio.Reader so typed-ahead input is
// not swallowed by a second buffer.
func NewCLIApprover(reader io.Reader, writer io.Writer, logger zerolog.Logger) *CLIApprover {
	buffered, ok := reader.(*bufio.Reader)
	if !ok {
		buffered = bufio.NewReader(reader)
	}
	return &CLIApprover{
		reader: buffered,
		writer: writer,
		logger: logger.With().Str("component", "approver").Logger(),
	}
}

// Confirm implements sandbox.Approver.
func (c *CLIApprover) Confirm(ctx context.Context, req sandbox.ConfirmRequest) (bool, error) {
	fmt.Fprintln(c.writer, "")
	if req.AgentID != "" {
		fmt.Fprintf(c.writer, "  Agent %s wants to overwrite %s\n", req.AgentID, req.Path)
	} else {
		fmt.Fprintf(c.writer, "  %s\n", req.String())
	}
	fmt.Fprint(c.writer, "  Allow? [y/N]: ")

	answers := make(chan bool, 1)
	errs := make(chan error, 1)

	go func() {
		// Read exactly one line; anything beyond it stays in the shared
		// buffer for the next reader.
		line, err := c.reader.ReadString('\n')
		if err != nil && line == "" {
			if errors.Is(err, io.EOF) {
				answers <- false
				return
			}
			errs <- fmt.Errorf("failed to read input: %w", err)
			return
		}
		input := strings.TrimSpace(strings.ToLower(line))
		answers <- input == "y" || input == "yes"
	}()

	select {
	case approved := <-answers:
		if approved {
			fmt.Fprintln(c.writer, "  approved")
		} else {
			fmt.Fprintln(c.writer, "  denied")
		}
		c.logger.Info().
			Str("path", req.Path).
			Str("agent", req.AgentID).
			Bool("approved", approved).
			Msg("Overwrite confirmation answered")
		return approved, nil

	case err := <-errs:
		return false, err

	case <-ctx.Done():
		fmt.Fprintln(c.writer, "  (cancelled)")
		return false, ctx.Err()
	}
}

// Package stream drives one turn at a time over the transport channel: it
// routes inbound frames, renders text deltas in arrival order, dispatches
// permitted tool calls to the sandbox, and reports results back upstream in
// completion order.
package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudosu-ai/sudosu/pkg/correlation"
	"github.com/sudosu-ai/sudosu/pkg/protocol"
	"github.com/sudosu-ai/sudosu/pkg/registry"
	"github.com/sudosu-ai/sudosu/pkg/sandbox"
	"github.com/sudosu-ai/sudosu/pkg/transport"
)

// ErrTurnActive is returned when RunTurn is entered while a turn is running.
var ErrTurnActive = errors.New("a turn is already active")

// Channel is the slice of the transport surface the multiplexer needs.
type Channel interface {
	Send(protocol.Frame) error
	Frames() <-chan transport.Inbound
	Fatal() <-chan error
}

// Executor runs tool requests; satisfied by *sandbox.Sandbox.
type Executor interface {
	Invoke(ctx context.Context, req sandbox.Request) sandbox.Result
}

// Policy tunes per-turn behavior.
type Policy struct {
	// BlockStreaming buffers text deltas while tool calls are executing and
	// flushes them once all in-flight calls resolve. When false, deltas render
	// as they arrive regardless of tool activity.
	BlockStreaming bool

	// ToolTimeout overrides the sandbox default per call when positive.
	ToolTimeout time.Duration
}

// Config holds multiplexer configuration.
type Config struct {
	Channel  Channel
	Executor Executor
	Table    *correlation.Table
	Renderer Renderer
	Policy   Policy
	Logger   zerolog.Logger
}

// Input is one user submission.
type Input struct {
	Text    string
	Profile *registry.AgentProfile

	// TurnID is generated when empty.
	TurnID string
}

// Multiplexer owns the frame routing for the session's turns.
type Multiplexer struct {
	ch       Channel
	exec     Executor
	table    *correlation.Table
	renderer Renderer
	policy   Policy
	logger   zerolog.Logger

	active atomic.Bool
}

// New creates a multiplexer.
func New(cfg Config) (*Multiplexer, error) {
	if cfg.Channel == nil {
		return nil, errors.New("channel is required")
	}
	if cfg.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if cfg.Table == nil {
		return nil, errors.New("correlation table is required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = NopRenderer{}
	}

	return &Multiplexer{
		ch:       cfg.Channel,
		exec:     cfg.Executor,
		table:    cfg.Table,
		renderer: cfg.Renderer,
		policy:   cfg.Policy,
		logger:   cfg.Logger.With().Str("component", "stream").Logger(),
	}, nil
}

type toolOutcome struct {
	call   ToolCall
	result sandbox.Result
}

// RunTurn submits the input and drives the turn to its single terminal state.
// Cancelling ctx cancels the turn: a cancel frame goes upstream, executing
// calls are aborted, and any late results are discarded. The returned Turn is
// always terminal; the error is non-nil only for transport-level failures.
func (m *Multiplexer) RunTurn(ctx context.Context, in Input) (*Turn, error) {
	if in.Profile == nil {
		return nil, errors.New("agent profile is required")
	}
	if !m.active.CompareAndSwap(false, true) {
		return nil, ErrTurnActive
	}
	defer m.active.Store(false)

	turn := &Turn{
		ID:        in.TurnID,
		Agent:     in.Profile.Name,
		State:     TurnStreaming,
		StartedAt: time.Now(),
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}

	turnCtx, cancelTurn := context.WithCancel(ctx)
	defer cancelTurn()

	outSeq := 0
	if err := m.ch.Send(protocol.Frame{
		Type:   protocol.FrameUserInput,
		TurnID: turn.ID,
		Seq:    outSeq,
		Text:   in.Text,
		Agent:  in.Profile.Name,
	}); err != nil {
		m.finish(turn, TurnErrored, err.Error())
		return turn, err
	}
	outSeq++

	logger := m.logger.With().Str("turnId", turn.ID).Str("agent", turn.Agent).Logger()
	logger.Debug().Msg("Turn started")

	results := make(chan toolOutcome, 32)
	seenSeq := make(map[int]struct{})
	pending := 0
	var heldDeltas []string

	cancelled := func() (*Turn, error) {
		// Best-effort: the channel may already be gone.
		_ = m.ch.Send(protocol.Frame{Type: protocol.FrameCancel, TurnID: turn.ID, Seq: outSeq})
		m.finish(turn, TurnCancelled, "")
		logger.Info().Msg("Turn cancelled")
		return turn, nil
	}

	for {
		// Cancellation wins over anything already queued; results racing in
		// after this point are discarded.
		select {
		case <-ctx.Done():
			return cancelled()
		default:
		}

		select {
		case <-ctx.Done():
			return cancelled()

		case err := <-m.ch.Fatal():
			m.finish(turn, TurnErrored, err.Error())
			logger.Error().Err(err).Msg("Turn aborted by transport failure")
			return turn, err

		case out := <-results:
			pending--
			m.table.Resolve(out.call.CallID)
			m.renderer.ToolResolved(out.call, string(out.result.Status))

			if err := m.ch.Send(protocol.Frame{
				Type:    protocol.FrameToolResult,
				TurnID:  turn.ID,
				Seq:     outSeq,
				CallID:  out.call.CallID,
				Outcome: outcomeFromResult(out.result),
			}); err != nil {
				m.finish(turn, TurnErrored, err.Error())
				return turn, err
			}
			outSeq++

			if pending == 0 {
				turn.State = TurnStreaming
				for _, text := range heldDeltas {
					m.renderer.WriteDelta(text)
				}
				heldDeltas = nil
			}

		case inb, ok := <-m.ch.Frames():
			if !ok {
				m.finish(turn, TurnErrored, "channel closed")
				return turn, transport.ErrChannelClosed
			}
			if inb.Err != nil {
				logger.Warn().Err(inb.Err).Msg("Dropping malformed frame")
				continue
			}
			frame := inb.Frame

			if frame.TurnID != "" && frame.TurnID != turn.ID {
				logger.Debug().Str("frameTurnId", frame.TurnID).Msg("Dropping frame for another turn")
				continue
			}

			// The backend may replay frames after a reconnect; sequence numbers
			// make the replay idempotent.
			if frame.Seq > 0 {
				if _, dup := seenSeq[frame.Seq]; dup {
					continue
				}
				seenSeq[frame.Seq] = struct{}{}
			}

			switch frame.Type {
			case protocol.FrameTextDelta:
				turn.Deltas++
				if m.policy.BlockStreaming && pending > 0 {
					heldDeltas = append(heldDeltas, frame.Text)
				} else {
					m.renderer.WriteDelta(frame.Text)
				}

			case protocol.FrameToolCall:
				started, err := m.startToolCall(turnCtx, turn, frame, in.Profile, results, &outSeq)
				if err != nil {
					m.finish(turn, TurnErrored, err.Error())
					return turn, err
				}
				if started {
					pending++
					turn.State = TurnToolPending
				}

			case protocol.FrameTurnComplete:
				m.finish(turn, TurnCompleted, "")
				for _, text := range heldDeltas {
					m.renderer.WriteDelta(text)
				}
				logger.Debug().Int("deltas", turn.Deltas).Int("toolCalls", turn.ToolCalls).Msg("Turn completed")
				return turn, nil

			case protocol.FrameTurnError:
				m.finish(turn, TurnErrored, frame.Reason)
				logger.Warn().Str("reason", frame.Reason).Msg("Turn errored")
				return turn, nil

			default:
				logger.Debug().Str("type", string(frame.Type)).Msg("Ignoring unexpected frame type")
			}
		}
	}
}

// startToolCall applies the allowlist and dispatches the call. It returns
// whether an execution actually started; denied or malformed calls resolve
// immediately without touching the sandbox.
func (m *Multiplexer) startToolCall(turnCtx context.Context, turn *Turn, frame protocol.Frame, profile *registry.AgentProfile, results chan<- toolOutcome, outSeq *int) (bool, error) {
	call := ToolCall{CallID: frame.CallID, Tool: frame.Tool, Args: frame.Args, Seq: frame.Seq}
	turn.ToolCalls++

	deny := func(status, msg string) error {
		m.renderer.ToolResolved(call, status)
		err := m.ch.Send(protocol.Frame{
			Type:    protocol.FrameToolResult,
			TurnID:  turn.ID,
			Seq:     *outSeq,
			CallID:  call.CallID,
			Outcome: &protocol.Outcome{Status: status, Error: msg},
		})
		*outSeq++
		return err
	}

	if !profile.AllowsTool(call.Tool) {
		m.logger.Info().
			Str("tool", call.Tool).
			Str("agent", profile.Name).
			Msg("Tool call denied by profile allowlist")
		return false, deny(protocol.OutcomePermissionDenied,
			"tool "+call.Tool+" is not permitted for agent "+profile.Name)
	}

	execCtx, cancelExec := context.WithCancel(turnCtx)
	err := m.table.Register(correlation.Entry{
		CallID: call.CallID,
		TurnID: turn.ID,
		Tool:   call.Tool,
		Cancel: cancelExec,
	})
	if err != nil {
		cancelExec()
		m.logger.Error().Err(err).Str("callId", call.CallID).Msg("Rejected tool call registration")
		return false, deny(protocol.OutcomeFailed, err.Error())
	}

	m.renderer.ToolStarted(call)
	go func() {
		res := m.exec.Invoke(execCtx, sandbox.Request{
			CallID:      call.CallID,
			Tool:        call.Tool,
			Args:        call.Args,
			AgentID:     profile.Name,
			AutoApprove: profile.AutoApprove,
			Timeout:     m.policy.ToolTimeout,
		})
		select {
		case results <- toolOutcome{call: call, result: res}:
		case <-turnCtx.Done():
			// Turn already terminal; the late result is discarded.
		}
	}()
	return true, nil
}

// finish marks the turn terminal and drains its correlation entries. A
// non-empty table here is a protocol defect; Drain logs it.
func (m *Multiplexer) finish(turn *Turn, state TurnState, errMsg string) {
	turn.State = state
	turn.Error = errMsg
	turn.EndedAt = time.Now()
	m.table.Drain(turn.ID)
}

func outcomeFromResult(res sandbox.Result) *protocol.Outcome {
	status := protocol.OutcomeFailed
	switch res.Status {
	case sandbox.StatusSucceeded:
		status = protocol.OutcomeSucceeded
	case sandbox.StatusCancelled:
		status = protocol.OutcomeCancelled
	case sandbox.StatusTimeout:
		status = protocol.OutcomeTimeout
	}
	return &protocol.Outcome{
		Status:     status,
		Payload:    res.Payload,
		Error:      res.Error,
		DurationMs: res.Duration.Milliseconds(),
	}
}

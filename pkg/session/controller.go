// Package session owns the lifetime of one interactive session: a single
// transport channel, a sandbox rooted at the project, and the one-turn-at-a-
// time submission discipline.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sudosu-ai/sudosu/internal/config"
	"github.com/sudosu-ai/sudosu/pkg/correlation"
	"github.com/sudosu-ai/sudosu/pkg/registry"
	"github.com/sudosu-ai/sudosu/pkg/sandbox"
	"github.com/sudosu-ai/sudosu/pkg/stream"
	"github.com/sudosu-ai/sudosu/pkg/transport"
)

// Recorder persists finished turns. The session only ever writes; transcript
// contents never feed back into protocol state.
type Recorder interface {
	Record(sessionID string, turn *stream.Turn) error
}

// Config holds everything a session needs. Connection mode and credential are
// resolved once in Start; they cannot change for the session's lifetime.
type Config struct {
	Connection   config.ConnectionConfig
	Transport    config.TransportConfig
	ProjectRoot  string
	DefaultAgent string

	SandboxTimeout time.Duration
	ApprovedPaths  []string
	Restricted     bool

	Policy   stream.Policy
	Registry *registry.Registry
	Renderer stream.Renderer
	Approver sandbox.Approver
	Recorder Recorder
	Logger   zerolog.Logger
}

// Controller drives a session from Start to End.
type Controller struct {
	id      string
	cfg     Config
	logger  zerolog.Logger
	sandbox *sandbox.Sandbox
	table   *correlation.Table

	mu         sync.Mutex
	channel    *transport.Channel
	mux        *stream.Multiplexer
	started    bool
	ended      bool
	turnActive bool
	queued     bool
	turnDone   chan struct{}
	activeStop context.CancelFunc
}

// New creates a session controller. The project root is safety-checked here:
// anchoring a writable sandbox at the home directory or a system directory is
// refused unless the session is restricted to read-only tools.
func New(cfg Config) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, errors.New("registry is required")
	}
	if cfg.DefaultAgent == "" {
		cfg.DefaultAgent = "assistant"
	}

	if !cfg.Restricted {
		if err := config.CheckProjectRoot(cfg.ProjectRoot); err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger.With().Str("component", "session").Logger()

	sb, err := sandbox.New(sandbox.Config{
		ProjectRoot:   cfg.ProjectRoot,
		Timeout:       cfg.SandboxTimeout,
		ApprovedPaths: cfg.ApprovedPaths,
		ReadOnly:      cfg.Restricted,
		Logger:        cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if cfg.Approver != nil {
		sb.SetApprover(cfg.Approver)
	}

	return &Controller{
		id:      uuid.NewString(),
		cfg:     cfg,
		logger:  logger,
		sandbox: sb,
		table:   correlation.NewTable(logger),
	}, nil
}

// ID returns the session identifier.
func (c *Controller) ID() string {
	return c.id
}

// Sandbox exposes the tool sandbox, mainly so callers can register
// integration providers before Start.
func (c *Controller) Sandbox() *sandbox.Sandbox {
	return c.sandbox
}

// Start resolves the endpoint and credential for the configured mode and
// connects. A session starts at most once.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ended {
		return ErrEnded
	}
	if c.started {
		return errors.New("session already started")
	}

	endpoint, err := c.cfg.Connection.Endpoint()
	if err != nil {
		return err
	}
	credential, err := c.cfg.Connection.ResolveCredential()
	if err != nil {
		return err
	}

	channel, err := transport.Dial(ctx, transport.Config{
		Endpoint:             endpoint,
		CredentialRef:        credential,
		HeartbeatInterval:    c.cfg.Transport.HeartbeatInterval,
		HeartbeatTimeout:     c.cfg.Transport.HeartbeatTimeout,
		MaxReconnectAttempts: c.cfg.Transport.MaxReconnectAttempts,
		BackoffBase:          c.cfg.Transport.BackoffBase,
		BackoffCap:           c.cfg.Transport.BackoffCap,
		SendBufferSize:       c.cfg.Transport.SendBufferSize,
		Logger:               c.cfg.Logger,
	})
	if err != nil {
		return err
	}

	mux, err := stream.New(stream.Config{
		Channel:  channel,
		Executor: c.sandbox,
		Table:    c.table,
		Renderer: c.cfg.Renderer,
		Policy:   c.cfg.Policy,
		Logger:   c.cfg.Logger,
	})
	if err != nil {
		channel.Close()
		return err
	}

	c.channel = channel
	c.mux = mux
	c.started = true

	c.logger.Info().
		Str("sessionId", c.id).
		Str("mode", c.cfg.Connection.Mode).
		Str("root", c.sandbox.Root()).
		Bool("restricted", c.cfg.Restricted).
		Msg("Session started")
	return nil
}

// Submit runs one turn for the given input. Input like "@writer draft this"
// routes to the writer profile; anything else goes to the default agent. At
// most one turn runs at a time and at most one submission may wait for it;
// further submissions fail with ErrBusy.
func (c *Controller) Submit(ctx context.Context, text string) (*stream.Turn, error) {
	mention, body := splitMention(text, c.cfg.DefaultAgent)

	profile, err := c.cfg.Registry.Resolve(mention)
	if err != nil {
		return nil, err
	}

	if err := c.acquireTurnSlot(ctx); err != nil {
		return nil, err
	}
	defer c.releaseTurnSlot()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.setActiveStop(cancel)
	defer c.setActiveStop(nil)

	c.mu.Lock()
	mux := c.mux
	c.mu.Unlock()
	if mux == nil {
		return nil, ErrNotStarted
	}

	turn, err := mux.RunTurn(turnCtx, stream.Input{Text: body, Profile: profile})

	if turn != nil && c.cfg.Recorder != nil {
		if rerr := c.cfg.Recorder.Record(c.id, turn); rerr != nil {
			c.logger.Warn().Err(rerr).Str("turnId", turn.ID).Msg("Failed to record turn")
		}
	}
	return turn, err
}

// CancelActive aborts the running turn, if any.
func (c *Controller) CancelActive() bool {
	c.mu.Lock()
	stop := c.activeStop
	c.mu.Unlock()

	if stop == nil {
		return false
	}
	stop()
	return true
}

// State reports the transport state, or Disconnected before Start.
func (c *Controller) State() transport.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return transport.StateDisconnected
	}
	return c.channel.State()
}

// Fatal exposes the transport's unrecoverable error, if the session started.
func (c *Controller) Fatal() <-chan error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel == nil {
		return nil
	}
	return c.channel.Fatal()
}

// End cancels any active turn and tears the session down. Idempotent.
func (c *Controller) End() error {
	c.CancelActive()

	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return nil
	}
	c.ended = true
	channel := c.channel
	c.mu.Unlock()

	if channel != nil {
		if err := channel.Close(); err != nil {
			return err
		}
	}
	c.logger.Info().Str("sessionId", c.id).Msg("Session ended")
	return nil
}

// acquireTurnSlot enforces one active turn plus one waiter.
func (c *Controller) acquireTurnSlot(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}

	if !c.turnActive {
		c.turnActive = true
		c.turnDone = make(chan struct{})
		c.mu.Unlock()
		return nil
	}
	if c.queued {
		c.mu.Unlock()
		return ErrBusy
	}

	c.queued = true
	done := c.turnDone
	c.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		c.mu.Lock()
		c.queued = false
		c.mu.Unlock()
		return ctx.Err()
	}

	c.mu.Lock()
	c.queued = false
	if c.ended {
		c.mu.Unlock()
		return ErrEnded
	}
	c.turnActive = true
	c.turnDone = make(chan struct{})
	c.mu.Unlock()
	return nil
}

func (c *Controller) releaseTurnSlot() {
	c.mu.Lock()
	c.turnActive = false
	done := c.turnDone
	c.mu.Unlock()
	if done != nil {
		close(done)
	}
}

func (c *Controller) setActiveStop(stop context.CancelFunc) {
	c.mu.Lock()
	c.activeStop = stop
	c.mu.Unlock()
}

// splitMention separates a leading "@agent" from the input body.
func splitMention(text, defaultAgent string) (string, string) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "@") {
		return defaultAgent, trimmed
	}

	parts := strings.SplitN(trimmed, " ", 2)
	mention := strings.TrimPrefix(parts[0], "@")
	body := ""
	if len(parts) == 2 {
		body = strings.TrimSpace(parts[1])
	}
	if mention == "" {
		return defaultAgent, body
	}
	return mention, body
}

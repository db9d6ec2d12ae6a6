// Package transport maintains the single duplex websocket connection a
// session holds to the backend, including reconnection, heartbeating, and
// bounded outbound buffering.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/sudosu-ai/sudosu/pkg/protocol"
)

// State describes the connection lifecycle.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateActive       State = "active"
	StateDraining     State = "draining"
)

const (
	defaultHeartbeatInterval = 20 * time.Second
	defaultSendBufferSize    = 64
	defaultMaxReconnects     = 5
	dialTimeout              = 10 * time.Second
	writeTimeout             = 5 * time.Second
)

// Config holds transport channel configuration.
type Config struct {
	Endpoint             string
	CredentialRef        string
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	MaxReconnectAttempts int
	BackoffBase          time.Duration
	BackoffCap           time.Duration
	SendBufferSize       int
	Logger               zerolog.Logger
}

// Inbound is one received frame. Err is set instead of Frame when the peer
// sent something undecodable; the caller decides how to surface it.
type Inbound struct {
	Frame protocol.Frame
	Err   error
}

// Channel is a persistent duplex connection to the backend. A session owns
// exactly one Channel for its lifetime.
type Channel struct {
	cfg    Config
	logger zerolog.Logger

	outbound chan protocol.Frame
	inbound  chan Inbound
	fatal    chan error
	closed   chan struct{}

	// pending holds a frame whose write failed; it is retried after reconnect
	// so no message is silently dropped.
	pending *protocol.Frame

	lastInbound atomic.Int64

	state     State
	stateMu   sync.RWMutex
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Dial establishes the initial connection and starts the channel's pump. The
// returned error is a *ConnectionError when the endpoint is unreachable.
func Dial(ctx context.Context, cfg Config) (*Channel, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = defaultMaxReconnects
	}

	// Short channel id to correlate log lines across reconnects.
	chanID, err := gonanoid.New(8)
	if err != nil {
		return nil, err
	}

	c := &Channel{
		cfg:      cfg,
		logger:   cfg.Logger.With().Str("component", "transport").Str("channelId", chanID).Logger(),
		outbound: make(chan protocol.Frame, cfg.SendBufferSize),
		inbound:  make(chan Inbound, cfg.SendBufferSize),
		fatal:    make(chan error, 1),
		closed:   make(chan struct{}),
		state:    StateConnecting,
	}

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected)
		return nil, err
	}

	c.noteInbound()
	c.setState(StateActive)
	c.wg.Add(1)
	go c.run(conn)

	c.logger.Info().Str("endpoint", cfg.Endpoint).Msg("Connected to backend")
	return c, nil
}

// Send enqueues a frame for delivery. The buffer is bounded: overflow is a
// fatal condition that transitions the channel to Draining.
func (c *Channel) Send(f protocol.Frame) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	select {
	case c.outbound <- f:
		return nil
	default:
		c.setState(StateDraining)
		c.failFatal(fmt.Errorf("%w (capacity %d)", ErrSendBufferFull, c.cfg.SendBufferSize))
		return ErrSendBufferFull
	}
}

// Frames returns the inbound frame stream.
func (c *Channel) Frames() <-chan Inbound {
	return c.inbound
}

// Fatal delivers the single unrecoverable channel error, if one occurs.
func (c *Channel) Fatal() <-chan error {
	return c.fatal
}

// State returns the current connection state.
func (c *Channel) State() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// Close tears the channel down and waits for its pump to exit.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	c.wg.Wait()
	return nil
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.cfg.CredentialRef != "" {
		header.Set("Authorization", "Bearer "+c.cfg.CredentialRef)
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, c.cfg.Endpoint, header)
	if err != nil {
		return nil, &ConnectionError{Endpoint: c.cfg.Endpoint, Err: err}
	}
	return conn, nil
}

// run owns the physical connection across its whole life, reconnecting with
// bounded, jittered backoff until Close or retry exhaustion.
func (c *Channel) run(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		err := c.pump(conn)
		conn.Close()

		select {
		case <-c.closed:
			c.setState(StateDisconnected)
			return
		default:
		}

		c.logger.Warn().Err(err).Msg("Connection interrupted, reconnecting")
		c.setState(StateConnecting)

		next, rerr := c.reconnect()
		if rerr != nil {
			c.setState(StateDraining)
			c.failFatal(rerr)
			return
		}

		conn = next
		c.noteInbound()
		c.setState(StateActive)
	}
}

// pump services one physical connection: it drains the outbound queue, emits
// heartbeats on idle, and feeds decoded frames to the inbound channel. It
// returns when the connection breaks or the channel closes.
func (c *Channel) pump(conn *websocket.Conn) error {
	readErr := make(chan error, 1)
	go c.readLoop(conn, readErr)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	lastWrite := time.Now()

	for {
		if c.pending != nil {
			if err := c.write(conn, *c.pending); err != nil {
				return err
			}
			c.pending = nil
			lastWrite = time.Now()
			continue
		}

		select {
		case <-c.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil

		case err := <-readErr:
			return err

		case f := <-c.outbound:
			c.pending = &f

		case <-ticker.C:
			if c.cfg.HeartbeatTimeout > 0 {
				last := time.Unix(0, c.lastInbound.Load())
				if time.Since(last) > c.cfg.HeartbeatTimeout {
					return fmt.Errorf("no peer heartbeat within %v", c.cfg.HeartbeatTimeout)
				}
			}
			if time.Since(lastWrite) >= c.cfg.HeartbeatInterval {
				if err := c.write(conn, protocol.Frame{Type: protocol.FrameHeartbeat}); err != nil {
					return err
				}
				lastWrite = time.Now()
			}
		}
	}
}

func (c *Channel) readLoop(conn *websocket.Conn, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			return
		}

		c.noteInbound()

		frame, derr := protocol.Decode(data)
		if derr != nil {
			c.logger.Warn().Err(derr).Msg("Rejected malformed frame")
			c.deliver(Inbound{Err: derr})
			continue
		}

		// Heartbeats only refresh liveness; they never reach the multiplexer.
		if frame.Type == protocol.FrameHeartbeat {
			continue
		}

		c.deliver(Inbound{Frame: frame})
	}
}

func (c *Channel) deliver(in Inbound) {
	select {
	case c.inbound <- in:
	case <-c.closed:
	}
}

func (c *Channel) write(conn *websocket.Conn, f protocol.Frame) error {
	data, err := protocol.Encode(f)
	if err != nil {
		// Undeliverable frame; drop it rather than wedging the pump.
		c.logger.Error().Err(err).Msg("Dropping unencodable frame")
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Channel) reconnect() (*websocket.Conn, error) {
	for attempt := 0; attempt < c.cfg.MaxReconnectAttempts; attempt++ {
		delay := backoffDelay(attempt, c.cfg.BackoffBase, c.cfg.BackoffCap)

		select {
		case <-c.closed:
			return nil, ErrChannelClosed
		case <-time.After(delay):
		}

		conn, err := c.dial(context.Background())
		if err == nil {
			c.logger.Info().Int("attempt", attempt+1).Msg("Reconnected to backend")
			return conn, nil
		}

		c.logger.Warn().
			Int("attempt", attempt+1).
			Int("maxAttempts", c.cfg.MaxReconnectAttempts).
			Err(err).
			Msg("Reconnection attempt failed")
	}

	return nil, ErrConnectionLost
}

func (c *Channel) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

func (c *Channel) noteInbound() {
	c.lastInbound.Store(time.Now().UnixNano())
}

func (c *Channel) failFatal(err error) {
	select {
	case c.fatal <- err:
	default:
	}
}

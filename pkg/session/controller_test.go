package session

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sudosu-ai/sudosu/internal/config"
	"github.com/sudosu-ai/sudosu/pkg/protocol"
	"github.com/sudosu-ai/sudosu/pkg/registry"
	"github.com/sudosu-ai/sudosu/pkg/sandbox"
	"github.com/sudosu-ai/sudosu/pkg/stream"
)

func confirmReq() sandbox.ConfirmRequest {
	return sandbox.ConfirmRequest{Tool: "write_file", Path: "/project/a.txt", AgentID: "writer"}
}

var upgrader = websocket.Upgrader{}

// newBackend starts a websocket server that calls respond for every decoded
// non-heartbeat frame. send is safe for concurrent use.
func newBackend(t *testing.T, respond func(f protocol.Frame, send func(protocol.Frame))) string {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var mu sync.Mutex
		send := func(f protocol.Frame) {
			data, err := protocol.Encode(f)
			if err != nil {
				return
			}
			mu.Lock()
			_ = conn.WriteMessage(websocket.TextMessage, data)
			mu.Unlock()
		}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frame, err := protocol.Decode(data)
			if err != nil || frame.Type == protocol.FrameHeartbeat {
				continue
			}
			respond(frame, send)
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// echoBackend streams the input back as one delta and completes the turn.
func echoBackend(t *testing.T) string {
	return newBackend(t, func(f protocol.Frame, send func(protocol.Frame)) {
		if f.Type != protocol.FrameUserInput {
			return
		}
		send(protocol.Frame{Type: protocol.FrameTextDelta, TurnID: f.TurnID, Seq: 1, Text: "echo: " + f.Text})
		send(protocol.Frame{Type: protocol.FrameTurnComplete, TurnID: f.TurnID, Seq: 2})
	})
}

func testRegistry(t *testing.T, agents ...string) *registry.Registry {
	t.Helper()
	dir := t.TempDir()
	agentsDir := filepath.Join(dir, "agents")
	require.NoError(t, os.MkdirAll(agentsDir, 0755))
	for _, name := range agents {
		body := "persona: You are " + name + ".\n"
		require.NoError(t, os.WriteFile(filepath.Join(agentsDir, name+".yaml"), []byte(body), 0644))
	}
	return registry.New(registry.Config{GlobalDir: dir, Logger: zerolog.Nop()})
}

func newTestController(t *testing.T, endpoint string, mutate func(*Config)) *Controller {
	t.Helper()

	cfg := Config{
		Connection: config.ConnectionConfig{
			Mode:        "dev",
			DevEndpoint: endpoint,
		},
		Transport: config.TransportConfig{
			HeartbeatInterval: time.Second,
			SendBufferSize:    16,
		},
		ProjectRoot:  t.TempDir(),
		DefaultAgent: "assistant",
		Registry:     testRegistry(t, "assistant", "writer"),
		Logger:       zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	ctrl, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ctrl.End() })
	return ctrl
}

type captureRenderer struct {
	mu     sync.Mutex
	deltas []string
}

func (r *captureRenderer) WriteDelta(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, text)
}
func (r *captureRenderer) ToolStarted(stream.ToolCall)          {}
func (r *captureRenderer) ToolResolved(stream.ToolCall, string) {}

func (r *captureRenderer) text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.deltas, "")
}

func TestSubmit_RoundTrip(t *testing.T) {
	rend := &captureRenderer{}
	ctrl := newTestController(t, echoBackend(t), func(cfg *Config) {
		cfg.Renderer = rend
	})
	require.NoError(t, ctrl.Start(context.Background()))

	turn, err := ctrl.Submit(context.Background(), "@writer draft a haiku")
	require.NoError(t, err)

	assert.Equal(t, stream.TurnCompleted, turn.State)
	assert.Equal(t, "writer", turn.Agent)
	assert.Equal(t, "echo: draft a haiku", rend.text())
}

func TestSubmit_PlainInputGoesToDefaultAgent(t *testing.T) {
	var mu sync.Mutex
	var seenAgent string
	endpoint := newBackend(t, func(f protocol.Frame, send func(protocol.Frame)) {
		if f.Type != protocol.FrameUserInput {
			return
		}
		mu.Lock()
		seenAgent = f.Agent
		mu.Unlock()
		send(protocol.Frame{Type: protocol.FrameTurnComplete, TurnID: f.TurnID, Seq: 1})
	})

	ctrl := newTestController(t, endpoint, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	turn, err := ctrl.Submit(context.Background(), "just some input")
	require.NoError(t, err)
	assert.Equal(t, stream.TurnCompleted, turn.State)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "assistant", seenAgent)
}

func TestSubmit_UnknownAgent(t *testing.T) {
	ctrl := newTestController(t, echoBackend(t), nil)
	require.NoError(t, ctrl.Start(context.Background()))

	_, err := ctrl.Submit(context.Background(), "@ghost hello")
	require.ErrorIs(t, err, registry.ErrUnknownAgent)
}

func TestSubmit_BeforeStart(t *testing.T) {
	ctrl := newTestController(t, echoBackend(t), nil)

	_, err := ctrl.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, ErrNotStarted)
}

func TestSubmit_BusyWithOneQueuedSlot(t *testing.T) {
	// The backend holds the first turn open long enough to stack submissions.
	endpoint := newBackend(t, func(f protocol.Frame, send func(protocol.Frame)) {
		if f.Type != protocol.FrameUserInput {
			return
		}
		go func() {
			time.Sleep(300 * time.Millisecond)
			send(protocol.Frame{Type: protocol.FrameTurnComplete, TurnID: f.TurnID, Seq: 1})
		}()
	})

	ctrl := newTestController(t, endpoint, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	results := make(chan error, 2)
	go func() {
		_, err := ctrl.Submit(context.Background(), "first")
		results <- err
	}()
	time.Sleep(50 * time.Millisecond)
	go func() {
		_, err := ctrl.Submit(context.Background(), "second")
		results <- err
	}()
	time.Sleep(50 * time.Millisecond)

	// Active turn plus one queued input: a third submission is refused.
	_, err := ctrl.Submit(context.Background(), "third")
	require.ErrorIs(t, err, ErrBusy)

	require.NoError(t, <-results)
	require.NoError(t, <-results)
}

func TestCancelActive(t *testing.T) {
	// This backend never completes turns.
	endpoint := newBackend(t, func(protocol.Frame, func(protocol.Frame)) {})

	ctrl := newTestController(t, endpoint, nil)
	require.NoError(t, ctrl.Start(context.Background()))

	done := make(chan *stream.Turn, 1)
	go func() {
		turn, err := ctrl.Submit(context.Background(), "hang forever")
		assert.NoError(t, err)
		done <- turn
	}()

	require.Eventually(t, func() bool { return ctrl.CancelActive() },
		2*time.Second, 10*time.Millisecond)

	select {
	case turn := <-done:
		assert.Equal(t, stream.TurnCancelled, turn.State)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled turn did not finish")
	}

	assert.False(t, ctrl.CancelActive())
}

func TestNew_UnsafeRootRefused(t *testing.T) {
	cfg := Config{
		Connection:  config.ConnectionConfig{Mode: "dev", DevEndpoint: "ws://localhost:1/ws"},
		ProjectRoot: "/tmp",
		Registry:    testRegistry(t, "assistant"),
		Logger:      zerolog.Nop(),
	}

	_, err := New(cfg)
	require.ErrorIs(t, err, config.ErrUnsafeRoot)

	// Read-only sessions may anchor anywhere.
	cfg.Restricted = true
	ctrl, err := New(cfg)
	require.NoError(t, err)
	_ = ctrl.End()
}

type memoryRecorder struct {
	mu    sync.Mutex
	turns []*stream.Turn
}

func (m *memoryRecorder) Record(_ string, turn *stream.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, turn)
	return nil
}

func TestSubmit_RecordsFinishedTurns(t *testing.T) {
	rec := &memoryRecorder{}
	ctrl := newTestController(t, echoBackend(t), func(cfg *Config) {
		cfg.Recorder = rec
	})
	require.NoError(t, ctrl.Start(context.Background()))

	_, err := ctrl.Submit(context.Background(), "hello")
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.turns, 1)
	assert.Equal(t, stream.TurnCompleted, rec.turns[0].State)
}

func TestEnd_Idempotent(t *testing.T) {
	ctrl := newTestController(t, echoBackend(t), nil)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.End())
	require.NoError(t, ctrl.End())

	_, err := ctrl.Submit(context.Background(), "hello")
	require.ErrorIs(t, err, ErrEnded)
}

func TestSplitMention(t *testing.T) {
	tests := []struct {
		in      string
		mention string
		body    string
	}{
		{"@writer draft this", "writer", "draft this"},
		{"plain text", "assistant", "plain text"},
		{"  @coder  fix the bug ", "coder", "fix the bug"},
		{"@writer", "writer", ""},
		{"@ lonely at", "assistant", "lonely at"},
	}

	for _, tt := range tests {
		mention, body := splitMention(tt.in, "assistant")
		assert.Equal(t, tt.mention, mention, tt.in)
		assert.Equal(t, tt.body, body, tt.in)
	}
}

func TestCLIApprover(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		approved bool
	}{
		{"yes", "y\n", true},
		{"yes word", "yes\n", true},
		{"no", "n\n", false},
		{"empty line", "\n", false},
		{"garbage", "maybe\n", false},
		{"eof", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out strings.Builder
			a := NewCLIApprover(strings.NewReader(tt.input), &out, zerolog.Nop())

			approved, err := a.Confirm(context.Background(), confirmReq())
			require.NoError(t, err)
			assert.Equal(t, tt.approved, approved)
			assert.Contains(t, out.String(), "[y/N]")
		})
	}
}

func TestCLIApprover_SharedReaderKeepsTypeAhead(t *testing.T) {
	stdin := bufio.NewReader(strings.NewReader("y\nnext chat line\n"))
	var out strings.Builder
	a := NewCLIApprover(stdin, &out, zerolog.Nop())

	approved, err := a.Confirm(context.Background(), confirmReq())
	require.NoError(t, err)
	assert.True(t, approved)

	// The confirmation consumed only its own line; input typed ahead is
	// still readable on the shared buffer.
	rest, err := stdin.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "next chat line\n", rest)
}

func TestCLIApprover_ContextCancelled(t *testing.T) {
	var out strings.Builder
	// A reader that never produces input.
	blocked, _, _ := os.Pipe()
	defer blocked.Close()
	a := NewCLIApprover(blocked, &out, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	approved, err := a.Confirm(ctx, confirmReq())
	require.Error(t, err)
	assert.False(t, approved)
}

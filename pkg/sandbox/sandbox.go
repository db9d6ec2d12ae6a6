// Package sandbox executes tool calls on behalf of remote agents, constrained
// to a project root and a confirmation policy. Built-in filesystem tools are a
// closed set; integration tools are dispatched through a provider registry
// built at startup.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
)

// Built-in tool names.
const (
	ToolReadFile      = "read_file"
	ToolWriteFile     = "write_file"
	ToolListDirectory = "list_dir"
)

const defaultTimeout = 30 * time.Second

// Status is the terminal state of one tool execution.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Request describes one tool execution.
type Request struct {
	CallID  string
	Tool    string
	Args    map[string]interface{}
	AgentID string

	// AutoApprove skips overwrite confirmation; set for profiles the user has
	// marked auto-approved.
	AutoApprove bool

	// Timeout overrides the sandbox default when positive.
	Timeout time.Duration
}

// Result is the terminal outcome of one tool execution.
type Result struct {
	CallID   string
	Status   Status
	Payload  map[string]interface{}
	Error    string
	Duration time.Duration
}

// ConfirmRequest asks the user whether an overwrite may proceed.
type ConfirmRequest struct {
	Tool    string
	Path    string
	AgentID string
}

// Approver is the confirmation boundary owned by the session controller.
type Approver interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// Config holds sandbox configuration.
type Config struct {
	// ProjectRoot anchors all filesystem tools. Must be an existing directory.
	ProjectRoot string

	// Timeout bounds each tool execution.
	Timeout time.Duration

	// ApprovedPaths are project-relative paths that may be overwritten without
	// confirmation.
	ApprovedPaths []string

	// ReadOnly disables mutating tools (restricted mode).
	ReadOnly bool

	Logger zerolog.Logger
}

// Sandbox executes tool requests against the project root.
type Sandbox struct {
	root      string
	timeout   time.Duration
	readOnly  bool
	approver  Approver
	providers *ProviderRegistry
	schemas   map[string]*gojsonschema.Schema
	approved  map[string]struct{}
	logger    zerolog.Logger

	writeLocks map[string]*sync.Mutex
	locksMu    sync.Mutex
}

// New creates a sandbox rooted at cfg.ProjectRoot. The root is resolved
// through symlinks once so later containment checks compare like with like.
func New(cfg Config) (*Sandbox, error) {
	if cfg.ProjectRoot == "" {
		return nil, fmt.Errorf("project root is required")
	}

	abs, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	root, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project root is not a directory: %s", root)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	schemas, err := builtinSchemas()
	if err != nil {
		return nil, err
	}

	approved := make(map[string]struct{}, len(cfg.ApprovedPaths))
	for _, p := range cfg.ApprovedPaths {
		approved[filepath.Clean(filepath.Join(root, p))] = struct{}{}
	}

	return &Sandbox{
		root:       root,
		timeout:    cfg.Timeout,
		readOnly:   cfg.ReadOnly,
		providers:  NewProviderRegistry(),
		schemas:    schemas,
		approved:   approved,
		logger:     cfg.Logger.With().Str("component", "sandbox").Logger(),
		writeLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the resolved project root.
func (s *Sandbox) Root() string {
	return s.root
}

// SetApprover installs the confirmation boundary.
func (s *Sandbox) SetApprover(a Approver) {
	s.approver = a
}

// Providers returns the integration tool registry.
func (s *Sandbox) Providers() *ProviderRegistry {
	return s.providers
}

// Invoke executes one tool request and always returns a terminal Result. The
// execution runs on its own goroutine under a bounded timeout; an operation
// that outlives the bound is abandoned and its result discarded.
func (s *Sandbox) Invoke(ctx context.Context, req Request) Result {
	start := time.Now()

	timeout := s.timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		payload map[string]interface{}
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: &ToolError{Tool: req.Tool, Message: fmt.Sprintf("panic: %v", r)}}
			}
		}()
		payload, err := s.execute(execCtx, req)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		duration := time.Since(start)
		res := Result{CallID: req.CallID, Duration: duration}

		switch {
		case out.err == nil:
			res.Status = StatusSucceeded
			res.Payload = out.payload
		case errors.Is(out.err, errWriteDeclined), errors.Is(out.err, context.Canceled):
			res.Status = StatusCancelled
			res.Error = out.err.Error()
		case errors.Is(out.err, context.DeadlineExceeded):
			res.Status = StatusTimeout
			res.Error = fmt.Sprintf("tool execution exceeded %v", timeout)
		default:
			res.Status = StatusFailed
			res.Error = out.err.Error()
		}

		s.logger.Debug().
			Str("tool", req.Tool).
			Str("callId", req.CallID).
			Str("status", string(res.Status)).
			Dur("duration", duration).
			Msg("Tool execution finished")
		return res

	case <-execCtx.Done():
		duration := time.Since(start)

		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			s.logger.Warn().
				Str("tool", req.Tool).
				Str("callId", req.CallID).
				Dur("timeout", timeout).
				Msg("Tool execution timed out")
			return Result{
				CallID:   req.CallID,
				Status:   StatusTimeout,
				Error:    fmt.Sprintf("tool execution exceeded %v", timeout),
				Duration: duration,
			}
		}

		// Caller cancelled: the in-flight operation finishes on its own and
		// the result is discarded.
		return Result{
			CallID:   req.CallID,
			Status:   StatusCancelled,
			Error:    "cancelled",
			Duration: duration,
		}
	}
}

func (s *Sandbox) execute(ctx context.Context, req Request) (map[string]interface{}, error) {
	if schema, ok := s.schemas[req.Tool]; ok {
		if err := validateArgs(schema, req.Args); err != nil {
			return nil, err
		}
	}

	switch req.Tool {
	case ToolReadFile:
		return s.readFile(req.Args)
	case ToolWriteFile:
		return s.writeFile(ctx, req)
	case ToolListDirectory:
		return s.listDir(req.Args)
	}

	provider, ok := s.providers.Lookup(req.Tool)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, req.Tool)
	}

	payload, err := provider.Invoke(ctx, req.Tool, req.Args)
	if err != nil {
		var terr *ToolError
		if errors.As(err, &terr) {
			return nil, err
		}
		return nil, &ToolError{Tool: req.Tool, Message: err.Error()}
	}
	return payload, nil
}

// resolvePath maps a tool-supplied path into the project root, rejecting
// traversal and symlink escapes before any I/O.
func (s *Sandbox) resolvePath(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(raw, "://") {
		return "", fmt.Errorf("path must be a local file")
	}

	candidate := raw
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(s.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if !within(s.root, candidate) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, raw)
	}

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", err
	}
	if !within(s.root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathEscape, raw)
	}

	return resolved, nil
}

// resolveExisting resolves symlinks in the deepest existing ancestor of path
// and rejoins the non-existent remainder.
func resolveExisting(path string) (string, error) {
	var suffix []string
	cur := path

	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(suffix) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, suffix[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = append(suffix, filepath.Base(cur))
		cur = parent
	}
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// writeLock serializes writes to one resolved path within a session.
func (s *Sandbox) writeLock(path string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	if lock, exists := s.writeLocks[path]; exists {
		return lock
	}
	lock := &sync.Mutex{}
	s.writeLocks[path] = lock
	return lock
}

func (s *Sandbox) preApproved(path string) bool {
	_, ok := s.approved[path]
	return ok
}

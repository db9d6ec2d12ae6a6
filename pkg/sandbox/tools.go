package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const defaultReadLimit = 200_000

func (s *Sandbox) readFile(args map[string]interface{}) (map[string]interface{}, error) {
	pathValue, _ := args["path"].(string)
	target, err := s.resolvePath(pathValue)
	if err != nil {
		return nil, err
	}

	limit := int64(defaultReadLimit)
	if raw, ok := args["max_bytes"].(float64); ok && raw > 0 {
		limit = int64(raw)
	}

	data, truncated, err := readWithLimit(target, limit)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"path":      pathValue,
		"content":   string(data),
		"bytes":     len(data),
		"truncated": truncated,
	}, nil
}

func (s *Sandbox) writeFile(ctx context.Context, req Request) (map[string]interface{}, error) {
	if s.readOnly {
		return nil, ErrReadOnly
	}

	pathValue, _ := req.Args["path"].(string)
	target, err := s.resolvePath(pathValue)
	if err != nil {
		return nil, err
	}
	content, _ := req.Args["content"].(string)
	appendMode, _ := req.Args["append"].(bool)

	// Same-path writes within a turn must not interleave: the second write
	// waits for the first to resolve.
	lock := s.writeLock(target)
	lock.Lock()
	defer lock.Unlock()

	if _, statErr := os.Stat(target); statErr == nil && !appendMode {
		if err := s.confirmOverwrite(ctx, req, target); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return nil, err
	}

	flag := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flag |= os.O_APPEND
	} else {
		flag |= os.O_TRUNC
	}
	file, err := os.OpenFile(target, flag, 0644)
	if err != nil {
		return nil, err
	}
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"path":   pathValue,
		"bytes":  len(content),
		"append": appendMode,
	}, nil
}

// confirmOverwrite enforces the overwrite policy: pre-approved paths and
// auto-approved agents proceed; everything else needs a user confirmation.
func (s *Sandbox) confirmOverwrite(ctx context.Context, req Request, target string) error {
	if s.preApproved(target) || req.AutoApprove {
		return nil
	}
	if s.approver == nil {
		return errWriteDeclined
	}

	ok, err := s.approver.Confirm(ctx, ConfirmRequest{
		Tool:    req.Tool,
		Path:    target,
		AgentID: req.AgentID,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		s.logger.Warn().Err(err).Str("path", target).Msg("Overwrite confirmation failed")
		return errWriteDeclined
	}
	if !ok {
		return errWriteDeclined
	}
	return nil
}

func (s *Sandbox) listDir(args map[string]interface{}) (map[string]interface{}, error) {
	pathValue, _ := args["path"].(string)
	if pathValue == "" {
		pathValue = "."
	}
	target, err := s.resolvePath(pathValue)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(target)
	if err != nil {
		return nil, err
	}

	listing := make([]map[string]interface{}, 0, len(entries))
	for _, entry := range entries {
		item := map[string]interface{}{
			"name": entry.Name(),
			"dir":  entry.IsDir(),
		}
		if info, err := entry.Info(); err == nil && !entry.IsDir() {
			item["size"] = info.Size()
		}
		listing = append(listing, item)
	}

	return map[string]interface{}{
		"path":    pathValue,
		"entries": listing,
	}, nil
}

func readWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	truncated := false
	extra := make([]byte, 1)
	if _, err := file.Read(extra); err == nil {
		truncated = true
	}
	return buf.Bytes(), truncated, nil
}

// String renders a short human-readable form for prompts and logs.
func (r ConfirmRequest) String() string {
	return fmt.Sprintf("%s wants to overwrite %s", r.Tool, r.Path)
}

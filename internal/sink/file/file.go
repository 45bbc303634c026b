// Package file is a sink that appends report rows to local CSV files and
// server events to an NDJSON file.
package file

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

const defaultBufSize = 64 * 1024 // 64KB

func init() {
	sink.Register("files", func(cfg *config.Config) (sink.Sink, bool, error) {
		if !cfg.Files.Enabled() {
			return nil, false, nil
		}
		return New(cfg.Files), true, nil
	})
}

// target is one output file, lazily opened on first write.
type target struct {
	path string
	f    *os.File
	w    *bufio.Writer
}

func (t *target) open(truncate bool) error {
	if t.path == "" || t.f != nil {
		return nil
	}
	if dir := filepath.Dir(t.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("file sink: mkdir %s: %w", dir, err)
		}
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if truncate {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}
	f, err := os.OpenFile(t.path, flags, 0644)
	if err != nil {
		return fmt.Errorf("file sink: open %s: %w", t.path, err)
	}
	t.f = f
	t.w = bufio.NewWriterSize(f, defaultBufSize)
	return nil
}

func (t *target) close() error {
	if t.f == nil {
		return nil
	}
	if err := t.w.Flush(); err != nil {
		t.f.Close()
		return fmt.Errorf("file sink: flush %s: %w", t.path, err)
	}
	err := t.f.Close()
	t.f, t.w = nil, nil
	return err
}

// Sink writes each report kind to its configured path. Report rows go out as
// comma-joined lines, matching the upstream wire form; server events as one
// JSON object per line.
type Sink struct {
	sink.Base

	mu       sync.Mutex
	truncate bool
	summary  target
	detailed target
	audit    target
	events   target
}

// New creates a file sink over the configured paths. Files open lazily on
// the first batch for their report kind.
func New(cfg config.FilesConfig) *Sink {
	return &Sink{
		summary:  target{path: cfg.SummaryUsage},
		detailed: target{path: cfg.DetailedUsage},
		audit:    target{path: cfg.AuditLog},
		events:   target{path: cfg.ServerEvents},
	}
}

func (s *Sink) Name() string { return "files" }

// Reset makes the next open of each file truncate instead of append. Used
// when the pump replays history from scratch.
func (s *Sink) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.truncate = true
	for _, t := range []*target{&s.summary, &s.detailed, &s.audit, &s.events} {
		if err := t.close(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every open file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, t := range []*target{&s.summary, &s.detailed, &s.audit, &s.events} {
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Sink) UpdateSummary(_ context.Context, _ model.Header, rows []model.Row, _ string) error {
	return s.writeRows(&s.summary, rows)
}

func (s *Sink) UpdateDetailed(_ context.Context, _ model.Header, rows []model.Row, _ string) error {
	return s.writeRows(&s.detailed, rows)
}

func (s *Sink) UpdateAudit(_ context.Context, _ model.Header, rows []model.Row, _ string) error {
	return s.writeRows(&s.audit, rows)
}

func (s *Sink) OnServerEvents(_ context.Context, events []model.ServerEvent, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events.path == "" || len(events) == 0 {
		return nil
	}
	if err := s.events.open(s.truncate); err != nil {
		return err
	}
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("file sink: marshal event: %w", err)
		}
		data = append(data, '\n')
		if _, err := s.events.w.Write(data); err != nil {
			return fmt.Errorf("file sink: write %s: %w", s.events.path, err)
		}
	}
	return s.events.w.Flush()
}

func (s *Sink) writeRows(t *target, rows []model.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.path == "" || len(rows) == 0 {
		return nil
	}
	if err := t.open(s.truncate); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := t.w.WriteString(strings.Join(row, ",") + "\n"); err != nil {
			return fmt.Errorf("file sink: write %s: %w", t.path, err)
		}
	}
	return t.w.Flush()
}

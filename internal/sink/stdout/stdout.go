// Package stdout is a sink that echoes server events to standard output as
// NDJSON, one object per line.
package stdout

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

func init() {
	sink.Register("stdout", func(cfg *config.Config) (sink.Sink, bool, error) {
		if !cfg.Stdout.Enabled {
			return nil, false, nil
		}
		return New(os.Stdout, cfg.Stdout.Pretty), true, nil
	})
}

// Sink writes each server event as one JSON line, suitable for piping into
// jq or another process.
type Sink struct {
	sink.Base
	mu  sync.Mutex
	enc *json.Encoder
}

// New creates a stdout sink writing to w.
func New(w io.Writer, pretty bool) *Sink {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Sink{enc: enc}
}

func (s *Sink) Name() string { return "stdout" }

func (s *Sink) OnServerEvents(_ context.Context, events []model.ServerEvent, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		if err := s.enc.Encode(ev); err != nil {
			return fmt.Errorf("stdout sink: %w", err)
		}
	}
	return nil
}

package mcpwatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/mcp"
	"github.com/mcp-watch/mcpwatch/internal/pump"
	"github.com/mcp-watch/mcpwatch/internal/sink"
	"github.com/mcp-watch/mcpwatch/internal/sink/async"

	// Register sink implementations.
	_ "github.com/mcp-watch/mcpwatch/internal/sink/chat"
	_ "github.com/mcp-watch/mcpwatch/internal/sink/elastic"
	_ "github.com/mcp-watch/mcpwatch/internal/sink/file"
	_ "github.com/mcp-watch/mcpwatch/internal/sink/influx"
	_ "github.com/mcp-watch/mcpwatch/internal/sink/qualys"
	_ "github.com/mcp-watch/mcpwatch/internal/sink/stdout"
)

// Watcher pumps usage reports and audit logs for a set of regions into the
// configured sinks. Create one with New, drive it with Run, release it with
// Close.
type Watcher struct {
	pump  *pump.Pump
	sinks []sink.Sink
}

// New builds a Watcher from configuration and options. Unless the
// organization id is injected, construction performs one discovery round
// trip per region.
func New(ctx context.Context, opts ...Option) (*Watcher, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, fmt.Errorf("mcpwatch: %w", err)
	}
	if o.user != "" {
		cfg.Pump.User, cfg.Pump.Password = o.user, o.password
	}
	if len(o.regions) > 0 {
		cfg.Pump.Regions = o.regions
	}
	if o.horizon != "" {
		cfg.Pump.Horizon = o.horizon
	}
	if o.poll > 0 {
		cfg.Pump.PollInterval.Duration = o.poll
	}
	if o.stepPause > 0 {
		cfg.Pump.StepPause.Duration = o.stepPause
	}

	since := o.since
	if since.IsZero() {
		if since, err = cfg.Since(time.Now()); err != nil {
			return nil, fmt.Errorf("mcpwatch: %w", err)
		}
	}

	sinks, err := sink.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("mcpwatch: %w", err)
	}
	for i, s := range sinks {
		switch s.Name() {
		case "chat", "qualys":
			sinks[i] = async.New(s)
		}
	}

	w := &Watcher{sinks: sinks}
	for _, s := range sinks {
		open := s.Open
		if o.reset {
			open = s.Reset
		}
		if err := open(ctx); err != nil {
			w.Close()
			return nil, fmt.Errorf("mcpwatch: sink %s: %w", s.Name(), err)
		}
	}

	var epOpts []mcp.Option
	if o.endpoint != "" {
		epOpts = append(epOpts, mcp.WithEndpoint(o.endpoint))
	}
	if o.orgID != "" {
		epOpts = append(epOpts, mcp.WithOrgID(o.orgID))
	}

	var regions []pump.Region
	for _, name := range cfg.Pump.Regions {
		ep, err := mcp.New(ctx, cfg.Pump.User, cfg.Pump.Password, name, epOpts...)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("mcpwatch: %w", err)
		}
		regions = append(regions, pump.Region{Name: name, Fetcher: ep, Resolver: ep})
	}

	w.pump = pump.New(regions, pump.NewDispatcher(sinks, o.logger),
		pump.WithSince(since),
		pump.WithPollInterval(cfg.Pump.PollInterval.Duration),
		pump.WithStepPause(cfg.Pump.StepPause.Duration),
		pump.WithLogger(o.logger),
	)
	return w, nil
}

// Run pumps until the context is cancelled. Cancellation is a normal
// shutdown, not an error.
func (w *Watcher) Run(ctx context.Context) error {
	err := w.pump.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcpwatch: %w", err)
	}
	return nil
}

// Close flushes and releases every sink.
func (w *Watcher) Close() error {
	var firstErr error
	for _, s := range w.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

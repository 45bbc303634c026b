// Command mcpwatch pumps usage reports and audit logs out of the Managed
// Cloud Platform and feeds them to the configured sinks.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexflint/go-arg"

	"github.com/mcp-watch/mcpwatch/internal/config"
	"github.com/mcp-watch/mcpwatch/internal/logging"
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

var version = "dev"

type args struct {
	Config   string `arg:"-c,--config" default:"mcpwatch.toml" help:"path to the TOML configuration file"`
	Since    string `arg:"--since" help:"first day to pump (YYYY-MM-DD), overrides the configuration"`
	Horizon  string `arg:"--horizon" help:"how far back to pump: 90d, 3m, 1y"`
	Reset    bool   `arg:"--reset" help:"reset sink stores before pumping"`
	LogLevel string `arg:"--log-level" default:"info" help:"debug, info, warn or error"`
	LogJSON  bool   `arg:"--log-json" help:"log as JSON instead of text"`
}

func (args) Version() string { return "mcpwatch " + version }

func main() {
	var a args
	arg.MustParse(&a)

	cfg, err := config.Load(a.Config)
	if err != nil {
		slog.Error("configuration failed", "error", err)
		os.Exit(1)
	}
	if a.Since != "" {
		cfg.Pump.Since = a.Since
	}
	if a.Horizon != "" {
		cfg.Pump.Horizon = a.Horizon
	}

	logging.Setup(cfg, a.LogLevel, a.LogJSON)

	if err := run(cfg, a.Reset); err != nil {
		slog.Error("pump failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, reset bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	since, err := cfg.Since(time.Now())
	if err != nil {
		return err
	}

	sinks, err := sink.FromConfig(cfg)
	if err != nil {
		return err
	}
	sinks = wrapNotifiers(sinks)
	defer func() {
		for _, s := range sinks {
			if err := s.Close(); err != nil {
				slog.Warn("sink close failed", "sink", s.Name(), "error", err)
			}
		}
	}()
	for _, s := range sinks {
		open := s.Open
		if reset {
			open = s.Reset
		}
		if err := open(ctx); err != nil {
			return err
		}
		slog.Info("using sink", "sink", s.Name())
	}

	var regions []pump.Region
	for _, name := range cfg.Pump.Regions {
		ep, err := mcp.New(ctx, cfg.Pump.User, cfg.Pump.Password, name)
		if err != nil {
			return err
		}
		regions = append(regions, pump.Region{Name: name, Fetcher: ep, Resolver: ep})
	}

	slog.Info("starting pump",
		"regions", len(regions), "sinks", len(sinks), "since", since.Format("2006-01-02"))

	p := pump.New(regions, pump.NewDispatcher(sinks, slog.Default()),
		pump.WithSince(since),
		pump.WithPollInterval(cfg.Pump.PollInterval.Duration),
		pump.WithStepPause(cfg.Pump.StepPause.Duration),
	)
	if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// wrapNotifiers moves the slow outward-facing sinks behind an async queue so
// a stuck webhook or scanner API cannot stall the region workers.
func wrapNotifiers(sinks []sink.Sink) []sink.Sink {
	for i, s := range sinks {
		switch s.Name() {
		case "chat", "qualys":
			sinks[i] = async.New(s)
		}
	}
	return sinks
}

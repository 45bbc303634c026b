package pump

import (
	"context"
	"log/slog"
	"slices"

	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

// Dispatcher fans report rows and server events out to every registered
// sink. Registration order determines dispatch order; delivery to each sink
// is independent, so one failing sink never starves the others.
type Dispatcher struct {
	sinks  []sink.Sink
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher over the given sinks.
func NewDispatcher(sinks []sink.Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sinks: sinks, logger: logger}
}

// Summary delivers summary usage rows to all active sinks.
func (d *Dispatcher) Summary(ctx context.Context, header model.Header, rows []model.Row, region string) {
	d.each(ctx, "summary usage", region, len(rows), func(s sink.Sink) error {
		return s.UpdateSummary(ctx, header, model.Clone(rows), region)
	})
}

// Detailed delivers detailed usage rows to all active sinks.
func (d *Dispatcher) Detailed(ctx context.Context, header model.Header, rows []model.Row, region string) {
	d.each(ctx, "detailed usage", region, len(rows), func(s sink.Sink) error {
		return s.UpdateDetailed(ctx, header, model.Clone(rows), region)
	})
}

// Audit delivers audit log rows to all active sinks.
func (d *Dispatcher) Audit(ctx context.Context, header model.Header, rows []model.Row, region string) {
	d.each(ctx, "audit log", region, len(rows), func(s sink.Sink) error {
		return s.UpdateAudit(ctx, header, model.Clone(rows), region)
	})
}

// ServerEvents delivers a batch of server activations to all active sinks.
func (d *Dispatcher) ServerEvents(ctx context.Context, events []model.ServerEvent, region string) {
	d.each(ctx, "server events", region, len(events), func(s sink.Sink) error {
		return s.OnServerEvents(ctx, slices.Clone(events), region)
	})
}

// each invokes call on every active sink with failure isolation. Every sink
// receives a fresh copy of the batch (the callbacks above clone), so sinks
// cannot observe each other's mutations. An all-inactive sink set with a
// non-empty batch produces exactly one warning per call.
func (d *Dispatcher) each(ctx context.Context, kind, region string, size int, call func(sink.Sink) error) {
	active := 0
	for _, s := range d.sinks {
		if !s.Active() {
			continue
		}
		active++
		if err := call(s); err != nil {
			d.logger.Error("sink update failed",
				"sink", s.Name(), "report", kind, "region", region, "error", err)
		}
	}
	if active == 0 && size > 0 {
		d.logger.Warn("no active sink, dropping batch",
			"report", kind, "region", region, "items", size)
	}
}

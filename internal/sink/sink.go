// Package sink defines the capability contract for report and event
// destinations, and a registry of named sink constructors.
package sink

import (
	"context"

	"github.com/mcp-watch/mcpwatch/internal/model"
)

// Sink receives report rows and server events for one region at a time.
// Every update method must tolerate an empty batch and a nil header.
// Implementations are called from multiple region workers and must be safe
// for concurrent use. The header is shared across sinks and must not be
// mutated.
type Sink interface {
	// Name identifies the sink in logs and in configuration.
	Name() string

	// Active reports whether the sink currently accepts batches. Inactive
	// sinks stay registered but are skipped by the dispatcher.
	Active() bool

	// Open prepares the sink for appending to an existing store.
	Open(ctx context.Context) error

	// Reset prepares the sink against a fresh store, discarding prior data
	// where the backend supports it. Used for historical re-pumps.
	Reset(ctx context.Context) error

	// Close flushes and releases the sink.
	Close() error

	UpdateSummary(ctx context.Context, header model.Header, rows []model.Row, region string) error
	UpdateDetailed(ctx context.Context, header model.Header, rows []model.Row, region string) error
	UpdateAudit(ctx context.Context, header model.Header, rows []model.Row, region string) error
	OnServerEvents(ctx context.Context, events []model.ServerEvent, region string) error
}

// Base provides no-op implementations of the optional Sink methods.
// Concrete sinks embed it and override what they care about.
type Base struct{}

func (Base) Active() bool                   { return true }
func (Base) Open(context.Context) error     { return nil }
func (Base) Reset(context.Context) error    { return nil }
func (Base) Close() error                   { return nil }

func (Base) UpdateSummary(context.Context, model.Header, []model.Row, string) error  { return nil }
func (Base) UpdateDetailed(context.Context, model.Header, []model.Row, string) error { return nil }
func (Base) UpdateAudit(context.Context, model.Header, []model.Row, string) error    { return nil }
func (Base) OnServerEvents(context.Context, []model.ServerEvent, string) error {
	return nil
}

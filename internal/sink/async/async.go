// Package async wraps a sink so slow deliveries (webhooks, scan triggers)
// cannot stall the region workers.
package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

const (
	defaultBufferSize   = 256
	defaultDrainTimeout = 5 * time.Second
)

// Option configures an Async wrapper.
type Option func(*Async)

// WithBufferSize sets the job buffer capacity. Default: 256.
func WithBufferSize(n int) Option {
	return func(a *Async) { a.bufSize = n }
}

// WithOnError sets the callback invoked when the inner sink fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(a *Async) { a.errFunc = f }
}

// Async decouples dispatch from delivery via a buffered job channel. The
// dispatcher enqueues; a background goroutine replays each batch against the
// inner sink. Inner errors go to errFunc rather than back to the dispatcher,
// so an async sink never shows up as failed in dispatch logs.
type Async struct {
	inner     sink.Sink
	jobs      chan func(context.Context) error
	done      chan struct{}
	errFunc   func(error)
	bufSize   int
	closeOnce sync.Once
}

// New wraps a sink in an async delivery queue. The drain goroutine starts
// immediately.
func New(inner sink.Sink, opts ...Option) *Async {
	a := &Async{
		inner:   inner,
		bufSize: defaultBufferSize,
		errFunc: func(err error) { slog.Warn("async sink delivery failed", "error", err) },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.jobs = make(chan func(context.Context) error, a.bufSize)
	a.done = make(chan struct{})
	go a.drain()
	return a
}

func (a *Async) Name() string { return a.inner.Name() }

func (a *Async) Active() bool { return a.inner.Active() }

func (a *Async) Open(ctx context.Context) error { return a.inner.Open(ctx) }

func (a *Async) Reset(ctx context.Context) error { return a.inner.Reset(ctx) }

func (a *Async) UpdateSummary(_ context.Context, header model.Header, rows []model.Row, region string) error {
	a.jobs <- func(ctx context.Context) error { return a.inner.UpdateSummary(ctx, header, rows, region) }
	return nil
}

func (a *Async) UpdateDetailed(_ context.Context, header model.Header, rows []model.Row, region string) error {
	a.jobs <- func(ctx context.Context) error { return a.inner.UpdateDetailed(ctx, header, rows, region) }
	return nil
}

func (a *Async) UpdateAudit(_ context.Context, header model.Header, rows []model.Row, region string) error {
	a.jobs <- func(ctx context.Context) error { return a.inner.UpdateAudit(ctx, header, rows, region) }
	return nil
}

func (a *Async) OnServerEvents(_ context.Context, events []model.ServerEvent, region string) error {
	a.jobs <- func(ctx context.Context) error { return a.inner.OnServerEvents(ctx, events, region) }
	return nil
}

// Close stops accepting jobs, waits for the queue to drain (with a timeout),
// then closes the inner sink.
func (a *Async) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.jobs)
		select {
		case <-a.done:
		case <-time.After(defaultDrainTimeout):
			slog.Warn("async sink drain timed out", "sink", a.inner.Name())
		}
		err = a.inner.Close()
	})
	return err
}

func (a *Async) drain() {
	defer close(a.done)
	for job := range a.jobs {
		if err := job(context.Background()); err != nil {
			a.errFunc(err)
		}
	}
}

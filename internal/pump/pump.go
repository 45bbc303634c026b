// Package pump implements the scheduling core: per-region day and minute
// workers, incremental audit-log tailing, active-server extraction, and
// fan-out to sinks.
package pump

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/coder/quartz"
	"golang.org/x/sync/errgroup"

	"github.com/mcp-watch/mcpwatch/internal/mcp"
	"github.com/mcp-watch/mcpwatch/internal/model"
)

const dateLayout = "2006-01-02"

// Fetcher is the per-region report boundary. Each call covers the
// [start, end] date window and returns rows with the header row first, a
// *mcp.TransportError on connectivity failure, or an error wrapping
// mcp.ErrMalformedReport when the payload is unusable.
type Fetcher interface {
	SummaryUsage(ctx context.Context, start, end time.Time) ([]model.Row, error)
	DetailedUsage(ctx context.Context, start, end time.Time) ([]model.Row, error)
	AuditLog(ctx context.Context, start, end time.Time) ([]model.Row, error)
}

// Region binds a region code to its API boundaries. In production both
// fields are the same *mcp.Endpoint.
type Region struct {
	Name     string
	Fetcher  Fetcher
	Resolver NodeResolver
}

// Pump owns the region set and drives one scheduler pair per region: a day
// worker catching up historical days and a minute worker polling for newly
// activated servers once caught up to today.
type Pump struct {
	regions    []Region
	dispatcher *Dispatcher
	clock      quartz.Clock
	logger     *slog.Logger
	since      time.Time
	pollEvery  time.Duration
	stepPause  time.Duration

	workers map[string]*regionWorkers
}

// regionWorkers holds the per-region queues and tail cursor. The cursor is
// touched only by the region's minute worker.
type regionWorkers struct {
	days   *queue
	ticks  *queue
	cursor cursor
}

// Option configures a Pump.
type Option func(*Pump)

// WithClock replaces the wall clock (for tests).
func WithClock(c quartz.Clock) Option {
	return func(p *Pump) { p.clock = c }
}

// WithSince sets the first day to pump. Default: today.
func WithSince(t time.Time) Option {
	return func(p *Pump) { p.since = t }
}

// WithPollInterval sets the minute-tick period. Default: 60s.
func WithPollInterval(d time.Duration) Option {
	return func(p *Pump) { p.pollEvery = d }
}

// WithStepPause sets the pause after each worker step. This bounds the API
// call rate and is not a correctness control. Default: 250ms.
func WithStepPause(d time.Duration) Option {
	return func(p *Pump) { p.stepPause = d }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pump) { p.logger = l }
}

// New creates a Pump over the given regions and dispatcher.
func New(regions []Region, dispatcher *Dispatcher, opts ...Option) *Pump {
	p := &Pump{
		regions:    regions,
		dispatcher: dispatcher,
		clock:      quartz.NewReal(),
		logger:     slog.Default(),
		pollEvery:  60 * time.Second,
		stepPause:  250 * time.Millisecond,
		workers:    make(map[string]*regionWorkers),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.since.IsZero() {
		p.since = dateOf(p.clock.Now())
	}
	return p
}

// Run boots one day worker and one minute worker per region plus the
// controller, then blocks until the context is cancelled. Shutdown is
// cooperative: workers stop between work items, and in-flight fetches may
// be abandoned.
func (p *Pump) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, r := range p.regions {
		w := &regionWorkers{days: newQueue(ctx.Done()), ticks: newQueue(ctx.Done())}
		p.workers[r.Name] = w
		g.Go(func() error { return p.dayLoop(ctx, r, w) })
		g.Go(func() error { return p.tickLoop(ctx, r, w) })
	}

	g.Go(func() error { return p.control(ctx) })

	return g.Wait()
}

// control advances the global date cursor: one day marker per historical
// calendar day until caught up, then one minute tick per region per poll
// interval. Crossing midnight while live re-enters catch-up implicitly via
// the date comparison.
func (p *Pump) control(ctx context.Context) error {
	defer func() {
		for _, w := range p.workers {
			w.days.close()
			w.ticks.close()
		}
	}()

	head := p.catchUp(p.since)

	waiter := p.clock.TickerFunc(ctx, p.pollEvery, func() error {
		head = p.catchUp(head)
		now := p.clock.Now()
		for _, w := range p.workers {
			w.ticks.push(now)
		}
		return nil
	}, "poll")

	if err := waiter.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// catchUp enqueues one day marker per region for every calendar day from
// head up to (not including) today, and returns the new head.
func (p *Pump) catchUp(head time.Time) time.Time {
	today := dateOf(p.clock.Now())
	for head.Before(today) {
		p.logger.Info("pumping data", "day", head.Format(dateLayout))
		for _, w := range p.workers {
			w.days.push(head)
		}
		head = head.AddDate(0, 0, 1)
	}
	return head
}

func (p *Pump) dayLoop(ctx context.Context, r Region, w *regionWorkers) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case day, ok := <-w.days.out:
			if !ok {
				return nil
			}
			p.pullDay(ctx, r, day)
			p.pause(ctx)
		}
	}
}

func (p *Pump) tickLoop(ctx context.Context, r Region, w *regionWorkers) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-w.ticks.out:
			if !ok {
				return nil
			}
			p.tick(ctx, r, w)
			p.pause(ctx)
		}
	}
}

// pullDay fetches the three reports for one region and day over the
// [day-1, day] window and dispatches them. The first transport failure
// aborts the rest of the day's pull for this region; the scheduler moves on
// to the next queued day rather than stalling.
func (p *Pump) pullDay(ctx context.Context, r Region, day time.Time) {
	start, end := day.AddDate(0, 0, -1), day
	logger := p.logger.With("region", r.Name, "day", end.Format(dateLayout))

	steps := []struct {
		kind     string
		fetch    func(context.Context, time.Time, time.Time) ([]model.Row, error)
		dispatch func(context.Context, model.Header, []model.Row, string)
	}{
		{"summary usage", r.Fetcher.SummaryUsage, p.dispatcher.Summary},
		{"detailed usage", r.Fetcher.DetailedUsage, p.dispatcher.Detailed},
		{"audit log", r.Fetcher.AuditLog, p.dispatcher.Audit},
	}

	for _, step := range steps {
		logger.Info("fetching report", "report", step.kind)

		rows, err := step.fetch(ctx, start, end)
		switch {
		case errors.Is(err, mcp.ErrMalformedReport):
			logger.Warn("no items could be found", "report", step.kind)
			rows = nil
		case err != nil:
			logger.Error("day pull aborted", "report", step.kind, "error", err)
			return
		}

		header, data := model.SplitHeader(rows)
		logger.Debug("found items", "report", step.kind, "items", len(data))
		step.dispatch(ctx, header, data, r.Name)
	}
}

// tick polls the forward-looking audit window [today, today+1], tails it
// against the region cursor, and dispatches fresh rows plus the extracted
// server activations. Audit entries for today only stabilize once the day
// is nominally over, hence the one-day-ahead window end.
func (p *Pump) tick(ctx context.Context, r Region, w *regionWorkers) {
	today := dateOf(p.clock.Now())
	logger := p.logger.With("region", r.Name)

	rows, err := r.Fetcher.AuditLog(ctx, today, today.AddDate(0, 0, 1))
	switch {
	case errors.Is(err, mcp.ErrMalformedReport):
		logger.Warn("no items could be found", "report", "audit log")
		return
	case err != nil:
		logger.Error("minute tick aborted", "error", err)
		return
	}

	header, fresh := w.cursor.tail(today, rows)
	if len(fresh) == 0 {
		return
	}
	logger.Debug("tailed audit log", "items", len(fresh))

	p.dispatcher.Audit(ctx, header, fresh, r.Name)

	x := &extractor{region: r.Name, resolver: r.Resolver, logger: logger}
	events := x.extract(ctx, header, fresh)
	if len(events) > 0 {
		logger.Info("detected active servers", "servers", len(events))
		p.dispatcher.ServerEvents(ctx, events, r.Name)
	}
}

// pause sleeps for the configured step pause, bounding the API call rate.
func (p *Pump) pause(ctx context.Context) {
	if p.stepPause <= 0 {
		return
	}
	t := time.NewTimer(p.stepPause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// dateOf truncates a time to its UTC calendar day.
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

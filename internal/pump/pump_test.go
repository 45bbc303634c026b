package pump

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"

	"github.com/mcp-watch/mcpwatch/internal/mcp"
	"github.com/mcp-watch/mcpwatch/internal/model"
	"github.com/mcp-watch/mcpwatch/internal/sink"
)

type fetchCall struct {
	report     string
	start, end time.Time
}

// fakeFetcher serves canned report windows and records every call.
type fakeFetcher struct {
	mu     sync.Mutex
	calls  []fetchCall
	notify chan fetchCall
	rows   map[string][]model.Row
	errs   map[string]error
}

func (f *fakeFetcher) fetch(report string, start, end time.Time) ([]model.Row, error) {
	c := fetchCall{report, start, end}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	rows := model.Clone(f.rows[report])
	err := f.errs[report]
	f.mu.Unlock()
	if f.notify != nil {
		f.notify <- c
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeFetcher) SummaryUsage(_ context.Context, start, end time.Time) ([]model.Row, error) {
	return f.fetch("summary", start, end)
}

func (f *fakeFetcher) DetailedUsage(_ context.Context, start, end time.Time) ([]model.Row, error) {
	return f.fetch("detailed", start, end)
}

func (f *fakeFetcher) AuditLog(_ context.Context, start, end time.Time) ([]model.Row, error) {
	return f.fetch("audit", start, end)
}

func (f *fakeFetcher) setErr(report string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = make(map[string]error)
	}
	f.errs[report] = err
}

func (f *fakeFetcher) reports() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.report)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func usageWindow(names ...string) []model.Row {
	rows := []model.Row{{"Name", "UUID", "Type", "CPU Hours"}}
	for _, n := range names {
		rows = append(rows, model.Row{n, "uid-" + n, "Server", "24"})
	}
	return rows
}

func TestPullDay_FetchesYesterdayWindowAndDispatches(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]model.Row{
		"summary":  usageWindow("s1", "s2"),
		"detailed": usageWindow("d1"),
		"audit":    {auditHeader, auditRow("uid-1", "Start Server")},
	}}
	out := &memorySink{name: "out"}
	p := New(nil, NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithStepPause(0), WithLogger(quietLogger()))

	day := someDay()
	p.pullDay(context.Background(), Region{Name: "dd-eu", Fetcher: fetcher}, day)

	for _, c := range fetcher.calls {
		if !c.start.Equal(day.AddDate(0, 0, -1)) || !c.end.Equal(day) {
			t.Errorf("%s window = [%v, %v], want [day-1, day]", c.report, c.start, c.end)
		}
	}
	if got := fetcher.reports(); len(got) != 3 {
		t.Fatalf("fetched %v, want summary, detailed, audit", got)
	}

	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.summary) != 1 || len(out.summary[0]) != 2 {
		t.Errorf("summary batches = %v, want one 2-row batch without header", out.summary)
	}
	if len(out.detailed) != 1 || len(out.detailed[0]) != 1 {
		t.Errorf("detailed batches = %v, want one 1-row batch", out.detailed)
	}
	if len(out.audit) != 1 || len(out.audit[0]) != 1 {
		t.Errorf("audit batches = %v, want one 1-row batch", out.audit)
	}
}

func TestPullDay_TransportErrorAbortsRemainingSteps(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]model.Row{}}
	fetcher.setErr("summary", &mcp.TransportError{Region: "dd-eu", Op: "summary usage", Err: errors.New("connection refused")})
	out := &memorySink{name: "out"}
	p := New(nil, NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithStepPause(0), WithLogger(quietLogger()))

	p.pullDay(context.Background(), Region{Name: "dd-eu", Fetcher: fetcher}, someDay())

	if got := fetcher.reports(); len(got) != 1 || got[0] != "summary" {
		t.Fatalf("fetched %v, want just the failing summary", got)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.summary)+len(out.detailed)+len(out.audit) != 0 {
		t.Fatal("sink received batches after an aborted pull")
	}
}

func TestPullDay_MalformedReportYieldsEmptyBatchAndContinues(t *testing.T) {
	fetcher := &fakeFetcher{rows: map[string][]model.Row{
		"detailed": usageWindow("d1"),
		"audit":    {auditHeader, auditRow("uid-1", "Start Server")},
	}}
	fetcher.setErr("summary", fmt.Errorf("dd-eu summary usage: %w", mcp.ErrMalformedReport))
	out := &memorySink{name: "out"}
	p := New(nil, NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithStepPause(0), WithLogger(quietLogger()))

	p.pullDay(context.Background(), Region{Name: "dd-eu", Fetcher: fetcher}, someDay())

	if got := fetcher.reports(); len(got) != 3 {
		t.Fatalf("fetched %v, want all three reports", got)
	}
	out.mu.Lock()
	defer out.mu.Unlock()
	if len(out.summary) != 1 || len(out.summary[0]) != 0 {
		t.Errorf("summary batches = %v, want one empty batch", out.summary)
	}
	if len(out.detailed) != 1 || len(out.detailed[0]) != 1 {
		t.Errorf("detailed batches = %v, want the 1-row batch", out.detailed)
	}
}

func TestTick_TailsAuditAndExtractsServers(t *testing.T) {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2016, 11, 30, 12, 0, 0, 0, time.UTC))

	fetcher := &fakeFetcher{rows: map[string][]model.Row{
		"audit": {
			auditHeader,
			lifecycleRow("uid-1", "web[SERVER_id-1]", "Deploy Server", "OK"),
			lifecycleRow("uid-2", "db[SERVER_id-2]", "Start Server", "OK"),
		},
	}}
	resolver := &fakeResolver{nodes: map[string]*model.Node{
		"id-1": testNode("id-1", "10.0.0.1"),
		"id-2": testNode("id-2", "10.0.0.2"),
	}}
	out := &memorySink{name: "out"}
	p := New(nil, NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithClock(mClock), WithStepPause(0), WithLogger(quietLogger()))

	r := Region{Name: "dd-eu", Fetcher: fetcher, Resolver: resolver}
	w := &regionWorkers{}

	p.tick(context.Background(), r, w)

	today := time.Date(2016, 11, 30, 0, 0, 0, 0, time.UTC)
	if c := fetcher.calls[0]; !c.start.Equal(today) || !c.end.Equal(today.AddDate(0, 0, 1)) {
		t.Fatalf("audit window = [%v, %v], want [today, today+1]", c.start, c.end)
	}

	if got := out.auditBatches(); len(got) != 1 || len(got[0]) != 2 {
		t.Fatalf("audit batches = %v, want one 2-row batch", got)
	}
	events := out.eventBatches()
	if len(events) != 1 || len(events[0]) != 2 {
		t.Fatalf("event batches = %v, want one 2-event batch", events)
	}
	if events[0][0].ID != "id-2" || events[0][1].ID != "id-1" {
		t.Fatalf("events not newest first: %+v", events[0])
	}

	// Same remote window again: nothing new past the cursor.
	p.tick(context.Background(), r, w)
	if got := out.auditBatches(); len(got) != 1 {
		t.Fatalf("repoll dispatched again: %v", got)
	}
}

func TestTick_TransportErrorLeavesCursorUntouched(t *testing.T) {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2016, 11, 30, 12, 0, 0, 0, time.UTC))

	fetcher := &fakeFetcher{rows: map[string][]model.Row{
		"audit": {auditHeader, auditRow("uid-1", "Start Server")},
	}}
	fetcher.setErr("audit", &mcp.TransportError{Region: "dd-eu", Op: "audit log", Err: errors.New("timeout")})
	resolver := &fakeResolver{nodes: map[string]*model.Node{"uid-1": testNode("uid-1", "10.0.0.1")}}
	out := &memorySink{name: "out"}
	p := New(nil, NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithClock(mClock), WithStepPause(0), WithLogger(quietLogger()))

	r := Region{Name: "dd-eu", Fetcher: fetcher, Resolver: resolver}
	w := &regionWorkers{}

	p.tick(context.Background(), r, w)
	if len(out.auditBatches()) != 0 {
		t.Fatal("failed tick dispatched rows")
	}

	// Connectivity restored: the untouched cursor replays the full window.
	fetcher.setErr("audit", nil)
	p.tick(context.Background(), r, w)
	if got := out.auditBatches(); len(got) != 1 || len(got[0]) != 1 {
		t.Fatalf("recovery tick dispatched %v, want the full window", got)
	}
}

func TestRun_CatchesUpHistoricalDaysBeforeTicking(t *testing.T) {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2016, 11, 30, 12, 0, 0, 0, time.UTC))
	trap := mClock.Trap().TickerFunc("poll")
	defer trap.Close()

	notify := make(chan fetchCall, 64)
	fetcher := &fakeFetcher{notify: notify, rows: map[string][]model.Row{
		"summary":  usageWindow("s1"),
		"detailed": usageWindow("d1"),
		"audit":    {auditHeader},
	}}
	out := &memorySink{name: "out"}
	since := time.Date(2016, 11, 28, 0, 0, 0, 0, time.UTC)
	p := New(
		[]Region{{Name: "dd-eu", Fetcher: fetcher, Resolver: &fakeResolver{}}},
		NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithClock(mClock), WithSince(since), WithStepPause(0), WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	call := trap.MustWait(ctx)
	call.MustRelease(ctx)

	// Two historical days (the 28th and 29th), three reports each.
	var got []fetchCall
	for len(got) < 6 {
		select {
		case c := <-notify:
			got = append(got, c)
		case <-ctx.Done():
			t.Fatalf("timed out after %d calls: %v", len(got), got)
		}
	}
	for i, c := range got[:3] {
		if !c.end.Equal(since) {
			t.Errorf("call %d end = %v, want %v", i, c.end, since)
		}
	}
	for i, c := range got[3:] {
		if !c.end.Equal(since.AddDate(0, 0, 1)) {
			t.Errorf("call %d end = %v, want %v", i+3, c.end, since.AddDate(0, 0, 1))
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

func TestRun_MidnightRolloverEnqueuesDayPull(t *testing.T) {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2016, 11, 30, 23, 59, 30, 0, time.UTC))
	trap := mClock.Trap().TickerFunc("poll")
	defer trap.Close()

	notify := make(chan fetchCall, 64)
	fetcher := &fakeFetcher{notify: notify, rows: map[string][]model.Row{
		"summary":  usageWindow("s1"),
		"detailed": usageWindow("d1"),
		"audit":    {auditHeader},
	}}
	out := &memorySink{name: "out"}
	p := New(
		[]Region{{Name: "dd-eu", Fetcher: fetcher, Resolver: &fakeResolver{}}},
		NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithClock(mClock), WithStepPause(0), WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	trap.MustWait(ctx).MustRelease(ctx)

	// The next poll lands on December 1st; the day that just ended must be
	// pulled before live polling resumes.
	mClock.Advance(60 * time.Second).MustWait(ctx)

	rolled := time.Date(2016, 11, 30, 0, 0, 0, 0, time.UTC)
	for {
		select {
		case c := <-notify:
			if c.report != "summary" {
				continue
			}
			if !c.start.Equal(rolled.AddDate(0, 0, -1)) || !c.end.Equal(rolled) {
				t.Fatalf("day pull window = [%v, %v], want [%v, %v]",
					c.start, c.end, rolled.AddDate(0, 0, -1), rolled)
			}
			cancel()
			if err := <-done; err != nil {
				t.Fatalf("Run returned %v", err)
			}
			return
		case <-ctx.Done():
			t.Fatal("no day pull after crossing midnight")
		}
	}
}

func TestRun_PollIntervalDrivesMinuteTicks(t *testing.T) {
	mClock := quartz.NewMock(t)
	mClock.Set(time.Date(2016, 11, 30, 12, 0, 0, 0, time.UTC))
	trap := mClock.Trap().TickerFunc("poll")
	defer trap.Close()

	notify := make(chan fetchCall, 64)
	fetcher := &fakeFetcher{notify: notify, rows: map[string][]model.Row{
		"audit": {auditHeader, auditRow("uid-1", "Start Server")},
	}}
	out := &memorySink{name: "out"}
	p := New(
		[]Region{{Name: "dd-eu", Fetcher: fetcher, Resolver: &fakeResolver{}}},
		NewDispatcher([]sink.Sink{out}, quietLogger()),
		WithClock(mClock), WithStepPause(0), WithLogger(quietLogger()),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	call := trap.MustWait(ctx)
	if call.Duration != 60*time.Second {
		t.Errorf("poll interval = %v, want 60s", call.Duration)
	}
	call.MustRelease(ctx)

	mClock.Advance(60 * time.Second).MustWait(ctx)

	today := time.Date(2016, 11, 30, 0, 0, 0, 0, time.UTC)
	select {
	case c := <-notify:
		if c.report != "audit" {
			t.Fatalf("first poll fetched %q, want audit", c.report)
		}
		if !c.start.Equal(today) || !c.end.Equal(today.AddDate(0, 0, 1)) {
			t.Fatalf("poll window = [%v, %v], want [today, today+1]", c.start, c.end)
		}
	case <-ctx.Done():
		t.Fatal("no audit poll after advancing the clock")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}

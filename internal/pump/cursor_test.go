package pump

import (
	"testing"
	"time"

	"github.com/mcp-watch/mcpwatch/internal/model"
)

var auditHeader = model.Row{"UUID", "Time", "Create User", "Type", "Name", "Action", "Response Code"}

func auditRow(uid, action string) model.Row {
	return model.Row{uid, "2016-11-30T09:00:00", "foo.bar", "SERVER", "web[SERVER_" + uid + "]", action, "OK"}
}

func someDay() time.Time {
	return time.Date(2016, 11, 30, 0, 0, 0, 0, time.UTC)
}

func TestTail_EmptyWindow(t *testing.T) {
	var c cursor
	header, rows := c.tail(someDay(), nil)
	if header != nil || rows != nil {
		t.Fatalf("expected nil results, got %v, %v", header, rows)
	}
	if c.uid != "" {
		t.Fatal("cursor advanced on empty window")
	}
}

func TestTail_FirstBatchDeliversFullWindow(t *testing.T) {
	var c cursor
	window := []model.Row{auditHeader, auditRow("uid-1", "Start Server"), auditRow("uid-2", "Deploy Server")}

	header, rows := c.tail(someDay(), window)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if !header.Has("UUID", "Action") {
		t.Fatal("header not returned")
	}
	if c.uid != "uid-2" || !c.day.Equal(someDay()) {
		t.Fatalf("cursor = {%v %q}, want {someday uid-2}", c.day, c.uid)
	}
}

func TestTail_RepollWithoutAdvanceIsIdempotent(t *testing.T) {
	// Tailing is a pure function of (cursor, window): restoring the cursor
	// state and re-polling the same window returns the full window again.
	var c cursor
	window := []model.Row{auditHeader, auditRow("uid-1", "Start Server")}

	snapshot := c
	_, first := c.tail(someDay(), window)
	c = snapshot
	_, second := c.tail(someDay(), window)
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("got %d and %d rows, want 1 and 1", len(first), len(second))
	}
}

func TestTail_RepollAfterAdvanceYieldsOnlyNewRows(t *testing.T) {
	var c cursor
	window := []model.Row{auditHeader, auditRow("uid-1", "Start Server"), auditRow("uid-2", "Deploy Server")}

	if _, rows := c.tail(someDay(), window); len(rows) != 2 {
		t.Fatalf("first poll: got %d rows, want 2", len(rows))
	}

	// Identical window again: everything up to uid-2 was delivered.
	if _, rows := c.tail(someDay(), window); len(rows) != 0 {
		t.Fatalf("second poll: got %d rows, want 0", len(rows))
	}
	if c.uid != "uid-2" {
		t.Fatalf("cursor uid = %q, want uid-2 (unchanged on empty result)", c.uid)
	}

	// The window slides: uid-3 appears after the anchor.
	grown := append(append([]model.Row{}, window...), auditRow("uid-3", "Reboot Server"))
	_, rows := c.tail(someDay(), grown)
	if len(rows) != 1 || firstField(rows[0]) != "uid-3" {
		t.Fatalf("third poll: got %v, want just uid-3", rows)
	}
	if c.uid != "uid-3" {
		t.Fatalf("cursor uid = %q, want uid-3", c.uid)
	}
}

func TestTail_AnchorRolledOffDeliversWholeWindow(t *testing.T) {
	var c cursor
	first := []model.Row{auditHeader, auditRow("uid-1", "Start Server")}
	c.tail(someDay(), first)

	// uid-1 is gone from the remote window; nothing can be skipped.
	slid := []model.Row{auditHeader, auditRow("uid-5", "Start Server"), auditRow("uid-6", "Start Server")}
	_, rows := c.tail(someDay(), slid)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if c.uid != "uid-6" {
		t.Fatalf("cursor uid = %q, want uid-6", c.uid)
	}
}

func TestTail_NewDayIgnoresOldAnchor(t *testing.T) {
	var c cursor
	day1 := someDay()
	day2 := day1.AddDate(0, 0, 1)

	c.tail(day1, []model.Row{auditHeader, auditRow("uid-1", "Start Server")})

	// Same uid appears in the next day's window; the anchor belongs to
	// day1, so the full window is delivered.
	_, rows := c.tail(day2, []model.Row{auditHeader, auditRow("uid-1", "Start Server")})
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if !c.day.Equal(day2) {
		t.Fatalf("cursor day = %v, want %v", c.day, day2)
	}
}

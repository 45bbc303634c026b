package pump

import (
	"time"

	"github.com/mcp-watch/mcpwatch/internal/model"
)

// cursor tracks the last audit-log position already delivered for one
// region. It lives in memory only: a restart re-delivers the full first
// window. Each region's cursor is owned by its minute worker, so it is
// never accessed concurrently.
type cursor struct {
	day time.Time
	uid string
}

// tail returns the audit rows not yet delivered for the given day, along
// with the header mapping of the batch. Audit queries return a sliding
// window of recent events; the cursor anchors on the unique id in the first
// field of the last delivered row, so repeated polling does not re-deliver
// the same events every tick.
//
// When the anchor uid is no longer present in the window (it rolled off the
// remote side), the whole window is treated as fresh. The cursor only
// advances when the filtered result is non-empty.
func (c *cursor) tail(day time.Time, rows []model.Row) (model.Header, []model.Row) {
	if len(rows) == 0 {
		return nil, nil
	}

	header := model.ParseHeader(rows[0])
	rest := rows[1:]

	if c.uid != "" && c.day.Equal(day) {
		for i, row := range rest {
			if firstField(row) == c.uid {
				rest = rest[i+1:]
				break
			}
		}
	}

	if len(rest) > 0 {
		c.day = day
		c.uid = firstField(rest[len(rest)-1])
	}
	return header, rest
}

func firstField(row model.Row) string {
	if len(row) == 0 {
		return ""
	}
	return row[0]
}

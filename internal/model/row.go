package model

import "strings"

// Row is one record of a tabular report, split into positional string fields.
// Rows are produced fresh per fetch and are not mutated downstream.
type Row []string

// Clone returns a deep copy of the row slice. Each consumer of a batch gets
// its own rows, so one consumer mutating fields cannot corrupt another.
func Clone(rows []Row) []Row {
	if rows == nil {
		return nil
	}
	out := make([]Row, len(rows))
	for i, row := range rows {
		out[i] = append(Row(nil), row...)
	}
	return out
}

// Header maps column names to field positions. It is built once per batch
// from the report's header row, because column order is not contractually
// fixed by the remote API.
type Header map[string]int

// Canonical audit log column names. Only the columns the pipeline branches
// on are named here; everything else passes through untouched.
const (
	ColUUID         = "UUID"
	ColTime         = "Time"
	ColType         = "Type"
	ColName         = "Name"
	ColAction       = "Action"
	ColResponseCode = "Response Code"
)

// ParseHeader builds a name→index mapping from a header row.
// Names are matched case-insensitively and with surrounding space trimmed.
func ParseHeader(row Row) Header {
	h := make(Header, len(row))
	for i, name := range row {
		h[normalizeColumn(name)] = i
	}
	return h
}

// SplitHeader separates a raw report into its header mapping and data rows.
// Returns a nil header and no rows for an empty report.
func SplitHeader(rows []Row) (Header, []Row) {
	if len(rows) == 0 {
		return nil, nil
	}
	return ParseHeader(rows[0]), rows[1:]
}

// Field returns the named column of a row, or "" when the column is unknown
// or the row is too short to hold it.
func (h Header) Field(row Row, name string) string {
	i, ok := h[normalizeColumn(name)]
	if !ok || i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

// Has reports whether the header names all given columns.
func (h Header) Has(names ...string) bool {
	for _, name := range names {
		if _, ok := h[normalizeColumn(name)]; !ok {
			return false
		}
	}
	return true
}

func normalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RecordSet and InsertSpec live here so the mapper, the executor and every
// backend can share them without circular imports.
package storage

import "strings"

// RecordSet is a rectangular set of rows: every row has len(Columns) values,
// aligned with Columns.
type RecordSet struct {
	Columns []string
	Rows    [][]any
}

// Len returns the number of rows.
func (rs RecordSet) Len() int { return len(rs.Rows) }

// Index returns the position of column in rs.Columns, or -1.
func (rs RecordSet) Index(column string) int {
	for i, c := range rs.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// Project returns a new RecordSet restricted to columns (in that order).
// Columns not present in rs are skipped.
func (rs RecordSet) Project(columns []string) RecordSet {
	idx := make([]int, 0, len(columns))
	cols := make([]string, 0, len(columns))
	for _, c := range columns {
		if i := rs.Index(c); i >= 0 {
			idx = append(idx, i)
			cols = append(cols, c)
		}
	}

	out := RecordSet{Columns: cols, Rows: make([][]any, 0, len(rs.Rows))}
	for _, row := range rs.Rows {
		r := make([]any, len(idx))
		for j, i := range idx {
			r[j] = row[i]
		}
		out.Rows = append(out.Rows, r)
	}
	return out
}

// InsertSpec describes one bulk insert.
//
// Conflict handling:
//   - ConflictKey == "": plain INSERT.
//   - ConflictKey != "" and UpdateColumns non-empty: insert, updating
//     UpdateColumns from the incoming row on conflict.
//   - ConflictKey != "" and UpdateColumns empty: insert, doing nothing on conflict.
type InsertSpec struct {
	Table         string
	Columns       []string
	Rows          [][]any
	ConflictKey   string
	UpdateColumns []string
}

// ChunkRows splits rows so no chunk binds more than maxParams placeholders.
// A chunk always holds at least one row.
func ChunkRows(rows [][]any, columns, maxParams int) [][][]any {
	if len(rows) == 0 {
		return nil
	}
	per := 1
	if columns > 0 && maxParams > columns {
		per = maxParams / columns
	}

	out := make([][][]any, 0, len(rows)/per+1)
	for start := 0; start < len(rows); start += per {
		end := start + per
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[start:end])
	}
	return out
}

// LowerSet builds a lowercase name set, as returned by Store.ColumnsOf.
func LowerSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

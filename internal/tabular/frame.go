// Package tabular holds the in-memory table used for file/report partitions
// and the codec for the blobs the object cache stores them as.
package tabular

import (
	"slices"
	"strings"
)

// Row is one record keyed by column name. Missing cells read as "".
type Row map[string]string

// Clone returns a copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Frame is an ordered set of columns and rows.
type Frame struct {
	Columns []string
	Rows    []Row
	// Format is the encoding the frame was decoded from; Encode reuses it.
	Format Format
}

// NewFrame builds a frame from columns and rows. Columns appearing only in
// rows are appended in first-seen order.
func NewFrame(columns []string, rows []Row) *Frame {
	f := &Frame{Columns: slices.Clone(columns), Rows: rows}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		seen[c] = struct{}{}
	}
	for _, r := range rows {
		keys := make([]string, 0, len(r))
		for k := range r {
			if _, ok := seen[k]; !ok {
				keys = append(keys, k)
			}
		}
		slices.Sort(keys)
		for _, k := range keys {
			seen[k] = struct{}{}
			f.Columns = append(f.Columns, k)
		}
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return len(f.Rows) }

// Has reports whether the frame has the column.
func (f *Frame) Has(column string) bool {
	return slices.Contains(f.Columns, column)
}

// Dedup drops exact duplicate rows, keeping the first occurrence.
func (f *Frame) Dedup() {
	seen := make(map[string]struct{}, len(f.Rows))
	out := f.Rows[:0]
	for _, r := range f.Rows {
		k := f.rowKey(r)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	f.Rows = out
}

func (f *Frame) rowKey(r Row) string {
	var b strings.Builder
	for _, c := range f.Columns {
		b.WriteString(r[c])
		b.WriteByte(0)
	}
	return b.String()
}

// DropBlank drops rows whose column value is empty or whitespace.
func (f *Frame) DropBlank(column string) {
	out := f.Rows[:0]
	for _, r := range f.Rows {
		if strings.TrimSpace(r[column]) != "" {
			out = append(out, r)
		}
	}
	f.Rows = out
}

// Values returns the distinct non-empty values of the column in row order.
func (f *Frame) Values(column string) []string {
	seen := make(map[string]struct{}, len(f.Rows))
	var out []string
	for _, r := range f.Rows {
		v := r[column]
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// Keep narrows the frame to rows whose column value is in keep.
func (f *Frame) Keep(column string, keep map[string]struct{}) {
	out := f.Rows[:0]
	for _, r := range f.Rows {
		if _, ok := keep[r[column]]; ok {
			out = append(out, r)
		}
	}
	f.Rows = out
}

// Lookup returns the first row whose column equals value.
func (f *Frame) Lookup(column, value string) (Row, bool) {
	for _, r := range f.Rows {
		if r[column] == value {
			return r, true
		}
	}
	return nil, false
}

// Set assigns value to field on every row whose column equals key and
// returns the number of rows changed.
func (f *Frame) Set(column, key, field, value string) int {
	if !f.Has(field) {
		f.Columns = append(f.Columns, field)
	}
	n := 0
	for _, r := range f.Rows {
		if r[column] == key {
			r[field] = value
			n++
		}
	}
	return n
}

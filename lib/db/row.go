package db

import (
	"bytes"
	"errors"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

var errNotAnObject = errors.New("db: row must be a JSON object")

// Row is an ordered mapping of column names to values.
// The zero value is an empty row ready to use.
type Row struct {
	columns []string
	values  []any
}

// NewRow builds a row from the given columns and values.
// Both slices are copied; surplus entries of the longer slice are ignored.
func NewRow(columns []string, values []any) Row {
	n := min(len(columns), len(values))
	r := Row{
		columns: make([]string, n),
		values:  make([]any, n),
	}
	copy(r.columns, columns[:n])
	copy(r.values, values[:n])
	return r
}

// With returns a copy of the row where column is set to value.
// An existing column keeps its position, a new column is appended.
func (r Row) With(column string, value any) Row {
	out := NewRow(r.columns, r.values)
	for i, c := range out.columns {
		if c == column {
			out.values[i] = value
			return out
		}
	}
	out.columns = append(out.columns, column)
	out.values = append(out.values, value)
	return out
}

// Get returns the value of column. The boolean indicates whether the column exists.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// Len returns the number of columns
func (r Row) Len() int {
	return len(r.columns)
}

// Columns returns a copy of the column names in order
func (r Row) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Values returns a copy of the values in column order
func (r Row) Values() []any {
	return append([]any(nil), r.values...)
}

// Map returns the row as an unordered map
func (r Row) Map() map[string]any {
	m := make(map[string]any, len(r.columns))
	for i, c := range r.columns {
		m[c] = r.values[i]
	}
	return m
}

// sameColumns reports whether both rows have identical columns in identical order
func (r Row) sameColumns(other Row) bool {
	if len(r.columns) != len(other.columns) {
		return false
	}
	for i := range r.columns {
		if r.columns[i] != other.columns[i] {
			return false
		}
	}
	return true
}

// SameColumns reports whether every row shares the columns of the first one
func SameColumns(rows []Row) bool {
	for i := 1; i < len(rows); i++ {
		if !rows[0].sameColumns(rows[i]) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the row as a JSON object keeping the column order.
// Byte slices holding valid UTF-8 are encoded as strings, any other byte slice keeps the
// default base64 encoding so BLOB values survive the round trip.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		v := r.values[i]
		if b, ok := v.([]byte); ok && utf8.Valid(b) {
			v = string(b)
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object into the row, keeping the key order of the document.
func (r *Row) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errNotAnObject
	}

	out := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		column, _ := tok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return err
		}
		if n, ok := value.(json.Number); ok {
			if i, err := n.Int64(); err == nil {
				value = i
			} else if f, err := n.Float64(); err == nil {
				value = f
			}
		}
		out = out.With(column, value)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	*r = out
	return nil
}

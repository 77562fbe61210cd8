package tabular

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// splitTable is the column/data layout of a table.
type splitTable struct {
	Columns []string            `json:"columns"`
	Data    [][]json.RawMessage `json:"data"`
}

// decodeJSON reads an array of row objects, keeping first-seen column
// order, or a {"columns":[...],"data":[[...]]} table.
func decodeJSON(data []byte) (*Frame, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var st splitTable
		if err := json.Unmarshal(trimmed, &st); err != nil {
			return nil, eris.Wrap(err, "tabular: decode json table")
		}
		rows := make([]Row, 0, len(st.Data))
		for i, rec := range st.Data {
			if len(rec) > len(st.Columns) {
				return nil, eris.Errorf("tabular: json row %d has %d cells for %d columns", i, len(rec), len(st.Columns))
			}
			row := make(Row, len(st.Columns))
			for j, c := range st.Columns {
				if j < len(rec) {
					row[c] = cell(rec[j])
				} else {
					row[c] = ""
				}
			}
			rows = append(rows, row)
		}
		return &Frame{Columns: st.Columns, Rows: rows}, nil
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, eris.Wrap(err, "tabular: decode json rows")
	}

	var columns []string
	seen := make(map[string]struct{})
	rows := make([]Row, 0, len(records))
	for i, rec := range records {
		keys, row, err := orderedObject(rec)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: json row %d", i)
		}
		for _, k := range keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				columns = append(columns, k)
			}
		}
		rows = append(rows, row)
	}
	return &Frame{Columns: columns, Rows: rows}, nil
}

func orderedObject(raw json.RawMessage) ([]string, Row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, nil, eris.Wrap(err, "read opening token")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, nil, eris.Errorf("expected '{', got %v", tok)
	}

	var keys []string
	row := make(Row)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, nil, eris.Wrap(err, "read key")
		}
		key, ok := tok.(string)
		if !ok {
			return nil, nil, eris.Errorf("expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, nil, eris.Wrapf(err, "decode %q", key)
		}
		if _, dup := row[key]; !dup {
			keys = append(keys, key)
		}
		row[key] = cell(v)
	}
	return keys, row, nil
}

// cell renders a JSON value as cell text: strings unquoted, null as "",
// numbers and booleans verbatim, nested values as compact JSON.
func cell(v json.RawMessage) string {
	s := strings.TrimSpace(string(v))
	switch {
	case s == "" || s == "null":
		return ""
	case s[0] == '"':
		var out string
		if err := json.Unmarshal(v, &out); err == nil {
			return out
		}
		return s
	default:
		var buf bytes.Buffer
		if err := json.Compact(&buf, []byte(s)); err == nil {
			return buf.String()
		}
		return s
	}
}

func encodeJSON(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, r := range f.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, c := range f.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(c)
			if err != nil {
				return nil, eris.Wrap(err, "tabular: encode column")
			}
			v, err := json.Marshal(r[c])
			if err != nil {
				return nil, eris.Wrap(err, "tabular: encode cell")
			}
			buf.Write(k)
			buf.WriteByte(':')
			buf.Write(v)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

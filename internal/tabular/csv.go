package tabular

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// decodeCSV reads a header row followed by records. A UTF-8 or UTF-16 BOM
// is honoured and stripped. Short records are padded with "".
func decodeCSV(data []byte) (*Frame, error) {
	r := transform.NewReader(bytes.NewReader(data), unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return &Frame{}, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read csv header")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "tabular: read csv row")
		}
		row := make(Row, len(header))
		for i, c := range header {
			if i < len(record) {
				row[c] = strings.TrimSpace(record[i])
			} else {
				row[c] = ""
			}
		}
		rows = append(rows, row)
	}
	return &Frame{Columns: header, Rows: rows}, nil
}

func encodeCSV(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(f.Columns); err != nil {
		return nil, eris.Wrap(err, "tabular: write csv header")
	}
	record := make([]string, len(f.Columns))
	for _, r := range f.Rows {
		for i, c := range f.Columns {
			record[i] = r[c]
		}
		if err := w.Write(record); err != nil {
			return nil, eris.Wrap(err, "tabular: write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, eris.Wrap(err, "tabular: flush csv")
	}
	return buf.Bytes(), nil
}

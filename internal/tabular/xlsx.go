package tabular

import (
	"bytes"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// maxSheetName is the longest sheet name a workbook accepts.
const maxSheetName = 31

// decodeXLSX reads the first sheet of a workbook; the first row is the header.
func decodeXLSX(data []byte) (*Frame, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("tabular: xlsx has no sheets")
	}
	sheet := f.Sheets[0]

	frame := &Frame{}
	for i, row := range sheet.Rows {
		if row == nil {
			continue
		}
		cells := rowToStrings(row)
		if i == 0 {
			frame.Columns = cells
			continue
		}
		if blankRow(cells) {
			continue
		}
		r := make(Row, len(frame.Columns))
		for j, c := range frame.Columns {
			if j < len(cells) {
				r[c] = cells[j]
			} else {
				r[c] = ""
			}
		}
		frame.Rows = append(frame.Rows, r)
	}
	return frame, nil
}

func encodeXLSX(f *Frame, name string) ([]byte, error) {
	book := xlsx.NewFile()
	sheet, err := book.AddSheet(sheetName(name))
	if err != nil {
		return nil, eris.Wrap(err, "tabular: add xlsx sheet")
	}

	header := sheet.AddRow()
	for _, c := range f.Columns {
		header.AddCell().SetString(c)
	}
	for _, r := range f.Rows {
		row := sheet.AddRow()
		for _, c := range f.Columns {
			row.AddCell().SetString(r[c])
		}
	}

	var buf bytes.Buffer
	if err := book.Write(&buf); err != nil {
		return nil, eris.Wrap(err, "tabular: write xlsx")
	}
	return buf.Bytes(), nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = strings.TrimSpace(cell.String())
	}
	return cells
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

func sheetName(name string) string {
	name = strings.NewReplacer("/", "_", "\\", "_", "?", "_", "*", "_", "[", "_", "]", "_", ":", "_").Replace(name)
	if name == "" {
		name = "Sheet1"
	}
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	return name
}

package tabular

import (
	"archive/zip"
	"bytes"
	"io"
	"path"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is a table encoding.
type Format string

// Supported encodings.
const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// Ext returns the file extension for the format.
func (f Format) Ext() string {
	if f == "" {
		return "." + string(FormatJSON)
	}
	return "." + string(f)
}

// Decode parses a cached partition blob. Blobs are zip archives holding a
// single JSON, CSV or XLSX entry; a bare XLSX workbook and unwrapped JSON
// or CSV are accepted too.
func Decode(blob []byte) (*Frame, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return nil, eris.New("tabular: empty blob")
	}
	if !isZip(blob) {
		return decodeEntry(sniff(blob), blob)
	}

	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open zip")
	}
	if isWorkbook(zr) {
		return decodeXLSX(blob)
	}

	var files []*zip.File
	for _, f := range zr.File {
		if !f.FileInfo().IsDir() {
			files = append(files, f)
		}
	}
	if len(files) != 1 {
		return nil, eris.Errorf("tabular: expected exactly 1 file in zip, got %d", len(files))
	}

	rc, err := files[0].Open()
	if err != nil {
		return nil, eris.Wrap(err, "tabular: open zip entry")
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrap(err, "tabular: read zip entry")
	}

	format := formatFromName(files[0].Name)
	if format == "" {
		format = sniff(data)
	}
	return decodeEntry(format, data)
}

// Encode writes the frame as a zip archive holding one entry called
// name plus the format's extension.
func Encode(f *Frame, name string) ([]byte, error) {
	format := f.Format
	if format == "" {
		format = FormatJSON
	}

	var entry []byte
	var err error
	switch format {
	case FormatCSV:
		entry, err = encodeCSV(f)
	case FormatXLSX:
		entry, err = encodeXLSX(f, name)
	default:
		entry, err = encodeJSON(f)
	}
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(name + format.Ext())
	if err != nil {
		return nil, eris.Wrap(err, "tabular: create zip entry")
	}
	if _, err := w.Write(entry); err != nil {
		return nil, eris.Wrap(err, "tabular: write zip entry")
	}
	if err := zw.Close(); err != nil {
		return nil, eris.Wrap(err, "tabular: close zip")
	}
	return buf.Bytes(), nil
}

// PartitionName returns the cache name for an output partition: the file
// name joined with the non-blank identifier and sheet.
func PartitionName(file, identifier, sheet string) string {
	name := file
	if strings.TrimSpace(identifier) != "" {
		name += "_" + identifier
	}
	if strings.TrimSpace(sheet) != "" {
		name += "_" + sheet
	}
	return name
}

func decodeEntry(format Format, data []byte) (*Frame, error) {
	var (
		f   *Frame
		err error
	)
	switch format {
	case FormatCSV:
		f, err = decodeCSV(data)
	case FormatXLSX:
		f, err = decodeXLSX(data)
	default:
		format = FormatJSON
		f, err = decodeJSON(data)
	}
	if err != nil {
		return nil, err
	}
	f.Format = format
	return f, nil
}

func isZip(b []byte) bool {
	return len(b) >= 4 && b[0] == 'P' && b[1] == 'K' && b[2] == 3 && b[3] == 4
}

func isWorkbook(zr *zip.Reader) bool {
	for _, f := range zr.File {
		if f.Name == "[Content_Types].xml" {
			return true
		}
	}
	return false
}

func formatFromName(name string) Format {
	switch strings.ToLower(path.Ext(name)) {
	case ".json":
		return FormatJSON
	case ".csv", ".txt":
		return FormatCSV
	case ".xlsx":
		return FormatXLSX
	default:
		return ""
	}
}

func sniff(data []byte) Format {
	trimmed := bytes.TrimLeft(data, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	if isZip(trimmed) {
		return FormatXLSX
	}
	return FormatCSV
}

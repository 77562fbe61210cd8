// Package internalid loads the per-client mapping used to request the
// participant internal id alongside a TBA inquiry.
package internalid

import (
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Entry is the inquiry that returns a client's internal ids.
type Entry struct {
	InquiryName string `yaml:"inquiry_name"`
	ParNM       string `yaml:"par_nm"`
	PanelID     string `yaml:"panel_id"`
}

// Mapping is keyed by client id.
type Mapping map[string]Entry

// Load reads a YAML (or JSON) mapping file. An empty path yields an empty mapping.
func Load(path string) (Mapping, error) {
	if path == "" {
		return Mapping{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "internalid: read %s", path)
	}
	return Parse(data)
}

// Parse decodes a mapping document.
func Parse(data []byte) (Mapping, error) {
	m := Mapping{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "internalid: parse mapping")
	}
	return m, nil
}

// Lookup finds the entry for client, trying the id verbatim and then with
// leading zeros removed.
func (m Mapping) Lookup(client string) (Entry, bool) {
	if e, ok := m[client]; ok {
		return e, true
	}
	n, err := strconv.Atoi(strings.TrimSpace(client))
	if err != nil {
		return Entry{}, false
	}
	e, ok := m[strconv.Itoa(n)]
	return e, ok
}

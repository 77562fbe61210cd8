package internalid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Parallel()

	m, err := Load("testdata/internal_info.yaml")
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, Entry{InquiryName: "PERSON_INTERNAL", ParNM: "PARTICIPANT", PanelID: "1407"}, m["1234"])
	assert.Equal(t, "0982", m["55"].PanelID)

	_, err = Load("testdata/missing.yaml")
	assert.Error(t, err)

	empty, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	m, err := Parse([]byte(`{"7": {"inquiry_name": "I", "par_nm": "P", "panel_id": 3}}`))
	require.NoError(t, err)
	assert.Equal(t, "3", m["7"].PanelID)

	_, err = Parse([]byte("- a\n- b"))
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	m := Mapping{"1234": {InquiryName: "A"}, "0099": {InquiryName: "B"}}
	tests := []struct {
		client string
		want   string
		ok     bool
	}{
		{"1234", "A", true},
		{"001234", "A", true},
		{"0099", "B", true},
		{"99", "", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			t.Parallel()
			e, ok := m.Lookup(tt.client)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, e.InquiryName)
		})
	}
}

package model

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) map[string]any {
	t.Helper()
	b, err := os.ReadFile("testdata/request.json")
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	return m
}

func section(m map[string]any, keys ...string) map[string]any {
	for _, k := range keys {
		m = m[k].(map[string]any)
	}
	return m
}

func firstMatch(m map[string]any) map[string]any {
	return section(m, "configTables")["tbaMatchConfig"].([]any)[0].(map[string]any)
}

func encode(t *testing.T, m map[string]any) []byte {
	t.Helper()
	b, err := json.Marshal(m)
	require.NoError(t, err)
	return b
}

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	r, err := DecodeRequest(encode(t, loadFixture(t)))
	require.NoError(t, err)

	assert.Equal(t, "12345", r.ClientCode())
	assert.Equal(t, 123, r.PJMID())
	assert.Equal(t, "4", r.PhaseID())
	assert.Equal(t, "RQ-1013080005041077", r.UID())
	assert.Equal(t, Text("1611936788504"), r.RequestDetails.CreateTimeStamp)
	assert.Equal(t, []string{"TEMP.MAINFRAME.FILE"}, r.ProcessFeatureConfig.PhaseNames.Files())

	require.Len(t, r.KsdConfig.FileDetails, 1)
	f := r.KsdConfig.FileDetails[0]
	assert.Equal(t, "tempMainframeFile", f.FileNameWoutSpace)
	assert.Equal(t, "SSN", f.PptIdentifier)
	assert.Equal(t, "PID", f.PptIdentifierType)
	assert.False(t, f.HasPrevReport())

	keys, ok := r.BotOutput.Keys("TEMP.MAINFRAME.FILE")
	require.True(t, ok)
	require.Len(t, keys, 1)
	assert.Equal(t, "TEMP.MAINFRAME.FILE__filtered.pkl", keys[0].Key)

	require.Len(t, r.ConfigTables.MatchConfig, 1)
	m := r.ConfigTables.MatchConfig[0]
	assert.Equal(t, MatchTBA, m.Type())
	assert.Equal(t, DestTBA, m.DestFlag())
	assert.Equal(t, "TEMP_TBA_FIELD", m.DestFieldName())
	assert.Equal(t, "1", m.Key())
	require.Len(t, m.Actions, 1)
	assert.True(t, m.Actions[0].CorrectiveAction.HumanReview())

	require.Len(t, r.ConfigTables.InquiryConfig, 1)
	assert.Equal(t, Text("1234"), r.ConfigTables.InquiryConfig[0].PanelID)
	assert.JSONEq(t, `[]`, string(r.ConfigTables.RawOutputFileDetails))
	assert.NotEmpty(t, r.RawKsdConfig)
	assert.NotNil(t, r.RedisKeys)
}

func TestDecodeRequestInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(m map[string]any)
	}{
		{"empty body", func(m map[string]any) {
			for k := range m {
				delete(m, k)
			}
		}},
		{"missing bot output", func(m map[string]any) { delete(m, "botOutput") }},
		{"missing uid", func(m map[string]any) { delete(section(m, "requestDetails"), "uid") }},
		{"missing phase", func(m map[string]any) { delete(section(m, "requestDetails"), "phase") }},
		{"no file details", func(m map[string]any) { section(m, "ksdConfig")["ksdFileDetails"] = []any{} }},
		{"blank ppt identifier", func(m map[string]any) {
			section(m, "ksdConfig")["ksdFileDetails"] = []any{`{"fileName":"F","fileType":"Mainframe","pptidentifier":" ","pptidentifierType":"PID"}`}
		}},
		{"phase names without source match", func(m map[string]any) {
			section(m, "processFeatureConfig")["phaseNames"] = `{"Other":"x"}`
		}},
		{"non integer job mapping id", func(m map[string]any) {
			section(m, "processFeatureConfig", "processJobMapping")["id"] = "abc"
		}},
		{"blank job name", func(m map[string]any) {
			section(m, "processFeatureConfig", "processJobMapping")["jobName"] = " "
		}},
		{"empty layout", func(m map[string]any) { section(m, "configTables")["layoutConfig"] = []any{} }},
		{"tba match without def name", func(m map[string]any) { firstMatch(m)["inquiryDefName"] = "" }},
		{"report match without dest", func(m map[string]any) { firstMatch(m)["matchType"] = "Compare with other report" }},
		{"match without actions", func(m map[string]any) { delete(firstMatch(m), "actions") }},
		{"non numeric panel id", func(m map[string]any) {
			section(m, "configTables")["tbaInquiryConfig"].([]any)[0].(map[string]any)["panelId"] = "x1"
		}},
		{"rules without definitions", func(m map[string]any) {
			section(m, "configTables")["rulesConfig"] = []any{map[string]any{}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := loadFixture(t)
			tt.mutate(m)
			_, err := DecodeRequest(encode(t, m))
			assert.Error(t, err)
		})
	}
}

func TestDecodeRequestNullIdentifier(t *testing.T) {
	t.Parallel()

	m := loadFixture(t)
	firstMatch(m)["identifier"] = "null"
	r, err := DecodeRequest(encode(t, m))
	require.NoError(t, err)
	assert.Equal(t, Identifier(""), r.ConfigTables.MatchConfig[0].Identifier)

	m = loadFixture(t)
	firstMatch(m)["identifier"] = nil
	r, err = DecodeRequest(encode(t, m))
	require.NoError(t, err)
	assert.Equal(t, Identifier(""), r.ConfigTables.MatchConfig[0].Identifier)
}

func TestDecodeRequestMinimalLayout(t *testing.T) {
	t.Parallel()

	m := loadFixture(t)
	section(m, "configTables")["layoutConfig"] = []any{map[string]any{"fileName": "TEMP.MAINFRAME.FILE", "mfFieldName": ""}}
	r, err := DecodeRequest(encode(t, m))
	require.NoError(t, err)
	require.Len(t, r.ConfigTables.Layout, 1)
	assert.Empty(t, r.ConfigTables.Layout[0].MfFieldWoutSpace)
}

func TestKeyManifestShapes(t *testing.T) {
	t.Parallel()

	var bo BotOutput
	require.NoError(t, json.Unmarshal([]byte(`{
		"File Formatter": {"A": [{"identifier_name":"I","key":"ka","sheet_name":"S"}]},
		"File Validator": {"B": {"detailRedisKey": [{"identifier_name":"","key":"kb","sheet_name":""}]}}
	}`), &bo))

	keys, ok := bo.Keys("A")
	require.True(t, ok)
	assert.Equal(t, []CacheKey{{IdentifierName: "I", Key: "ka", SheetName: "S"}}, []CacheKey(keys))

	keys, ok = bo.Keys("B")
	require.True(t, ok)
	assert.Equal(t, "kb", keys[0].Key)

	_, ok = bo.Keys("C")
	assert.False(t, ok)
}

func TestProcessJobMappingForUpdate(t *testing.T) {
	t.Parallel()

	r, err := DecodeRequest(encode(t, loadFixture(t)))
	require.NoError(t, err)

	out := r.KsdConfig.ProcessJobMapping.ForUpdate()
	assert.NotContains(t, out, "ksdName")
	assert.Equal(t, "12345", out["clientId"])
	assert.Equal(t, "TEMP", out["jobName"])
	assert.Contains(t, r.KsdConfig.ProcessJobMapping.Raw, "ksdName")
}

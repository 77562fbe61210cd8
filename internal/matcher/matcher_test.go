package matcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/source-matcher/internal/model"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		name   string
		idType string
		raw    string
		want   string
	}{
		{"pid padded", "pid", "1234", "000001234"},
		{"pid punctuation", "pid", "123-45-6789", "123456789"},
		{"pid right aligned", "pid", "00123456789", "123456789"},
		{"other type untouched", "emp", "E-12", "E12"},
		{"empty pid", "pid", "", "000000000"},
		{"pid multibyte padded", "pid", "é12", "000000é12"},
		{"pid multibyte right aligned", "pid", "ééééé12345", "éééé12345"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeID(tt.idType, tt.raw))
		})
	}
}

func TestClientID(t *testing.T) {
	assert.Equal(t, "12345", clientID("0012345"))
	assert.Equal(t, "12345", clientID(" 12345 "))
	assert.Equal(t, "AB12", clientID("AB12"))
}

func TestRuleRefKey(t *testing.T) {
	ref := ruleRef{Field: "Birth Date", Wout: "birthDate", Prefix: refPrefix{App: "census", Identifier: "EMP"}}
	assert.Equal(t, "census_EMP_birthDate", ref.Key())

	ref.Prefix.Sheet = "s1"
	assert.Equal(t, "census_s1_EMP_birthDate", ref.Key())

	assert.Equal(t, "birthDate", ruleRef{Wout: "birthDate"}.Key())
}

func TestRuleRefs(t *testing.T) {
	def := model.RuleDefinition{
		RuleName:       "R1",
		ValidationType: "Business",
		Conditions: [][]model.RuleCondition{{
			{ResultVariableRadio: "application", Field: "Birth Date", AppName: "CENSUS", Radio: "field", Value: "Birth Date", ValueAppName: "tba"},
			{ResultVariableRadio: "application", Field: "Birth Date", AppName: "CENSUS"},
		}},
		ConditionsWout: [][]model.RuleCondition{{
			{Field: "birthDate", AppName: "census", RecordIdentifier: "", Value: "BIRTH_DT", ValueAppName: "tba"},
			{Field: "birthDate", AppName: "census"},
		}},
		Variables:     []model.VariableOp{{VarRadio: "varApplicationValue", VarField: "Hire Date", VarApplication: "CENSUS"}},
		VariablesWout: []model.VariableOp{{VarField: "hireDate", VarApplication: "census"}},
	}
	rules := []model.RuleConfig{{Definitions: []model.RuleDefinition{def}}}

	fileRefs, destRefs := ruleRefs(rules, "R1", "CENSUS", model.DestTBA)
	require.Len(t, fileRefs, 2)
	assert.Equal(t, "census_birthDate", fileRefs[0].Key())
	assert.Equal(t, "Hire Date", fileRefs[1].Field)
	require.Len(t, destRefs, 1)
	assert.Equal(t, "Birth Date", destRefs[0].Field)
	assert.Equal(t, "tba_BIRTH_DT", destRefs[0].Key())

	fileRefs, destRefs = ruleRefs(rules, "", "CENSUS", model.DestTBA)
	assert.Nil(t, fileRefs)
	assert.Nil(t, destRefs)
}

func TestRuleRefsRouting(t *testing.T) {
	tests := []struct {
		name     string
		cond     model.RuleCondition
		file     string
		dest     string
		wantFile int
		wantDest int
	}{
		{
			name:     "mixed case radios",
			cond:     model.RuleCondition{ResultVariableRadio: "Application", Field: "Birth Date", AppName: "census", Radio: "Field", Value: "Birth Date", ValueAppName: "TBA"},
			file:     "CENSUS",
			dest:     model.DestTBA,
			wantFile: 1,
			wantDest: 1,
		},
		{
			name:     "app is both file and destination",
			cond:     model.RuleCondition{ResultVariableRadio: "application", Field: "Birth Date", AppName: "CENSUS"},
			file:     "CENSUS",
			dest:     "census",
			wantFile: 1,
			wantDest: 1,
		},
		{
			name: "app is neither",
			cond: model.RuleCondition{ResultVariableRadio: "application", Field: "Birth Date", AppName: "PAYROLL"},
			file: "CENSUS",
			dest: model.DestTBA,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := model.RuleDefinition{
				RuleName:       "R1",
				ValidationType: "business",
				Conditions:     [][]model.RuleCondition{{tt.cond}},
				ConditionsWout: [][]model.RuleCondition{{{Field: "birthDate", AppName: "census", Value: "BIRTH_DT", ValueAppName: "tba"}}},
			}
			fileRefs, destRefs := ruleRefs([]model.RuleConfig{{Definitions: []model.RuleDefinition{def}}}, "R1", tt.file, tt.dest)
			assert.Len(t, fileRefs, tt.wantFile)
			assert.Len(t, destRefs, tt.wantDest)
		})
	}
}

func TestCollectRequirements(t *testing.T) {
	cfg := &model.ConfigTables{
		MatchConfig: []model.MatchField{
			{ID: 1, MatchType: "Compare with TBA", FileName: "CENSUS", FileNameWoutSpace: "census", InquiryDefName: "BIRTH_DT"},
			{ID: 2, MatchType: "Compare with TBA", FileName: "CENSUS", FileNameWoutSpace: "census", InquiryDefName: "PEND_1"},
			{ID: 3, MatchType: "Compare with TBA", FileName: "CENSUS", FileNameWoutSpace: "census", InquiryDefName: "MISSING"},
			{ID: 4, MatchType: "Compare with TBA", FileName: "CENSUS", FileNameWoutSpace: "census", InquiryDefName: "HIRE_DT", Identifier: "EMP"},
		},
		InquiryConfig: []model.InquiryField{
			{InquiryDefName: "BIRTH_DT"},
			{InquiryDefName: "HIRE_DT", Identifier: "PID"},
		},
		PendingEventConfig: []model.PendingEventField{{PendgEvntDefName: "PEND_1"}},
	}

	q := collectRequirements(cfg)

	assert.Equal(t, []string{
		"MISSING is not configured in TBA",
		"HIRE_DT not configured with identifier 'EMP' in TBA",
	}, q.problems.values())
	require.Len(t, q.inquiryFields, 1)
	assert.Equal(t, "BIRTH_DT", q.inquiryFields[0].InquiryDefName)
	assert.True(t, q.files.has("census"))
	assert.Equal(t, []string{"", "EMP"}, q.identifiers.values())
	assert.Equal(t, []string{"", "EMP"}, q.fileIdentifiers["census"].values())
}

func TestActionStatus(t *testing.T) {
	tests := []struct {
		satisfied string
		status    string
		want      string
	}{
		{model.Met, model.StatusFailed, model.NoActionTaken},
		{model.NotMet, model.StatusSuccess, model.NoActionTaken},
		{"", model.StatusSuccess, model.NoActionTaken},
		{model.Met, model.StatusSuccess, ""},
		{model.NotMet, model.StatusFailed, ""},
		{"", model.StatusFailed, ""},
	}
	for _, tt := range tests {
		t.Run(tt.satisfied+"/"+tt.status, func(t *testing.T) {
			assert.Equal(t, tt.want, actionStatus(tt.satisfied, tt.status))
		})
	}
}

func TestConditionNodes(t *testing.T) {
	actions := model.ActionList{
		{Condition: "C1", Satisfied: model.Met, CorrectiveAction: model.TBAUpdate},
		{Condition: "C1", Satisfied: model.NotMet, CorrectiveAction: model.HumanInLoopAction},
		{Condition: "C2", Satisfied: model.Met, CorrectiveAction: model.RerunEvent},
	}

	nodes := conditionNodes(actions, "C1", model.StatusFailed)
	require.Len(t, nodes, 1)
	assert.Equal(t, model.HumanInLoopAction, nodes[0].CorrectiveAction)

	nodes = conditionNodes(actions, "C1", model.StatusSuccess)
	require.Len(t, nodes, 1)
	assert.Equal(t, model.TBAUpdate, nodes[0].CorrectiveAction)

	// Falls back to the opposite polarity.
	nodes = conditionNodes(actions, "C2", model.StatusFailed)
	require.Len(t, nodes, 1)
	assert.Equal(t, model.RerunEvent, nodes[0].CorrectiveAction)

	assert.Empty(t, conditionNodes(actions, "C3", model.StatusFailed))
}

func TestNewTBARecord(t *testing.T) {
	rec, internalID := newTBARecord(map[string]any{
		"BIRTH_DT": "19800101",
		"history": []any{
			map[string]any{"EVENT": "HIRE", "EFF_DT": "2001-01-01"},
			map[string]any{"EVENT": "TERM"},
			"ignored",
		},
		"internal": []any{map[string]any{internalIDDef: 900}},
	})

	assert.Equal(t, "900", internalID)
	assert.Equal(t, []map[string]any{{"BIRTH_DT": "19800101"}}, rec.field("BIRTH_DT"))
	assert.Equal(t, []map[string]any{{"EVENT": "HIRE"}, {"EVENT": "TERM"}}, rec.field("EVENT"))
	assert.Equal(t, []map[string]any{{"EFF_DT": "2001-01-01"}}, rec.field("EFF_DT"))
	assert.Nil(t, rec.field("UNKNOWN"))

	var missing *tbaRecord
	assert.Nil(t, missing.field("BIRTH_DT"))
}

func TestHumanInLoop(t *testing.T) {
	review := &model.Verdict{
		ActionStatus:     model.NoActionTaken,
		CorrectiveAction: []model.CorrectiveAction{"Human In Loop"},
	}
	settled := &model.Verdict{
		ActionStatus:     model.NoActionTaken,
		CorrectiveAction: []model.CorrectiveAction{model.TBAUpdate},
	}
	assert.False(t, humanInLoop([]*model.Verdict{review, settled}))
	assert.Equal(t, "", review.ActionStatus)
	assert.Equal(t, model.NoActionNeeded, review.Reason)
	assert.Equal(t, model.NoActionTaken, settled.ActionStatus)

	pending := &model.Verdict{CorrectiveAction: []model.CorrectiveAction{model.TBAUpdate}}
	assert.True(t, humanInLoop([]*model.Verdict{pending}))
}

func TestDispatchable(t *testing.T) {
	base := model.Verdict{
		CorrectiveAction: []model.CorrectiveAction{model.TBAUpdate},
		IfCondition:      model.NotMet,
		MatchType:        "Compare with TBA",
		UpdateAction:     []model.InnerAction{{EventName: "U1"}},
	}
	tests := []struct {
		name   string
		modify func(v *model.Verdict)
		want   bool
	}{
		{"pending update", func(*model.Verdict) {}, true},
		{"already settled", func(v *model.Verdict) { v.ActionStatus = model.NoActionTaken }, false},
		{"report match", func(v *model.Verdict) { v.MatchType = "Compare Previous Report" }, false},
		{"no condition state", func(v *model.Verdict) { v.IfCondition = "" }, false},
		{"no inner actions", func(v *model.Verdict) { v.UpdateAction = nil }, false},
		{"file update", func(v *model.Verdict) {
			v.CorrectiveAction = []model.CorrectiveAction{model.FileReportUpdate}
		}, false},
		{"human review", func(v *model.Verdict) {
			v.CorrectiveAction = []model.CorrectiveAction{model.HumanInLoopAction}
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := base
			tt.modify(&v)
			assert.Equal(t, tt.want, dispatchable(&v))
		})
	}
}

func TestResultVar(t *testing.T) {
	results := []map[string]any{{"a": 1}, {"b": "two"}}
	assert.Equal(t, "two", resultVar(results, "b"))
	assert.Nil(t, resultVar(results, "c"))
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "", stringValue(nil))
	assert.Equal(t, "x", stringValue("x"))
	assert.Equal(t, "12.5", stringValue(12.5))
}

func TestUnixTimestamp(t *testing.T) {
	ts := time.Date(2026, 10, 14, 0, 0, 0, 500000000, time.UTC)
	assert.Equal(t, "1791936000.500000", unixTimestamp(ts))
}

func TestSetKeepsInsertionOrder(t *testing.T) {
	s := newSet()
	s.add("b")
	s.add("a")
	s.add("b")
	assert.Equal(t, []string{"b", "a"}, s.values())
	assert.Equal(t, 2, s.len())
	assert.True(t, s.has("a"))
	assert.False(t, s.has("c"))
}

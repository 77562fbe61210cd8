package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// MatchType selects what a match field is compared against.
type MatchType int

const (
	MatchUnknown MatchType = iota
	MatchTBA
	MatchReport
)

// ParseMatchType classifies a configured match type label.
func ParseMatchType(s string) MatchType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "compare with tba":
		return MatchTBA
	case "compare previous report", "compare with other report", "comparepreviousreport":
		return MatchReport
	default:
		return MatchUnknown
	}
}

// DestTBA is the destination flag of comparisons against TBA.
const DestTBA = "tba"

// ConfigTables holds the client configuration tables of a request.
type ConfigTables struct {
	UpdateConfig       []UpdateField       `json:"tbaUpdateConfig"`
	RulesConfig        []RuleConfig        `json:"rulesConfig" validate:"dive"`
	MatchConfig        []MatchField        `json:"tbaMatchConfig" validate:"dive"`
	InquiryConfig      []InquiryField      `json:"tbaInquiryConfig" validate:"dive"`
	NoticeConfig       []NoticeField       `json:"tbaNoticeInqConfig" validate:"dive"`
	EventHistConfig    []EventHistField    `json:"tbaEventHistInqConfig" validate:"dive"`
	PendingEventConfig []PendingEventField `json:"tbaPendingEventInqConfig" validate:"dive"`
	OutputFileDetails  []OutputFileDetail  `json:"ksdOutputFileDetails"`
	Layout             []LayoutField       `json:"layoutConfig" validate:"min=1"`

	// Raw sections forwarded untouched to the report formatter.
	RawOutputFileDetails json.RawMessage `json:"-"`
	RawLayout            json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps the raw formatter sections alongside the typed rows.
func (c *ConfigTables) UnmarshalJSON(b []byte) error {
	type plain ConfigTables
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return eris.Wrap(err, "model: decode config tables")
	}
	var raw struct {
		OutputFileDetails json.RawMessage `json:"ksdOutputFileDetails"`
		Layout            json.RawMessage `json:"layoutConfig"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "model: decode config tables")
	}
	*c = ConfigTables(p)
	c.RawOutputFileDetails = raw.OutputFileDetails
	c.RawLayout = raw.Layout
	if len(c.RawOutputFileDetails) == 0 || string(c.RawOutputFileDetails) == "null" {
		c.RawOutputFileDetails = json.RawMessage("[]")
	}
	return nil
}

// UpdateConfigs returns the update (non-rerun) rows.
func (c *ConfigTables) UpdateConfigs() []UpdateField {
	return c.filterUpdates(false)
}

// RerunConfigs returns the rerun rows.
func (c *ConfigTables) RerunConfigs() []UpdateField {
	return c.filterUpdates(true)
}

func (c *ConfigTables) filterUpdates(rerun bool) []UpdateField {
	var out []UpdateField
	for _, f := range c.UpdateConfig {
		flag := strings.TrimSpace(f.RerunFlag)
		if (rerun && flag == "Y") || (!rerun && flag == "N") {
			out = append(out, f)
		}
	}
	return out
}

// EventLabels maps update names to their configured event names.
func (c *ConfigTables) EventLabels() map[string]string {
	out := make(map[string]string, len(c.UpdateConfig))
	for _, f := range c.UpdateConfig {
		out[f.UpdateName] = f.EventName
	}
	return out
}

// UpdateByName returns the first update row (of any rerun flag) with the
// given update name.
func (c *ConfigTables) UpdateByName(name string) (UpdateField, bool) {
	for _, f := range c.UpdateConfig {
		if f.UpdateName == name {
			return f, true
		}
	}
	return UpdateField{}, false
}

// NoticeByDef returns the notice row with the given inquiry definition name.
func (c *ConfigTables) NoticeByDef(def string) (NoticeField, bool) {
	for _, f := range c.NoticeConfig {
		if f.InquiryDefName == def {
			return f, true
		}
	}
	return NoticeField{}, false
}

// PendingByDef returns the pending-event row with the given definition name.
func (c *ConfigTables) PendingByDef(def string) (PendingEventField, bool) {
	for _, f := range c.PendingEventConfig {
		if f.PendgEvntDefName == def {
			return f, true
		}
	}
	return PendingEventField{}, false
}

// MatchByID returns the match field with the given id.
func (c *ConfigTables) MatchByID(id string) (MatchField, bool) {
	for _, f := range c.MatchConfig {
		if f.Key() == id {
			return f, true
		}
	}
	return MatchField{}, false
}

// MatchField is one configured comparison.
type MatchField struct {
	ID                 Int        `json:"id"`
	MatchType          string     `json:"matchType" validate:"required"`
	FileName           string     `json:"fileName" validate:"required"`
	SheetName          Text       `json:"sheetName"`
	FileNameWoutSpace  string     `json:"fileNameWoutSpace" validate:"required"`
	SheetNameWoutSpace Text       `json:"sheetNameWoutSpace"`
	MfFieldName        string     `json:"mfFieldName" validate:"required"`
	MfFieldWoutSpace   string     `json:"mfFieldWoutSpace" validate:"required"`
	Identifier         Identifier `json:"identifier"`

	FileNameDest           Text `json:"fileNameDest"`
	FileNameDestWoutSpace  Text `json:"fileNameDestWoutSpace"`
	SheetNameDest          Text `json:"sheetNameDest"`
	SheetNameDestWoutSpace Text `json:"sheetNameDestWoutSpace"`
	MfFieldNameDest        Text `json:"mfFieldNameDest"`
	MfFieldWoutSpaceDest   Text `json:"mfFieldWoutSpaceDest"`
	ReportIdentifierDest   Text `json:"reportIdentifierDest"`

	TBAFieldName   Text `json:"tbaFieldName"`
	InquiryDefName Text `json:"inquiryDefName"`

	RuleName     Text       `json:"ruleName"`
	Actions      ActionList `json:"actions" validate:"required"`
	PptVerifyTBA Text       `json:"pptVerifyTba"`
}

// Key is the match id as carried by rule engine requests.
func (m MatchField) Key() string { return strconv.Itoa(int(m.ID)) }

// Type classifies the match type.
func (m MatchField) Type() MatchType { return ParseMatchType(m.MatchType) }

// Rule returns the business rule name, with "NA" meaning none.
func (m MatchField) Rule() string {
	if string(m.RuleName) == "NA" {
		return ""
	}
	return string(m.RuleName)
}

// DestFlag returns "tba" for TBA comparisons, else the composite
// file__sheet__identifier key of the destination report.
func (m MatchField) DestFlag() string {
	if m.Type() == MatchReport {
		return string(m.FileNameDest) + "__" + string(m.SheetNameDest) + "__" + string(m.ReportIdentifierDest)
	}
	return DestTBA
}

// DestFieldName is the field compared on the TBA or destination side.
func (m MatchField) DestFieldName() string {
	if m.Type() == MatchReport {
		return string(m.MfFieldWoutSpaceDest)
	}
	return string(m.InquiryDefName)
}

// DestLabel is the destination field label echoed in audit output.
func (m MatchField) DestLabel() string {
	if m.Type() == MatchReport {
		return string(m.MfFieldNameDest)
	}
	return string(m.TBAFieldName)
}

// Identifier is a record identifier name; null and "null" decode to "".
type Identifier string

// UnmarshalJSON implements json.Unmarshaler.
func (i *Identifier) UnmarshalJSON(b []byte) error {
	var t Text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	if t == "null" {
		t = ""
	}
	*i = Identifier(t)
	return nil
}

// InquiryField is one field TBA can return, keyed by definition and identifier.
type InquiryField struct {
	ID               Int           `json:"id"`
	InquiryName      string        `json:"inquiryName" validate:"required"`
	ParNM            Text          `json:"parNM"`
	PanelID          Text          `json:"panelId" validate:"required,numeric"`
	TBAFieldName     string        `json:"tbaFieldName" validate:"required"`
	FieldType        Text          `json:"fieldType,omitempty"`
	JSONKey          string        `json:"jsonKey" validate:"required"`
	SubJSONKey       Text          `json:"subJsonKey"`
	MetaData         Text          `json:"metaData"`
	Identifier       Identifier    `json:"identifier"`
	RecordIdentifier Text          `json:"recordIdentifier,omitempty"`
	InquiryDefName   string        `json:"inquiryDefName" validate:"required"`
	Sequence         Text          `json:"sequence" validate:"required"`
	EffDateType      string        `json:"effDateType" validate:"required"`
	EffFromDate      EffDateWindow `json:"effFromDate"`
	EffToDate        EffDateWindow `json:"effToDate"`
	RowMatrix        Text          `json:"rowMatrix,omitempty"`
	ColumnMatrix     Text          `json:"columnMatrix,omitempty"`
}

// ApplicationWindow reports whether the effective-date bounds are read from
// a file or report field per participant.
func (f InquiryField) ApplicationWindow() bool {
	return strings.EqualFold(f.EffDateType, "application")
}

// EffDateWindow is an effective-date window spec. It marshals back to the
// JSON string it was read from.
type EffDateWindow struct {
	Raw        string
	App        string
	Sheet      string
	Identifier string
	Field      string
}

// UnmarshalJSON implements json.Unmarshaler. Keys are matched by suffix so
// the same type serves effFromDate and effToDate.
func (w *EffDateWindow) UnmarshalJSON(b []byte) error {
	var fields map[string]any
	raw, err := embeddedJSON(b, &fields)
	*w = EffDateWindow{Raw: raw}
	if err != nil {
		// Non-application windows may carry free text.
		if len(raw) > 0 {
			return nil
		}
		return eris.Wrap(err, "model: decode effective date window")
	}
	for k, v := range fields {
		s, _ := v.(string)
		switch {
		case strings.HasSuffix(k, "AppNameWithoutSpace"):
			w.App = s
		case strings.HasSuffix(k, "SheetName"):
			w.Sheet = s
		case strings.HasSuffix(k, "RIdentifier"):
			w.Identifier = s
		case strings.HasSuffix(k, "DateField"):
			w.Field = s
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (w EffDateWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Raw)
}

// FromApplication reports whether the window reads from a file rather than TBA.
func (w EffDateWindow) FromApplication() bool {
	return !strings.EqualFold(w.App, DestTBA)
}

// NoticeField is a notice inquiry definition.
type NoticeField struct {
	NoticeName     string     `json:"noticeName" validate:"required"`
	NoticeID       Int        `json:"noticeId"`
	InquiryDefName string     `json:"inquiryDefName" validate:"required"`
	TBAFieldName   string     `json:"tba_field_name" validate:"required"`
	JSONKey        string     `json:"jsonKey" validate:"required"`
	SubJSONKey     Text       `json:"subJsonKey"`
	Metadata       Text       `json:"metadata"`
	Identifier     Identifier `json:"identifier"`
}

// EventHistField is an event-history inquiry definition.
type EventHistField struct {
	EventHistDefName string `json:"eventHistDefName" validate:"required"`
	EffFromDate      string `json:"effFromDate" validate:"required"`
	EffToDate        string `json:"effToDate" validate:"required"`
	EventName        string `json:"eventName" validate:"required"`
	ActLongDesc      string `json:"actLongDesc" validate:"required"`
	TBAFiledName     Text   `json:"tbaFiledName"`
	JSONKey          Text   `json:"jsonKey"`
}

// PendingEventField is a pending-event inquiry definition.
type PendingEventField struct {
	PendgEvntDefName string `json:"pendgEvntDefName" validate:"required"`
	EventName        string `json:"eventName" validate:"required"`
	EventLongDesc    string `json:"eventLongDesc" validate:"required"`
	JSONKey          string `json:"jsonKey" validate:"required"`
}

// UpdateField is a tbaUpdateConfig row. Raw keeps every configured key for
// forwarding to the update service.
type UpdateField struct {
	UpdateName      string
	EventName       string
	TBAUpdateAction string
	RerunFlag       string
	ActLngDesc      string
	Sequence        string
	OverrideEdits   string
	Raw             map[string]any
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *UpdateField) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return eris.Wrap(err, "model: decode update config")
	}
	var wire struct {
		UpdateName      Text `json:"updateName"`
		EventName       Text `json:"eventName"`
		TBAUpdateAction Text `json:"tbaUpdateAction"`
		RerunFlag       Text `json:"rerunFlag"`
		ActLngDesc      Text `json:"actLngDesc"`
		Sequence        Text `json:"sequence"`
		OverrideEdits   Text `json:"overrideEdits"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return eris.Wrap(err, "model: decode update config")
	}
	*u = UpdateField{
		UpdateName:      string(wire.UpdateName),
		EventName:       string(wire.EventName),
		TBAUpdateAction: string(wire.TBAUpdateAction),
		RerunFlag:       string(wire.RerunFlag),
		ActLngDesc:      string(wire.ActLngDesc),
		Sequence:        string(wire.Sequence),
		OverrideEdits:   string(wire.OverrideEdits),
		Raw:             raw,
	}
	return nil
}

// MarshalJSON writes the raw row.
func (u UpdateField) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.Raw)
}

// LayoutField is a layoutConfig row.
type LayoutField struct {
	FileName          string `json:"fileName"`
	FileNameWoutSpace string `json:"fileNameWoutSpace"`
	MfFieldName       string `json:"mfFieldName"`
	MfFieldWoutSpace  string `json:"mfFieldWoutSpace"`
	RecordFormat      string `json:"recordFormat"`
	FieldType         string `json:"fieldType"`
}

// OutputColumn is one column of an output report layout.
type OutputColumn struct {
	DataElement          string `json:"dataElement"`
	DataElementWoutSpace string `json:"dataElementWoutSpace"`
	CellValue            string `json:"cellValue"`
}

// OutputFileDetail describes an output file or report written by the formatter.
type OutputFileDetail struct {
	FileName           string         `json:"fileName"`
	FileNameWoutSpace  string         `json:"fileNameWoutSpace"`
	SheetNameWoutSpace string         `json:"sheetNameWoutSpace"`
	FileType           string         `json:"fileType"`
	PptIdentifier      string         `json:"pptIdentifier"`
	PptIdentifierType  string         `json:"pptIdentifierType"`
	OutputReports      []OutputColumn `json:"outputReports"`
}

// RuleConfig is a rulesConfig entry.
type RuleConfig struct {
	Definitions []RuleDefinition `json:"rulesDefinitions" validate:"required"`
}

// Business rules are the only validation type the collector reads.
const businessValidation = "business"

// RuleDefinition is a rule definition. Condition and variable-operation trees
// are decoded only for business rules.
type RuleDefinition struct {
	RuleName       string
	ValidationType string
	Conditions     [][]RuleCondition
	ConditionsWout [][]RuleCondition
	Variables      []VariableOp
	VariablesWout  []VariableOp
}

// Business reports whether the definition is a business rule.
func (d RuleDefinition) Business() bool {
	return strings.EqualFold(d.ValidationType, businessValidation)
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *RuleDefinition) UnmarshalJSON(b []byte) error {
	var wire struct {
		RuleName       Text `json:"ruleName"`
		ValidationType struct {
			ValTypeName Text `json:"valTypeName"`
		} `json:"validationType"`
		JSON             json.RawMessage `json:"json"`
		JSONWout         json.RawMessage `json:"jsonWoutName"`
		VarOperation     json.RawMessage `json:"varOperationJson"`
		VarOperationWout json.RawMessage `json:"varOperationJsonWoutSpace"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return eris.Wrap(err, "model: decode rule definition")
	}
	*d = RuleDefinition{
		RuleName:       string(wire.RuleName),
		ValidationType: string(wire.ValidationType.ValTypeName),
	}
	if !d.Business() {
		return nil
	}

	var err error
	if d.Conditions, err = decodeConditionGroups(wire.JSON); err != nil {
		return err
	}
	if d.ConditionsWout, err = decodeConditionGroups(wire.JSONWout); err != nil {
		return err
	}
	if d.Variables, err = decodeVariableOps(wire.VarOperation); err != nil {
		return err
	}
	if d.VariablesWout, err = decodeVariableOps(wire.VarOperationWout); err != nil {
		return err
	}
	return nil
}

func decodeConditionGroups(b json.RawMessage) ([][]RuleCondition, error) {
	var groups []struct {
		Conditions []RuleCondition `json:"conditions"`
	}
	if _, err := embeddedJSON(b, &groups); err != nil {
		return nil, eris.Wrap(err, "model: decode rule conditions")
	}
	out := make([][]RuleCondition, len(groups))
	for i, g := range groups {
		out[i] = g.Conditions
	}
	return out, nil
}

func decodeVariableOps(b json.RawMessage) ([]VariableOp, error) {
	var ops []struct {
		Rows []VariableOp `json:"variableRowOp"`
	}
	if _, err := embeddedJSON(b, &ops); err != nil {
		return nil, eris.Wrap(err, "model: decode variable operations")
	}
	if len(ops) == 0 {
		return nil, nil
	}
	return ops[0].Rows, nil
}

// RuleCondition is one condition of a business rule.
type RuleCondition struct {
	ResultVariableRadio   string `json:"resultVariableRadio"`
	Field                 string `json:"field"`
	AppName               string `json:"appName"`
	SheetName             string `json:"sheetName"`
	RecordIdentifier      string `json:"recordIdentifier"`
	Radio                 string `json:"radio"`
	Value                 Text   `json:"value"`
	ValueAppName          string `json:"valueAppName"`
	ValueSheetName        string `json:"valueSheetName"`
	ValueRecordIdentifier string `json:"valueRecordIdentifier"`
}

// VariableOp is one variable row operation of a business rule.
type VariableOp struct {
	VarRadio            string `json:"varRadio"`
	VarField            string `json:"varField"`
	VarApplication      string `json:"varApplication"`
	VarSheetName        string `json:"varSheetName"`
	VarRecordIdentifier string `json:"varRecordIdentifier"`
}

package model

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
)

// Bot output sections that list cached partition keys per file.
const (
	FileValidatorSection = "File Validator"
	FileFormatterSection = "File Formatter"
)

// Request is one reconciliation job as posted by the orchestrator.
type Request struct {
	KsdConfig            KsdConfig            `json:"ksdConfig" validate:"required"`
	BotOutput            BotOutput            `json:"botOutput"`
	RequestDetails       RequestDetails       `json:"requestDetails" validate:"required"`
	ProcessFeatureConfig ProcessFeatureConfig `json:"processFeatureConfig" validate:"required"`
	ConfigTables         ConfigTables         `json:"configTables" validate:"required"`
	RedisKeys            map[string]any       `json:"redisKeys"`

	// Raw sections forwarded untouched to the report formatter.
	RawKsdConfig            json.RawMessage `json:"-"`
	RawBotOutput            json.RawMessage `json:"-"`
	RawProcessFeatureConfig json.RawMessage `json:"-"`
}

// KsdConfig holds the job mapping and the declared input files.
type KsdConfig struct {
	ProcessJobMapping ProcessJobMapping `json:"processJobMapping" validate:"required"`
	FileDetails       []KsdFile         `json:"ksdFileDetails" validate:"min=1,dive"`
}

// KsdFile declares one input file. Orchestrators send each entry as a JSON
// encoded string.
type KsdFile struct {
	FileName             string `json:"fileName" validate:"notblank"`
	FileNameWoutSpace    string `json:"fileNameWoutSpace"`
	SheetName            string `json:"sheetName"`
	FileType             string `json:"fileType" validate:"notblank"`
	PptIdentifier        string `json:"pptidentifier" validate:"notblank"`
	PptIdentifierType    string `json:"pptidentifierType" validate:"notblank"`
	PrevReportFileName   string `json:"prevReportFileName"`
	PrevReportFileNameWs string `json:"prevReportFileNameWs"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (f *KsdFile) UnmarshalJSON(b []byte) error {
	var wire struct {
		FileName             Text `json:"fileName"`
		FileNameWoutSpace    Text `json:"fileNameWoutSpace"`
		SheetName            Text `json:"sheetName"`
		FileType             Text `json:"fileType"`
		PptIdentifier        Text `json:"pptidentifier"`
		PptIdentifierType    Text `json:"pptidentifierType"`
		PrevReportFileName   Text `json:"prevReportFileName"`
		PrevReportFileNameWs Text `json:"prevReportFileNameWs"`
	}
	raw, err := embeddedJSON(b, &wire)
	if err != nil {
		return eris.Wrap(err, "model: decode ksd file details")
	}
	if raw == "" {
		return eris.New("model: ksd file details can't be empty")
	}
	*f = KsdFile{
		FileName:             string(wire.FileName),
		FileNameWoutSpace:    string(wire.FileNameWoutSpace),
		SheetName:            string(wire.SheetName),
		FileType:             string(wire.FileType),
		PptIdentifier:        string(wire.PptIdentifier),
		PptIdentifierType:    string(wire.PptIdentifierType),
		PrevReportFileName:   string(wire.PrevReportFileName),
		PrevReportFileNameWs: string(wire.PrevReportFileNameWs),
	}
	return nil
}

// HasPrevReport reports whether the file declares a previous report.
func (f KsdFile) HasPrevReport() bool {
	return strings.TrimSpace(f.PrevReportFileName) != ""
}

// ProcessJobMapping is the client job mapping. Raw keeps every key for
// forwarding to the update service.
type ProcessJobMapping struct {
	EftSubject      string         `json:"eftSubject" validate:"required"`
	JobName         string         `json:"jobName" validate:"required"`
	BusinessUnitOps map[string]any `json:"businessUnitOps" validate:"required"`
	ClientDetails   ClientDetails  `json:"clientDetails" validate:"required"`
	Process         map[string]any `json:"process" validate:"required"`
	CreatedDate     Text           `json:"createdDate" validate:"required"`
	CreatedBy       Text           `json:"createdBy" validate:"required"`
	KsdName         Text           `json:"ksdName" validate:"required"`
	ID              *int           `json:"id" validate:"required"`

	Raw map[string]any `json:"-"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *ProcessJobMapping) UnmarshalJSON(b []byte) error {
	type plain ProcessJobMapping
	var v plain
	if err := json.Unmarshal(b, &v); err != nil {
		return eris.Wrap(err, "model: decode process job mapping")
	}
	if err := json.Unmarshal(b, &v.Raw); err != nil {
		return eris.Wrap(err, "model: decode process job mapping")
	}
	*p = ProcessJobMapping(v)
	return nil
}

// ForUpdate returns a copy of the raw mapping with the client id set and the
// ksd name removed.
func (p ProcessJobMapping) ForUpdate() map[string]any {
	out := make(map[string]any, len(p.Raw)+1)
	for k, v := range p.Raw {
		out[k] = v
	}
	delete(out, "ksdName")
	out["clientId"] = string(p.ClientDetails.ClientCode)
	return out
}

// ClientDetails identifies the client.
type ClientDetails struct {
	BusinessUnitClients []any `json:"businessUnitClients" validate:"required"`
	CreatedDate         Text  `json:"createdDate" validate:"required"`
	ClientName          Text  `json:"clientName" validate:"required"`
	CreatedBy           Text  `json:"createdBy" validate:"required"`
	ClientCode          Text  `json:"clientCode" validate:"required"`
	ID                  Int   `json:"id"`
}

// RequestDetails identifies the job run.
type RequestDetails struct {
	UID             Text `json:"uid" validate:"required"`
	UserName        Text `json:"userName" validate:"required"`
	Phase           *Int `json:"phase" validate:"required"`
	PluginName      Text `json:"pluginName" validate:"required"`
	CreateTimeStamp Text `json:"createTimeStamp" validate:"required"`
}

// ProcessFeatureConfig describes the business process of the job.
type ProcessFeatureConfig struct {
	BusinessUnitName  Text              `json:"businessUnitName" validate:"required"`
	PhaseNames        PhaseNames        `json:"phaseNames" validate:"required"`
	ProcessType       Text              `json:"processType" validate:"required"`
	BusinessOpsName   Text              `json:"businessOpsName" validate:"required"`
	ProcessName       Text              `json:"processName" validate:"required"`
	ProcessJobMapping FeatureJobMapping `json:"processJobMapping" validate:"required"`
}

// FeatureJobMapping is the job mapping reference inside the feature config.
type FeatureJobMapping struct {
	ID      *int `json:"id" validate:"required"`
	JobName Text `json:"jobName" validate:"notblank"`
}

// PhaseNames is the phaseNames document. SourceMatch lists the files the
// source-match phase works on.
type PhaseNames struct {
	SourceMatch string
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PhaseNames) UnmarshalJSON(b []byte) error {
	var doc map[string]Text
	raw, err := embeddedJSON(b, &doc)
	if err != nil {
		return eris.Wrap(err, "model: decode phase names")
	}
	if raw == "" {
		return eris.New("model: phase names can't be empty")
	}
	v, ok := doc["SourceMatch"]
	if !ok {
		return eris.New("model: phaseNames doesn't have SourceMatch")
	}
	p.SourceMatch = string(v)
	return nil
}

// Files returns the source-match file names.
func (p PhaseNames) Files() []string {
	return strings.Split(p.SourceMatch, ",")
}

// BotOutput is the output manifest of earlier pipeline stages.
type BotOutput struct {
	FileValidator map[string]KeyManifest `json:"File Validator"`
	FileFormatter map[string]KeyManifest `json:"File Formatter"`
}

// Keys returns the partition keys of the named file, preferring the File
// Validator manifest.
func (b BotOutput) Keys(fileName string) ([]CacheKey, bool) {
	if m, ok := b.FileValidator[fileName]; ok {
		return m, true
	}
	if m, ok := b.FileFormatter[fileName]; ok {
		return m, true
	}
	return nil, false
}

// KeyManifest is the list of cached partitions of one file. It accepts a
// bare list or an object with a detailRedisKey list.
type KeyManifest []CacheKey

// UnmarshalJSON implements json.Unmarshaler.
func (m *KeyManifest) UnmarshalJSON(b []byte) error {
	var list []CacheKey
	if err := json.Unmarshal(b, &list); err == nil {
		*m = list
		return nil
	}
	var wrapped struct {
		DetailRedisKey []CacheKey `json:"detailRedisKey"`
	}
	if err := json.Unmarshal(b, &wrapped); err != nil {
		return eris.Wrap(err, "model: decode key manifest")
	}
	*m = wrapped.DetailRedisKey
	return nil
}

// CacheKey names one cached partition of a file.
type CacheKey struct {
	IdentifierName string `json:"identifier_name"`
	Key            string `json:"key"`
	SheetName      string `json:"sheet_name"`
}

// ClientCode returns the client code.
func (r *Request) ClientCode() string {
	return string(r.KsdConfig.ProcessJobMapping.ClientDetails.ClientCode)
}

// PJMID returns the process job mapping id of the feature config.
func (r *Request) PJMID() int {
	if r.ProcessFeatureConfig.ProcessJobMapping.ID == nil {
		return 0
	}
	return *r.ProcessFeatureConfig.ProcessJobMapping.ID
}

// PhaseID returns the request phase as a string.
func (r *Request) PhaseID() string {
	if r.RequestDetails.Phase == nil {
		return ""
	}
	return strconv.Itoa(int(*r.RequestDetails.Phase))
}

// UID returns the request id.
func (r *Request) UID() string { return string(r.RequestDetails.UID) }

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	v.RegisterStructValidation(validateMatchField, MatchField{})
	return v
}

func validateMatchField(sl validator.StructLevel) {
	m := sl.Current().Interface().(MatchField)
	switch strings.ToLower(strings.TrimSpace(m.MatchType)) {
	case "compare previous report", "compare with other report":
		if m.FileNameDest.Blank() || m.FileNameDestWoutSpace.Blank() ||
			m.MfFieldNameDest.Blank() || m.MfFieldWoutSpaceDest.Blank() {
			sl.ReportError(m.FileNameDest, "fileNameDest", "FileNameDest", "destfields", "")
		}
	case "compare with tba":
		if m.TBAFieldName.Blank() || m.InquiryDefName.Blank() {
			sl.ReportError(m.TBAFieldName, "tbaFieldName", "TBAFieldName", "tbafields", "")
		}
	}
}

// Validate checks the request against the required field rules.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return eris.Wrap(err, "model: invalid request")
	}
	return nil
}

// DecodeRequest parses and validates a request body.
func DecodeRequest(b []byte) (*Request, error) {
	var r Request
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, eris.Wrap(err, "model: decode request")
	}
	var raw struct {
		KsdConfig            json.RawMessage `json:"ksdConfig"`
		BotOutput            json.RawMessage `json:"botOutput"`
		ProcessFeatureConfig json.RawMessage `json:"processFeatureConfig"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, eris.Wrap(err, "model: decode request")
	}
	if len(raw.BotOutput) == 0 || string(raw.BotOutput) == "null" {
		return nil, eris.New("model: botOutput is required")
	}
	r.RawKsdConfig = raw.KsdConfig
	r.RawBotOutput = raw.BotOutput
	r.RawProcessFeatureConfig = raw.ProcessFeatureConfig
	if r.RedisKeys == nil {
		r.RedisKeys = map[string]any{}
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

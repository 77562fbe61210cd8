package matcher

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/internal/resilience"
)

// Kind classifies a fatal run error. Each kind maps to one operator
// notification.
type Kind int

// Error kinds.
const (
	KindDefault Kind = iota
	KindConfigNotFound
	KindConfigInvalid
	KindIdentifierMismatch
	KindEmptyFile
	KindCacheConnect
	KindCacheResponse
	KindInquiryConnect
	KindInquiryResponse
	KindRuleConnect
	KindRuleResponse
	KindUpdateConnect
	KindUpdateImproper
	KindUpdateResponse
	KindFormatterConnect
)

var maestros = map[Kind]model.Maestro{
	KindDefault:            {Description: "Expectation Failed", Title: "Failed"},
	KindConfigNotFound:     {Description: "Client config not present", Title: "Failed"},
	KindConfigInvalid:      {Description: "Configurations seems invalid", Title: "Failed to process"},
	KindIdentifierMismatch: {Description: "None of the identifier have match field", Title: "Failed to process"},
	KindEmptyFile:          {Description: "File/Report key can't be empty or None", Title: "Failed to Process"},
	KindCacheConnect:       {Description: "Unable to connect Cache Storage", Title: "Failed to connect"},
	KindCacheResponse:      {Description: "Unable to get File/Report", Title: "Failed to get response"},
	KindInquiryConnect:     {Description: "Unable to connect TBA Inquiry", Title: "Failed to Connect"},
	KindInquiryResponse:    {Description: "Unable to get response from TBA Inquiry", Title: "Failed to get response"},
	KindRuleConnect:        {Description: "Unable to connect Rule Engine", Title: "Failed to connect"},
	KindRuleResponse:       {Description: "Unable to get response from Rule Engine", Title: "Failed to get response"},
	KindUpdateConnect:      {Description: "Unable to connect TBA Update", Title: "Failed to connect"},
	KindUpdateImproper:     {Description: "Got improper response from TBA Update", Title: "Failed to get proper response"},
	KindUpdateResponse:     {Description: "Unable to get response from TBA Update", Title: "Failed to get response"},
	KindFormatterConnect:   {Description: "Unable to connect Excel Formatter", Title: "Failed to connect"},
}

// Maestro returns the operator notification of the kind.
func (k Kind) Maestro() model.Maestro {
	if m, ok := maestros[k]; ok {
		return m
	}
	return maestros[KindDefault]
}

// Status messages of fatal errors.
const (
	msgCacheConnect      = "Unable to connect Cache Storage"
	msgCacheResponse     = "Unable to get File/Report"
	msgEmptyKey          = "File/Report key can't be empty or None"
	msgInquiryConnect    = "Unable to connect TBA Inquiry"
	msgInquiryResponse   = "Unable to get response from TBAInquiry"
	msgRuleConnect       = "Unable to connect Rule Engine"
	msgRuleResponse      = "Unable to get response from Rule Engine"
	msgUpdateConnect     = "Unable to connect TBA Update"
	msgUpdateResponse    = "Unable to get response from TBA Update"
	msgFormatterConnect  = "Unable to connect Excel Formatter"
	msgFormatterFailed   = "Failed response from Excel Formatter"
	msgLayoutIdentifier  = "Identifier doesn't match with File/Report"
	msgNoMatchFields     = "None of the identifier have match fields"
	msgNoCommonPpt       = "Comparison File/Report don't have common participant(s)"
	msgFileNameMismatch  = "File name mismatch for few fields of Match TBA"
	msgPendingNotInTBA   = "Participant not found in TBA response (Pending Event)"
	msgInternalIDMissing = "%s ID not configured for internal id"
)

// Error is a fatal run error. Msg is reported as the envelope status
// message and Name as the audit file name.
type Error struct {
	Kind Kind
	Msg  string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("matcher: %s: %v", e.Msg, e.Err)
	}
	return "matcher: " + e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func configNotFound(format string, args ...any) *Error {
	return newError(KindConfigNotFound, fmt.Sprintf(format, args...))
}

// asError returns err as a run error, classifying anything else as the
// default kind.
func asError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindDefault, Msg: maestros[KindDefault].Description, Err: err}
}

// remote maps a client error to the connect or response kind of a service.
// An open breaker counts as a connect failure.
type remote struct {
	connect     Kind
	response    Kind
	connectMsg  string
	responseMsg string
}

var (
	cacheErrors   = remote{KindCacheConnect, KindCacheResponse, msgCacheConnect, msgCacheResponse}
	inquiryErrors = remote{KindInquiryConnect, KindInquiryResponse, msgInquiryConnect, msgInquiryResponse}
	ruleErrors    = remote{KindRuleConnect, KindRuleResponse, msgRuleConnect, msgRuleResponse}
)

func (r remote) wrap(err error, name string) *Error {
	if resilience.IsConnect(err) || errors.Is(err, resilience.ErrCircuitOpen) {
		return &Error{Kind: r.connect, Msg: r.connectMsg, Name: name, Err: err}
	}
	return &Error{Kind: r.response, Msg: r.responseMsg, Name: name, Err: eris.Wrap(err, "matcher: remote response")}
}

func joinNames(names []string) string {
	return strings.Join(names, ",")
}

func joinList(values []string) string {
	return strings.Join(values, ", ")
}

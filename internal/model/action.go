package model

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"
)

// Satisfied states of an action condition.
const (
	Met    = "Met"
	NotMet = "Not Met"
)

// CorrectiveAction is the remediation attached to a rule condition. The
// value is the label used by client configuration and echoed in audit output.
type CorrectiveAction string

// Corrective actions understood by the dispatcher.
const (
	TBAAdd            CorrectiveAction = "TBA Add"
	TBAUpdate         CorrectiveAction = "TBA Update"
	TBADelete         CorrectiveAction = "TBA Delete"
	TBAValidate       CorrectiveAction = "TBA Validate"
	RerunEvent        CorrectiveAction = "Rerun-Event"
	RerunEventDelete  CorrectiveAction = "Rerun-Event Delete"
	NoticeCancel      CorrectiveAction = "TBA Notice Cancel"
	NoticeUpdate      CorrectiveAction = "TBA Notice Update"
	PendingCancel     CorrectiveAction = "TBA Pending Event Cancel"
	PendingUpdate     CorrectiveAction = "TBA Pending Event Update"
	FileReportUpdate  CorrectiveAction = "File/Report Update"
	HumanInLoopAction CorrectiveAction = "HumanInLoop"
)

// ActionKind groups corrective actions by the remote call that serves them.
type ActionKind int

const (
	// KindNone is any action with no automated remediation, including
	// human review and unrecognized labels.
	KindNone ActionKind = iota
	// KindFieldMutation covers TBA Add, Update, Delete and Validate.
	KindFieldMutation
	KindRerun
	KindRerunDelete
	KindNotice
	KindPendingEvent
	KindFileUpdate
)

// Kind classifies the corrective action.
func (a CorrectiveAction) Kind() ActionKind {
	switch a {
	case TBAAdd, TBAUpdate, TBADelete, TBAValidate:
		return KindFieldMutation
	case RerunEvent:
		return KindRerun
	case RerunEventDelete:
		return KindRerunDelete
	case NoticeCancel, NoticeUpdate:
		return KindNotice
	case PendingCancel, PendingUpdate:
		return KindPendingEvent
	case FileReportUpdate:
		return KindFileUpdate
	default:
		return KindNone
	}
}

// TBADispatched reports whether the action is served by the TBA update service.
func (a CorrectiveAction) TBADispatched() bool {
	switch a.Kind() {
	case KindFieldMutation, KindRerun, KindRerunDelete, KindNotice, KindPendingEvent:
		return true
	default:
		return false
	}
}

// HumanReview reports whether the label names the human-in-loop action,
// in any of the spellings clients use.
func (a CorrectiveAction) HumanReview() bool {
	return strings.EqualFold(string(a), "human in loop") || a == HumanInLoopAction
}

// ActionList is the action tree of a match field. Config rows carry it as a
// JSON-encoded string.
type ActionList []ActionNode

// UnmarshalJSON implements json.Unmarshaler.
func (l *ActionList) UnmarshalJSON(b []byte) error {
	var nodes []ActionNode
	raw, err := embeddedJSON(b, &nodes)
	if err != nil {
		return eris.Wrap(err, "model: decode actions")
	}
	if raw == "" {
		return eris.New("model: actions can't be empty")
	}
	*l = nodes
	return nil
}

// ForCondition returns the nodes bound to the named condition with the given
// satisfied state.
func (l ActionList) ForCondition(condition, satisfied string) []ActionNode {
	var out []ActionNode
	for _, n := range l {
		if n.Condition == condition && n.Satisfied == satisfied {
			out = append(out, n)
		}
	}
	return out
}

// Inner returns the inner actions of the first node matching the condition,
// satisfied state and corrective action.
func (l ActionList) Inner(condition, satisfied string, action CorrectiveAction) []InnerAction {
	for _, n := range l {
		if n.Condition == condition && n.Satisfied == satisfied && n.CorrectiveAction == action {
			return n.Actions
		}
	}
	return nil
}

// ActionNode binds a rule condition outcome to a corrective action.
type ActionNode struct {
	Condition        string
	Satisfied        string
	CorrectiveAction CorrectiveAction
	Reason           string
	Actions          []InnerAction
}

// UnmarshalJSON accepts the "statisfied" and "correctiveAction" spellings
// alongside the canonical keys.
func (n *ActionNode) UnmarshalJSON(b []byte) error {
	var wire struct {
		Condition        Text          `json:"condition"`
		Satisfied        *Text         `json:"satisfied"`
		Statisfied       *Text         `json:"statisfied"`
		CorrectAction    *Text         `json:"correctAction"`
		CorrectiveAction *Text         `json:"correctiveAction"`
		Reason           Text          `json:"reason"`
		Actions          []InnerAction `json:"actions"`
	}
	if err := json.Unmarshal(b, &wire); err != nil {
		return eris.Wrap(err, "model: decode action node")
	}
	n.Condition = string(wire.Condition)
	n.Satisfied = string(firstText(wire.Satisfied, wire.Statisfied))
	n.CorrectiveAction = CorrectiveAction(firstText(wire.CorrectAction, wire.CorrectiveAction))
	n.Reason = string(wire.Reason)
	n.Actions = wire.Actions
	return nil
}

func firstText(vals ...*Text) Text {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return ""
}

// Radio values selecting where an inner action reads its value or date.
const (
	RadioText      = "text"
	RadioDate      = "date"
	RadioField     = "field"
	RadioResultVar = "resultVar"
)

// InnerAction is one concrete update spec under an action node.
type InnerAction struct {
	EventName        string     `json:"eventName"`
	ReRunEvent       string     `json:"reRunEvent"`
	TBANoticeCancel  StringList `json:"tbaNoticeCancel"`
	NoticeUpdate     string     `json:"noticeUpdate"`
	PendingEventName string     `json:"pendingEventName"`

	UpdateToRadio          string `json:"updateToRadio"`
	UpdateToText           Text   `json:"updateToText"`
	UpdateToDate           string `json:"updateToDate"`
	UpdateToFileName       string `json:"updateToFileName"`
	UpdateToSheetName      string `json:"updateToSheetName"`
	UpdateToFileIdentifier string `json:"updateToFileIdentifier"`
	UpdateToFileField      string `json:"updateToFileField"`
	UpdateToResult         string `json:"updateToResult"`

	EffectiveFromRadio          string `json:"effectiveFromRadio"`
	EffectiveFromText           Text   `json:"effectiveFromText"`
	EffectiveFromDate           string `json:"effectiveFromDate"`
	EffectiveFromFileName       string `json:"effectiveFromFileName"`
	EffectiveFromSheetName      string `json:"effectiveFromSheetName"`
	EffectiveFromFileIdentifier string `json:"effectiveFromFileIdentifier"`
	EffectiveFromFileField      string `json:"effectiveFromFileField"`

	FromFileName       string `json:"fromFileName"`
	FromFileSheetName  string `json:"fromFileSheetName"`
	FromFileIdentifier string `json:"fromFileIdentifier"`
	FromFileField      string `json:"fromFileField"`
}

// ValueFromField reports whether the update value is read from a file field.
func (a InnerAction) ValueFromField() bool {
	return strings.EqualFold(a.UpdateToRadio, RadioField)
}

// DateFromField reports whether the effective date is read from a file field.
func (a InnerAction) DateFromField() bool {
	return strings.EqualFold(a.EffectiveFromRadio, RadioField)
}

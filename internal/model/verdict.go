package model

import "strings"

// Action statuses.
const (
	StatusSuccess  = "Success"
	StatusFailed   = "Failed"
	NoActionTaken  = "no action is taken"
	HumanInLoop    = "HumanInLoop"
	NoActionNeeded = "No action is required"
)

// Verdict is the outcome of one rule, condition and inner action for one
// participant. Verdicts are mutated by the update stages and reduced to
// Records for the audit report.
type Verdict struct {
	ID                string
	UID               string
	ParticipantSSN    string
	InternalID        string
	ParticipantName   string
	FileName          string
	SheetName         string
	DataMismatch      string
	TBAFieldName      string
	MainframeValue    any
	TBAValue          any
	RuleName          string
	RuleFailedOnField []string
	Reason            string
	EventName         string
	RerunEvent        string
	NoticeCancel      []string
	NoticeUpdate      string
	PendingEventName  string
	EffectiveDate     string
	ResultsVarable    []map[string]any
	MatchType         string
	CorrectiveAction  []CorrectiveAction
	ConditionName     []string
	IfCondition       string
	ActionStatus      string
	UpdateAction      []InnerAction
}

// Action returns the corrective action of the verdict.
func (v *Verdict) Action() CorrectiveAction {
	if len(v.CorrectiveAction) == 0 {
		return ""
	}
	return v.CorrectiveAction[0]
}

// Condition returns the condition name of the verdict.
func (v *Verdict) Condition() string {
	if len(v.ConditionName) == 0 {
		return ""
	}
	return v.ConditionName[0]
}

// Settled reports whether the status counts as a non-failure.
func (v *Verdict) Settled() bool {
	s := strings.ToLower(v.ActionStatus)
	return s == "success" || s == NoActionTaken
}

// SetOutcome records the result of a remediation call. A "success" status
// marks the verdict Success; anything else is carried as the status.
func (v *Verdict) SetOutcome(status string) {
	if strings.EqualFold(status, "success") {
		v.ActionStatus = StatusSuccess
		v.Reason = string(v.Action()) + " Success"
		return
	}
	v.ActionStatus = status
	v.Reason = string(v.Action()) + " Failed"
}

// Record is one row of the audit report.
type Record struct {
	UID               string             `json:"uid"`
	ParticipantSSN    string             `json:"participantSsn"`
	InternalID        string             `json:"internalId"`
	ParticipantName   string             `json:"participantName"`
	FileName          string             `json:"fileName"`
	SheetName         string             `json:"sheetName"`
	DataMismatch      string             `json:"dataMismatch"`
	TBAFieldName      string             `json:"tbaFieldName"`
	MainframeValue    any                `json:"mainframeValue"`
	TBAValue          any                `json:"tbaValue"`
	RuleName          string             `json:"ruleName"`
	RuleFailedOnField []string           `json:"ruleFailedOnField"`
	Reason            string             `json:"reason"`
	EventName         string             `json:"eventName"`
	EffectiveDate     string             `json:"effectiveDate"`
	CorrectiveAction  []CorrectiveAction `json:"correctiveAction"`
	ConditionName     []string           `json:"conditionName"`
	IfCondition       string             `json:"ifCondition"`
	ActionStatus      string             `json:"actionStatus"`
}

// Record reduces the verdict to its report row. The event name is replaced
// by its configured label, or "" when none is configured.
func (v *Verdict) Record(labels map[string]string) Record {
	r := Record{
		UID:               v.UID,
		ParticipantSSN:    v.ParticipantSSN,
		InternalID:        v.InternalID,
		ParticipantName:   v.ParticipantName,
		FileName:          v.FileName,
		SheetName:         v.SheetName,
		DataMismatch:      v.DataMismatch,
		TBAFieldName:      v.TBAFieldName,
		MainframeValue:    v.MainframeValue,
		TBAValue:          v.TBAValue,
		RuleName:          v.RuleName,
		RuleFailedOnField: nonNil(v.RuleFailedOnField),
		Reason:            v.Reason,
		EventName:         labels[v.EventName],
		EffectiveDate:     v.EffectiveDate,
		CorrectiveAction:  v.CorrectiveAction,
		ConditionName:     nonNil(v.ConditionName),
		IfCondition:       v.IfCondition,
		ActionStatus:      v.ActionStatus,
	}
	if r.CorrectiveAction == nil {
		r.CorrectiveAction = []CorrectiveAction{}
	}
	return r
}

// MaskSSN hides all but the last four characters of a participant id.
func MaskSSN(ssn string) string {
	if len(ssn) <= 4 {
		return "xxxxx" + ssn
	}
	return "xxxxx" + ssn[len(ssn)-4:]
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

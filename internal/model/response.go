package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Status messages of the response envelopes.
const (
	MsgNoConfig      = "No Configuration(s) found in Match TBA/Report"
	MsgNotInTBA      = "All participants not in TBA"
	MsgMismatch      = "Mismatch data found"
	MsgMismatched    = "Mismatched data found"
	MsgNoMismatch    = "No Mismatch"
	MsgFieldsMissing = "Some important fields are missing"
)

// Bot ids written to the process log. Failures historically use a
// different casing and consumers match on it.
const (
	BotID       = "MFvsTba"
	FailedBotID = "MFvsTBA"
)

// Response is the envelope returned to the orchestrator.
type Response struct {
	Audit                 Audit          `json:"audit"`
	Maestro               Maestro        `json:"maestro"`
	Data                  *Empty         `json:"data,omitempty"`
	BotOutput             map[string]any `json:"botOutput,omitempty"`
	Status                string         `json:"status"`
	StatusMessage         string         `json:"statusMessage"`
	NoConfigStatusMessage string         `json:"noConfigStatusMessage"`
	OverAllStatus         bool           `json:"overAllStatus"`
	ProcessLog            []ProcessLog   `json:"processLog"`
	RedisKeys             map[string]any `json:"redisKeys"`
}

// Empty marshals as {}.
type Empty struct{}

// Maestro is the operator notification of the envelope. Success envelopes
// carry an empty notification.
type Maestro struct {
	Description string `json:"description,omitempty"`
	Title       string `json:"title,omitempty"`
}

// Audit is the audit trail entry of a run.
type Audit struct {
	UID                 string `json:"uid"`
	ProcessJobMappingID int    `json:"processJobMappingId"`
	BotName             string `json:"botName"`
	TicketID            any    `json:"ticketId"`
	FileName            string `json:"fileName"`
	FileType            string `json:"fileType"`
	ClientDet           string `json:"clientDet"`
	AllocatedBy         string `json:"allocatedBy"`
	CreateTimestamp     string `json:"createTimestamp"`
	Flag                bool   `json:"flag"`
	JSON                string `json:"json"`
}

// SetJSON stores v as the JSON-encoded audit body.
func (a *Audit) SetJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "model: encode audit json")
	}
	a.JSON = string(b)
	return nil
}

// ProcessLog is one process log entry.
type ProcessLog struct {
	UID                 string `json:"uid"`
	ProcessJobMappingID int    `json:"processJobMappingId"`
	BotID               string `json:"botId"`
	ElementType         string `json:"elementType"`
	Value               string `json:"value"`
	Timestamp           string `json:"timestamp"`
}

// Counts are the participant counters of a run.
type Counts struct {
	Participants int `json:"participants"`
	Verified     int `json:"participantsVerified"`
	Success      int `json:"participantsSuccess"`
	Failed       int `json:"participantsFailed"`
}

// BotOutput returns the counters as a botOutput section.
func (c Counts) BotOutput() map[string]any {
	return map[string]any{
		"participants":         c.Participants,
		"participantsVerified": c.Verified,
		"participantsSuccess":  c.Success,
		"participantsFailed":   c.Failed,
	}
}

// StatusBody is the audit body of a failed run.
type StatusBody struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
	OverAllStatus bool   `json:"overAllStatus"`
}

// Summary is the audit body of a run without participant rows.
type Summary struct {
	StatusBody
	FileName  string `json:"fileName"`
	SheetName string `json:"sheetName"`
	Counts
}

// Report is the audit body of a run with participant rows.
type Report struct {
	MFvsTba []Record `json:"MFvsTba"`
	Summary
}

// ValidationFailure is the 400 body for requests that fail validation.
type ValidationFailure struct {
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
}

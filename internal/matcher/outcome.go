package matcher

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/model"
)

// logTimestamp is the process log timestamp layout.
const logTimestamp = "2006-01-02T15:04:05"

var (
	notInTBAMaestro   = model.Maestro{Description: "Participants not in TBA", Title: model.MsgNotInTBA}
	mismatchedMaestro = model.Maestro{Description: "File/Report vs TBA mismatched data found", Title: "Mismatched data"}
)

func (r *run) audit() model.Audit {
	return model.Audit{
		UID:                 r.req.UID(),
		ProcessJobMappingID: r.req.PJMID(),
		BotName:             string(r.req.RequestDetails.PluginName),
		TicketID:            "",
		FileType:            string(r.req.ProcessFeatureConfig.ProcessType),
		ClientDet:           r.req.ClientCode(),
		AllocatedBy:         string(r.req.RequestDetails.UserName),
		CreateTimestamp:     string(r.req.RequestDetails.CreateTimeStamp),
		Flag:                true,
	}
}

func (r *run) processLog(botID, value string) []model.ProcessLog {
	return []model.ProcessLog{{
		UID:                 r.req.UID(),
		ProcessJobMappingID: r.req.PJMID(),
		BotID:               botID,
		ElementType:         "status",
		Value:               value,
		Timestamp:           r.e.now().Format(logTimestamp),
	}}
}

func (r *run) setJSON(a *model.Audit, body any) {
	if err := a.SetJSON(body); err != nil {
		r.log.Error("matcher: encode audit body", zap.Error(err))
	}
}

// noConfig is the envelope of a request without match configuration.
func (r *run) noConfig() *model.Response {
	a := r.audit()
	a.FileName = ""
	a.FileType = ""
	r.setJSON(&a, model.Summary{
		StatusBody: model.StatusBody{Status: model.StatusSuccess, StatusMessage: model.MsgNoConfig, OverAllStatus: true},
		Counts:     r.counts,
	})
	return &model.Response{
		Audit:                 a,
		Data:                  &model.Empty{},
		BotOutput:             r.counts.BotOutput(),
		Status:                model.StatusSuccess,
		NoConfigStatusMessage: model.MsgNoConfig,
		OverAllStatus:         true,
		ProcessLog:            r.processLog(model.BotID, model.StatusSuccess),
		RedisKeys:             r.req.RedisKeys,
	}
}

// notInTBAResponse is the Human-In-Loop envelope of a request whose
// participants TBA does not know.
func (r *run) notInTBAResponse(notFound []*model.Verdict) *model.Response {
	r.counts = model.Counts{Participants: r.counts.Participants}

	a := r.audit()
	a.TicketID = 0
	a.FileName = joinNames(r.files.values())
	a.FileType = joinNames(r.types.values())
	r.setJSON(&a, model.Report{
		MFvsTba: r.records(notFound),
		Summary: model.Summary{
			StatusBody: model.StatusBody{Status: model.HumanInLoop, StatusMessage: model.MsgNotInTBA},
			FileName:   a.FileName,
			SheetName:  joinNames(r.sheets.values()),
			Counts:     r.counts,
		},
	})
	return &model.Response{
		Audit:         a,
		Maestro:       notInTBAMaestro,
		BotOutput:     r.counts.BotOutput(),
		Status:        model.HumanInLoop,
		StatusMessage: model.MsgNotInTBA,
		ProcessLog:    r.processLog(model.BotID, model.HumanInLoop),
		RedisKeys:     r.req.RedisKeys,
	}
}

// outcome counts the verdicts and builds the Success or Human-In-Loop
// envelope.
func (r *run) outcome(verdicts []*model.Verdict) *model.Response {
	failed := map[string]struct{}{}
	for _, v := range verdicts {
		if !v.Settled() {
			failed[v.ParticipantSSN] = struct{}{}
		}
	}
	r.counts.Failed = len(failed)
	r.counts.Success = r.counts.Verified - r.counts.Failed

	hil := humanInLoop(verdicts)
	sort.SliceStable(verdicts, func(i, j int) bool {
		if verdicts[i].ParticipantSSN != verdicts[j].ParticipantSSN {
			return verdicts[i].ParticipantSSN < verdicts[j].ParticipantSSN
		}
		return verdicts[i].DataMismatch < verdicts[j].DataMismatch
	})

	status, msg, body := model.StatusSuccess, model.MsgNoMismatch, model.MsgNoMismatch
	maestro := model.Maestro{}
	botLog := model.StatusSuccess
	if hil {
		status, msg, body = model.HumanInLoop, model.MsgMismatched, model.MsgMismatch
		maestro = mismatchedMaestro
		botLog = model.HumanInLoop
	}

	a := r.audit()
	a.FileName = joinNames(r.files.values())
	a.FileType = joinNames(r.types.values())
	r.setJSON(&a, model.Report{
		MFvsTba: r.records(verdicts),
		Summary: model.Summary{
			StatusBody: model.StatusBody{Status: status, StatusMessage: body, OverAllStatus: !hil},
			FileName:   a.FileName,
			SheetName:  joinNames(r.sheets.values()),
			Counts:     r.counts,
		},
	})

	bo := r.counts.BotOutput()
	if r.excelOutput != "" {
		bo[r.excelOutput] = r.excelOutput
	}
	return &model.Response{
		Audit:         a,
		Maestro:       maestro,
		Data:          &model.Empty{},
		BotOutput:     bo,
		Status:        status,
		StatusMessage: msg,
		OverAllStatus: !hil,
		ProcessLog:    r.processLog(model.BotID, botLog),
		RedisKeys:     r.req.RedisKeys,
	}
}

// humanInLoop reports whether any verdict is unsettled. Human review
// verdicts that needed no action are marked as not requiring one.
func humanInLoop(verdicts []*model.Verdict) bool {
	hil := false
	for _, v := range verdicts {
		if !v.Settled() {
			hil = true
		}
		if strings.ToLower(v.ActionStatus) != model.NoActionTaken {
			continue
		}
		for _, ca := range v.CorrectiveAction {
			if ca.HumanReview() {
				v.ActionStatus = ""
				v.Reason = model.NoActionNeeded
				break
			}
		}
	}
	return hil
}

func (r *run) records(verdicts []*model.Verdict) []model.Record {
	labels := r.cfg.EventLabels()
	out := make([]model.Record, 0, len(verdicts))
	for _, v := range verdicts {
		rec := v.Record(labels)
		rec.ParticipantSSN = model.MaskSSN(rec.ParticipantSSN)
		out = append(out, rec)
	}
	return out
}

// failed is the envelope of a run aborted by err.
func (r *run) failed(err *Error) *model.Response {
	a := r.audit()
	a.FileName = err.Name
	a.CreateTimestamp = unixTimestamp(r.e.now())
	r.setJSON(&a, model.StatusBody{Status: model.StatusFailed, StatusMessage: err.Msg})
	return &model.Response{
		Audit:         a,
		Maestro:       err.Kind.Maestro(),
		Status:        model.StatusFailed,
		StatusMessage: err.Msg,
		ProcessLog:    r.processLog(model.FailedBotID, model.StatusFailed),
		RedisKeys:     r.req.RedisKeys,
	}
}

// unixTimestamp formats t as fractional unix seconds.
func unixTimestamp(t time.Time) string {
	return strconv.FormatFloat(float64(t.UnixNano())/1e9, 'f', 6, 64)
}

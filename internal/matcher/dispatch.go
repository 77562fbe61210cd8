package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/effdate"
	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/pkg/tbaupdate"
)

// valueNotFound marks a field reference no partition could resolve.
const valueNotFound = "Error: Not Found"

// dispatchable reports whether v still needs a TBA update call.
func dispatchable(v *model.Verdict) bool {
	if !v.Action().TBADispatched() {
		return false
	}
	if model.ParseMatchType(v.MatchType) == model.MatchReport {
		return false
	}
	if v.IfCondition != model.Met && v.IfCondition != model.NotMet {
		return false
	}
	return v.ActionStatus == "" && len(v.UpdateAction) > 0
}

func needsTBAUpdate(verdicts []*model.Verdict) bool {
	for _, v := range verdicts {
		if dispatchable(v) {
			return true
		}
	}
	return false
}

// dispatch sends every pending TBA remediation in one update request and
// merges the per-item results back into the verdicts.
func (r *run) dispatch(ctx context.Context, verdicts []*model.Verdict) error {
	req := &tbaupdate.Request{
		ProcessJobMapping: []map[string]any{r.req.KsdConfig.ProcessJobMapping.ForUpdate()},
		ConfigTables:      tbaupdate.ConfigTables{TBAUpdateConfig: r.updateConfig()},
		Rerun:             []map[string]any{},
		Comment:           []map[string]any{},
		RequestData:       []map[string]any{},
		Notice:            []map[string]any{},
		PendingEvents:     []map[string]any{},
	}

	var used []*model.Verdict
	for _, v := range verdicts {
		if !dispatchable(v) {
			continue
		}
		used = append(used, v)
		if err := r.addPayload(req, v); err != nil {
			return err
		}
	}
	if req.Empty() {
		return nil
	}

	files := joinNames(r.files.values())
	r.log.Info("matcher: calling TBA update",
		zap.Int("fields", len(req.RequestData)),
		zap.Int("reruns", len(req.Rerun)),
		zap.Int("notices", len(req.Notice)),
		zap.Int("pending_events", len(req.PendingEvents)),
	)
	resp, err := r.e.update.Update(ctx, req)
	if err != nil {
		return updateError(err, files)
	}
	r.mergeUpdate(used, resp)
	return nil
}

func updateError(err error, name string) *Error {
	if errors.Is(err, tbaupdate.ErrImproperResponse) {
		return &Error{Kind: KindUpdateImproper, Msg: msgUpdateResponse, Name: name, Err: err}
	}
	e := remote{KindUpdateConnect, KindUpdateResponse, msgUpdateConnect, msgUpdateResponse}
	return e.wrap(err, name)
}

// updateConfig returns the update rows forwarded to the service, with the
// bookkeeping keys the service expects defaulted to blank.
func (r *run) updateConfig() []map[string]any {
	updates := r.cfg.UpdateConfigs()
	out := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		row := make(map[string]any, len(u.Raw)+6)
		for k, v := range u.Raw {
			row[k] = v
		}
		for _, k := range []string{"processJobMapping", "transId", "value", "updatedDate", "updatedBy", "actLngDesc"} {
			if _, ok := row[k]; !ok {
				row[k] = ""
			}
		}
		out = append(out, row)
	}
	return out
}

func (r *run) identifierType(file string) string {
	for _, p := range r.parts {
		if p.FileName == file {
			return p.IdentifierType
		}
	}
	return ""
}

// addPayload appends the update entries of one verdict's inner actions.
func (r *run) addPayload(req *tbaupdate.Request, v *model.Verdict) error {
	ppt := v.ParticipantSSN
	idType := r.identifierType(v.FileName)
	ca := v.Action()

	for _, a := range v.UpdateAction {
		switch ca.Kind() {
		case model.KindFieldMutation:
			update, ok := r.cfg.UpdateByName(a.EventName)
			if !ok {
				return configNotFound("%s not configured in TBA update config", a.EventName)
			}
			value, date := r.valueAndDate(a, ppt, v.ResultsVarable, nil)
			var fieldValue any = value
			if strings.EqualFold(update.TBAUpdateAction, "validate") {
				fieldValue = "test"
			}
			req.RequestData = append(req.RequestData, map[string]any{
				"identifier":      ppt,
				"identifier_type": idType,
				"efdt":            effdate.Resolve(r.now, date, effdate.ISOFormat),
				"tbaUpdateAction": update.TBAUpdateAction,
				"field_value":     map[string]any{v.EventName: fieldValue},
			})

		case model.KindRerun, model.KindRerunDelete:
			update, ok := r.cfg.UpdateByName(a.ReRunEvent)
			if !ok {
				return configNotFound("%s not configured in TBA update config", a.ReRunEvent)
			}
			entry := map[string]any{
				"identifier":      ppt,
				"identifier_type": idType,
				"fastPath":        update.ActLngDesc,
				"action":          "Rerun",
				"sequence":        update.Sequence,
				"overrideEdits":   update.OverrideEdits,
			}
			if ca.Kind() == model.KindRerunDelete {
				entry["event_name"] = update.EventName
				entry["action"] = "Delete"
			} else {
				entry["event name"] = update.EventName
			}
			req.Rerun = append(req.Rerun, entry)

		case model.KindNotice:
			if ca == model.NoticeCancel {
				for _, def := range a.TBANoticeCancel {
					notice, ok := r.cfg.NoticeByDef(def)
					if !ok {
						return configNotFound("%s not configured in TBA notice config", def)
					}
					req.Notice = append(req.Notice, noticeEntry(ppt, idType, notice, "Cancel", ""))
				}
				continue
			}
			notice, ok := r.cfg.NoticeByDef(a.NoticeUpdate)
			if !ok {
				return configNotFound("%s not configured in TBA notice config", a.NoticeUpdate)
			}
			value, _ := r.valueAndDate(a, ppt, v.ResultsVarable, nil)
			req.Notice = append(req.Notice, noticeEntry(ppt, idType, notice, "Update", value))

		case model.KindPendingEvent:
			pending, ok := r.cfg.PendingByDef(a.PendingEventName)
			if !ok {
				return configNotFound("%s not configured in TBA pending event config", a.PendingEventName)
			}
			current, err := r.pendingValue(a.PendingEventName, ppt)
			if err != nil {
				return err
			}
			_, date := r.valueAndDate(a, ppt, v.ResultsVarable, nil)
			words := strings.Fields(string(ca))
			req.PendingEvents = append(req.PendingEvents, map[string]any{
				"identifier":                ppt,
				"identifierType":            idType,
				"inquiryDefName":            a.PendingEventName,
				"action":                    strings.ToLower(words[len(words)-1]),
				"fastPath":                  pending.EventName,
				"activity_long_description": pending.EventLongDesc,
				"efDt":                      current,
				"newEfDt":                   effdate.Resolve(r.now, date, effdate.ISOFormat),
			})
		}
	}
	return nil
}

func noticeEntry(ppt, idType string, n model.NoticeField, action string, status any) map[string]any {
	return map[string]any{
		"identifier":      ppt,
		"identifier_type": idType,
		"inquiryDefName":  n.InquiryDefName,
		"form_name":       n.NoticeName,
		"action":          action,
		"status_value":    status,
	}
}

// pendingValue returns the effective date TBA holds for the pending-event
// definition of participant ppt.
func (r *run) pendingValue(def, ppt string) (any, error) {
	for _, p := range r.parts {
		rec, ok := p.TBA[ppt]
		if !ok {
			continue
		}
		for _, g := range rec.Groups {
			if !g.has(def) {
				continue
			}
			for _, row := range g.Rows {
				if v, ok := row[def]; ok {
					return v, nil
				}
			}
		}
	}
	e := newError(KindDefault, msgPendingNotInTBA)
	e.Name = joinNames(r.files.values())
	return nil, e
}

// valueAndDate resolves the update value and effective date of an inner
// action. extra partitions are searched after the loaded inputs.
func (r *run) valueAndDate(a model.InnerAction, ppt string, results []map[string]any, extra []*partition) (value any, date string) {
	switch strings.TrimSpace(a.UpdateToRadio) {
	case model.RadioText:
		value = string(a.UpdateToText)
	case model.RadioDate:
		value = effdate.Resolve(r.now, a.UpdateToDate, effdate.ISOFormat)
	case model.RadioField:
		value = r.fieldValue(a.UpdateToFileName, a.UpdateToSheetName, a.UpdateToFileIdentifier, a.UpdateToFileField, ppt, extra)
	case model.RadioResultVar:
		value = resultVar(results, a.UpdateToResult)
	}

	switch strings.TrimSpace(a.EffectiveFromRadio) {
	case model.RadioText:
		date = string(a.EffectiveFromText)
	case model.RadioDate:
		date = a.EffectiveFromDate
	case model.RadioField:
		date = stringValue(r.fieldValue(a.EffectiveFromFileName, a.EffectiveFromSheetName, a.EffectiveFromFileIdentifier, a.EffectiveFromFileField, ppt, extra))
	}

	if s, ok := value.(string); ok && s == valueNotFound {
		value = ""
	}
	return value, date
}

func resultVar(results []map[string]any, name string) any {
	for _, m := range results {
		if v, ok := m[name]; ok {
			return v
		}
	}
	return nil
}

// fieldValue reads field for participant ppt from TBA or from the named
// partition.
func (r *run) fieldValue(file, sheet, ident, field, ppt string, extra []*partition) any {
	parts := append(append([]*partition(nil), r.parts...), extra...)
	for _, p := range parts {
		if strings.EqualFold(file, model.DestTBA) {
			if p.IdentifierName != ident {
				continue
			}
			vals := p.TBA[ppt].field(field)
			if len(vals) == 0 {
				r.log.Error("matcher: participant field not in TBA response",
					zap.String("field", field),
					zap.String("identifier", ident),
				)
				return ""
			}
			return vals[0][field]
		}
		if p.FileName != file || p.IdentifierName != ident {
			continue
		}
		if p.SheetName != sheet && p.CacheSheet != sheet {
			continue
		}
		if row, ok := p.row(ppt); ok {
			return row[field]
		}
		return ""
	}
	return valueNotFound
}

func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

// mergeUpdate applies the update service results to the verdicts they
// were requested for.
func (r *run) mergeUpdate(used []*model.Verdict, resp *tbaupdate.Response) {
	for _, res := range resp.Fields {
		id := res.Identifier.String()
		success := strings.EqualFold(res.Status, "success")
		for event, val := range res.Fields {
			for _, v := range used {
				if v.Action().Kind() != model.KindFieldMutation || v.ParticipantSSN != id || v.EventName != event {
					continue
				}
				if success {
					if v.Action() == model.TBAUpdate && val.String() != "" {
						v.TBAValue = val.String()
					}
					v.SetOutcome(model.StatusSuccess)
					continue
				}
				v.SetOutcome(res.Status)
			}
		}
	}

	for _, res := range resp.Reruns {
		kind := model.KindRerun
		if res.Action == "Delete" {
			kind = model.KindRerunDelete
		}
		id := res.Identifier.String()
		for _, v := range used {
			if v.Action().Kind() != kind || v.ParticipantSSN != id {
				continue
			}
			if r.rerunEventName(v) != res.EventName && v.RerunEvent != res.EventName {
				continue
			}
			v.SetOutcome(res.Reason)
		}
	}

	for _, res := range resp.Notices {
		id := res.ParticipantID.String()
		for _, v := range used {
			if v.ParticipantSSN != id {
				continue
			}
			switch v.Action() {
			case model.NoticeCancel:
				if contains(v.NoticeCancel, res.InquiryDefName) {
					v.SetOutcome(res.Reason)
				}
			case model.NoticeUpdate:
				if v.NoticeUpdate == res.InquiryDefName {
					v.SetOutcome(res.Reason)
				}
			}
		}
	}

	for _, res := range resp.Pending {
		id := res.Identifier.String()
		for _, v := range used {
			if v.Action().Kind() == model.KindPendingEvent && v.ParticipantSSN == id && v.PendingEventName == res.InquiryDefName {
				v.SetOutcome(res.Reason)
			}
		}
	}
}

// rerunEventName is the TBA event name the rerun of v was sent under.
func (r *run) rerunEventName(v *model.Verdict) string {
	if u, ok := r.cfg.UpdateByName(v.RerunEvent); ok {
		return u.EventName
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

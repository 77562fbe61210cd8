package matcher

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/effdate"
	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/pkg/tbainquiry"
)

// internalIDDef is the inquiry definition that returns unmasked internal ids.
const internalIDDef = "UNMASKEDSSN_INTERNALID"

const (
	internalIDFromDate = `{"effectiveFromDateAppNameWithoutSpace":"","effectiveFromDateSheetName":"","effectiveFromDateRIdentifier":"","effectiveFromDateField":"","effectiveFromDatePeriod":"Current","effectiveFromDateInterval":"Date"}`
	internalIDToDate   = `{"effectiveToDateAppNameWithoutSpace":"","effectiveToDateSheetName":"","effectiveToDateRIdentifier":"","effectiveToDateField":"","effectiveToDatePeriod":"","effectiveToDateFrequency":"","effectiveToDateInterval":""}`
)

// normalizeID strips non-alphanumerics and, for pid identifiers, right
// aligns the id to nine zero-padded digits.
func normalizeID(idType, raw string) string {
	id := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, raw)
	if idType != "pid" {
		return id
	}
	runes := []rune(id)
	if len(runes) >= 9 {
		return string(runes[len(runes)-9:])
	}
	return strings.Repeat("0", 9-len(runes)) + id
}

// clientID drops leading zeros from numeric client codes.
func clientID(code string) string {
	n, err := strconv.Atoi(strings.TrimSpace(code))
	if err != nil {
		return code
	}
	return strconv.Itoa(n)
}

// fieldGroup is one list-valued inquiry result: the rows TBA returned for a
// definition, keyed by the union of their field names.
type fieldGroup struct {
	Names map[string]struct{}
	Rows  []map[string]any
}

func (g fieldGroup) has(name string) bool {
	_, ok := g.Names[name]
	return ok
}

// tbaRecord is the inquiry result of one participant.
type tbaRecord struct {
	Groups []fieldGroup
}

// field returns {name: value} for every row of the first group that holds
// name.
func (t *tbaRecord) field(name string) []map[string]any {
	if t == nil {
		return nil
	}
	for _, g := range t.Groups {
		if !g.has(name) {
			continue
		}
		var out []map[string]any
		for _, row := range g.Rows {
			if v, ok := row[name]; ok {
				out = append(out, map[string]any{name: v})
			}
		}
		return out
	}
	return nil
}

// newTBARecord groups one participant's inquiry result. Scalar results
// become single-row groups. The internal id, when returned, is reported
// separately.
func newTBARecord(found map[string]any) (*tbaRecord, string) {
	groups := map[string]fieldGroup{}
	internalID := ""
	for item, data := range found {
		g := fieldGroup{Names: map[string]struct{}{}}
		switch v := data.(type) {
		case []any:
			for _, x := range v {
				row, ok := x.(map[string]any)
				if !ok {
					continue
				}
				for k := range row {
					g.Names[k] = struct{}{}
				}
				if id, ok := row[internalIDDef]; ok {
					internalID = fmt.Sprint(id)
				}
				g.Rows = append(g.Rows, row)
			}
		default:
			g.Names[item] = struct{}{}
			g.Rows = []map[string]any{{item: data}}
		}
		groups[groupKey(g.Names)] = g
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rec := &tbaRecord{Groups: make([]fieldGroup, 0, len(keys))}
	for _, k := range keys {
		rec.Groups = append(rec.Groups, groups[k])
	}
	return rec, internalID
}

func groupKey(names map[string]struct{}) string {
	list := make([]string, 0, len(names))
	for n := range names {
		list = append(list, n)
	}
	sort.Strings(list)
	return strings.Join(list, "\x00")
}

// inquire calls TBA for every partition and settles the results. It returns
// the audit verdicts of participants TBA does not know.
func (r *run) inquire(ctx context.Context) ([]*model.Verdict, error) {
	var notFound []*model.Verdict
	for _, p := range r.parts {
		present, payload, err := r.inquiryPayload(p)
		if err != nil {
			return nil, err
		}

		resp := &tbainquiry.Response{}
		if !payload.Empty() {
			r.log.Info("matcher: inquiring TBA",
				zap.String("file", p.FileName),
				zap.String("identifier", p.IdentifierName),
				zap.Int("participants", len(payload.Participants)),
			)
			resp, err = r.e.inquiry.Inquire(ctx, &tbainquiry.Request{
				TBAURL:      tbainquiry.TBAURL{URL: r.e.tbaURL},
				InquiryData: []tbainquiry.Payload{*payload},
			})
			if err != nil {
				return nil, inquiryErrors.wrap(err, joinNames(r.files.values()))
			}
		}
		notFound = append(notFound, r.settle(p, present, resp)...)
	}
	return notFound, nil
}

// inquiryPayload builds the inquiry of one partition and returns its raw
// participant ids in row order.
func (r *run) inquiryPayload(p *partition) ([]string, *tbainquiry.Payload, error) {
	idType := strings.ToLower(p.IdentifierType)
	present := p.Frame.Values(p.IDColumn)

	var fields []model.InquiryField
	for _, f := range r.reqs.inquiryFields {
		if strings.TrimSpace(string(f.Identifier)) == p.IdentifierName {
			fields = append(fields, f)
		}
	}

	participants := make([]map[string]string, 0, len(present))
	for _, id := range present {
		participants = append(participants, map[string]string{idType: id})
	}
	r.windowDates(p, fields, participants, present)
	for _, pp := range participants {
		pp[idType] = normalizeID(idType, pp[idType])
	}

	pfc := r.req.ProcessFeatureConfig
	payload := &tbainquiry.Payload{
		ClientID:      clientID(r.req.ClientCode()),
		FileName:      p.FileName,
		BusinessOps:   string(pfc.BusinessOpsName),
		ProcessType:   string(pfc.ProcessName),
		FileType:      string(pfc.ProcessType),
		BusinessUnit:  string(pfc.BusinessUnitName),
		JobName:       string(pfc.ProcessJobMapping.JobName),
		Inquiry:       tbainquiry.Inquiry{Fields: []string{}},
		Fields:        make([]any, 0, len(fields)+1),
		Notices:       []any{},
		PendingEvents: make([]any, 0, len(r.cfg.PendingEventConfig)),
		EventHistory:  make([]any, 0, len(r.cfg.EventHistConfig)),
		Participants:  participants,
	}
	for _, f := range fields {
		payload.Fields = append(payload.Fields, f)
	}
	for _, n := range r.reqs.noticeFields {
		if strings.TrimSpace(string(n.Identifier)) == p.IdentifierName {
			payload.Notices = append(payload.Notices, n)
		}
	}
	for _, pe := range r.cfg.PendingEventConfig {
		payload.PendingEvents = append(payload.PendingEvents, pe)
	}
	for _, eh := range r.cfg.EventHistConfig {
		payload.EventHistory = append(payload.EventHistory, eh)
	}

	if len(r.reqs.inquiries) > 0 {
		field, err := r.internalIDField(p)
		if err != nil {
			return nil, nil, err
		}
		payload.Fields = append(payload.Fields, field)
	}
	return present, payload, nil
}

func (r *run) internalIDField(p *partition) (map[string]any, error) {
	mapping, err := r.e.internalIDs()
	if err != nil {
		return nil, &Error{Kind: KindConfigNotFound, Msg: fmt.Sprintf(msgInternalIDMissing, r.req.ClientCode()), Name: p.FileName, Err: err}
	}
	entry, ok := mapping.Lookup(r.req.ClientCode())
	if !ok {
		e := configNotFound(msgInternalIDMissing, r.req.ClientCode())
		e.Name = p.FileName
		return nil, e
	}
	return map[string]any{
		"id":               0,
		"inquiryName":      entry.InquiryName,
		"parNM":            entry.ParNM,
		"panelId":          entry.PanelID,
		"tbaFieldName":     "internalId",
		"fieldType":        "String",
		"jsonKey":          "intnId",
		"subJsonKey":       "",
		"metaData":         "",
		"identifier":       p.IdentifierName,
		"recordIdentifier": "",
		"inquiryDefName":   internalIDDef,
		"sequence":         "1",
		"effDateType":      "date",
		"effFromDate":      internalIDFromDate,
		"effToDate":        internalIDToDate,
		"rowMatrix":        "",
		"columnMatrix":     "",
	}, nil
}

// windowDates adds, for application-type inquiry fields, the effective
// from date each participant's row holds.
func (r *run) windowDates(p *partition, fields []model.InquiryField, participants []map[string]string, ids []string) {
	for _, f := range fields {
		if !f.ApplicationWindow() {
			continue
		}
		w := f.EffFromDate
		src := r.partitionByRef(w.App, w.Sheet, w.Identifier)
		if src == nil || !src.Frame.Has(w.Field) {
			r.log.Warn("matcher: effFromDate field not in File/Report", zap.String("field", w.Field))
			continue
		}
		for i, id := range ids {
			row, ok := src.row(id)
			if !ok {
				continue
			}
			participants[i][w.Field] = r.convertDate(row[w.Field], p.FileName, w.Field)
		}
	}
}

// convertDate converts a file date to ISO using the field's record format.
// Unparseable dates fall back to today.
func (r *run) convertDate(value, file, field string) string {
	for _, l := range r.cfg.Layout {
		if l.FileName != file || l.MfFieldWoutSpace != field {
			continue
		}
		out, err := effdate.Convert(r.now, value, l.RecordFormat)
		if err != nil {
			r.log.Error("matcher: field type is not date", zap.String("field", field), zap.Error(err))
			return r.now.Format("2006-01-02")
		}
		return out
	}
	return value
}

// settle removes the participants TBA reported as failed, records their
// audit verdicts and indexes the remaining results by raw participant id.
func (r *run) settle(p *partition, present []string, resp *tbainquiry.Response) []*model.Verdict {
	failed := append([]tbainquiry.Failure(nil), resp.Failed...)
	sort.SliceStable(failed, func(i, j int) bool { return failed[i].Index > failed[j].Index })

	idType := strings.ToLower(p.IdentifierType)
	var notFound []*model.Verdict
	for _, f := range failed {
		reason := f.ErrorDescription
		if reason == "" {
			reason = "Participant Not Found"
		}
		notFound = append(notFound, &model.Verdict{
			UID:               r.req.UID(),
			ParticipantSSN:    f.IDs[idType],
			FileName:          p.FileName,
			SheetName:         p.SheetName,
			RuleFailedOnField: []string{},
			CorrectiveAction:  []model.CorrectiveAction{model.HumanInLoopAction},
			ConditionName:     []string{},
			Reason:            reason,
		})
		if f.Index >= 0 && f.Index < len(present) {
			present = append(present[:f.Index:f.Index], present[f.Index+1:]...)
		}
	}

	p.Present = present
	p.TBA = map[string]*tbaRecord{}
	for i, id := range present {
		if i >= len(resp.Found) {
			break
		}
		rec, internalID := newTBARecord(resp.Found[i])
		p.TBA[id] = rec
		if internalID != "" {
			r.internalIDs[id] = internalID
		}
	}
	if len(notFound) > 0 {
		r.log.Info("matcher: participants not in TBA",
			zap.String("file", p.FileName),
			zap.Int("count", len(notFound)),
		)
	}
	return notFound
}

// notInTBA reports whether any partition is left without participants TBA
// knows.
func (r *run) notInTBA() bool {
	for _, p := range r.parts {
		if len(p.Present) == 0 {
			return true
		}
	}
	return false
}

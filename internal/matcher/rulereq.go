package matcher

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/internal/tabular"
	"github.com/sells-group/source-matcher/pkg/ruleengine"
)

// compElement names the field a payload compares.
const compElement = "comp_element"

// detail is a source matcher detail and the destination it compares
// against: "tba" or a file__sheet__identifier key.
type detail struct {
	ruleengine.Detail
	destFlag string
}

// ruleRequest builds the rule engine request for every loaded partition.
// The returned map indexes match fields by id.
func (r *run) ruleRequest() (*ruleengine.Request, map[string]model.MatchField, error) {
	matches := map[string]model.MatchField{}
	renames := map[string]string{}
	var details []detail
	var participants []ruleengine.Participant

	for _, p := range r.parts {
		var own []detail
		for _, m := range r.cfg.MatchConfig {
			if m.FileName != p.FileName || string(m.Identifier) != p.IdentifierName {
				continue
			}
			if m.Type() == model.MatchUnknown {
				continue
			}
			matches[m.Key()] = m
			own = append(own, detail{
				Detail: ruleengine.Detail{
					ID:            m.Key(),
					FileFieldName: m.MfFieldWoutSpace,
					ActualField:   m.MfFieldWoutSpace,
					TBAFieldName:  m.DestFieldName(),
					RuleName:      m.Rule(),
				},
				destFlag: m.DestFlag(),
			})
		}
		if len(own) == 0 {
			continue
		}

		present := map[string]struct{}{}
		for _, id := range p.Present {
			present[id] = struct{}{}
		}
		for _, row := range p.Frame.Rows {
			id := row[p.IDColumn]
			if _, ok := present[id]; !ok {
				continue
			}
			pp := ruleengine.Participant{
				Type:          "Participant" + strconv.Itoa(r.req.PJMID()),
				ParticipantID: id,
				FileFields:    ruleengine.FieldValues{},
				TBAFields:     ruleengine.FieldValues{},
			}
			for _, d := range own {
				file, dest, err := r.matchField(p, row, d, renames)
				if err != nil {
					return nil, nil, err
				}
				pp.FileFields[d.ID] = file
				pp.TBAFields[d.ID] = dest
			}
			participants = append(participants, pp)
		}
		details = append(details, own...)
	}

	out := make([]ruleengine.Detail, 0, len(details))
	for _, d := range details {
		if n, ok := renames[d.ID+"__"+d.FileFieldName]; ok {
			d.FileFieldName = n
		}
		if n, ok := renames[d.ID+"__"+d.TBAFieldName]; ok {
			d.TBAFieldName = n
		}
		out = append(out, d.Detail)
	}

	return &ruleengine.Request{
		PJMID:                r.req.PJMID(),
		PhaseID:              r.req.PhaseID(),
		ApplicationType:      ruleengine.ApplicationType,
		FileName:             joinNames(r.files.values()),
		SourceMatcherDetails: out,
		Participants:         participants,
	}, matches, nil
}

// matchField builds the file-side and destination-side values of one
// detail for one row.
func (r *run) matchField(p *partition, row tabular.Row, d detail, renames map[string]string) (file, dest []map[string]any, err error) {
	id := row[p.IDColumn]
	destFlag := d.destFlag
	var rec *tbaRecord
	var destRow tabular.Row
	if destFlag == model.DestTBA {
		rec = p.TBA[id]
	} else {
		parts := strings.SplitN(destFlag, "__", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		destRow, err = r.destinationRow(id, parts[0], parts[1], parts[2])
		if err != nil {
			return nil, nil, err
		}
		destFlag = parts[0]
	}

	fileRefs, destRefs := ruleRefs(r.cfg.RulesConfig, d.RuleName, p.FileName, destFlag)
	b := fieldBuilder{r: r, p: p, id: id, detail: d.ID, renames: renames}

	switch {
	case len(fileRefs) == 0:
		file = []map[string]any{{compElement: d.FileFieldName}, {d.FileFieldName: row[d.FileFieldName]}}
	case hasRef(fileRefs, d.FileFieldName):
		file = b.fileFields(fileRefs, d.FileFieldName, row, true)
	default:
		file = append([]map[string]any{{compElement: d.FileFieldName}}, b.fileFields(fileRefs, d.FileFieldName, row, false)...)
	}

	switch {
	case len(destRefs) > 0:
		comp := hasRef(destRefs, d.TBAFieldName)
		if !comp {
			dest = []map[string]any{{compElement: d.TBAFieldName}}
		}
		var more []map[string]any
		if destFlag == model.DestTBA {
			more, err = b.tbaFields(destRefs, d.TBAFieldName, rec, comp)
			if err != nil {
				return nil, nil, err
			}
		} else {
			more = b.fileFields(destRefs, d.TBAFieldName, destRow, comp)
		}
		dest = append(dest, more...)
	case destFlag == model.DestTBA:
		dest = append([]map[string]any{{compElement: d.TBAFieldName}}, rec.field(d.TBAFieldName)...)
	default:
		dest = []map[string]any{{compElement: d.TBAFieldName}, {d.TBAFieldName: destRow[d.TBAFieldName]}}
	}
	return file, dest, nil
}

// destinationRow finds participant id in the destination report partition.
func (r *run) destinationRow(id, file, sheet, ident string) (tabular.Row, error) {
	for _, p := range r.parts {
		if p.FileName != file || p.SheetName != sheet || p.IdentifierName != ident {
			continue
		}
		if row, ok := p.row(id); ok {
			return row, nil
		}
		break
	}
	r.log.Error("matcher: destination file missing participant",
		zap.String("file", file),
		zap.String("sheet", sheet),
		zap.String("identifier", ident),
	)
	e := newError(KindEmptyFile, msgNoCommonPpt)
	e.Name = file
	return nil, e
}

// fieldBuilder assembles the rule-referenced values of one participant
// and detail. renames collects the prefixed names rule-referenced
// comparison fields are known by.
type fieldBuilder struct {
	r       *run
	p       *partition
	id      string
	detail  string
	renames map[string]string
}

// fileFields returns the referenced values read from row, or from the
// partition each reference names. When comp is set the compared field is
// one of the references and its prefixed name leads the list.
func (b fieldBuilder) fileFields(refs []ruleRef, name string, row tabular.Row, comp bool) []map[string]any {
	var out []map[string]any
	field := map[string]any{}
	if !comp {
		field[name] = row[name]
	}
	for _, ref := range refs {
		key := ref.Key()
		if comp && ref.Field == name {
			out = append([]map[string]any{{compElement: key}}, out...)
			b.renames[b.detail+"__"+ref.Field] = key
		}
		if ref.Prefix.Identifier == b.p.IdentifierName && ref.Prefix.App == b.p.FileNameWoutSpace {
			field[key] = row[ref.Field]
			continue
		}
		field[key] = b.crossValue(ref)
	}
	return append(out, field)
}

// crossValue reads a referenced field from another partition. Missing
// participants read as null.
func (b fieldBuilder) crossValue(ref ruleRef) any {
	for _, p := range b.r.parts {
		if p.IdentifierName != ref.Prefix.Identifier {
			continue
		}
		if p.FileName != ref.Prefix.App && p.FileNameWoutSpace != ref.Prefix.App {
			continue
		}
		if row, ok := p.row(b.id); ok {
			return row[ref.Field]
		}
		break
	}
	b.r.log.Info("matcher: participant not in referenced file", zap.String("file", ref.Prefix.App))
	return nil
}

// tbaFields returns the referenced values from the inquiry results,
// reading references under another identifier from that identifier's
// results.
func (b fieldBuilder) tbaFields(refs []ruleRef, name string, rec *tbaRecord, comp bool) ([]map[string]any, error) {
	var order []string
	byIdent := map[string][]ruleRef{}
	add := func(ident string, ref ruleRef) {
		if _, ok := byIdent[ident]; !ok {
			order = append(order, ident)
		}
		byIdent[ident] = append(byIdent[ident], ref)
	}
	for _, ref := range refs {
		add(ref.Prefix.Identifier, ref)
	}
	if !comp {
		add(b.p.IdentifierName, ruleRef{Field: name, Wout: name})
	}

	var out []map[string]any
	for _, ident := range order {
		if ident == b.p.IdentifierName {
			out = append(out, b.requiredFields(byIdent[ident], name, rec, &comp)...)
			continue
		}
		other, err := b.identifierRecord(ident)
		if err != nil {
			return nil, err
		}
		foreign := false
		out = append(out, b.requiredFields(byIdent[ident], name, other, &foreign)...)
	}
	return out, nil
}

// identifierRecord returns the participant's inquiry results under ident,
// falling back to any partition that holds them.
func (b fieldBuilder) identifierRecord(ident string) (*tbaRecord, error) {
	for _, p := range b.r.parts {
		if p.IdentifierName == ident {
			if rec, ok := p.TBA[b.id]; ok {
				return rec, nil
			}
			break
		}
	}
	b.r.log.Info("matcher: participant not found under identifier", zap.String("identifier", ident))
	for _, p := range b.r.parts {
		if rec, ok := p.TBA[b.id]; ok {
			return rec, nil
		}
	}
	e := newError(KindInquiryResponse, "Participant with identifier: '"+ident+"' not found in Inquiry response")
	e.Name = b.p.FileName
	return nil, e
}

// requiredFields picks the referenced fields out of every result group,
// renaming them to their prefixed keys.
func (b fieldBuilder) requiredFields(refs []ruleRef, name string, rec *tbaRecord, comp *bool) []map[string]any {
	if rec == nil {
		return nil
	}
	names := map[string]struct{}{}
	mapping := map[string]string{}
	for _, ref := range refs {
		names[ref.Field] = struct{}{}
		mapping[ref.Field] = ref.Key()
	}

	var out []map[string]any
	for _, g := range rec.Groups {
		for _, row := range g.Rows {
			keys := make([]string, 0, len(row))
			for k := range row {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			temp := map[string]any{}
			for _, k := range keys {
				if _, ok := names[k]; !ok || !g.has(k) {
					continue
				}
				mapped := mapping[k]
				if *comp && k == name {
					out = append([]map[string]any{{compElement: mapped}}, out...)
					b.renames[b.detail+"__"+k] = mapped
					*comp = false
				}
				temp[mapped] = row[k]
			}
			if len(temp) > 0 {
				out = append(out, temp)
			}
		}
	}
	return out
}

// evaluate sends the rule request and turns the outcomes into verdicts.
func (r *run) evaluate(ctx context.Context) ([]*model.Verdict, error) {
	req, matches, err := r.ruleRequest()
	if err != nil {
		return nil, err
	}
	r.log.Info("matcher: evaluating rules",
		zap.Int("details", len(req.SourceMatcherDetails)),
		zap.Int("participants", len(req.Participants)),
	)
	resp, err := r.e.rules.Evaluate(ctx, req)
	if err != nil {
		return nil, ruleErrors.wrap(err, req.FileName)
	}
	return r.verdicts(resp, matches, req.FileName)
}

package matcher

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/effdate"
	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/internal/resilience"
	"github.com/sells-group/source-matcher/internal/tabular"
	"github.com/sells-group/source-matcher/pkg/formatter"
	"github.com/sells-group/source-matcher/pkg/objectcache"
)

const (
	valueFromSource   = "value from source"
	resultVarNotFound = "Error: Value Not Found"
	fileNameMismatch  = "Failed for file name mismatch"
	fileUpdateSuccess = string(model.FileReportUpdate) + " Success"
	fileUpdateFailed  = string(model.FileReportUpdate) + " Failed"
)

// needsFileUpdate reports whether the run writes output files: any output
// file is configured, or a verdict still asks for a file/report update.
func (r *run) needsFileUpdate(verdicts []*model.Verdict) bool {
	if len(verdicts) == 0 {
		return false
	}
	if len(r.cfg.OutputFileDetails) > 0 {
		return true
	}
	for _, v := range verdicts {
		if v.Action() != model.FileReportUpdate || model.ParseMatchType(v.MatchType) == model.MatchReport {
			continue
		}
		if (v.IfCondition == model.Met || v.IfCondition == model.NotMet) && v.ActionStatus == "" {
			return true
		}
	}
	return false
}

// fileUpdate lays out the output reports, applies the file/report update
// actions to them, stores the changed partitions and renders the output
// files.
func (r *run) fileUpdate(ctx context.Context, verdicts []*model.Verdict) error {
	files := joinNames(r.files.values())
	layout, err := r.format(ctx, files, nil, nil)
	if err != nil {
		return err
	}
	outputs, err := r.outputPartitions(ctx, layout)
	if err != nil {
		return err
	}

	for _, v := range verdicts {
		if v.Action() != model.FileReportUpdate || v.ActionStatus == model.NoActionTaken {
			continue
		}
		var failures []string
		for _, a := range v.UpdateAction {
			if status := r.applyOutput(outputs, a, r.outputValue(a, v, outputs), v.ParticipantSSN); outputFailed(status) {
				failures = append(failures, status)
			}
		}
		if len(failures) > 0 {
			v.ActionStatus = joinList(failures)
			v.Reason = fileUpdateFailed
			continue
		}
		v.ActionStatus = model.StatusSuccess
		v.Reason = fileUpdateSuccess
	}

	for _, p := range outputs {
		name := tabular.PartitionName(p.FileName, p.IdentifierName, p.CacheSheet)
		blob, err := tabular.Encode(p.Frame, name)
		if err != nil {
			return &Error{Kind: KindDefault, Msg: maestros[KindDefault].Description, Name: p.FileName, Err: err}
		}
		key, err := r.e.cache.Store(ctx, name, blob)
		if errors.Is(err, objectcache.ErrNotStored) {
			r.log.Warn("matcher: output partition not stored", zap.String("file", p.FileName), zap.Error(err))
			continue
		}
		if err != nil {
			return cacheErrors.wrap(err, p.FileName)
		}
		if key == "" {
			key = name
		}

		rendered, err := r.format(ctx, files,
			map[string][]formatter.Key{p.FileName: {{SheetName: p.CacheSheet, Key: key, IdentifierName: p.IdentifierName}}},
			layout.OutputFiles,
		)
		if err != nil {
			return err
		}
		if excel, ok := rendered.OutputFiles[p.FileName]; ok && excel != "" {
			r.excelOutput = excel
			r.req.RedisKeys[excel] = excel
		}
	}
	return nil
}

func (r *run) format(ctx context.Context, files string, reports map[string][]formatter.Key, outputFiles map[string]string) (*formatter.BotOutput, error) {
	if reports == nil {
		reports = map[string][]formatter.Key{}
	}
	if outputFiles == nil {
		outputFiles = map[string]string{}
	}
	r.log.Info("matcher: calling excel formatter", zap.Int("output_reports", len(reports)))
	out, err := r.e.formatter.Format(ctx, &formatter.Request{
		KsdConfig:            r.req.RawKsdConfig,
		BotOutput:            r.req.RawBotOutput,
		ProcessFeatureConfig: r.req.RawProcessFeatureConfig,
		KsdOutputFileDetails: r.cfg.RawOutputFileDetails,
		LayoutConfig:         r.cfg.RawLayout,
		OutputReports:        reports,
		OutputFiles:          outputFiles,
	})
	if err == nil {
		return out, nil
	}
	if resilience.IsConnect(err) || errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, &Error{Kind: KindFormatterConnect, Msg: msgFormatterConnect, Name: files, Err: err}
	}
	return nil, &Error{Kind: KindFormatterConnect, Msg: msgFormatterFailed, Name: files, Err: eris.Wrap(err, "matcher: format")}
}

// outputPartitions fetches every output partition the formatter laid out
// and fills its TBA-sourced columns.
func (r *run) outputPartitions(ctx context.Context, layout *formatter.BotOutput) ([]*partition, error) {
	var out []*partition
	for _, d := range r.cfg.OutputFileDetails {
		idColumn := ""
		for _, c := range d.OutputReports {
			if c.DataElement == d.PptIdentifier {
				idColumn = c.DataElementWoutSpace
				break
			}
		}
		if strings.TrimSpace(idColumn) == "" {
			e := newError(KindIdentifierMismatch, msgLayoutIdentifier)
			e.Name = d.FileName
			return nil, e
		}

		for _, k := range layout.OutputReports[d.FileName] {
			p := &partition{
				FileName:          d.FileName,
				FileNameWoutSpace: d.FileNameWoutSpace,
				SheetName:         d.SheetNameWoutSpace,
				CacheSheet:        k.SheetName,
				IdentifierName:    k.IdentifierName,
				IDColumn:          idColumn,
				FileType:          d.FileType,
				IdentifierType:    d.PptIdentifierType,
				Key:               k.Key,
			}
			r.log.Info("matcher: fetching output partition", zap.String("file", d.FileName), zap.String("key", k.Key))
			if err := r.fetch(ctx, p); err != nil {
				return nil, err
			}
			p.Frame.DropBlank(idColumn)
			r.populateTBA(p, d.OutputReports)
			out = append(out, p)
		}
	}
	return out, nil
}

// populateTBA fills the output columns whose cell value reads
// "Value From Source" followed by one or more "TBA,sheet,identifier,field"
// references with the participant's TBA values.
func (r *run) populateTBA(p *partition, columns []model.OutputColumn) {
	for _, c := range columns {
		cells := strings.Split(c.CellValue, ",")
		if len(cells) < 2 || !strings.Contains(strings.ToLower(cells[0]), valueFromSource) {
			continue
		}
		type ref struct{ sheet, ident, field string }
		var refs []ref
		for i := 1; i+3 < len(cells); i += 4 {
			if !strings.Contains(strings.ToLower(cells[i]), model.DestTBA) {
				continue
			}
			refs = append(refs, ref{
				sheet: strings.TrimSpace(cells[i+1]),
				ident: strings.TrimSpace(cells[i+2]),
				field: strings.TrimSpace(cells[i+3]),
			})
		}
		if len(refs) == 0 {
			continue
		}

		col := c.DataElementWoutSpace
		if !p.Frame.Has(col) {
			p.Frame.Columns = append(p.Frame.Columns, col)
		}
		for _, row := range p.Frame.Rows {
			vals := make([]string, 0, len(refs))
			for _, f := range refs {
				vals = append(vals, stringValue(r.fieldValue(model.DestTBA, f.sheet, f.ident, f.field, row[p.IDColumn], nil)))
			}
			row[col] = joinList(vals)
		}
	}
}

// outputValue resolves the value a file/report update writes.
func (r *run) outputValue(a model.InnerAction, v *model.Verdict, outputs []*partition) any {
	switch strings.TrimSpace(a.UpdateToRadio) {
	case model.RadioText:
		return string(a.UpdateToText)
	case model.RadioDate:
		return effdate.Resolve(r.now, a.UpdateToDate, effdate.ISOFormat)
	case model.RadioField:
		return r.fieldValue(a.UpdateToFileName, a.UpdateToSheetName, a.UpdateToFileIdentifier, a.UpdateToFileField, v.ParticipantSSN, outputs)
	case model.RadioResultVar:
		if val := resultVar(v.ResultsVarable, a.UpdateToResult); val != nil {
			return val
		}
		return resultVarNotFound
	}
	return nil
}

// outputFailed reports whether an applyOutput status fails the action. A
// missing output field is logged but does not.
func outputFailed(status string) bool {
	return strings.Contains(strings.ToLower(status), "failed")
}

// applyOutput writes value into the output partition the action names and
// returns the action status.
func (r *run) applyOutput(outputs []*partition, a model.InnerAction, value any, ppt string) string {
	for _, p := range outputs {
		if p.FileName != a.FromFileName || p.IdentifierName != a.FromFileIdentifier {
			continue
		}
		if p.SheetName != a.FromFileSheetName && p.CacheSheet != a.FromFileSheetName {
			continue
		}
		if !p.Frame.Has(a.FromFileField) {
			status := a.FromFileField + " not found " + a.FromFileName
			r.log.Warn("matcher: output field missing", zap.String("status", status))
			return status
		}
		p.Frame.Set(p.IDColumn, ppt, a.FromFileField, stringValue(value))
		return model.StatusSuccess
	}
	r.log.Error("matcher: corrective action file not in output file details",
		zap.String("file", a.FromFileName),
		zap.String("identifier", a.FromFileIdentifier),
	)
	return fileNameMismatch
}

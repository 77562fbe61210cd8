package matcher

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/source-matcher/internal/tabular"
)

// partition is one cached (file, sheet, identifier) slice of an input or
// output file, narrowed to the sampled participants.
type partition struct {
	FileName          string
	FileNameWoutSpace string
	// SheetName is the declared sheet; CacheSheet the sheet of the cache key.
	SheetName      string
	CacheSheet     string
	IdentifierName string
	// IDColumn is the column holding the participant id.
	IDColumn       string
	FileType       string
	IdentifierType string
	Key            string
	Frame          *tabular.Frame

	// Present lists the participants TBA knows, in request order.
	Present []string
	TBA     map[string]*tbaRecord
}

// row returns the frame row of participant id.
func (p *partition) row(id string) (tabular.Row, bool) {
	return p.Frame.Lookup(p.IDColumn, id)
}

func (r *run) phaseFiles() []string {
	var out []string
	for _, f := range r.req.ProcessFeatureConfig.PhaseNames.Files() {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// load fetches every required partition of the phase's input files, cleans
// them and narrows them to a common participant sample.
func (r *run) load(ctx context.Context) error {
	phase := map[string]struct{}{}
	for _, f := range r.phaseFiles() {
		phase[f] = struct{}{}
	}

	for _, file := range r.req.KsdConfig.FileDetails {
		if !r.reqs.files.has(strings.ToLower(file.FileNameWoutSpace)) {
			continue
		}
		if _, ok := phase[file.FileName]; !ok {
			continue
		}

		idColumn, err := r.layoutIdentifier(file.FileName, file.PptIdentifier)
		if err != nil {
			return err
		}

		type target struct{ name, wout string }
		targets := []target{{file.FileName, file.FileNameWoutSpace}}
		if file.HasPrevReport() && r.reqs.files.has(strings.ToLower(file.PrevReportFileNameWs)) {
			targets = append(targets, target{file.PrevReportFileName, file.PrevReportFileNameWs})
		}

		for _, t := range targets {
			keys, ok := r.req.BotOutput.Keys(t.name)
			if !ok {
				e := newError(KindConfigInvalid, t.name+"'s redis keys not found.")
				e.Name = t.name
				return e
			}
			for _, k := range keys {
				if !r.reqs.identifiers.has(k.IdentifierName) || !r.reqs.sheets.has(strings.ToLower(k.SheetName)) {
					continue
				}
				r.files.add(t.name)
				r.sheets.add(k.SheetName)
				r.types.add(file.FileType)
				r.parts = append(r.parts, &partition{
					FileName:          t.name,
					FileNameWoutSpace: t.wout,
					SheetName:         file.SheetName,
					CacheSheet:        k.SheetName,
					IdentifierName:    k.IdentifierName,
					IDColumn:          idColumn,
					FileType:          file.FileType,
					IdentifierType:    file.PptIdentifierType,
					Key:               k.Key,
				})
			}
		}
	}

	if err := r.fetchAll(ctx, r.parts); err != nil {
		return err
	}
	for _, p := range r.parts {
		p.Frame.Dedup()
		p.Frame.DropBlank(p.IDColumn)
	}
	r.sample()
	return nil
}

// layoutIdentifier returns the column of file holding the participant id.
func (r *run) layoutIdentifier(file, pptIdentifier string) (string, error) {
	for _, l := range r.cfg.Layout {
		if l.FileName == file && l.MfFieldName == pptIdentifier && strings.TrimSpace(l.MfFieldWoutSpace) != "" {
			return l.MfFieldWoutSpace, nil
		}
	}
	e := newError(KindIdentifierMismatch, msgLayoutIdentifier)
	e.Name = file
	return "", e
}

// fetchAll fills the frame of every partition, fetching up to the engine's
// parallelism at a time.
func (r *run) fetchAll(ctx context.Context, parts []*partition) error {
	if r.e.parallel < 2 {
		for _, p := range parts {
			if err := r.fetch(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.parallel)
	for _, p := range parts {
		g.Go(func() error {
			return r.fetch(gctx, p)
		})
	}
	return g.Wait()
}

func (r *run) fetch(ctx context.Context, p *partition) error {
	if strings.TrimSpace(p.Key) == "" {
		e := newError(KindEmptyFile, msgEmptyKey)
		e.Name = p.FileName
		return e
	}
	blob, err := r.e.cache.Fetch(ctx, p.Key)
	if err != nil {
		return cacheErrors.wrap(err, p.FileName)
	}
	frame, err := tabular.Decode(blob)
	if err != nil {
		return &Error{
			Kind: KindCacheResponse,
			Msg:  msgCacheResponse,
			Name: p.FileName,
			Err:  eris.Wrapf(err, "matcher: decode partition %s", p.Key),
		}
	}
	p.Frame = frame
	r.log.Debug("matcher: partition loaded",
		zap.String("file", p.FileName),
		zap.String("identifier", p.IdentifierName),
		zap.Int("rows", frame.Len()),
	)
	return nil
}

// sample narrows every partition to the participants common to all of
// them, drawing a random subset when the first match field caps the number
// to verify.
func (r *run) sample() {
	if len(r.parts) == 0 {
		return
	}

	common := r.parts[0].Frame.Values(r.parts[0].IDColumn)
	for _, p := range r.parts[1:] {
		have := map[string]struct{}{}
		for _, v := range p.Frame.Values(p.IDColumn) {
			have[v] = struct{}{}
		}
		kept := common[:0:0]
		for _, v := range common {
			if _, ok := have[v]; ok {
				kept = append(kept, v)
			}
		}
		common = kept
	}

	total := len(common)
	if limit, ok := r.verifyLimit(); ok && limit < len(common) {
		rng := r.e.newRand()
		picked := make([]string, 0, limit)
		for _, i := range rng.Perm(len(common))[:limit] {
			picked = append(picked, common[i])
		}
		common = picked
	}

	keep := make(map[string]struct{}, len(common))
	for _, v := range common {
		keep[v] = struct{}{}
	}
	for _, p := range r.parts {
		p.Frame.Keep(p.IDColumn, keep)
	}
	r.counts.Participants += total
	r.counts.Verified += len(common)
	r.log.Info("matcher: participants sampled",
		zap.Int("common", total),
		zap.Int("verified", len(common)),
	)
}

// verifyLimit is the verification cap of the first match field; "NA" or
// blank means verify everyone.
func (r *run) verifyLimit() (int, bool) {
	if len(r.cfg.MatchConfig) == 0 {
		return 0, false
	}
	raw := strings.TrimSpace(string(r.cfg.MatchConfig[0].PptVerifyTBA))
	if raw == "" || strings.EqualFold(raw, "NA") {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		r.log.Warn("matcher: ignoring invalid pptVerifyTba", zap.String("value", raw))
		return 0, false
	}
	return n, true
}

// partitionByRef finds the loaded partition matching a space-free file
// name, cache sheet and identifier.
func (r *run) partitionByRef(fileWout, sheet, ident string) *partition {
	for _, p := range r.parts {
		if p.FileNameWoutSpace == fileWout && p.CacheSheet == sheet && p.IdentifierName == ident {
			return p
		}
	}
	return nil
}

package matcher

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/source-matcher/internal/model"
)

// set is an insertion-ordered string set.
type set struct {
	order []string
	index map[string]struct{}
}

func newSet() *set { return &set{index: map[string]struct{}{}} }

func (s *set) add(v string) {
	if _, ok := s.index[v]; ok {
		return
	}
	s.index[v] = struct{}{}
	s.order = append(s.order, v)
}

func (s *set) has(v string) bool {
	_, ok := s.index[v]
	return ok
}

func (s *set) len() int { return len(s.order) }

func (s *set) values() []string { return s.order }

// inquiryKey identifies an inquiry definition requested for one identifier.
type inquiryKey struct {
	def        string
	identifier string
}

// requirements is everything the match configuration needs from the
// inputs and from TBA. File and sheet names are lowercased.
type requirements struct {
	files       *set
	sheets      *set
	identifiers *set
	inquiries   map[inquiryKey]struct{}
	// fileIdentifiers lists, per lowercased file, the identifiers whose
	// partitions must be present in the bot output.
	fileIdentifiers map[string]*set

	inquiryFields []model.InquiryField
	noticeFields  []model.NoticeField

	// problems are the accumulated configuration errors.
	problems *set
}

func newRequirements() *requirements {
	return &requirements{
		files:           newSet(),
		sheets:          newSet(),
		identifiers:     newSet(),
		inquiries:       map[inquiryKey]struct{}{},
		fileIdentifiers: map[string]*set{},
		problems:        newSet(),
	}
}

func (q *requirements) addPartition(file, sheet, identifier string) {
	q.identifiers.add(identifier)
	q.sheets.add(strings.ToLower(sheet))
	q.files.add(strings.ToLower(file))
}

func (q *requirements) addFileIdentifier(file, identifier string) {
	key := strings.ToLower(file)
	s, ok := q.fileIdentifiers[key]
	if !ok {
		s = newSet()
		q.fileIdentifiers[key] = s
	}
	s.add(identifier)
}

// ruleRef is a field a business rule reads. Field is the configured name
// and Wout its space-free form; prefix locates the partition it lives in.
type ruleRef struct {
	Field  string
	Wout   string
	Prefix refPrefix
}

type refPrefix struct {
	Field      string
	App        string
	Sheet      string
	Identifier string
}

// Key is the name the rule engine knows the field by: the non-blank parts
// of the prefix joined by "_" ahead of the space-free field name.
func (r ruleRef) Key() string {
	var b strings.Builder
	for _, p := range []string{r.Prefix.App, r.Prefix.Sheet, r.Prefix.Identifier} {
		if p != "" {
			b.WriteString(p)
			b.WriteString("_")
		}
	}
	return b.String() + r.Wout
}

// ruleRefs returns the fields the named business rule reads from file and
// from dest, deduplicated in the order the rule declares them.
func ruleRefs(rules []model.RuleConfig, ruleName, file, dest string) (fileRefs, destRefs []ruleRef) {
	if ruleName == "" {
		return nil, nil
	}
	seenFile := map[ruleRef]struct{}{}
	seenDest := map[ruleRef]struct{}{}
	route := func(app string, ref ruleRef) {
		if strings.EqualFold(app, dest) {
			if _, ok := seenDest[ref]; !ok {
				seenDest[ref] = struct{}{}
				destRefs = append(destRefs, ref)
			}
		}
		if strings.EqualFold(app, file) {
			if _, ok := seenFile[ref]; !ok {
				seenFile[ref] = struct{}{}
				fileRefs = append(fileRefs, ref)
			}
		}
	}

	for _, rc := range rules {
		if len(rc.Definitions) == 0 {
			continue
		}
		def := rc.Definitions[0]
		if def.RuleName != ruleName || !def.Business() {
			continue
		}
		for i, group := range def.Conditions {
			if i >= len(def.ConditionsWout) {
				break
			}
			wout := def.ConditionsWout[i]
			for j, c := range group {
				if j >= len(wout) {
					break
				}
				w := wout[j]
				if strings.EqualFold(c.ResultVariableRadio, "application") {
					route(c.AppName, ruleRef{
						Field:  c.Field,
						Wout:   w.Field,
						Prefix: refPrefix{Field: c.Field, App: w.AppName, Sheet: w.SheetName, Identifier: w.RecordIdentifier},
					})
				}
				if strings.EqualFold(c.Radio, "field") {
					route(c.ValueAppName, ruleRef{
						Field:  string(c.Value),
						Wout:   string(w.Value),
						Prefix: refPrefix{Field: string(c.Value), App: w.ValueAppName, Sheet: w.ValueSheetName, Identifier: w.ValueRecordIdentifier},
					})
				}
			}
		}
		for i, v := range def.Variables {
			if i >= len(def.VariablesWout) {
				break
			}
			w := def.VariablesWout[i]
			if strings.EqualFold(v.VarRadio, "varApplicationValue") {
				route(v.VarApplication, ruleRef{
					Field:  v.VarField,
					Wout:   w.VarField,
					Prefix: refPrefix{Field: v.VarField, App: w.VarApplication, Sheet: w.VarSheetName, Identifier: w.VarRecordIdentifier},
				})
			}
		}
	}
	return fileRefs, destRefs
}

func hasRef(refs []ruleRef, field string) bool {
	for _, r := range refs {
		if r.Field == field {
			return true
		}
	}
	return false
}

// collectRequirements walks the match configuration and records which
// partitions and inquiry definitions the run needs. Unresolved inquiry
// definitions are collected in problems.
func collectRequirements(cfg *model.ConfigTables) *requirements {
	q := newRequirements()
	for _, m := range cfg.MatchConfig {
		ident := string(m.Identifier)
		q.addPartition(m.FileNameWoutSpace, string(m.SheetNameWoutSpace), ident)
		q.addFileIdentifier(m.FileNameWoutSpace, ident)

		dest := model.DestTBA
		switch m.Type() {
		case model.MatchReport:
			dest = string(m.FileNameDest)
			q.addPartition(string(m.FileNameDestWoutSpace), string(m.SheetNameDestWoutSpace), string(m.ReportIdentifierDest))
			q.addFileIdentifier(string(m.FileNameDestWoutSpace), string(m.ReportIdentifierDest))
		default:
			q.lookupInquiry(cfg, string(m.InquiryDefName), ident)
			for _, f := range cfg.InquiryConfig {
				if f.InquiryDefName == string(m.InquiryDefName) {
					q.windows(f)
				}
			}
		}

		fileRefs, destRefs := ruleRefs(cfg.RulesConfig, m.Rule(), m.FileName, dest)
		for _, r := range destRefs {
			q.lookupInquiry(cfg, r.Prefix.Field, r.Prefix.Identifier)
			q.addPartition(r.Prefix.App, r.Prefix.Sheet, r.Prefix.Identifier)
		}
		for _, r := range fileRefs {
			q.addPartition(r.Prefix.App, r.Prefix.Sheet, r.Prefix.Identifier)
			q.addFileIdentifier(r.Prefix.App, r.Prefix.Identifier)
		}

		for _, node := range m.Actions {
			for _, a := range node.Actions {
				q.actionRequirements(cfg, node.CorrectiveAction, a, ident)
			}
		}
	}

	for _, f := range cfg.InquiryConfig {
		if _, ok := q.inquiries[inquiryKey{f.InquiryDefName, string(f.Identifier)}]; ok {
			q.inquiryFields = append(q.inquiryFields, f)
		}
	}
	for _, f := range cfg.NoticeConfig {
		if _, ok := q.inquiries[inquiryKey{f.InquiryDefName, string(f.Identifier)}]; ok {
			q.noticeFields = append(q.noticeFields, f)
		}
	}
	return q
}

func (q *requirements) actionRequirements(cfg *model.ConfigTables, action model.CorrectiveAction, a model.InnerAction, ident string) {
	if a.ValueFromField() {
		q.fieldSource(a.UpdateToFileName, a.UpdateToSheetName, a.UpdateToFileIdentifier)
	}
	if a.DateFromField() {
		q.fieldSource(a.EffectiveFromFileName, a.EffectiveFromSheetName, a.EffectiveFromFileIdentifier)
	}

	if action.Kind() == model.KindNotice {
		defs := []string(a.TBANoticeCancel)
		if action == model.NoticeUpdate {
			defs = []string{a.NoticeUpdate}
		}
		for _, def := range defs {
			q.registerNotice(cfg, def, ident)
		}
	}
}

// fieldSource records the file partition an action reads a value from.
// TBA sources are served by the inquiry response.
func (q *requirements) fieldSource(file, sheet, ident string) {
	if strings.EqualFold(file, model.DestTBA) {
		return
	}
	q.addPartition(file, sheet, ident)
	q.addFileIdentifier(file, ident)
}

// registerNotice requests a notice definition an action dispatches
// against. Unknown notices surface when the action is dispatched.
func (q *requirements) registerNotice(cfg *model.ConfigTables, def, ident string) {
	for _, f := range cfg.NoticeConfig {
		if f.InquiryDefName == def && string(f.Identifier) == ident {
			q.inquiries[inquiryKey{def, ident}] = struct{}{}
			return
		}
	}
}

// lookupInquiry resolves def for ident. An exact match in the inquiry or
// notice config wins; event-history and pending-event definitions have no
// identifier and match on the name alone. Anything else is a problem.
func (q *requirements) lookupInquiry(cfg *model.ConfigTables, def, ident string) {
	exact, named := false, false
	for _, f := range cfg.InquiryConfig {
		if f.InquiryDefName != def {
			continue
		}
		named = true
		if string(f.Identifier) == ident && !exact {
			exact = true
			q.windows(f)
		}
	}
	for _, f := range cfg.NoticeConfig {
		if f.InquiryDefName != def {
			continue
		}
		named = true
		if string(f.Identifier) == ident {
			exact = true
		}
	}
	if exact {
		q.inquiries[inquiryKey{def, ident}] = struct{}{}
		return
	}
	for _, f := range cfg.EventHistConfig {
		if f.EventHistDefName == def {
			return
		}
	}
	for _, f := range cfg.PendingEventConfig {
		if f.PendgEvntDefName == def {
			return
		}
	}
	if named {
		q.problems.add(fmt.Sprintf("%s not configured with identifier '%s' in TBA", def, ident))
		return
	}
	q.problems.add(fmt.Sprintf("%s is not configured in TBA", def))
}

// windows records the partitions an application-type inquiry field reads
// its effective dates from.
func (q *requirements) windows(f model.InquiryField) {
	if !f.ApplicationWindow() {
		return
	}
	for _, w := range []model.EffDateWindow{f.EffFromDate, f.EffToDate} {
		if w.App == "" || !w.FromApplication() {
			continue
		}
		q.addPartition(w.App, w.Sheet, w.Identifier)
		q.addFileIdentifier(w.App, w.Identifier)
	}
}

// checkMatchFiles logs match fields whose file is not a declared input.
func checkMatchFiles(log *zap.Logger, req *model.Request) {
	declared := map[string]struct{}{}
	for _, f := range req.KsdConfig.FileDetails {
		declared[strings.ToLower(f.FileNameWoutSpace)] = struct{}{}
	}
	for _, m := range req.ConfigTables.MatchConfig {
		if _, ok := declared[strings.ToLower(m.FileNameWoutSpace)]; !ok {
			log.Warn(msgFileNameMismatch, zap.String("file", m.FileName), zap.String("match_id", m.Key()))
		}
	}
}

// checkCacheKeys verifies every required file and identifier has a cached
// partition listed in the bot output. Missing partitions are added to
// problems; a file with no manifest at all fails immediately.
func checkCacheKeys(log *zap.Logger, req *model.Request, q *requirements) error {
	files := make([]string, 0, len(q.fileIdentifiers))
	for f := range q.fileIdentifiers {
		files = append(files, f)
	}
	sort.Strings(files)

	for _, file := range files {
		name, ok := declaredName(req.KsdConfig.FileDetails, file)
		if !ok {
			log.Warn("matcher: file configuration not found", zap.String("file", file))
			continue
		}
		keys, ok := req.BotOutput.Keys(name)
		if !ok {
			return newError(KindConfigInvalid, fmt.Sprintf("%s's redis keys not found.", name))
		}
		have := map[string]struct{}{}
		for _, k := range keys {
			have[k.IdentifierName] = struct{}{}
		}
		for _, ident := range q.fileIdentifiers[file].values() {
			if _, ok := have[ident]; !ok {
				q.problems.add(fmt.Sprintf("Redis key not found for %s with identifier('%s').", name, ident))
			}
		}
	}
	return nil
}

// declaredName resolves a lowercased space-free file name to the declared
// file name, or the name of the previous report that file declares.
func declaredName(files []model.KsdFile, lower string) (string, bool) {
	name, found := "", false
	for _, f := range files {
		switch {
		case strings.ToLower(f.FileNameWoutSpace) == lower:
			name, found = f.FileName, true
		case f.HasPrevReport() && strings.ToLower(f.PrevReportFileNameWs) == lower:
			name, found = f.PrevReportFileName, true
		}
	}
	return name, found
}

package matcher

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/source-matcher/internal/model"
	"github.com/sells-group/source-matcher/pkg/ruleengine"
)

// verdicts expands the rule outcomes into one verdict per matched action
// node and inner action. Failed outcomes of every participant come first.
func (r *run) verdicts(resp *ruleengine.Response, matches map[string]model.MatchField, files string) ([]*model.Verdict, error) {
	var failed, succeeded []*model.Verdict
	for _, p := range resp.Participants {
		id := p.ParticipantID.String()
		for _, rule := range p.FailedRules {
			vs, err := r.ruleVerdicts(rule, id, matches, model.StatusFailed, files)
			if err != nil {
				return nil, err
			}
			failed = append(failed, vs...)
		}
		for _, rule := range p.SuccessRules {
			vs, err := r.ruleVerdicts(rule, id, matches, model.StatusSuccess, files)
			if err != nil {
				return nil, err
			}
			succeeded = append(succeeded, vs...)
		}
	}
	return append(failed, succeeded...), nil
}

func (r *run) ruleVerdicts(rule ruleengine.Rule, id string, matches map[string]model.MatchField, status, files string) ([]*model.Verdict, error) {
	m, ok := matches[rule.Uniq.String()]
	if !ok {
		return nil, &Error{
			Kind: KindRuleResponse,
			Msg:  msgRuleResponse,
			Name: files,
			Err:  eris.Errorf("matcher: rule result for unknown match %q", rule.Uniq.String()),
		}
	}

	results := rule.ResultsVarable
	if results == nil {
		results = []map[string]any{}
	}
	base := model.Verdict{
		ID:                rule.ID.String(),
		UID:               r.req.UID(),
		ParticipantSSN:    id,
		FileName:          m.FileName,
		SheetName:         string(m.SheetName),
		DataMismatch:      m.MfFieldName,
		TBAFieldName:      m.DestLabel(),
		MainframeValue:    rule.FileFieldValue,
		TBAValue:          rule.TBAFieldValue,
		RuleName:          rule.RuleName,
		RuleFailedOnField: []string{m.MfFieldName},
		Reason:            rule.Reason,
		ResultsVarable:    results,
		MatchType:         m.MatchType,
	}

	nodes := conditionNodes(m.Actions, rule.ConditionName, status)
	if len(nodes) == 0 {
		out := make([]*model.Verdict, 0, len(m.Actions))
		for _, n := range m.Actions {
			v := nodeVerdict(base, n, status)
			out = append(out, &v)
		}
		return out, nil
	}

	var out []*model.Verdict
	for _, n := range nodes {
		v := nodeVerdict(base, n, status)
		if len(n.Actions) == 0 {
			out = append(out, &v)
			continue
		}
		for _, a := range n.Actions {
			av := v
			av.EventName = a.EventName
			av.EffectiveDate = a.EffectiveFromDate
			switch n.CorrectiveAction.Kind() {
			case model.KindRerun, model.KindRerunDelete:
				av.RerunEvent = a.ReRunEvent
			case model.KindPendingEvent:
				av.PendingEventName = a.PendingEventName
			}
			switch n.CorrectiveAction {
			case model.NoticeCancel:
				av.NoticeCancel = []string(a.TBANoticeCancel)
			case model.NoticeUpdate:
				av.NoticeUpdate = a.NoticeUpdate
			}
			out = append(out, &av)
		}
	}
	return out, nil
}

// conditionNodes returns the action nodes of the condition in the polarity
// of the outcome, falling back to the opposite polarity.
func conditionNodes(actions model.ActionList, condition, status string) []model.ActionNode {
	first, second := model.Met, model.NotMet
	if status == model.StatusFailed {
		first, second = model.NotMet, model.Met
	}
	if nodes := actions.ForCondition(condition, first); len(nodes) > 0 {
		return nodes
	}
	return actions.ForCondition(condition, second)
}

func nodeVerdict(base model.Verdict, n model.ActionNode, status string) model.Verdict {
	v := base
	v.CorrectiveAction = []model.CorrectiveAction{n.CorrectiveAction}
	v.ConditionName = []string{n.Condition}
	v.IfCondition = n.Satisfied
	v.ActionStatus = actionStatus(n.Satisfied, status)
	v.UpdateAction = n.Actions
	return v
}

// actionStatus marks outcomes whose condition state already explains the
// result as needing no action.
func actionStatus(satisfied, status string) string {
	switch {
	case satisfied == model.Met && status == model.StatusFailed,
		satisfied == model.NotMet && status == model.StatusSuccess,
		strings.TrimSpace(satisfied) == "" && status == model.StatusSuccess:
		return model.NoActionTaken
	}
	return ""
}

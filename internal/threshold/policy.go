// Package threshold decides whether a request's value requires executive
// approval.
package threshold

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pesio-ai/be-proc-requests/internal/domain"
)

// Evaluation is the outcome of checking a request against threshold rules.
type Evaluation struct {
	Required bool
	// Governing is the rule with the lowest cutoff the total exceeds.
	Governing *domain.ThresholdRule
	// Missing lists "type/currency" pairs with no active rule. Such types
	// add no escalation pressure.
	Missing []string
}

// MissingError reports the pairs in Missing as a ConfigurationMissing error,
// or nil when every type was covered.
func (e Evaluation) MissingError() error {
	if len(e.Missing) == 0 {
		return nil
	}
	return domain.NewError(domain.KindConfigurationMissing,
		"no threshold rule for %s", strings.Join(e.Missing, ", "))
}

// Evaluate matches every procurement type on req against rules by
// (type, currency), case-insensitively. Any type whose cutoff the total
// strictly exceeds makes executive approval required.
func Evaluate(req *domain.Request, rules []domain.ThresholdRule) Evaluation {
	index := make(map[string]domain.ThresholdRule, len(rules))
	for _, r := range rules {
		if !r.IsActive {
			continue
		}
		k := key(r.ProcurementType, r.Currency)
		// With duplicate active rules the stricter cutoff wins.
		if prev, ok := index[k]; ok && prev.Cutoff <= r.Cutoff {
			continue
		}
		index[k] = r
	}

	var eval Evaluation
	seen := make(map[string]bool, len(req.ProcurementTypes))
	for _, t := range req.ProcurementTypes {
		k := key(t, req.Currency)
		if seen[k] {
			continue
		}
		seen[k] = true

		rule, ok := index[k]
		if !ok {
			eval.Missing = append(eval.Missing, k)
			continue
		}
		if req.TotalEstimated <= rule.Cutoff {
			continue
		}
		if eval.Governing == nil || rule.Cutoff < eval.Governing.Cutoff {
			r := rule
			eval.Governing = &r
		}
	}

	eval.Required = eval.Governing != nil
	sort.Strings(eval.Missing)
	return eval
}

// RequiresExecutiveApproval is Evaluate reduced to its decision.
func RequiresExecutiveApproval(req *domain.Request, rules []domain.ThresholdRule) bool {
	return Evaluate(req, rules).Required
}

func key(procurementType, currency string) string {
	return fmt.Sprintf("%s/%s",
		strings.ToLower(strings.TrimSpace(procurementType)),
		strings.ToUpper(strings.TrimSpace(currency)))
}

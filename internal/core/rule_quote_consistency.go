package core

import (
	"context"
	"fmt"

	"crmcore/pkg/domain"
)

// quoteStatuses are the statuses in which a lead may carry a quote amount:
// the amount is attached on entering Quotation and survives through
// Follow-up, Converted, and Failed.
var quoteStatuses = toSet(StatusQuotation, StatusFollowUp, StatusConverted, StatusFailed)

// NewQuoteConsistencyRule blocks commits that would leave a lead with a
// quote amount it cannot have: a non-positive value, or a value outside the
// quote-carrying statuses.
func NewQuoteConsistencyRule() Rule {
	return quoteConsistencyRule{}
}

type quoteConsistencyRule struct{}

func (quoteConsistencyRule) Name() string { return "quote_consistency" }

func (quoteConsistencyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityLead {
			continue
		}
		after, ok := leadPayload(change.After)
		if !ok || after.QuoteAmount == nil {
			continue
		}
		if *after.QuoteAmount <= 0 {
			res.Violations = append(res.Violations, Violation{
				Rule:     "quote_consistency",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("lead %d has non-positive quote amount %.2f", after.ID, *after.QuoteAmount),
				Entity:   EntityLead,
				EntityID: after.ID,
			})
			continue
		}
		if _, allowed := quoteStatuses[after.Status]; !allowed {
			res.Violations = append(res.Violations, Violation{
				Rule:     "quote_consistency",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("lead %d carries a quote amount in status %s", after.ID, after.Status),
				Entity:   EntityLead,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

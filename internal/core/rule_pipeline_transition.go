package core

import (
	"context"
	"fmt"

	"crmcore/pkg/domain"
)

// pipelineTransitions is the set of status moves the pipeline supports:
// the forward chain New through Converted, failure from Opportunity,
// Enquiry, and Follow-up, failure recovery (retry as New or move back to
// Follow-up), and the backward Follow-up to Quotation move.
var pipelineTransitions = map[LeadStatus]map[LeadStatus]struct{}{
	StatusNew:         toSet(StatusOpportunity),
	StatusOpportunity: toSet(StatusEnquiry, StatusFailed),
	StatusEnquiry:     toSet(StatusQuotation, StatusFollowUp, StatusFailed),
	StatusQuotation:   toSet(StatusFollowUp, StatusConverted),
	StatusFollowUp:    toSet(StatusConverted, StatusQuotation, StatusFailed),
	StatusFailed:      toSet(StatusNew, StatusFollowUp),
	StatusConverted:   {},
}

// NewPipelineTransitionRule flags lead status moves outside the pipeline
// transition set at the given severity.
func NewPipelineTransitionRule(severity Severity) Rule {
	return pipelineTransitionRule{severity: severity}
}

type pipelineTransitionRule struct {
	severity Severity
}

func (pipelineTransitionRule) Name() string { return "pipeline_transition" }

func (r pipelineTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []Change) (Result, error) {
	res := Result{}
	for _, change := range changes {
		if change.Entity != EntityLead {
			continue
		}
		after, ok := leadPayload(change.After)
		if !ok {
			continue
		}
		if !domain.ValidLeadStatus(after.Status) {
			res.Violations = append(res.Violations, Violation{
				Rule:     "pipeline_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("lead %d is set to unknown status %q", after.ID, after.Status),
				Entity:   EntityLead,
				EntityID: after.ID,
			})
			continue
		}
		before, ok := leadPayload(change.Before)
		if !ok || before.Status == after.Status {
			continue
		}
		if _, allowed := pipelineTransitions[before.Status][after.Status]; !allowed {
			res.Violations = append(res.Violations, Violation{
				Rule:     "pipeline_transition",
				Severity: r.severity,
				Message:  fmt.Sprintf("lead %d moved from %s to %s outside the pipeline", after.ID, before.Status, after.Status),
				Entity:   EntityLead,
				EntityID: after.ID,
			})
		}
	}
	return res, nil
}

func toSet(statuses ...LeadStatus) map[LeadStatus]struct{} {
	set := make(map[LeadStatus]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return set
}

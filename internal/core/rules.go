package core

import "crmcore/pkg/domain"

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds the built-in policy set. The pipeline
// transition rule runs at warn severity: off-pipeline moves commit but are
// reported as violations, matching the permissive behavior of the original
// console while making the gap visible to callers.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewQuoteConsistencyRule())
	engine.Register(NewPipelineTransitionRule(SeverityWarn))
	return engine
}

// NewStrictRulesEngine enforces the pipeline state machine: transitions
// outside the allowed set block the transaction.
func NewStrictRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(NewQuoteConsistencyRule())
	engine.Register(NewPipelineTransitionRule(SeverityBlock))
	return engine
}

func leadPayload(payload any) (Lead, bool) {
	lead, ok := payload.(Lead)
	return lead, ok
}

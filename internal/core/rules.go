package core

import "vaxtrax/pkg/domain"

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds an engine with the built-in batch policy set.
// Rules run in registration order; blocking violations abort the commit.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(StageProgressionRule())
	engine.Register(StatusConsistencyRule())
	engine.Register(TemperatureLimitsRule())
	engine.Register(HistoryAppendRule())
	engine.Register(TemperatureExcursionRule())
	return engine
}

func blockf(rule, batchID, msg string) domain.Violation {
	return domain.Violation{Rule: rule, Severity: domain.SeverityBlock, Message: msg, BatchID: batchID}
}

// readingAction reports whether the action takes a fresh temperature reading
// and must therefore reclassify the batch.
func readingAction(a Action) bool {
	switch a {
	case domain.ActionRegister, domain.ActionScan, domain.ActionRefresh:
		return true
	default:
		return false
	}
}

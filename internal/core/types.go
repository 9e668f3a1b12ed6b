package core

import "vaxtrax/pkg/domain"

type (
	Batch              = domain.Batch
	HistoryEntry       = domain.HistoryEntry
	TempLimits         = domain.TempLimits
	Stage              = domain.Stage
	Status             = domain.Status
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	RulesEngine        = domain.RulesEngine
	Rule               = domain.Rule
	AuditSink          = domain.AuditSink
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

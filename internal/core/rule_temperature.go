package core

import (
	"context"
	"fmt"

	"vaxtrax/pkg/domain"
)

const (
	temperatureLimitsRuleName    = "temperature_limits"
	temperatureExcursionRuleName = "temperature_excursion"
)

// TemperatureLimitsRule blocks batches with inverted or non-finite bounds
// or a non-finite reading.
func TemperatureLimitsRule() domain.Rule {
	return temperatureLimitsRule{}
}

type temperatureLimitsRule struct{}

func (temperatureLimitsRule) Name() string { return temperatureLimitsRuleName }

func (temperatureLimitsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after := change.After
		if err := after.TempLimits.Validate(); err != nil {
			res.Violations = append(res.Violations, blockf(temperatureLimitsRuleName, after.ID,
				fmt.Sprintf("batch %s: %v", after.ID, err)))
		}
		if err := domain.ValidateTemperature(after.Temperature); err != nil {
			res.Violations = append(res.Violations, blockf(temperatureLimitsRuleName, after.ID,
				fmt.Sprintf("batch %s: %v", after.ID, err)))
		}
	}
	return res, nil
}

// TemperatureExcursionRule warns when a fresh reading leaves the safe band.
// It never blocks; the reading is still recorded.
func TemperatureExcursionRule() domain.Rule {
	return temperatureExcursionRule{}
}

type temperatureExcursionRule struct{}

func (temperatureExcursionRule) Name() string { return temperatureExcursionRuleName }

func (temperatureExcursionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after := change.After
		if !readingAction(change.Action) || after.Status == domain.StatusSafe {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     temperatureExcursionRuleName,
			Severity: domain.SeverityWarn,
			Message: fmt.Sprintf("batch %s reading %.1f°C is %s (limits %.1f..%.1f)",
				after.ID, after.Temperature, after.Status, after.TempLimits.Min, after.TempLimits.Max),
			BatchID: after.ID,
		})
	}
	return res, nil
}

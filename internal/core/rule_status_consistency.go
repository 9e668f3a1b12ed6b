package core

import (
	"context"
	"fmt"

	"vaxtrax/pkg/domain"
)

const statusConsistencyRuleName = "status_consistency"

// StatusConsistencyRule enforces that status is derived from the reading.
// Reading actions must store the classifier's output; proceed and halt must
// leave the reading and status untouched. set_status is the only path that
// may store a status the classifier would not produce.
func StatusConsistencyRule() domain.Rule {
	return statusConsistencyRule{}
}

type statusConsistencyRule struct{}

func (statusConsistencyRule) Name() string { return statusConsistencyRuleName }

func (statusConsistencyRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after := change.After
		if !after.Status.Valid() {
			res.Violations = append(res.Violations, blockf(statusConsistencyRuleName, after.ID,
				fmt.Sprintf("batch %s has invalid status %q", after.ID, after.Status)))
			continue
		}
		switch {
		case readingAction(change.Action):
			want := domain.ClassifyWithin(after.Temperature, after.TempLimits)
			if after.Status != want {
				res.Violations = append(res.Violations, blockf(statusConsistencyRuleName, after.ID,
					fmt.Sprintf("batch %s at %.1f°C must be %s, not %s", after.ID, after.Temperature, want, after.Status)))
			}
		case change.Action.Override():
		case change.Before != nil:
			before := change.Before
			if after.Status != before.Status || after.Temperature != before.Temperature {
				res.Violations = append(res.Violations, blockf(statusConsistencyRuleName, after.ID,
					fmt.Sprintf("%s may not change the reading of batch %s", change.Action, after.ID)))
			}
		}
	}
	return res, nil
}

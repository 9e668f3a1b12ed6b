package core

import (
	"context"
	"fmt"

	"vaxtrax/pkg/domain"
)

const stageProgressionRuleName = "stage_progression"

// StageProgressionRule keeps every batch on the custody sequence and moving
// forward. Only proceed may change the stage in normal operation, and only
// by the single step AdvanceStage yields. Overrides may set any valid stage.
func StageProgressionRule() domain.Rule {
	return stageProgressionRule{}
}

type stageProgressionRule struct{}

func (stageProgressionRule) Name() string { return stageProgressionRuleName }

func (stageProgressionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after := change.After
		if !after.Stage.Valid() {
			res.Violations = append(res.Violations, blockf(stageProgressionRuleName, after.ID,
				fmt.Sprintf("batch %s has invalid stage %q", after.ID, after.Stage)))
			continue
		}
		if change.Before == nil || change.Action.Override() {
			continue
		}
		from := change.Before.Stage
		if change.Action != domain.ActionProceed {
			if after.Stage != from {
				res.Violations = append(res.Violations, blockf(stageProgressionRuleName, after.ID,
					fmt.Sprintf("%s may not move batch %s from %s to %s", change.Action, after.ID, from, after.Stage)))
			}
			continue
		}
		want, err := domain.AdvanceStage(from)
		if err != nil {
			res.Violations = append(res.Violations, blockf(stageProgressionRuleName, after.ID,
				fmt.Sprintf("batch %s was at unknown stage %q", after.ID, from)))
			continue
		}
		if after.Stage != want {
			res.Violations = append(res.Violations, blockf(stageProgressionRuleName, after.ID,
				fmt.Sprintf("batch %s must proceed from %s to %s, not %s", after.ID, from, want, after.Stage)))
		}
	}
	return res, nil
}

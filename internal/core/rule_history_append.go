package core

import (
	"context"
	"fmt"

	"vaxtrax/pkg/domain"
)

const historyAppendRuleName = "history_append"

// HistoryAppendRule keeps scan history append-only: an update adds exactly
// one entry and leaves earlier entries as they were.
func HistoryAppendRule() domain.Rule {
	return historyAppendRule{}
}

type historyAppendRule struct{}

func (historyAppendRule) Name() string { return historyAppendRuleName }

func (historyAppendRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after := change.After
		if change.Before == nil {
			if change.Action == domain.ActionRegister && len(after.History) != 1 {
				res.Violations = append(res.Violations, blockf(historyAppendRuleName, after.ID,
					fmt.Sprintf("registered batch %s must start with one history entry, has %d", after.ID, len(after.History))))
			}
			continue
		}
		before := change.Before.History
		if len(after.History) != len(before)+1 {
			res.Violations = append(res.Violations, blockf(historyAppendRuleName, after.ID,
				fmt.Sprintf("%s on batch %s must append one history entry, history went from %d to %d",
					change.Action, after.ID, len(before), len(after.History))))
			continue
		}
		for i := range before {
			if !sameEntry(before[i], after.History[i]) {
				res.Violations = append(res.Violations, blockf(historyAppendRuleName, after.ID,
					fmt.Sprintf("history entry %d of batch %s was rewritten", i, after.ID)))
				break
			}
		}
	}
	return res, nil
}

func sameEntry(a, b domain.HistoryEntry) bool {
	return a.BatchNo == b.BatchNo &&
		a.Temperature == b.Temperature &&
		a.Status == b.Status &&
		a.Location == b.Location &&
		a.Stage == b.Stage &&
		a.Timestamp.Equal(b.Timestamp) &&
		a.Action == b.Action &&
		a.ScannedBy == b.ScannedBy &&
		a.Device == b.Device
}

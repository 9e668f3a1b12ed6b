package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"vaxtrax/internal/infra/persistence/memory"
	"vaxtrax/pkg/domain"
)

func batchAt(stage domain.Stage, temperature float64) domain.Batch {
	b := domain.Batch{
		ID:          "VAX-1",
		Temperature: temperature,
		Stage:       stage,
		TempLimits:  domain.DefaultTempLimits,
		Status:      domain.ClassifyWithin(temperature, domain.DefaultTempLimits),
	}
	b.History = []domain.HistoryEntry{b.Entry(domain.ActionLabelRegister, fixedNow)}
	return b
}

func appended(b domain.Batch, label string) domain.Batch {
	out := domain.CloneBatch(b)
	out.History = append(out.History, out.Entry(label, fixedNow.Add(time.Minute)))
	return out
}

func blocking(res domain.Result, rule string) bool {
	for _, v := range res.Violations {
		if v.Rule == rule && v.Severity == domain.SeverityBlock {
			return true
		}
	}
	return false
}

func TestDefaultRulesEngineOrder(t *testing.T) {
	got := NewDefaultRulesEngine().Rules()
	want := []string{"stage_progression", "status_consistency", "temperature_limits", "history_append", "temperature_excursion"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestStageProgressionRule(t *testing.T) {
	rule := StageProgressionRule()
	before := batchAt(domain.StageHub, -16)

	skip := appended(before, "proceed")
	skip.Stage = domain.StageHospital
	regress := appended(before, domain.ActionLabelScan)
	regress.Stage = domain.StageFactory
	ok := appended(before, "proceed")
	ok.Stage = domain.StageStorage
	terminal := batchAt(domain.StagePatient, -16)
	invalid := appended(before, domain.ActionLabelSetStage)
	invalid.Stage = "Warehouse"

	cases := []struct {
		name    string
		change  domain.Change
		blocked bool
	}{
		{"single step proceed", domain.Change{Action: domain.ActionProceed, Before: &before, After: ok}, false},
		{"skipped stage", domain.Change{Action: domain.ActionProceed, Before: &before, After: skip}, true},
		{"scan regresses stage", domain.Change{Action: domain.ActionScan, Before: &before, After: regress}, true},
		{"override regresses stage", domain.Change{Action: domain.ActionSetStage, Before: &before, After: regress}, false},
		{"terminal proceed", domain.Change{Action: domain.ActionProceed, Before: &terminal, After: appended(terminal, "proceed")}, false},
		{"invalid stage even on override", domain.Change{Action: domain.ActionSetStage, Before: &before, After: invalid}, true},
		{"import", domain.Change{Action: domain.ActionImport, After: before}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(context.Background(), nil, []domain.Change{tc.change})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := blocking(res, stageProgressionRuleName); got != tc.blocked {
				t.Fatalf("expected blocked=%v, got %+v", tc.blocked, res.Violations)
			}
		})
	}
}

func TestStatusConsistencyRule(t *testing.T) {
	rule := StatusConsistencyRule()
	before := batchAt(domain.StageHub, -16)

	stale := appended(before, domain.ActionLabelScan)
	stale.Temperature = -10
	fresh := domain.CloneBatch(stale)
	fresh.Status = domain.StatusUnsafe
	haltChanged := appended(before, domain.ActionLabelHalt)
	haltChanged.Status = domain.StatusAtRisk
	override := appended(before, domain.ActionLabelSetStatus)
	override.Status = domain.StatusUnsafe
	bogus := appended(before, domain.ActionLabelSetStatus)
	bogus.Status = "Frozen"

	cases := []struct {
		name    string
		change  domain.Change
		blocked bool
	}{
		{"scan with stale status", domain.Change{Action: domain.ActionScan, Before: &before, After: stale}, true},
		{"scan reclassified", domain.Change{Action: domain.ActionScan, Before: &before, After: fresh}, false},
		{"halt changes status", domain.Change{Action: domain.ActionHalt, Before: &before, After: haltChanged}, true},
		{"set status override", domain.Change{Action: domain.ActionSetStatus, Before: &before, After: override}, false},
		{"set status outside enumeration", domain.Change{Action: domain.ActionSetStatus, Before: &before, After: bogus}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(context.Background(), nil, []domain.Change{tc.change})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := blocking(res, statusConsistencyRuleName); got != tc.blocked {
				t.Fatalf("expected blocked=%v, got %+v", tc.blocked, res.Violations)
			}
		})
	}
}

func TestTemperatureRules(t *testing.T) {
	inverted := batchAt(domain.StageFactory, -16)
	inverted.TempLimits = domain.TempLimits{Min: 0, Max: -5}
	res, _ := TemperatureLimitsRule().Evaluate(context.Background(), nil, []domain.Change{{Action: domain.ActionImport, After: inverted}})
	if !blocking(res, temperatureLimitsRuleName) {
		t.Fatalf("expected inverted limits to block")
	}

	unsafe := batchAt(domain.StageFactory, -10)
	res, _ = TemperatureExcursionRule().Evaluate(context.Background(), nil, []domain.Change{
		{Action: domain.ActionRegister, After: unsafe},
		{Action: domain.ActionHalt, Before: &unsafe, After: appended(unsafe, domain.ActionLabelHalt)},
	})
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected one warning for the reading only, got %+v", res.Violations)
	}
	if res.HasBlocking() {
		t.Fatalf("excursions must not block")
	}
}

func TestHistoryAppendRule(t *testing.T) {
	rule := HistoryAppendRule()
	before := batchAt(domain.StageFactory, -16)

	rewritten := appended(before, domain.ActionLabelHalt)
	rewritten.History[0].Action = "tampered"
	missing := domain.CloneBatch(before)
	double := appended(appended(before, domain.ActionLabelHalt), domain.ActionLabelHalt)
	emptyRegister := before
	emptyRegister.History = nil

	cases := []struct {
		name    string
		change  domain.Change
		blocked bool
	}{
		{"append one", domain.Change{Action: domain.ActionHalt, Before: &before, After: appended(before, domain.ActionLabelHalt)}, false},
		{"rewrite earlier entry", domain.Change{Action: domain.ActionHalt, Before: &before, After: rewritten}, true},
		{"no entry", domain.Change{Action: domain.ActionHalt, Before: &before, After: missing}, true},
		{"two entries", domain.Change{Action: domain.ActionHalt, Before: &before, After: double}, true},
		{"register without entry", domain.Change{Action: domain.ActionRegister, After: emptyRegister}, true},
		{"import without entry", domain.Change{Action: domain.ActionImport, After: emptyRegister}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := rule.Evaluate(context.Background(), nil, []domain.Change{tc.change})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := blocking(res, historyAppendRuleName); got != tc.blocked {
				t.Fatalf("expected blocked=%v, got %+v", tc.blocked, res.Violations)
			}
		})
	}
}

func TestRulesBlockCommit(t *testing.T) {
	store := memory.NewStore(NewDefaultRulesEngine())
	svc := NewService(store, WithClock(fixedClock()))
	mustRegister(t, svc, "VAX-1", -16)

	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateBatch("VAX-1", domain.ActionScan, func(b *Batch) (HistoryEntry, error) {
			b.Stage = domain.StagePatient
			return b.Entry(domain.ActionLabelScan, time.Time{}), nil
		})
		return err
	})
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	b, _ := svc.Get(context.Background(), "VAX-1")
	if b.Stage != domain.StageFactory || len(b.History) != 1 {
		t.Fatalf("blocked transaction must not commit, got %+v", b)
	}
}

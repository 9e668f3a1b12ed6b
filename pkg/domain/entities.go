// Package domain defines the cold-chain batch model, the pure status and
// stage evaluation functions, and the rule evaluation primitives used by
// vaxtrax.
package domain

import "time"

// Stage is one step in the fixed custody sequence.
type Stage string

// Custody stages in pipeline order.
const (
	StageFactory  Stage = "Factory"
	StageHub      Stage = "Hub"
	StageStorage  Stage = "Storage"
	StageHospital Stage = "Hospital"
	StagePatient  Stage = "Patient"
)

// Status is the derived safety classification of a batch.
type Status string

// Safety statuses produced by Classify.
const (
	StatusSafe   Status = "Safe"
	StatusAtRisk Status = "At Risk"
	StatusUnsafe Status = "Unsafe"
)

// Statuses returns the enumerated status set.
func Statuses() []Status {
	return []Status{StatusSafe, StatusAtRisk, StatusUnsafe}
}

// Valid reports whether s belongs to the enumerated status set.
func (s Status) Valid() bool {
	switch s {
	case StatusSafe, StatusAtRisk, StatusUnsafe:
		return true
	default:
		return false
	}
}

// ParseStatus validates raw against the status set.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", InvalidStatusf("invalid status value %q", raw)
	}
	return s, nil
}

// TempLimits bounds the safe storage temperature of a batch in °C.
type TempLimits struct {
	Min float64 `json:"min" bson:"min"`
	Max float64 `json:"max" bson:"max"`
}

// DefaultTempLimits are applied when a batch is registered without bounds.
var DefaultTempLimits = TempLimits{Min: -20.0, Max: -15.0}

// Validate rejects inverted or non-finite bounds.
func (l TempLimits) Validate() error {
	if !finite(l.Min) || !finite(l.Max) {
		return InvalidArgumentf("temperature limits must be finite numbers")
	}
	if l.Min > l.Max {
		return InvalidArgumentf("temperature limit min %.1f exceeds max %.1f", l.Min, l.Max)
	}
	return nil
}

// Batch is a tracked unit of vaccine doses.
type Batch struct {
	ID          string         `json:"id"`
	Temperature float64        `json:"temperature"`
	Location    string         `json:"location"`
	Stage       Stage          `json:"stage"`
	Status      Status         `json:"status"`
	LastUpdated time.Time      `json:"lastUpdated"`
	TempLimits  TempLimits     `json:"tempLimits"`
	History     []HistoryEntry `json:"scanHistory"`
}

// HistoryEntry is an immutable record of one state-changing action.
type HistoryEntry struct {
	BatchNo     string    `json:"batch_no"`
	Temperature float64   `json:"temperature"`
	Status      Status    `json:"status"`
	Location    string    `json:"location"`
	Stage       Stage     `json:"stage"`
	Timestamp   time.Time `json:"timestamp"`
	Action      string    `json:"action"`
	ScannedBy   string    `json:"scanned_by,omitempty"`
	Device      string    `json:"device,omitempty"`
}

// History action labels.
const (
	ActionLabelRegister  = "register"
	ActionLabelScan      = "scan"
	ActionLabelHalt      = "halt"
	ActionLabelSetStatus = "set status"
	ActionLabelSetStage  = "set stage"
	ActionLabelRefresh   = "refresh"
)

// ProceedLabel renders the history label for a stage advance.
func ProceedLabel(from, to Stage) string {
	return "proceed (" + string(from) + " → " + string(to) + ")"
}

// Entry captures the batch's current fields as a history entry.
func (b Batch) Entry(action string, at time.Time) HistoryEntry {
	return HistoryEntry{
		BatchNo:     b.ID,
		Temperature: b.Temperature,
		Status:      b.Status,
		Location:    b.Location,
		Stage:       b.Stage,
		Timestamp:   at,
		Action:      action,
	}
}

// LatestEntry returns the most recently appended history entry.
func (b Batch) LatestEntry() (HistoryEntry, bool) {
	if len(b.History) == 0 {
		return HistoryEntry{}, false
	}
	return b.History[len(b.History)-1], true
}

// CloneBatch deep copies the history slice so callers never share backing arrays.
func CloneBatch(b Batch) Batch {
	cp := b
	if b.History != nil {
		cp.History = append([]HistoryEntry(nil), b.History...)
	}
	return cp
}

// Action classifies the mutation recorded in a Change.
type Action string

// Mutation kinds captured by transactions.
const (
	ActionRegister  Action = "register"
	ActionScan      Action = "scan"
	ActionProceed   Action = "proceed"
	ActionHalt      Action = "halt"
	ActionSetStatus Action = "set_status"
	ActionSetStage  Action = "set_stage"
	ActionRefresh   Action = "refresh"
	ActionImport    Action = "import"
)

// Override reports whether the action is an administrative override that
// bypasses the classifier or the sequencer.
func (a Action) Override() bool {
	return a == ActionSetStatus || a == ActionSetStage || a == ActionImport
}

// Change records a single batch mutation within a transaction.
type Change struct {
	Action Action
	Before *Batch
	After  Batch
	Entry  HistoryEntry
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation describes a rule finding against a batch.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	BatchID  string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Message
		}
	}
	return "transaction blocked by rules"
}

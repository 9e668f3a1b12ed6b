package domain

var stageSequence = [...]Stage{StageFactory, StageHub, StageStorage, StageHospital, StagePatient}

// Stages returns the custody sequence in order.
func Stages() []Stage {
	out := make([]Stage, len(stageSequence))
	copy(out, stageSequence[:])
	return out
}

// Index returns the position of s in the custody sequence, or -1.
func (s Stage) Index() int {
	for i, st := range stageSequence {
		if st == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s belongs to the custody sequence.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Terminal reports whether s is the last stage.
func (s Stage) Terminal() bool { return s == stageSequence[len(stageSequence)-1] }

// ParseStage validates raw against the custody sequence.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.Valid() {
		return "", InvalidStagef("invalid stage value %q", raw)
	}
	return s, nil
}

// AdvanceStage returns the stage following current. The terminal stage
// advances to itself.
func AdvanceStage(current Stage) (Stage, error) {
	idx := current.Index()
	if idx < 0 {
		return "", InvalidStagef("invalid stage value %q", current)
	}
	if idx == len(stageSequence)-1 {
		return current, nil
	}
	return stageSequence[idx+1], nil
}

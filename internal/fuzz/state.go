package fuzz

import "fmt"

// EngineState is the generator's prediction of the engine's layout for the
// row under test. It is not read from the engine; it only keeps generated
// cases legal.
type EngineState struct {
	// Exists is true if the row exists once all staged ops are applied.
	Exists bool
	// OpsPending is true if mutations are staged but not committed.
	OpsPending bool
	// DataInMRS is true if the last insert has not been flushed out of
	// the MemRowSet.
	DataInMRS bool
	// DataInDMS is true if mutations sit in a DeltaMemStore.
	DataInDMS bool
	// WorthCompacting is true if a DiskRowSet exists that a full
	// compaction would rewrite.
	WorthCompacting bool
}

func (s EngineState) String() string {
	return fmt.Sprintf("{exists=%t pending=%t mrs=%t dms=%t compact=%t}",
		s.Exists, s.OpsPending, s.DataInMRS, s.DataInDMS, s.WorthCompacting)
}

// Allows reports whether op's precondition holds in s.
func (s EngineState) Allows(op Op) bool {
	switch op {
	case OpInsert:
		return !s.Exists
	case OpUpdate, OpDelete:
		return s.Exists
	case OpFlushOps:
		return s.OpsPending
	case OpFlushMRS:
		return s.DataInMRS
	case OpFlushDeltas:
		return s.DataInDMS
	case OpCompactTablet:
		return s.WorthCompacting
	case OpMinorCompactDeltas, OpMajorCompactDeltas, OpRestart:
		return true
	}
	return false
}

// needsCommit reports whether op may only run after staged ops are
// committed.
func (o Op) needsCommit() bool {
	switch o {
	case OpFlushMRS, OpFlushDeltas, OpCompactTablet, OpRestart:
		return true
	}
	return false
}

// Legal reports whether op may appear next in a case in state s.
func (s EngineState) Legal(op Op) bool {
	if !s.Allows(op) {
		return false
	}
	return !(op.needsCommit() && s.OpsPending)
}

// Next returns the state after op. It does not check legality.
func (s EngineState) Next(op Op) EngineState {
	switch op {
	case OpInsert:
		s.Exists = true
		s.OpsPending = true
		s.DataInMRS = true
	case OpUpdate:
		s.OpsPending = true
		if !s.DataInMRS {
			s.DataInDMS = true
		}
	case OpDelete:
		s.Exists = false
		s.OpsPending = true
		if !s.DataInMRS {
			s.DataInDMS = true
		}
	case OpFlushOps:
		s.OpsPending = false
	case OpFlushMRS:
		s.DataInMRS = false
		s.WorthCompacting = true
	case OpFlushDeltas:
		s.DataInDMS = false
	case OpCompactTablet:
		s.WorthCompacting = false
	}
	return s
}

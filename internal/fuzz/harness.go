package fuzz

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/logging"
)

// DefaultKey is the key of the row under test.
const DefaultKey int32 = 1

// MismatchError reports a lookup that disagreed with the oracle.
type MismatchError struct {
	// Index is the op the lookup preceded. It equals len(Case) for the
	// lookup after the last op.
	Index    int
	Expected string
	Actual   string
	Case     Case
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("fuzz: lookup %s: expected %s, got %s", position(e.Case, e.Index), e.Expected, e.Actual)
}

// StepError reports an engine call that failed. Lookup is set when the
// call was the lookup preceding op Index.
type StepError struct {
	Index  int
	Op     Op
	Lookup bool
	Case   Case
	Err    error
}

func (e *StepError) Error() string {
	if e.Lookup {
		return fmt.Sprintf("fuzz: lookup %s failed: %v", position(e.Case, e.Index), e.Err)
	}
	return fmt.Sprintf("fuzz: op %d (%s) failed: %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func position(c Case, i int) string {
	if i >= len(c) {
		return fmt.Sprintf("after last op %d", len(c)-1)
	}
	return fmt.Sprintf("before op %d (%s)", i, c[i])
}

// dumper is implemented by engines that can describe their storage layout.
type dumper interface {
	Dump() (string, error)
}

// Harness runs cases against an engine and checks every lookup against
// an Oracle. It is not safe for concurrent use.
type Harness struct {
	engine Engine
	logger logging.Logger
	key    int32
}

// NewHarness creates a harness over engine writing DefaultKey.
func NewHarness(engine Engine, logger logging.Logger) *Harness {
	return &Harness{engine: engine, logger: logging.OrDefault(logger), key: DefaultKey}
}

// Run executes c. Every update op is applied updateMultiplier times in a
// row. A lookup before each op, and one after the last, must match the
// oracle; the first mismatch returns a *MismatchError and the first engine
// failure a *StepError. Both carry the formatted case as error detail.
func (h *Harness) Run(c Case, updateMultiplier int) error {
	if updateMultiplier < 1 {
		return errors.Newf("fuzz: update multiplier must be at least 1, got %d", updateMultiplier)
	}
	h.logger.Infof(logging.NSFuzz+"test case:\n%s", FormatCase(c))

	var oracle Oracle
	x := NewExecutor(h.engine, h.key)
	for i, op := range c {
		if err := h.verify(c, i, &oracle); err != nil {
			return err
		}

		h.logger.Infof(logging.NSFuzz+"%s", op)
		v, err := x.Execute(op, updateMultiplier)
		if err != nil {
			return h.withCase(&StepError{Index: i, Op: op, Case: c, Err: err}, c)
		}
		switch {
		case op.IsMutation():
			oracle.Stage(v)
		case op == OpFlushOps:
			oracle.Commit()
		case op.IsMaintenance():
			h.dump(op)
		}
	}
	return h.verify(c, len(c), &oracle)
}

func (h *Harness) verify(c Case, i int, oracle *Oracle) error {
	actual, err := h.engine.LookupRow(h.key)
	if err != nil {
		se := &StepError{Index: i, Lookup: true, Case: c, Err: err}
		if i < len(c) {
			se.Op = c[i]
		}
		return h.withCase(se, c)
	}
	if expected := oracle.Expected(); actual != expected {
		return h.withCase(&MismatchError{Index: i, Expected: expected, Actual: actual, Case: c}, c)
	}
	return nil
}

func (h *Harness) dump(op Op) {
	d, ok := h.engine.(dumper)
	if !ok {
		return
	}
	layout, err := d.Dump()
	if err != nil {
		h.logger.Warnf(logging.NSFuzz+"dump after %s: %v", op, err)
		return
	}
	h.logger.Debugf(logging.NSFuzz+"layout after %s:\n%s", op, layout)
}

func (h *Harness) withCase(err error, c Case) error {
	h.logger.Errorf(logging.NSFuzz+"%v", err)
	return errors.WithDetailf(err, "case:\n%s", FormatCase(c))
}

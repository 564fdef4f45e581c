package fuzz

import (
	"strings"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

var errBoom = errors.New("boom")

type stagedOp struct {
	op  Op
	row string
}

// fakeEngine models a correct engine in memory. fail makes the named call
// return errBoom; lose makes the named maintenance call forget the row.
type fakeEngine struct {
	committed string
	exists    bool
	staged    []stagedOp
	calls     []string
	values    []row.Value

	fail string
	lose string
}

func (f *fakeEngine) call(name string) error {
	f.calls = append(f.calls, name)
	if f.fail == name {
		return errBoom
	}
	if f.lose == name {
		f.committed, f.exists = "", false
	}
	return nil
}

func (f *fakeEngine) stage(name string, op Op, key int32, val row.Value) (string, error) {
	if err := f.call(name); err != nil {
		return "", err
	}
	f.values = append(f.values, val)
	s := row.Row{Key: key, Val: val}.String()
	if op == OpDelete {
		s = ""
	}
	f.staged = append(f.staged, stagedOp{op: op, row: s})
	return s, nil
}

func (f *fakeEngine) InsertRow(key int32, val row.Value) (string, error) {
	return f.stage("InsertRow", OpInsert, key, val)
}

func (f *fakeEngine) UpdateRow(key int32, val row.Value) (string, error) {
	return f.stage("UpdateRow", OpUpdate, key, val)
}

func (f *fakeEngine) DeleteRow(key int32) (string, error) {
	return f.stage("DeleteRow", OpDelete, key, row.Null())
}

func (f *fakeEngine) FlushOps() error {
	if err := f.call("FlushOps"); err != nil {
		return err
	}
	for _, s := range f.staged {
		switch {
		case s.op == OpInsert && f.exists:
			return errors.Wrap(tablet.ErrAlreadyPresent, "fake")
		case s.op != OpInsert && !f.exists:
			return errors.Wrap(tablet.ErrNotFound, "fake")
		}
		f.committed, f.exists = s.row, s.op != OpDelete
	}
	f.staged = nil
	return nil
}

func (f *fakeEngine) LookupRow(int32) (string, error) {
	if err := f.call("LookupRow"); err != nil {
		return "", err
	}
	return "(" + f.committed + ")", nil
}

func (f *fakeEngine) FlushMRS() error        { return f.call("FlushMRS") }
func (f *fakeEngine) FlushBiggestDMS() error { return f.call("FlushBiggestDMS") }
func (f *fakeEngine) CompactTablet() error   { return f.call("CompactTablet") }
func (f *fakeEngine) Restart() error         { return f.call("Restart") }

func (f *fakeEngine) CompactWorstDeltas(kind tablet.DeltaCompactionKind) error {
	return f.call("CompactWorstDeltas/" + kind.String())
}

func TestExecutorValues(t *testing.T) {
	f := &fakeEngine{}
	x := NewExecutor(f, 1)

	s, err := x.Execute(OpInsert, 1)
	require.NoError(t, err)
	require.Equal(t, "int32 key=1, int32 val=0", s)

	s, err = x.Execute(OpUpdate, 3)
	require.NoError(t, err)
	require.Equal(t, "int32 key=1, int32 val=NULL", s, "last of values 1, 2, 3")

	s, err = x.Execute(OpUpdate, 1)
	require.NoError(t, err)
	require.Equal(t, "int32 key=1, int32 val=4", s)

	s, err = x.Execute(OpDelete, 1)
	require.NoError(t, err)
	require.Equal(t, "", s)

	require.Equal(t, []row.Value{row.Int(0), row.Null(), row.Int(2), row.Null(), row.Int(4), row.Null()}, f.values)

	_, err = x.Execute(numOps, 1)
	require.True(t, errors.IsAssertionFailure(err))
}

func TestExecutorMaintenanceCalls(t *testing.T) {
	f := &fakeEngine{}
	x := NewExecutor(f, 1)
	for _, op := range []Op{OpFlushMRS, OpFlushDeltas, OpMinorCompactDeltas, OpMajorCompactDeltas, OpCompactTablet, OpRestart} {
		s, err := x.Execute(op, 1)
		require.NoError(t, err)
		require.Empty(t, s)
	}
	require.Equal(t, []string{
		"FlushMRS", "FlushBiggestDMS", "CompactWorstDeltas/minor",
		"CompactWorstDeltas/major", "CompactTablet", "Restart",
	}, f.calls)
}

func TestOracle(t *testing.T) {
	var o Oracle
	require.Equal(t, "()", o.Expected())
	o.Stage("int32 key=1, int32 val=0")
	o.Stage("int32 key=1, int32 val=2")
	require.Equal(t, "()", o.Expected())
	o.Commit()
	require.Equal(t, "(int32 key=1, int32 val=2)", o.Expected())
	require.Equal(t, o.Pending(), o.Committed())
	o.Reset()
	require.Equal(t, "()", o.Expected())
}

func TestHarnessPassesGeneratedCases(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		c, err := NewGenerator(GeneratorConfig{Seed: seed, AllowRestart: true}).Generate(300)
		require.NoError(t, err)
		f := &fakeEngine{}
		require.NoError(t, NewHarness(f, logging.Discard).Run(c, 1+int(seed%3)), "seed %d", seed)
	}
}

func TestHarnessChecksFinalLookup(t *testing.T) {
	f := &fakeEngine{}
	c := Case{OpInsert, OpFlushOps}
	require.NoError(t, NewHarness(f, logging.Discard).Run(c, 1))
	// One lookup before each op and one after the last.
	lookups := 0
	for _, call := range f.calls {
		if call == "LookupRow" {
			lookups++
		}
	}
	require.Equal(t, 3, lookups)
}

func TestHarnessReportsMismatch(t *testing.T) {
	f := &fakeEngine{lose: "FlushMRS"}
	c := Case{OpInsert, OpFlushOps, OpFlushMRS, OpMinorCompactDeltas}
	err := NewHarness(f, logging.Discard).Run(c, 1)

	var mm *MismatchError
	require.True(t, errors.As(err, &mm), "got %v", err)
	require.Equal(t, 3, mm.Index)
	require.Equal(t, "(int32 key=1, int32 val=0)", mm.Expected)
	require.Equal(t, "()", mm.Actual)
	require.Equal(t, c, mm.Case)
	require.Contains(t, err.Error(), "before op 3 (MINOR_COMPACT_DELTAS)")
	require.Contains(t, strings.Join(errors.GetAllDetails(err), "\n"), FormatCase(c))
}

func TestHarnessReportsMismatchAfterLastOp(t *testing.T) {
	f := &fakeEngine{lose: "CompactTablet"}
	c := Case{OpInsert, OpFlushOps, OpFlushMRS, OpCompactTablet}
	err := NewHarness(f, logging.Discard).Run(c, 1)

	var mm *MismatchError
	require.True(t, errors.As(err, &mm))
	require.Equal(t, len(c), mm.Index)
	require.Contains(t, err.Error(), "after last op 3")
}

func TestHarnessReportsStepError(t *testing.T) {
	f := &fakeEngine{fail: "FlushBiggestDMS"}
	c := Case{OpInsert, OpFlushOps, OpFlushMRS, OpUpdate, OpFlushOps, OpFlushDeltas, OpCompactTablet}
	err := NewHarness(f, logging.Discard).Run(c, 1)

	var se *StepError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 5, se.Index)
	require.Equal(t, OpFlushDeltas, se.Op)
	require.False(t, se.Lookup)
	require.True(t, errors.Is(err, errBoom))
	require.NotContains(t, f.calls, "CompactTablet", "the run stops at the first failure")
}

func TestHarnessReportsLookupError(t *testing.T) {
	f := &fakeEngine{fail: "LookupRow"}
	err := NewHarness(f, logging.Discard).Run(Case{OpInsert}, 1)

	var se *StepError
	require.True(t, errors.As(err, &se))
	require.True(t, se.Lookup)
	require.Equal(t, 0, se.Index)
	require.Contains(t, err.Error(), "lookup before op 0 (INSERT) failed")
}

func TestHarnessRejectsBadMultiplier(t *testing.T) {
	err := NewHarness(&fakeEngine{}, logging.Discard).Run(Case{OpInsert}, 0)
	require.ErrorContains(t, err, "update multiplier")
}

func TestHarnessCommitKeepsLastStagedValue(t *testing.T) {
	f := &fakeEngine{}
	c := Case{OpInsert, OpUpdate, OpFlushOps}
	require.NoError(t, NewHarness(f, logging.Discard).Run(c, 1000))
	require.Equal(t, "int32 key=1, int32 val=1000", f.committed)
}

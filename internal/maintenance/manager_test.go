package maintenance

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

// fakeTablet records the ops run on it.
type fakeTablet struct {
	id    string
	mu    sync.Mutex
	stats tablet.Stats
	ran   []string
	err   error
}

func (f *fakeTablet) ID() string { return f.id }

func (f *fakeTablet) Stats() tablet.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *fakeTablet) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ran = append(f.ran, op)
	return f.err
}

func (f *fakeTablet) Flush() error           { return f.record("flush") }
func (f *fakeTablet) FlushBiggestDMS() error { return f.record("flush-dms") }
func (f *fakeTablet) CompactWorstDeltas(k tablet.DeltaCompactionKind) error {
	return f.record(k.String())
}
func (f *fakeTablet) Compact(tablet.CompactFlags) error { return f.record("compact") }

func testOptions() Options {
	opts := DefaultOptions()
	opts.Enabled = false
	opts.FlushThreshold = 10
	opts.DMSFlushThresholdBytes = 100
	opts.MinorCompactionDeltaFiles = 2
	opts.MajorCompactionDeltaFiles = 4
	opts.CompactionRowSets = 3
	return opts
}

func TestRunOnceNothingToDo(t *testing.T) {
	m := New(testOptions(), logging.Discard)
	m.Register(&fakeTablet{id: "a"})

	_, ran, err := m.RunOnce()
	require.NoError(t, err)
	require.False(t, ran)
}

func TestRunOncePicksHighestScore(t *testing.T) {
	m := New(testOptions(), logging.Discard)
	// Scores: a flush 1.2; b minor 2.0 and major 1.0; c below threshold.
	a := &fakeTablet{id: "a", stats: tablet.Stats{MRSEntries: 12}}
	b := &fakeTablet{id: "b", stats: tablet.Stats{MaxDeltaFiles: 4}}
	c := &fakeTablet{id: "c", stats: tablet.Stats{BiggestDMSBytes: 50}}
	m.Register(a)
	m.Register(b)
	m.Register(c)

	kind, ran, err := m.RunOnce()
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, OpMinorCompactDeltas, kind)
	require.Equal(t, []string{"minor"}, b.ran)
	require.Empty(t, a.ran)
	require.Equal(t, 1, m.Runs(OpMinorCompactDeltas))

	m.Unregister("b")
	kind, _, err = m.RunOnce()
	require.NoError(t, err)
	require.Equal(t, OpFlushMRS, kind)
	require.Equal(t, []string{"flush"}, a.ran)
	require.Empty(t, c.ran)
}

func TestRunOnceCountsErrors(t *testing.T) {
	m := New(testOptions(), logging.Discard)
	boom := errors.New("boom")
	m.Register(&fakeTablet{id: "a", stats: tablet.Stats{RowSets: 5}, err: boom})

	kind, ran, err := m.RunOnce()
	require.True(t, ran)
	require.Equal(t, OpCompactRowSets, kind)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, m.NumBackgroundErrors())
	require.Equal(t, 0, m.Runs(OpCompactRowSets))
}

func TestDisabledManagerNeverRuns(t *testing.T) {
	m := New(testOptions(), logging.Discard)
	a := &fakeTablet{id: "a", stats: tablet.Stats{MRSEntries: 100}}
	m.Register(a)

	m.Start()
	m.Trigger()
	time.Sleep(50 * time.Millisecond)
	m.Stop()

	a.mu.Lock()
	defer a.mu.Unlock()
	require.Empty(t, a.ran)
}

func TestBackgroundLoopFlushesRealTablet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tablet")
	tb, err := tablet.Create(tablet.DefaultOptions(), dir, tablet.CreateOptions{
		TabletID: "t1", TableName: "fuzz", Schema: row.DefaultSchema(),
	})
	require.NoError(t, err)
	defer tb.Close()

	var b tablet.Batch
	for k := int32(0); k < 20; k++ {
		b.Insert(row.Row{Key: k, Val: row.Int(k)})
	}
	_, err = tb.Apply(&b)
	require.NoError(t, err)

	opts := testOptions()
	opts.Enabled = true
	opts.PollInterval = 5 * time.Millisecond
	m := New(opts, logging.Discard)
	m.Register(tb)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool { return tb.Stats().RowSets == 1 }, 5*time.Second, 5*time.Millisecond)
	r, ok, err := tb.Lookup(7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "int32 key=7, int32 val=7", r.String())
}

func TestPauseSkipsPolls(t *testing.T) {
	opts := testOptions()
	opts.Enabled = true
	opts.PollInterval = time.Millisecond
	m := New(opts, logging.Discard)
	a := &fakeTablet{id: "a", stats: tablet.Stats{MRSEntries: 100}}
	m.Register(a)

	m.Pause()
	require.True(t, m.IsPaused())
	m.Start()
	time.Sleep(20 * time.Millisecond)
	a.mu.Lock()
	require.Empty(t, a.ran)
	a.mu.Unlock()

	m.Continue()
	require.Eventually(t, func() bool { return m.Runs(OpFlushMRS) > 0 }, 5*time.Second, time.Millisecond)
	m.Stop()
}

func TestOpKindString(t *testing.T) {
	require.Equal(t, "FlushMRS", OpFlushMRS.String())
	require.Equal(t, "CompactRowSets", OpCompactRowSets.String())
	require.Equal(t, "OpKind(42)", OpKind(42).String())
}

package client

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/tabletfuzz/internal/cluster"
	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

func newTestTable(t *testing.T) (*cluster.MiniTabletServer, *Client, *Table) {
	t.Helper()
	opts := cluster.DefaultOptions()
	opts.Dir = t.TempDir()
	opts.Logger = logging.Discard
	opts.Maintenance.Enabled = false
	c, err := cluster.New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Shutdown() })

	mts := c.TabletServer(0)
	cl := New(mts)
	tbl, err := cl.CreateTable("test-table", row.DefaultSchema())
	require.NoError(t, err)
	return mts, cl, tbl
}

func insertOp(t *testing.T, tbl *Table, key int32, val *int32) *Operation {
	t.Helper()
	op := tbl.NewInsert()
	require.NoError(t, op.Row().SetInt32("key", key))
	if val == nil {
		require.NoError(t, op.Row().SetNull("val"))
	} else {
		require.NoError(t, op.Row().SetInt32("val", *val))
	}
	return op
}

func lookup(t *testing.T, tbl *Table, key int32) string {
	t.Helper()
	s := tbl.NewScanner()
	require.NoError(t, s.AddEqualityPredicate("key", key))
	out, err := s.ScanToString()
	require.NoError(t, err)
	return out
}

func int32p(v int32) *int32 { return &v }

func TestPartialRowString(t *testing.T) {
	_, _, tbl := newTestTable(t)

	op := insertOp(t, tbl, 1, nil)
	require.Equal(t, "int32 key=1, int32 val=NULL", op.Row().String())

	op = insertOp(t, tbl, 7, int32p(-3))
	require.Equal(t, "int32 key=7, int32 val=-3", op.Row().String())

	del := tbl.NewDelete()
	require.NoError(t, del.Row().SetInt32("key", 4))
	require.Equal(t, "int32 key=4", del.Row().String())
	require.Equal(t, "DELETE int32 key=4", del.String())
}

func TestPartialRowRejectsBadColumns(t *testing.T) {
	_, _, tbl := newTestTable(t)
	op := tbl.NewInsert()
	require.True(t, errors.Is(op.Row().SetInt32("nope", 1), ErrInvalidRow))
	require.True(t, errors.Is(op.Row().SetNull("key"), ErrInvalidRow))
}

func TestManualFlushBuffersUntilFlush(t *testing.T) {
	_, cl, tbl := newTestTable(t)
	s := cl.NewSession()

	require.NoError(t, s.Apply(insertOp(t, tbl, 1, int32p(10))))
	require.True(t, s.HasPendingOperations())
	require.Equal(t, "()", lookup(t, tbl, 1))

	require.NoError(t, s.Flush())
	require.False(t, s.HasPendingOperations())
	require.Equal(t, "(int32 key=1, int32 val=10)", lookup(t, tbl, 1))
}

func TestFlushReportsRowErrors(t *testing.T) {
	_, cl, tbl := newTestTable(t)
	s := cl.NewSession()

	require.NoError(t, s.Apply(insertOp(t, tbl, 1, nil)))
	require.NoError(t, s.Apply(insertOp(t, tbl, 1, int32p(2))))
	upd := tbl.NewUpdate()
	require.NoError(t, upd.Row().SetInt32("key", 9))
	require.NoError(t, upd.Row().SetInt32("val", 9))
	require.NoError(t, s.Apply(upd))

	err := s.Flush()
	require.True(t, errors.Is(err, ErrRowErrors))

	rowErrs := s.PendingErrors()
	require.Len(t, rowErrs, 2)
	require.True(t, errors.Is(rowErrs[0], tablet.ErrAlreadyPresent))
	require.True(t, errors.Is(rowErrs[1], tablet.ErrNotFound))
	require.Empty(t, s.PendingErrors())

	// The successful op in the same batch still landed.
	require.Equal(t, "(int32 key=1, int32 val=NULL)", lookup(t, tbl, 1))
}

func TestApplyRejectsMissingKey(t *testing.T) {
	_, cl, tbl := newTestTable(t)
	s := cl.NewSession()
	require.True(t, errors.Is(s.Apply(tbl.NewDelete()), ErrInvalidRow))
	require.False(t, s.HasPendingOperations())
}

func TestAutoFlushSync(t *testing.T) {
	_, cl, tbl := newTestTable(t)
	s := cl.NewSession()
	require.NoError(t, s.SetFlushMode(AutoFlushSync))

	require.NoError(t, s.Apply(insertOp(t, tbl, 3, int32p(4))))
	require.Equal(t, "(int32 key=3, int32 val=4)", lookup(t, tbl, 3))

	s2 := cl.NewSession()
	require.NoError(t, s2.Apply(insertOp(t, tbl, 5, nil)))
	require.Error(t, s2.SetFlushMode(AutoFlushSync))
	require.NoError(t, s2.Close())
}

func TestScannerFullScan(t *testing.T) {
	_, cl, tbl := newTestTable(t)
	s := cl.NewSession()
	for _, k := range []int32{3, 1, 2} {
		require.NoError(t, s.Apply(insertOp(t, tbl, k, int32p(k*10))))
	}
	require.NoError(t, s.Flush())

	rows, err := tbl.NewScanner().Scan()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, "(int32 key=1, int32 val=10)", rows[0].String())
	require.Equal(t, "(int32 key=3, int32 val=30)", rows[2].String())

	require.Error(t, tbl.NewScanner().AddEqualityPredicate("val", 1))
}

func TestServiceUnavailableWhileDown(t *testing.T) {
	mts, cl, tbl := newTestTable(t)
	s := cl.NewSession()
	require.NoError(t, s.Apply(insertOp(t, tbl, 1, int32p(1))))
	require.NoError(t, s.Flush())

	require.NoError(t, mts.Shutdown())

	require.NoError(t, s.Apply(insertOp(t, tbl, 2, int32p(2))))
	require.True(t, errors.Is(s.Flush(), ErrServiceUnavailable))
	_, err := tbl.NewScanner().Scan()
	require.True(t, errors.Is(err, ErrServiceUnavailable))
	_, err = cl.OpenTable("test-table")
	require.True(t, errors.Is(err, ErrServiceUnavailable))

	require.NoError(t, mts.Start())
	reopened, err := cl.OpenTable("test-table")
	require.NoError(t, err)
	require.Equal(t, tbl.TabletID(), reopened.TabletID())
	require.Equal(t, "(int32 key=1, int32 val=1)", lookup(t, reopened, 1))
}

package cluster

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

func startCluster(t *testing.T) *MiniCluster {
	t.Helper()
	opts := DefaultOptions()
	opts.Dir = t.TempDir()
	opts.Logger = logging.Discard
	opts.Maintenance.Enabled = false
	c, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	t.Cleanup(func() { _ = c.Shutdown() })
	return c
}

func TestCreateAndOpenTable(t *testing.T) {
	c := startCluster(t)
	ts, err := c.TabletServer(0).Server()
	require.NoError(t, err)

	info, err := ts.CreateTable("fuzz", row.DefaultSchema())
	require.NoError(t, err)
	require.Len(t, info.TabletID, 16)

	_, err = ts.CreateTable("fuzz", row.DefaultSchema())
	require.True(t, errors.Is(err, ErrTableExists))

	opened, err := ts.OpenTable("fuzz")
	require.NoError(t, err)
	require.Equal(t, info, opened)

	_, err = ts.OpenTable("nope")
	require.True(t, errors.Is(err, ErrTableNotFound))
	_, err = ts.LookupTablet("nope")
	require.True(t, errors.Is(err, ErrTabletNotFound))

	require.Len(t, ts.Tablets(), 1)
}

func TestCreateTableRejectsBadSchema(t *testing.T) {
	c := startCluster(t)
	ts, err := c.TabletServer(0).Server()
	require.NoError(t, err)

	_, err = ts.CreateTable("bad", row.Schema{})
	require.Error(t, err)
}

func TestRestartRecoversTablets(t *testing.T) {
	c := startCluster(t)
	mts := c.TabletServer(0)
	ts, err := mts.Server()
	require.NoError(t, err)
	info, err := ts.CreateTable("fuzz", row.DefaultSchema())
	require.NoError(t, err)

	var b tablet.Batch
	b.Insert(row.Row{Key: 1, Val: row.Int(2)})
	rowErrs, err := ts.Write(info.TabletID, &b)
	require.NoError(t, err)
	require.NoError(t, rowErrs[0])

	require.NoError(t, mts.Shutdown())
	require.False(t, mts.IsRunning())
	_, err = mts.Server()
	require.True(t, errors.Is(err, ErrNotRunning))
	require.NoError(t, mts.Shutdown(), "second shutdown is a no-op")

	require.NoError(t, mts.Start())
	require.Error(t, mts.Start(), "starting a running server fails")
	ts, err = mts.Server()
	require.NoError(t, err)

	opened, err := ts.OpenTable("fuzz")
	require.NoError(t, err)
	require.Equal(t, info.TabletID, opened.TabletID)
	r, ok, err := ts.Lookup(info.TabletID, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "int32 key=1, int32 val=2", r.String())

	require.NoError(t, mts.Restart())
	rows, err := mustServer(t, mts).Scan(info.TabletID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestMultipleServers(t *testing.T) {
	opts := DefaultOptions()
	opts.Dir = t.TempDir()
	opts.Logger = logging.Discard
	opts.NumTabletServers = 2
	c, err := New(opts)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Shutdown()

	require.Equal(t, 2, c.NumTabletServers())
	require.NotEqual(t, c.TabletServer(0).Dir(), c.TabletServer(1).Dir())
	require.True(t, c.TabletServer(1).IsRunning())
}

func TestNewRequiresDir(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func mustServer(t *testing.T, m *MiniTabletServer) *TabletServer {
	t.Helper()
	ts, err := m.Server()
	require.NoError(t, err)
	return ts
}

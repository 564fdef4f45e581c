package fuzz

import (
	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/client"
	"github.com/aalhour/tabletfuzz/internal/cluster"
	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

// DefaultTableName is the table cases run against.
const DefaultTableName = "table"

// EnvOptions configures the cluster a ClusterEngine runs on.
type EnvOptions struct {
	// Dir holds the cluster's data. Required.
	Dir string
	// FS defaults to the OS filesystem.
	FS vfs.FS
	// Logger defaults to logging.NewDefaultLogger.
	Logger logging.Logger
	// Compression is used for rowset files.
	Compression compression.Type
	// SyncWAL syncs the WAL on every commit.
	SyncWAL bool
}

// DefaultEnvOptions returns options for a cluster in dir.
func DefaultEnvOptions(dir string) EnvOptions {
	c := cluster.DefaultOptions()
	return EnvOptions{
		Dir:         dir,
		FS:          c.FS,
		Logger:      c.Logger,
		Compression: c.Compression,
		SyncWAL:     c.SyncWAL,
	}
}

// ClusterEngine is an Engine over a one-server mini cluster with
// background maintenance disabled, so that only the case drives flushes
// and compactions.
type ClusterEngine struct {
	logger  logging.Logger
	cluster *cluster.MiniCluster
	client  *client.Client
	table   *client.Table
	session *client.Session
}

var _ Engine = (*ClusterEngine)(nil)

// NewClusterEngine starts a cluster, creates the table and opens a
// manual-flush session on it.
func NewClusterEngine(opts EnvOptions) (_ *ClusterEngine, retErr error) {
	copts := cluster.DefaultOptions()
	copts.Dir = opts.Dir
	if opts.FS != nil {
		copts.FS = opts.FS
	}
	copts.Logger = logging.OrDefault(opts.Logger)
	copts.Compression = opts.Compression
	copts.SyncWAL = opts.SyncWAL
	copts.Maintenance.Enabled = false
	copts.NumTabletServers = 1

	c, err := cluster.New(copts)
	if err != nil {
		return nil, err
	}
	if err := c.Start(); err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			_ = c.Shutdown()
		}
	}()

	cl := client.New(c.TabletServer(0))
	if _, err := cl.CreateTable(DefaultTableName, row.DefaultSchema()); err != nil {
		return nil, errors.Wrap(err, "create table")
	}
	tbl, err := cl.OpenTable(DefaultTableName)
	if err != nil {
		return nil, errors.Wrap(err, "open table")
	}
	e := &ClusterEngine{
		logger:  copts.Logger,
		cluster: c,
		client:  cl,
		table:   tbl,
		session: cl.NewSession(),
	}
	if _, err := e.Tablet(); err != nil {
		return nil, err
	}
	return e, nil
}

// Cluster returns the underlying cluster.
func (e *ClusterEngine) Cluster() *cluster.MiniCluster { return e.cluster }

// Tablet returns the table's only tablet on the running server.
func (e *ClusterEngine) Tablet() (*tablet.Tablet, error) {
	ts, err := e.cluster.TabletServer(0).Server()
	if err != nil {
		return nil, err
	}
	tablets := ts.Tablets()
	if len(tablets) != 1 {
		return nil, errors.AssertionFailedf("expected 1 tablet, found %d", len(tablets))
	}
	return ts.LookupTablet(e.table.TabletID())
}

func (e *ClusterEngine) stage(op *client.Operation, key int32, val *row.Value) (string, error) {
	r := op.Row()
	if err := r.SetInt32("key", key); err != nil {
		return "", err
	}
	if val != nil {
		if v, ok := val.Int32(); ok {
			if err := r.SetInt32("val", v); err != nil {
				return "", err
			}
		} else if err := r.SetNull("val"); err != nil {
			return "", err
		}
	}
	s := r.String()
	return s, e.session.Apply(op)
}

// InsertRow stages an insert in the session.
func (e *ClusterEngine) InsertRow(key int32, val row.Value) (string, error) {
	return e.stage(e.table.NewInsert(), key, &val)
}

// UpdateRow stages an update in the session.
func (e *ClusterEngine) UpdateRow(key int32, val row.Value) (string, error) {
	return e.stage(e.table.NewUpdate(), key, &val)
}

// DeleteRow stages a delete in the session.
func (e *ClusterEngine) DeleteRow(key int32) (string, error) {
	if _, err := e.stage(e.table.NewDelete(), key, nil); err != nil {
		return "", err
	}
	return "", nil
}

// FlushOps flushes the session. Row errors are attached as detail.
func (e *ClusterEngine) FlushOps() error {
	err := e.session.Flush()
	if errors.Is(err, client.ErrRowErrors) {
		for _, re := range e.session.PendingErrors() {
			err = errors.WithDetailf(err, "%v", re)
		}
	}
	return err
}

// LookupRow scans for key with an equality predicate.
func (e *ClusterEngine) LookupRow(key int32) (string, error) {
	s := e.table.NewScanner()
	if err := s.AddEqualityPredicate("key", key); err != nil {
		return "", err
	}
	return s.ScanToString()
}

// FlushMRS flushes the tablet's MemRowSet.
func (e *ClusterEngine) FlushMRS() error {
	t, err := e.Tablet()
	if err != nil {
		return err
	}
	return t.Flush()
}

// FlushBiggestDMS flushes the tablet's largest DeltaMemStore.
func (e *ClusterEngine) FlushBiggestDMS() error {
	t, err := e.Tablet()
	if err != nil {
		return err
	}
	return t.FlushBiggestDMS()
}

// CompactWorstDeltas compacts the delta files of the worst rowset.
func (e *ClusterEngine) CompactWorstDeltas(kind tablet.DeltaCompactionKind) error {
	t, err := e.Tablet()
	if err != nil {
		return err
	}
	return t.CompactWorstDeltas(kind)
}

// CompactTablet compacts every rowset, even a lone one.
func (e *ClusterEngine) CompactTablet() error {
	t, err := e.Tablet()
	if err != nil {
		return err
	}
	return t.Compact(tablet.FlagForceCompactAll)
}

// Restart restarts the tablet server, or starts it if it is down, and
// checks that the tablet came back.
func (e *ClusterEngine) Restart() error {
	mts := e.cluster.TabletServer(0)
	var err error
	if mts.IsRunning() {
		err = mts.Restart()
	} else {
		err = mts.Start()
	}
	if err != nil {
		return errors.Wrap(err, "restart tablet server")
	}
	_, err = e.Tablet()
	return err
}

// Dump describes the tablet's current layout.
func (e *ClusterEngine) Dump() (string, error) {
	t, err := e.Tablet()
	if err != nil {
		return "", err
	}
	return t.Dump(), nil
}

// Close shuts the cluster down.
func (e *ClusterEngine) Close() error {
	e.logger.Debugf(logging.NSFuzz + "shutting down cluster")
	return e.cluster.Shutdown()
}

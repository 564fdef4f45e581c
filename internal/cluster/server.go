package cluster

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/checksum"
	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/maintenance"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

var (
	// ErrNotRunning is returned when talking to a stopped tablet server.
	ErrNotRunning = errors.New("cluster: tablet server not running")

	// ErrTableExists is returned by CreateTable for a name already in use.
	ErrTableExists = errors.New("cluster: table already exists")

	// ErrTableNotFound is returned by OpenTable for an unknown name.
	ErrTableNotFound = errors.New("cluster: table not found")

	// ErrTabletNotFound is returned for an unknown tablet id.
	ErrTabletNotFound = errors.New("cluster: tablet not found")
)

const tabletsDirName = "tablets"

// TableInfo describes a table and the single tablet holding it.
type TableInfo struct {
	Name     string
	TabletID string
	Schema   row.Schema
}

// TabletServer hosts tablets and their maintenance manager. The table
// catalog is not stored separately: each tablet records the table it
// belongs to and the catalog is rebuilt from them at startup.
type TabletServer struct {
	opts   Options
	dir    string
	logger logging.Logger
	maint  *maintenance.Manager

	mu      sync.RWMutex
	tablets map[string]*tablet.Tablet
	tables  map[string]string
}

func startTabletServer(opts Options, dir string) (_ *TabletServer, retErr error) {
	ts := &TabletServer{
		opts:    opts,
		dir:     dir,
		logger:  opts.Logger,
		maint:   maintenance.New(opts.Maintenance, opts.Logger),
		tablets: make(map[string]*tablet.Tablet),
		tables:  make(map[string]string),
	}
	defer func() {
		if retErr != nil {
			_ = ts.shutdown()
		}
	}()

	root := filepath.Join(dir, tabletsDirName)
	if err := opts.FS.MkdirAll(root, 0755); err != nil {
		return nil, errors.Wrapf(err, "create %s", root)
	}
	names, err := opts.FS.ListDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", root)
	}
	for _, name := range names {
		t, err := tablet.Open(opts.tabletOptions(), filepath.Join(root, name))
		if err != nil {
			return nil, errors.Wrapf(err, "open tablet %s", name)
		}
		ts.addTablet(t)
	}

	ts.maint.Start()
	ts.logger.Infof(logging.NSCluster+"tablet server %s started with %d tablets", dir, len(ts.tablets))
	return ts, nil
}

func (ts *TabletServer) addTablet(t *tablet.Tablet) {
	ts.mu.Lock()
	ts.tablets[t.ID()] = t
	ts.tables[t.TableName()] = t.ID()
	ts.mu.Unlock()
	ts.maint.Register(t)
}

// tabletIDFor derives a stable tablet id from the table name.
func tabletIDFor(table string) string {
	return fmt.Sprintf("%016x", checksum.XXH3([]byte(table)))
}

// CreateTable creates a table backed by a single tablet.
func (ts *TabletServer) CreateTable(name string, schema row.Schema) (TableInfo, error) {
	ts.mu.RLock()
	_, exists := ts.tables[name]
	ts.mu.RUnlock()
	if exists {
		return TableInfo{}, errors.Wrapf(ErrTableExists, "%q", name)
	}

	id := tabletIDFor(name)
	t, err := tablet.Create(ts.opts.tabletOptions(), filepath.Join(ts.dir, tabletsDirName, id), tablet.CreateOptions{
		TabletID:  id,
		TableName: name,
		Schema:    schema,
	})
	if err != nil {
		return TableInfo{}, errors.Wrapf(err, "create table %q", name)
	}
	ts.addTablet(t)
	ts.logger.Infof(logging.NSCluster+"created table %q %s as tablet %s", name, schema, id)
	return TableInfo{Name: name, TabletID: id, Schema: schema}, nil
}

// OpenTable returns the description of an existing table.
func (ts *TabletServer) OpenTable(name string) (TableInfo, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	id, ok := ts.tables[name]
	if !ok {
		return TableInfo{}, errors.Wrapf(ErrTableNotFound, "%q", name)
	}
	return TableInfo{Name: name, TabletID: id, Schema: ts.tablets[id].Schema()}, nil
}

// Tablets returns the hosted tablets ordered by id.
func (ts *TabletServer) Tablets() []*tablet.Tablet {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make([]*tablet.Tablet, 0, len(ts.tablets))
	for _, t := range ts.tablets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// LookupTablet returns the tablet with the given id.
func (ts *TabletServer) LookupTablet(id string) (*tablet.Tablet, error) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.tablets[id]
	if !ok {
		return nil, errors.Wrapf(ErrTabletNotFound, "%s", id)
	}
	return t, nil
}

// Write applies a batch to a tablet.
func (ts *TabletServer) Write(tabletID string, b *tablet.Batch) ([]error, error) {
	t, err := ts.LookupTablet(tabletID)
	if err != nil {
		return nil, err
	}
	return t.Apply(b)
}

// Lookup reads one row of a tablet.
func (ts *TabletServer) Lookup(tabletID string, key int32) (row.Row, bool, error) {
	t, err := ts.LookupTablet(tabletID)
	if err != nil {
		return row.Row{}, false, err
	}
	return t.Lookup(key)
}

// Scan reads every row of a tablet.
func (ts *TabletServer) Scan(tabletID string) ([]row.Row, error) {
	t, err := ts.LookupTablet(tabletID)
	if err != nil {
		return nil, err
	}
	return t.Scan()
}

// Maintenance returns the server's maintenance manager.
func (ts *TabletServer) Maintenance() *maintenance.Manager {
	return ts.maint
}

func (ts *TabletServer) shutdown() error {
	ts.maint.Stop()

	ts.mu.Lock()
	defer ts.mu.Unlock()
	var err error
	for id, t := range ts.tablets {
		ts.maint.Unregister(id)
		err = errors.CombineErrors(err, t.Close())
	}
	ts.tablets = map[string]*tablet.Tablet{}
	ts.tables = map[string]string{}
	return err
}

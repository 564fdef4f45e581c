// Package tablet implements a single-tablet storage engine.
//
// A tablet holds rows in one MemRowSet (MRS), which receives every new
// insert, and any number of DiskRowSets (DRS) produced by flushing it.
// Updates and deletes land wherever the row is currently live: in the MRS
// entry's mutation chain or in the DeltaMemStore (DMS) of the DRS that owns
// it. Every committed batch is logged to the WAL before it is acknowledged,
// and the superblock records which stores have been made durable so that
// WAL replay can skip their ops.
//
// Maintenance (Flush, FlushBiggestDMS, CompactWorstDeltas, Compact) is
// synchronous and runs under the tablet lock. It never changes what a
// reader observes.
package tablet

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/memrowset"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/rowset"
	"github.com/aalhour/tabletfuzz/internal/vfs"
	"github.com/aalhour/tabletfuzz/internal/wal"
)

var (
	// ErrNotFound is returned for updates and deletes of a key that is not live.
	ErrNotFound = errors.New("tablet: key not found")

	// ErrAlreadyPresent is returned for inserts of a key that is live.
	ErrAlreadyPresent = errors.New("tablet: key already present")

	// ErrCorruption indicates inconsistent persistent state.
	ErrCorruption = errors.New("tablet: corruption")

	// ErrClosed is returned by operations on a closed tablet.
	ErrClosed = errors.New("tablet: closed")

	// ErrFailed is returned by writes and maintenance after a fatal error.
	ErrFailed = errors.New("tablet: failed")

	// ErrExists is returned by Create when the directory already holds a tablet.
	ErrExists = errors.New("tablet: already exists")
)

// LockFileName is the name of the lock file in a tablet directory.
const LockFileName = "LOCK"

// Tablet is a single persistent tablet. It is safe for concurrent use.
type Tablet struct {
	opts   Options
	dir    string
	logger logging.Logger

	id        string
	tableName string
	schema    row.Schema

	mu               sync.Mutex
	mrs              *memrowset.MemRowSet
	lastDurableMRSID uint64
	nextRowSetID     uint64
	rowsets          []*rowset.DiskRowSet
	clock            uint64

	walFile     vfs.WritableFile
	wal         *wal.Writer
	walSegments []uint64

	lock   io.Closer
	closed bool
	failed error
}

// Create initializes a new tablet in dir and opens it.
func Create(opts Options, dir string, co CreateOptions) (*Tablet, error) {
	opts = opts.sanitize()
	if err := co.Schema.Validate(); err != nil {
		return nil, errors.Wrapf(err, "create tablet %s", co.TabletID)
	}
	if err := opts.FS.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "create tablet dir %s", dir)
	}
	if opts.FS.Exists(filepath.Join(dir, SuperblockFileName)) {
		return nil, errors.Wrapf(ErrExists, "%s", dir)
	}

	sb := &superblock{
		tabletID:     co.TabletID,
		tableName:    co.TableName,
		schema:       co.Schema,
		currentMRSID: 1,
		nextRowSetID: 1,
	}
	if err := writeSuperblock(opts.FS, dir, sb); err != nil {
		return nil, err
	}
	if err := opts.FS.SyncDir(dir); err != nil {
		return nil, errors.Wrapf(err, "sync %s", dir)
	}
	return Open(opts, dir)
}

// Open opens the tablet in dir, replaying its WAL.
func Open(opts Options, dir string) (_ *Tablet, retErr error) {
	opts = opts.sanitize()

	lock, err := opts.FS.Lock(filepath.Join(dir, LockFileName))
	if err != nil {
		return nil, errors.Wrapf(err, "lock tablet %s", dir)
	}
	defer func() {
		if retErr != nil {
			_ = lock.Close()
		}
	}()

	sb, err := readSuperblock(opts.FS, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open tablet %s", dir)
	}
	if err := sb.schema.Validate(); err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "tablet %s", sb.tabletID), ErrCorruption)
	}

	t := &Tablet{
		opts:             opts,
		dir:              dir,
		logger:           opts.Logger,
		id:               sb.tabletID,
		tableName:        sb.tableName,
		schema:           sb.schema,
		mrs:              memrowset.New(sb.currentMRSID),
		lastDurableMRSID: sb.lastDurableMRSID,
		nextRowSetID:     sb.nextRowSetID,
		clock:            sb.lastTS,
		lock:             lock,
	}
	for _, m := range sb.rowsets {
		rs, err := rowset.Open(t.rowsetOptions(), m)
		if err != nil {
			return nil, errors.Wrapf(err, "tablet %s: open rowset %d", t.id, m.ID)
		}
		t.rowsets = append(t.rowsets, rs)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.replayWALLocked(); err != nil {
		return nil, errors.Wrapf(err, "tablet %s: replay", t.id)
	}
	t.removeOrphansLocked()
	if err := t.startSegmentLocked(); err != nil {
		return nil, err
	}

	t.logger.Infof(logging.NSTablet+"opened tablet %s (%d rowsets, MemRowSet %d with %d entries, clock %d)",
		t.id, len(t.rowsets), t.mrs.ID(), t.mrs.Entries(), t.clock)
	return t, nil
}

// ID returns the tablet id.
func (t *Tablet) ID() string { return t.id }

// TableName returns the name of the table the tablet belongs to.
func (t *Tablet) TableName() string { return t.tableName }

// Schema returns the tablet schema.
func (t *Tablet) Schema() row.Schema { return t.schema }

// Dir returns the tablet directory.
func (t *Tablet) Dir() string { return t.dir }

func (t *Tablet) rowsetOptions() rowset.Options {
	return rowset.Options{FS: t.opts.FS, Dir: t.dir, Compression: t.opts.Compression}
}

// Failed returns the error that put the tablet into its failed state, or nil.
func (t *Tablet) Failed() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failed
}

func (t *Tablet) readableLocked() error {
	if t.closed {
		return ErrClosed
	}
	return nil
}

func (t *Tablet) writableLocked() error {
	if t.closed {
		return ErrClosed
	}
	if t.failed != nil {
		return errors.Wrapf(ErrFailed, "tablet %s: %v", t.id, t.failed)
	}
	return nil
}

// failLocked puts the tablet into its failed state. Reads keep working
// against the in-memory state; writes and maintenance are rejected.
func (t *Tablet) failLocked(ns string, err error) error {
	if t.failed == nil {
		t.failed = err
	}
	t.logger.Fatalf(ns+"tablet %s: %v", t.id, err)
	return errors.Mark(err, ErrFailed)
}

// Apply applies the ops of b in order and logs the applied ones as a
// single WAL record. rowErrs has one entry per op, nil for applied ops;
// err is set only if the batch as a whole could not be committed.
func (t *Tablet) Apply(b *Batch) (rowErrs []error, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writableLocked(); err != nil {
		return nil, err
	}

	rowErrs = make([]error, len(b.Ops))
	logged := make([]loggedOp, 0, len(b.Ops))
	for i, op := range b.Ops {
		lo, err := t.applyLocked(t.clock+1, op)
		if err != nil {
			rowErrs[i] = err
			continue
		}
		t.clock = lo.ts
		logged = append(logged, lo)
	}
	if len(logged) == 0 {
		return rowErrs, nil
	}
	return rowErrs, t.appendWALLocked(logged)
}

func (t *Tablet) applyLocked(ts uint64, op Op) (loggedOp, error) {
	key := op.Row.Key
	lo := loggedOp{ts: ts, key: key}

	switch op.Type {
	case OpInsert:
		if _, live := t.lookupLocked(key); live {
			return lo, errors.Wrapf(ErrAlreadyPresent, "key %d", key)
		}
		if _, present, _ := t.mrs.Get(key); present {
			lo.target, lo.storeID, lo.change = targetMRSMutate, t.mrs.ID(), row.Reinsert(op.Row.Val)
			return lo, t.mrs.Mutate(ts, key, lo.change)
		}
		lo.target, lo.storeID, lo.val = targetMRSInsert, t.mrs.ID(), op.Row.Val
		return lo, t.mrs.Insert(ts, op.Row)

	case OpUpdate, OpDelete:
		lo.change = row.Delete()
		if op.Type == OpUpdate {
			lo.change = row.Update(op.Row.Val)
		}
		if _, _, live := t.mrs.Get(key); live {
			lo.target, lo.storeID = targetMRSMutate, t.mrs.ID()
			return lo, t.mrs.Mutate(ts, key, lo.change)
		}
		for _, rs := range t.rowsets {
			if _, _, live := rs.Get(key); live {
				lo.target, lo.storeID, lo.dmsID = targetDRSMutate, rs.ID(), rs.DMS().ID()
				return lo, rs.Mutate(ts, key, lo.change)
			}
		}
		return lo, errors.Wrapf(ErrNotFound, "key %d", key)

	default:
		return lo, errors.AssertionFailedf("unknown op type %d", op.Type)
	}
}

func (t *Tablet) appendWALLocked(ops []loggedOp) error {
	if _, err := t.wal.AddRecord(wal.CommitType, encodeCommit(ops)); err != nil {
		return t.failLocked(logging.NSWAL, errors.Wrap(err, "wal append"))
	}
	if t.opts.SyncWAL {
		if err := t.wal.Sync(); err != nil {
			return t.failLocked(logging.NSWAL, errors.Wrap(err, "wal sync"))
		}
	}
	return nil
}

// lookupLocked returns the live row for key. At most one store holds it.
func (t *Tablet) lookupLocked(key int32) (row.Row, bool) {
	if r, _, live := t.mrs.Get(key); live {
		return r, true
	}
	for _, rs := range t.rowsets {
		if r, _, live := rs.Get(key); live {
			return r, true
		}
	}
	return row.Row{}, false
}

// Lookup returns the live row for key.
func (t *Tablet) Lookup(key int32) (row.Row, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.readableLocked(); err != nil {
		return row.Row{}, false, err
	}
	r, ok := t.lookupLocked(key)
	return r, ok, nil
}

// Scan returns every live row in key order.
func (t *Tablet) Scan() ([]row.Row, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.readableLocked(); err != nil {
		return nil, err
	}
	rows := t.mrs.LiveRows()
	for _, rs := range t.rowsets {
		rows = append(rows, rs.LiveRows()...)
	}
	return sortUnique(rows)
}

// sortUnique sorts rows by key and fails if a key is live twice.
func sortUnique(rows []row.Row) ([]row.Row, error) {
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	for i := 1; i < len(rows); i++ {
		if rows[i].Key == rows[i-1].Key {
			return nil, errors.Wrapf(ErrCorruption, "key %d is live in two stores", rows[i].Key)
		}
	}
	return rows, nil
}

// Stats describes the in-memory and on-disk footprint of a tablet.
type Stats struct {
	MRSEntries      int
	MRSMutations    int
	RowSets         int
	DMSEntries      int
	BiggestDMSBytes int
	MaxDeltaFiles   int
	WALSegments     int
}

// Stats returns the current footprint of the tablet.
func (t *Tablet) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{
		MRSEntries:   t.mrs.Entries(),
		MRSMutations: t.mrs.Mutations(),
		RowSets:      len(t.rowsets),
		WALSegments:  len(t.walSegments),
	}
	for _, rs := range t.rowsets {
		s.DMSEntries += rs.DMS().Len()
		s.BiggestDMSBytes = max(s.BiggestDMSBytes, rs.DMS().Bytes())
		s.MaxDeltaFiles = max(s.MaxDeltaFiles, rs.DeltaFileCount())
	}
	return s
}

// Dump describes the tablet layout, one store per line.
func (t *Tablet) Dump() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	fmt.Fprintf(&b, "tablet %s (table %s) clock=%d\n", t.id, t.tableName, t.clock)
	fmt.Fprintf(&b, "MemRowSet %d: entries=%d mutations=%d durable_mrs=%d\n",
		t.mrs.ID(), t.mrs.Entries(), t.mrs.Mutations(), t.lastDurableMRSID)
	for _, rs := range t.rowsets {
		b.WriteString(rs.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "wal segments=%v", t.walSegments)
	return b.String()
}

// Close releases the tablet. Unflushed in-memory stores are recovered
// from the WAL by the next Open.
func (t *Tablet) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true

	var err error
	if t.walFile != nil {
		if !t.opts.SyncWAL && t.failed == nil {
			err = errors.CombineErrors(err, t.wal.Sync())
		}
		err = errors.CombineErrors(err, t.walFile.Close())
	}
	err = errors.CombineErrors(err, t.lock.Close())
	t.logger.Infof(logging.NSTablet+"closed tablet %s", t.id)
	return err
}

func (t *Tablet) superblockLocked() *superblock {
	sb := &superblock{
		tabletID:         t.id,
		tableName:        t.tableName,
		schema:           t.schema,
		currentMRSID:     t.mrs.ID(),
		lastDurableMRSID: t.lastDurableMRSID,
		nextRowSetID:     t.nextRowSetID,
		lastTS:           t.clock,
	}
	for _, rs := range t.rowsets {
		sb.rowsets = append(sb.rowsets, rs.Meta())
	}
	return sb
}

// persistLocked writes the superblock. Failure leaves memory ahead of disk,
// so it is fatal.
func (t *Tablet) persistLocked(ns string) error {
	if err := writeSuperblock(t.opts.FS, t.dir, t.superblockLocked()); err != nil {
		return t.failLocked(ns, err)
	}
	return nil
}

func (t *Tablet) removeFilesLocked(ns string, names []string) {
	for _, name := range names {
		if err := t.opts.FS.Remove(filepath.Join(t.dir, name)); err != nil {
			t.logger.Warnf(ns+"tablet %s: remove %s: %v", t.id, name, err)
		}
	}
}

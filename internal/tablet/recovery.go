// recovery.go implements WAL segment management and replay.
package tablet

import (
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/rowset"
	"github.com/aalhour/tabletfuzz/internal/wal"
)

func walFileName(n uint64) string {
	return fmt.Sprintf("wal-%06d.log", n)
}

func parseWALFileName(name string) (uint64, bool) {
	var n uint64
	if _, err := fmt.Sscanf(name, "wal-%06d.log", &n); err != nil || walFileName(n) != name {
		return 0, false
	}
	return n, true
}

// replayStats counts what replay did with each logged op.
type replayStats struct {
	records  int
	applied  int
	skipped  int
	tornTail int
}

// replayWALLocked re-applies every logged op whose store is not durable.
func (t *Tablet) replayWALLocked() error {
	names, err := t.opts.FS.ListDir(t.dir)
	if err != nil {
		return errors.Wrapf(err, "list %s", t.dir)
	}
	for _, name := range names {
		if n, ok := parseWALFileName(name); ok {
			t.walSegments = append(t.walSegments, n)
		}
	}
	slices.Sort(t.walSegments)

	var stats replayStats
	for _, n := range t.walSegments {
		if err := t.replaySegmentLocked(n, &stats); err != nil {
			return errors.Wrapf(err, "segment %s", walFileName(n))
		}
	}
	if stats.records > 0 || stats.tornTail > 0 {
		t.logger.Infof(logging.NSWAL+"tablet %s: replayed %d records (%d ops applied, %d durable ops skipped, %d torn bytes dropped)",
			t.id, stats.records, stats.applied, stats.skipped, stats.tornTail)
	}
	return nil
}

func (t *Tablet) replaySegmentLocked(n uint64, stats *replayStats) error {
	f, err := t.opts.FS.Open(filepath.Join(t.dir, walFileName(n)))
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := wal.NewReader(f)
	for {
		_, payload, err := r.ReadRecord()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return errors.Mark(err, ErrCorruption)
		}
		ops, err := decodeCommit(payload)
		if err != nil {
			return errors.Wrapf(err, "record at offset %d", r.Offset())
		}
		stats.records++
		for _, op := range ops {
			applied, err := t.replayOpLocked(op)
			if err != nil {
				return errors.Wrapf(err, "op ts=%d key=%d", op.ts, op.key)
			}
			if applied {
				stats.applied++
			} else {
				stats.skipped++
			}
		}
	}
	if torn := r.TornTail(); torn > 0 {
		t.logger.Warnf(logging.NSWAL+"tablet %s: %s ends in a torn record (%d bytes)", t.id, walFileName(n), torn)
		stats.tornTail += torn
	}
	return nil
}

// replayOpLocked applies op unless its store is already durable.
func (t *Tablet) replayOpLocked(op loggedOp) (bool, error) {
	t.clock = max(t.clock, op.ts)

	switch op.target {
	case targetMRSInsert, targetMRSMutate:
		if op.storeID <= t.lastDurableMRSID {
			return false, nil
		}
		if op.storeID != t.mrs.ID() {
			return false, errors.Wrapf(ErrCorruption, "op for MemRowSet %d, current is %d", op.storeID, t.mrs.ID())
		}
		var err error
		if op.target == targetMRSInsert {
			err = t.mrs.Insert(op.ts, rowOf(op))
		} else {
			err = t.mrs.Mutate(op.ts, op.key, op.change)
		}
		if err != nil {
			return false, errors.Mark(err, ErrCorruption)
		}
		return true, nil

	case targetDRSMutate:
		rs := t.rowsetLocked(op.storeID)
		if rs == nil {
			if op.storeID < t.nextRowSetID {
				// Compacted away; its DMS went into the output rowset.
				return false, nil
			}
			return false, errors.Wrapf(ErrCorruption, "op for unknown rowset %d", op.storeID)
		}
		if op.dmsID <= rs.LastDurableDMSID() {
			return false, nil
		}
		if op.dmsID != rs.DMS().ID() {
			return false, errors.Wrapf(ErrCorruption, "op for rowset %d DMS %d, current is %d", rs.ID(), op.dmsID, rs.DMS().ID())
		}
		if err := rs.Mutate(op.ts, op.key, op.change); err != nil {
			return false, errors.Mark(err, ErrCorruption)
		}
		return true, nil

	default:
		return false, errors.AssertionFailedf("unknown op target %d", op.target)
	}
}

func (t *Tablet) rowsetLocked(id uint64) *rowset.DiskRowSet {
	for _, rs := range t.rowsets {
		if rs.ID() == id {
			return rs
		}
	}
	return nil
}

// startSegmentLocked opens a fresh WAL segment numbered after every
// existing one.
func (t *Tablet) startSegmentLocked() error {
	var n uint64 = 1
	if len(t.walSegments) > 0 {
		n = t.walSegments[len(t.walSegments)-1] + 1
	}
	f, err := t.opts.FS.Create(filepath.Join(t.dir, walFileName(n)))
	if err != nil {
		return errors.Wrapf(err, "create %s", walFileName(n))
	}
	if err := t.opts.FS.SyncDir(t.dir); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "sync %s", t.dir)
	}
	if t.walFile != nil {
		_ = t.walFile.Close()
	}
	t.walFile = f
	t.wal = wal.NewWriter(f, 0)
	t.walSegments = append(t.walSegments, n)
	return nil
}

// maybeRollWALLocked starts a new segment and deletes the old ones once
// every logged op is durable, i.e. nothing is left in the MRS or any DMS.
func (t *Tablet) maybeRollWALLocked() {
	if !t.mrs.Empty() {
		return
	}
	for _, rs := range t.rowsets {
		if rs.DMS().Len() > 0 {
			return
		}
	}
	if len(t.walSegments) == 1 && t.wal.Size() == 0 {
		return
	}

	old := slices.Clone(t.walSegments)
	if err := t.startSegmentLocked(); err != nil {
		// The current segment stays usable; retry after the next flush.
		t.logger.Warnf(logging.NSWAL+"tablet %s: roll segment: %v", t.id, err)
		return
	}
	names := make([]string, len(old))
	for i, n := range old {
		names[i] = walFileName(n)
	}
	t.removeFilesLocked(logging.NSWAL, names)
	t.walSegments = t.walSegments[len(old):]
	t.logger.Debugf(logging.NSWAL+"tablet %s: rolled to %s, removed %d segments", t.id, walFileName(t.walSegments[0]), len(old))
}

// removeOrphansLocked deletes rowset files the superblock does not
// reference, left behind by a flush or compaction that did not complete.
func (t *Tablet) removeOrphansLocked() {
	live := map[string]bool{}
	for _, rs := range t.rowsets {
		for _, f := range rs.Files() {
			live[f] = true
		}
	}
	names, err := t.opts.FS.ListDir(t.dir)
	if err != nil {
		t.logger.Warnf(logging.NSTablet+"tablet %s: list for orphan cleanup: %v", t.id, err)
		return
	}
	var orphans []string
	for _, name := range names {
		isRowsetFile := strings.HasPrefix(name, "rowset-") && !live[name]
		isSuperblockTemp := strings.HasPrefix(name, SuperblockFileName) && name != SuperblockFileName
		if isRowsetFile || isSuperblockTemp {
			orphans = append(orphans, name)
		}
	}
	if len(orphans) > 0 {
		t.logger.Infof(logging.NSTablet+"tablet %s: removing %d orphaned files", t.id, len(orphans))
		t.removeFilesLocked(logging.NSTablet, orphans)
	}
}

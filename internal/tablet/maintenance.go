// maintenance.go implements the flush and compaction operations.
//
// Each operation writes its new files first, then swaps the in-memory
// layout, then persists the superblock, then removes the files it made
// obsolete. A crash between the steps leaves either the old layout (new
// files become orphans) or the new one (old files become orphans); Open
// cleans up either way.
package tablet

import (
	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/memrowset"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/rowset"
)

// DeltaCompactionKind selects minor or major delta compaction.
type DeltaCompactionKind = rowset.DeltaCompactionKind

const (
	// MinorDeltaCompaction merges a rowset's delta files into one.
	MinorDeltaCompaction = rowset.MinorDeltaCompaction
	// MajorDeltaCompaction folds a rowset's delta files into its base.
	MajorDeltaCompaction = rowset.MajorDeltaCompaction
)

// CompactFlags modify Compact.
type CompactFlags uint8

const (
	// FlagForceCompactAll compacts every rowset even when there is only one.
	FlagForceCompactAll CompactFlags = 1 << iota
)

// Flush writes the live rows of the MemRowSet to a new DiskRowSet and
// starts a new MemRowSet. A MemRowSet that never received an insert is
// left alone; one whose rows are all deleted is replaced without writing
// a rowset.
func (t *Tablet) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writableLocked(); err != nil {
		return err
	}
	if t.mrs.Empty() {
		t.logger.Debugf(logging.NSFlush+"tablet %s: MemRowSet %d is empty", t.id, t.mrs.ID())
		return nil
	}

	old := t.mrs
	live := old.LiveRows()
	var created *rowset.DiskRowSet
	if len(live) > 0 {
		rs, err := rowset.Create(t.rowsetOptions(), t.nextRowSetID, live)
		if err != nil {
			return errors.Wrapf(err, "flush MemRowSet %d", old.ID())
		}
		created = rs
		t.rowsets = append(t.rowsets, rs)
		t.nextRowSetID++
	}
	t.mrs = memrowset.New(old.ID() + 1)
	t.lastDurableMRSID = old.ID()

	if err := t.persistLocked(logging.NSFlush); err != nil {
		return err
	}
	if created != nil {
		t.logger.Infof(logging.NSFlush+"tablet %s: flushed MemRowSet %d into rowset %d (%d rows)", t.id, old.ID(), created.ID(), len(live))
	} else {
		t.logger.Infof(logging.NSFlush+"tablet %s: flushed MemRowSet %d with no live rows", t.id, old.ID())
	}
	t.maybeRollWALLocked()
	return nil
}

// FlushBiggestDMS flushes the largest DeltaMemStore to a delta file.
// It does nothing if every DMS is empty.
func (t *Tablet) FlushBiggestDMS() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writableLocked(); err != nil {
		return err
	}

	var target *rowset.DiskRowSet
	for _, rs := range t.rowsets {
		if rs.DMS().Len() == 0 {
			continue
		}
		if target == nil || rs.DMS().Bytes() > target.DMS().Bytes() {
			target = rs
		}
	}
	if target == nil {
		t.logger.Debugf(logging.NSFlush+"tablet %s: no DMS to flush", t.id)
		return nil
	}

	dmsID, entries := target.DMS().ID(), target.DMS().Len()
	if _, err := target.FlushDMS(); err != nil {
		return errors.Wrapf(err, "flush rowset %d DMS %d", target.ID(), dmsID)
	}
	if err := t.persistLocked(logging.NSFlush); err != nil {
		return err
	}
	t.logger.Infof(logging.NSFlush+"tablet %s: flushed rowset %d DMS %d (%d changes)", t.id, target.ID(), dmsID, entries)
	t.maybeRollWALLocked()
	return nil
}

// CompactWorstDeltas runs a delta compaction of kind on the rowset with the
// most delta files. It does nothing if no rowset qualifies: minor needs two
// delta files, major needs one.
func (t *Tablet) CompactWorstDeltas(kind DeltaCompactionKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writableLocked(); err != nil {
		return err
	}

	var target *rowset.DiskRowSet
	for _, rs := range t.rowsets {
		if !rs.CanCompactDeltas(kind) {
			continue
		}
		if target == nil || rs.DeltaFileCount() > target.DeltaFileCount() {
			target = rs
		}
	}
	if target == nil {
		t.logger.Debugf(logging.NSCompact+"tablet %s: no rowset needs %s delta compaction", t.id, kind)
		return nil
	}

	files := target.DeltaFileCount()
	obsolete, _, err := target.CompactDeltas(kind)
	if err != nil {
		return errors.Wrapf(err, "%s delta compaction of rowset %d", kind, target.ID())
	}
	if err := t.persistLocked(logging.NSCompact); err != nil {
		return err
	}
	t.removeFilesLocked(logging.NSCompact, obsolete)
	t.logger.Infof(logging.NSCompact+"tablet %s: %s delta compaction of rowset %d (%d delta files)", t.id, kind, target.ID(), files)
	return nil
}

// Compact merges DiskRowSets into one, applying all their deltas and
// dropping deleted rows. Without FlagForceCompactAll it needs at least two
// rowsets to do anything.
func (t *Tablet) Compact(flags CompactFlags) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.writableLocked(); err != nil {
		return err
	}

	need := 2
	if flags&FlagForceCompactAll != 0 {
		need = 1
	}
	if len(t.rowsets) < need {
		t.logger.Debugf(logging.NSCompact+"tablet %s: %d rowsets, nothing to compact", t.id, len(t.rowsets))
		return nil
	}

	var merged []row.Row
	var obsolete []string
	for _, rs := range t.rowsets {
		merged = append(merged, rs.LiveRows()...)
		obsolete = append(obsolete, rs.Files()...)
	}
	merged, err := sortUnique(merged)
	if err != nil {
		return errors.Wrapf(err, "tablet %s: compact", t.id)
	}

	inputs := len(t.rowsets)
	var out []*rowset.DiskRowSet
	if len(merged) > 0 {
		rs, err := rowset.Create(t.rowsetOptions(), t.nextRowSetID, merged)
		if err != nil {
			return errors.Wrapf(err, "tablet %s: compact", t.id)
		}
		out = append(out, rs)
		t.nextRowSetID++
	}
	t.rowsets = out

	if err := t.persistLocked(logging.NSCompact); err != nil {
		return err
	}
	t.removeFilesLocked(logging.NSCompact, obsolete)
	t.logger.Infof(logging.NSCompact+"tablet %s: compacted %d rowsets into %d (%d rows)", t.id, inputs, len(out), len(merged))
	t.maybeRollWALLocked()
	return nil
}

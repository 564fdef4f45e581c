// Package rowset implements DiskRowSet, the immutable on-disk row store a
// MemRowSet becomes when it is flushed.
//
// A DiskRowSet is a base file of rows sorted by key plus the changes made to
// those rows since: first buffered in a DeltaMemStore, then flushed into
// delta files. Changes address rows by their index in the base, so rows are
// never removed from a base, only marked deleted. Minor delta compaction
// merges delta files; major delta compaction folds them into a new base
// version.
package rowset

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/compression"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

var (
	// ErrNotFound is returned by Mutate when the key is not in the base.
	ErrNotFound = errors.New("rowset: key not found")

	// ErrInvalidMutation is returned when a change does not apply to the
	// row's current state.
	ErrInvalidMutation = errors.New("rowset: mutation does not match row state")
)

// DeltaCompactionKind selects between minor and major delta compaction.
type DeltaCompactionKind int

const (
	// MinorDeltaCompaction merges all delta files into one.
	MinorDeltaCompaction DeltaCompactionKind = iota
	// MajorDeltaCompaction folds all delta files into a new base.
	MajorDeltaCompaction
)

func (k DeltaCompactionKind) String() string {
	switch k {
	case MinorDeltaCompaction:
		return "minor"
	case MajorDeltaCompaction:
		return "major"
	default:
		return fmt.Sprintf("DeltaCompactionKind(%d)", int(k))
	}
}

// Options configures where a rowset lives and how it writes files.
type Options struct {
	FS          vfs.FS
	Dir         string
	Compression compression.Type
}

// Meta is the persistent description of a DiskRowSet, stored in the tablet
// superblock.
type Meta struct {
	ID               uint64
	BaseVersion      uint64
	DeltaIDs         []uint64
	NextDeltaID      uint64
	LastDurableDMSID uint64
}

// BaseFileName returns the file name of version v of rowset id's base.
func BaseFileName(id, v uint64) string {
	return fmt.Sprintf("rowset-%06d.base-%04d", id, v)
}

// DeltaFileName returns the file name of delta file deltaID of rowset id.
func DeltaFileName(id, deltaID uint64) string {
	return fmt.Sprintf("rowset-%06d.delta-%06d", id, deltaID)
}

// DiskRowSet is a flushed set of rows with its pending changes.
// Callers synchronize access.
type DiskRowSet struct {
	opts Options
	meta Meta

	base   []baseRow
	deltas []*deltaFile
	dms    *DeltaMemStore
}

// Create writes a new rowset holding rows, which must be sorted by key with
// no duplicates.
func Create(opts Options, id uint64, rows []row.Row) (*DiskRowSet, error) {
	base := make([]baseRow, len(rows))
	for i, r := range rows {
		if i > 0 && r.Key <= rows[i-1].Key {
			return nil, errors.AssertionFailedf("rowset %d: rows not sorted at %d", id, i)
		}
		base[i] = baseRow{key: r.Key, val: r.Val}
	}

	meta := Meta{ID: id, BaseVersion: 1, NextDeltaID: 1}
	if err := writeBaseFile(opts.FS, opts.path(BaseFileName(id, 1)), opts.Compression, base); err != nil {
		return nil, err
	}
	return &DiskRowSet{opts: opts, meta: meta, base: base, dms: newDeltaMemStore(1)}, nil
}

// Open loads a rowset described by meta.
func Open(opts Options, meta Meta) (*DiskRowSet, error) {
	base, err := readBaseFile(opts.FS, opts.path(BaseFileName(meta.ID, meta.BaseVersion)))
	if err != nil {
		return nil, err
	}
	d := &DiskRowSet{
		opts: opts,
		meta: meta,
		base: base,
		dms:  newDeltaMemStore(meta.LastDurableDMSID + 1),
	}
	d.meta.DeltaIDs = slices.Clone(meta.DeltaIDs)
	for _, id := range meta.DeltaIDs {
		f, err := readDeltaFile(opts.FS, opts.path(DeltaFileName(meta.ID, id)), id)
		if err != nil {
			return nil, err
		}
		d.deltas = append(d.deltas, f)
	}
	return d, nil
}

func (o Options) path(name string) string {
	return filepath.Join(o.Dir, name)
}

// ID returns the rowset id.
func (d *DiskRowSet) ID() uint64 { return d.meta.ID }

// Meta returns a copy of the rowset's persistent description.
func (d *DiskRowSet) Meta() Meta {
	m := d.meta
	m.DeltaIDs = slices.Clone(d.meta.DeltaIDs)
	return m
}

// Files returns the names of the files the rowset currently references.
func (d *DiskRowSet) Files() []string {
	files := []string{BaseFileName(d.meta.ID, d.meta.BaseVersion)}
	for _, id := range d.meta.DeltaIDs {
		files = append(files, DeltaFileName(d.meta.ID, id))
	}
	return files
}

// BaseRows returns the number of rows in the base, deleted ones included.
func (d *DiskRowSet) BaseRows() int { return len(d.base) }

// DeltaFileCount returns the number of delta files.
func (d *DiskRowSet) DeltaFileCount() int { return len(d.deltas) }

// DMS returns the current DeltaMemStore.
func (d *DiskRowSet) DMS() *DeltaMemStore { return d.dms }

// LastDurableDMSID returns the id of the last DMS flushed to a delta file.
func (d *DiskRowSet) LastDurableDMSID() uint64 { return d.meta.LastDurableDMSID }

func (d *DiskRowSet) find(key int32) (uint32, bool) {
	i := sort.Search(len(d.base), func(i int) bool { return d.base[i].key >= key })
	if i < len(d.base) && d.base[i].key == key {
		return uint32(i), true
	}
	return 0, false
}

// changes returns every change to rowIdx, oldest first.
func (d *DiskRowSet) changes(rowIdx uint32, includeDMS bool) []DeltaEntry {
	var out []DeltaEntry
	collect := func(e DeltaEntry) { out = append(out, e) }
	for _, f := range d.deltas {
		f.forRow(rowIdx, collect)
	}
	if includeDMS {
		d.dms.forRow(rowIdx, collect)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out
}

func (d *DiskRowSet) state(rowIdx uint32) (row.Value, bool) {
	b := d.base[rowIdx]
	val, deleted := b.val, b.deleted
	for _, e := range d.changes(rowIdx, true) {
		val, deleted = e.Change.ApplyTo(val, deleted)
	}
	return val, deleted
}

// Get returns the current row for key. present reports whether the key is
// in the base at all; live is false if the row has been deleted.
func (d *DiskRowSet) Get(key int32) (r row.Row, present, live bool) {
	idx, ok := d.find(key)
	if !ok {
		return row.Row{}, false, false
	}
	val, deleted := d.state(idx)
	return row.Row{Key: key, Val: val}, true, !deleted
}

// Mutate records an update or delete of a live row in the DMS.
func (d *DiskRowSet) Mutate(ts uint64, key int32, c row.RowChange) error {
	if c.Kind != row.ChangeUpdate && c.Kind != row.ChangeDelete {
		return errors.Wrapf(ErrInvalidMutation, "%s on a disk rowset", c.Kind)
	}
	idx, ok := d.find(key)
	if !ok {
		return ErrNotFound
	}
	if _, deleted := d.state(idx); deleted {
		return ErrInvalidMutation
	}
	d.dms.add(DeltaEntry{RowIdx: idx, TS: ts, Change: c})
	return nil
}

// LiveRows returns all live rows in key order with every change applied.
func (d *DiskRowSet) LiveRows() []row.Row {
	var out []row.Row
	d.Scan(func(r row.Row) bool {
		out = append(out, r)
		return true
	})
	return out
}

// Scan calls fn for every live row in key order until fn returns false.
func (d *DiskRowSet) Scan(fn func(row.Row) bool) {
	for i := range d.base {
		val, deleted := d.state(uint32(i))
		if deleted {
			continue
		}
		if !fn(row.Row{Key: d.base[i].key, Val: val}) {
			return
		}
	}
}

// FlushDMS writes the DMS to a new delta file and starts a new DMS.
// It reports false without doing anything if the DMS is empty.
func (d *DiskRowSet) FlushDMS() (bool, error) {
	if d.dms.Len() == 0 {
		return false, nil
	}
	id := d.meta.NextDeltaID
	entries := d.dms.entries()
	if err := writeDeltaFile(d.opts.FS, d.opts.path(DeltaFileName(d.meta.ID, id)), d.opts.Compression, entries); err != nil {
		return false, err
	}

	d.deltas = append(d.deltas, &deltaFile{id: id, entries: entries})
	d.meta.DeltaIDs = append(d.meta.DeltaIDs, id)
	d.meta.NextDeltaID++
	d.meta.LastDurableDMSID = d.dms.id
	d.dms = newDeltaMemStore(d.dms.id + 1)
	return true, nil
}

// CanCompactDeltas reports whether a delta compaction of kind has work.
func (d *DiskRowSet) CanCompactDeltas(kind DeltaCompactionKind) bool {
	if kind == MinorDeltaCompaction {
		return len(d.deltas) >= 2
	}
	return len(d.deltas) >= 1
}

// CompactDeltas runs a delta compaction and returns the names of the files
// it made obsolete. The caller removes them once the new layout is
// recorded. It reports false without doing anything if there is no work.
func (d *DiskRowSet) CompactDeltas(kind DeltaCompactionKind) ([]string, bool, error) {
	if !d.CanCompactDeltas(kind) {
		return nil, false, nil
	}
	switch kind {
	case MinorDeltaCompaction:
		return d.minorCompact()
	case MajorDeltaCompaction:
		return d.majorCompact()
	default:
		return nil, false, errors.AssertionFailedf("unknown delta compaction kind %d", kind)
	}
}

func (d *DiskRowSet) minorCompact() ([]string, bool, error) {
	var merged []DeltaEntry
	for _, f := range d.deltas {
		merged = append(merged, f.entries...)
	}
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Less(merged[j]) })

	id := d.meta.NextDeltaID
	if err := writeDeltaFile(d.opts.FS, d.opts.path(DeltaFileName(d.meta.ID, id)), d.opts.Compression, merged); err != nil {
		return nil, false, err
	}

	obsolete := d.deltaFileNames()
	d.deltas = []*deltaFile{{id: id, entries: merged}}
	d.meta.DeltaIDs = []uint64{id}
	d.meta.NextDeltaID++
	return obsolete, true, nil
}

func (d *DiskRowSet) majorCompact() ([]string, bool, error) {
	folded := make([]baseRow, len(d.base))
	for i, b := range d.base {
		val, deleted := b.val, b.deleted
		for _, e := range d.changes(uint32(i), false) {
			val, deleted = e.Change.ApplyTo(val, deleted)
		}
		folded[i] = baseRow{key: b.key, val: val, deleted: deleted}
	}

	version := d.meta.BaseVersion + 1
	if err := writeBaseFile(d.opts.FS, d.opts.path(BaseFileName(d.meta.ID, version)), d.opts.Compression, folded); err != nil {
		return nil, false, err
	}

	obsolete := append(d.deltaFileNames(), BaseFileName(d.meta.ID, d.meta.BaseVersion))
	d.base = folded
	d.deltas = nil
	d.meta.DeltaIDs = nil
	d.meta.BaseVersion = version
	return obsolete, true, nil
}

func (d *DiskRowSet) deltaFileNames() []string {
	names := make([]string, len(d.meta.DeltaIDs))
	for i, id := range d.meta.DeltaIDs {
		names[i] = DeltaFileName(d.meta.ID, id)
	}
	return names
}

// String summarizes the rowset layout.
func (d *DiskRowSet) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "rowset %d: base v%d rows=%d", d.meta.ID, d.meta.BaseVersion, len(d.base))
	fmt.Fprintf(&b, " deltas=%v dms(id=%d entries=%d) durable_dms=%d",
		d.meta.DeltaIDs, d.dms.id, d.dms.Len(), d.meta.LastDurableDMSID)
	return b.String()
}

// metadata.go implements the tablet superblock.
//
// The superblock is the single source of truth for which rowset files are
// live and which in-memory stores have been made durable. It is rewritten
// atomically after every flush and compaction.
package tablet

import (
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/checksum"
	"github.com/aalhour/tabletfuzz/internal/encoding"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/rowset"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

// SuperblockFileName is the name of the superblock in a tablet directory.
const SuperblockFileName = "SUPERBLOCK"

const (
	superblockMagic   uint32 = 0x42534654 // "TFSB"
	superblockVersion byte   = 1
)

// superblock is the persistent state of a tablet.
type superblock struct {
	tabletID  string
	tableName string
	schema    row.Schema

	currentMRSID     uint64
	lastDurableMRSID uint64
	nextRowSetID     uint64
	lastTS           uint64

	rowsets []rowset.Meta
}

func (sb *superblock) encode() []byte {
	buf := encoding.AppendFixed32(nil, superblockMagic)
	buf = append(buf, superblockVersion)
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte(sb.tabletID))
	buf = encoding.AppendLengthPrefixedSlice(buf, []byte(sb.tableName))

	buf = encoding.AppendVarint64(buf, uint64(len(sb.schema.Columns)))
	for _, c := range sb.schema.Columns {
		buf = encoding.AppendLengthPrefixedSlice(buf, []byte(c.Name))
		var flags byte
		if c.Nullable {
			flags |= 1
		}
		if c.Key {
			flags |= 2
		}
		buf = append(buf, byte(c.Type), flags)
	}

	buf = encoding.AppendVarint64(buf, sb.currentMRSID)
	buf = encoding.AppendVarint64(buf, sb.lastDurableMRSID)
	buf = encoding.AppendVarint64(buf, sb.nextRowSetID)
	buf = encoding.AppendVarint64(buf, sb.lastTS)

	buf = encoding.AppendVarint64(buf, uint64(len(sb.rowsets)))
	for _, m := range sb.rowsets {
		buf = encoding.AppendVarint64(buf, m.ID)
		buf = encoding.AppendVarint64(buf, m.BaseVersion)
		buf = encoding.AppendVarint64(buf, m.NextDeltaID)
		buf = encoding.AppendVarint64(buf, m.LastDurableDMSID)
		buf = encoding.AppendVarint64(buf, uint64(len(m.DeltaIDs)))
		for _, id := range m.DeltaIDs {
			buf = encoding.AppendVarint64(buf, id)
		}
	}

	return encoding.AppendFixed32(buf, checksum.MaskedValue(buf))
}

func decodeSuperblock(data []byte) (*superblock, error) {
	if len(data) < 9 {
		return nil, errors.Wrapf(ErrCorruption, "superblock: %d bytes", len(data))
	}
	body := data[:len(data)-4]
	if stored := encoding.DecodeFixed32(data[len(body):]); checksum.Unmask(stored) != checksum.Value(body) {
		return nil, errors.Wrap(ErrCorruption, "superblock: checksum mismatch")
	}

	s := encoding.NewSlice(body)
	bad := func(what string) error { return errors.Wrapf(ErrCorruption, "superblock: bad %s", what) }

	if magic, ok := s.GetFixed32(); !ok || magic != superblockMagic {
		return nil, bad("magic")
	}
	if v, ok := s.GetByte(); !ok || v != superblockVersion {
		return nil, bad("version")
	}

	sb := &superblock{}
	id, ok1 := s.GetLengthPrefixedSlice()
	name, ok2 := s.GetLengthPrefixedSlice()
	if !ok1 || !ok2 {
		return nil, bad("names")
	}
	sb.tabletID, sb.tableName = string(id), string(name)

	ncols, ok := s.GetVarint64()
	if !ok || ncols > 64 {
		return nil, bad("column count")
	}
	for range ncols {
		cname, ok := s.GetLengthPrefixedSlice()
		typ, ok2 := s.GetByte()
		flags, ok3 := s.GetByte()
		if !ok || !ok2 || !ok3 {
			return nil, bad("column")
		}
		sb.schema.Columns = append(sb.schema.Columns, row.Column{
			Name:     string(cname),
			Type:     row.ColumnType(typ),
			Nullable: flags&1 != 0,
			Key:      flags&2 != 0,
		})
	}

	for _, dst := range []*uint64{&sb.currentMRSID, &sb.lastDurableMRSID, &sb.nextRowSetID, &sb.lastTS} {
		if *dst, ok = s.GetVarint64(); !ok {
			return nil, bad("counters")
		}
	}

	nrs, ok := s.GetVarint64()
	if !ok || nrs > uint64(len(body)) {
		return nil, bad("rowset count")
	}
	for range nrs {
		var m rowset.Meta
		for _, dst := range []*uint64{&m.ID, &m.BaseVersion, &m.NextDeltaID, &m.LastDurableDMSID} {
			if *dst, ok = s.GetVarint64(); !ok {
				return nil, bad("rowset")
			}
		}
		nd, ok := s.GetVarint64()
		if !ok || nd > uint64(len(body)) {
			return nil, bad("delta count")
		}
		for range nd {
			d, ok := s.GetVarint64()
			if !ok {
				return nil, bad("delta id")
			}
			m.DeltaIDs = append(m.DeltaIDs, d)
		}
		sb.rowsets = append(sb.rowsets, m)
	}
	if s.Remaining() != 0 {
		return nil, bad("trailing bytes")
	}
	return sb, nil
}

func writeSuperblock(fs vfs.FS, dir string, sb *superblock) error {
	if err := fs.WriteFileAtomic(filepath.Join(dir, SuperblockFileName), sb.encode()); err != nil {
		return errors.Wrap(err, "write superblock")
	}
	return nil
}

func readSuperblock(fs vfs.FS, dir string) (*superblock, error) {
	data, err := fs.ReadFile(filepath.Join(dir, SuperblockFileName))
	if err != nil {
		return nil, errors.Wrap(err, "read superblock")
	}
	return decodeSuperblock(data)
}

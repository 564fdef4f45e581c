// logentry.go encodes the WAL payload of a committed batch.
//
// Each applied op records its timestamp and the store it landed in, so that
// replay can skip ops whose store has since been made durable.
package tablet

import (
	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/encoding"
	"github.com/aalhour/tabletfuzz/internal/row"
)

// opTarget identifies the store an applied op was written to.
type opTarget uint8

const (
	targetMRSInsert opTarget = 1
	targetMRSMutate opTarget = 2
	targetDRSMutate opTarget = 3
)

// loggedOp is one applied op in a commit record.
type loggedOp struct {
	ts     uint64
	target opTarget
	// storeID is the MRS id for MRS targets and the rowset id for DRS ones.
	storeID uint64
	// dmsID is the DMS id for DRS targets.
	dmsID  uint64
	key    int32
	val    row.Value     // targetMRSInsert
	change row.RowChange // mutations
}

func encodeCommit(ops []loggedOp) []byte {
	buf := encoding.AppendVarint64(nil, uint64(len(ops)))
	for _, op := range ops {
		buf = encoding.AppendVarint64(buf, op.ts)
		buf = append(buf, byte(op.target))
		buf = encoding.AppendVarint64(buf, op.storeID)
		if op.target == targetDRSMutate {
			buf = encoding.AppendVarint64(buf, op.dmsID)
		}
		buf = encoding.AppendVarsignedint64(buf, int64(op.key))
		if op.target == targetMRSInsert {
			buf = row.AppendValue(buf, op.val)
		} else {
			buf = row.AppendChange(buf, op.change)
		}
	}
	return buf
}

func decodeCommit(data []byte) ([]loggedOp, error) {
	s := encoding.NewSlice(data)
	n, ok := s.GetVarint64()
	if !ok || n > uint64(len(data)) {
		return nil, errors.Wrap(ErrCorruption, "commit record: bad op count")
	}
	ops := make([]loggedOp, 0, n)
	for i := range n {
		var op loggedOp
		var okTS, okTarget, okStore bool
		var target byte
		op.ts, okTS = s.GetVarint64()
		target, okTarget = s.GetByte()
		op.storeID, okStore = s.GetVarint64()
		if !okTS || !okTarget || !okStore {
			return nil, errors.Wrapf(ErrCorruption, "commit record: op %d: truncated header", i)
		}
		op.target = opTarget(target)
		switch op.target {
		case targetMRSInsert, targetMRSMutate:
		case targetDRSMutate:
			if op.dmsID, ok = s.GetVarint64(); !ok {
				return nil, errors.Wrapf(ErrCorruption, "commit record: op %d: truncated dms id", i)
			}
		default:
			return nil, errors.Wrapf(ErrCorruption, "commit record: op %d: unknown target %d", i, target)
		}
		key, ok := s.GetVarsignedint64()
		if !ok {
			return nil, errors.Wrapf(ErrCorruption, "commit record: op %d: bad key", i)
		}
		op.key = int32(key)
		if op.target == targetMRSInsert {
			if op.val, ok = row.GetValue(s); !ok {
				return nil, errors.Wrapf(ErrCorruption, "commit record: op %d: bad value", i)
			}
		} else {
			c, err := row.GetChange(s)
			if err != nil {
				return nil, errors.Mark(errors.Wrapf(err, "commit record: op %d", i), ErrCorruption)
			}
			op.change = c
		}
		ops = append(ops, op)
	}
	if s.Remaining() != 0 {
		return nil, errors.Wrapf(ErrCorruption, "commit record: %d trailing bytes", s.Remaining())
	}
	return ops, nil
}

func rowOf(op loggedOp) row.Row {
	return row.Row{Key: op.key, Val: op.val}
}

// Package fuzz generates random legal operation sequences against a single
// row and checks a live engine against an oracle of the committed value
// after every step.
//
// A run is a Case: an ordered list of Ops. Cases are printed with FormatCase
// so that a failing random case can be pasted back into a test or a replay
// file and run again verbatim.
package fuzz

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
)

// Op is one step of a Case.
type Op uint8

const (
	// OpInsert stages an insert of the row.
	OpInsert Op = iota
	// OpUpdate stages an update of the row's value.
	OpUpdate
	// OpDelete stages a delete of the row.
	OpDelete
	// OpFlushOps commits the staged mutations.
	OpFlushOps
	// OpFlushMRS flushes the MemRowSet to a DiskRowSet.
	OpFlushMRS
	// OpFlushDeltas flushes the biggest DeltaMemStore.
	OpFlushDeltas
	// OpMinorCompactDeltas runs a minor delta compaction.
	OpMinorCompactDeltas
	// OpMajorCompactDeltas runs a major delta compaction.
	OpMajorCompactDeltas
	// OpCompactTablet compacts every DiskRowSet.
	OpCompactTablet
	// OpRestart restarts the tablet server. Only generated when enabled.
	OpRestart

	numOps
)

var opNames = [numOps]string{
	OpInsert:             "INSERT",
	OpUpdate:             "UPDATE",
	OpDelete:             "DELETE",
	OpFlushOps:           "FLUSH_OPS",
	OpFlushMRS:           "FLUSH_MRS",
	OpFlushDeltas:        "FLUSH_DELTAS",
	OpMinorCompactDeltas: "MINOR_COMPACT_DELTAS",
	OpMajorCompactDeltas: "MAJOR_COMPACT_DELTAS",
	OpCompactTablet:      "COMPACT_TABLET",
	OpRestart:            "RESTART",
}

func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", o)
}

// IsMutation reports whether o stages a row mutation.
func (o Op) IsMutation() bool {
	return o == OpInsert || o == OpUpdate || o == OpDelete
}

// IsMaintenance reports whether o is a maintenance op on the tablet.
func (o Op) IsMaintenance() bool {
	switch o {
	case OpFlushMRS, OpFlushDeltas, OpMinorCompactDeltas, OpMajorCompactDeltas, OpCompactTablet:
		return true
	}
	return false
}

// ParseOp parses an op name as printed by String. Case is ignored.
func ParseOp(s string) (Op, error) {
	name := strings.TrimSpace(s)
	for i, n := range opNames {
		if strings.EqualFold(n, name) {
			return Op(i), nil
		}
	}
	return 0, errors.Newf("fuzz: unknown op %q", name)
}

// Case is a sequence of ops run in order.
type Case []Op

// FormatCase renders c one op per line, separated by commas. ParseCase
// reads the output back.
func FormatCase(c Case) string {
	names := make([]string, len(c))
	for i, op := range c {
		names[i] = op.String()
	}
	return strings.Join(names, ",\n")
}

func (c Case) String() string { return FormatCase(c) }

// ParseCase parses a case written as op names separated by commas or
// newlines. Blank entries are skipped and "#" starts a comment that runs
// to the end of the line.
func ParseCase(s string) (Case, error) {
	var c Case
	for lineNo, line := range strings.Split(s, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		for _, field := range strings.Split(line, ",") {
			if strings.TrimSpace(field) == "" {
				continue
			}
			op, err := ParseOp(field)
			if err != nil {
				return nil, errors.Wrapf(err, "line %d", lineNo+1)
			}
			c = append(c, op)
		}
	}
	return c, nil
}

// Validate checks that every op of c is legal in the state produced by
// the ops before it. Hand-written cases must spell out the FlushOps that
// the generator inserts implicitly.
func Validate(c Case) error {
	var st EngineState
	for i, op := range c {
		if !st.Legal(op) {
			return errors.Newf("fuzz: op %d (%s) is not legal in state %s", i, op, st)
		}
		st = st.Next(op)
	}
	return nil
}

package fuzz

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestFormatCase(t *testing.T) {
	c := Case{OpInsert, OpFlushOps, OpFlushMRS}
	require.Equal(t, "INSERT,\nFLUSH_OPS,\nFLUSH_MRS", FormatCase(c))
	require.Equal(t, "", FormatCase(nil))
	require.Equal(t, "Op(42)", Op(42).String())
}

func TestParseCase(t *testing.T) {
	in := `
# Get an inserted row in a DiskRowSet.
INSERT,
flush_ops,
FLUSH_MRS,

DELETE, INSERT,  # delete on disk, reinsert in memory
FLUSH_OPS,
COMPACT_TABLET
`
	c, err := ParseCase(in)
	require.NoError(t, err)
	want := Case{OpInsert, OpFlushOps, OpFlushMRS, OpDelete, OpInsert, OpFlushOps, OpCompactTablet}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Fatalf("ParseCase mismatch (-want +got):\n%s", diff)
	}

	_, err = ParseCase("INSERT,\nUPSERT")
	require.ErrorContains(t, err, "line 2")
	require.ErrorContains(t, err, `unknown op "UPSERT"`)

	empty, err := ParseCase("  \n# nothing\n")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestOpClasses(t *testing.T) {
	for op := OpInsert; op < numOps; op++ {
		require.False(t, op.IsMutation() && op.IsMaintenance(), op)
		parsed, err := ParseOp(op.String())
		require.NoError(t, err)
		require.Equal(t, op, parsed)
	}
	require.True(t, OpDelete.IsMutation())
	require.True(t, OpMajorCompactDeltas.IsMaintenance())
	require.False(t, OpFlushOps.IsMaintenance())
	require.False(t, OpRestart.IsMaintenance())
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	require.NoError(t, Validate(Case{OpInsert, OpDelete, OpFlushOps, OpFlushMRS, OpMinorCompactDeltas}))

	err := Validate(Case{OpDelete})
	require.EqualError(t, err,
		"fuzz: op 0 (DELETE) is not legal in state {exists=false pending=false mrs=false dms=false compact=false}")

	// A flush must be preceded by an explicit commit.
	err = Validate(Case{OpInsert, OpFlushMRS})
	require.ErrorContains(t, err, "op 1 (FLUSH_MRS)")

	err = Validate(Case{OpInsert, OpFlushOps, OpFlushOps})
	require.ErrorContains(t, err, "op 2 (FLUSH_OPS)")
}

package fuzz

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		name string
		from EngineState
		op   Op
		want EngineState
	}{
		{"insert", EngineState{}, OpInsert,
			EngineState{Exists: true, OpsPending: true, DataInMRS: true}},
		{"update in mrs", EngineState{Exists: true, DataInMRS: true}, OpUpdate,
			EngineState{Exists: true, OpsPending: true, DataInMRS: true}},
		{"update on disk", EngineState{Exists: true, WorthCompacting: true}, OpUpdate,
			EngineState{Exists: true, OpsPending: true, DataInDMS: true, WorthCompacting: true}},
		{"delete on disk", EngineState{Exists: true}, OpDelete,
			EngineState{OpsPending: true, DataInDMS: true}},
		{"delete in mrs", EngineState{Exists: true, DataInMRS: true}, OpDelete,
			EngineState{OpsPending: true, DataInMRS: true}},
		{"flush ops", EngineState{Exists: true, OpsPending: true}, OpFlushOps,
			EngineState{Exists: true}},
		{"flush mrs", EngineState{DataInMRS: true}, OpFlushMRS,
			EngineState{WorthCompacting: true}},
		{"flush deltas", EngineState{DataInDMS: true}, OpFlushDeltas, EngineState{}},
		{"compact", EngineState{WorthCompacting: true}, OpCompactTablet, EngineState{}},
		{"minor", EngineState{Exists: true}, OpMinorCompactDeltas, EngineState{Exists: true}},
		{"major", EngineState{DataInDMS: true}, OpMajorCompactDeltas, EngineState{DataInDMS: true}},
		{"restart", EngineState{Exists: true, DataInMRS: true}, OpRestart,
			EngineState{Exists: true, DataInMRS: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, tt.from.Legal(tt.op))
			require.Equal(t, tt.want, tt.from.Next(tt.op))
		})
	}
}

func TestStateGuards(t *testing.T) {
	var zero EngineState
	require.False(t, zero.Allows(OpUpdate))
	require.False(t, zero.Allows(OpDelete))
	require.False(t, zero.Allows(OpFlushOps))
	require.False(t, zero.Allows(OpFlushMRS))
	require.False(t, zero.Allows(OpFlushDeltas))
	require.False(t, zero.Allows(OpCompactTablet))
	require.True(t, zero.Allows(OpInsert))

	pending := EngineState{Exists: true, OpsPending: true, DataInMRS: true, DataInDMS: true, WorthCompacting: true}
	for _, op := range []Op{OpFlushMRS, OpFlushDeltas, OpCompactTablet, OpRestart} {
		require.True(t, pending.Allows(op), op)
		require.False(t, pending.Legal(op), "%s must wait for a commit", op)
	}
	require.False(t, pending.Allows(OpInsert))
	require.False(t, pending.Allows(numOps))
}

// TestEveryReachableStateCanProgress walks every state reachable from the
// zero state and checks that the generator can always draw a legal op
// without restarts enabled, so rejection sampling terminates.
func TestEveryReachableStateCanProgress(t *testing.T) {
	seen := map[EngineState]bool{{}: true}
	queue := []EngineState{{}}
	for len(queue) > 0 {
		st := queue[0]
		queue = queue[1:]

		legal := 0
		for op := OpInsert; op < numOps; op++ {
			if !st.Allows(op) {
				continue
			}
			if op != OpRestart {
				legal++
			}
			next := st
			if op.needsCommit() && next.OpsPending {
				next = next.Next(OpFlushOps)
			}
			require.True(t, next.Legal(op), "%s in %s", op, next)
			next = next.Next(op)
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
		require.Positive(t, legal, "state %s admits no op", st)
	}
	// 32 flag combinations, minus the four where mutations are pending
	// outside the MemRowSet without leaving deltas behind.
	require.Len(t, seen, 28)
	for st := range seen {
		if st.OpsPending && !st.DataInMRS {
			require.True(t, st.DataInDMS, "unexpected reachable state %s", st)
		}
	}
}

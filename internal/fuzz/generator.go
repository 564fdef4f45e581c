package fuzz

import (
	"math/rand"

	"github.com/cockroachdb/errors"
)

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// Seed seeds the random source. Equal seeds generate equal cases.
	Seed int64
	// AllowRestart adds OpRestart to the alphabet.
	AllowRestart bool
}

// Generator produces random legal cases by rejection sampling: it draws
// an op uniformly from the alphabet and discards it if its precondition
// does not hold.
type Generator struct {
	rng      *rand.Rand
	alphabet []Op
}

// NewGenerator creates a generator.
func NewGenerator(cfg GeneratorConfig) *Generator {
	alphabet := make([]Op, 0, numOps)
	for op := OpInsert; op < numOps; op++ {
		if op == OpRestart && !cfg.AllowRestart {
			continue
		}
		alphabet = append(alphabet, op)
	}
	return &Generator{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		alphabet: alphabet,
	}
}

// Generate returns a legal case of exactly length ops.
//
// Ops that need committed data (flushes, full compaction, restart) are
// preceded by an implicit OpFlushOps when mutations are pending. If that
// pushes the case past length, the extra op is dropped.
func (g *Generator) Generate(length int) (Case, error) {
	var st EngineState
	c := make(Case, 0, length+1)
	emit := func(op Op) error {
		if !st.Legal(op) {
			return errors.AssertionFailedf("generated %s in state %s after %d ops", op, st, len(c))
		}
		st = st.Next(op)
		c = append(c, op)
		return nil
	}

	for len(c) < length {
		op := g.alphabet[g.rng.Intn(len(g.alphabet))]
		if !st.Allows(op) {
			continue
		}
		if op.needsCommit() && st.OpsPending {
			if err := emit(OpFlushOps); err != nil {
				return nil, err
			}
		}
		if err := emit(op); err != nil {
			return nil, err
		}
	}
	if len(c) > length {
		c = c[:length]
	}
	return c, nil
}

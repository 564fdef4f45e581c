// Package maintenance schedules tablet flushes and compactions in the
// background.
//
// The Manager polls its registered tablets, scores every maintenance op
// each tablet could run, and runs the single highest-scoring one per poll.
// Ops run through the same blocking tablet methods callers use directly,
// so background maintenance is never observable through reads.
//
// A Manager built with Enabled=false never starts its goroutine; RunOnce
// still works for tests that want deterministic scheduling.
package maintenance

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

// Tablet is the part of a tablet the manager schedules work on.
type Tablet interface {
	ID() string
	Stats() tablet.Stats
	Flush() error
	FlushBiggestDMS() error
	CompactWorstDeltas(kind tablet.DeltaCompactionKind) error
	Compact(flags tablet.CompactFlags) error
}

// Options configures the manager.
type Options struct {
	// Enabled starts the background goroutine. When false the manager only
	// runs ops through RunOnce.
	Enabled bool

	// PollInterval is how often tablets are scored.
	PollInterval time.Duration

	// FlushThreshold is the MemRowSet entry+mutation count that makes a
	// MemRowSet flush worth running.
	FlushThreshold int

	// DMSFlushThresholdBytes is the DeltaMemStore size that makes a DMS
	// flush worth running.
	DMSFlushThresholdBytes int

	// MinorCompactionDeltaFiles is the delta file count that makes a minor
	// delta compaction worth running. Values below 2 are treated as 2.
	MinorCompactionDeltaFiles int

	// MajorCompactionDeltaFiles is the delta file count that makes a major
	// delta compaction worth running.
	MajorCompactionDeltaFiles int

	// CompactionRowSets is the rowset count that makes a full compaction
	// worth running.
	CompactionRowSets int
}

// DefaultOptions returns the default manager options.
func DefaultOptions() Options {
	return Options{
		Enabled:                   true,
		PollInterval:              100 * time.Millisecond,
		FlushThreshold:            1024,
		DMSFlushThresholdBytes:    64 << 10,
		MinorCompactionDeltaFiles: 4,
		MajorCompactionDeltaFiles: 8,
		CompactionRowSets:         4,
	}
}

// OpKind identifies a maintenance op.
type OpKind int

const (
	// OpFlushMRS flushes the MemRowSet.
	OpFlushMRS OpKind = iota
	// OpFlushDMS flushes the biggest DeltaMemStore.
	OpFlushDMS
	// OpMinorCompactDeltas merges delta files.
	OpMinorCompactDeltas
	// OpMajorCompactDeltas folds delta files into a base.
	OpMajorCompactDeltas
	// OpCompactRowSets merges every rowset.
	OpCompactRowSets
	numOpKinds
)

func (k OpKind) String() string {
	switch k {
	case OpFlushMRS:
		return "FlushMRS"
	case OpFlushDMS:
		return "FlushDMS"
	case OpMinorCompactDeltas:
		return "MinorCompactDeltas"
	case OpMajorCompactDeltas:
		return "MajorCompactDeltas"
	case OpCompactRowSets:
		return "CompactRowSets"
	default:
		return fmt.Sprintf("OpKind(%d)", int(k))
	}
}

// candidate is an op a tablet could run, scored by how far past its
// threshold the tablet is.
type candidate struct {
	tablet Tablet
	kind   OpKind
	score  float64
}

// Manager runs maintenance ops on registered tablets.
type Manager struct {
	opts   Options
	logger logging.Logger

	mu        sync.Mutex
	tablets   map[string]Tablet
	paused    bool
	running   bool
	runs      [numOpKinds]int
	bgErrors  int
	triggerCh chan struct{}
	stopCh    chan struct{}
	done      sync.WaitGroup
}

// New creates a manager. Call Start to begin background polling.
func New(opts Options, logger logging.Logger) *Manager {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultOptions().PollInterval
	}
	if opts.MinorCompactionDeltaFiles < 2 {
		opts.MinorCompactionDeltaFiles = 2
	}
	return &Manager{
		opts:      opts,
		logger:    logging.OrDefault(logger),
		tablets:   make(map[string]Tablet),
		triggerCh: make(chan struct{}, 1),
	}
}

// Register adds t to the set of tablets the manager maintains.
func (m *Manager) Register(t Tablet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tablets[t.ID()] = t
}

// Unregister removes the tablet with the given id.
func (m *Manager) Unregister(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tablets, id)
}

// Start starts the background goroutine if the manager is enabled.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.opts.Enabled {
		m.logger.Infof(logging.NSMaint + "maintenance manager disabled")
		return
	}
	if m.running {
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.done.Add(1)
	go m.loop(m.stopCh)
}

// Stop stops the background goroutine and waits for the running op.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()
	m.done.Wait()
}

// Pause stops scheduling new ops until Continue.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = true
}

// Continue resumes scheduling after Pause.
func (m *Manager) Continue() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// IsPaused returns true if scheduling is paused.
func (m *Manager) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Trigger asks the background goroutine to poll now.
func (m *Manager) Trigger() {
	select {
	case m.triggerCh <- struct{}{}:
	default:
		// Already signaled
	}
}

func (m *Manager) loop(stop <-chan struct{}) {
	defer m.done.Done()

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-m.triggerCh:
		}
		if m.IsPaused() {
			continue
		}
		if _, _, err := m.RunOnce(); err != nil {
			m.logger.Warnf(logging.NSMaint+"%v", err)
		}
	}
}

// RunOnce runs the highest-scoring op across all tablets, if any op is
// past its threshold. It reports which op ran, if any.
func (m *Manager) RunOnce() (OpKind, bool, error) {
	best, ok := m.pick()
	if !ok {
		return 0, false, nil
	}

	start := time.Now()
	err := m.run(best)
	m.mu.Lock()
	if err != nil {
		m.bgErrors++
	} else {
		m.runs[best.kind]++
	}
	m.mu.Unlock()
	if err != nil {
		return best.kind, true, errors.Wrapf(err, "%s on tablet %s", best.kind, best.tablet.ID())
	}
	m.logger.Debugf(logging.NSMaint+"%s on tablet %s took %s (score %.2f)",
		best.kind, best.tablet.ID(), time.Since(start), best.score)
	return best.kind, true, nil
}

func (m *Manager) run(c candidate) error {
	switch c.kind {
	case OpFlushMRS:
		return c.tablet.Flush()
	case OpFlushDMS:
		return c.tablet.FlushBiggestDMS()
	case OpMinorCompactDeltas:
		return c.tablet.CompactWorstDeltas(tablet.MinorDeltaCompaction)
	case OpMajorCompactDeltas:
		return c.tablet.CompactWorstDeltas(tablet.MajorDeltaCompaction)
	case OpCompactRowSets:
		return c.tablet.Compact(0)
	default:
		return errors.AssertionFailedf("unknown maintenance op %d", c.kind)
	}
}

// pick scores every op of every tablet and returns the best one.
func (m *Manager) pick() (candidate, bool) {
	m.mu.Lock()
	tablets := make([]Tablet, 0, len(m.tablets))
	for _, t := range m.tablets {
		tablets = append(tablets, t)
	}
	m.mu.Unlock()
	sort.Slice(tablets, func(i, j int) bool { return tablets[i].ID() < tablets[j].ID() })

	var best candidate
	found := false
	for _, t := range tablets {
		for _, c := range m.score(t) {
			if !found || c.score > best.score {
				best, found = c, true
			}
		}
	}
	return best, found
}

// score returns the ops of t that are at or past their threshold.
func (m *Manager) score(t Tablet) []candidate {
	s := t.Stats()
	var out []candidate
	add := func(kind OpKind, have, threshold int) {
		if threshold > 0 && have >= threshold {
			out = append(out, candidate{tablet: t, kind: kind, score: float64(have) / float64(threshold)})
		}
	}
	add(OpFlushMRS, s.MRSEntries+s.MRSMutations, m.opts.FlushThreshold)
	add(OpFlushDMS, s.BiggestDMSBytes, m.opts.DMSFlushThresholdBytes)
	add(OpMinorCompactDeltas, s.MaxDeltaFiles, m.opts.MinorCompactionDeltaFiles)
	add(OpMajorCompactDeltas, s.MaxDeltaFiles, m.opts.MajorCompactionDeltaFiles)
	add(OpCompactRowSets, s.RowSets, m.opts.CompactionRowSets)
	return out
}

// Runs returns how many times op kind k completed successfully.
func (m *Manager) Runs(k OpKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[k]
}

// NumBackgroundErrors returns the number of failed ops.
func (m *Manager) NumBackgroundErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bgErrors
}

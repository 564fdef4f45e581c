package client

import (
	"fmt"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/tablet"
)

// FlushMode controls when a session sends its operations.
type FlushMode int

const (
	// ManualFlush buffers operations until Flush.
	ManualFlush FlushMode = iota
	// AutoFlushSync sends every operation as it is applied.
	AutoFlushSync
)

// RowError is the failure of a single operation.
type RowError struct {
	Op  *Operation
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Session buffers operations and sends them in batches, one batch per
// tablet per flush. A Session is not safe for concurrent use.
type Session struct {
	client  *Client
	mode    FlushMode
	pending []*Operation
	errs    []*RowError
}

// SetFlushMode changes the flush mode. It fails if operations are buffered.
func (s *Session) SetFlushMode(m FlushMode) error {
	if len(s.pending) > 0 {
		return errors.Newf("client: cannot change flush mode with %d buffered operations", len(s.pending))
	}
	s.mode = m
	return nil
}

// Apply adds op to the session. In AutoFlushSync mode it is sent at once.
func (s *Session) Apply(op *Operation) error {
	if _, err := op.toTabletOp(); err != nil {
		return err
	}
	s.pending = append(s.pending, op)
	if s.mode == AutoFlushSync {
		return s.Flush()
	}
	return nil
}

// HasPendingOperations reports whether operations are buffered.
func (s *Session) HasPendingOperations() bool { return len(s.pending) > 0 }

// Flush sends all buffered operations. Each tablet's operations are
// committed as one batch. If some operations fail, their errors are kept
// for PendingErrors and Flush returns ErrRowErrors.
func (s *Session) Flush() error {
	if len(s.pending) == 0 {
		return nil
	}
	ts, err := s.client.server()
	if err != nil {
		return err
	}

	ops := s.pending
	s.pending = nil

	byTablet := map[string][]*Operation{}
	var order []string
	for _, op := range ops {
		id := op.table.TabletID()
		if _, ok := byTablet[id]; !ok {
			order = append(order, id)
		}
		byTablet[id] = append(byTablet[id], op)
	}

	failed := 0
	for _, id := range order {
		group := byTablet[id]
		var b tablet.Batch
		for _, op := range group {
			top, _ := op.toTabletOp()
			b.Ops = append(b.Ops, top)
		}
		rowErrs, err := ts.Write(id, &b)
		if err != nil {
			return unavailable(err)
		}
		for i, rerr := range rowErrs {
			if rerr != nil {
				s.errs = append(s.errs, &RowError{Op: group[i], Err: rerr})
				failed++
			}
		}
	}
	if failed > 0 {
		return errors.WithDetailf(
			errors.Wrapf(ErrRowErrors, "%d of %d operations failed", failed, len(ops)),
			"first failure: %v", s.errs[len(s.errs)-failed])
	}
	return nil
}

// PendingErrors returns and clears the errors of failed operations.
func (s *Session) PendingErrors() []*RowError {
	errs := s.errs
	s.errs = nil
	return errs
}

// Close flushes the session.
func (s *Session) Close() error {
	return s.Flush()
}

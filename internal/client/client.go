// Package client is the in-process client for a mini cluster.
//
// Writes are built as Operations on a Table, applied to a Session and sent
// to the tablet server when the session flushes. Row-level failures such as
// a duplicate insert are reported per operation by the flush, not by Apply.
package client

import (
	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/cluster"
	"github.com/aalhour/tabletfuzz/internal/row"
	"github.com/aalhour/tabletfuzz/internal/tablet"
)

var (
	// ErrServiceUnavailable is returned when the tablet server is down.
	ErrServiceUnavailable = errors.New("client: service unavailable")

	// ErrRowErrors is returned by Session.Flush when some operations failed.
	ErrRowErrors = errors.New("client: some operations failed")

	// ErrInvalidRow is returned for operations missing required columns.
	ErrInvalidRow = errors.New("client: invalid row")
)

// Connector gives access to the running tablet server.
// *cluster.MiniTabletServer implements it.
type Connector interface {
	Server() (*cluster.TabletServer, error)
}

// Client talks to one tablet server.
type Client struct {
	conn Connector
}

// New creates a client.
func New(conn Connector) *Client {
	return &Client{conn: conn}
}

func (c *Client) server() (*cluster.TabletServer, error) {
	ts, err := c.conn.Server()
	if err != nil {
		return nil, unavailable(err)
	}
	return ts, nil
}

// unavailable maps server-down conditions to ErrServiceUnavailable.
func unavailable(err error) error {
	if errors.Is(err, cluster.ErrNotRunning) || errors.Is(err, tablet.ErrClosed) {
		return errors.Wrapf(ErrServiceUnavailable, "%v", err)
	}
	return err
}

// CreateTable creates a table and returns a handle to it.
func (c *Client) CreateTable(name string, schema row.Schema) (*Table, error) {
	ts, err := c.server()
	if err != nil {
		return nil, err
	}
	info, err := ts.CreateTable(name, schema)
	if err != nil {
		return nil, err
	}
	return &Table{client: c, info: info}, nil
}

// OpenTable returns a handle to an existing table.
func (c *Client) OpenTable(name string) (*Table, error) {
	ts, err := c.server()
	if err != nil {
		return nil, err
	}
	info, err := ts.OpenTable(name)
	if err != nil {
		return nil, err
	}
	return &Table{client: c, info: info}, nil
}

// NewSession creates a session in manual flush mode.
func (c *Client) NewSession() *Session {
	return &Session{client: c, mode: ManualFlush}
}

// Table is a handle to a table.
type Table struct {
	client *Client
	info   cluster.TableInfo
}

// Name returns the table name.
func (t *Table) Name() string { return t.info.Name }

// TabletID returns the id of the tablet holding the table.
func (t *Table) TabletID() string { return t.info.TabletID }

// Schema returns the table schema.
func (t *Table) Schema() row.Schema { return t.info.Schema }

// NewInsert returns an insert operation with an empty row.
func (t *Table) NewInsert() *Operation { return t.newOp(tablet.OpInsert) }

// NewUpdate returns an update operation with an empty row.
func (t *Table) NewUpdate() *Operation { return t.newOp(tablet.OpUpdate) }

// NewDelete returns a delete operation with an empty row.
func (t *Table) NewDelete() *Operation { return t.newOp(tablet.OpDelete) }

func (t *Table) newOp(kind tablet.OpType) *Operation {
	return &Operation{table: t, kind: kind, row: &PartialRow{schema: t.info.Schema}}
}

// NewScanner returns a scanner over the whole table.
func (t *Table) NewScanner() *Scanner {
	return &Scanner{table: t}
}

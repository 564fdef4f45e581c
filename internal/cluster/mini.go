// Package cluster runs tablet servers in-process.
//
// A MiniCluster owns a fixed number of MiniTabletServers, each of which can
// be shut down and started again over the same directory to exercise
// recovery. While a server is down every call that needs it returns
// ErrNotRunning.
package cluster

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/aalhour/tabletfuzz/internal/logging"
	"github.com/aalhour/tabletfuzz/internal/vfs"
)

// MiniTabletServer controls the lifecycle of one in-process tablet server.
type MiniTabletServer struct {
	opts Options
	dir  string

	mu     sync.Mutex
	server *TabletServer
}

// Start starts the server. Starting a running server is an error.
func (m *MiniTabletServer) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server != nil {
		return errors.Newf("tablet server %s already running", m.dir)
	}
	ts, err := startTabletServer(m.opts, m.dir)
	if err != nil {
		return err
	}
	m.server = ts
	return nil
}

// Shutdown stops the server. Shutting down a stopped server does nothing.
func (m *MiniTabletServer) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil
	}
	err := m.server.shutdown()
	m.server = nil
	m.opts.Logger.Infof(logging.NSCluster+"tablet server %s shut down", m.dir)
	return err
}

// Restart shuts the server down if it is running and starts it again.
func (m *MiniTabletServer) Restart() error {
	if err := m.Shutdown(); err != nil {
		return errors.Wrap(err, "restart")
	}
	return m.Start()
}

// IsRunning reports whether the server is up.
func (m *MiniTabletServer) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.server != nil
}

// Server returns the running server or ErrNotRunning.
func (m *MiniTabletServer) Server() (*TabletServer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.server == nil {
		return nil, errors.Wrapf(ErrNotRunning, "%s", m.dir)
	}
	return m.server, nil
}

// Dir returns the server's data directory.
func (m *MiniTabletServer) Dir() string { return m.dir }

// MiniCluster is a set of in-process tablet servers sharing one root
// directory.
type MiniCluster struct {
	opts    Options
	servers []*MiniTabletServer
}

// New creates a cluster. Nothing runs until Start.
func New(opts Options) (*MiniCluster, error) {
	if opts.Dir == "" {
		return nil, errors.New("cluster: Options.Dir is required")
	}
	if opts.FS == nil {
		opts.FS = vfs.Default()
	}
	opts.Logger = logging.OrDefault(opts.Logger)
	if opts.NumTabletServers <= 0 {
		opts.NumTabletServers = 1
	}

	c := &MiniCluster{opts: opts}
	for i := range opts.NumTabletServers {
		c.servers = append(c.servers, &MiniTabletServer{
			opts: opts,
			dir:  filepath.Join(opts.Dir, fmt.Sprintf("ts-%d", i)),
		})
	}
	return c, nil
}

// Start starts every tablet server.
func (c *MiniCluster) Start() error {
	for _, s := range c.servers {
		if err := s.Start(); err != nil {
			_ = c.Shutdown()
			return errors.Wrap(err, "start mini cluster")
		}
	}
	return nil
}

// Shutdown stops every running tablet server.
func (c *MiniCluster) Shutdown() error {
	var err error
	for _, s := range c.servers {
		err = errors.CombineErrors(err, s.Shutdown())
	}
	return err
}

// NumTabletServers returns the number of tablet servers.
func (c *MiniCluster) NumTabletServers() int { return len(c.servers) }

// TabletServer returns tablet server i.
func (c *MiniCluster) TabletServer(i int) *MiniTabletServer { return c.servers[i] }
